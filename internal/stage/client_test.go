package stage_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit/internal/logger"
	"callaudit/internal/stage"
)

func TestCallDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "x.mp3", body["file_name"])
		_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "value": 42})
	}))
	defer srv.Close()

	c := stage.NewClient(logger.Discard())
	var out struct {
		Status bool `json:"status"`
		Value  int  `json:"value"`
	}
	err := c.Call(context.Background(), srv.URL, map[string]string{"file_name": "x.mp3"}, &out)
	require.NoError(t, err)
	assert.True(t, out.Status)
	assert.Equal(t, 42, out.Value)
}

func TestCallNonSuccessCarriesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"error":   "analysis failed",
			"details": "upstream judgment timed out",
		})
	}))
	defer srv.Close()

	c := stage.NewClient(logger.Discard())
	err := c.Call(context.Background(), srv.URL, map[string]string{}, nil)
	require.Error(t, err)

	var stageErr *stage.Error
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, http.StatusInternalServerError, stageErr.StatusCode)
	assert.Equal(t, "upstream judgment timed out", stageErr.Details)
	assert.Contains(t, stageErr.Error(), "500 - Internal Server Error")
	assert.Contains(t, stageErr.Error(), "upstream judgment timed out")
}

func TestCallFallsBackToErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "error": "File name is missing or empty."})
	}))
	defer srv.Close()

	c := stage.NewClient(logger.Discard())
	err := c.Call(context.Background(), srv.URL, map[string]string{}, nil)

	var stageErr *stage.Error
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "File name is missing or empty.", stageErr.Details)
}

func TestCallEmptyEnvelopeDefaultsDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := stage.NewClient(logger.Discard())
	err := c.Call(context.Background(), srv.URL, map[string]string{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No additional details available.")
}

func TestCallNilOutSkipsDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := stage.NewClient(logger.Discard())
	assert.NoError(t, c.Call(context.Background(), srv.URL, map[string]string{}, nil))
}
