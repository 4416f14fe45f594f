// Package transcribe calls the audio-processing backends that turn a recording
// URL into an SRT-style transcript.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"callaudit/internal/logger"
	"callaudit/internal/types"
)

type Service struct {
	primaryURL  string
	fallbackURL string
	httpClient  *http.Client
	log         *logger.Logger
}

func NewService(primaryURL, fallbackURL string, log *logger.Logger) *Service {
	return &Service{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		log:         log.WithComponent("transcribe"),
	}
}

type backendRequest struct {
	URL      string `json:"url"`
	Prompt   string `json:"prompt"`
	Language bool   `json:"language"`
}

type backendResponse struct {
	Transcription []types.TranscriptLine `json:"transcription"`
	Error         string                 `json:"error"`
}

// Transcribe posts the recording to the primary backend and falls back to the
// secondary one when the primary does not succeed.
func (s *Service) Transcribe(ctx context.Context, url string, language bool, prompt string) ([]types.TranscriptLine, error) {
	req := backendRequest{URL: url, Prompt: prompt, Language: language}

	lines, primaryErr := s.post(ctx, s.primaryURL, req)
	if primaryErr == nil {
		return lines, nil
	}
	s.log.WithError(primaryErr).Warn("primary audio backend failed, trying fallback")

	if s.fallbackURL == "" {
		return nil, primaryErr
	}
	lines, fallbackErr := s.post(ctx, s.fallbackURL, req)
	if fallbackErr != nil {
		return nil, fmt.Errorf("primary backend: %v; fallback backend: %w", primaryErr, fallbackErr)
	}
	return lines, nil
}

func (s *Service) post(ctx context.Context, url string, req backendRequest) ([]types.TranscriptLine, error) {
	if url == "" {
		return nil, fmt.Errorf("audio backend URL not configured")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode backend request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second

	var out backendResponse
	var lastErr error
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("backend server error: %s", string(body))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("backend request failed with status %d: %s", resp.StatusCode, string(body))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(body, &out); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, lastErr
	}
	if out.Error != "" {
		return nil, fmt.Errorf("backend reported error: %s", out.Error)
	}
	return out.Transcription, nil
}
