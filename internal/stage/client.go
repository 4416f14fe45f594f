// Package stage provides the generic client used to call the pipeline's
// externally-hosted processing stages.
package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"callaudit/internal/logger"
)

// Error describes a non-success stage response: HTTP status plus any
// machine-readable details carried in the error envelope.
type Error struct {
	StatusCode int
	StatusText string
	Details    string
}

func (e *Error) Error() string {
	details := e.Details
	if details == "" {
		details = "No additional details available."
	}
	return fmt.Sprintf("stage request failed: %d - %s. Details: %s", e.StatusCode, e.StatusText, details)
}

// envelope is the shared error body shape of every stage endpoint.
type envelope struct {
	Status  bool   `json:"status"`
	Err     string `json:"error"`
	Details string `json:"details"`
}

// Client issues JSON POST requests to stage endpoints. No per-call timeout is
// imposed; a stalled stage blocks the owning job.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		log:        log.WithComponent("stage-client"),
	}
}

// Call posts body as JSON to url and decodes the response into out. A non-2xx
// status yields a *Error carrying the envelope's details.
func (c *Client) Call(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode stage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build stage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.WithField("url", url).Debug("stage request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stage request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read stage response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		details := env.Details
		if details == "" {
			details = env.Err
		}
		stageErr := &Error{
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Details:    details,
		}
		c.log.WithField("url", url).WithField("http_status", resp.StatusCode).Warn("stage request failed")
		return stageErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode stage response: %w", err)
	}
	return nil
}
