// Package judgment calls the chat-completion service that performs speaker
// attribution and compliance judgment.
package judgment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"callaudit/internal/logger"
)

// ErrUnparsable indicates the judgment body was not valid JSON even after the
// normalization pass.
var ErrUnparsable = errors.New("judgment response is not valid JSON")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(url, model, apiKey string, log *logger.Logger) *Client {
	return &Client{
		url:        url,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		log:        log.WithComponent("judgment"),
	}
}

// Complete sends messages to the judgment service and returns the first
// choice's content. Single attempt; retry budgets belong to the callers.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := map[string]any{
		"model":           c.model,
		"response_format": map[string]string{"type": "json_object"},
		"messages":        messages,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode judgment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build judgment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("judgment request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read judgment response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithField("http_status", resp.StatusCode).Warn("judgment request failed")
		return "", fmt.Errorf("judgment API error: %s - %s", resp.Status, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode judgment response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("judgment response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Normalize strips the markdown code-fence wrapping the service sometimes
// emits around JSON bodies.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, marker := range []string{"```json", "```"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	return strings.TrimSpace(s)
}

// DecodeStrict unmarshals content into v: strict decode first, then one
// normalization pass and a second strict decode. Both failing is ErrUnparsable.
func DecodeStrict(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(Normalize(content)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return nil
}
