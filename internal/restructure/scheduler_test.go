package restructure_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/restructure"
	"callaudit/internal/types"
)

func makeLines(n int) []types.TranscriptLine {
	lines := make([]types.TranscriptLine, n)
	for i := range lines {
		lines[i] = types.TranscriptLine{
			ID:        i + 1,
			Timestamp: fmt.Sprintf("00:00:%02d,000 --> 00:00:%02d,000", i, i+2),
			Text:      fmt.Sprintf("line %d", i+1),
		}
	}
	return lines
}

func TestSplitBatches(t *testing.T) {
	cases := []struct {
		n     int
		sizes []int
	}{
		{0, nil},
		{1, []int{1}},
		{10, []int{10}},
		{11, []int{10, 1}},
		{25, []int{10, 10, 5}},
	}
	for _, tc := range cases {
		batches := restructure.SplitBatches(makeLines(tc.n))
		require.Len(t, batches, len(tc.sizes), "n=%d", tc.n)
		next := 1
		for i, b := range batches {
			assert.Len(t, b, tc.sizes[i], "n=%d batch=%d", tc.n, i)
			for _, line := range b {
				assert.Equal(t, next, line.ID)
				next++
			}
		}
	}
}

// echoCompleter labels each batch by prefixing the text, simulating speaker
// attribution without changing IDs or order.
type echoCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *echoCompleter) Complete(_ context.Context, messages []judgment.Message) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	content := messages[0].Content
	payload := content[strings.Index(content, "\n")+1:]
	var batch []types.TranscriptLine
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return "", err
	}
	for i := range batch {
		batch[i].Text = "Agent: " + batch[i].Text
	}
	out, _ := json.Marshal(map[string]any{"transcript": batch})
	return string(out), nil
}

func TestRunPreservesOrderAcrossBatches(t *testing.T) {
	llm := &echoCompleter{}
	s := restructure.NewScheduler(llm, logger.Discard())

	lines := makeLines(25)
	labeled, err := s.Run(context.Background(), "label speakers", lines)
	require.NoError(t, err)
	require.Len(t, labeled, 25)
	assert.Equal(t, 3, llm.calls)
	for i, line := range labeled {
		assert.Equal(t, i+1, line.ID)
		assert.Equal(t, fmt.Sprintf("Agent: line %d", i+1), line.Text)
	}
}

// flakyCompleter fails a fixed number of times before delegating to echo.
type flakyCompleter struct {
	mu       sync.Mutex
	failures int
	calls    int
	echo     echoCompleter
}

func (c *flakyCompleter) Complete(ctx context.Context, messages []judgment.Message) (string, error) {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()
	if fail {
		return "", errors.New("transient upstream failure")
	}
	return c.echo.Complete(ctx, messages)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	llm := &flakyCompleter{failures: 2}
	s := restructure.NewScheduler(llm, logger.Discard())

	labeled, err := s.Run(context.Background(), "label speakers", makeLines(5))
	require.NoError(t, err)
	require.Len(t, labeled, 5)
	assert.Equal(t, 3, llm.calls)
}

func TestRunFailsAfterExhaustedRetries(t *testing.T) {
	llm := &flakyCompleter{failures: 3}
	s := restructure.NewScheduler(llm, logger.Discard())

	lines := makeLines(3)
	_, err := s.Run(context.Background(), "label speakers", lines)
	require.Error(t, err)
	assert.Equal(t, 3, llm.calls)
	// The failure message names the batch so operators can replay it.
	assert.Contains(t, err.Error(), "labeling failed after 3 attempts")
	assert.Contains(t, err.Error(), `"line 1"`)
}

func TestRunUnparsableResponseRetriesThenFails(t *testing.T) {
	llm := &garbageCompleter{}
	s := restructure.NewScheduler(llm, logger.Discard())

	_, err := s.Run(context.Background(), "label speakers", makeLines(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, judgment.ErrUnparsable)
	assert.Equal(t, 3, llm.calls)
}

type garbageCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *garbageCompleter) Complete(context.Context, []judgment.Message) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return "```json\nthis is not json\n```", nil
}
