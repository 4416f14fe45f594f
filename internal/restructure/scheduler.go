// Package restructure fans transcript batches out to the speaker-labeling
// stage and reassembles the labeled lines in original order.
package restructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/types"
)

// BatchSize is the fixed number of transcript lines labeled per call.
const BatchSize = 10

// labelAttempts is the per-batch attempt budget for the labeling call.
const labelAttempts = 3

// Completer produces a judgment response for a set of chat messages.
type Completer interface {
	Complete(ctx context.Context, messages []judgment.Message) (string, error)
}

type Scheduler struct {
	llm Completer
	log *logger.Logger
}

func NewScheduler(llm Completer, log *logger.Logger) *Scheduler {
	return &Scheduler{llm: llm, log: log.WithComponent("restructure")}
}

// SplitBatches partitions lines into ceil(N/BatchSize) ordered chunks; the
// last chunk may be shorter.
func SplitBatches(lines []types.TranscriptLine) [][]types.TranscriptLine {
	var batches [][]types.TranscriptLine
	for i := 0; i < len(lines); i += BatchSize {
		end := i + BatchSize
		if end > len(lines) {
			end = len(lines)
		}
		batches = append(batches, lines[i:end])
	}
	return batches
}

// Run labels every batch concurrently and concatenates the results back into
// one sequence matching the original line order. Any batch that exhausts its
// retries fails the whole stage: downstream slicing assumes every original
// line has a labeled counterpart.
func (s *Scheduler) Run(ctx context.Context, prompt string, lines []types.TranscriptLine) ([]types.TranscriptLine, error) {
	batches := SplitBatches(lines)
	s.log.WithField("batches", len(batches)).Info("dispatching labeling batches")

	results := make([][]types.TranscriptLine, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			labeled, err := s.labelBatch(gctx, prompt, batch)
			if err != nil {
				return err
			}
			results[i] = labeled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.TranscriptLine
	for _, labeled := range results {
		out = append(out, labeled...)
	}
	return out, nil
}

// labelBatch asks the judgment service to attribute speakers for one batch,
// retrying up to labelAttempts times on any error: transport failure,
// non-success status, or a body that stays unparsable after normalization.
func (s *Scheduler) labelBatch(ctx context.Context, prompt string, batch []types.TranscriptLine) ([]types.TranscriptLine, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	var labeled []types.TranscriptLine
	var lastErr error
	op := func() error {
		content, err := s.llm.Complete(ctx, []judgment.Message{
			{Role: "user", Content: prompt + "\n" + string(payload)},
		})
		if err != nil {
			lastErr = err
			return err
		}
		var parsed struct {
			Transcript []types.TranscriptLine `json:"transcript"`
		}
		if err := judgment.DecodeStrict(content, &parsed); err != nil {
			lastErr = err
			return err
		}
		labeled = parsed.Transcript
		lastErr = nil
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), labelAttempts-1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		s.log.WithError(lastErr).Warn("labeling batch exhausted retries")
		return nil, fmt.Errorf("labeling failed after %d attempts for batch %s: %w", labelAttempts, string(payload), lastErr)
	}
	return labeled, nil
}
