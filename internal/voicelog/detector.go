// Package voicelog locates the transcript moment carrying the required
// compliance announcement.
package voicelog

import (
	"context"
	"encoding/json"
	"fmt"

	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/types"
)

// Candidate is one ranked detection result. ID may arrive as a number or a
// numeric string; the orchestrator owns the coercion.
type Candidate struct {
	ID            any    `json:"ID"`
	VoicelogFound string `json:"Voicelog_gevonden"`
	Rationale     string `json:"Rationale"`
}

// Detection holds the ranked candidates plus the raw judgment content for
// diagnostics when no usable candidate is found.
type Detection struct {
	Candidates  []Candidate
	RawResponse string
}

// Completer produces a judgment response for a set of chat messages.
type Completer interface {
	Complete(ctx context.Context, messages []judgment.Message) (string, error)
}

type Detector struct {
	llm Completer
	log *logger.Logger
}

func NewDetector(llm Completer, log *logger.Logger) *Detector {
	return &Detector{llm: llm, log: log.WithComponent("voicelog")}
}

// Detect asks the judgment service for voicelog candidates over the full
// transcript. Only result objects carrying all three expected keys survive.
func (d *Detector) Detect(ctx context.Context, prompt string, transcript []types.TranscriptLine) (*Detection, error) {
	payload, err := json.Marshal(transcript)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}

	content, err := d.llm.Complete(ctx, []judgment.Message{
		{Role: "user", Content: prompt + string(payload)},
	})
	if err != nil {
		return nil, err
	}

	var node any
	if err := judgment.DecodeStrict(content, &node); err != nil {
		return nil, err
	}

	detection := &Detection{RawResponse: content}
	for _, entry := range resultEntries(node) {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if !hasKeys(obj, "ID", "Voicelog_gevonden", "Rationale") {
			continue
		}
		found, _ := obj["Voicelog_gevonden"].(string)
		rationale, _ := obj["Rationale"].(string)
		detection.Candidates = append(detection.Candidates, Candidate{
			ID:            obj["ID"],
			VoicelogFound: found,
			Rationale:     rationale,
		})
	}
	d.log.WithField("candidates", len(detection.Candidates)).Info("voicelog detection complete")
	return detection, nil
}

// resultEntries flattens the judgment content: a single object or an array of
// objects, each carrying its candidates under "result".
func resultEntries(node any) []any {
	objects := []any{node}
	if arr, ok := node.([]any); ok {
		objects = arr
	}
	var entries []any
	for _, o := range objects {
		obj, ok := o.(map[string]any)
		if !ok {
			continue
		}
		if result, ok := obj["result"].([]any); ok {
			entries = append(entries, result...)
		}
	}
	return entries
}

func hasKeys(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}
