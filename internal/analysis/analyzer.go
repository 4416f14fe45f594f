// Package analysis scores a labeled transcript against the requirements
// active for the job's call type.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/types"
)

// Completer produces a judgment response for a set of chat messages.
type Completer interface {
	Complete(ctx context.Context, messages []judgment.Message) (string, error)
}

// RecordStore persists per-requirement judgments and the final tally.
type RecordStore interface {
	UpsertComplianceRecord(ctx context.Context, rec types.ComplianceRecord) error
	SaveScore(ctx context.Context, fileName string, summary types.ScoreSummary) error
}

type Analyzer struct {
	llm   Completer
	store RecordStore
	log   *logger.Logger
}

func NewAnalyzer(llm Completer, store RecordStore, log *logger.Logger) *Analyzer {
	return &Analyzer{llm: llm, store: store, log: log.WithComponent("analysis")}
}

// sliceEntry is the reduced line shape embedded in the judgment prompt.
type sliceEntry struct {
	ID        int    `json:"ID"`
	Timestamp string `json:"Timestamp"`
	Text      string `json:"Text"`
}

// judgmentElements is the wire shape of one requirement judgment.
type judgmentElements struct {
	Elementen []struct {
		TypeElement     string `json:"Type_Element"`
		Naleving        string `json:"Naleving"`
		Tijdstempel     string `json:"Tijdstempel"`
		FeitelijkeTekst string `json:"Feitelijke_Tekst"`
		Opmerking       string `json:"Opmerking"`
	} `json:"elementen"`
}

// Run judges every requirement in order and returns the final tally. A failed
// judgment call or unparsable body skips just that requirement; a store write
// failure aborts the stage. The tally is flushed to the job row once, after
// the loop.
func (a *Analyzer) Run(ctx context.Context, fileName, prompt string, reqs []types.Requirement, transcript []types.TranscriptLine, voicelogID *int) (types.ScoreSummary, error) {
	log := a.log.WithJob(fileName)
	var tally types.ScoreSummary

	for _, req := range reqs {
		slice := SliceForRequirement(req, transcript, voicelogID)
		entries := make([]sliceEntry, 0, len(slice))
		for _, l := range slice {
			entries = append(entries, sliceEntry{ID: l.ID, Timestamp: l.Timestamp, Text: l.Text})
		}
		entriesJSON, err := json.Marshal(entries)
		if err != nil {
			return tally, fmt.Errorf("encode slice: %w", err)
		}

		content, err := a.llm.Complete(ctx, []judgment.Message{
			{Role: "system", Content: prompt + requirementSubset(req)},
			{Role: "user", Content: string(entriesJSON)},
		})
		if err != nil {
			log.WithError(err).WithField("element_type", req.ElementType).Warn("requirement judgment failed, skipping")
			continue
		}

		var parsed judgmentElements
		if err := judgment.DecodeStrict(content, &parsed); err != nil || len(parsed.Elementen) == 0 {
			log.WithError(err).WithField("element_type", req.ElementType).Warn("requirement judgment unparsable, skipping")
			continue
		}
		el := parsed.Elementen[0]

		rec := types.ComplianceRecord{
			FileName:    fileName,
			ElementType: el.TypeElement,
			Verdict:     types.Verdict(el.Naleving),
			Timestamp:   el.Tijdstempel,
			MatchedText: el.FeitelijkeTekst,
			Remark:      el.Opmerking,
		}
		if err := a.store.UpsertComplianceRecord(ctx, rec); err != nil {
			return tally, err
		}

		tally.CompletedChecks++
		if rec.Verdict == types.VerdictCompliant {
			tally.Score++
		} else {
			tally.FailedChecks++
		}
	}

	if err := a.store.SaveScore(ctx, fileName, tally); err != nil {
		return tally, err
	}
	log.WithField("completed_checks", tally.CompletedChecks).WithField("score", tally.Score).Info("analysis complete")
	return tally, nil
}

// requirementSubset renders the sanitized requirement fields appended to the
// judgment prompt, using the wire names the prompts were authored against.
func requirementSubset(req types.Requirement) string {
	subset := map[string]string{
		"Type_Element":     sanitize(req.ElementType),
		"Feitelijke_Tekst": sanitize(req.ExpectedText),
		"Comment":          sanitize(req.Comment),
	}
	data, _ := json.Marshal(subset)
	return string(data)
}

// sanitize trims free text and escapes embedded quotes so requirement prose
// cannot break out of the prompt's JSON context.
func sanitize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), `"`, `\"`)
}
