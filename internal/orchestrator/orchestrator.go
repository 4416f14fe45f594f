// Package orchestrator drives a job through the stage sequence: transcribe,
// restructure, voicelog detection, analysis. Stages run strictly in order and
// every stage's output is durably persisted before the next one starts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"callaudit/internal/logger"
	"callaudit/internal/stage"
	"callaudit/internal/store"
	"callaudit/internal/types"
	"callaudit/internal/voicelog"
)

// ErrValidation marks a rejected submission with a missing required field.
var ErrValidation = errors.New("validation")

// Spec is one job submission.
type Spec struct {
	URL        string `json:"url"`
	FileName   string `json:"file_name"`
	CallType   string `json:"call_type"`
	Agent      string `json:"agent"`
	Language   *bool  `json:"language"`
	Background bool   `json:"background"`
}

// normalize validates required fields and applies defaults.
func (s *Spec) normalize() error {
	if s.URL == "" {
		return fmt.Errorf("%w: missing required field 'url'", ErrValidation)
	}
	if s.FileName == "" {
		return fmt.Errorf("%w: missing required field 'file_name'", ErrValidation)
	}
	if s.Agent == "" {
		return fmt.Errorf("%w: missing required field 'agent'", ErrValidation)
	}
	if s.CallType == "" {
		s.CallType = "Regular"
	}
	if s.Language == nil {
		auto := true
		s.Language = &auto
	}
	return nil
}

// Result is returned to synchronous callers.
type Result struct {
	Summary    []types.ScoreSummary   `json:"completed_checks"`
	Transcript []types.TranscriptLine `json:"transcript"`
}

type Orchestrator struct {
	stages  *stage.Client
	store   *store.Store
	baseURL string
	log     *logger.Logger
}

func New(stages *stage.Client, st *store.Store, baseURL string, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		stages:  stages,
		store:   st,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.WithComponent("orchestrator"),
	}
}

// RunJob validates the submission, resets the job row to a clean starting
// state, and runs the stage sequence. With Background set it returns
// immediately and the pipeline continues detached; the caller's only signal
// is the persisted job record.
func (o *Orchestrator) RunJob(ctx context.Context, spec Spec) (*Result, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}
	if err := o.store.UpsertJob(ctx, spec.FileName, spec.URL, spec.CallType, spec.Agent); err != nil {
		return nil, err
	}

	if spec.Background {
		go func() {
			if _, err := o.process(context.Background(), spec); err != nil {
				o.log.WithJob(spec.FileName).WithError(err).Error("background job failed")
			}
		}()
		return nil, nil
	}
	return o.process(ctx, spec)
}

func (o *Orchestrator) process(ctx context.Context, spec Spec) (*Result, error) {
	log := o.log.WithJob(spec.FileName)

	// fail records the stage error on the job and marks it failed. The
	// error-logging path is best effort: a secondary failure only reaches the
	// process log, never the caller.
	fail := func(err error) (*Result, error) {
		log.WithError(err).Error("pipeline stage failed")
		if logErr := o.store.AppendError(ctx, spec.FileName, err.Error()); logErr != nil {
			log.WithError(logErr).Error("failed to record error on job")
		}
		if stErr := o.store.SetStatus(ctx, spec.FileName, types.StatusFailed); stErr != nil {
			log.WithError(stErr).Error("failed to mark job failed")
		}
		return nil, err
	}

	// Transcribe.
	if err := o.store.SetStatus(ctx, spec.FileName, types.StatusTranscribing); err != nil {
		return fail(err)
	}
	var transcribed struct {
		Transcription []types.TranscriptLine `json:"transcription"`
	}
	if err := o.stages.Call(ctx, o.baseURL+"/transcribe", map[string]any{
		"url":       spec.URL,
		"language":  *spec.Language,
		"call_type": spec.CallType,
	}, &transcribed); err != nil {
		return fail(fmt.Errorf("transcribe stage: %w", err))
	}
	if err := o.store.SaveTranscript(ctx, spec.FileName, transcribed.Transcription); err != nil {
		return fail(err)
	}
	log.WithField("lines", len(transcribed.Transcription)).Info("transcription persisted")

	// Restructure: persists the labeled transcript as a side effect.
	if err := o.store.SetStatus(ctx, spec.FileName, types.StatusRestructuring); err != nil {
		return fail(err)
	}
	if err := o.stages.Call(ctx, o.baseURL+"/restructure", map[string]any{
		"transcript": transcribed.Transcription,
		"call_type":  spec.CallType,
		"file_name":  spec.FileName,
	}, nil); err != nil {
		return fail(fmt.Errorf("restructure stage: %w", err))
	}

	// Detect voicelog.
	if err := o.store.SetStatus(ctx, spec.FileName, types.StatusDetectingVoicelog); err != nil {
		return fail(err)
	}
	var detected struct {
		VoiceLogs        []voicelog.Candidate `json:"voiceLogs"`
		VoicelogResponse string               `json:"voicelog_response"`
	}
	if err := o.stages.Call(ctx, o.baseURL+"/detect_voicelog", map[string]any{
		"file_name": spec.FileName,
		"call_type": spec.CallType,
	}, &detected); err != nil {
		return fail(fmt.Errorf("detect voicelog stage: %w", err))
	}

	var voicelogID *int
	if len(detected.VoiceLogs) > 0 {
		voicelogID = coerceLineID(detected.VoiceLogs[0].ID)
	}
	if voicelogID == nil {
		// Not fatal: record the raw detection response for diagnosis and
		// continue with a null voicelog id.
		log.Info("no voicelog id detected, continuing without one")
		if logErr := o.store.AppendError(ctx, spec.FileName, detected.VoicelogResponse); logErr != nil {
			log.WithError(logErr).Error("failed to record detection response on job")
		}
	}
	if err := o.store.SetVoicelogID(ctx, spec.FileName, voicelogID); err != nil {
		return fail(err)
	}

	// Analyze.
	if err := o.store.SetStatus(ctx, spec.FileName, types.StatusAnalyzing); err != nil {
		return fail(err)
	}
	var summary []types.ScoreSummary
	if err := o.stages.Call(ctx, o.baseURL+"/analyze", map[string]any{
		"file_name": spec.FileName,
		"call_type": spec.CallType,
	}, &summary); err != nil {
		return fail(fmt.Errorf("analyze stage: %w", err))
	}

	if err := o.store.SetStatus(ctx, spec.FileName, types.StatusCompleted); err != nil {
		return fail(err)
	}

	job, err := o.store.GetJob(ctx, spec.FileName)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline completed")
	return &Result{Summary: summary, Transcript: job.Transcript}, nil
}

// coerceLineID turns a detection candidate id into a line id. Numeric strings
// are coerced; anything that does not resolve to an integer means "not found".
func coerceLineID(v any) *int {
	switch id := v.(type) {
	case int:
		return &id
	case float64:
		if id != math.Trunc(id) {
			return nil
		}
		n := int(id)
		return &n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}
