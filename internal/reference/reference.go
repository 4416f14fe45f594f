// Package reference loads requirement definitions and stage prompts from the
// reference workbook. The data is immutable once loaded.
package reference

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"callaudit/internal/types"
)

// Prompt names used by the pipeline stages.
const (
	PromptTranscribe    = "AUDIO_TRANSCRIBE"
	PromptRestructure   = "RESTRUCTURE_TRANSCRIPT"
	PromptFindVoicelogs = "FIND_VOICELOGS"
	PromptRunAnalysis   = "RUN_ANALYSIS"
)

// ErrNotFound indicates no matching requirement or prompt row exists.
var ErrNotFound = errors.New("reference data not found")

type promptKey struct {
	name     string
	callType string
}

// Library holds the loaded reference data, keyed by call type.
type Library struct {
	requirements map[string][]types.Requirement
	prompts      map[promptKey]string
}

// Load reads the Requirements and Prompts sheets from the workbook at path.
func Load(path string) (*Library, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	lib := &Library{
		requirements: map[string][]types.Requirement{},
		prompts:      map[promptKey]string{},
	}
	if err := lib.loadRequirements(f); err != nil {
		return nil, err
	}
	if err := lib.loadPrompts(f); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *Library) loadRequirements(f *excelize.File) error {
	rows, err := f.GetRows("Requirements")
	if err != nil {
		return fmt.Errorf("read Requirements sheet: %w", err)
	}
	if len(rows) <= 1 {
		return fmt.Errorf("Requirements sheet has no data rows")
	}

	// Detect columns by header name rather than position.
	callTypeIdx, elementIdx, sliceIdx, cutoffIdx, textIdx, commentIdx := -1, -1, -1, -1, -1, -1
	for i, h := range rows[0] {
		n := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(n, "call") && strings.Contains(n, "type"):
			callTypeIdx = i
		case strings.Contains(n, "element"):
			elementIdx = i
		case strings.Contains(n, "slice"):
			sliceIdx = i
		case strings.Contains(n, "cutoff") || strings.Contains(n, "second"):
			cutoffIdx = i
		case strings.Contains(n, "text") || strings.Contains(n, "tekst"):
			textIdx = i
		case strings.Contains(n, "comment"):
			commentIdx = i
		}
	}
	if callTypeIdx == -1 || elementIdx == -1 || sliceIdx == -1 {
		return fmt.Errorf("Requirements sheet missing call type, element, or slice column")
	}

	cell := func(r []string, idx int) string {
		if idx >= 0 && idx < len(r) {
			return strings.TrimSpace(r[idx])
		}
		return ""
	}

	for _, r := range rows[1:] {
		req := types.Requirement{
			CallType:     cell(r, callTypeIdx),
			ElementType:  cell(r, elementIdx),
			SlicePolicy:  types.SlicePolicy(cell(r, sliceIdx)),
			ExpectedText: cell(r, textIdx),
			Comment:      cell(r, commentIdx),
		}
		if req.CallType == "" || req.ElementType == "" {
			continue
		}
		if v := cell(r, cutoffIdx); v != "" {
			req.SecondsCutoff, _ = strconv.Atoi(v)
		}
		l.requirements[req.CallType] = append(l.requirements[req.CallType], req)
	}
	return nil
}

func (l *Library) loadPrompts(f *excelize.File) error {
	rows, err := f.GetRows("Prompts")
	if err != nil {
		return fmt.Errorf("read Prompts sheet: %w", err)
	}
	if len(rows) <= 1 {
		return fmt.Errorf("Prompts sheet has no data rows")
	}

	nameIdx, callTypeIdx, promptIdx := -1, -1, -1
	for i, h := range rows[0] {
		n := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(n, "name"):
			nameIdx = i
		case strings.Contains(n, "call") && strings.Contains(n, "type"):
			callTypeIdx = i
		case strings.Contains(n, "prompt"):
			promptIdx = i
		}
	}
	if nameIdx == -1 || callTypeIdx == -1 || promptIdx == -1 {
		return fmt.Errorf("Prompts sheet missing name, call type, or prompt column")
	}

	for _, r := range rows[1:] {
		if nameIdx >= len(r) || callTypeIdx >= len(r) || promptIdx >= len(r) {
			continue
		}
		name := strings.TrimSpace(r[nameIdx])
		callType := strings.TrimSpace(r[callTypeIdx])
		if name == "" || callType == "" {
			continue
		}
		l.prompts[promptKey{name: name, callType: callType}] = r[promptIdx]
	}
	return nil
}

// RequirementsFor returns the requirements active for a call type, in
// workbook row order.
func (l *Library) RequirementsFor(callType string) ([]types.Requirement, error) {
	reqs, ok := l.requirements[callType]
	if !ok || len(reqs) == 0 {
		return nil, fmt.Errorf("%w: requirements for call type %q", ErrNotFound, callType)
	}
	return reqs, nil
}

// Prompt returns the prompt text for a (name, call type) pair.
func (l *Library) Prompt(name, callType string) (string, error) {
	p, ok := l.prompts[promptKey{name: name, callType: callType}]
	if !ok {
		return "", fmt.Errorf("%w: prompt %q for call type %q", ErrNotFound, name, callType)
	}
	return p, nil
}
