package types

import (
	"fmt"
	"strconv"
	"strings"
)

// TranscriptLine is one SRT-style entry of a call transcript. Ordering by ID
// is the canonical sequence order.
type TranscriptLine struct {
	ID        int    `json:"id"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// Seconds returns the start offset of the line in whole seconds.
func (l TranscriptLine) Seconds() (int, error) {
	return TimestampSeconds(l.Timestamp)
}

// TimestampSeconds parses an SRT timestamp range ("HH:MM:SS,mmm --> ...") and
// returns the start offset in seconds.
func TimestampSeconds(ts string) (int, error) {
	start := ts
	if i := strings.Index(ts, "-->"); i >= 0 {
		start = ts[:i]
	}
	start = strings.TrimSpace(start)
	if i := strings.Index(start, ","); i >= 0 {
		start = start[:i]
	}
	parts := strings.Split(start, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	var hms [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		hms[i] = v
	}
	total := hms[0]*3600 + hms[1]*60 + hms[2]
	if total < 0 {
		return 0, fmt.Errorf("negative offset in timestamp %q", ts)
	}
	return total, nil
}

// Status is the lifecycle state of a job. Stages run strictly in order; failed
// is absorbing and reachable from any non-terminal state.
type Status string

const (
	StatusSubmitted         Status = "submitted"
	StatusTranscribing      Status = "transcribing"
	StatusRestructuring     Status = "restructuring"
	StatusDetectingVoicelog Status = "detecting_voicelog"
	StatusAnalyzing         Status = "analyzing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// Job is one end-to-end processing request for a single call recording,
// unique on FileName.
type Job struct {
	FileName        string           `json:"file_name"`
	URL             string           `json:"url"`
	CallType        string           `json:"call_type"`
	Agent           string           `json:"agent"`
	Status          Status           `json:"status"`
	Transcript      []TranscriptLine `json:"transcript"`
	VoicelogID      *int             `json:"voicelog_id"`
	Errors          []string         `json:"errors"`
	Score           int              `json:"score"`
	CompletedChecks int              `json:"completed_checks"`
	FailedChecks    int              `json:"failed_checks"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

// ScoreSummary is the per-job analysis tally. JSON names follow the judgment
// service's Dutch wire format.
type ScoreSummary struct {
	Score           int `json:"Score"`
	CompletedChecks int `json:"Completed_checks"`
	FailedChecks    int `json:"Niet_vooldan_score"`
}

// SlicePolicy selects which transcript lines are relevant to a requirement.
// Values match the reference workbook rows.
type SlicePolicy string

const (
	SliceUntilSecond  SlicePolicy = "Until second #"
	SlicePreVoicelog  SlicePolicy = "Pre-voicelog"
	SlicePostVoicelog SlicePolicy = "Post-voicelog"
)

// Requirement is one compliance check definition for a call type. Immutable
// reference data loaded from the workbook, never produced by the pipeline.
type Requirement struct {
	CallType      string      `json:"call_type"`
	ElementType   string      `json:"element_type"`
	SlicePolicy   SlicePolicy `json:"slice_policy"`
	SecondsCutoff int         `json:"seconds_cutoff"`
	ExpectedText  string      `json:"expected_text"`
	Comment       string      `json:"comment"`
}

// Verdict is the compliance outcome of a single check. Wire values are Dutch,
// as emitted by the judgment prompts.
type Verdict string

const (
	VerdictCompliant    Verdict = "Naleving"
	VerdictNonCompliant Verdict = "Geen naleving"
)

// ComplianceRecord is the judgment for one (job, element type) pair. Upserted,
// never duplicated.
type ComplianceRecord struct {
	FileName    string  `json:"file_name"`
	ElementType string  `json:"element_type"`
	Verdict     Verdict `json:"verdict"`
	Timestamp   string  `json:"timestamp"`
	MatchedText string  `json:"matched_text"`
	Remark      string  `json:"remark"`
}
