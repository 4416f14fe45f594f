package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit/internal/analysis"
	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/types"
)

// scriptedCompleter replies per element type, keyed on the sanitized
// requirement subset embedded in the system prompt.
type scriptedCompleter struct {
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, messages []judgment.Message) (string, error) {
	system := messages[0].Content
	for element, reply := range c.replies {
		if strings.Contains(system, element) {
			c.calls = append(c.calls, element)
			return reply, c.errs[element]
		}
	}
	return "", errors.New("no scripted reply")
}

type memoryRecordStore struct {
	records    []types.ComplianceRecord
	scores     []types.ScoreSummary
	upsertErr  error
	scoreCalls int
}

func (s *memoryRecordStore) UpsertComplianceRecord(_ context.Context, rec types.ComplianceRecord) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryRecordStore) SaveScore(_ context.Context, _ string, summary types.ScoreSummary) error {
	s.scoreCalls++
	s.scores = append(s.scores, summary)
	return nil
}

func verdictReply(element string, verdict types.Verdict) string {
	out, _ := json.Marshal(map[string]any{
		"elementen": []map[string]string{{
			"Type_Element":     element,
			"Naleving":         string(verdict),
			"Tijdstempel":      "00:00:05,000 --> 00:00:08,000",
			"Feitelijke_Tekst": "goedemiddag",
			"Opmerking":        "ok",
		}},
	})
	return string(out)
}

func twoRequirements() []types.Requirement {
	return []types.Requirement{
		{CallType: "Regular", ElementType: "Begroeting", SlicePolicy: types.SlicePreVoicelog},
		{CallType: "Regular", ElementType: "Afsluiting", SlicePolicy: types.SlicePostVoicelog},
	}
}

func TestRunTalliesAndFlushesOnce(t *testing.T) {
	llm := &scriptedCompleter{replies: map[string]string{
		"Begroeting": verdictReply("Begroeting", types.VerdictCompliant),
		"Afsluiting": verdictReply("Afsluiting", types.VerdictNonCompliant),
	}}
	store := &memoryRecordStore{}
	a := analysis.NewAnalyzer(llm, store, logger.Discard())

	vid := 2
	tally, err := a.Run(context.Background(), "call.mp3", "judge this", twoRequirements(), linesAtSeconds(1, 2, 3, 4), &vid)
	require.NoError(t, err)

	assert.Equal(t, types.ScoreSummary{Score: 1, CompletedChecks: 2, FailedChecks: 1}, tally)
	require.Len(t, store.records, 2)
	assert.Equal(t, "Begroeting", store.records[0].ElementType)
	assert.Equal(t, types.VerdictCompliant, store.records[0].Verdict)
	assert.Equal(t, types.VerdictNonCompliant, store.records[1].Verdict)

	require.Equal(t, 1, store.scoreCalls)
	assert.Equal(t, tally, store.scores[0])
}

func TestRunSkipsFailedRequirement(t *testing.T) {
	llm := &scriptedCompleter{
		replies: map[string]string{
			"Begroeting": "",
			"Afsluiting": verdictReply("Afsluiting", types.VerdictCompliant),
		},
		errs: map[string]error{"Begroeting": errors.New("judgment timeout")},
	}
	store := &memoryRecordStore{}
	a := analysis.NewAnalyzer(llm, store, logger.Discard())

	vid := 2
	tally, err := a.Run(context.Background(), "call.mp3", "judge this", twoRequirements(), linesAtSeconds(1, 2, 3), &vid)
	require.NoError(t, err)

	// The failed requirement is skipped entirely: no record, no tally bump.
	assert.Equal(t, types.ScoreSummary{Score: 1, CompletedChecks: 1, FailedChecks: 0}, tally)
	require.Len(t, store.records, 1)
	assert.Equal(t, "Afsluiting", store.records[0].ElementType)
	assert.Equal(t, 1, store.scoreCalls)
}

func TestRunSkipsUnparsableJudgment(t *testing.T) {
	llm := &scriptedCompleter{replies: map[string]string{
		"Begroeting": "```json\nnot parseable\n```",
		"Afsluiting": verdictReply("Afsluiting", types.VerdictCompliant),
	}}
	store := &memoryRecordStore{}
	a := analysis.NewAnalyzer(llm, store, logger.Discard())

	vid := 2
	tally, err := a.Run(context.Background(), "call.mp3", "judge this", twoRequirements(), linesAtSeconds(1, 2, 3), &vid)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.CompletedChecks)
	require.Len(t, store.records, 1)
}

func TestRunStoreFailureAborts(t *testing.T) {
	llm := &scriptedCompleter{replies: map[string]string{
		"Begroeting": verdictReply("Begroeting", types.VerdictCompliant),
	}}
	store := &memoryRecordStore{upsertErr: errors.New("disk full")}
	a := analysis.NewAnalyzer(llm, store, logger.Discard())

	vid := 2
	_, err := a.Run(context.Background(), "call.mp3", "judge this",
		[]types.Requirement{{CallType: "Regular", ElementType: "Begroeting", SlicePolicy: types.SlicePreVoicelog}},
		linesAtSeconds(1, 2, 3), &vid)
	require.Error(t, err)
	assert.Zero(t, store.scoreCalls)
}
