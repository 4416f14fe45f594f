package voicelog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/types"
	"callaudit/internal/voicelog"
)

type fixedCompleter struct {
	content string
	err     error
}

func (c fixedCompleter) Complete(context.Context, []judgment.Message) (string, error) {
	return c.content, c.err
}

var transcript = []types.TranscriptLine{
	{ID: 1, Timestamp: "00:00:01,000 --> 00:00:03,000", Text: "goedemiddag"},
	{ID: 2, Timestamp: "00:00:04,000 --> 00:00:06,000", Text: "dit gesprek wordt opgenomen"},
}

func TestDetectSingleObjectResult(t *testing.T) {
	llm := fixedCompleter{content: `{"result":[{"ID":2,"Voicelog_gevonden":"ja","Rationale":"announcement at line 2"}]}`}
	d := voicelog.NewDetector(llm, logger.Discard())

	det, err := d.Detect(context.Background(), "find the voicelog", transcript)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
	assert.Equal(t, float64(2), det.Candidates[0].ID)
	assert.Equal(t, "ja", det.Candidates[0].VoicelogFound)
}

func TestDetectArrayOfResultObjects(t *testing.T) {
	llm := fixedCompleter{content: `[{"result":[{"ID":"2","Voicelog_gevonden":"ja","Rationale":"a"}]},{"result":[{"ID":"5","Voicelog_gevonden":"nee","Rationale":"b"}]}]`}
	d := voicelog.NewDetector(llm, logger.Discard())

	det, err := d.Detect(context.Background(), "find the voicelog", transcript)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 2)
	assert.Equal(t, "2", det.Candidates[0].ID)
	assert.Equal(t, "5", det.Candidates[1].ID)
}

func TestDetectFiltersEntriesMissingKeys(t *testing.T) {
	llm := fixedCompleter{content: `{"result":[{"ID":3,"Rationale":"missing verdict"},{"note":"noise"},{"ID":4,"Voicelog_gevonden":"ja","Rationale":"ok"}]}`}
	d := voicelog.NewDetector(llm, logger.Discard())

	det, err := d.Detect(context.Background(), "find the voicelog", transcript)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
	assert.Equal(t, float64(4), det.Candidates[0].ID)
}

func TestDetectNoUsableCandidatesKeepsRawResponse(t *testing.T) {
	raw := `{"result":[]}`
	llm := fixedCompleter{content: raw}
	d := voicelog.NewDetector(llm, logger.Discard())

	det, err := d.Detect(context.Background(), "find the voicelog", transcript)
	require.NoError(t, err)
	assert.Empty(t, det.Candidates)
	assert.Equal(t, raw, det.RawResponse)
}

func TestDetectFencedResponse(t *testing.T) {
	llm := fixedCompleter{content: "```json\n{\"result\":[{\"ID\":1,\"Voicelog_gevonden\":\"ja\",\"Rationale\":\"r\"}]}\n```"}
	d := voicelog.NewDetector(llm, logger.Discard())

	det, err := d.Detect(context.Background(), "find the voicelog", transcript)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
}
