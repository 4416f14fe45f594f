package analysis

import (
	"strings"

	"callaudit/internal/types"
)

// SliceForRequirement selects the transcript lines relevant to one
// requirement according to its slice policy. Until-second slices keep only
// the lines that start at or before the cutoff. A missing voicelog id behaves
// as id 0: pre-voicelog slices come out empty, post-voicelog slices cover the
// whole transcript.
func SliceForRequirement(req types.Requirement, transcript []types.TranscriptLine, voicelogID *int) []types.TranscriptLine {
	vid := 0
	if voicelogID != nil {
		vid = *voicelogID
	}

	switch types.SlicePolicy(strings.TrimSpace(string(req.SlicePolicy))) {
	case types.SliceUntilSecond:
		boundary, ok := firstIDAfterCutoff(transcript, req.SecondsCutoff)
		if !ok {
			return nil
		}
		return filterLines(transcript, func(l types.TranscriptLine) bool { return l.ID < boundary })
	case types.SlicePreVoicelog:
		return filterLines(transcript, func(l types.TranscriptLine) bool { return l.ID < vid })
	default:
		return filterLines(transcript, func(l types.TranscriptLine) bool { return l.ID >= vid })
	}
}

// firstIDAfterCutoff returns the id of the first line (in sequence order)
// whose start offset exceeds the cutoff. Lines with unparsable timestamps are
// skipped.
func firstIDAfterCutoff(transcript []types.TranscriptLine, cutoff int) (int, bool) {
	for _, line := range transcript {
		secs, err := line.Seconds()
		if err != nil {
			continue
		}
		if secs > cutoff {
			return line.ID, true
		}
	}
	return 0, false
}

func filterLines(lines []types.TranscriptLine, keep func(types.TranscriptLine) bool) []types.TranscriptLine {
	var out []types.TranscriptLine
	for _, l := range lines {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
