package knowledge

import (
	"testing"

	"github.com/bdougie/videorag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segments() []models.VideoSegment {
	return []models.VideoSegment{
		{Index: 0, Start: 0, End: 30, FrameTimes: []float64{0, 10, 20}, Transcript: "welcome to the lecture"},
		{Index: 1, Start: 30, End: 60, FrameTimes: []float64{30, 40, 50}, Transcript: "today we cover graphs"},
		{Index: 2, Start: 60, End: 75.5, Transcript: ""},
	}
}

func TestMergeOneEntryPerCaption(t *testing.T) {
	captions := models.CaptionResult{
		0: "A lecturer stands by a podium.",
		1: "Slides show a node diagram.",
	}
	entries := Merge(captions, segments())
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "Caption:\nA lecturer stands by a podium.\nTranscript:\nwelcome to the lecture\n\n", first.Content)
	assert.Contains(t, first.Content, "Caption:")
	assert.Contains(t, first.Content, "Transcript:")
	assert.Equal(t, "0-30", first.Time)
	assert.Equal(t, "welcome to the lecture", first.Transcript)
	assert.Equal(t, []float64{0, 10, 20}, first.FrameTimes)

	_, ok := entries[2]
	assert.False(t, ok, "segment without a caption is excluded")
}

func TestMergeEmptyTranscript(t *testing.T) {
	entries := Merge(models.CaptionResult{2: "Credits roll."}, segments())
	require.Len(t, entries, 1)

	entry := entries[2]
	assert.Equal(t, "", entry.Transcript)
	assert.Equal(t, "Caption:\nCredits roll.\nTranscript:\n\n\n", entry.Content)
	assert.Equal(t, "60-75.5", entry.Time)
	assert.Equal(t, 60.0, entry.Start)
	assert.Equal(t, 75.5, entry.End)
}

func TestMergeIgnoresCaptionsWithoutSegments(t *testing.T) {
	entries := Merge(models.CaptionResult{9: "orphan"}, segments())
	assert.Empty(t, entries)
}

func TestMergeIsDeterministic(t *testing.T) {
	captions := models.CaptionResult{0: "a", 1: "b", 2: "c"}
	assert.Equal(t, Merge(captions, segments()), Merge(captions, segments()))
}
