// Package knowledge merges captions with transcripts and timing into the
// per-segment records handed to the indexing collaborator.
package knowledge

import (
	"github.com/bdougie/videorag/internal/models"
)

// FormatContent renders the text block that is embedded and retrieved.
func FormatContent(caption, transcript string) string {
	return "Caption:\n" + caption + "\nTranscript:\n" + transcript + "\n\n"
}

// Entry builds the knowledge entry for one segment.
func Entry(caption string, seg models.VideoSegment) models.KnowledgeEntry {
	return models.KnowledgeEntry{
		Content:    FormatContent(caption, seg.Transcript),
		Time:       seg.TimeRange(),
		Start:      seg.Start,
		End:        seg.End,
		Caption:    caption,
		Transcript: seg.Transcript,
		FrameTimes: seg.FrameTimes,
	}
}

// Merge returns one entry per segment that has a caption. Segments without a
// caption (the worker failed before reaching them) are left out.
func Merge(captions models.CaptionResult, segments []models.VideoSegment) map[int]models.KnowledgeEntry {
	entries := make(map[int]models.KnowledgeEntry, len(captions))
	for _, seg := range segments {
		caption, ok := captions[seg.Index]
		if !ok {
			continue
		}
		entries[seg.Index] = Entry(caption, seg)
	}
	return entries
}
