package analyzer

import (
	"fmt"

	"github.com/bdougie/videorag/internal/backend"
)

const defaultLanguage = "English"

// IndexPrompt is the instruction sent with every segment at indexing time.
func IndexPrompt(transcript, language string) string {
	if language == "" {
		language = defaultLanguage
	}
	return fmt.Sprintf("The transcript of the current video:\n%s.\nNow provide a description (caption) of the video in %s.", transcript, language)
}

// RefinePrompt is the query-conditioned instruction used when re-captioning a
// retrieved segment.
func RefinePrompt(transcript, language, hint string) string {
	if language == "" {
		language = defaultLanguage
	}
	return fmt.Sprintf("The transcript of the current video:\n%s.\nNow provide a very detailed description (caption) of the video in %s and extract relevant information about: %s", transcript, language, hint)
}

// BuildParts orders the frames first and the instruction text last.
func BuildParts(images [][]byte, text string) []backend.Part {
	parts := make([]backend.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, backend.ImagePart(img))
	}
	return append(parts, backend.TextPart(text))
}
