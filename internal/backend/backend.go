// Package backend defines the captioning capability the pipeline talks to.
//
// A Backend turns an ordered list of image and text parts into caption text.
// Concrete implementations live in the ollama, openai and minicpm
// subpackages; the pipeline only ever sees this interface, injected through
// constructors. Backends do not retry: a failed call is reported once as a
// BACKEND_ERROR and the caller decides what to do with it.
package backend

import (
	"context"
	"strings"
	"unicode/utf8"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

// PartType distinguishes the two kinds of prompt content.
type PartType string

const (
	PartImage PartType = "image"
	PartText  PartType = "text"
)

// Part is one element of a multimodal prompt.
type Part struct {
	Type  PartType
	Image []byte // JPEG bytes when Type is PartImage
	Text  string
}

// ImagePart wraps JPEG bytes as a prompt part.
func ImagePart(jpeg []byte) Part {
	return Part{Type: PartImage, Image: jpeg}
}

// TextPart wraps text as a prompt part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// Options is the free-form per-call configuration forwarded to a backend
// (max_tokens, temperature, max_slice_nums, ...).
type Options map[string]any

// Float returns a numeric option, accepting the integer and float types TOML
// and JSON decoders produce.
func (o Options) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Backend is the captioning capability. temporalIDs may be nil; backends that
// cannot use grouped temporal ids ignore them.
type Backend interface {
	Invoke(ctx context.Context, model string, parts []Part, temporalIDs [][]int, opts Options) (string, error)
}

// Accelerator is the handle for backend-side device memory. Release is called
// after synchronous refinement calls to bound peak usage.
type Accelerator interface {
	Release(ctx context.Context) error
}

// NoopAccelerator is used when the backend holds no releasable memory.
type NoopAccelerator struct{}

func (NoopAccelerator) Release(context.Context) error { return nil }

// EndOfText is the marker some local models leave at the end of their output.
const EndOfText = "<|endoftext|>"

// Sanitize strips newlines and end-of-text markers from raw backend output.
// Output that is blank once stripped is rejected.
func Sanitize(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", apperrors.New(apperrors.CodeSanitization, "backend returned invalid UTF-8")
	}
	if strings.ContainsRune(raw, 0) {
		return "", apperrors.New(apperrors.CodeSanitization, "backend returned binary content")
	}
	cleaned := strings.ReplaceAll(raw, "\n", "")
	cleaned = strings.ReplaceAll(cleaned, EndOfText, "")
	if strings.TrimSpace(cleaned) == "" {
		return "", apperrors.New(apperrors.CodeSanitization, "backend returned an empty caption")
	}
	return cleaned, nil
}
