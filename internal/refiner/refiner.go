// Package refiner re-captions retrieved segments at query time, conditioned
// on a natural-language hint about what the query is looking for.
package refiner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bdougie/videorag/internal/analyzer"
	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/knowledge"
	"github.com/bdougie/videorag/internal/models"
)

const defaultNumFrames = 15

// SegmentLookup resolves a stored segment and the path of its source video.
type SegmentLookup interface {
	LookupSegment(ctx context.Context, video string, index int) (string, models.VideoSegment, error)
}

// FrameSampler decodes n evenly spaced frames from [start, end) of a video.
type FrameSampler interface {
	FramesAt(ctx context.Context, videoPath string, start, end float64, n int) ([]models.Frame, error)
}

// Config configures refinement calls.
type Config struct {
	Model     string
	Language  string
	NumFrames int
	Options   backend.Options
}

// Refiner runs one synchronous backend call per segment and releases the
// accelerator after each.
type Refiner struct {
	lookup  SegmentLookup
	frames  FrameSampler
	backend backend.Backend
	accel   backend.Accelerator
	cfg     Config
	logger  *slog.Logger
}

// New wires a Refiner. A nil accelerator means there is nothing to release.
func New(lookup SegmentLookup, frames FrameSampler, b backend.Backend, accel backend.Accelerator, cfg Config, logger *slog.Logger) (*Refiner, error) {
	if b == nil {
		return nil, apperrors.New(apperrors.CodeConfiguration, "captioning backend is not configured")
	}
	if lookup == nil || frames == nil {
		return nil, apperrors.New(apperrors.CodeConfiguration, "refiner needs a segment lookup and a frame sampler")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "refine model name is empty")
	}
	if cfg.NumFrames <= 0 {
		cfg.NumFrames = defaultNumFrames
	}
	if accel == nil {
		accel = backend.NoopAccelerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{lookup: lookup, frames: frames, backend: b, accel: accel, cfg: cfg, logger: logger}, nil
}

// ParseSegmentID splits "{video}_{index}". The video name may contain
// underscores; the index follows the last one.
func ParseSegmentID(id string) (string, int, error) {
	cut := strings.LastIndex(id, "_")
	if cut <= 0 || cut == len(id)-1 {
		return "", 0, fmt.Errorf("segment id %q: expected <video>_<index>", id)
	}
	index, err := strconv.Atoi(id[cut+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("segment id %q: bad index", id)
	}
	return id[:cut], index, nil
}

// Refine returns the refreshed knowledge content for one retrieved segment.
func (r *Refiner) Refine(ctx context.Context, segmentID, hint string) (string, error) {
	video, index, err := ParseSegmentID(segmentID)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeExtraction, "refine")
	}
	path, seg, err := r.lookup.LookupSegment(ctx, video, index)
	if err != nil {
		return "", fmt.Errorf("refine %s: %w", segmentID, err)
	}

	defer func() {
		if err := r.accel.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("accelerator release failed", "segment", segmentID, "error", err)
		}
	}()

	frames, err := r.frames.FramesAt(ctx, path, seg.Start, seg.End, r.cfg.NumFrames)
	if err != nil {
		return "", fmt.Errorf("refine %s: %w", segmentID, err)
	}
	images := make([][]byte, len(frames))
	for i, frame := range frames {
		images[i] = frame.Image
	}
	parts := analyzer.BuildParts(images, analyzer.RefinePrompt(seg.Transcript, r.cfg.Language, hint))

	raw, err := r.backend.Invoke(ctx, r.cfg.Model, parts, nil, r.cfg.Options)
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.Wrap(err, apperrors.CodeBackend, "refine backend")
		}
		return "", fmt.Errorf("refine %s: %w", segmentID, err)
	}
	caption, err := backend.Sanitize(raw)
	if err != nil {
		return "", fmt.Errorf("refine %s: %w", segmentID, err)
	}

	r.logger.Debug("segment refined", "segment", segmentID, "frames", len(frames))
	return knowledge.FormatContent(caption, seg.Transcript), nil
}

// RefineAll refines ids one after another. Segments that fail are left out of
// the result and their errors are joined.
func (r *Refiner) RefineAll(ctx context.Context, ids []string, hint string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	var errs []error
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		content, err := r.Refine(ctx, id, hint)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[id] = content
	}
	return out, errors.Join(errs...)
}
