package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/models"
)

// FrameSource produces the frame set for one segment of a video.
type FrameSource interface {
	SegmentFrames(ctx context.Context, videoPath string, start, end float64) (*models.FrameSet, error)
}

// WorkerConfig holds the per-call settings shared by every segment.
type WorkerConfig struct {
	Model    string
	Language string
	Options  backend.Options
}

// CaptionWorker captions the segments of a single video, one backend call at
// a time.
type CaptionWorker struct {
	source  FrameSource
	backend backend.Backend
	cfg     WorkerConfig
	logger  *slog.Logger
}

func NewCaptionWorker(source FrameSource, b backend.Backend, cfg WorkerConfig, logger *slog.Logger) *CaptionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptionWorker{source: source, backend: b, cfg: cfg, logger: logger}
}

// Run captions video's segments in index order, writing each caption into
// captions as soon as it is available. On error it stops and returns; the
// captions already written stay in the map.
func (w *CaptionWorker) Run(ctx context.Context, video models.Video, captions models.CaptionResult) error {
	segments, err := orderedSegments(video.Segments)
	if err != nil {
		return fmt.Errorf("video %s: %w", video.Name, err)
	}

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("video %s: %w", video.Name, err)
		}
		caption, err := w.captionSegment(ctx, video.Path, seg)
		if err != nil {
			return fmt.Errorf("video %s segment %d: %w", video.Name, seg.Index, err)
		}
		captions[seg.Index] = caption
		w.logger.Debug("segment captioned", "segment", seg.Index, "done", i+1, "total", len(segments))
	}
	return nil
}

func (w *CaptionWorker) captionSegment(ctx context.Context, path string, seg models.VideoSegment) (string, error) {
	set, err := w.source.SegmentFrames(ctx, path, seg.Start, seg.End)
	if err != nil {
		return "", err
	}
	parts := BuildParts(set.Images(), IndexPrompt(seg.Transcript, w.cfg.Language))

	raw, err := w.backend.Invoke(ctx, w.cfg.Model, parts, set.TemporalIDs, w.cfg.Options)
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.Wrap(err, apperrors.CodeBackend, "caption backend")
		}
		return "", err
	}
	return backend.Sanitize(raw)
}

func orderedSegments(segments []models.VideoSegment) ([]models.VideoSegment, error) {
	ordered := make([]models.VideoSegment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Index == ordered[i-1].Index {
			return nil, apperrors.Newf(apperrors.CodeExtraction, "duplicate segment index %d", ordered[i].Index)
		}
	}
	return ordered, nil
}
