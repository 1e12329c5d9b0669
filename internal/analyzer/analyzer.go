// Package analyzer runs the captioning pipeline over a batch of videos.
//
// Each video gets its own CaptionWorker running in its own goroutine, bounded
// by the configured worker count. Workers never fail each other: a failure or
// panic inside one video becomes an ErrorRecord on the shared ErrorChannel
// and an explicit failed VideoResult, and the siblings keep going.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/knowledge"
	"github.com/bdougie/videorag/internal/models"
)

const defaultWorkers = 4

// Config configures an indexing run.
type Config struct {
	Model    string
	Language string
	Options  backend.Options
	Workers  int
}

// Indexer fans videos out to caption workers.
type Indexer struct {
	source  FrameSource
	backend backend.Backend
	cfg     Config
	logger  *slog.Logger
}

// Report is the outcome of one Run. Results keep the input order.
type Report struct {
	RunID   string
	Results []models.VideoResult
	Errors  []models.ErrorRecord
}

// Failed counts the videos whose worker stopped on an error.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// NewIndexer validates the backend wiring. A missing backend or model is a
// configuration error and no worker is ever started.
func NewIndexer(source FrameSource, b backend.Backend, cfg Config, logger *slog.Logger) (*Indexer, error) {
	if b == nil {
		return nil, apperrors.New(apperrors.CodeConfiguration, "captioning backend is not configured")
	}
	if source == nil {
		return nil, apperrors.New(apperrors.CodeConfiguration, "frame source is not configured")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "caption model name is empty")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{source: source, backend: b, cfg: cfg, logger: logger}, nil
}

// Run captions every video and merges the results into knowledge entries.
// Per-video failures are in the report; the returned error is only set when
// ctx was cancelled.
func (ix *Indexer) Run(ctx context.Context, videos []models.Video) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Results: make([]models.VideoResult, len(videos)),
	}
	logger := ix.logger.With("run_id", report.RunID)
	logger.Info("indexing started", "videos", len(videos), "workers", ix.cfg.Workers)

	errs := NewErrorChannel(len(videos))

	// Plain group, no derived context: one video's failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(ix.cfg.Workers)
	for i, video := range videos {
		g.Go(func() error {
			report.Results[i] = ix.runVideo(ctx, logger.With("video", video.Name), video, errs)
			return nil
		})
	}
	_ = g.Wait()
	errs.Close()
	report.Errors = errs.Drain()

	logger.Info("indexing finished",
		"videos", len(videos),
		"failed", report.Failed(),
	)
	return report, ctx.Err()
}

func (ix *Indexer) runVideo(ctx context.Context, logger *slog.Logger, video models.Video, errs *ErrorChannel) (result models.VideoResult) {
	result = models.VideoResult{
		Video:    video.Name,
		Captions: make(models.CaptionResult, len(video.Segments)),
	}
	defer func() {
		if r := recover(); r != nil {
			result.Err = apperrors.Newf(apperrors.CodeBackend, "video %s: worker panic: %v", video.Name, r)
		}
		if result.Err != nil {
			logger.Error("video failed",
				"error", result.Err,
				"captioned", len(result.Captions),
				"segments", len(video.Segments),
			)
			errs.Report(video.Name, result.Err)
		}
		result.Entries = knowledge.Merge(result.Captions, video.Segments)
	}()

	logger.Info("captioning video", "segments", len(video.Segments))
	worker := NewCaptionWorker(ix.source, ix.backend, WorkerConfig{
		Model:    ix.cfg.Model,
		Language: ix.cfg.Language,
		Options:  ix.cfg.Options,
	}, logger)
	if err := worker.Run(ctx, video, result.Captions); err != nil {
		result.Err = err
		return result
	}
	logger.Info("video captioned", "segments", len(result.Captions))
	return result
}

// String summarizes the report for log lines.
func (r *Report) String() string {
	return fmt.Sprintf("run %s: %d videos, %d failed", r.RunID, len(r.Results), r.Failed())
}
