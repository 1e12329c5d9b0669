package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/frames"
	"github.com/bdougie/videorag/internal/models"
)

// Mode selects how segment frames are pulled out of a video.
type Mode string

const (
	// ModeFullVideo samples straight from the source using absolute timestamps.
	ModeFullVideo Mode = "full"
	// ModeSubclip re-encodes each segment into a transient clip and samples from it.
	ModeSubclip Mode = "subclip"
)

// Options configures frame extraction.
type Options struct {
	Mode         Mode
	SamplingRate float64
	Limits       frames.Limits
	TimeScale    float64
	ForcePacking int
	Width        int
	Height       int
	FFmpeg       string
	FFprobe      string
	TempDir      string
}

// Extractor turns video segments into frame sets.
type Extractor struct {
	runner CmdRunner
	opts   Options
	logger *slog.Logger
	probes sync.Map // source path -> Probe
}

// New creates an Extractor. A nil runner uses os/exec.
func New(opts Options, runner CmdRunner, logger *slog.Logger) *Extractor {
	if runner == nil {
		runner = NewCmdRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = ModeFullVideo
	}
	if opts.Limits == (frames.Limits{}) {
		opts.Limits = frames.DefaultLimits()
	}
	if opts.TimeScale <= 0 {
		opts.TimeScale = frames.DefaultTimeScale
	}
	return &Extractor{runner: runner, opts: opts, logger: logger}
}

// SegmentFrames samples the segment [start, end) of videoPath, budgeting and
// quantizing according to the configured options.
func (e *Extractor) SegmentFrames(ctx context.Context, videoPath string, start, end float64) (*models.FrameSet, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExtraction, fmt.Sprintf("video file does not exist at path: '%s'", videoPath))
	}
	if start < 0 || end <= start {
		return nil, apperrors.Newf(apperrors.CodeExtraction, "bad time range %v-%v", start, end)
	}

	switch e.opts.Mode {
	case ModeSubclip:
		var set *models.FrameSet
		err := e.WithSubclip(ctx, videoPath, start, end, func(clip string) error {
			probe, err := e.inspect(ctx, clip)
			if err != nil {
				return err
			}
			length := probe.DurationSeconds()
			if length <= 0 {
				length = end - start
			}
			set, err = e.sample(ctx, clipWindow{
				path:      clip,
				length:    length,
				fps:       probe.FPS(),
				available: probe.FrameCount(),
				base:      start,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return set, nil
	case ModeFullVideo:
		probe, err := e.cachedProbe(ctx, videoPath)
		if err != nil {
			return nil, err
		}
		window, err := fullWindow(videoPath, probe, start, end)
		if err != nil {
			return nil, err
		}
		return e.sample(ctx, window)
	default:
		return nil, apperrors.Newf(apperrors.CodeConfiguration, "unknown extraction mode %q", e.opts.Mode)
	}
}

// FramesAt decodes n frames evenly spaced over [start, end) of videoPath, end
// excluded. It bypasses the frame budget; the refiner chooses n directly.
func (e *Extractor) FramesAt(ctx context.Context, videoPath string, start, end float64, n int) ([]models.Frame, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExtraction, fmt.Sprintf("video file does not exist at path: '%s'", videoPath))
	}
	if start < 0 || end <= start {
		return nil, apperrors.Newf(apperrors.CodeExtraction, "bad time range %v-%v", start, end)
	}
	probe, err := e.cachedProbe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	window, err := fullWindow(videoPath, probe, start, end)
	if err != nil {
		return nil, err
	}
	n = min(n, window.available)
	if n <= 0 {
		return nil, apperrors.New(apperrors.CodeExtraction, "frame sampler: frame count is zero")
	}

	var indices []int
	last := -1
	for _, t := range frames.Linspace(window.base, window.base+window.length, n) {
		idx := min(int(math.Floor((t-window.base)*window.fps)), window.available-1)
		if idx > last {
			indices = append(indices, idx)
			last = idx
		}
	}
	return e.decode(ctx, window, indices)
}

type clipWindow struct {
	path      string
	seek      float64
	length    float64
	fps       float64
	available int
	base      float64 // absolute time of native index 0
}

func fullWindow(path string, probe Probe, start, end float64) (clipWindow, error) {
	duration := probe.DurationSeconds()
	fps := probe.FPS()
	if fps <= 0 || duration <= 0 {
		return clipWindow{}, apperrors.Newf(apperrors.CodeExtraction, "video %s is not decodable (fps=%v duration=%v)", path, fps, duration)
	}
	if start >= duration {
		return clipWindow{}, apperrors.Newf(apperrors.CodeExtraction, "bad time range %v-%v: video is %.3fs long", start, end, duration)
	}
	end = math.Min(end, duration)
	available := int(math.Floor((end - start) * fps))
	if total := probe.FrameCount(); total > 0 {
		available = min(available, total-int(math.Floor(start*fps)))
	}
	return clipWindow{
		path:      path,
		seek:      start,
		length:    end - start,
		fps:       fps,
		available: available,
		base:      start,
	}, nil
}

func (e *Extractor) sample(ctx context.Context, w clipWindow) (*models.FrameSet, error) {
	if w.fps <= 0 {
		return nil, apperrors.Newf(apperrors.CodeExtraction, "video %s is not decodable: unknown frame rate", w.path)
	}
	plan, err := frames.PlanBudget(frames.BudgetInput{
		Duration:     w.length,
		Rate:         e.opts.SamplingRate,
		NativeFPS:    w.fps,
		Available:    w.available,
		ForcePacking: e.opts.ForcePacking,
	}, e.opts.Limits)
	if err != nil {
		return nil, err
	}
	indices, err := frames.UniformIndices(w.available, plan.FrameCount)
	if err != nil {
		return nil, err
	}

	decoded, err := e.decode(ctx, w, indices)
	if err != nil {
		return nil, err
	}

	relative := make([]float64, len(decoded))
	for i, frame := range decoded {
		relative[i] = frame.Timestamp - w.base
	}
	groups, err := frames.TemporalIDs(relative, w.length, e.opts.TimeScale, plan.Packing)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("segment frames sampled",
		"path", w.path,
		"frames", len(decoded),
		"packing", plan.Packing,
		"groups", len(groups),
	)
	return &models.FrameSet{Frames: decoded, TemporalIDs: groups, Packing: plan.Packing}, nil
}

func (e *Extractor) decode(ctx context.Context, w clipWindow, indices []int) ([]models.Frame, error) {
	dir, err := os.MkdirTemp(e.opts.TempDir, "frames-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	defer os.RemoveAll(dir)

	images, err := decodeFrames(ctx, e.runner, e.ffmpeg(), decodeRequest{
		path:    w.path,
		seek:    w.seek,
		length:  w.length,
		indices: indices,
		width:   e.opts.Width,
		height:  e.opts.Height,
		dir:     dir,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExtraction, fmt.Sprintf("decode %s", w.path))
	}
	if len(images) == 0 {
		return nil, apperrors.Newf(apperrors.CodeExtraction, "decode %s: no frames produced", w.path)
	}
	if len(images) > len(indices) {
		return nil, apperrors.Newf(apperrors.CodeExtraction, "decode %s: %d frames for %d indices", w.path, len(images), len(indices))
	}
	if len(images) < len(indices) {
		// Trailing frames past the real end of stream; the decoded prefix still lines up.
		e.logger.Warn("fewer frames decoded than requested", "path", w.path, "requested", len(indices), "decoded", len(images))
		indices = indices[:len(images)]
	}

	timestamps := frames.Timestamps(indices, w.fps, w.base)
	out := make([]models.Frame, len(images))
	for i, img := range images {
		out[i] = models.Frame{Index: indices[i], Timestamp: timestamps[i], Image: img}
	}
	return out, nil
}

func (e *Extractor) cachedProbe(ctx context.Context, path string) (Probe, error) {
	if cached, ok := e.probes.Load(path); ok {
		return cached.(Probe), nil
	}
	probe, err := e.inspect(ctx, path)
	if err != nil {
		return Probe{}, err
	}
	e.probes.Store(path, probe)
	return probe, nil
}

func (e *Extractor) inspect(ctx context.Context, path string) (Probe, error) {
	probe, err := Inspect(ctx, e.runner, e.opts.FFprobe, path)
	if err != nil {
		return Probe{}, apperrors.Wrap(err, apperrors.CodeExtraction, fmt.Sprintf("video %s is not decodable", path))
	}
	return probe, nil
}

func (e *Extractor) ffmpeg() string {
	if e.opts.FFmpeg == "" {
		return "ffmpeg"
	}
	return e.opts.FFmpeg
}
