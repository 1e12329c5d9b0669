package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

// WithSubclip re-encodes [start, end) of src into a transient clip and hands
// its path to fn. The clip and its directory are removed before WithSubclip
// returns, whether fn succeeds, fails or panics.
func (e *Extractor) WithSubclip(ctx context.Context, src string, start, end float64, fn func(clipPath string) error) error {
	if end <= start || start < 0 {
		return apperrors.Newf(apperrors.CodeExtraction, "subclip %s: bad time range %v-%v", src, start, end)
	}
	dir, err := os.MkdirTemp(e.opts.TempDir, "subclip-*")
	if err != nil {
		return fmt.Errorf("create subclip directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("subclip cleanup failed", "dir", dir, "error", err)
		}
	}()

	clip := filepath.Join(dir, "clip.mp4")
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(end - start),
		"-map", "0:v:0",
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		clip,
	}
	output, err := e.runner.Run(ctx, e.ffmpeg(), args...)
	if err != nil {
		return apperrors.Wrap(
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))),
			apperrors.CodeExtraction,
			fmt.Sprintf("subclip %s %s", src, formatRange(start, end)),
		)
	}
	if _, err := os.Stat(clip); err != nil {
		return apperrors.Wrap(err, apperrors.CodeExtraction, "subclip was not written")
	}

	e.logger.Debug("subclip materialized", "source", src, "range", formatRange(start, end), "clip", clip)
	return fn(clip)
}

func formatRange(start, end float64) string {
	return formatSeconds(start) + "-" + formatSeconds(end)
}
