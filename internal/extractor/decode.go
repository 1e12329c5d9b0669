package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const framePattern = "frame_%04d.jpg"

// decodeRequest selects native frames out of a window of a video file.
type decodeRequest struct {
	path    string
	seek    float64 // seconds; frame index 0 is the first frame at or after seek
	length  float64 // seconds; 0 reads to the end
	indices []int
	width   int
	height  int
	dir     string
}

// decodeFrames runs ffmpeg once, writing the selected frames as JPEG files
// into req.dir, and returns their bytes in index order.
func decodeFrames(ctx context.Context, runner CmdRunner, binary string, req decodeRequest) ([][]byte, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y"}
	if req.seek > 0 {
		args = append(args, "-ss", formatSeconds(req.seek))
	}
	if req.length > 0 {
		args = append(args, "-t", formatSeconds(req.length))
	}
	args = append(args,
		"-i", req.path,
		"-vf", frameFilter(req.indices, req.width, req.height),
		"-fps_mode", "vfr",
		"-q:v", "2",
		filepath.Join(req.dir, framePattern),
	)

	output, err := runner.Run(ctx, binary, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, strings.TrimSpace(string(output)))
	}

	files, err := os.ReadDir(req.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory '%s': %w", req.dir, err)
	}
	var names []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(strings.ToLower(file.Name()), ".jpg") {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	images := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(req.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read frame '%s': %w", name, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// frameFilter builds "select='eq(n\,a)+eq(n\,b)',scale=w:h". Commas inside the
// select expression are escaped for the filtergraph parser.
func frameFilter(indices []int, width, height int) string {
	var b strings.Builder
	b.WriteString("select=")
	for i, idx := range indices {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteString(`eq(n\,`)
		b.WriteString(strconv.Itoa(idx))
		b.WriteByte(')')
	}
	if width > 0 && height > 0 {
		fmt.Fprintf(&b, ",scale=%d:%d", width, height)
	}
	return b.String()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
