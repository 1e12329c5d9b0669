package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Probe is the parsed output from an ffprobe inspection.
type Probe struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes a single stream in the media container.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
}

// Inspect executes ffprobe against path and decodes the JSON response.
func Inspect(ctx context.Context, runner CmdRunner, binary, path string) (Probe, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Probe{}, errors.New("ffprobe inspect: empty path")
	}

	output, err := runner.Run(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Probe{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var probe Probe
	if err := json.Unmarshal(output, &probe); err != nil {
		return Probe{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	if _, ok := probe.VideoStream(); !ok {
		return Probe{}, fmt.Errorf("ffprobe inspect %s: no video stream", path)
	}
	return probe, nil
}

// VideoStream returns the first video stream.
func (p Probe) VideoStream() (ProbeStream, bool) {
	for _, stream := range p.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return ProbeStream{}, false
}

// FPS returns the average frame rate of the video stream, falling back to the
// real base frame rate. Zero when unknown.
func (p Probe) FPS() float64 {
	stream, ok := p.VideoStream()
	if !ok {
		return 0
	}
	if fps := parseRate(stream.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseRate(stream.RFrameRate)
}

// DurationSeconds returns the container duration, or the stream duration when
// the container omits it.
func (p Probe) DurationSeconds() float64 {
	if d := parseFloat(p.Format.Duration); d > 0 {
		return d
	}
	if stream, ok := p.VideoStream(); ok {
		if d := parseFloat(stream.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// FrameCount returns the number of decodable frames, estimated from duration
// and frame rate when the container does not report it.
func (p Probe) FrameCount() int {
	if stream, ok := p.VideoStream(); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(stream.NBFrames)); err == nil && n > 0 {
			return n
		}
	}
	return int(math.Floor(p.DurationSeconds() * p.FPS()))
}

func parseRate(value string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(value), "/")
	if !found {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d <= 0 || n <= 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
