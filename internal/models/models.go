package models

import (
	"fmt"
	"strconv"
	"strings"
)

// VideoSegment is a time-bounded portion of a video with its transcript
type VideoSegment struct {
	Index      int       `json:"index" yaml:"index"`
	Start      float64   `json:"start" yaml:"start"`
	End        float64   `json:"end" yaml:"end"`
	FrameTimes []float64 `json:"frame_times" yaml:"frame_times"`
	Transcript string    `json:"transcript" yaml:"transcript"`
}

// TimeRange returns the segment's "start-end" range string
func (s VideoSegment) TimeRange() string {
	return FormatTimeRange(s.Start, s.End)
}

// Video is a registered source video and its segments
type Video struct {
	Name     string
	Path     string
	Segments []VideoSegment
}

// Frame is one decoded JPEG image taken from a video
type Frame struct {
	Index     int     // native frame index relative to the decoded clip
	Timestamp float64 // absolute seconds in the source video
	Image     []byte
}

// FrameSet pairs sampled frames 1:1 with quantized temporal ids
type FrameSet struct {
	Frames      []Frame
	TemporalIDs [][]int
	Packing     int
}

// IDs flattens the temporal id groups back into one ordered sequence
func (fs *FrameSet) IDs() []int {
	var ids []int
	for _, group := range fs.TemporalIDs {
		ids = append(ids, group...)
	}
	return ids
}

// Images returns the JPEG payloads in frame order
func (fs *FrameSet) Images() [][]byte {
	images := make([][]byte, len(fs.Frames))
	for i, frame := range fs.Frames {
		images[i] = frame.Image
	}
	return images
}

// CaptionResult maps a segment index to its sanitized caption
type CaptionResult map[int]string

// KnowledgeEntry is the per-segment record handed to the indexing collaborator
type KnowledgeEntry struct {
	Content    string    `json:"content"`
	Time       string    `json:"time"`
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Caption    string    `json:"caption"`
	Transcript string    `json:"transcript"`
	FrameTimes []float64 `json:"frame_times"`
}

// ErrorRecord is a failure message tagged with the owning video
type ErrorRecord struct {
	Video   string `json:"video"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("video %s: %s", r.Video, r.Message)
}

// VideoResult is the outcome of captioning one video. Captions and Entries hold
// whatever was completed, even when Err is set.
type VideoResult struct {
	Video    string
	Captions CaptionResult
	Entries  map[int]KnowledgeEntry
	Err      error
}

// Failed reports whether the video's worker stopped on an error
func (r VideoResult) Failed() bool {
	return r.Err != nil
}

// FormatTimeRange renders a "start-end" range string
func FormatTimeRange(start, end float64) string {
	return strconv.FormatFloat(start, 'f', -1, 64) + "-" + strconv.FormatFloat(end, 'f', -1, 64)
}

// ParseTimeRange parses a "start-end" range. Longer segment names such as
// "3-120-150" are accepted and the last two fields are used.
func ParseTimeRange(value string) (float64, float64, error) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("time range %q: expected start-end", value)
	}
	parts = parts[len(parts)-2:]
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("time range %q: start: %w", value, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("time range %q: end: %w", value, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("time range %q: end before start", value)
	}
	return start, end, nil
}

// SearchResult is one segment returned by a similarity search
type SearchResult struct {
	SegmentID  string  `json:"segment_id"`
	Video      string  `json:"video"`
	Index      int     `json:"index"`
	Time       string  `json:"time"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// SegmentID renders the retrieval identifier "{video}_{index}"
func SegmentID(video string, index int) string {
	return video + "_" + strconv.Itoa(index)
}
