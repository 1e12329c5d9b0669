package frames

import (
	"math"
	"sort"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

// Scale is the fixed discretized time axis: 0, step, 2*step, ... below duration.
type Scale struct {
	step   float64
	values []float64
}

// NewScale builds the time scale for a clip of the given duration.
func NewScale(duration, step float64) (*Scale, error) {
	if step <= 0 || math.IsNaN(step) {
		return nil, apperrors.Newf(apperrors.CodeConfiguration, "time scale: invalid step %v", step)
	}
	n := 1
	if duration > 0 {
		n = max(1, int(math.Ceil(duration/step)))
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) * step
	}
	return &Scale{step: step, values: values}, nil
}

// Len returns the number of points on the scale.
func (s *Scale) Len() int {
	return len(s.values)
}

// Nearest returns the id of the scale point closest to t. Ties resolve to the
// lower point; values outside the scale clamp to its ends.
func (s *Scale) Nearest(t float64) int {
	i := sort.SearchFloat64s(s.values, t)
	switch {
	case i == 0:
		return 0
	case i == len(s.values):
		return len(s.values) - 1
	}
	if t-s.values[i-1] <= s.values[i]-t {
		return i - 1
	}
	return i
}

// Quantize maps every timestamp onto its nearest scale id.
func Quantize(timestamps []float64, duration, step float64) ([]int, error) {
	scale, err := NewScale(duration, step)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(timestamps))
	for i, t := range timestamps {
		ids[i] = scale.Nearest(t)
	}
	return ids, nil
}

// Group splits ids into consecutive chunks of at most size; only the last chunk
// may be shorter.
func Group(ids []int, size int) [][]int {
	if size < 1 {
		size = 1
	}
	groups := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		group := make([]int, end-start)
		copy(group, ids[start:end])
		groups = append(groups, group)
	}
	return groups
}

// TemporalIDs quantizes clip-relative timestamps and packs them into groups.
func TemporalIDs(timestamps []float64, duration, step float64, packing int) ([][]int, error) {
	ids, err := Quantize(timestamps, duration, step)
	if err != nil {
		return nil, err
	}
	return Group(ids, packing), nil
}
