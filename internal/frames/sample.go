package frames

import (
	apperrors "github.com/bdougie/videorag/internal/errors"
)

// UniformIndices picks count indices out of [0, total), one from the middle of
// each equal-width slice.
func UniformIndices(total, count int) ([]int, error) {
	if count <= 0 {
		return nil, apperrors.New(apperrors.CodeExtraction, "frame sampler: frame count is zero")
	}
	if count > total {
		return nil, apperrors.Newf(apperrors.CodeExtraction, "frame sampler: %d frames requested, %d available", count, total)
	}
	gap := float64(total) / float64(count)
	indices := make([]int, count)
	for i := range indices {
		indices[i] = int(float64(i)*gap + gap/2)
	}
	return indices, nil
}

// Timestamps converts native frame indices to seconds, offset by base.
func Timestamps(indices []int, fps, base float64) []float64 {
	times := make([]float64, len(indices))
	for i, idx := range indices {
		times[i] = base + float64(idx)/fps
	}
	return times
}

// Linspace returns n evenly spaced values over [start, end), excluding end.
func Linspace(start, end float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	step := (end - start) / float64(n)
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return values
}
