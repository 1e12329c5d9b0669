// Package frames holds the pure frame-selection math used before any video is
// decoded: how many frames a segment gets, which native frames are picked, and
// how their timestamps are snapped onto the temporal id scale.
package frames

import (
	"math"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

// Default caps used by the MiniCPM-V family of captioning models.
const (
	DefaultMaxFrames  = 180
	DefaultMaxPacking = 3
	DefaultTimeScale  = 0.1
)

// Limits are the global frame budget caps.
type Limits struct {
	MaxFrames  int
	MaxPacking int
}

// DefaultLimits returns the stock caps.
func DefaultLimits() Limits {
	return Limits{MaxFrames: DefaultMaxFrames, MaxPacking: DefaultMaxPacking}
}

// Plan is the outcome of budgeting one clip.
type Plan struct {
	FrameCount int
	Packing    int
}

// BudgetInput describes the clip being budgeted.
type BudgetInput struct {
	Duration     float64 // seconds
	Rate         float64 // desired frames per second
	NativeFPS    float64
	Available    int // native frames that can actually be decoded
	ForcePacking int // 0 disables the override
}

// PlanBudget computes how many frames to extract and how many frames share one
// packing group. The frame count never exceeds in.Available, so every plan can
// be satisfied by unique native frame indices.
func PlanBudget(in BudgetInput, limits Limits) (Plan, error) {
	if limits.MaxFrames <= 0 || limits.MaxPacking <= 0 {
		return Plan{}, apperrors.Newf(apperrors.CodeConfiguration, "frame budget: invalid limits %+v", limits)
	}
	if in.Duration <= 0 || math.IsNaN(in.Duration) {
		return Plan{}, apperrors.Newf(apperrors.CodeExtraction, "frame budget: invalid duration %v", in.Duration)
	}
	if in.Rate <= 0 {
		return Plan{}, apperrors.Newf(apperrors.CodeExtraction, "frame budget: invalid sampling rate %v", in.Rate)
	}
	if in.Available <= 0 {
		return Plan{}, apperrors.New(apperrors.CodeExtraction, "frame budget: no decodable frames")
	}

	maxFrames := float64(limits.MaxFrames)
	demand := in.Rate * in.Duration

	var plan Plan
	if demand <= maxFrames {
		plan.Packing = 1
		perSecond := math.Min(in.Rate, math.RoundToEven(in.NativeFPS))
		plan.FrameCount = int(math.RoundToEven(perSecond * math.Min(maxFrames, in.Duration)))
	} else {
		plan.Packing = int(math.Ceil(demand / maxFrames))
		if plan.Packing <= limits.MaxPacking {
			plan.FrameCount = int(math.RoundToEven(demand))
		} else {
			plan.Packing = limits.MaxPacking
			plan.FrameCount = limits.MaxFrames * limits.MaxPacking
		}
	}

	if in.ForcePacking > 0 {
		plan.Packing = min(in.ForcePacking, limits.MaxPacking)
	}
	if plan.FrameCount > in.Available {
		plan.FrameCount = in.Available
	}
	if plan.FrameCount <= 0 {
		return Plan{}, apperrors.Newf(apperrors.CodeExtraction,
			"frame budget: zero-frame plan (duration=%v rate=%v fps=%v)", in.Duration, in.Rate, in.NativeFPS)
	}
	return plan, nil
}
