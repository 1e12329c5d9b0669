package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantStart float64
		wantEnd   float64
		wantErr   bool
	}{
		{name: "plain range", value: "30-60", wantStart: 30, wantEnd: 60},
		{name: "fractional", value: "12.5-40.25", wantStart: 12.5, wantEnd: 40.25},
		{name: "segment name", value: "7-210-240", wantStart: 210, wantEnd: 240},
		{name: "missing end", value: "30", wantErr: true},
		{name: "not a number", value: "a-b", wantErr: true},
		{name: "reversed", value: "60-30", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseTimeRange(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestFormatTimeRangeRoundTrip(t *testing.T) {
	seg := VideoSegment{Start: 0, End: 30.5}
	assert.Equal(t, "0-30.5", seg.TimeRange())

	start, end, err := ParseTimeRange(seg.TimeRange())
	require.NoError(t, err)
	assert.Equal(t, seg.Start, start)
	assert.Equal(t, seg.End, end)
}

func TestFrameSetIDsFlattenGroups(t *testing.T) {
	fs := &FrameSet{TemporalIDs: [][]int{{0, 5, 10}, {15, 20, 25}, {30}}}
	assert.Equal(t, []int{0, 5, 10, 15, 20, 25, 30}, fs.IDs())
}

func TestSegmentID(t *testing.T) {
	assert.Equal(t, "my_trip_3", SegmentID("my_trip", 3))
	assert.Equal(t, "lecture_0", SegmentID("lecture", 0))
}
