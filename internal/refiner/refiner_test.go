package refiner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup map[string]models.VideoSegment

func (l fakeLookup) LookupSegment(_ context.Context, video string, index int) (string, models.VideoSegment, error) {
	seg, ok := l[fmt.Sprintf("%s_%d", video, index)]
	if !ok {
		return "", models.VideoSegment{}, fmt.Errorf("segment %s_%d not found", video, index)
	}
	return "/videos/" + video + ".mp4", seg, nil
}

type fakeSampler struct {
	calls []string
	err   error
}

func (s *fakeSampler) FramesAt(_ context.Context, path string, start, end float64, n int) ([]models.Frame, error) {
	s.calls = append(s.calls, fmt.Sprintf("%s %v-%v n=%d", path, start, end, n))
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Frame, n)
	for i := range out {
		out[i] = models.Frame{Index: i, Timestamp: start + float64(i), Image: []byte{byte(i)}}
	}
	return out, nil
}

type fakeBackend struct {
	parts []backend.Part
	model string
	reply string
	err   error
}

func (b *fakeBackend) Invoke(_ context.Context, model string, parts []backend.Part, temporalIDs [][]int, _ backend.Options) (string, error) {
	b.model = model
	b.parts = parts
	return b.reply, b.err
}

type countingAccelerator struct {
	releases int
}

func (a *countingAccelerator) Release(context.Context) error {
	a.releases++
	return nil
}

func lookup() fakeLookup {
	return fakeLookup{
		"my_trip_2024_3": {Index: 3, Start: 90, End: 120, Transcript: "we reached the summit"},
		"lecture_0":      {Index: 0, Start: 0, End: 30, Transcript: ""},
	}
}

func TestParseSegmentID(t *testing.T) {
	tests := []struct {
		id      string
		video   string
		index   int
		wantErr bool
	}{
		{id: "lecture_0", video: "lecture", index: 0},
		{id: "my_trip_2024_3", video: "my_trip_2024", index: 3},
		{id: "lecture", wantErr: true},
		{id: "_3", wantErr: true},
		{id: "lecture_", wantErr: true},
		{id: "lecture_x", wantErr: true},
		{id: "lecture_-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			video, index, err := ParseSegmentID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.video, video)
			assert.Equal(t, tt.index, index)
		})
	}
}

func TestRefine(t *testing.T) {
	sampler := &fakeSampler{}
	b := &fakeBackend{reply: "Two hikers plant a flag.\n<|endoftext|>"}
	accel := &countingAccelerator{}

	r, err := New(lookup(), sampler, b, accel, Config{Model: "MiniCPM-V-2_6", NumFrames: 4}, nil)
	require.NoError(t, err)

	content, err := r.Refine(context.Background(), "my_trip_2024_3", "the flag color")
	require.NoError(t, err)
	assert.Equal(t, "Caption:\nTwo hikers plant a flag.\nTranscript:\nwe reached the summit\n\n", content)

	assert.Equal(t, []string{"/videos/my_trip_2024.mp4 90-120 n=4"}, sampler.calls)
	assert.Equal(t, "MiniCPM-V-2_6", b.model)
	require.Len(t, b.parts, 5)
	assert.Equal(t, backend.PartText, b.parts[4].Type)
	assert.Contains(t, b.parts[4].Text, "extract relevant information about: the flag color")
	assert.Contains(t, b.parts[4].Text, "in English")
	assert.Equal(t, 1, accel.releases)
}

func TestRefineReleasesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		sampler *fakeSampler
		backend *fakeBackend
		code    string
	}{
		{
			name:    "extraction",
			sampler: &fakeSampler{err: apperrors.New(apperrors.CodeExtraction, "undecodable")},
			backend: &fakeBackend{reply: "x"},
			code:    apperrors.CodeExtraction,
		},
		{
			name:    "backend",
			sampler: &fakeSampler{},
			backend: &fakeBackend{err: errors.New("CUDA out of memory")},
			code:    apperrors.CodeBackend,
		},
		{
			name:    "sanitization",
			sampler: &fakeSampler{},
			backend: &fakeBackend{reply: "bad\x00bytes"},
			code:    apperrors.CodeSanitization,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accel := &countingAccelerator{}
			r, err := New(lookup(), tt.sampler, tt.backend, accel, Config{Model: "m"}, nil)
			require.NoError(t, err)

			_, err = r.Refine(context.Background(), "lecture_0", "hint")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, 1, accel.releases)
		})
	}
}

func TestRefineAll(t *testing.T) {
	accel := &countingAccelerator{}
	r, err := New(lookup(), &fakeSampler{}, &fakeBackend{reply: "caption"}, accel, Config{Model: "m"}, nil)
	require.NoError(t, err)

	out, err := r.RefineAll(context.Background(), []string{"lecture_0", "missing_1", "lecture_0", "my_trip_2024_3"}, "hint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_1")
	assert.Equal(t, map[string]string{
		"lecture_0":      "Caption:\ncaption\nTranscript:\n\n\n",
		"my_trip_2024_3": "Caption:\ncaption\nTranscript:\nwe reached the summit\n\n",
	}, out)
	assert.Equal(t, 2, accel.releases, "one release per backend-bound segment")
}

func TestNewDefaults(t *testing.T) {
	_, err := New(lookup(), &fakeSampler{}, nil, nil, Config{Model: "m"}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration))

	_, err = New(lookup(), &fakeSampler{}, &fakeBackend{}, nil, Config{}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration))

	r, err := New(lookup(), &fakeSampler{}, &fakeBackend{}, nil, Config{Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultNumFrames, r.cfg.NumFrames)
	assert.Equal(t, backend.NoopAccelerator{}, r.accel)
}
