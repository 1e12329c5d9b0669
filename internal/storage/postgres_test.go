package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/videorag/internal/models"
)

type fakeEmbedder struct {
	err   error
	calls [][]string
}

func (f *fakeEmbedder) EmbedAll(_ context.Context, contents []string) ([][]float32, error) {
	f.calls = append(f.calls, contents)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(contents))
	for i := range contents {
		out[i] = []float32{float32(i), 0.5, 1}
	}
	return out, nil
}

var _ Storage = (*PostgresStorage)(nil)

func TestInitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`embedding vector\(1536\)`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_segments_video_id").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store := NewPostgresStorage(mock, nil, 1536, nil)
	require.NoError(t, store.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddEntries(t *testing.T) {
	video := models.Video{Name: "lecture", Path: "/videos/lecture.mp4"}
	entries := map[int]models.KnowledgeEntry{
		1: {Content: "Caption:\nb\nTranscript:\ny\n\n", Time: "30-60", Start: 30, End: 60, Caption: "b", Transcript: "y"},
		0: {Content: "Caption:\na\nTranscript:\nx\n\n", Time: "0-30", Start: 0, End: 30, Caption: "a", Transcript: "x"},
	}

	tests := []struct {
		name     string
		embedder *fakeEmbedder
		setup    func(mock pgxmock.PgxPoolIface)
		wantErr  bool
	}{
		{
			name:     "upserts in index order with embeddings",
			embedder: &fakeEmbedder{},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery("INSERT INTO videos").
					WithArgs("lecture", "/videos/lecture.mp4").
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
				mock.ExpectExec("INSERT INTO segments").
					WithArgs(7, 0, "0-30", 0.0, 30.0, "a", "x", "Caption:\na\nTranscript:\nx\n\n", pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec("INSERT INTO segments").
					WithArgs(7, 1, "30-60", 30.0, 60.0, "b", "y", "Caption:\nb\nTranscript:\ny\n\n", pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name:     "embedding failure still stores entries",
			embedder: &fakeEmbedder{err: errors.New("rate limited")},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery("INSERT INTO videos").
					WithArgs("lecture", "/videos/lecture.mp4").
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
				mock.ExpectExec("INSERT INTO segments").
					WithArgs(7, 0, "0-30", 0.0, 30.0, "a", "x", pgxmock.AnyArg(), pgxmock.AnyArg(), nil).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec("INSERT INTO segments").
					WithArgs(7, 1, "30-60", 30.0, 60.0, "b", "y", pgxmock.AnyArg(), pgxmock.AnyArg(), nil).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
		},
		{
			name:     "segment failure rolls back",
			embedder: nil,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectQuery("INSERT INTO videos").
					WithArgs("lecture", "/videos/lecture.mp4").
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))
				mock.ExpectExec("INSERT INTO segments").
					WithArgs(7, 0, "0-30", 0.0, 30.0, "a", "x", pgxmock.AnyArg(), pgxmock.AnyArg(), nil).
					WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setup(mock)

			var embedder Embedder
			if tt.embedder != nil {
				embedder = tt.embedder
			}
			store := NewPostgresStorage(mock, embedder, 3, nil)
			err = store.AddEntries(context.Background(), video, entries)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.embedder != nil {
				require.Len(t, tt.embedder.calls, 1)
				assert.Equal(t, []string{entries[0].Content, entries[1].Content}, tt.embedder.calls[0])
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "pgxmock expectations were not met")
		})
	}
}

func TestSearchSegments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"name", "segment_index", "time_range", "content", "similarity"}).
		AddRow("my_trip", 3, "90-120", "Caption:\nsummit\nTranscript:\n\n\n", 0.91).
		AddRow("lecture", 0, "0-30", "Caption:\npodium\nTranscript:\n\n\n", 0.42)
	mock.ExpectQuery("SELECT v.name, s.segment_index").
		WithArgs(pgxmock.AnyArg(), 5).
		WillReturnRows(rows)

	embedder := &fakeEmbedder{}
	store := NewPostgresStorage(mock, embedder, 3, nil)
	results, err := store.SearchSegments(context.Background(), "mountain top", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "my_trip_3", results[0].SegmentID)
	assert.Equal(t, 0.91, results[0].Similarity)
	assert.Equal(t, "lecture_0", results[1].SegmentID)
	assert.Equal(t, [][]string{{"mountain top"}}, embedder.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchSegmentsWithoutEmbedder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStorage(mock, nil, 3, nil).SearchSegments(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestPostgresLookupSegment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT v.path, s.start_time").
		WithArgs("my_trip", 3).
		WillReturnRows(pgxmock.NewRows([]string{"path", "start_time", "end_time", "transcript", "frame_times"}).
			AddRow("/videos/my_trip.mp4", 90.0, 120.0, "we reached the summit", []float64{90, 100, 110}))
	mock.ExpectQuery("SELECT v.path, s.start_time").
		WithArgs("my_trip", 9).
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStorage(mock, nil, 3, nil)
	path, seg, err := store.LookupSegment(context.Background(), "my_trip", 3)
	require.NoError(t, err)
	assert.Equal(t, "/videos/my_trip.mp4", path)
	assert.Equal(t, models.VideoSegment{Index: 3, Start: 90, End: 120, Transcript: "we reached the summit", FrameTimes: []float64{90, 100, 110}}, seg)

	_, _, err = store.LookupSegment(context.Background(), "my_trip", 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
