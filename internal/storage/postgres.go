package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/videorag/internal/models"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock implements it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Embedder turns entry contents into vectors, in input order.
type Embedder interface {
	EmbedAll(ctx context.Context, contents []string) ([][]float32, error)
}

// PostgresStorage manages interaction with PostgreSQL
type PostgresStorage struct {
	db         DB
	embedder   Embedder
	dimensions int
	logger     *slog.Logger
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStorage wraps db. A nil embedder stores entries without vectors
// and disables search.
func NewPostgresStorage(db DB, embedder Embedder, dimensions int, logger *slog.Logger) *PostgresStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStorage{db: db, embedder: embedder, dimensions: dimensions, logger: logger}
}

// InitSchema creates the database schema if it doesn't exist
func (s *PostgresStorage) InitSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS videos (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL UNIQUE,
            path TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );

        CREATE TABLE IF NOT EXISTS segments (
            id SERIAL PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            segment_index INTEGER NOT NULL,
            time_range VARCHAR(64) NOT NULL,
            start_time DOUBLE PRECISION NOT NULL,
            end_time DOUBLE PRECISION NOT NULL,
            caption TEXT NOT NULL,
            transcript TEXT NOT NULL,
            content TEXT NOT NULL,
            frame_times DOUBLE PRECISION[],
            embedding vector(%d),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            UNIQUE(video_id, segment_index)
        );`, s.dimensions)
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	if _, err := s.db.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_segments_video_id ON segments(video_id);
        CREATE INDEX IF NOT EXISTS idx_segments_embedding ON segments USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    `); err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}
	return nil
}

// AddEntries upserts a video's entries in one transaction.
func (s *PostgresStorage) AddEntries(ctx context.Context, video models.Video, entries map[int]models.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	indices := make([]int, 0, len(entries))
	for idx := range entries {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	vectors := s.embed(ctx, video.Name, indices, entries)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var videoID int
	err = tx.QueryRow(ctx,
		`INSERT INTO videos (name, path) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET path = EXCLUDED.path
        RETURNING id`,
		video.Name, video.Path).Scan(&videoID)
	if err != nil {
		return fmt.Errorf("failed to upsert video %s: %w", video.Name, err)
	}

	for i, idx := range indices {
		entry := entries[idx]
		var embedding any
		if vectors != nil {
			embedding = pgvector.NewVector(vectors[i])
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO segments
            (video_id, segment_index, time_range, start_time, end_time, caption, transcript, content, frame_times, embedding)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
            ON CONFLICT (video_id, segment_index) DO UPDATE SET
                time_range = EXCLUDED.time_range,
                start_time = EXCLUDED.start_time,
                end_time = EXCLUDED.end_time,
                caption = EXCLUDED.caption,
                transcript = EXCLUDED.transcript,
                content = EXCLUDED.content,
                frame_times = EXCLUDED.frame_times,
                embedding = EXCLUDED.embedding,
                updated_at = now()`,
			videoID, idx, entry.Time, entry.Start, entry.End, entry.Caption, entry.Transcript, entry.Content, entry.FrameTimes, embedding)
		if err != nil {
			return fmt.Errorf("failed to store segment %s: %w", models.SegmentID(video.Name, idx), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit entries for %s: %w", video.Name, err)
	}
	committed = true
	return nil
}

// embed returns nil when no embedder is configured or embedding failed; the
// entries are then stored without vectors.
func (s *PostgresStorage) embed(ctx context.Context, video string, indices []int, entries map[int]models.KnowledgeEntry) [][]float32 {
	if s.embedder == nil {
		return nil
	}
	contents := make([]string, len(indices))
	for i, idx := range indices {
		contents[i] = entries[idx].Content
	}
	vectors, err := s.embedder.EmbedAll(ctx, contents)
	if err != nil {
		s.logger.Warn("failed to generate embeddings, storing without vectors", "video", video, "error", err)
		return nil
	}
	return vectors
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SearchSegments finds segments whose content is closest to query.
func (s *PostgresStorage) SearchSegments(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if s.embedder == nil {
		return nil, errors.New("search requires an embedding model")
	}
	vectors, err := s.embedder.EmbedAll(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("no embedding returned for query")
	}

	rows, err := s.db.Query(ctx,
		`SELECT v.name, s.segment_index, s.time_range, s.content,
        1 - (s.embedding <=> $1) AS similarity
        FROM segments s
        JOIN videos v ON s.video_id = v.id
        WHERE s.embedding IS NOT NULL
        ORDER BY s.embedding <=> $1
        LIMIT $2`,
		pgvector.NewVector(vectors[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar segments: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.Video, &r.Index, &r.Time, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		r.SegmentID = models.SegmentID(r.Video, r.Index)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LookupSegment loads a stored segment for the refiner.
func (s *PostgresStorage) LookupSegment(ctx context.Context, video string, index int) (string, models.VideoSegment, error) {
	seg := models.VideoSegment{Index: index}
	var path string
	err := s.db.QueryRow(ctx,
		`SELECT v.path, s.start_time, s.end_time, s.transcript, s.frame_times
        FROM segments s
        JOIN videos v ON s.video_id = v.id
        WHERE v.name = $1 AND s.segment_index = $2`,
		video, index).Scan(&path, &seg.Start, &seg.End, &seg.Transcript, &seg.FrameTimes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", seg, fmt.Errorf("segment %s not found", models.SegmentID(video, index))
		}
		return "", seg, fmt.Errorf("failed to load segment %s: %w", models.SegmentID(video, index), err)
	}
	return path, seg, nil
}
