// Package storage persists knowledge entries for the indexing collaborator.
//
// Two stores are provided: a JSON file per video, and PostgreSQL with
// pgvector embeddings for similarity search. Writes are keyed by segment
// index, so re-running a video overwrites its earlier entries.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/bdougie/videorag/internal/models"
)

const batchSize = 10 // Number of entries to batch before writing

// Storage defines the interface for storing knowledge entries
type Storage interface {
	// AddEntries queues the entries of one video
	AddEntries(ctx context.Context, video models.Video, entries map[int]models.KnowledgeEntry) error

	// Flush ensures all pending entries are saved
	Flush() error
}

// knowledgeFile is the on-disk layout of {output_dir}/{video}/knowledge.json.
type knowledgeFile struct {
	Video   string                        `json:"video"`
	Path    string                        `json:"path"`
	Entries map[int]models.KnowledgeEntry `json:"entries"`
}

type pendingVideo struct {
	path    string
	entries map[int]models.KnowledgeEntry
}

// JSONStore writes one knowledge.json per video. Each write takes a file lock
// so separate processes indexing the same output directory do not clobber
// each other.
type JSONStore struct {
	outputDir string

	mu      sync.Mutex
	pending map[string]*pendingVideo
	queued  int
}

// NewJSONStore creates a store rooted at outputDir.
func NewJSONStore(outputDir string) *JSONStore {
	return &JSONStore{
		outputDir: outputDir,
		pending:   make(map[string]*pendingVideo),
	}
}

// AddEntries adds entries to the batch and flushes if the batch is full
func (s *JSONStore) AddEntries(_ context.Context, video models.Video, entries map[int]models.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[video.Name]
	if !ok {
		p = &pendingVideo{path: video.Path, entries: make(map[int]models.KnowledgeEntry)}
		s.pending[video.Name] = p
	}
	for idx, entry := range entries {
		p.entries[idx] = entry
	}
	s.queued += len(entries)

	if s.queued >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending entries to disk
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *JSONStore) flush() error {
	for name, p := range s.pending {
		if err := s.writeVideo(name, p); err != nil {
			return err
		}
		delete(s.pending, name)
	}
	s.queued = 0
	return nil
}

func (s *JSONStore) writeVideo(name string, p *pendingVideo) error {
	dir := filepath.Join(s.outputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for entries: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "knowledge.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", dir, err)
	}
	defer func() { _ = lock.Unlock() }()

	existing, err := readKnowledgeFile(filepath.Join(dir, "knowledge.json"))
	if err != nil {
		return err
	}
	existing.Video = name
	if p.path != "" {
		existing.Path = p.path
	}
	for idx, entry := range p.entries {
		existing.Entries[idx] = entry
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	tmp := filepath.Join(dir, "knowledge.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write entries: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "knowledge.json")); err != nil {
		return fmt.Errorf("failed to replace entries file: %w", err)
	}
	return nil
}

func readKnowledgeFile(path string) (knowledgeFile, error) {
	file := knowledgeFile{Entries: make(map[int]models.KnowledgeEntry)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("failed to read entries file: %w", err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("failed to unmarshal existing entries: %w", err)
	}
	if file.Entries == nil {
		file.Entries = make(map[int]models.KnowledgeEntry)
	}
	return file, nil
}

// Entries loads what has been written for a video.
func (s *JSONStore) Entries(video string) (map[int]models.KnowledgeEntry, error) {
	file, err := readKnowledgeFile(filepath.Join(s.outputDir, video, "knowledge.json"))
	if err != nil {
		return nil, err
	}
	return file.Entries, nil
}

// LookupSegment rebuilds a segment from its stored entry, so the refiner can
// run against a JSON store without the manifest.
func (s *JSONStore) LookupSegment(_ context.Context, video string, index int) (string, models.VideoSegment, error) {
	file, err := readKnowledgeFile(filepath.Join(s.outputDir, video, "knowledge.json"))
	if err != nil {
		return "", models.VideoSegment{}, err
	}
	entry, ok := file.Entries[index]
	if !ok {
		return "", models.VideoSegment{}, fmt.Errorf("video %s has no stored segment %d", video, index)
	}
	return file.Path, models.VideoSegment{
		Index:      index,
		Start:      entry.Start,
		End:        entry.End,
		FrameTimes: entry.FrameTimes,
		Transcript: entry.Transcript,
	}, nil
}

// Discard accepts and drops entries. Used when storage.kind is none.
type Discard struct{}

func (Discard) AddEntries(context.Context, models.Video, map[int]models.KnowledgeEntry) error {
	return nil
}

func (Discard) Flush() error { return nil }
