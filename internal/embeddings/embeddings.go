// Package embeddings turns knowledge entry content into vectors for the
// PostgreSQL store. A small worker pool fronts the embedding model and caches
// results by content.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const queueSize = 100

// ErrQueueFull is returned when the work queue has no room for a request.
var ErrQueueFull = errors.New("embedding queue is full, try again later")

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("embedding service is closed")

// Embedder generates one embedding.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
}

// Result represents the result of embedding generation
type Result struct {
	Content   string
	Embedding []float32
	Error     error
}

// Work represents a unit of embedding work
type Work struct {
	Ctx     context.Context
	Content string
	Result  chan<- Result
}

// Service manages embedding generation and caching
type Service struct {
	embedder   Embedder
	numWorkers int
	logger     *slog.Logger

	workQueue chan Work
	cache     sync.Map // content -> []float32
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewService creates a new embedding service with the specified number of workers
func NewService(embedder Embedder, numWorkers int, logger *slog.Logger) *Service {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	service := &Service{
		embedder:   embedder,
		numWorkers: numWorkers,
		logger:     logger,
		workQueue:  make(chan Work, queueSize),
	}
	service.startWorkers()
	return service
}

func (s *Service) startWorkers() {
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for work := range s.workQueue {
				work.Result <- s.process(work)
			}
		}()
	}
}

func (s *Service) process(work Work) Result {
	if cached, ok := s.cache.Load(work.Content); ok {
		if embedding, valid := cached.([]float32); valid {
			return Result{Content: work.Content, Embedding: embedding}
		}
	}

	ctx := work.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Result{Content: work.Content, Error: err}
	}

	embedding, err := s.embedder.Embed(ctx, work.Content)
	if err != nil {
		s.logger.Debug("embedding failed", "error", err)
		return Result{Content: work.Content, Error: err}
	}
	s.cache.Store(work.Content, embedding)
	return Result{Content: work.Content, Embedding: embedding}
}

// GetEmbedding requests an embedding generation asynchronously. When the
// queue is full the returned channel already holds an ErrQueueFull result.
func (s *Service) GetEmbedding(ctx context.Context, content string) <-chan Result {
	resultChan := make(chan Result, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		resultChan <- Result{Content: content, Error: ErrClosed}
		return resultChan
	}

	select {
	case s.workQueue <- Work{Ctx: ctx, Content: content, Result: resultChan}:
	default:
		resultChan <- Result{Content: content, Error: ErrQueueFull}
	}
	return resultChan
}

// Embed waits for a queue slot instead of failing fast.
func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	resultChan := make(chan Result, 1)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case s.workQueue <- Work{Ctx: ctx, Content: content, Result: resultChan}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case res := <-resultChan:
		return res.Embedding, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedAll embeds contents concurrently and returns vectors in input order.
func (s *Service) EmbedAll(ctx context.Context, contents []string) ([][]float32, error) {
	vectors := make([][]float32, len(contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)
	for i, content := range contents {
		g.Go(func() error {
			embedding, err := s.Embed(gctx, content)
			if err != nil {
				return fmt.Errorf("embed entry %d: %w", i, err)
			}
			vectors[i] = embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Close shuts down the embedding service and waits for all workers to finish
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.workQueue)
	s.mu.Unlock()
	s.wg.Wait()
}
