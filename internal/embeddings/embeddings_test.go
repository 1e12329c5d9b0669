package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls   atomic.Int32
	fail    map[string]error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeEmbedder) Embed(_ context.Context, content string) ([]float32, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err := f.fail[content]; err != nil {
		return nil, err
	}
	return []float32{float32(len(content)), 1}, nil
}

func TestEmbedAllKeepsOrder(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, 3, nil)
	defer svc.Close()

	vectors, err := svc.EmbedAll(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}, {2, 1}}, vectors)
}

func TestEmbedAllFailure(t *testing.T) {
	fake := &fakeEmbedder{fail: map[string]error{"bad": errors.New("model unavailable")}}
	svc := NewService(fake, 2, nil)
	defer svc.Close()

	_, err := svc.EmbedAll(context.Background(), []string{"ok", "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestCacheByContent(t *testing.T) {
	fake := &fakeEmbedder{}
	svc := NewService(fake, 1, nil)
	defer svc.Close()

	first, err := svc.Embed(context.Background(), "same")
	require.NoError(t, err)
	second, err := svc.Embed(context.Background(), "same")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, fake.calls.Load())
}

func TestGetEmbeddingQueueFull(t *testing.T) {
	fake := &fakeEmbedder{block: make(chan struct{}), started: make(chan struct{}, queueSize+2)}
	svc := NewService(fake, 1, nil)

	// Occupy the single worker, then fill the queue behind it.
	pending := []<-chan Result{svc.GetEmbedding(context.Background(), "busy")}
	<-fake.started
	for i := 0; i < queueSize; i++ {
		pending = append(pending, svc.GetEmbedding(context.Background(), "queued"))
	}

	res := <-svc.GetEmbedding(context.Background(), "overflow")
	assert.ErrorIs(t, res.Error, ErrQueueFull)

	close(fake.block)
	var wg sync.WaitGroup
	for _, ch := range pending {
		wg.Add(1)
		go func(ch <-chan Result) {
			defer wg.Done()
			<-ch
		}(ch)
	}
	wg.Wait()
	svc.Close()
}

func TestClosedService(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, 1, nil)
	svc.Close()
	svc.Close()

	_, err := svc.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	res := <-svc.GetEmbedding(context.Background(), "x")
	assert.ErrorIs(t, res.Error, ErrClosed)
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.EqualValues(t, 3, body["dimensions"])
		assert.Equal(t, []any{"Caption:\nsummit\nTranscript:\n\n\n"}, body["input"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/", Dimensions: 3})
	vector, err := e.Embed(context.Background(), "Caption:\nsummit\nTranscript:\n\n\n")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestOpenAIEmbedderDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1", Dimensions: 3})
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}
