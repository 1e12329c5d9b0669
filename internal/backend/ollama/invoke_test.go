package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/agent-api/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
)

// recordingProvider captures every generate request and answers with a
// numbered caption.
type recordingProvider struct {
	mu       sync.Mutex
	models   []string
	requests [][]*core.Message
	err      error
}

func (p *recordingProvider) GetCapabilities(context.Context) (*core.Capabilities, error) {
	return nil, nil
}

func (p *recordingProvider) UseModel(_ context.Context, model *core.Model) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models = append(p.models, model.ID)
	return nil
}

func (p *recordingProvider) Generate(_ context.Context, opts *core.GenerateOptions) (*core.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, append([]*core.Message(nil), opts.Messages...))
	if p.err != nil {
		return nil, p.err
	}
	return &core.Message{
		Role:    core.AssistantMessageRole,
		Content: fmt.Sprintf("caption %d", len(p.requests)),
	}, nil
}

func (p *recordingProvider) GenerateStream(context.Context, *core.GenerateOptions) (<-chan *core.Message, <-chan string, <-chan error) {
	return nil, nil, nil
}

func tagsServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func segmentParts(frames []string, text string) []backend.Part {
	var parts []backend.Part
	for _, f := range frames {
		parts = append(parts, backend.ImagePart([]byte(f)))
	}
	return append(parts, backend.TextPart(text))
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestInvokeSendsOnlyCurrentSegment(t *testing.T) {
	b, err := New(context.Background(), serverConfig(t, tagsServer(t)), nil)
	require.NoError(t, err)
	provider := &recordingProvider{}
	b.newProvider = func() core.Provider { return provider }

	first, err := b.Invoke(context.Background(), "llava", segmentParts([]string{"a1", "a2"}, "segment one"), [][]int{{0, 1}}, nil)
	require.NoError(t, err)
	second, err := b.Invoke(context.Background(), "llava", segmentParts([]string{"b1"}, "segment two"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "caption 1", first)
	assert.Equal(t, "caption 2", second)
	assert.Equal(t, []string{"llava", "llava"}, provider.models)

	require.Len(t, provider.requests, 2)
	for i, want := range []struct {
		text   string
		images []string
	}{
		{text: "segment one", images: []string{b64("a1"), b64("a2")}},
		{text: "segment two", images: []string{b64("b1")}},
	} {
		msgs := provider.requests[i]
		require.Len(t, msgs, 1, "request %d carries no earlier history", i)
		assert.Equal(t, core.UserMessageRole, msgs[0].Role)
		assert.Equal(t, want.text, msgs[0].Content)
		var got []string
		for _, img := range msgs[0].Images {
			assert.Equal(t, "image/jpeg", img.MimeType)
			got = append(got, img.Base64Encoding)
		}
		assert.Equal(t, want.images, got)
	}
}

func TestInvokeConcurrentCallsStayIsolated(t *testing.T) {
	b, err := New(context.Background(), serverConfig(t, tagsServer(t)), nil)
	require.NoError(t, err)
	provider := &recordingProvider{}
	b.newProvider = func() core.Provider { return provider }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Invoke(context.Background(), "llava", segmentParts([]string{fmt.Sprint(i)}, fmt.Sprintf("video %d", i)), nil, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, provider.requests, 8)
	for _, msgs := range provider.requests {
		assert.Len(t, msgs, 1)
	}
}

func TestInvokeProviderError(t *testing.T) {
	b, err := New(context.Background(), serverConfig(t, tagsServer(t)), nil)
	require.NoError(t, err)
	b.newProvider = func() core.Provider { return &recordingProvider{err: errors.New("model not found")} }

	_, err = b.Invoke(context.Background(), "llava", segmentParts([]string{"x"}, "t"), nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBackend))
	assert.Contains(t, err.Error(), "model not found")
}

// TestInvokeThroughChatEndpoint drives the real agent-api provider, which
// always dials localhost:11434, against a fake Ollama server.
func TestInvokeThroughChatEndpoint(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:11434")
	if err != nil {
		t.Skipf("port 11434 unavailable: %v", err)
	}

	var (
		mu       sync.Mutex
		requests []map[string]any
	)
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/chat":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			requests = append(requests, body)
			n := len(requests)
			mu.Unlock()
			_, _ = fmt.Fprintf(w, `{"model":"llava","message":{"role":"assistant","content":"caption %d"},"done":true}`, n)
		default:
			http.NotFound(w, r)
		}
	}))
	_ = server.Listener.Close()
	server.Listener = listener
	server.Start()
	defer server.Close()

	b, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)

	first, err := b.Invoke(context.Background(), "llava", segmentParts([]string{"a1", "a2"}, "segment one"), nil, nil)
	require.NoError(t, err)
	second, err := b.Invoke(context.Background(), "llava", segmentParts([]string{"b1"}, "segment two"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "caption 1", first)
	assert.Equal(t, "caption 2", second)

	require.Len(t, requests, 2)
	for i, want := range []struct {
		text   string
		images []any
	}{
		{text: "segment one", images: []any{b64("a1"), b64("a2")}},
		{text: "segment two", images: []any{b64("b1")}},
	} {
		assert.Equal(t, "llava", requests[i]["model"])
		msgs, ok := requests[i]["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 1)
		msg := msgs[0].(map[string]any)
		assert.Equal(t, "user", msg["role"])
		assert.Equal(t, want.text, msg["content"])
		assert.Equal(t, want.images, msg["images"])
	}
}
