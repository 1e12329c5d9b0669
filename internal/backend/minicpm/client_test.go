package minicpm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bdougie/videorag/internal/backend"
	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeForwardsTemporalIDs(t *testing.T) {
	var captured captionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, captionPath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(captionResponse{Text: "A chef slices onions.\n<|endoftext|>"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/"})
	got, err := client.Invoke(context.Background(), "MiniCPM-V-2_6",
		[]backend.Part{backend.ImagePart([]byte("jpeg")), backend.TextPart("describe")},
		[][]int{{0, 1, 2}, {3, 4, 5}},
		backend.Options{"max_slice_nums": 1},
	)
	require.NoError(t, err)
	assert.Equal(t, "A chef slices onions.\n<|endoftext|>", got, "raw text is returned unsanitized")

	assert.Equal(t, "MiniCPM-V-2_6", captured.Model)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}}, captured.TemporalIDs)
	require.Len(t, captured.Content, 2)
	assert.Equal(t, "image", captured.Content[0].Type)
	assert.Equal(t, "anBlZw==", captured.Content[0].Image)
	assert.Equal(t, "text", captured.Content[1].Type)
	assert.Equal(t, "describe", captured.Content[1].Text)
	assert.EqualValues(t, 1, captured.Params["max_slice_nums"])
}

func TestInvokeFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
			},
		},
		{
			name: "server reported error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(captionResponse{Error: "bad image"})
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(Config{BaseURL: server.URL}).Invoke(context.Background(), "m", nil, nil, nil)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeBackend))
		})
	}
}

func TestRelease(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, releasePath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: " secret "}, WithHTTPClient(server.Client()))
	require.NoError(t, client.Release(context.Background()))
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{})
	assert.Equal(t, defaultBaseURL, client.cfg.BaseURL)
	assert.Equal(t, defaultHTTPTimeout, client.httpClient.Timeout)

	var _ backend.Backend = client
	var _ backend.Accelerator = client
}
