package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/bdougie/videorag/internal/errors"
)

// Unloader releases an Ollama model from GPU memory by issuing a generate
// request with keep_alive set to zero.
type Unloader struct {
	baseURL string
	model   string
	http    *http.Client
}

// Unloader returns the accelerator handle for model.
func (b *Backend) Unloader(model string) *Unloader {
	return &Unloader{baseURL: b.baseURL(), model: model, http: b.http}
}

// Release implements backend.Accelerator.
func (u *Unloader) Release(ctx context.Context) error {
	payload, err := json.Marshal(map[string]any{"model": u.model, "keep_alive": 0})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeBackend, "encode unload request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeBackend, "build unload request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeBackend, "unload "+u.model)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperrors.New(apperrors.CodeBackend, fmt.Sprintf("unload %s: http %d", u.model, resp.StatusCode))
	}
	return nil
}
