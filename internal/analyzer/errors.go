package analyzer

import (
	"sync"

	apperrors "github.com/bdougie/videorag/internal/errors"
	"github.com/bdougie/videorag/internal/models"
)

// ErrorChannel collects per-video failures from concurrent workers. Many
// workers report; the orchestrator drains once after every worker returned.
type ErrorChannel struct {
	ch   chan models.ErrorRecord
	once sync.Once
}

// NewErrorChannel sizes the buffer so that each of capacity workers can report
// once without blocking.
func NewErrorChannel(capacity int) *ErrorChannel {
	return &ErrorChannel{ch: make(chan models.ErrorRecord, max(capacity, 1))}
}

// Report tags err with the owning video and queues it.
func (c *ErrorChannel) Report(video string, err error) {
	if err == nil {
		return
	}
	c.ch <- models.ErrorRecord{
		Video:   video,
		Code:    apperrors.CodeOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

// Close marks the end of reporting. Safe to call more than once.
func (c *ErrorChannel) Close() {
	c.once.Do(func() { close(c.ch) })
}

// Drain returns every queued record in arrival order. Call after Close.
func (c *ErrorChannel) Drain() []models.ErrorRecord {
	var records []models.ErrorRecord
	for rec := range c.ch {
		records = append(records, rec)
	}
	return records
}
