// Package jobs keeps the status of running and finished imports so clients
// can poll for them.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/listing-import/internal/core"
)

// ErrNotFound is returned for unknown or expired imports.
var ErrNotFound = errors.New("import not found")

// Job is the polled view of one import.
type Job struct {
	Progress core.ImportProgress `json:"progress"`
	Result   *core.ImportResult  `json:"result,omitempty"`
	Error    *core.ErrorInfo     `json:"error,omitempty"`
}

// Done reports whether the import has finished either way.
func (j *Job) Done() bool {
	return j.Progress.Phase == core.PhaseComplete || j.Progress.Phase == core.PhaseFailed
}

// Store persists job status. Update is the core.ProgressSink side.
type Store interface {
	core.ProgressSink
	Finish(ctx context.Context, importID string, res *core.ImportResult, failure *core.ErrorInfo) error
	Get(ctx context.Context, importID string) (*Job, error)
}

// staleFilter drops progress snapshots older than the last one seen for
// an import. Snapshots can arrive out of order from concurrent workers.
type staleFilter struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newStaleFilter() *staleFilter {
	return &staleFilter{last: make(map[string]time.Time)}
}

func (f *staleFilter) accept(p core.ImportProgress) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.last[p.ImportID]; ok && p.UpdatedAt.Before(prev) {
		return false
	}
	f.last[p.ImportID] = p.UpdatedAt
	return true
}

func (f *staleFilter) forget(importID string) {
	f.mu.Lock()
	delete(f.last, importID)
	f.mu.Unlock()
}
