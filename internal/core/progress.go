package core

import (
	"context"
	"sync"
	"time"
)

// progressTracker keeps the live ImportProgress of one import and forwards
// every change to the sink. A nil tracker ignores all calls.
type progressTracker struct {
	mu   sync.Mutex
	p    ImportProgress
	sink ProgressSink
}

func newProgressTracker(sink ProgressSink, req ImportRequest) *progressTracker {
	return &progressTracker{
		sink: sink,
		p: ImportProgress{
			ImportID: req.ImportID,
			Kind:     req.Kind,
			Phase:    PhaseStarting,
		},
	}
}

func (t *progressTracker) phase(ctx context.Context, phase ImportPhase) {
	t.set(ctx, func(p *ImportProgress) { p.Phase = phase })
}

func (t *progressTracker) set(ctx context.Context, fn func(p *ImportProgress)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fn(&t.p)
	t.p.UpdatedAt = time.Now()
	snap := t.p
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.Update(ctx, snap)
	}
}

// fail and complete record terminal phases. They outlive the import's
// deadline so a timed-out import still reports how it ended.
func (t *progressTracker) fail(ctx context.Context, err error) {
	t.set(context.WithoutCancel(ctx), func(p *ImportProgress) {
		p.Phase = PhaseFailed
		p.Message = MapError(err).Message
	})
}

func (t *progressTracker) complete(ctx context.Context, result *ImportResult) {
	t.set(context.WithoutCancel(ctx), func(p *ImportProgress) {
		p.Phase = PhaseComplete
		p.Committed = len(result.Created)
		p.Failed = len(result.Failures)
	})
}
