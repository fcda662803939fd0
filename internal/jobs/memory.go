package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/listing-import/internal/core"
)

// MemoryStore keeps jobs in process. It serves single-instance deployments
// and tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*memoryJob
	ttl  time.Duration
	now  func() time.Time
}

type memoryJob struct {
	job     Job
	expires time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{jobs: make(map[string]*memoryJob), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Update(_ context.Context, p core.ImportProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.entry(p.ImportID)
	if p.UpdatedAt.Before(j.job.Progress.UpdatedAt) {
		return
	}
	j.job.Progress = p
}

func (s *MemoryStore) Finish(_ context.Context, importID string, res *core.ImportResult, failure *core.ErrorInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.entry(importID)
	j.job.Result = res
	j.job.Error = failure
	return nil
}

func (s *MemoryStore) Get(_ context.Context, importID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	j, ok := s.jobs[importID]
	if !ok {
		return nil, ErrNotFound
	}
	out := j.job
	return &out, nil
}

// entry returns the job for importID, creating it and extending its
// expiry. Callers hold mu.
func (s *MemoryStore) entry(importID string) *memoryJob {
	j, ok := s.jobs[importID]
	if !ok {
		j = &memoryJob{job: Job{Progress: core.ImportProgress{ImportID: importID}}}
		s.jobs[importID] = j
	}
	j.expires = s.now().Add(s.ttl)
	return j
}

func (s *MemoryStore) sweep() {
	now := s.now()
	for id, j := range s.jobs {
		if now.After(j.expires) {
			delete(s.jobs, id)
		}
	}
}
