package store

import (
	"context"
	"sync"

	"github.com/cuongbtq/push-orchestrator/internal/job"
)

// Store persists the full job map. Save always receives the complete
// snapshot; backends replace whatever they held before.
type Store interface {
	Load(ctx context.Context) (map[string]job.Job, error)
	Save(ctx context.Context, jobs map[string]job.Job) error
}

// MemoryStore keeps the snapshot in process memory. It does not survive a
// restart and is meant for tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]job.Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]job.Job)}
}

// Load returns a copy of the stored snapshot
func (s *MemoryStore) Load(ctx context.Context) (map[string]job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJobs(s.jobs), nil
}

// Save replaces the stored snapshot
func (s *MemoryStore) Save(ctx context.Context, jobs map[string]job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = cloneJobs(jobs)
	return nil
}

// Len returns the number of stored jobs
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func cloneJobs(jobs map[string]job.Job) map[string]job.Job {
	out := make(map[string]job.Job, len(jobs))
	for id, j := range jobs {
		out[id] = j.Clone()
	}
	return out
}
