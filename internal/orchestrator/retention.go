package orchestrator

import (
	"slices"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/job"
)

const (
	// DefaultMaxJobs caps the store at the most recently updated jobs
	DefaultMaxJobs = 100
	// DefaultCompletedTTL is how long a terminal job stays queryable
	DefaultCompletedTTL = 24 * time.Hour
)

// enforceCap removes the least recently updated jobs until at most limit
// remain. The job named by keep is never removed. Ties on UpdatedAt are
// broken by job id so eviction is deterministic.
func enforceCap(jobs map[string]job.Job, limit int, keep string) []string {
	if limit <= 0 || len(jobs) <= limit {
		return nil
	}

	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		if id != keep {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := jobs[a].UpdatedAt.Compare(jobs[b].UpdatedAt); c != 0 {
			return c
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	excess := len(jobs) - limit
	evicted := ids[:excess]
	for _, id := range evicted {
		delete(jobs, id)
	}
	return evicted
}

// expired reports whether a terminal job completed before cutoff.
// Non-terminal jobs never expire.
func expired(j job.Job, cutoff time.Time) bool {
	if !j.IsTerminal() || j.CompletedAt == nil {
		return false
	}
	return j.CompletedAt.Before(cutoff)
}
