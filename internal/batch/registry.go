package batch

import (
	"sync"
	"time"

	"github.com/redcentre/carbonsvc/internal/model"
)

// DefaultStaleAfter is how long a job may stay in the registry without being
// consumed by a completed poll.
const DefaultStaleAfter = 20 * time.Minute

// Registry is the table of active jobs. The lock covers map access only and
// is never held while reports run.
type Registry struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	staleAfter time.Duration
	now        func() time.Time
}

// NewRegistry creates an empty registry. A non-positive staleAfter selects
// DefaultStaleAfter.
func NewRegistry(staleAfter time.Duration, now func() time.Time) *Registry {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		jobs:       make(map[string]*Job),
		staleAfter: staleAfter,
		now:        now,
	}
}

// Create inserts job and sweeps stale entries. It returns the ids of the
// jobs swept.
func (r *Registry) Create(job *Job) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.id] = job
	return r.sweepLocked(r.now())
}

// Get returns the job, or nil when the id is unknown or already consumed.
func (r *Registry) Get(id string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// Remove deletes the job and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.jobs[id]
	delete(r.jobs, id)
	return ok
}

// Cancel requests cooperative cancellation and reports whether the job was
// found. It does not wait for the job to stop.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	job, ok := r.jobs[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	job.RequestCancel()
	return true
}

// Consume returns a snapshot of the job and removes it if the snapshot shows
// it completed. Of two concurrent pollers only one can observe the
// completed snapshot.
func (r *Registry) Consume(id string) (model.BatchSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.BatchSnapshot{}, false
	}

	job.mu.Lock()
	snap := job.snapshotLocked()
	job.mu.Unlock()

	if snap.Completed {
		delete(r.jobs, id)
	}
	return snap, true
}

// Sweep removes jobs created more than staleAfter before now, requesting
// cancellation of any still running. It returns the ids removed.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

func (r *Registry) sweepLocked(now time.Time) []string {
	var removed []string
	for id, job := range r.jobs {
		if now.Sub(job.createdAt) > r.staleAfter {
			job.RequestCancel()
			delete(r.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len returns the number of jobs in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
