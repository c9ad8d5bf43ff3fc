package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/model"
)

// ErrNoReports is returned when a batch request names no reports.
var ErrNoReports = errors.New("no reports requested")

// Borrower lends a session-bound executor for the duration of fn.
type Borrower interface {
	Borrow(ctx context.Context, sessionID string, save bool, fn func(executor.Executor) error) error
}

// Request describes a batch to start.
type Request struct {
	SessionID   string             `json:"session_id"`
	Reports     []string           `json:"reports"`
	Filters     []model.FilterPair `json:"filters,omitempty"`
	Parallelism int                `json:"parallelism,omitempty"`
	TableOnly   bool               `json:"table_only,omitempty"`
}

// Stats holds registry counters.
type Stats struct {
	Active         int `json:"active"`
	MaxParallelism int `json:"max_parallelism"`
}

// Service starts, tracks and cancels batches.
type Service struct {
	registry       *Registry
	borrower       Borrower
	broker         *Broker
	logger         *slog.Logger
	maxParallelism int
	staleAfter     time.Duration
	now            func() time.Time
	wg             sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for job and item timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxParallelism caps the worker count of parallel batches. The default
// is the number of CPUs.
func WithMaxParallelism(n int) Option {
	return func(s *Service) { s.maxParallelism = n }
}

// WithStaleAfter sets how long unconsumed jobs stay in the registry.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) { s.staleAfter = d }
}

// NewService creates a batch service running reports through b.
func NewService(b Borrower, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		borrower:       b,
		broker:         NewBroker(),
		logger:         logger,
		maxParallelism: runtime.NumCPU(),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxParallelism < 1 {
		s.maxParallelism = 1
	}
	s.registry = NewRegistry(s.staleAfter, s.now)
	return s
}

// Registry returns the service's job registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// ClampParallelism limits a requested worker count to [1, max].
func (s *Service) ClampParallelism(n int) int {
	return min(max(n, 1), s.maxParallelism)
}

// Start registers a job for req and runs it in the background. It returns
// the job id without waiting for any report.
func (s *Service) Start(req Request) (string, error) {
	if len(req.Reports) == 0 {
		return "", ErrNoReports
	}

	job := newJob(req, executor.ComposeFilter(req.Filters), s.ClampParallelism(req.Parallelism), s.now)
	s.broker.Open(job.id)
	s.broker.Publish(job.id, job.Snapshot().ProgressMessage)
	for _, id := range s.registry.Create(job) {
		s.forget(id)
	}

	runner := "sequential"
	if job.parallelism > 1 {
		runner = "parallel"
	}
	batchesStartedTotal.WithLabelValues(runner).Inc()
	s.logger.Info("batch started",
		"batch_id", job.id, "session_id", job.sessionID, "reports", len(job.names),
		"parallelism", job.parallelism, "filter", job.filter)

	s.wg.Go(func() {
		job.begin()
		if job.parallelism > 1 {
			s.runParallel(job)
		} else {
			s.runSequential(job)
		}
	})

	return job.id, nil
}

// Query returns a snapshot of the job. The first query that observes the job
// completed removes it, so later queries report not found.
func (s *Service) Query(id string) (model.BatchSnapshot, bool) {
	snap, ok := s.registry.Consume(id)
	if ok && snap.Completed {
		s.broker.Forget(id)
	}
	return snap, ok
}

// Cancel requests cooperative cancellation of the job.
func (s *Service) Cancel(id string) bool {
	ok := s.registry.Cancel(id)
	if ok {
		s.logger.Info("batch cancel requested", "batch_id", id)
	}
	return ok
}

// Subscribe streams progress messages of a job in the registry. The channel
// closes when the job completes.
func (s *Service) Subscribe(id string) (<-chan string, func(), bool) {
	if s.registry.Get(id) == nil {
		return nil, nil, false
	}
	ch, unsub := s.broker.Subscribe(id)
	return ch, unsub, true
}

// Wait blocks until all running batches have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Stats returns registry counters.
func (s *Service) Stats() Stats {
	return Stats{Active: s.registry.Len(), MaxParallelism: s.maxParallelism}
}

// Sweep removes stale jobs now.
func (s *Service) Sweep() int {
	removed := s.registry.Sweep(s.now())
	for _, id := range removed {
		s.forget(id)
	}
	return len(removed)
}

// RunSweeper sweeps stale jobs every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("stale batches swept", "count", n)
			}
		}
	}
}

func (s *Service) forget(id string) {
	batchesSweptTotal.Inc()
	s.broker.Forget(id)
	s.logger.Warn("stale batch removed", "batch_id", id)
}

func (s *Service) publish(job *Job, progress string) {
	s.broker.Publish(job.id, progress)
}

// complete closes the job's stream and marks it completed. The stream closes
// first so the topic is gone before a poller can consume the job.
func (s *Service) complete(job *Job, slots []model.ReportItem, cancelled bool, progress string) {
	s.broker.Publish(job.id, progress)
	s.broker.Close(job.id)
	job.finish(slots, cancelled, progress)

	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	batchesFinishedTotal.WithLabelValues(outcome).Inc()
	s.logger.Info(fmt.Sprintf("batch %s", outcome),
		"batch_id", job.id, "progress", progress, "seconds", job.elapsedSeconds())
}
