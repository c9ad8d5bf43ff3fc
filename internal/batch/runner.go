package batch

import (
	"context"
	"time"

	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/model"
)

// startItem stamps item with its start time and moves it to running.
func (s *Service) startItem(job *Job, item *model.ReportItem) {
	t := job.now()
	item.StartedAt = &t
	s.transition(job, item, model.ItemRunning)
}

// runItem generates the running item with ex and moves it to its terminal
// state. The executor gets a context that outlives cancellation, so a cancel
// request never interrupts a report in flight.
func (s *Service) runItem(job *Job, ex executor.Executor, item *model.ReportItem) {
	mono := time.Now()

	reportsRunning.Inc()
	out, err := runSafely(context.WithoutCancel(job.ctx), ex, item.Name, job.filter)
	reportsRunning.Dec()

	secs := time.Since(mono).Seconds()
	reportDuration.Observe(secs)
	item.ElapsedSeconds = &secs

	if err != nil {
		item.FailureType, item.FailureMessages = describeFailure(err)
		s.transition(job, item, model.ItemFailed)
		s.logger.Warn("report failed",
			"batch_id", job.id, "report", executor.NormalizeReportName(item.Name),
			"failure_type", item.FailureType, "error", err)
	} else {
		item.Result = executor.ParseOutput(out, job.tableOnly)
		s.transition(job, item, model.ItemSucceeded)
		s.logger.Debug("report completed",
			"batch_id", job.id, "report", executor.NormalizeReportName(item.Name), "seconds", secs)
	}
	reportsTotal.WithLabelValues(item.State).Inc()
}

// failItem records err against the running item without running it.
func (s *Service) failItem(job *Job, item *model.ReportItem, err error) {
	secs := 0.0
	item.ElapsedSeconds = &secs
	item.FailureType, item.FailureMessages = describeFailure(err)
	s.transition(job, item, model.ItemFailed)
	reportsTotal.WithLabelValues(item.State).Inc()
}

// transition applies an item state change. A rejected change leaves the item
// as it was and is logged.
func (s *Service) transition(job *Job, item *model.ReportItem, to string) {
	if err := item.Transition(to); err != nil {
		s.logger.Error("item state change rejected", "batch_id", job.id, "error", err)
	}
}

// runSafely converts a panicking executor into an item failure so a worker
// never strands its batch.
func runSafely(ctx context.Context, ex executor.Executor, name, filter string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return ex.Run(ctx, name, filter)
}
