package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/model"
)

// runParallel runs the job's items on at most job.parallelism concurrent
// workers. Each worker borrows its own engine and writes only its own slot.
// Items are dispatched in request order until cancellation is observed;
// dispatched items always drain.
func (s *Service) runParallel(job *Job) {
	slots := job.newSlots()
	sem := semaphore.NewWeighted(int64(job.parallelism))
	var wg sync.WaitGroup
	var cancelled atomic.Bool

	for i := range slots {
		if job.CancelRequested() {
			cancelled.Store(true)
			break
		}
		// Acquire fails only when the job context is cancelled.
		if err := sem.Acquire(job.ctx, 1); err != nil {
			cancelled.Store(true)
			break
		}
		if job.CancelRequested() {
			sem.Release(1)
			cancelled.Store(true)
			break
		}
		wg.Go(func() {
			defer sem.Release(1)
			if job.CancelRequested() {
				cancelled.Store(true)
				return
			}
			s.runSlot(job, slots, i)
		})
	}
	wg.Wait()

	progress := fmt.Sprintf("Completed %d reports [%.2f]", len(slots), job.elapsedSeconds())
	if cancelled.Load() {
		progress = "Cancelled"
	}
	s.complete(job, slots, cancelled.Load(), progress)
}

// runSlot runs item i on a freshly borrowed engine. Engine state is not
// saved back: concurrent workers would overwrite each other.
func (s *Service) runSlot(job *Job, slots []model.ReportItem, i int) {
	s.startItem(job, &slots[i])
	s.publish(job, job.itemStarted(i, true))

	ran := false
	err := s.borrower.Borrow(context.WithoutCancel(job.ctx), job.sessionID, false, func(ex executor.Executor) error {
		ran = true
		s.runItem(job, ex, &slots[i])
		return nil
	})
	if err != nil && !ran {
		s.logger.Error("borrow engine failed", "batch_id", job.id, "session_id", job.sessionID, "error", err)
		s.failItem(job, &slots[i], err)
	}

	s.publish(job, job.itemFinished(i, slots[i].State == model.ItemSucceeded, true))
}
