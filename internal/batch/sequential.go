package batch

import (
	"context"
	"fmt"

	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/model"
)

// runSequential runs the job's items in order on one borrowed engine whose
// state is saved back when the loop exits.
func (s *Service) runSequential(job *Job) {
	slots := job.newSlots()
	cancelled := false
	entered := false

	err := s.borrower.Borrow(context.WithoutCancel(job.ctx), job.sessionID, true, func(ex executor.Executor) error {
		entered = true
		for i := range slots {
			if job.CancelRequested() {
				s.logger.Warn("batch cancelled", "batch_id", job.id, "remaining", len(slots)-i)
				cancelled = true
				return nil
			}
			s.startItem(job, &slots[i])
			s.publish(job, job.itemStarted(i, false))
			s.runItem(job, ex, &slots[i])
			s.publish(job, job.itemFinished(i, slots[i].State == model.ItemSucceeded, false))
		}
		return nil
	})

	if err != nil && !entered {
		// The engine could not be prepared, so no report can run.
		s.logger.Error("borrow engine failed", "batch_id", job.id, "session_id", job.sessionID, "error", err)
		for i := range slots {
			s.startItem(job, &slots[i])
			job.itemStarted(i, false)
			s.failItem(job, &slots[i], err)
			job.itemFinished(i, false, false)
		}
	} else if err != nil {
		s.logger.Error("save session state failed", "batch_id", job.id, "session_id", job.sessionID, "error", err)
	}

	progress := fmt.Sprintf("Completed %d reports", len(slots))
	if cancelled {
		progress = "Cancelled"
	}
	s.complete(job, slots, cancelled, progress)
}
