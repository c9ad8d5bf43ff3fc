package batch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redcentre/carbonsvc/internal/model"
)

// Job is one batch of reports. Configuration fields are immutable after
// creation; progress fields are guarded by mu.
type Job struct {
	id          string
	sessionID   string
	filter      string
	names       []string
	tableOnly   bool
	parallelism int
	createdAt   time.Time
	now         func() time.Time

	cancelRequested atomic.Bool
	ctx             context.Context
	stop            context.CancelFunc

	mu        sync.Mutex
	progress  string
	counts    model.BatchCounts
	active    map[int]struct{}
	done      int
	startedAt *time.Time
	startMono time.Time
	elapsed   *float64
	completed bool
	cancelled bool
	items     []model.ReportItem

	// finished is closed when the run loop has exited.
	finished chan struct{}
}

func newJob(req Request, filter string, parallelism int, now func() time.Time) *Job {
	ctx, stop := context.WithCancel(context.Background())
	return &Job{
		id:          model.NewID(),
		sessionID:   req.SessionID,
		filter:      filter,
		names:       append([]string(nil), req.Reports...),
		tableOnly:   req.TableOnly,
		parallelism: parallelism,
		createdAt:   now(),
		now:         now,
		ctx:         ctx,
		stop:        stop,
		progress:    "Starting",
		counts:      model.BatchCounts{Waiting: len(req.Reports)},
		active:      make(map[int]struct{}),
		finished:    make(chan struct{}),
	}
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// CreatedAt returns the creation time.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// Done returns a channel closed once the run loop has exited.
func (j *Job) Done() <-chan struct{} { return j.finished }

// RequestCancel sets the cancellation flag. It returns false if cancellation
// had already been requested.
func (j *Job) RequestCancel() bool {
	if !j.cancelRequested.CompareAndSwap(false, true) {
		return false
	}
	j.stop()
	return true
}

// CancelRequested reports whether cancellation has been requested.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// Completed reports whether the run loop has finished.
func (j *Job) Completed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completed
}

// newSlots returns the preallocated per-item result slots, all waiting.
func (j *Job) newSlots() []model.ReportItem {
	slots := make([]model.ReportItem, len(j.names))
	for i, name := range j.names {
		slots[i] = model.ReportItem{Name: name, State: model.ItemWaiting}
	}
	return slots
}

func (j *Job) begin() {
	j.mu.Lock()
	defer j.mu.Unlock()
	t := j.now()
	j.startedAt = &t
	j.startMono = time.Now()
}

// itemStarted counts item i as running and returns the new progress message.
func (j *Job) itemStarted(i int, parallel bool) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.counts.Waiting--
	j.counts.Running++
	j.active[i] = struct{}{}
	if parallel {
		j.progress = j.parallelProgress()
	} else {
		j.progress = fmt.Sprintf("Running report %d/%d", i+1, len(j.names))
	}
	return j.progress
}

// itemFinished counts item i as terminal and returns the progress message.
func (j *Job) itemFinished(i int, succeeded, parallel bool) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.counts.Running--
	if succeeded {
		j.counts.Succeeded++
	} else {
		j.counts.Failed++
	}
	j.done++
	delete(j.active, i)
	if parallel {
		j.progress = j.parallelProgress()
	}
	return j.progress
}

// parallelProgress renders the running item indexes and the done count.
// Must be called with j.mu held.
func (j *Job) parallelProgress() string {
	ixs := make([]int, 0, len(j.active))
	for i := range j.active {
		ixs = append(ixs, i)
	}
	sort.Ints(ixs)
	parts := make([]string, len(ixs))
	for k, i := range ixs {
		parts[k] = strconv.Itoa(i)
	}
	return fmt.Sprintf("%s (%d/%d)", strings.Join(parts, "+"), j.done, len(j.names))
}

// finish publishes the slots as the job's items and marks the job completed.
func (j *Job) finish(slots []model.ReportItem, cancelled bool, progress string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.items = slots
	j.cancelled = cancelled
	j.progress = progress
	if j.startedAt != nil {
		secs := time.Since(j.startMono).Seconds()
		j.elapsed = &secs
	}
	j.completed = true
	j.stop()
	close(j.finished)
}

// elapsedSeconds returns the time since the run started.
func (j *Job) elapsedSeconds() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startedAt == nil {
		return 0
	}
	return time.Since(j.startMono).Seconds()
}

// Snapshot returns a value copy of the job's progress. Items are included
// only once the job has completed.
func (j *Job) Snapshot() model.BatchSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() model.BatchSnapshot {
	snap := model.BatchSnapshot{
		ID:              j.id,
		SessionID:       j.sessionID,
		CreatedAt:       j.createdAt,
		StartedAt:       j.startedAt,
		ElapsedSeconds:  j.elapsed,
		Parallelism:     j.parallelism,
		ProgressMessage: j.progress,
		Completed:       j.completed,
		CancelRequested: j.cancelRequested.Load(),
		Cancelled:       j.cancelled,
		Counts:          j.counts,
	}
	if j.completed {
		snap.Items = cloneItems(j.items)
	}
	return snap
}

func cloneItems(items []model.ReportItem) []model.ReportItem {
	out := make([]model.ReportItem, len(items))
	for i, it := range items {
		out[i] = it
		out[i].FailureMessages = append([]string(nil), it.FailureMessages...)
		if it.Result != nil {
			r := *it.Result
			r.Lines = append([]string(nil), it.Result.Lines...)
			out[i].Result = &r
		}
	}
	return out
}
