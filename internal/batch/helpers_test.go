package batch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redcentre/carbonsvc/internal/batch"
	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/model"
	"github.com/redcentre/carbonsvc/internal/session"
	"github.com/redcentre/carbonsvc/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestService wires a Service to a Lender over an in-memory SQLite store.
func newTestService(t *testing.T, factory executor.EngineFactory, opts ...batch.Option) (*batch.Service, *session.Cache) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cache := session.NewCache(s, time.Minute, testLogger())
	svc := batch.NewService(session.NewLender(cache, factory), testLogger(), opts...)
	t.Cleanup(svc.Wait)
	return svc, cache
}

// waitDone blocks until the job's run loop has exited.
func waitDone(t *testing.T, svc *batch.Service, id string) {
	t.Helper()
	job := svc.Registry().Get(id)
	if job == nil {
		t.Fatalf("job %s not in registry", id)
	}
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not complete within 5s", id)
	}
}

// runToCompletion starts req, waits and returns the consuming snapshot.
func runToCompletion(t *testing.T, svc *batch.Service, req batch.Request) model.BatchSnapshot {
	t.Helper()
	id, err := svc.Start(req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, svc, id)
	snap, ok := svc.Query(id)
	if !ok {
		t.Fatalf("Query(%s) not found", id)
	}
	if !snap.Completed {
		t.Fatalf("snapshot not completed after Done: %+v", snap)
	}
	return snap
}

// gate is a controllable engine source. Every Run announces itself on
// started and then blocks on release (when set) or sleeps delay.
type gate struct {
	started chan string
	release chan struct{}
	delay   time.Duration
	fail    map[string]error
	panicOn string

	engines   atomic.Int32
	runs      atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func newGate(blocking bool) *gate {
	g := &gate{started: make(chan string, 64)}
	if blocking {
		g.release = make(chan struct{})
	}
	return g
}

func (g *gate) factory() executor.EngineFactory {
	return func() executor.Engine {
		g.engines.Add(1)
		return &gateEngine{g: g}
	}
}

// awaitStart returns the name of the next report to start.
func (g *gate) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case name := <-g.started:
		return name
	case <-time.After(5 * time.Second):
		t.Fatal("no report started within 5s")
		return ""
	}
}

type gateEngine struct {
	g     *gate
	state []string
}

func (e *gateEngine) Run(_ context.Context, name, filter string) (string, error) {
	g := e.g
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxActive.Load()
		if n <= m || g.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	g.runs.Add(1)
	g.started <- name

	if g.release != nil {
		<-g.release
	} else if g.delay > 0 {
		time.Sleep(g.delay)
	}

	if name == g.panicOn {
		panic("kaboom")
	}
	if err, ok := g.fail[name]; ok {
		return "", err
	}
	return fmt.Sprintf("[Table]\n%s\n%s\n", name, filter), nil
}

func (e *gateEngine) RestoreState(state []string) error {
	e.state = state
	return nil
}

func (e *gateEngine) SaveState() ([]string, error) {
	return e.state, nil
}

// failingBorrower never lends an engine.
type failingBorrower struct {
	err error
}

func (b failingBorrower) Borrow(context.Context, string, bool, func(executor.Executor) error) error {
	return b.err
}

// runningWatcher polls snapshots and records the largest running count seen.
type runningWatcher struct {
	mu      sync.Mutex
	maxSeen int
	stop    chan struct{}
	done    chan struct{}
}

func watchRunning(job *batch.Job) *runningWatcher {
	w := &runningWatcher{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			snap := job.Snapshot()
			w.mu.Lock()
			w.maxSeen = max(w.maxSeen, snap.Counts.Running)
			w.mu.Unlock()
			select {
			case <-w.stop:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()
	return w
}

func (w *runningWatcher) Stop() int {
	close(w.stop)
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxSeen
}

// testClock is a settable time source safe for use from job goroutines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
