// Package stub provides a deterministic in-process report engine for local
// servers and tests.
package stub

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redcentre/carbonsvc/internal/executor"
)

// State slot layout of the stub engine.
const (
	stateRuns       = 0
	stateLastReport = 1
	stateSlots      = 2
)

// Config controls the behaviour of engines created by NewFactory.
type Config struct {
	// Delay is slept before each report is produced.
	Delay time.Duration

	// Failures maps report names to the error Run returns for them.
	Failures map[string]error

	// Output overrides the generated report text.
	Output func(reportName, filter string) string
}

// Engine is an executor.Engine that fabricates report text. Its state records
// the number of reports run and the last report name.
type Engine struct {
	cfg   Config
	state []string
}

// Compile-time interface satisfaction check.
var _ executor.Engine = (*Engine)(nil)

// Created counts engines built by every stub factory. Tests use it to check
// that concurrent workers obtain their own engines.
var Created atomic.Int64

// NewFactory returns a factory producing stub engines that share cfg.
func NewFactory(cfg Config) executor.EngineFactory {
	return func() executor.Engine {
		Created.Add(1)
		return &Engine{cfg: cfg, state: make([]string, stateSlots)}
	}
}

// Run produces the report text for reportName, or the configured failure.
func (e *Engine) Run(ctx context.Context, reportName, filter string) (string, error) {
	if e.cfg.Delay > 0 {
		select {
		case <-time.After(e.cfg.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err, ok := e.cfg.Failures[reportName]; ok {
		return "", err
	}

	runs, _ := strconv.Atoi(e.state[stateRuns])
	e.state[stateRuns] = strconv.Itoa(runs + 1)
	e.state[stateLastReport] = reportName

	if e.cfg.Output != nil {
		return e.cfg.Output(reportName, filter), nil
	}
	return DefaultOutput(reportName, filter), nil
}

// RestoreState loads saved state. Missing slots are left empty.
func (e *Engine) RestoreState(state []string) error {
	e.state = make([]string, max(stateSlots, len(state)))
	copy(e.state, state)
	return nil
}

// SaveState returns a copy of the engine state.
func (e *Engine) SaveState() ([]string, error) {
	return append([]string(nil), e.state...), nil
}

// DefaultOutput renders a small OXT document naming the report and filter.
func DefaultOutput(reportName, filter string) string {
	return fmt.Sprintf("[Titles]\n%s\n[MetaData]\nTitles RowCount=1\nDisplay ColumnLetters=true\nDisplay RowLetters=false\nSignificance ShowLetters=false\n[Table]\nreport,%s\nfilter,%s\n",
		reportName, reportName, filter)
}
