package model

import (
	"errors"
	"fmt"
	"time"
)

// Report item state constants.
const (
	ItemWaiting   = "waiting"
	ItemRunning   = "running"
	ItemSucceeded = "succeeded"
	ItemFailed    = "failed"
)

// validTransitions maps each item state to the set of states it may transition to.
var validTransitions = map[string]map[string]bool{
	ItemWaiting: {
		ItemRunning: true,
	},
	ItemRunning: {
		ItemSucceeded: true,
		ItemFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one item state to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ErrInvalidTransition is returned when an item is moved to a state its
// current state does not lead to.
var ErrInvalidTransition = errors.New("invalid item state transition")

// IsTerminal reports whether an item state is final.
func IsTerminal(state string) bool {
	return state == ItemSucceeded || state == ItemFailed
}

// FilterPair is one filter fragment of a batch request. Period filters are
// combined into a single range expression.
type FilterPair struct {
	Label    string `json:"label"`
	Syntax   string `json:"syntax"`
	IsPeriod bool   `json:"is_period,omitempty"`
}

// ReportResult is the output of one successfully generated report.
type ReportResult struct {
	Lines                   []string `json:"lines"`
	TitlesRowCount          *int     `json:"titles_row_count,omitempty"`
	DisplayColumnLetters    *bool    `json:"display_column_letters,omitempty"`
	DisplayRowLetters       *bool    `json:"display_row_letters,omitempty"`
	SignificanceShowLetters *bool    `json:"significance_show_letters,omitempty"`
}

// ReportItem tracks one named report within a batch.
//
// ElapsedSeconds is set exactly when the item is terminal. Result is only set
// for succeeded items, FailureType and FailureMessages only for failed ones.
type ReportItem struct {
	Name            string        `json:"name"`
	State           string        `json:"state"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	ElapsedSeconds  *float64      `json:"elapsed_seconds,omitempty"`
	Result          *ReportResult `json:"result,omitempty"`
	FailureType     string        `json:"failure_type,omitempty"`
	FailureMessages []string      `json:"failure_messages,omitempty"`
}

// IsTerminal reports whether the item has succeeded or failed.
func (r ReportItem) IsTerminal() bool {
	return IsTerminal(r.State)
}

// Transition moves the item to state to. The item is left unchanged when the
// move is not allowed.
func (r *ReportItem) Transition(to string) error {
	if !ValidTransition(r.State, to) {
		return fmt.Errorf("%w: report %q from %q to %q", ErrInvalidTransition, r.Name, r.State, to)
	}
	r.State = to
	return nil
}

// BatchCounts summarises item states of a batch.
type BatchCounts struct {
	Waiting   int `json:"waiting"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchSnapshot is a point-in-time copy of a batch job's progress.
//
// Items is only populated once Completed is true. Cancelled means the run
// loop stopped early because of a cancel request; CancelRequested alone may be
// true for a batch that finished every item before noticing the request.
type BatchSnapshot struct {
	ID              string       `json:"id"`
	SessionID       string       `json:"session_id"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	ElapsedSeconds  *float64     `json:"elapsed_seconds,omitempty"`
	Parallelism     int          `json:"parallelism"`
	ProgressMessage string       `json:"progress_message"`
	Completed       bool         `json:"completed"`
	CancelRequested bool         `json:"cancel_requested"`
	Cancelled       bool         `json:"cancelled"`
	Counts          BatchCounts  `json:"counts"`
	Items           []ReportItem `json:"items,omitempty"`
}
