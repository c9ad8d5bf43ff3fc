package remote

import "strings"

// RunPath is the engine service endpoint that generates one report.
const RunPath = "/v1/reports/run"

// MaxResponseSize is the largest response body accepted from the engine (64 MiB).
const MaxResponseSize = 64 << 20

// RunRequest is the JSON payload sent to the engine service. The engine is
// stateless on the wire: the session state travels with every call.
type RunRequest struct {
	Report string   `json:"report"`
	Filter string   `json:"filter,omitempty"`
	State  []string `json:"state"`
}

// RunResponse is the JSON payload returned by the engine service.
type RunResponse struct {
	Output string     `json:"output"`
	State  []string   `json:"state"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a report failure reported by the engine.
type ErrorBody struct {
	Type     string   `json:"type"`
	Messages []string `json:"messages"`
}

// EngineError is returned by Run when the engine reports a failure. Messages
// run from the outermost cause to the innermost; Unwrap exposes the inner
// causes as a chain.
type EngineError struct {
	Type     string
	Messages []string
}

func (e *EngineError) Error() string {
	if len(e.Messages) == 0 {
		return "remote engine error"
	}
	return e.Messages[0]
}

// FailureType returns the engine's name for the failure.
func (e *EngineError) FailureType() string {
	return e.Type
}

// Unwrap returns the next inner cause, if any.
func (e *EngineError) Unwrap() error {
	if len(e.Messages) < 2 {
		return nil
	}
	return &EngineError{Type: e.Type, Messages: e.Messages[1:]}
}

// String renders the full cause chain on one line.
func (e *EngineError) String() string {
	return e.Type + ": " + strings.Join(e.Messages, " -> ")
}
