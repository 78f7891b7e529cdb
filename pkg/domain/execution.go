package domain

import "time"

// ExceptionInfo describes a fault raised by candidate code.
type ExceptionInfo struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Stack   []string `json:"stack,omitempty"`
}

// ExecutionResult is the telemetry returned by the execution sandbox.
// A nil Exception means the code ran to completion.
type ExecutionResult struct {
	TermOut   string         `json:"term_out"`
	Duration  time.Duration  `json:"duration"`
	Exception *ExceptionInfo `json:"exception,omitempty"`
}

// Failed reports whether the run raised.
func (r ExecutionResult) Failed() bool {
	return r.Exception != nil
}
