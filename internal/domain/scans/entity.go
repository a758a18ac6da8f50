package scans

import (
	"time"
)

// InvocationID identifies one run of the scan program. It only exists for
// log correlation and is never persisted.
type InvocationID string

// Status enum
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Command describes how the scan program is launched.
type Command struct {
	// Interpreter is prepended to the argument list when set, e.g. "python".
	Interpreter string
	Path        string
	Args        []string
	Dir         string
	Env         []string
}

// Argv returns the program and arguments passed to exec.
func (c Command) Argv() (string, []string) {
	if c.Interpreter == "" {
		return c.Path, append([]string(nil), c.Args...)
	}
	args := make([]string, 0, len(c.Args)+1)
	args = append(args, c.Path)
	args = append(args, c.Args...)
	return c.Interpreter, args
}

// ScanResult is the outcome of a single invocation that ran to completion.
type ScanResult struct {
	ID         InvocationID `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMS int64        `json:"duration_ms"`
	ExitCode   int          `json:"exit_code"`
	Stdout     string       `json:"stdout"`
	Stderr     string       `json:"stderr"`
}

// Status derives success/failure from the exit code.
func (r ScanResult) Status() Status {
	if r.ExitCode == 0 {
		return StatusSuccess
	}
	return StatusFailed
}
