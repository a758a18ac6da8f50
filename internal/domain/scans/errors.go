package scans

import (
	"fmt"
)

// ProcessFailure means the scan program ran but exited non-zero.
type ProcessFailure struct {
	Result ScanResult
}

func (e *ProcessFailure) Error() string {
	return fmt.Sprintf("scan program exited with code %d", e.Result.ExitCode)
}

// InvocationFault means the scan program could not be launched or awaited.
// Err carries the underlying cause (exec.Error, fs.PathError, ...).
type InvocationFault struct {
	Err error
}

func (e *InvocationFault) Error() string {
	if e.Err == nil {
		return "scan invocation failed"
	}
	return e.Err.Error()
}

func (e *InvocationFault) Unwrap() error { return e.Err }
