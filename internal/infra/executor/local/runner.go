package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/scan-trigger/internal/domain/scans"
)

// Runner executes the scan program as a child of this process.
// Each Run owns its buffers, so a Runner is safe for concurrent use.
type Runner struct {
	now func() time.Time
}

func NewRunner() *Runner {
	return &Runner{now: time.Now}
}

// Run blocks until the program exits. A non-zero exit is not an error: it is
// reported through ScanResult.ExitCode. The returned error is always an
// *domain.InvocationFault.
//
// ctx is used for logging only. The child is not bound to it, a client going
// away must not kill a scan that already started.
func (r *Runner) Run(ctx context.Context, cmd domain.Command) (domain.ScanResult, error) {
	// start keeps the monotonic reading, StartedAt is only for display
	start := r.now()
	res := domain.ScanResult{
		ID:        domain.InvocationID(uuid.NewString()),
		StartedAt: start.UTC(),
	}

	if cmd.Path == "" {
		return res, &domain.InvocationFault{Err: errors.New("scan program path is empty")}
	}
	if _, err := os.Stat(cmd.Path); err != nil {
		return res, &domain.InvocationFault{Err: fmt.Errorf("resolve scan program: %w", err)}
	}

	name, args := cmd.Argv()
	c := exec.Command(name, args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	slog.DebugContext(ctx, "starting scan program",
		"invocation_id", res.ID, "name", name, "args", args, "dir", c.Dir)

	err := c.Run()
	res.DurationMS = r.now().Sub(start).Milliseconds()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		return res, &domain.InvocationFault{Err: err}
	}
	// output is relayed as text, undecodable bytes fail the call
	if !utf8.ValidString(res.Stdout) {
		return res, &domain.InvocationFault{Err: errors.New("scan program stdout is not valid UTF-8")}
	}
	if !utf8.ValidString(res.Stderr) {
		return res, &domain.InvocationFault{Err: errors.New("scan program stderr is not valid UTF-8")}
	}
	if ee != nil {
		// -1 when killed by a signal, still a completed run
		res.ExitCode = ee.ExitCode()
	}
	return res, nil
}
