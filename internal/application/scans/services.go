package scans

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bryanwahyu/scan-trigger/internal/application"
	domain "github.com/bryanwahyu/scan-trigger/internal/domain/scans"
	"github.com/bryanwahyu/scan-trigger/internal/log"
)

// Outcome labels reported to a Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeFault   = "fault"
)

// Recorder receives one observation per Trigger call.
type Recorder interface {
	ObserveScan(outcome string, elapsed time.Duration)
}

// Service implements the scan trigger use case.
// It holds no per-call state and is safe for concurrent use.
type Service struct {
	Runner   domain.Runner
	Command  domain.Command
	Clock    application.Clock
	Recorder Recorder
}

// Trigger runs the scan program once and waits for it.
//
// It returns the result on exit code 0, a *domain.ProcessFailure on any
// other exit code and a *domain.InvocationFault when the program could not
// be run at all. There are no retries.
func (s *Service) Trigger(ctx context.Context) (domain.ScanResult, error) {
	clock := application.OrSystem(s.Clock)
	start := clock.Now()

	res, err := s.Runner.Run(ctx, s.Command)
	if res.ID != "" {
		ctx = log.ContextAttrs(ctx, slog.String("invocation_id", string(res.ID)))
	}
	elapsed := clock.Now().Sub(start)

	if err != nil {
		var fault *domain.InvocationFault
		if !errors.As(err, &fault) {
			fault = &domain.InvocationFault{Err: err}
		}
		slog.ErrorContext(ctx, "scan invocation failed", "error", fault)
		s.observe(OutcomeFault, elapsed)
		return res, fault
	}

	if res.Status() != domain.StatusSuccess {
		slog.WarnContext(ctx, "scan program failed",
			"exit_code", res.ExitCode,
			"duration_ms", res.DurationMS,
			"stderr_bytes", len(res.Stderr),
		)
		s.observe(OutcomeFailed, elapsed)
		return res, &domain.ProcessFailure{Result: res}
	}

	slog.InfoContext(ctx, "scan completed",
		"duration_ms", res.DurationMS,
		"stdout_bytes", len(res.Stdout),
	)
	s.observe(OutcomeSuccess, elapsed)
	return res, nil
}

func (s *Service) observe(outcome string, elapsed time.Duration) {
	if s.Recorder != nil {
		s.Recorder.ObserveScan(outcome, elapsed)
	}
}
