package local_test

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/scan-trigger/internal/domain/scans"
	"github.com/bryanwahyu/scan-trigger/internal/infra/executor/local"
)

func TestRunSuccess(t *testing.T) {
	t.Parallel()
	path := writeScript(t, `echo "scanned 3 icons"; echo "warn" >&2`)

	res, err := local.NewRunner().Run(testContext(t), domain.Command{Path: path})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, domain.StatusSuccess, res.Status())
	require.Equal(t, "scanned 3 icons\n", res.Stdout)
	require.Equal(t, "warn\n", res.Stderr)
	require.NotEmpty(t, res.ID)
	require.False(t, res.StartedAt.IsZero())
}

func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()
	path := writeScript(t, `echo partial; echo "icons dir missing" >&2; exit 3`)

	res, err := local.NewRunner().Run(testContext(t), domain.Command{Path: path})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, domain.StatusFailed, res.Status())
	require.Equal(t, "partial\n", res.Stdout)
	require.Equal(t, "icons dir missing\n", res.Stderr)
}

func TestRunInterpreterArgsDirEnv(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.sh")
	// not executable: run through the interpreter
	require.NoError(t, os.WriteFile(path, []byte(`echo "$1 $SCAN_MODE $(pwd -P)"`), 0o644))

	res, err := local.NewRunner().Run(testContext(t), domain.Command{
		Interpreter: sh,
		Path:        path,
		Args:        []string{"full"},
		Dir:         dir,
		Env:         []string{"SCAN_MODE=icons"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)

	realDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("full icons %s\n", realDir), res.Stdout)
}

func TestRunMissingProgram(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "scan.sh")

	_, err := local.NewRunner().Run(testContext(t), domain.Command{Path: missing})
	require.Error(t, err)
	var fault *domain.InvocationFault
	require.ErrorAs(t, err, &fault)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Contains(t, err.Error(), missing)
}

func TestRunEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := local.NewRunner().Run(testContext(t), domain.Command{})
	var fault *domain.InvocationFault
	require.ErrorAs(t, err, &fault)
	require.EqualError(t, err, "scan program path is empty")
}

func TestRunMissingInterpreter(t *testing.T) {
	t.Parallel()
	path := writeScript(t, "echo never")

	_, err := local.NewRunner().Run(testContext(t), domain.Command{
		Interpreter: "definitely-not-an-interpreter",
		Path:        path,
	})
	var fault *domain.InvocationFault
	require.ErrorAs(t, err, &fault)
	var execErr *exec.Error
	require.True(t, errors.As(err, &execErr))
	require.Equal(t, "definitely-not-an-interpreter", execErr.Name)
}

func TestRunNotExecutable(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("skipped, root ignores permission bits")
	}
	path := filepath.Join(t.TempDir(), "scan.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))

	_, err := local.NewRunner().Run(testContext(t), domain.Command{Path: path})
	var fault *domain.InvocationFault
	require.ErrorAs(t, err, &fault)
	require.ErrorIs(t, err, fs.ErrPermission)
}

func TestRunConcurrentIsolation(t *testing.T) {
	t.Parallel()
	path := writeScript(t, `echo "out-$1"; echo "err-$1" >&2; exit $2`)
	runner := local.NewRunner()

	const n = 16
	var wg sync.WaitGroup
	results := make([]domain.ScanResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = runner.Run(testContext(t), domain.Command{
				Path: path,
				Args: []string{fmt.Sprint(i), fmt.Sprint(i % 2)},
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, fmt.Sprintf("out-%d\n", i), results[i].Stdout)
		require.Equal(t, fmt.Sprintf("err-%d\n", i), results[i].Stderr)
		require.Equal(t, i%2, results[i].ExitCode)
	}
}

func TestRunInvalidUTF8Output(t *testing.T) {
	t.Parallel()
	for name, tc := range map[string]struct {
		body string
		want string
	}{
		"stdout":             {`printf '\377\376ok'`, "scan program stdout is not valid UTF-8"},
		"stderr on failure":  {`printf '\377' >&2; exit 1`, "scan program stderr is not valid UTF-8"},
		"stdout with stderr": {`printf 'ok'; printf '\376' >&2`, "scan program stderr is not valid UTF-8"},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := writeScript(t, tc.body)

			_, err := local.NewRunner().Run(testContext(t), domain.Command{Path: path})
			var fault *domain.InvocationFault
			require.ErrorAs(t, err, &fault)
			require.EqualError(t, err, tc.want)
		})
	}
}
