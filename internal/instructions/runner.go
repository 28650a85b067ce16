// internal/instructions/runner.go
package instructions

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ToolRunner executes the CAD tool. The indirection exists so tests can
// inject a fake that writes canned output files.
type ToolRunner interface {
	Run(ctx context.Context, args []string, timeout time.Duration) (exitCode int, stdout, stderr string, err error)
}

// ExecRunner runs the real executable through os/exec.
type ExecRunner struct {
	Path string
}

func (r *ExecRunner) Run(ctx context.Context, args []string, timeout time.Duration) (int, string, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return -1, stdout.String(), stderr.String(), context.DeadlineExceeded
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stdout.String(), stderr.String(), nil
		}
		return -1, stdout.String(), stderr.String(), err
	}
	return 0, stdout.String(), stderr.String(), nil
}
