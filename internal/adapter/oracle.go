package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecOracle runs a configured command per evaluation. The rendered
// program arrives on stdin; the program identifier is appended as the
// final argument so the oracle can pick the matching recorded inputs.
type ExecOracle struct {
	command []string
	timeout time.Duration
}

// NewExecOracle constructs an ExecOracle. The command must have at least
// one element; timeout bounds each invocation.
func NewExecOracle(command []string, timeout time.Duration) *ExecOracle {
	return &ExecOracle{command: command, timeout: timeout}
}

// Evaluate implements Oracle. A hung oracle invocation is cut off at the
// configured timeout and surfaces as an error, which the validator
// treats as a mismatch rather than a system fault.
func (o *ExecOracle) Evaluate(ctx context.Context, programID, source string) (string, error) {
	if len(o.command) == 0 {
		return "", fmt.Errorf("oracle command not configured")
	}

	runCtx := ctx

	if o.timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), o.command[1:]...), programID)
	cmd := exec.CommandContext(runCtx, o.command[0], args...)
	cmd.Stdin = strings.NewReader(source)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("oracle timed out for %s: %w", programID, runCtx.Err())
		}

		return "", fmt.Errorf("oracle failed for %s: %w: %s", programID, err, stderr.String())
	}

	return stdout.String(), nil
}
