// Package shell runs shell scripts on the local host.
package shell

import (
	"context"
	"errors"
	"os/exec"
)

type Result struct {
	Output   string
	ExitCode int
}

// Run executes script with sh -c and returns its combined output.
// A non-zero exit is reported in Result.ExitCode, not as an error.
func Run(ctx context.Context, script string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	output, err := cmd.CombinedOutput()

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Output:   string(output),
		ExitCode: exitCode,
	}, nil
}

// Local implements a remote executor against the machine the bot runs on.
// Used when the bot is installed on the router itself.
type Local struct{}

func (Local) Run(ctx context.Context, script string) (*Result, error) {
	return Run(ctx, script)
}
