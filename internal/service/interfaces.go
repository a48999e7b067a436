// internal/service/interfaces.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/zinin/homeops-bot/internal/shell"
)

// RemoteExecutor runs a shell script on the router.
// Implementations: remote.SSH, shell.Local, devmode.Executor.
type RemoteExecutor interface {
	Run(ctx context.Context, script string) (*shell.Result, error)
}

var _ RemoteExecutor = shell.Local{}

// CommandError reports a script that ran but exited non-zero.
type CommandError struct {
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("command exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("command exited with status %d: %s", e.ExitCode, out)
}

// output runs script and treats a non-zero exit as an error.
func output(ctx context.Context, exec RemoteExecutor, script string) (string, error) {
	res, err := exec.Run(ctx, script)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return res.Output, &CommandError{ExitCode: res.ExitCode, Output: res.Output}
	}
	return res.Output, nil
}

// bestEffort runs script and returns whatever it printed, ignoring the exit status.
func bestEffort(ctx context.Context, exec RemoteExecutor, script string) (string, error) {
	res, err := exec.Run(ctx, script)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Quote wraps s in single quotes for sh.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
