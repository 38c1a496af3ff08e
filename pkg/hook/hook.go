// Package hook runs the optional pre-backup and post-backup commands a
// Session may carry. A pre-backup hook that fails aborts DoBackup before
// any engine state is touched; a post-backup hook's result is logged but
// never changes DoBackup's return value.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/paulschiretz/hotbackup/pkg/hints"
)

// ErrNothingToExecute is returned (wrapped as a hint) when no command was
// configured; callers can treat it as "hook skipped" rather than a failure.
var ErrNothingToExecute = hints.New("hook: nothing to execute")

// Runner executes a single shell command with a timeout, killing the whole
// process group if the timeout expires so any children the command spawned
// die with it.
type Runner struct {
	// commandContext is overridable in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewRunner builds a Runner using the real exec.CommandContext.
func NewRunner() *Runner {
	return &Runner{commandContext: exec.CommandContext}
}

// Run executes command (via "sh -c") with the given timeout. An empty
// command returns ErrNothingToExecute.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration) error {
	if command == "" {
		return ErrNothingToExecute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.commandContext(runCtx, "sh", "-c", command)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			killProcessGroup(cmd)
			return fmt.Errorf("hook: command %q timed out after %s", command, timeout)
		}
		return fmt.Errorf("hook: command %q failed: %w (output: %s)", command, err, out)
	}
	return nil
}
