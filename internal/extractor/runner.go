package extractor

import (
	"context"
	"os/exec"
)

// CmdRunner is interface for executing external commands
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner implements CmdRunner using os/exec
type execRunner struct{}

// NewCmdRunner creates a CmdRunner backed by os/exec
func NewCmdRunner() CmdRunner {
	return execRunner{}
}

// Run executes the command and returns its combined output so ffmpeg
// diagnostics end up in error messages.
func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
