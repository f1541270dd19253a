package rootfs

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner executes an external tool. The real implementation shells
// out; tests substitute a fake so no apk binary is needed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with stdout/stderr passed through to the process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
