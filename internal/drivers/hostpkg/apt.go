// Package hostpkg installs emulation support through the host's package
// manager. Only the Debian/Ubuntu apt family is implemented; other hosts are
// expected to provide qemu-user-static and binfmt support themselves.
package hostpkg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"alpenroot/arch"
	"alpenroot/internal/emulation"
	"alpenroot/internal/logging"
)

// AptInstaller implements emulation.HostInstaller with apt-get. The
// qemu-user-static package ships emulator binaries for every foreign
// architecture, and binfmt-support registers them with the kernel.
type AptInstaller struct {
	Logger *slog.Logger
}

var _ emulation.HostInstaller = (*AptInstaller)(nil)

// EnsureEmulator installs (or upgrades) the static user-mode emulator for the
// target architecture.
func (i *AptInstaller) EnsureEmulator(ctx context.Context, target arch.Architecture) error {
	logger := logging.Ensure(i.Logger).With("component", "hostpkg")

	if _, err := exec.LookPath("apt-get"); err != nil {
		return &emulation.EmulatorInstallError{
			Arch: target,
			Err:  fmt.Errorf("no supported host package manager: %w", err),
		}
	}

	logger.Info("installing qemu-user-static via apt-get", "architecture", target)
	if err := runCommand(ctx, "apt-get", "update"); err != nil {
		return &emulation.EmulatorInstallError{Arch: target, Err: fmt.Errorf("apt-get update: %w", err)}
	}
	if err := runCommand(ctx, "apt-get", "install", "-y", "qemu-user-static"); err != nil {
		return &emulation.EmulatorInstallError{Arch: target, Err: fmt.Errorf("apt-get install: %w", err)}
	}

	if _, err := os.Stat(emulation.BinaryPath(target)); err != nil {
		return &emulation.EmulatorInstallError{
			Arch: target,
			Err:  fmt.Errorf("emulator still missing after install: %w", err),
		}
	}
	return nil
}

// EnsureBinfmt installs binfmt-support and re-registers the qemu formats so
// the kernel routes foreign binaries through the emulator.
func (i *AptInstaller) EnsureBinfmt(ctx context.Context) error {
	logger := logging.Ensure(i.Logger).With("component", "hostpkg")

	logger.Info("enabling binfmt registration via apt-get")
	if err := runCommand(ctx, "apt-get", "install", "-y", "binfmt-support"); err != nil {
		return &emulation.BinfmtError{Err: fmt.Errorf("apt-get install binfmt-support: %w", err)}
	}
	if err := runCommand(ctx, "update-binfmts", "--enable"); err != nil {
		return &emulation.BinfmtError{Err: fmt.Errorf("update-binfmts --enable: %w", err)}
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
