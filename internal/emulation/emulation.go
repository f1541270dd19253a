// Package emulation decides whether a provisioning run needs QEMU user-mode
// emulation and, if so, what is missing on the host to support it.
package emulation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"alpenroot/arch"
	"alpenroot/internal/logging"
)

// DefaultMinVersion is the oldest QEMU user-mode release known to run the
// Alpine bootstrap correctly.
const DefaultMinVersion = "2.6"

// Plan captures the emulation requirements derived from the target/host
// architecture pair. The three Needs* signals are independent and may
// co-occur.
type Plan struct {
	// Active is false when target and host architectures normalize to the
	// same value; all other fields are zero in that case.
	Active bool

	Arch arch.Architecture

	// BinaryPath is the conventional location of the static user-mode
	// emulator (/usr/bin/qemu-<arch>-static).
	BinaryPath string

	// Version is the version reported by an already-installed emulator,
	// empty when the binary is absent.
	Version string

	NeedsInstall bool
	NeedsUpgrade bool
	NeedsBinfmt  bool
}

// Satisfied reports whether the host already meets every requirement.
func (p Plan) Satisfied() bool {
	return !p.NeedsInstall && !p.NeedsUpgrade && !p.NeedsBinfmt
}

// HostProber inspects emulator state on the host. Implementations other than
// the real one exist for tests.
type HostProber interface {
	BinaryExists(path string) bool
	BinaryVersion(ctx context.Context, path string) (string, error)
	BinfmtRegistered(name string) bool
}

// HostInstaller is the capability the host system provides for installing the
// emulator and enabling kernel binfmt support. Its internals (package manager
// selection, repository pinning) are outside this package.
type HostInstaller interface {
	EnsureEmulator(ctx context.Context, target arch.Architecture) error
	EnsureBinfmt(ctx context.Context) error
}

// EmulatorInstallError reports a failed emulator installation on the host.
type EmulatorInstallError struct {
	Arch arch.Architecture
	Err  error
}

func (e *EmulatorInstallError) Error() string {
	return fmt.Sprintf("install emulator for %s: %v", e.Arch, e.Err)
}

func (e *EmulatorInstallError) Unwrap() error { return e.Err }

// BinfmtError reports a failure enabling kernel binary-format registration.
type BinfmtError struct {
	Err error
}

func (e *BinfmtError) Error() string {
	return fmt.Sprintf("enable binfmt support: %v", e.Err)
}

func (e *BinfmtError) Unwrap() error { return e.Err }

// Resolver computes emulation plans.
type Resolver struct {
	Logger *slog.Logger

	// MinVersion is the minimum acceptable emulator version. Empty means
	// DefaultMinVersion.
	MinVersion string

	// Prober overrides host inspection. Nil means the real host.
	Prober HostProber
}

// Resolve derives the emulation plan for the given target and host
// architectures. Equal architectures yield an inactive plan and no host
// inspection happens at all.
func (r *Resolver) Resolve(ctx context.Context, target, host arch.Architecture) (Plan, error) {
	logger := logging.Ensure(r.Logger).With("component", "emulation")

	if target == host {
		logger.Debug("target matches host, no emulation required", "architecture", target)
		return Plan{}, nil
	}

	minVersion := r.MinVersion
	if minVersion == "" {
		minVersion = DefaultMinVersion
	}
	prober := r.prober()

	plan := Plan{
		Active:     true,
		Arch:       target,
		BinaryPath: BinaryPath(target),
	}

	if !prober.BinaryExists(plan.BinaryPath) {
		plan.NeedsInstall = true
	} else {
		version, err := prober.BinaryVersion(ctx, plan.BinaryPath)
		if err != nil {
			return Plan{}, fmt.Errorf("query emulator version: %w", err)
		}
		plan.Version = version
		if CompareVersions(version, minVersion) < 0 {
			plan.NeedsUpgrade = true
		}
	}

	if !prober.BinfmtRegistered(BinfmtName(target)) {
		plan.NeedsBinfmt = true
	}

	logger.Info("emulation required",
		"architecture", target,
		"binary", plan.BinaryPath,
		"installed_version", plan.Version,
		"needs_install", plan.NeedsInstall,
		"needs_upgrade", plan.NeedsUpgrade,
		"needs_binfmt", plan.NeedsBinfmt,
	)
	return plan, nil
}

func (r *Resolver) prober() HostProber {
	if r.Prober != nil {
		return r.Prober
	}
	return unixProber{}
}

// BinaryPath returns the conventional install path of the static user-mode
// emulator for the given architecture.
func BinaryPath(target arch.Architecture) string {
	return "/usr/bin/qemu-" + target.QemuName() + "-static"
}

// BinfmtName returns the name under which the kernel registers the
// architecture's binary format (an entry in /proc/sys/fs/binfmt_misc).
func BinfmtName(target arch.Architecture) string {
	return "qemu-" + target.QemuName()
}

const binfmtMiscDir = "/proc/sys/fs/binfmt_misc"

type unixProber struct{}

func (unixProber) BinaryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (unixProber) BinaryVersion(ctx context.Context, path string) (string, error) {
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", path, err)
	}
	version := parseVersionOutput(string(output))
	if version == "" {
		return "", fmt.Errorf("%s --version: unrecognized output %q", path, strings.TrimSpace(string(output)))
	}
	return version, nil
}

func (unixProber) BinfmtRegistered(name string) bool {
	_, err := os.Stat(binfmtMiscDir + "/" + name)
	return err == nil
}

// parseVersionOutput extracts the dotted version from QEMU's --version
// banner, e.g. "qemu-arm version 2.11.1 (Debian 1:2.11+dfsg-1)".
func parseVersionOutput(output string) string {
	fields := strings.Fields(output)
	for i, field := range fields {
		if field == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
