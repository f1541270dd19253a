// Package provision sequences a full run: emulation resolution, verified
// bootstrap fetches, root filesystem initialization, namespace binding, entry
// script generation, and first-boot setup inside the new root. Execution is
// single-threaded and fail-fast; every step is idempotent so recovery from
// partial state is a plain re-run.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"alpenroot/arch"
	"alpenroot/internal/config"
	"alpenroot/internal/emulation"
	"alpenroot/internal/fetch"
	"alpenroot/internal/logging"
	"alpenroot/internal/mounts"
	"alpenroot/internal/rootfs"
	"alpenroot/internal/state"
)

// UserProvisionError reports a failed first-boot account creation. It is the
// one tolerated failure of a run: an already-existing account is the expected
// steady state of repeated runs.
type UserProvisionError struct {
	User string
	Err  error
}

func (e *UserProvisionError) Error() string {
	return fmt.Sprintf("create user %s: %v", e.User, e.Err)
}

func (e *UserProvisionError) Unwrap() error { return e.Err }

// Invoker identifies the real (privilege-escalated) user behind the run,
// captured from the process environment at a defined point rather than read
// ambiently mid-run.
type Invoker struct {
	Name string
	UID  string
}

// InvokerFromEnviron extracts the invoker from a SUDO_* environment snapshot.
// A run started directly as root has no identifiable invoker.
func InvokerFromEnviron(environ []string) Invoker {
	var invoker Invoker
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		switch name {
		case "SUDO_USER":
			invoker.Name = value
		case "SUDO_UID":
			invoker.UID = value
		}
	}
	return invoker
}

// Ports consumed by the orchestrator. Each has one real implementation and a
// test fake.
type (
	// EmulationResolver derives the emulation plan.
	EmulationResolver interface {
		Resolve(ctx context.Context, target, host arch.Architecture) (emulation.Plan, error)
	}

	// RootInitializer populates the target root filesystem.
	RootInitializer interface {
		Initialize(ctx context.Context, params rootfs.Params) error
	}

	// NamespaceBinder mounts host resources into the target root.
	NamespaceBinder interface {
		Bind(root string, bindings []mounts.Binding) error
	}

	// ScriptWriter installs the entry script.
	ScriptWriter interface {
		Write(root string, keepPatterns []string, qemuEmulator string) (string, error)
	}

	// EntryRunner invokes the generated entry script.
	EntryRunner interface {
		Run(ctx context.Context, scriptPath string, args ...string) error
	}
)

// Service drives the provisioning sequence.
type Service struct {
	Logger *slog.Logger
	Config config.Provisioning

	Fetcher   fetch.Fetcher
	Resolver  EmulationResolver
	Installer emulation.HostInstaller
	Init      RootInitializer
	Binder    NamespaceBinder
	Scripts   ScriptWriter
	Entry     EntryRunner

	// ApkTool and TrustKeys override the pinned bootstrap artifacts.
	ApkTool   fetch.Artifact
	TrustKeys []fetch.Artifact

	// HostArch overrides host detection (tests). Zero means uname.
	HostArch arch.Architecture

	// Invoker is the identity mirrored into the root during first boot.
	Invoker Invoker
}

// Run executes the full provisioning sequence.
func (s *Service) Run(ctx context.Context) error {
	logger := logging.Ensure(s.Logger).With("component", "provision", "run_id", uuid.NewString()[:8])

	host := s.HostArch
	if host == "" {
		detected, err := arch.Host()
		if err != nil {
			return err
		}
		host = detected
	}

	target := host
	if s.Config.Arch != "" {
		parsed, err := arch.Parse(s.Config.Arch)
		if err != nil {
			return err
		}
		target = parsed
	}
	logger = logger.With("target", target, "root", s.Config.Root)
	logger.Info("starting provisioning run", "host", host, "branch", s.Config.Branch)

	if previous, err := state.Load(s.Config.Root); err != nil {
		return err
	} else if previous != nil {
		logger.Info("target root was provisioned before, refreshing",
			"first_provisioned", previous.CreatedAt)
	}

	plan, err := s.Resolver.Resolve(ctx, target, host)
	if err != nil {
		return err
	}
	if plan.Active {
		if err := s.ensureEmulation(ctx, plan); err != nil {
			return err
		}
	}

	apkToolPath, keyPaths, err := s.fetchBootstrapArtifacts(ctx)
	if err != nil {
		return err
	}
	if err := os.Chmod(apkToolPath, 0o755); err != nil {
		return fmt.Errorf("mark apk tool executable: %w", err)
	}

	// An active plan implies an explicit target architecture: with no
	// --arch the target is the host and no emulation is planned. The
	// configured spelling is passed through to apk unchanged.
	apkArch := ""
	if plan.Active {
		apkArch = s.Config.Arch
	}
	if err := s.Init.Initialize(ctx, rootfs.Params{
		Root:       s.Config.Root,
		Branch:     s.Config.Branch,
		Mirror:     s.Config.Mirror,
		ExtraRepos: s.Config.ExtraRepos,
		ApkArch:    apkArch,
		ApkTool:    apkToolPath,
		KeyPaths:   keyPaths,
	}); err != nil {
		return err
	}

	qemuEmulator := ""
	if plan.Active {
		if err := s.copyEmulatorIntoRoot(plan); err != nil {
			return err
		}
		qemuEmulator = plan.BinaryPath
	}

	if err := s.Binder.Bind(s.Config.Root, mounts.DefaultBindings(s.Config.BindDir)); err != nil {
		return err
	}

	scriptPath, err := s.Scripts.Write(s.Config.Root, s.Config.KeepVars, qemuEmulator)
	if err != nil {
		return err
	}

	if err := s.firstBoot(ctx, scriptPath, logger); err != nil {
		return err
	}

	if err := state.Save(s.Config.Root, state.Manifest{
		Arch:          target.String(),
		Branch:        s.Config.Branch,
		Mirror:        s.Config.Mirror,
		Packages:      s.Config.Packages,
		ProvisionedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	logger.Info("provisioning complete", "enter", scriptPath)
	return nil
}

func (s *Service) ensureEmulation(ctx context.Context, plan emulation.Plan) error {
	logger := logging.Ensure(s.Logger).With("component", "provision")

	if plan.NeedsInstall || plan.NeedsUpgrade {
		if plan.NeedsUpgrade {
			logger.Info("installed emulator is too old, upgrading",
				"binary", plan.BinaryPath, "version", plan.Version)
		}
		if err := s.Installer.EnsureEmulator(ctx, plan.Arch); err != nil {
			return err
		}
	} else {
		logger.Info("emulator already present", "binary", plan.BinaryPath, "version", plan.Version)
	}

	if plan.NeedsBinfmt {
		if err := s.Installer.EnsureBinfmt(ctx); err != nil {
			return err
		}
	}
	return nil
}

// fetchBootstrapArtifacts downloads and verifies the apk tool and every trust
// key before anything is imported or executed. A single failure aborts the
// run with nothing trusted yet.
func (s *Service) fetchBootstrapArtifacts(ctx context.Context) (string, []string, error) {
	apkTool := s.ApkTool
	if apkTool.URI == "" {
		apkTool = rootfs.DefaultApkTool
	}
	keys := s.TrustKeys
	if len(keys) == 0 {
		keys = rootfs.DefaultTrustKeys
	}

	apkToolPath, err := s.Fetcher.Fetch(ctx, apkTool, s.Config.TempDir)
	if err != nil {
		return "", nil, err
	}

	keyPaths := make([]string, 0, len(keys))
	for _, key := range keys {
		keyPath, err := s.Fetcher.Fetch(ctx, key, s.Config.TempDir)
		if err != nil {
			return "", nil, err
		}
		keyPaths = append(keyPaths, keyPath)
	}
	return apkToolPath, keyPaths, nil
}

func (s *Service) copyEmulatorIntoRoot(plan emulation.Plan) error {
	dest := filepath.Join(s.Config.Root, "usr", "bin", filepath.Base(plan.BinaryPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}

	src, err := os.Open(plan.BinaryPath)
	if err != nil {
		return fmt.Errorf("open emulator %s: %w", plan.BinaryPath, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("copy emulator into root: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copy emulator into root: %w", err)
	}
	return out.Close()
}

// firstBoot runs the post-install commands inside the new root through the
// entry script: package index update, requested package installation, and
// sudoers/group setup under fail-fast semantics, then the tolerated user
// creation.
func (s *Service) firstBoot(ctx context.Context, scriptPath string, logger *slog.Logger) error {
	setup := []string{
		"set -e",
		"apk update",
	}
	if len(s.Config.Packages) > 0 {
		setup = append(setup, "apk add "+strings.Join(s.Config.Packages, " "))
	}
	setup = append(setup,
		"if command -v sudo >/dev/null 2>&1 && [ ! -e /etc/sudoers.d/wheel ]; then"+
			" echo '%wheel ALL=(ALL) NOPASSWD: ALL' > /etc/sudoers.d/wheel; fi",
	)

	logger.Info("running first-boot setup inside root")
	if err := s.Entry.Run(ctx, scriptPath, "sh", "-c", strings.Join(setup, "\n")); err != nil {
		return fmt.Errorf("first-boot setup: %w", err)
	}

	if s.Invoker.Name == "" || s.Invoker.Name == "root" {
		return nil
	}

	args := []string{"adduser"}
	if s.Invoker.UID != "" {
		args = append(args, "-u", s.Invoker.UID)
	}
	args = append(args, "-G", "wheel", "-s", "/bin/sh", "-D", s.Invoker.Name)

	if err := s.Entry.Run(ctx, scriptPath, args...); err != nil {
		// Tolerated: the account usually exists already on re-runs. The
		// full failure is still logged so a genuinely broken invocation
		// (bad UID, read-only root) stays visible.
		userErr := &UserProvisionError{User: s.Invoker.Name, Err: err}
		logger.Warn("first-boot user creation failed, continuing", "error", userErr)
	}
	return nil
}

// ScriptRunner is the real EntryRunner: it executes the entry script as a
// child process with output passed through.
type ScriptRunner struct{}

func (ScriptRunner) Run(ctx context.Context, scriptPath string, args ...string) error {
	return rootfs.ExecRunner{}.Run(ctx, scriptPath, args...)
}
