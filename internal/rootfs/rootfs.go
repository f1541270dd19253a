// Package rootfs initializes the target root filesystem: directory skeleton,
// repository configuration, DNS resolution, trust keys, and the apk bootstrap
// of the base system.
package rootfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"alpenroot/internal/logging"
)

// PackageInstallError reports a non-zero exit from the bootstrap package
// tool.
type PackageInstallError struct {
	Packages []string
	Err      error
}

func (e *PackageInstallError) Error() string {
	return fmt.Sprintf("install packages %s: %v", strings.Join(e.Packages, " "), e.Err)
}

func (e *PackageInstallError) Unwrap() error { return e.Err }

// Params describes one root initialization.
type Params struct {
	// Root is the absolute path of the target root directory.
	Root string

	// Branch is the Alpine branch (e.g. "v3.20", "edge").
	Branch string

	// Mirror is the base URI of the package mirror.
	Mirror string

	// ExtraRepos are additional repository URIs appended after the mirror
	// components.
	ExtraRepos []string

	// ApkArch, when non-empty, is passed to apk as --arch. Set only when
	// emulation is active.
	ApkArch string

	// ApkTool is the path of the verified static apk binary.
	ApkTool string

	// KeyPaths are the verified trust-key files to import.
	KeyPaths []string

	// BasePackages is the package set installed during --initdb bootstrap.
	BasePackages []string
}

// DefaultBasePackages is the minimal Alpine base installed into every root.
var DefaultBasePackages = []string{"alpine-base"}

// Initializer populates a target root. Each step is a hard prerequisite for
// the next; a failure aborts without rollback. Re-running with the same
// parameters overwrites configuration files rather than appending, so partial
// state is recovered by a full re-run.
type Initializer struct {
	Logger *slog.Logger
	Runner CommandRunner
}

// Initialize performs the ordered initialization sequence.
func (i *Initializer) Initialize(ctx context.Context, params Params) error {
	logger := logging.Ensure(i.Logger).With("component", "rootfs", "root", params.Root)

	if params.Root == "" || !filepath.IsAbs(params.Root) {
		return fmt.Errorf("target root must be an absolute path, got %q", params.Root)
	}

	logger.Info("creating root directory skeleton")
	for _, dir := range []string{
		filepath.Join(params.Root, "etc", "apk", "keys"),
		filepath.Join(params.Root, "lib", "apk", "db"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if err := i.writeRepositories(params); err != nil {
		return err
	}
	logger.Info("wrote repository configuration")

	if err := copyFile("/etc/resolv.conf", filepath.Join(params.Root, "etc", "resolv.conf"), 0o644); err != nil {
		return fmt.Errorf("copy resolv.conf: %w", err)
	}
	logger.Info("copied host DNS configuration")

	for _, keyPath := range params.KeyPaths {
		dest := filepath.Join(params.Root, "etc", "apk", "keys", filepath.Base(keyPath))
		if err := copyFile(keyPath, dest, 0o644); err != nil {
			return fmt.Errorf("import trust key %s: %w", keyPath, err)
		}
	}
	logger.Info("imported trust keys", "count", len(params.KeyPaths))

	packages := params.BasePackages
	if len(packages) == 0 {
		packages = DefaultBasePackages
	}
	args := []string{
		"--root", params.Root,
		"--update-cache",
		"--initdb",
	}
	if params.ApkArch != "" {
		args = append(args, "--arch", params.ApkArch)
	}
	args = append(args, "add")
	args = append(args, packages...)

	logger.Info("bootstrapping base system", "packages", strings.Join(packages, " "))
	if err := i.runner().Run(ctx, params.ApkTool, args...); err != nil {
		return &PackageInstallError{Packages: packages, Err: err}
	}

	logger.Info("root filesystem initialized")
	return nil
}

// RepositoriesContent renders the etc/apk/repositories file: the mirror's
// main and community components for the branch, then any extra repositories,
// in that fixed order.
func RepositoriesContent(mirror, branch string, extraRepos []string) string {
	mirror = strings.TrimRight(mirror, "/")
	var builder strings.Builder
	for _, component := range []string{"main", "community"} {
		builder.WriteString(mirror + "/" + branch + "/" + component + "\n")
	}
	for _, repo := range extraRepos {
		builder.WriteString(repo + "\n")
	}
	return builder.String()
}

func (i *Initializer) writeRepositories(params Params) error {
	path := filepath.Join(params.Root, "etc", "apk", "repositories")
	content := RepositoriesContent(params.Mirror, params.Branch, params.ExtraRepos)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write repositories file: %w", err)
	}
	return nil
}

func (i *Initializer) runner() CommandRunner {
	if i.Runner != nil {
		return i.Runner
	}
	return ExecRunner{}
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
