// Package config resolves the immutable provisioning configuration from
// flags, ALPENROOT_* environment variables, and defaults, in that precedence
// order. Resolution happens once at startup; the resulting value is never
// mutated.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables mirroring each flag
// (e.g. ALPENROOT_BRANCH overrides --branch).
const EnvPrefix = "ALPENROOT"

// Defaults for everything the caller does not specify.
const (
	DefaultBranch = "latest-stable"
	DefaultMirror = "https://dl-cdn.alpinelinux.org/alpine"
)

// DefaultKeepVars are the environment-variable name patterns preserved across
// the chroot boundary when no keep-list is configured.
var DefaultKeepVars = []string{"ARCH", "CI", "QEMU_EMULATOR", "TRAVIS_.*"}

// DefaultPackages is the package set installed into the root during
// first-boot setup.
var DefaultPackages = []string{"build-base", "ca-certificates", "ssl_client"}

// Provisioning is the resolved, immutable run configuration.
type Provisioning struct {
	// Arch is the target Alpine architecture. Empty means the host
	// architecture.
	Arch string

	// Branch is the Alpine release branch.
	Branch string

	// Root is the absolute path of the target root directory.
	Root string

	// BindDir is the absolute host directory bind-mounted into the root.
	BindDir string

	// KeepVars are extended-regex patterns selecting which host
	// environment variables the entry script forwards.
	KeepVars []string

	// Mirror is the package mirror base URI.
	Mirror string

	// Packages are installed into the root during first-boot setup.
	Packages []string

	// ExtraRepos are appended to the repository list after the mirror
	// components.
	ExtraRepos []string

	// TempDir holds downloaded bootstrap artifacts.
	TempDir string
}

// NewViper constructs the resolver with defaults and environment binding.
// Flag binding happens in the CLI layer via BindPFlag so explicit flags win
// over environment values.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("arch", "")
	v.SetDefault("branch", DefaultBranch)
	v.SetDefault("root", "")
	v.SetDefault("bind-dir", "")
	v.SetDefault("keep-vars", DefaultKeepVars)
	v.SetDefault("mirror", DefaultMirror)
	v.SetDefault("packages", DefaultPackages)
	v.SetDefault("extra-repos", []string{})
	v.SetDefault("temp-dir", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// FromViper extracts and validates the provisioning configuration.
func FromViper(v *viper.Viper) (Provisioning, error) {
	cfg := Provisioning{
		Arch:       strings.TrimSpace(v.GetString("arch")),
		Branch:     strings.TrimSpace(v.GetString("branch")),
		Root:       strings.TrimSpace(v.GetString("root")),
		BindDir:    strings.TrimSpace(v.GetString("bind-dir")),
		KeepVars:   stringList(v, "keep-vars"),
		Mirror:     strings.TrimSpace(v.GetString("mirror")),
		Packages:   stringList(v, "packages"),
		ExtraRepos: stringList(v, "extra-repos"),
		TempDir:    strings.TrimSpace(v.GetString("temp-dir")),
	}

	if cfg.BindDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Provisioning{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.BindDir = cwd
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "alpenroot")
	}

	if err := cfg.Validate(); err != nil {
		return Provisioning{}, err
	}
	return cfg, nil
}

// Validate enforces the configuration invariants: absolute target root, an
// existing absolute bind directory, and no overlap between the target root
// and the temp directory.
func (c Provisioning) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("target root path is required")
	}
	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("target root must be an absolute path, got %q", c.Root)
	}
	if c.Branch == "" {
		return fmt.Errorf("distribution branch is required")
	}
	if c.Mirror == "" {
		return fmt.Errorf("package mirror URI is required")
	}

	if !filepath.IsAbs(c.BindDir) {
		return fmt.Errorf("bind directory must be an absolute path, got %q", c.BindDir)
	}
	info, err := os.Stat(c.BindDir)
	if err != nil {
		return fmt.Errorf("bind directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("bind directory %s is not a directory", c.BindDir)
	}

	if !filepath.IsAbs(c.TempDir) {
		return fmt.Errorf("temp directory must be an absolute path, got %q", c.TempDir)
	}
	if pathsOverlap(c.Root, c.TempDir) {
		return fmt.Errorf("target root %s and temp directory %s must not overlap", c.Root, c.TempDir)
	}
	return nil
}

// stringList reads a list-valued setting. Flag and default values arrive as
// slices; environment values arrive as one string and are split on commas
// and whitespace, so ALPENROOT_PACKAGES=vim,git means the same thing as
// --packages vim,git.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitList(raw)
	}
	return v.GetStringSlice(key)
}

func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	return fields
}

func pathsOverlap(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+string(filepath.Separator)) ||
		strings.HasPrefix(b, a+string(filepath.Separator))
}
