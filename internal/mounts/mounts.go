// Package mounts binds live host resources (process, device, kernel, runtime
// state) and a user-chosen host directory into the target root.
package mounts

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"alpenroot/internal/logging"
)

// Binding describes one mount operation into the target root. Target is
// relative to the root.
type Binding struct {
	Source    string
	Target    string
	FSType    string
	Recursive bool
}

// DefaultBindings returns the fixed, ordered set of pseudo-filesystem
// bindings plus the user bind directory. Device and kernel filesystems come
// before anything a workload inside the root could depend on; the bind
// directory is independent but mounted last.
func DefaultBindings(bindDir string) []Binding {
	bindings := []Binding{
		{Source: "none", Target: "proc", FSType: "proc"},
		{Source: "/sys", Target: "sys", Recursive: true},
		{Source: "/dev", Target: "dev", Recursive: true},
		{Source: "/run", Target: "run", Recursive: true},
	}
	if bindDir != "" {
		bindings = append(bindings, Binding{
			Source:    bindDir,
			Target:    strings.TrimPrefix(bindDir, "/"),
			Recursive: true,
		})
	}
	return bindings
}

// Mounter performs mount operations. The unix implementation talks to the
// kernel; tests substitute a fake.
type Mounter interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
	Mounted(target string) (bool, error)
}

// UnixMounter implements Mounter against the running kernel.
type UnixMounter struct {
	// MountsFile overrides the mount table consulted by Mounted. Empty
	// means /proc/mounts.
	MountsFile string
}

func (m UnixMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (m UnixMounter) Mounted(target string) (bool, error) {
	mountsFile := m.MountsFile
	if mountsFile == "" {
		mountsFile = "/proc/mounts"
	}
	file, err := os.Open(mountsFile)
	if err != nil {
		return false, fmt.Errorf("open mount table: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && unescapeMountPath(fields[1]) == target {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// unescapeMountPath decodes the octal escapes /proc/mounts uses for spaces
// and other special characters.
func unescapeMountPath(path string) string {
	if !strings.Contains(path, "\\") {
		return path
	}
	var builder strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) {
			value := (path[i+1]-'0')*64 + (path[i+2]-'0')*8 + (path[i+3] - '0')
			builder.WriteByte(value)
			i += 3
			continue
		}
		builder.WriteByte(path[i])
	}
	return builder.String()
}

// Binder mounts an ordered binding list into a target root.
type Binder struct {
	Logger  *slog.Logger
	Mounter Mounter
}

// Bind applies the bindings in order. Each target directory is created when
// absent; an already-mounted target is skipped rather than re-mounted, so
// repeated runs against the same root are safe. A missing bind source is an
// error.
func (b *Binder) Bind(root string, bindings []Binding) error {
	logger := logging.Ensure(b.Logger).With("component", "mounts")
	mounter := b.mounter()

	for _, binding := range bindings {
		target := filepath.Join(root, binding.Target)

		if binding.FSType == "" {
			if _, err := os.Stat(binding.Source); err != nil {
				return fmt.Errorf("bind source %s: %w", binding.Source, err)
			}
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create mount point %s: %w", target, err)
		}

		mounted, err := mounter.Mounted(target)
		if err != nil {
			return err
		}
		if mounted {
			logger.Info("already mounted, skipping", "target", target)
			continue
		}

		fstype := binding.FSType
		var flags uintptr
		if fstype == "" {
			fstype = "bind"
			flags = unix.MS_BIND
			if binding.Recursive {
				flags |= unix.MS_REC
			}
		}

		logger.Info("mounting", "source", binding.Source, "target", target, "fstype", fstype, "recursive", binding.Recursive)
		if err := mounter.Mount(binding.Source, target, fstype, flags, ""); err != nil {
			return fmt.Errorf("mount %s on %s: %w", binding.Source, target, err)
		}
	}
	return nil
}

func (b *Binder) mounter() Mounter {
	if b.Mounter != nil {
		return b.Mounter
	}
	return UnixMounter{}
}
