// Package entry generates the enter-chroot script. The script is standalone:
// every invocation re-derives a filtered environment snapshot, switches into
// the target root, and simulates a full login as the requested user. The
// environment filter and emulator path are fixed at generation time; the
// variable values are read at invocation time.
package entry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"alpenroot/internal/logging"
)

// ScriptName is the file name of the generated script inside the target root.
const ScriptName = "enter-chroot"

var scriptTemplate = template.Must(template.New("enter-chroot").Parse(`#!/bin/sh
# Enters the Alpine chroot with a clean, login-like environment.
# Usage: enter-chroot [-u <user>] [command...]
set -e

ENV_FILTER_REGEX='({{.FilterRegex}})'
{{if .QemuEmulator}}export QEMU_EMULATOR='{{.QemuEmulator}}'
{{end}}
user='root'
if [ $# -ge 2 ] && [ "$1" = '-u' ]; then
	user="$2"; shift 2
fi

oldpwd="$(pwd)"
[ "$(id -u)" -eq 0 ] || _sudo='sudo'

tmpfile="$(mktemp)"
chmod 644 "$tmpfile"
export | sed -En "s/^export ([^=]+)=('.*'|\".*\")$/\1=\2/p" \
	| grep -E "^$ENV_FILTER_REGEX=" > "$tmpfile" || true

cd "$(dirname "$0")"
$_sudo mv "$tmpfile" env.sh

exec $_sudo chroot . /usr/bin/env -i su -l "$user" \
	sh -c ". /etc/profile; . /env.sh; cd '$oldpwd' 2>/dev/null; \"\$@\"" \
	-- "${@:-sh}"
`))

// FilterRegex joins the configured variable-name patterns into one extended
// regular expression alternation. An empty keep-list yields an alternation
// that matches no variable name.
func FilterRegex(patterns []string) string {
	cleaned := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern != "" {
			cleaned = append(cleaned, pattern)
		}
	}
	return strings.Join(cleaned, "|")
}

// Generator renders and installs the entry script.
type Generator struct {
	Logger *slog.Logger
}

// Generate returns the script text for the given environment keep-list and
// optional emulator path (exported as QEMU_EMULATOR inside the root).
func (g *Generator) Generate(keepPatterns []string, qemuEmulator string) (string, error) {
	var builder strings.Builder
	err := scriptTemplate.Execute(&builder, struct {
		FilterRegex  string
		QemuEmulator string
	}{
		FilterRegex:  FilterRegex(keepPatterns),
		QemuEmulator: qemuEmulator,
	})
	if err != nil {
		return "", fmt.Errorf("render entry script: %w", err)
	}
	return builder.String(), nil
}

// Write renders the script and installs it executable at <root>/enter-chroot,
// overwriting any previous version.
func (g *Generator) Write(root string, keepPatterns []string, qemuEmulator string) (string, error) {
	logger := logging.Ensure(g.Logger).With("component", "entry")

	script, err := g.Generate(keepPatterns, qemuEmulator)
	if err != nil {
		return "", err
	}

	path := filepath.Join(root, ScriptName)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("write entry script: %w", err)
	}
	// WriteFile does not chmod an existing file.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("chmod entry script: %w", err)
	}

	logger.Info("entry script installed", "path", path)
	return path, nil
}
