// Package state persists a small provisioning manifest inside the target
// root so repeated runs can tell a refresh from a first-time install.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest location relative to the target root.
const FileName = ".alpenroot.yaml"

// Manifest records what a run provisioned into the root.
type Manifest struct {
	Arch          string    `yaml:"arch"`
	Branch        string    `yaml:"branch"`
	Mirror        string    `yaml:"mirror"`
	Packages      []string  `yaml:"packages,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	ProvisionedAt time.Time `yaml:"provisioned_at"`
}

// Load reads the manifest from the target root. Returns (nil, nil) when the
// root has never been provisioned.
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}

// Save writes the manifest atomically into the target root, preserving the
// original creation time across re-runs.
func Save(root string, manifest Manifest) error {
	if previous, err := Load(root); err == nil && previous != nil {
		manifest.CreatedAt = previous.CreatedAt
	}
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = manifest.ProvisionedAt
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmpPath := filepath.Join(root, FileName+".tmp")
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(root, FileName)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
