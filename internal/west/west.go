// Package west reads the west workspace that the SDK clone step creates
// next to an installed toolchain.
//
// A workspace is recognized by <envDir>/.west/config. Its [manifest]
// section names the repository holding the west manifest; the HEAD of
// that repository identifies the SDK source revision.
package west

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/gcfg"
	gogit "github.com/go-git/go-git/v5"
)

const (
	// ControlDir is the workspace control directory inside an environment.
	ControlDir = ".west"
	// DefaultManifestPath is used when the config does not name one.
	DefaultManifestPath = "nrf"
	// ShortRevisionLen is the length of revisions reported by ManifestRevision.
	ShortRevisionLen = 12
)

// ErrNoWorkspace is returned when an environment has no west config.
var ErrNoWorkspace = errors.New("no west workspace")

// Config is the subset of .west/config envmgr uses.
type Config struct {
	ManifestPath string
	ManifestFile string
	ZephyrBase   string
}

// configFile mirrors the INI layout for gcfg.
type configFile struct {
	Manifest struct {
		Path string
		File string
	}
	Zephyr struct {
		Base string
	}
}

// ConfigPath returns <envDir>/.west/config.
func ConfigPath(envDir string) string {
	return filepath.Join(envDir, ControlDir, "config")
}

// Present reports whether envDir holds a west config file.
func Present(envDir string) bool {
	info, err := os.Stat(ConfigPath(envDir))
	return err == nil && !info.IsDir()
}

// ReadConfig parses <envDir>/.west/config. Unknown sections and variables
// are ignored.
func ReadConfig(envDir string) (*Config, error) {
	path := ConfigPath(envDir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoWorkspace
		}
		return nil, fmt.Errorf("stat west config: %w", err)
	}

	var raw configFile
	if err := gcfg.FatalOnly(gcfg.ReadFileInto(&raw, path)); err != nil {
		return nil, fmt.Errorf("parse west config: %w", err)
	}

	cfg := &Config{
		ManifestPath: raw.Manifest.Path,
		ManifestFile: raw.Manifest.File,
		ZephyrBase:   raw.Zephyr.Base,
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = DefaultManifestPath
	}
	return cfg, nil
}

// ManifestRevision returns the abbreviated HEAD commit of the manifest
// repository of the workspace in envDir.
func ManifestRevision(ctx context.Context, envDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	cfg, err := ReadConfig(envDir)
	if err != nil {
		return "", err
	}

	repo, err := gogit.PlainOpen(filepath.Join(envDir, filepath.FromSlash(cfg.ManifestPath)))
	if err != nil {
		return "", fmt.Errorf("open manifest repository: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}

	hash := ref.Hash().String()
	if len(hash) > ShortRevisionLen {
		hash = hash[:ShortRevisionLen]
	}
	return hash, nil
}

// RemoveControlDir deletes <envDir>/.west so a fresh workspace can be
// initialized.
func RemoveControlDir(envDir string) error {
	if err := os.RemoveAll(filepath.Join(envDir, ControlDir)); err != nil {
		return fmt.Errorf("remove west control dir: %w", err)
	}
	return nil
}
