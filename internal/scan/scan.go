// Package scan discovers toolchains already installed under the install root.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/toolchain"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/west"
)

const (
	// ArchiveSuffix marks staged archives that are skipped while scanning.
	ArchiveSuffix = ".zip"
	// MarkerPath is the file, relative to a toolchain dir, that identifies it.
	MarkerPath = "ncsmgr/manifest.env"

	// DownloadsDir holds staged archives below the install root.
	DownloadsDir = "downloads"
	// StagingDir receives environments that are being deleted.
	StagingDir = "toBeDeleted"
	// StateDir holds envmgr's own state below the install root.
	StateDir = ".envmgr"
)

// ErrDirectoryNotFound is returned when the install root does not exist.
var ErrDirectoryNotFound = errors.New("install directory not found")

// Found is one toolchain discovered on disk.
type Found struct {
	Version        string
	ToolchainDir   string
	IsWestPresent  bool
	SourceRevision string
}

// Scanner walks an install root.
type Scanner struct {
	root string
	log  logging.Logger
}

// New creates a scanner for root.
func New(root string, log logging.Logger) *Scanner {
	return &Scanner{root: root, log: logging.OrNop(log)}
}

// Scan enumerates <root>/<env>/<entry>/ncsmgr/manifest.env markers and
// derives one Found per marker. It only reads the filesystem.
func (s *Scanner) Scan(ctx context.Context) ([]Found, error) {
	envDirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, s.root)
		}
		return nil, fmt.Errorf("read install directory: %w", err)
	}

	var found []Found
	for _, envDir := range envDirs {
		if !envDir.IsDir() || reserved(envDir.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		envPath := filepath.Join(s.root, envDir.Name())
		entries, err := os.ReadDir(envPath)
		if err != nil {
			s.log.Warn("skipping unreadable environment directory", "path", envPath, "error", err)
			continue
		}

		for _, entry := range entries {
			if skipEntry(entry.Name()) {
				continue
			}
			marker := filepath.Join(envPath, entry.Name(), filepath.FromSlash(MarkerPath))
			if !exists(marker) {
				continue
			}
			found = append(found, s.derive(ctx, marker))
		}
	}

	return found, nil
}

// skipEntry reports whether an env dir entry is a staged archive or the
// leftover of an interrupted extraction.
func skipEntry(name string) bool {
	for _, suffix := range []string{ArchiveSuffix, toolchain.PartialSuffix, toolchain.ReplacedSuffix} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// derive reconstructs the environment from the marker location:
// toolchainDir is the marker's grandparent, the version is the name of
// toolchainDir's parent.
func (s *Scanner) derive(ctx context.Context, marker string) Found {
	toolchainDir := filepath.Dir(filepath.Dir(marker))
	envDir := filepath.Dir(toolchainDir)

	f := Found{
		Version:       filepath.Base(envDir),
		ToolchainDir:  toolchainDir,
		IsWestPresent: west.Present(envDir),
	}

	if f.IsWestPresent {
		rev, err := west.ManifestRevision(ctx, envDir)
		if err != nil {
			s.log.Debug("source revision unavailable", "version", f.Version, "error", err)
		} else {
			f.SourceRevision = rev
		}
	}

	s.log.Debug("found installed toolchain", "version", f.Version, "dir", toolchainDir, "west", f.IsWestPresent)
	return f
}

// Publish scans the install root and upserts every discovery into store.
func (s *Scanner) Publish(ctx context.Context, store *environment.Store) error {
	found, err := s.Scan(ctx)
	if err != nil {
		return err
	}

	for _, f := range found {
		err := store.Upsert(&environment.Patch{
			Version:        f.Version,
			ToolchainDir:   environment.String(f.ToolchainDir),
			IsWestPresent:  environment.Bool(f.IsWestPresent),
			SourceRevision: environment.String(f.SourceRevision),
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", f.Version, err)
		}
	}
	return nil
}

// reserved reports top-level names that never hold an environment.
func reserved(name string) bool {
	return name == DownloadsDir || name == StagingDir || strings.HasPrefix(name, ".")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
