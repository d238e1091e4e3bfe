package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/metrics"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/scan"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/toolchain"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/west"
)

// InstallOptions tunes one install.
type InstallOptions struct {
	// Toolchain selects a toolchain version; empty picks the newest.
	Toolchain string
	// NoClone skips the SDK clone even when the settings enable it.
	NoClone bool
}

// Install downloads, verifies and extracts a toolchain of version and, when
// configured, clones the SDK next to it. Progress is published to the
// registry. Only one install or remove runs at a time.
func (m *Manager) Install(ctx context.Context, version string, opts InstallOptions) error {
	rec, err := m.record(version)
	if err != nil {
		return err
	}
	tc, err := toolchain.Resolve(rec, opts.Toolchain)
	if err != nil {
		return err
	}

	end, err := m.begin(ctx, version)
	if err != nil {
		return err
	}
	defer end()

	clone := m.settings.CloneAfterInstall && !opts.NoClone
	alloc := toolchain.DefaultAllocation
	if clone {
		alloc = toolchain.CloneAllocation
	}

	root := m.settings.InstallDir
	req := toolchain.Request{
		Toolchain:   tc,
		URL:         m.settings.ArchiveURL(tc.Name),
		ArchivePath: filepath.Join(root, scan.DownloadsDir, tc.Name),
		DestDir:     filepath.Join(root, version, ToolchainDirName),
		Allocation:  alloc,
	}
	if clone {
		req.PostProcess = func(ctx context.Context) error {
			return m.clone(ctx, version, req.DestDir)
		}
	}

	m.log.Info("installing environment", "version", version, "toolchain", tc.Version, "url", req.URL)
	start := time.Now()
	result, err := m.pipeline.Run(ctx, req, &storeSink{store: m.store, version: version, log: m.log})

	var bytes int64
	if result != nil {
		bytes = result.Bytes
	}
	m.metrics.InstallFinished(installResult(err), bytes, time.Since(start))

	if err != nil {
		_ = m.store.Upsert(&environment.Patch{Version: version, ClearProgress: true})
		m.log.Error("install failed", "version", version, "error", err)
		if result == nil {
			m.reconcile(version)
			return err
		}
		// Extraction succeeded, only the clone failed: the toolchain is usable.
	}

	if serr := m.state.RecordInstall(version); serr != nil {
		m.log.Warn("unable to persist install state", "error", serr)
	}
	if rerr := m.Rescan(ctx); rerr != nil {
		m.log.Warn("rescan after install failed", "error", rerr)
	}
	if err == nil {
		m.log.Info("environment installed", "version", version, "dir", req.DestDir)
	}
	return err
}

// reconcile marks version as not installed when its recorded toolchain no
// longer exists on disk.
func (m *Manager) reconcile(version string) {
	_ = m.store.Update(version, func(rec environment.Record, ok bool) *environment.Patch {
		if !ok || !rec.Installed() {
			return nil
		}
		marker := filepath.Join(rec.ToolchainDir, filepath.FromSlash(scan.MarkerPath))
		if _, err := os.Stat(marker); err == nil {
			return nil
		}
		m.log.Warn("installed toolchain missing on disk", "version", version, "dir", rec.ToolchainDir)
		return &environment.Patch{ToolchainDir: environment.String("")}
	})
}

// InstallLatest installs the newest toolchain of version.
func (m *Manager) InstallLatest(ctx context.Context, version string) error {
	return m.Install(ctx, version, InstallOptions{})
}

// Clone runs the SDK clone step for an installed environment.
func (m *Manager) Clone(ctx context.Context, version string) error {
	rec, err := m.installed(version)
	if err != nil {
		return err
	}

	end, err := m.begin(ctx, version)
	if err != nil {
		return err
	}
	defer end()

	err = m.clone(ctx, version, rec.ToolchainDir)
	if rerr := m.Rescan(ctx); rerr != nil {
		m.log.Warn("rescan after clone failed", "error", rerr)
	}
	return err
}

// clone resets the west workspace and runs the clone script. The cloning
// flag is cleared on every path.
func (m *Manager) clone(ctx context.Context, version, toolchainDir string) error {
	if err := west.RemoveControlDir(filepath.Dir(toolchainDir)); err != nil {
		return err
	}

	_ = m.store.Upsert(&environment.Patch{Version: version, IsCloning: environment.Bool(true)})
	defer func() {
		_ = m.store.Upsert(&environment.Patch{Version: version, IsCloning: environment.Bool(false)})
	}()

	m.log.Info("cloning SDK", "version", version)
	if err := m.actions.Clone(ctx, toolchainDir, m.cloneOutput); err != nil {
		return err
	}
	return nil
}

func installResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, toolchain.ErrChecksumMismatch):
		return metrics.ResultChecksum
	case errors.Is(err, context.Canceled):
		return metrics.ResultCancelled
	default:
		return metrics.ResultFailure
	}
}

// storeSink maps pipeline updates onto registry patches.
type storeSink struct {
	store   *environment.Store
	version string
	log     logging.Logger
}

func (s *storeSink) Phase(p toolchain.Phase) {
	s.log.Debug("install phase", "version", s.version, "phase", p)
}

func (s *storeSink) Progress(percent int) {
	_ = s.store.Upsert(&environment.Patch{Version: s.version, Progress: environment.Int(percent)})
}

func (s *storeSink) Completed(toolchainDir string) {
	_ = s.store.Upsert(&environment.Patch{
		Version:       s.version,
		ToolchainDir:  environment.String(toolchainDir),
		ClearProgress: true,
	})
}
