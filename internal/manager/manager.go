// Package manager wires the registry, scanner, manifest fetcher, install
// pipeline and launcher into the operations envmgr exposes: Initialize,
// Install, Remove, RemoveToolchain, Clone, the Open actions and ShellEnv.
//
// Every mutating operation holds the registry's in-process gate for its
// whole duration and a cross-process lock file in the state directory.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/config"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/launcher"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/manifest"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/metrics"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/platform"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/scan"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/shell"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/state"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/toolchain"
)

// ToolchainDirName is the directory below an environment holding its toolchain.
const ToolchainDirName = "toolchain"

// ErrNotInstalled is returned for operations that need an extracted toolchain.
var ErrNotInstalled = launcher.ErrNotInstalled

// Options configures a Manager.
type Options struct {
	Settings *config.Settings
	Platform *platform.Info

	// Store defaults to a fresh registry.
	Store *environment.Store
	// Runner defaults to launcher.Exec.
	Runner launcher.Runner
	// HTTPClient is shared by the manifest fetcher and the downloader when set.
	HTTPClient *http.Client
	// Holders finds processes keeping an environment busy. Defaults to a
	// gopsutil based scan.
	Holders HolderFinder
	// CloneOutput receives the output of the clone script.
	CloneOutput io.Writer
	Metrics     *metrics.Metrics
	Logger      logging.Logger
}

// Manager runs envmgr operations against one install root.
type Manager struct {
	settings    *config.Settings
	platform    *platform.Info
	store       *environment.Store
	state       *state.Store
	fetcher     *manifest.Fetcher
	pipeline    *toolchain.Pipeline
	actions     *launcher.Actions
	holders     HolderFinder
	fs          fileOps
	cloneOutput io.Writer
	metrics     *metrics.Metrics
	log         logging.Logger
}

// New creates a manager.
func New(opts Options) (*Manager, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if opts.Platform == nil {
		return nil, fmt.Errorf("platform info is required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}

	log := logging.OrNop(opts.Logger)
	store := opts.Store
	if store == nil {
		store = environment.NewStore()
	}
	runner := opts.Runner
	if runner == nil {
		runner = &launcher.Exec{Log: log}
	}
	holders := opts.Holders
	if holders == nil {
		holders = ProcessHolders{}
	}

	s := opts.Settings
	downloader := toolchain.NewDownloader(toolchain.DownloaderOptions{
		Timeout: s.HTTPTimeout,
		Retries: s.Retries,
		Client:  opts.HTTPClient,
		Logger:  log,
	})

	return &Manager{
		settings: s,
		platform: opts.Platform,
		store:    store,
		state:    state.NewStore(filepath.Join(s.InstallDir, scan.StateDir)),
		fetcher: manifest.NewFetcher(manifest.Options{
			URL:         s.IndexURL,
			Timeout:     s.ManifestTimeout,
			KeyringPath: s.Keyring,
			Client:      opts.HTTPClient,
			Logger:      log,
		}),
		pipeline:    toolchain.NewPipeline(downloader, log),
		actions:     launcher.NewActions(opts.Platform, runner, s.Shell),
		holders:     holders,
		fs:          osFileOps,
		cloneOutput: opts.CloneOutput,
		metrics:     opts.Metrics,
		log:         log,
	}, nil
}

// Store returns the registry the manager publishes to.
func (m *Manager) Store() *environment.Store {
	return m.store
}

// Settings returns the effective settings.
func (m *Manager) Settings() *config.Settings {
	return m.settings
}

// Initialize prepares the install root, finishes interrupted deletions,
// scans installed environments and, unless offline, merges the remote
// index.
func (m *Manager) Initialize(ctx context.Context, offline bool) error {
	if err := os.MkdirAll(m.settings.InstallDir, 0755); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	m.retryPendingDeletions(ctx)

	if err := m.Rescan(ctx); err != nil {
		return err
	}
	if offline {
		return nil
	}
	return m.FetchManifest(ctx)
}

// Rescan publishes the environments found on disk.
func (m *Manager) Rescan(ctx context.Context) error {
	if err := scan.New(m.settings.InstallDir, m.log).Publish(ctx, m.store); err != nil {
		return fmt.Errorf("scan install directory: %w", err)
	}
	return nil
}

// FetchManifest merges the remote index into the registry.
func (m *Manager) FetchManifest(ctx context.Context) error {
	if err := m.fetcher.Publish(ctx, m.store); err != nil {
		return err
	}
	m.log.Debug("environment index merged", "url", m.settings.IndexURL, "environments", len(m.store.List()))
	return nil
}

// FirstInstall reports whether no install has ever succeeded for this root.
func (m *Manager) FirstInstall() bool {
	st, err := m.state.Load()
	if err != nil {
		m.log.Warn("unable to read state", "error", err)
		return false
	}
	return !st.HasInstalled
}

// Selected returns the environment chosen by the last successful install.
func (m *Manager) Selected() string {
	st, err := m.state.Load()
	if err != nil {
		return ""
	}
	return st.Selected
}

// OpenFolder opens the environment directory of version.
func (m *Manager) OpenFolder(ctx context.Context, version string) error {
	rec, err := m.installed(version)
	if err != nil {
		return err
	}
	return m.actions.OpenFolder(ctx, rec.ToolchainDir)
}

// OpenTerminal starts the toolchain shell of version.
func (m *Manager) OpenTerminal(ctx context.Context, version string) error {
	rec, err := m.installed(version)
	if err != nil {
		return err
	}
	return m.actions.OpenTerminal(ctx, rec.ToolchainDir)
}

// OpenIDE starts the IDE of version.
func (m *Manager) OpenIDE(ctx context.Context, version string) error {
	rec, err := m.installed(version)
	if err != nil {
		return err
	}
	return m.actions.OpenIDE(ctx, rec.ToolchainDir)
}

// ShellEnv returns the environment that activates version in a shell.
func (m *Manager) ShellEnv(version string) (shell.Env, error) {
	rec, err := m.installed(version)
	if err != nil {
		return shell.Env{}, err
	}
	return shell.ForToolchain(version, rec.ToolchainDir, m.platform.IsWindows()), nil
}

func (m *Manager) record(version string) (environment.Record, error) {
	rec, ok := m.store.Get(version)
	if !ok {
		return rec, fmt.Errorf("%w: %s", environment.ErrUnknownEnvironment, version)
	}
	return rec, nil
}

func (m *Manager) installed(version string) (environment.Record, error) {
	rec, err := m.record(version)
	if err != nil {
		return rec, err
	}
	if !rec.Installed() {
		return rec, fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	return rec, nil
}

// begin takes the in-process gate and the cross-process lock.
func (m *Manager) begin(ctx context.Context, version string) (func(), error) {
	guard, err := m.store.TryBegin(version)
	if err != nil {
		return nil, err
	}
	lock, err := state.AcquireLock(ctx, m.state.Dir())
	if err != nil {
		guard.End()
		if errors.Is(err, state.ErrLockExists) {
			return nil, fmt.Errorf("%w: %v", environment.ErrBusy, err)
		}
		return nil, err
	}
	return func() {
		if err := lock.Release(); err != nil {
			m.log.Warn("unable to release lock", "error", err)
		}
		guard.End()
	}, nil
}
