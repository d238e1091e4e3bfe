package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/config"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/launcher"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/manager"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/manifest"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/metrics"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/platform"
)

type globalOptions struct {
	configPath  string
	installDir  string
	verbose     bool
	metricsFile string
}

// app carries what every subcommand shares.
type app struct {
	opts   globalOptions
	out    io.Writer
	errOut io.Writer

	// detector and runner are replaced in tests.
	detector platform.Detector
	runner   launcher.Runner

	metrics *metrics.Metrics
}

func (a *app) logger() logging.Logger {
	level := slog.LevelWarn
	if a.opts.verbose {
		level = slog.LevelDebug
	}
	return logging.NewText(a.errOut, level)
}

// settings detects the platform and loads the effective settings.
func (a *app) settings(ctx context.Context) (*config.Settings, *platform.Info, error) {
	detector := a.detector
	if detector == nil {
		detector = platform.NewDetector()
	}
	info, err := detector.Detect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("detect platform: %w", err)
	}

	s, err := config.Load(ctx, config.LoadOptions{
		Path:     a.opts.configPath,
		Detector: platform.Static{Info: info},
	})
	if err != nil {
		return nil, nil, err
	}
	if a.opts.installDir != "" {
		s.InstallDir = a.opts.installDir
		if err := s.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return s, info, nil
}

func (a *app) manager(ctx context.Context) (*manager.Manager, error) {
	s, info, err := a.settings(ctx)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.New()
	opts := manager.Options{
		Settings: s,
		Platform: info,
		Runner:   a.runner,
		Metrics:  a.metrics,
		Logger:   a.logger(),
	}
	if a.opts.verbose {
		opts.CloneOutput = a.errOut
	}
	return manager.New(opts)
}

// initialize prepares m. An unreachable or malformed index only warns so
// installed environments stay usable offline; a bad signature is fatal.
func (a *app) initialize(ctx context.Context, m *manager.Manager, offline bool) error {
	err := m.Initialize(ctx, offline)
	if err == nil {
		return nil
	}
	if errors.Is(err, manifest.ErrManifestFetch) || errors.Is(err, manifest.ErrManifestParse) {
		warn(a.errOut, "environment index unavailable, showing local environments only: %v", err)
		return nil
	}
	return err
}

func (a *app) flushMetrics() {
	if a.opts.metricsFile == "" || a.metrics == nil {
		return
	}
	if err := a.metrics.WriteTextfile(a.opts.metricsFile); err != nil {
		warn(a.errOut, "unable to write metrics: %v", err)
	}
}
