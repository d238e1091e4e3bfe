// Package testutil provides utilities for testing envmgr in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated locations set up by SetupTestEnv.
type Env struct {
	Root       string
	InstallDir string
	ConfigPath string
}

// SetupTestEnv points every envmgr location at a fresh temp directory so
// tests never touch a real SDK install root or the user's settings.
//
// The install directory exists; the settings file does not. Callers that
// need one write it to ConfigPath.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := Env{
		Root:       tmpDir,
		InstallDir: filepath.Join(tmpDir, "ncs"),
		ConfigPath: filepath.Join(tmpDir, "config", "envmgr.lua"),
	}

	t.Setenv("ENVMGR_CONFIG", env.ConfigPath)
	t.Setenv("ENVMGR_INSTALL_DIR", env.InstallDir)
	// unreachable, so nothing leaves the machine unless a test serves an index
	t.Setenv("ENVMGR_INDEX_URL", "http://127.0.0.1:1/index.json")
	t.Setenv("ZEPHYR_BASE", "")

	for _, dir := range []string{env.InstallDir, filepath.Dir(env.ConfigPath)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return env
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
