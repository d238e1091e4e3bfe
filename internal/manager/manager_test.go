package manager

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/config"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/launcher"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/metrics"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/platform"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/scan"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/shell"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/toolchain"
)

type fakeRunner struct {
	mu      sync.Mutex
	started []launcher.Command
	ran     []launcher.Command
	runErr  error
	onRun   func(launcher.Command)
}

func (f *fakeRunner) Start(ctx context.Context, cmd launcher.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, cmd)
	return nil
}

func (f *fakeRunner) Run(ctx context.Context, cmd launcher.Command) error {
	f.mu.Lock()
	f.ran = append(f.ran, cmd)
	f.mu.Unlock()
	if f.onRun != nil {
		f.onRun(cmd)
	}
	return f.runErr
}

type fakeHolders []string

func (f fakeHolders) Holders(ctx context.Context, dir string) []string { return f }

// toolchainZip returns a zip holding a toolchain with its marker file.
// toolchainZip builds a toolchain archive. Each extra name is added as an
// entry before the regular content.
func toolchainZip(t *testing.T, extra ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range extra {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte("x"))
	}
	for i := 0; i < 10; i++ {
		w, err := zw.Create(fmt.Sprintf("bin/tool%d", i))
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write(bytes.Repeat([]byte{byte(i)}, 512))
	}
	w, err := zw.Create(scan.MarkerPath)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("NCS=1\n"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sha512Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// serveIndex serves /index.json listing 1.2.0 and 1.3.0 and the archive /a.zip.
func serveIndex(t *testing.T, archive []byte, sha string) *httptest.Server {
	t.Helper()
	index := fmt.Sprintf(`[
		{"version":"1.2.0","toolchains":[{"version":"1","name":"a.zip","sha512":%q}]},
		{"version":"1.3.0","toolchains":[]}
	]`, sha)

	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(index))
	})
	mux.HandleFunc("/a.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, indexURL string, clone bool) (*Manager, *fakeRunner, string) {
	t.Helper()
	root := t.TempDir()
	settings := config.Defaults(root)
	settings.IndexURL = indexURL
	settings.CloneAfterInstall = clone
	settings.Retries = 0

	runner := &fakeRunner{}
	m, err := New(Options{
		Settings: settings,
		Platform: &platform.Info{OS: runtime.GOOS, Arch: runtime.GOARCH},
		Runner:   runner,
		Holders:  fakeHolders(nil),
		Metrics:  metrics.New(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, runner, root
}

// installOnDisk lays out an installed environment without the pipeline.
func installOnDisk(t *testing.T, root, version string) string {
	t.Helper()
	toolchainDir := filepath.Join(root, version, ToolchainDirName)
	marker := filepath.Join(toolchainDir, filepath.FromSlash(scan.MarkerPath))
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("NCS=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return toolchainDir
}

func watch(t *testing.T, store *environment.Store) func() []environment.Snapshot {
	t.Helper()
	var mu sync.Mutex
	var snaps []environment.Snapshot
	cancel := store.Subscribe(func(s environment.Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})
	t.Cleanup(cancel)
	return func() []environment.Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return append([]environment.Snapshot(nil), snaps...)
	}
}

func find(s environment.Snapshot, version string) (environment.Record, bool) {
	for _, r := range s.Environments {
		if r.Version == version {
			return r, true
		}
	}
	return environment.Record{}, false
}

func TestManager_Initialize(t *testing.T) {
	archive := toolchainZip(t)
	srv := serveIndex(t, archive, sha512Hex(archive))
	m, _, root := newTestManager(t, srv.URL+"/index.json", false)
	dir := installOnDisk(t, root, "1.2.0")

	if err := m.Initialize(context.Background(), false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	list := m.Store().List()
	if len(list) != 2 || list[0].Version != "1.3.0" || list[1].Version != "1.2.0" {
		t.Fatalf("List() = %+v", list)
	}
	if list[1].ToolchainDir != dir {
		t.Errorf("ToolchainDir = %q, want %q", list[1].ToolchainDir, dir)
	}
	if len(list[1].Toolchains) != 1 || list[1].Toolchains[0].Name != "a.zip" {
		t.Errorf("Toolchains = %+v", list[1].Toolchains)
	}
	if list[0].Installed() {
		t.Error("1.3.0 must not be installed")
	}
}

func TestManager_Initialize_Offline(t *testing.T) {
	m, _, root := newTestManager(t, "http://127.0.0.1:1/index.json", false)
	installOnDisk(t, root, "1.2.0")

	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatalf("Initialize(offline) error = %v", err)
	}
	if _, ok := m.Store().Get("1.2.0"); !ok {
		t.Error("installed environment not scanned")
	}
}

func TestManager_Initialize_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ncs")
	settings := config.Defaults(root)
	m, err := New(Options{Settings: settings, Platform: &platform.Info{OS: runtime.GOOS}})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("install root not created: %v", err)
	}
}

func TestManager_Install(t *testing.T) {
	tests := []struct {
		name  string
		clone bool
	}{
		{name: "without_clone", clone: false},
		{name: "with_clone", clone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := toolchainZip(t)
			srv := serveIndex(t, archive, sha512Hex(archive))
			m, runner, root := newTestManager(t, srv.URL+"/index.json", tt.clone)
			if err := m.Initialize(context.Background(), false); err != nil {
				t.Fatal(err)
			}

			envDir := filepath.Join(root, "1.2.0")
			if tt.clone {
				// a stale workspace must be gone before the clone runs
				if err := os.MkdirAll(filepath.Join(envDir, ".west"), 0o755); err != nil {
					t.Fatal(err)
				}
				runner.onRun = func(cmd launcher.Command) {
					if _, err := os.Stat(filepath.Join(envDir, ".west")); !os.IsNotExist(err) {
						t.Error(".west not removed before clone")
					}
					rec, _ := m.Store().Get("1.2.0")
					if !rec.IsCloning {
						t.Error("IsCloning not set during clone")
					}
				}
			}

			snaps := watch(t, m.Store())
			if !m.FirstInstall() {
				t.Error("FirstInstall() = false before any install")
			}

			if err := m.InstallLatest(context.Background(), "1.2.0"); err != nil {
				t.Fatalf("Install() error = %v", err)
			}

			prev := -1
			sawInProcess := false
			for _, s := range snaps() {
				rec, ok := find(s, "1.2.0")
				if !ok {
					continue
				}
				sawInProcess = sawInProcess || s.InProcess
				if rec.Progress == nil {
					continue
				}
				p := *rec.Progress
				if p < prev {
					t.Fatalf("progress went backwards: %d after %d", p, prev)
				}
				if rec.Installed() {
					t.Errorf("progress %d reported while installed", p)
				}
				if p > toolchain.MaxProgress {
					t.Errorf("progress %d above %d", p, toolchain.MaxProgress)
				}
				prev = p
			}
			if !sawInProcess {
				t.Error("in-process flag never raised")
			}

			rec, _ := m.Store().Get("1.2.0")
			if rec.ToolchainDir != filepath.Join(envDir, ToolchainDirName) {
				t.Errorf("ToolchainDir = %q", rec.ToolchainDir)
			}
			if rec.Progress != nil || rec.IsInProcess || rec.IsCloning || m.Store().InProcess() {
				t.Errorf("flags not cleared: %+v inProcess=%v", rec, m.Store().InProcess())
			}
			if m.FirstInstall() || m.Selected() != "1.2.0" {
				t.Errorf("state not recorded: first=%v selected=%q", m.FirstInstall(), m.Selected())
			}

			wantRuns := 0
			if tt.clone {
				wantRuns = 1
			}
			if len(runner.ran) != wantRuns {
				t.Fatalf("clone runs = %d, want %d", len(runner.ran), wantRuns)
			}
			if tt.clone {
				cmd := runner.ran[0]
				if cmd.Dir != envDir || cmd.Args[len(cmd.Args)-1] != launcher.CloneScript {
					t.Errorf("clone command = %+v", cmd)
				}
			}
		})
	}
}

func TestManager_Install_ChecksumMismatch(t *testing.T) {
	archive := toolchainZip(t)
	srv := serveIndex(t, archive, "abc123")
	m, _, root := newTestManager(t, srv.URL+"/index.json", true)
	if err := m.Initialize(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	snaps := watch(t, m.Store())

	err := m.InstallLatest(context.Background(), "1.2.0")
	if !errors.Is(err, toolchain.ErrChecksumMismatch) {
		t.Fatalf("Install() error = %v, want ErrChecksumMismatch", err)
	}

	for _, s := range snaps() {
		if rec, ok := find(s, "1.2.0"); ok && rec.Installed() {
			t.Fatal("toolchain dir published after checksum mismatch")
		}
	}
	rec, _ := m.Store().Get("1.2.0")
	if rec.Installed() || rec.Progress != nil || rec.IsInProcess || m.Store().InProcess() {
		t.Errorf("record after mismatch = %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(root, "1.2.0", ToolchainDirName)); !os.IsNotExist(err) {
		t.Error("toolchain extracted despite mismatch")
	}
	if !m.FirstInstall() {
		t.Error("failed install recorded as installed")
	}
}

func TestManager_Install_FailedReinstallKeepsToolchain(t *testing.T) {
	archive := toolchainZip(t, "../escape")
	srv := serveIndex(t, archive, sha512Hex(archive))
	m, _, root := newTestManager(t, srv.URL+"/index.json", false)
	dir := installOnDisk(t, root, "1.2.0")
	if err := m.Initialize(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if rec, _ := m.Store().Get("1.2.0"); !rec.Installed() {
		t.Fatalf("precondition: 1.2.0 not installed: %+v", rec)
	}

	err := m.InstallLatest(context.Background(), "1.2.0")
	if !errors.Is(err, toolchain.ErrExtract) {
		t.Fatalf("Install() error = %v, want ErrExtract", err)
	}

	rec, _ := m.Store().Get("1.2.0")
	if !rec.Installed() || rec.ToolchainDir != dir {
		t.Errorf("record after failed reinstall = %+v, want installed at %s", rec, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(scan.MarkerPath))); err != nil {
		t.Errorf("installed toolchain removed by failed reinstall: %v", err)
	}
	if rec.Progress != nil || rec.IsInProcess || m.Store().InProcess() {
		t.Errorf("flags not cleared: %+v", rec)
	}
}

func TestManager_Install_FailureReconcilesMissingToolchain(t *testing.T) {
	archive := toolchainZip(t, "../escape")
	srv := serveIndex(t, archive, sha512Hex(archive))
	m, _, root := newTestManager(t, srv.URL+"/index.json", false)
	installOnDisk(t, root, "1.2.0")
	if err := m.Initialize(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(filepath.Join(root, "1.2.0")); err != nil {
		t.Fatal(err)
	}

	err := m.InstallLatest(context.Background(), "1.2.0")
	if !errors.Is(err, toolchain.ErrExtract) {
		t.Fatalf("Install() error = %v, want ErrExtract", err)
	}

	rec, _ := m.Store().Get("1.2.0")
	if rec.Installed() {
		t.Errorf("record still installed without a toolchain on disk: %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(root, "1.2.0")); !os.IsNotExist(err) {
		t.Errorf("env dir left behind: %v", err)
	}
}

func TestManager_Install_CloneFailure(t *testing.T) {
	archive := toolchainZip(t)
	srv := serveIndex(t, archive, sha512Hex(archive))
	m, runner, _ := newTestManager(t, srv.URL+"/index.json", true)
	runner.runErr = &launcher.ToolError{Path: "/bin/bash", ExitCode: 1}
	if err := m.Initialize(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	err := m.InstallLatest(context.Background(), "1.2.0")
	if !errors.Is(err, launcher.ErrExternalTool) {
		t.Fatalf("Install() error = %v, want ErrExternalTool", err)
	}

	rec, _ := m.Store().Get("1.2.0")
	if !rec.Installed() {
		t.Error("toolchain should stay installed when only the clone failed")
	}
	if rec.IsCloning || rec.IsInProcess || m.Store().InProcess() {
		t.Errorf("flags not cleared: %+v", rec)
	}
}

func TestManager_Install_Errors(t *testing.T) {
	m, _, _ := newTestManager(t, "http://127.0.0.1:1/index.json", false)
	_ = m.Store().Upsert(&environment.Patch{Version: "1.2.0", Toolchains: []environment.Toolchain{{Version: "1", Name: "a.zip", SHA512: "x"}}})

	if err := m.InstallLatest(context.Background(), "9.9.9"); !errors.Is(err, environment.ErrUnknownEnvironment) {
		t.Errorf("unknown environment: error = %v", err)
	}
	if err := m.Install(context.Background(), "1.2.0", InstallOptions{Toolchain: "7"}); !errors.Is(err, toolchain.ErrUnknownToolchain) {
		t.Errorf("unknown toolchain: error = %v", err)
	}

	guard := m.Store().Begin("1.1.0")
	defer guard.End()
	if err := m.InstallLatest(context.Background(), "1.2.0"); !errors.Is(err, environment.ErrBusy) {
		t.Errorf("busy: error = %v, want ErrBusy", err)
	}
}

func TestManager_Install_DownloadFailureClearsFlags(t *testing.T) {
	m, _, _ := newTestManager(t, "http://127.0.0.1:1/index.json", false)
	_ = m.Store().Upsert(&environment.Patch{Version: "1.2.0", Toolchains: []environment.Toolchain{{Version: "1", Name: "a.zip", SHA512: "x"}}})

	err := m.InstallLatest(context.Background(), "1.2.0")
	if !errors.Is(err, toolchain.ErrDownload) {
		t.Fatalf("Install() error = %v, want ErrDownload", err)
	}
	rec, _ := m.Store().Get("1.2.0")
	if rec.IsInProcess || m.Store().InProcess() || rec.Progress != nil {
		t.Errorf("flags not cleared after failure: %+v", rec)
	}
}

func TestManager_Open(t *testing.T) {
	m, runner, root := newTestManager(t, "http://127.0.0.1:1/index.json", false)
	dir := installOnDisk(t, root, "1.2.0")
	_ = m.Store().Upsert(&environment.Patch{Version: "1.3.0"})
	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for name, open := range map[string]func(context.Context, string) error{
		"folder":   m.OpenFolder,
		"terminal": m.OpenTerminal,
		"ide":      m.OpenIDE,
	} {
		if err := open(ctx, "1.2.0"); err != nil {
			t.Errorf("%s: error = %v", name, err)
		}
		if err := open(ctx, "1.3.0"); !errors.Is(err, ErrNotInstalled) {
			t.Errorf("%s on uninstalled: error = %v, want ErrNotInstalled", name, err)
		}
	}

	if len(runner.started) != 3 {
		t.Fatalf("started %d commands, want 3", len(runner.started))
	}
	for _, cmd := range runner.started {
		joined := cmd.Path + " " + strings.Join(cmd.Args, " ") + " " + cmd.Dir
		if !strings.Contains(joined, filepath.Dir(dir)) && !strings.Contains(joined, dir) {
			t.Errorf("command %+v does not target the environment", cmd)
		}
	}
}

func TestManager_ShellEnv(t *testing.T) {
	m, _, root := newTestManager(t, "http://127.0.0.1:1/index.json", false)
	dir := installOnDisk(t, root, "1.2.0")
	_ = m.Store().Upsert(&environment.Patch{Version: "1.3.0"})
	if err := m.Initialize(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	env, err := m.ShellEnv("1.2.0")
	if err != nil {
		t.Fatalf("ShellEnv() error = %v", err)
	}
	found := false
	for _, v := range env.Vars {
		if v.Name == shell.EnvToolchainDir && v.Value == dir {
			found = true
		}
	}
	if !found {
		t.Errorf("Vars = %+v, want %s=%s", env.Vars, shell.EnvToolchainDir, dir)
	}

	if _, err := m.ShellEnv("1.3.0"); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("ShellEnv(uninstalled) error = %v, want ErrNotInstalled", err)
	}
}
