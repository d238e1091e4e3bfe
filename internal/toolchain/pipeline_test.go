package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
)

func testFiles() map[string]string {
	files := map[string]string{"ncsmgr/manifest.env": "NCS=1"}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("bin/tool%02d", i)] = strings.Repeat("x", 300)
	}
	return files
}

func newRequest(t *testing.T, url string, sha string, alloc Allocation) Request {
	t.Helper()
	root := t.TempDir()
	return Request{
		Toolchain:   environment.Toolchain{Version: "1", Name: "a.zip", SHA512: sha},
		URL:         url,
		ArchivePath: filepath.Join(root, "downloads", "a.zip"),
		DestDir:     filepath.Join(root, "1.2.0", "toolchain"),
		Allocation:  alloc,
	}
}

func TestPipeline_Run(t *testing.T) {
	tests := []struct {
		name  string
		alloc Allocation
	}{
		{name: "clone_allocation", alloc: CloneAllocation},
		{name: "default_allocation", alloc: DefaultAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, data := createTestZip(t, testFiles())
			srv := serveBytes(t, data)
			req := newRequest(t, srv.URL+"/a.zip", strings.ToUpper(sha512Hex(data)), tt.alloc)

			sink := &recordingSink{}
			result, err := NewPipeline(nil, nil).Run(context.Background(), req, sink)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			wantPhases := []Phase{PhaseDownloading, PhaseVerifying, PhaseExtracting, PhaseDone}
			if fmt.Sprint(sink.phases) != fmt.Sprint(wantPhases) {
				t.Errorf("phases = %v, want %v", sink.phases, wantPhases)
			}

			prev := -1
			extracting := false
			for _, p := range sink.progress {
				if p <= prev {
					t.Errorf("progress not increasing: %v", sink.progress)
					break
				}
				if p > tt.alloc.Download {
					extracting = true
				}
				if !extracting && (p < 0 || p > tt.alloc.Download) {
					t.Errorf("download progress %d outside [0,%d]", p, tt.alloc.Download)
				}
				if p > MaxProgress {
					t.Errorf("progress %d above %d", p, MaxProgress)
				}
				prev = p
			}
			if !extracting {
				t.Errorf("no extraction progress in %v", sink.progress)
			}

			if sink.completed != 1 || sink.toolchainDir != req.DestDir {
				t.Errorf("completed = %d dir = %q", sink.completed, sink.toolchainDir)
			}
			if result.Bytes != int64(len(data)) {
				t.Errorf("Bytes = %d, want %d", result.Bytes, len(data))
			}
			if _, err := os.Stat(filepath.Join(req.DestDir, "ncsmgr", "manifest.env")); err != nil {
				t.Errorf("marker not extracted: %v", err)
			}
			if _, err := os.Stat(req.ArchivePath); !os.IsNotExist(err) {
				t.Error("staged archive should be removed after extraction")
			}
		})
	}
}

func TestPipeline_ChecksumMismatch(t *testing.T) {
	_, data := createTestZip(t, testFiles())
	srv := serveBytes(t, data)
	req := newRequest(t, srv.URL+"/a.zip", "abc123", CloneAllocation)

	sink := &recordingSink{}
	_, err := NewPipeline(nil, nil).Run(context.Background(), req, sink)

	var ce *ChecksumError
	if !errors.As(err, &ce) || !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Run() error = %v, want *ChecksumError", err)
	}
	if ce.URL != req.URL || ce.Expected != "abc123" {
		t.Errorf("ChecksumError = %+v", ce)
	}
	if sink.completed != 0 || sink.toolchainDir != "" {
		t.Error("toolchain dir reported after checksum mismatch")
	}
	for _, p := range sink.phases {
		if p == PhaseExtracting {
			t.Error("extraction started after checksum mismatch")
		}
	}
	if last := sink.phases[len(sink.phases)-1]; last != PhaseFailed {
		t.Errorf("last phase = %v, want failed", last)
	}
	if _, err := os.Stat(req.ArchivePath); !os.IsNotExist(err) {
		t.Error("mismatching archive must be removed")
	}
	if _, err := os.Stat(req.DestDir); !os.IsNotExist(err) {
		t.Error("destination must not be created")
	}
}

func TestPipeline_ExtractFailure(t *testing.T) {
	data := bytes.Repeat([]byte("garbage"), 100)
	srv := serveBytes(t, data)
	req := newRequest(t, srv.URL+"/a.zip", sha512Hex(data), DefaultAllocation)

	sink := &recordingSink{}
	_, err := NewPipeline(nil, nil).Run(context.Background(), req, sink)
	if !errors.Is(err, ErrExtract) {
		t.Fatalf("Run() error = %v, want ErrExtract", err)
	}
	if sink.completed != 0 {
		t.Error("completion reported for failed extraction")
	}
}

func escapingFiles() map[string]string {
	files := testFiles()
	files["../escape"] = "x"
	return files
}

func TestPipeline_FailedReinstallKeepsToolchain(t *testing.T) {
	_, data := createTestZip(t, escapingFiles())
	srv := serveBytes(t, data)
	req := newRequest(t, srv.URL+"/a.zip", sha512Hex(data), DefaultAllocation)

	marker := filepath.Join(req.DestDir, "ncsmgr", "manifest.env")
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("NCS=0"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	_, err := NewPipeline(nil, nil).Run(context.Background(), req, sink)
	if !errors.Is(err, ErrExtract) {
		t.Fatalf("Run() error = %v, want ErrExtract", err)
	}
	if sink.completed != 0 {
		t.Error("completion reported for failed extraction")
	}

	got, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("existing toolchain removed: %v", err)
	}
	if string(got) != "NCS=0" {
		t.Errorf("marker = %q, want the previous content", got)
	}
	if _, err := os.Stat(req.DestDir + PartialSuffix); !os.IsNotExist(err) {
		t.Error("partial extraction left behind")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(req.DestDir), "escape")); !os.IsNotExist(err) {
		t.Error("entry escaped the destination")
	}
}

func TestPipeline_ReinstallReplacesToolchain(t *testing.T) {
	_, data := createTestZip(t, testFiles())
	srv := serveBytes(t, data)
	req := newRequest(t, srv.URL+"/a.zip", sha512Hex(data), DefaultAllocation)

	stale := filepath.Join(req.DestDir, "stale")
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	// leftover of an interrupted run
	if err := os.MkdirAll(filepath.Join(req.DestDir+PartialSuffix, "junk"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := NewPipeline(nil, nil).Run(context.Background(), req, &recordingSink{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(req.DestDir, "ncsmgr", "manifest.env")); err != nil {
		t.Errorf("marker not extracted: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("previous toolchain content should be replaced")
	}
	for _, suffix := range []string{PartialSuffix, ReplacedSuffix} {
		if _, err := os.Stat(req.DestDir + suffix); !os.IsNotExist(err) {
			t.Errorf("%s directory left behind", suffix)
		}
	}
}

func TestPipeline_FailedFreshInstallRemovesEnvDir(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{name: "not_an_archive", data: func(t *testing.T) []byte { return bytes.Repeat([]byte("garbage"), 100) }},
		{name: "escaping_entry", data: func(t *testing.T) []byte {
			_, data := createTestZip(t, escapingFiles())
			return data
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data(t)
			srv := serveBytes(t, data)
			req := newRequest(t, srv.URL+"/a.zip", sha512Hex(data), DefaultAllocation)

			_, err := NewPipeline(nil, nil).Run(context.Background(), req, &recordingSink{})
			if !errors.Is(err, ErrExtract) {
				t.Fatalf("Run() error = %v, want ErrExtract", err)
			}
			if _, err := os.Stat(filepath.Dir(req.DestDir)); !os.IsNotExist(err) {
				t.Errorf("env dir left behind: %v", err)
			}
		})
	}
}

func TestPipeline_FailedInstallKeepsExistingEnvDir(t *testing.T) {
	data := bytes.Repeat([]byte("garbage"), 100)
	srv := serveBytes(t, data)
	req := newRequest(t, srv.URL+"/a.zip", sha512Hex(data), DefaultAllocation)

	envDir := filepath.Dir(req.DestDir)
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := NewPipeline(nil, nil).Run(context.Background(), req, &recordingSink{}); !errors.Is(err, ErrExtract) {
		t.Fatalf("Run() error = %v, want ErrExtract", err)
	}
	if _, err := os.Stat(envDir); err != nil {
		t.Errorf("pre-existing env dir removed: %v", err)
	}
}

func TestExtractTracker_ReachesMaxProgress(t *testing.T) {
	for _, alloc := range []Allocation{DefaultAllocation, CloneAllocation} {
		if got := alloc.Download + alloc.Extract; got != MaxProgress {
			t.Errorf("allocation %+v sums to %d, want %d", alloc, got, MaxProgress)
		}
		tracker := newExtractTracker(alloc)
		got, ok := tracker.transition(Event{Kind: EventProgress, Current: 7, Total: 7})
		if !ok || got != MaxProgress {
			t.Errorf("allocation %+v: final progress = %d, %v; want %d", alloc, got, ok, MaxProgress)
		}
	}
}

func TestPipeline_PostProcess(t *testing.T) {
	_, data := createTestZip(t, testFiles())
	srv := serveBytes(t, data)

	wantErr := errors.New("clone failed")
	tests := []struct {
		name      string
		post      error
		wantPhase Phase
	}{
		{name: "success", wantPhase: PhaseDone},
		{name: "failure", post: wantErr, wantPhase: PhaseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, srv.URL+"/a.zip", sha512Hex(data), CloneAllocation)
			ran := false
			req.PostProcess = func(ctx context.Context) error {
				ran = true
				return tt.post
			}

			sink := &recordingSink{}
			_, err := NewPipeline(nil, nil).Run(context.Background(), req, sink)
			if !errors.Is(err, tt.post) && !(tt.post == nil && err == nil) {
				t.Fatalf("Run() error = %v, want %v", err, tt.post)
			}
			if !ran {
				t.Error("post-processing did not run")
			}
			if sink.completed != 1 {
				t.Error("extraction completion must be reported before post-processing")
			}
			n := len(sink.phases)
			if sink.phases[n-2] != PhasePostProcessing || sink.phases[n-1] != tt.wantPhase {
				t.Errorf("phases = %v", sink.phases)
			}
		})
	}
}

func TestPipeline_ReusesStagedArchive(t *testing.T) {
	_, data := createTestZip(t, testFiles())
	req := newRequest(t, "http://127.0.0.1:1/a.zip", sha512Hex(data), DefaultAllocation)
	if err := os.MkdirAll(filepath.Dir(req.ArchivePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(req.ArchivePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	if _, err := NewPipeline(nil, nil).Run(context.Background(), req, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.progress) == 0 || sink.progress[0] != DefaultAllocation.Download {
		t.Errorf("progress = %v, want to start at %d", sink.progress, DefaultAllocation.Download)
	}
}

func TestResolve(t *testing.T) {
	rec := environment.Record{
		Version: "1.2.0",
		Toolchains: []environment.Toolchain{
			{Version: "2", Name: "b.zip"},
			{Version: "1", Name: "a.zip"},
			{Version: "0"},
		},
	}

	tests := []struct {
		name    string
		version string
		want    string
		wantErr bool
	}{
		{name: "latest", version: "", want: "2"},
		{name: "explicit", version: "1", want: "1"},
		{name: "unknown", version: "9", wantErr: true},
		{name: "no_archive_name", version: "0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := Resolve(rec, tt.version)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownToolchain) {
					t.Errorf("Resolve() error = %v, want ErrUnknownToolchain", err)
				}
				return
			}
			if err != nil || tc.Version != tt.want {
				t.Errorf("Resolve() = %+v, %v; want %s", tc, err, tt.want)
			}
		})
	}

	if _, err := Resolve(environment.Record{Version: "1.0.0"}, ""); !errors.Is(err, ErrUnknownToolchain) {
		t.Errorf("Resolve(empty) error = %v", err)
	}
}

func TestVerifyDigest(t *testing.T) {
	if err := VerifyDigest("u", "ABCDEF", "abcdef"); err != nil {
		t.Errorf("case-insensitive compare failed: %v", err)
	}
	if err := VerifyDigest("u", "abc123", "def456"); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyDigest() error = %v, want ErrChecksumMismatch", err)
	}
	if err := VerifyDigest("u", "", "def456"); err == nil {
		t.Error("empty expected digest must not verify")
	}
}
