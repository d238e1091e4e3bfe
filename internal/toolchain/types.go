package toolchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
)

var (
	// ErrDownload covers transport failures and unusable responses.
	ErrDownload = errors.New("toolchain download failed")
	// ErrChecksumMismatch is matched by every *ChecksumError.
	ErrChecksumMismatch = errors.New("checksum verification failed")
	// ErrExtract covers corrupt archives and filesystem failures while unpacking.
	ErrExtract = errors.New("toolchain extraction failed")
	// ErrUnknownToolchain is returned when the requested toolchain is not in
	// the environment's list.
	ErrUnknownToolchain = errors.New("unknown toolchain")
	// ErrUnsupportedArchive is returned for archive names without a known suffix.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
)

// ChecksumError names the archive whose digest did not match.
type ChecksumError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed %s", e.URL)
}

// Is makes errors.Is(err, ErrChecksumMismatch) true for every ChecksumError.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// Phase is the position of a pipeline run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDownloading
	PhaseVerifying
	PhaseExtracting
	PhasePostProcessing
	PhaseDone
	PhaseFailed
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDownloading:
		return "downloading"
	case PhaseVerifying:
		return "verifying"
	case PhaseExtracting:
		return "extracting"
	case PhasePostProcessing:
		return "post-processing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Allocation splits the progress scale between download and extraction.
type Allocation struct {
	Download int
	Extract  int
}

var (
	// DefaultAllocation is used when no clone step follows the install.
	DefaultAllocation = Allocation{Download: 50, Extract: 49}
	// CloneAllocation is used when the SDK clone runs after extraction.
	CloneAllocation = Allocation{Download: 49, Extract: 50}
)

// Suffixes of the sibling directories used while swapping a freshly
// extracted toolchain into place. Scanners ignore both.
const (
	PartialSuffix  = ".partial"
	ReplacedSuffix = ".old"
)

// MaxProgress is the highest value reported before completion clears progress.
const MaxProgress = 99

// ProgressSink receives pipeline updates. Calls are made from the goroutine
// running the pipeline.
type ProgressSink interface {
	// Phase is called on every transition.
	Phase(p Phase)
	// Progress is called only when the rounded percentage changes.
	Progress(percent int)
	// Completed is called once extraction succeeded.
	Completed(toolchainDir string)
}

// NopSink ignores every update.
type NopSink struct{}

func (NopSink) Phase(Phase)      {}
func (NopSink) Progress(int)     {}
func (NopSink) Completed(string) {}

// Request describes one install.
type Request struct {
	// Toolchain is the resolved descriptor; Name and SHA512 are required.
	Toolchain environment.Toolchain
	// URL the archive is fetched from.
	URL string
	// ArchivePath is the staging file, normally <installRoot>/downloads/<name>.
	ArchivePath string
	// DestDir receives the extracted toolchain.
	DestDir    string
	Allocation Allocation
	// PostProcess runs after extraction when set. Its failure fails the run
	// but leaves the extracted toolchain in place.
	PostProcess func(ctx context.Context) error
}

// Result describes a finished run.
type Result struct {
	Toolchain    environment.Toolchain
	ToolchainDir string
	Bytes        int64
	Digest       string
	Duration     time.Duration
}

// Resolve picks the toolchain to install: the requested version, or the
// newest one when version is empty.
func Resolve(rec environment.Record, version string) (environment.Toolchain, error) {
	var (
		tc environment.Toolchain
		ok bool
	)
	if version == "" {
		tc, ok = environment.LatestToolchain(rec)
	} else {
		tc, ok = environment.FindToolchain(rec, version)
	}
	if !ok {
		if version == "" {
			return tc, fmt.Errorf("%w: environment %s lists no toolchains", ErrUnknownToolchain, rec.Version)
		}
		return tc, fmt.Errorf("%w: %s for environment %s", ErrUnknownToolchain, version, rec.Version)
	}
	if tc.Name == "" {
		return tc, fmt.Errorf("%w: toolchain %s of %s has no archive name", ErrUnknownToolchain, tc.Version, rec.Version)
	}
	return tc, nil
}
