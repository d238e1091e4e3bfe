package toolchain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
)

// Pipeline runs download, verification, extraction and the optional
// post-processing step of one install at a time per call.
type Pipeline struct {
	downloader *Downloader
	extractor  *Extractor
	log        logging.Logger
}

// NewPipeline creates a pipeline. A nil downloader gets the defaults.
func NewPipeline(downloader *Downloader, log logging.Logger) *Pipeline {
	if downloader == nil {
		downloader = NewDownloader(DownloaderOptions{Logger: log})
	}
	return &Pipeline{
		downloader: downloader,
		extractor:  NewExtractor(),
		log:        logging.OrNop(log),
	}
}

// run is the state of a single Run call.
type run struct {
	req   Request
	sink  ProgressSink
	phase Phase
	last  int
	log   logging.Logger
}

func (r *run) enter(p Phase) {
	r.log.Debug("install phase", "toolchain", r.req.Toolchain.Name, "from", r.phase, "to", p)
	r.phase = p
	r.sink.Phase(p)
}

// report forwards progress when the value grew. Equal or lower values are
// dropped so observers see a non-decreasing sequence.
func (r *run) report(p int) {
	if p > MaxProgress {
		p = MaxProgress
	}
	if p <= r.last {
		return
	}
	r.last = p
	r.sink.Progress(p)
}

func (r *run) fail(err error) error {
	r.enter(PhaseFailed)
	return err
}

// Run executes req. On any failure the run ends in PhaseFailed, Completed
// is never called and the returned error wraps ErrDownload,
// ErrChecksumMismatch, ErrExtract or the post-processing error.
func (p *Pipeline) Run(ctx context.Context, req Request, sink ProgressSink) (*Result, error) {
	if sink == nil {
		sink = NopSink{}
	}
	if req.Allocation == (Allocation{}) {
		req.Allocation = DefaultAllocation
	}

	start := time.Now()
	r := &run{req: req, sink: sink, phase: PhaseIdle, last: -1, log: p.log}

	// Downloading
	r.enter(PhaseDownloading)
	digest, size, err := p.fetch(ctx, r)
	if err != nil {
		os.Remove(req.ArchivePath)
		return nil, r.fail(err)
	}

	// Verifying
	r.enter(PhaseVerifying)
	if err := VerifyDigest(req.URL, req.Toolchain.SHA512, digest); err != nil {
		p.log.Warn("checksum mismatch, discarding archive", "url", req.URL, "archive", req.ArchivePath)
		os.Remove(req.ArchivePath)
		return nil, r.fail(err)
	}

	// Extracting
	r.enter(PhaseExtracting)
	if err := p.extract(ctx, r); err != nil {
		return nil, r.fail(err)
	}

	if err := os.Remove(req.ArchivePath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("unable to remove staged archive", "archive", req.ArchivePath, "error", err)
	}
	sink.Completed(req.DestDir)

	result := &Result{
		Toolchain:    req.Toolchain,
		ToolchainDir: req.DestDir,
		Bytes:        size,
		Digest:       digest,
	}

	if req.PostProcess != nil {
		r.enter(PhasePostProcessing)
		if err := req.PostProcess(ctx); err != nil {
			return result, r.fail(err)
		}
	}

	result.Duration = time.Since(start)
	r.enter(PhaseDone)
	return result, nil
}

// extract unpacks the archive next to DestDir and swaps the result into
// place only once extraction completed. A failed run leaves an existing
// DestDir untouched and removes the parent directory if this run created it
// and nothing else lives there.
func (p *Pipeline) extract(ctx context.Context, r *run) error {
	req := r.req
	parent := filepath.Dir(req.DestDir)
	_, statErr := os.Stat(parent)
	createdParent := os.IsNotExist(statErr)

	staging := req.DestDir + PartialSuffix
	if err := os.RemoveAll(staging); err != nil {
		p.log.Warn("unable to clear leftover extraction", "dir", staging, "error", err)
	}

	tracker := newExtractTracker(req.Allocation)
	p.extractor.Extract(ctx, req.ArchivePath, staging, func(ev Event) {
		if progress, ok := tracker.transition(ev); ok {
			r.report(progress)
		}
	})
	err := tracker.err
	if err == nil {
		err = replaceDir(staging, req.DestDir)
	}
	if err == nil {
		return nil
	}

	p.log.Error("extraction failed", "archive", req.ArchivePath, "dest", req.DestDir, "error", err)
	os.RemoveAll(staging)
	if createdParent {
		// Only succeeds when empty.
		os.Remove(parent)
	}
	return err
}

// replaceDir moves src to dst. An existing dst is set aside first and
// restored when the move fails.
func replaceDir(src, dst string) error {
	old := dst + ReplacedSuffix
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("%w: %w", ErrExtract, err)
	}
	hadOld := false
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("%w: set aside %s: %w", ErrExtract, dst, err)
		}
		hadOld = true
	}
	if err := os.Rename(src, dst); err != nil {
		if hadOld {
			os.Rename(old, dst)
		}
		return fmt.Errorf("%w: move %s: %w", ErrExtract, src, err)
	}
	if hadOld {
		os.RemoveAll(old)
	}
	return nil
}

// fetch downloads the archive, or reuses a staged copy whose digest
// already matches.
func (p *Pipeline) fetch(ctx context.Context, r *run) (string, int64, error) {
	req := r.req
	if info, err := os.Stat(req.ArchivePath); err == nil && info.Mode().IsRegular() && req.Toolchain.SHA512 != "" {
		if digest, err := FileDigest(req.ArchivePath); err == nil && VerifyDigest(req.URL, req.Toolchain.SHA512, digest) == nil {
			p.log.Info("reusing staged archive", "archive", req.ArchivePath)
			r.report(req.Allocation.Download)
			return digest, info.Size(), nil
		}
	}

	share := float64(req.Allocation.Download)
	digest, size, err := p.downloader.Download(ctx, req.URL, req.ArchivePath, func(received, total int64) {
		r.report(int(math.Round(float64(received) / float64(total) * share)))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("%w: %w", ErrDownload, err)
		}
		return "", 0, err
	}
	return digest, size, nil
}

// extractTracker folds extraction events into progress values.
type extractTracker struct {
	alloc Allocation
	done  bool
	err   error
}

func newExtractTracker(alloc Allocation) *extractTracker {
	return &extractTracker{alloc: alloc}
}

// transition applies ev and returns the progress to report, if any.
// Events after a terminal one are ignored.
func (t *extractTracker) transition(ev Event) (int, bool) {
	if t.done {
		return 0, false
	}

	switch ev.Kind {
	case EventProgress:
		if ev.Total <= 0 {
			return 0, false
		}
		p := int(math.Round(float64(ev.Current)/float64(ev.Total)*float64(t.alloc.Extract))) + t.alloc.Download
		if p > MaxProgress {
			p = MaxProgress
		}
		return p, true
	case EventCompleted:
		t.done = true
	case EventFailed:
		t.done = true
		t.err = fmt.Errorf("%w: %w", ErrExtract, ev.Err)
	default:
		t.done = true
		t.err = fmt.Errorf("%w: unexpected event %d", ErrExtract, ev.Kind)
	}
	return 0, false
}
