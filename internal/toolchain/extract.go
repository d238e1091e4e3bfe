package toolchain

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EventKind discriminates extraction events.
type EventKind int

const (
	// EventProgress reports Current of Total entries processed.
	EventProgress EventKind = iota
	// EventCompleted is emitted once after the last entry.
	EventCompleted
	// EventFailed carries the cause in Err. No event follows it.
	EventFailed
)

// Event is produced by the Extractor. Every extraction ends with exactly
// one EventCompleted or EventFailed.
type Event struct {
	Kind    EventKind
	Current int
	Total   int
	Err     error
}

// Extractor handles archive extraction
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archivePath into destDir, picking the format from the
// archive name, and reports through emit.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string, emit func(Event)) {
	var err error
	switch name := strings.ToLower(archivePath); {
	case strings.HasSuffix(name, ".zip"):
		err = e.extractZip(ctx, archivePath, destDir, emit)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		err = e.extractTarGz(ctx, archivePath, destDir, emit)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}

	if err != nil {
		emit(Event{Kind: EventFailed, Err: err})
		return
	}
	emit(Event{Kind: EventCompleted})
}

func (e *Extractor) extractZip(ctx context.Context, archivePath, destDir string, emit func(Event)) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	total := len(r.File)
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case mode&os.ModeSymlink != 0:
			link, err := readZipEntry(f)
			if err != nil {
				return err
			}
			if err := writeSymlink(destDir, target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open entry %s: %w", f.Name, err)
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}

		emit(Event{Kind: EventProgress, Current: i + 1, Total: total})
	}
	return nil
}

func (e *Extractor) extractTarGz(ctx context.Context, archivePath, destDir string, emit func(Event)) error {
	// The tar stream has no index, so count entries first.
	total, err := countTarEntries(archivePath)
	if err != nil {
		return err
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(destDir, target, header.Linkname); err != nil {
				return err
			}
		default:
			// Skip other types (char devices, block devices, etc.)
		}

		emit(Event{Kind: EventProgress, Current: i + 1, Total: total})
	}
}

func countTarEntries(archivePath string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	n := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read tar header: %w", err)
		}
		n++
	}
}

// safeJoin resolves name below destDir and rejects entries escaping it.
func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	clean := filepath.Clean(destDir)
	target := filepath.Join(clean, filepath.FromSlash(name))
	if target != clean && !strings.HasPrefix(target, clean+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if perm == 0 {
		perm = 0644
	}

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

func writeSymlink(destDir, target, link string) error {
	resolved := link
	if !filepath.IsAbs(link) {
		resolved = filepath.Join(filepath.Dir(target), link)
	}
	if _, err := safeJoin(destDir, mustRel(destDir, resolved)); err != nil {
		return fmt.Errorf("illegal symlink target %s -> %s", target, link)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

// mustRel returns path relative to base, or path itself when it cannot be
// expressed relatively, which safeJoin then rejects.
func mustRel(base, path string) string {
	rel, err := filepath.Rel(filepath.Clean(base), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	return data, nil
}
