package manager

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// maxHolders bounds the names listed in a dialog.
const maxHolders = 5

// HolderFinder names processes that keep files below a directory busy.
type HolderFinder interface {
	Holders(ctx context.Context, dir string) []string
}

// ProcessHolders inspects running processes with gopsutil: a process
// holds dir when its working directory or one of its open files lies
// below it. Processes that cannot be inspected are skipped.
type ProcessHolders struct{}

// Holders returns up to maxHolders sorted process names.
func (ProcessHolders) Holders(ctx context.Context, dir string) []string {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil
	}

	self := int32(os.Getpid())
	seen := map[string]bool{}
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		if p.Pid == self {
			continue
		}
		if !holds(ctx, p, dir) {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > maxHolders {
		names = names[:maxHolders]
	}
	return names
}

func holds(ctx context.Context, p *process.Process, dir string) bool {
	if cwd, err := p.CwdWithContext(ctx); err == nil && within(dir, cwd) {
		return true
	}
	files, err := p.OpenFilesWithContext(ctx)
	if err != nil {
		return false
	}
	for _, f := range files {
		if within(dir, f.Path) {
			return true
		}
	}
	return false
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
