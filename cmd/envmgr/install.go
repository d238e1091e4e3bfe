package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/manager"
)

const firstInstallNotice = `This is the first environment installed in %s.
The toolchain and the SDK sources need several gigabytes of disk space,
and cloning the SDK can take a while on a slow connection.`

func installCmd(a *app) *cobra.Command {
	var (
		toolchain string
		noClone   bool
	)

	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Install an environment",
		Long: `Download, verify and extract the toolchain of an environment, then
clone the SDK sources unless --no-clone is given or the settings disable it.

Examples:
  envmgr install v2.5.0
  envmgr install v2.5.0 --no-clone
  envmgr install v2.5.0 --toolchain 2.5.0-rc1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			version := args[0]

			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := a.initialize(ctx, m, false); err != nil {
				return err
			}

			if m.FirstInstall() {
				for _, line := range strings.Split(fmt.Sprintf(firstInstallNotice, m.Settings().InstallDir), "\n") {
					info(a.out, "%s", line)
				}
				fmt.Fprintln(a.out)
			}

			p := newProgressPrinter(a.errOut, version)
			cancel := m.Store().Subscribe(p.observe)
			err = m.Install(ctx, version, manager.InstallOptions{Toolchain: toolchain, NoClone: noClone})
			cancel()
			p.finish()
			if err != nil {
				return err
			}

			rec, _ := m.Store().Get(version)
			success(a.out, "Installed %s", version)
			info(a.out, "Toolchain: %s", rec.ToolchainDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&toolchain, "toolchain", "", "Toolchain version (default: newest listed)")
	cmd.Flags().BoolVar(&noClone, "no-clone", false, "Skip cloning the SDK sources")

	return cmd
}

// progressPrinter renders registry updates of one environment as a single
// rewritten status line.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	version string
	last    string
	dirty   bool
}

func newProgressPrinter(w io.Writer, version string) *progressPrinter {
	return &progressPrinter{w: w, version: version}
}

func (p *progressPrinter) observe(s environment.Snapshot) {
	var line string
	for _, r := range s.Environments {
		if r.Version != p.version {
			continue
		}
		switch {
		case r.IsCloning:
			line = fmt.Sprintf("%s: cloning SDK", r.Version)
		case r.Progress != nil:
			line = fmt.Sprintf("%s: %3d%% %s", r.Version, *r.Progress, bar(*r.Progress, 30))
		}
	}
	if line == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	p.dirty = true
	fmt.Fprintf(p.w, "\r\033[K%s", line)
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty {
		fmt.Fprintln(p.w)
		p.dirty = false
	}
}

func bar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}
