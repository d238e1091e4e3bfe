package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		errorMsg(os.Stderr, "%s", err)
		os.Exit(1)
	}
}

// execute runs the command line args and flushes metrics afterwards,
// whatever the outcome.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	return executeApp(ctx, &app{out: out, errOut: errOut}, args)
}

func executeApp(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.flushMetrics()
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "envmgr",
		Short: "Install and manage SDK environments",
		Long: `envmgr installs SDK environments: a prebuilt toolchain archive per
version, optionally followed by a clone of the SDK sources.

Environments live below the install directory, one directory per version:

  <install-dir>/<version>/toolchain    extracted toolchain
  <install-dir>/<version>/.west        SDK workspace, after cloning

Settings are read from envmgr.lua (see "envmgr config").`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "Settings file (default $ENVMGR_CONFIG or <config dir>/envmgr/envmgr.lua)")
	f.StringVar(&a.opts.installDir, "install-dir", "", "Install directory, overrides the settings file")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "Log debug output to stderr")
	f.StringVar(&a.opts.metricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		listCmd(a),
		installCmd(a),
		removeCmd(a),
		removeToolchainCmd(a),
		cloneCmd(a),
		openCmd(a),
		envCmd(a),
		configCmd(a),
		versionCmd(a),
	)
	return root
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}
