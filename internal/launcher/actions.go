package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/platform"
)

const (
	// CloneScript initializes the SDK workspace; it is resolved relative to
	// the environment directory.
	CloneScript = "toolchain/ncsmgr/ncsmgr init-ncs"
	// ZephyrBaseVar must not leak into the clone, it would point west at
	// another workspace.
	ZephyrBaseVar = "ZEPHYR_BASE"
)

// ErrNotInstalled is returned for actions on an environment without a
// toolchain directory.
var ErrNotInstalled = errors.New("environment is not installed")

// Actions builds and runs the per-environment commands.
type Actions struct {
	platform *platform.Info
	runner   Runner
	// shell overrides the platform shell launcher when set.
	shell   string
	environ func() []string
}

// NewActions creates the action set for host. shell may be empty.
func NewActions(host *platform.Info, runner Runner, shell string) *Actions {
	return &Actions{
		platform: host,
		runner:   runner,
		shell:    shell,
		environ:  os.Environ,
	}
}

// OpenFolder opens the environment directory (the toolchain's parent) in
// the desktop file manager.
func (a *Actions) OpenFolder(ctx context.Context, toolchainDir string) error {
	if toolchainDir == "" {
		return ErrNotInstalled
	}
	return a.runner.Start(ctx, a.FolderCommand(toolchainDir))
}

// OpenTerminal starts the toolchain shell in the environment directory.
func (a *Actions) OpenTerminal(ctx context.Context, toolchainDir string) error {
	if toolchainDir == "" {
		return ErrNotInstalled
	}
	return a.runner.Start(ctx, a.TerminalCommand(toolchainDir))
}

// OpenIDE starts the IDE shipped with the toolchain.
func (a *Actions) OpenIDE(ctx context.Context, toolchainDir string) error {
	if toolchainDir == "" {
		return ErrNotInstalled
	}
	return a.runner.Start(ctx, a.IDECommand(toolchainDir))
}

// Clone runs the SDK clone script and waits for it. out, when non-nil,
// receives the script output.
func (a *Actions) Clone(ctx context.Context, toolchainDir string, out io.Writer) error {
	if toolchainDir == "" {
		return ErrNotInstalled
	}
	cmd := a.CloneCommand(toolchainDir)
	cmd.Output = out
	return a.runner.Run(ctx, cmd)
}

// FolderCommand returns the opener invocation for toolchainDir's parent.
func (a *Actions) FolderCommand(toolchainDir string) Command {
	path, args := a.platform.Opener(filepath.Dir(toolchainDir))
	return Command{Path: path, Args: args}
}

// TerminalCommand returns the shell invocation used by OpenTerminal.
func (a *Actions) TerminalCommand(toolchainDir string) Command {
	return Command{
		Path: a.shellPath(toolchainDir),
		Dir:  filepath.Dir(toolchainDir),
		Env:  ScrubEnv(a.environ(), ZephyrBaseVar),
	}
}

// IDECommand returns the IDE invocation.
func (a *Actions) IDECommand(toolchainDir string) Command {
	return Command{
		Path: a.platform.IDELauncher(toolchainDir),
		Dir:  toolchainDir,
	}
}

// CloneCommand runs CloneScript through the shell launcher from the
// environment directory. The script is a constant; nothing derived from
// user input reaches the shell.
func (a *Actions) CloneCommand(toolchainDir string) Command {
	return Command{
		Path: a.shellPath(toolchainDir),
		Args: []string{"-c", CloneScript},
		Dir:  filepath.Dir(toolchainDir),
		Env:  ScrubEnv(a.environ(), ZephyrBaseVar),
	}
}

func (a *Actions) shellPath(toolchainDir string) string {
	if a.shell != "" {
		return a.shell
	}
	return a.platform.ShellLauncher(toolchainDir)
}
