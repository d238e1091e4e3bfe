package platform

import "path/filepath"

const (
	windowsShell = "git-bash.exe"
	windowsIDE   = "SEGGER Embedded Studio.cmd"
	defaultShell = "/bin/bash"
)

// ShellLauncher returns the shell used for terminals and the clone step.
// On Windows this is the Git Bash bundled with the toolchain.
func (i *Info) ShellLauncher(toolchainDir string) string {
	if i.IsWindows() {
		return filepath.Join(toolchainDir, windowsShell)
	}
	return defaultShell
}

// IDELauncher returns the IDE start script shipped inside a toolchain.
func (i *Info) IDELauncher(toolchainDir string) string {
	if i.IsWindows() {
		return filepath.Join(toolchainDir, windowsIDE)
	}
	return filepath.Join(toolchainDir, "segger_embedded_studio", "bin", "emStudio")
}

// Opener returns the program and arguments that open path in the
// desktop file manager.
func (i *Info) Opener(path string) (string, []string) {
	switch {
	case i.IsWindows():
		return "explorer", []string{path}
	case i.IsMacOS():
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}
