package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ForToolchain returns the environment of the toolchain installed in
// toolchainDir. Only directories that exist are put on PATH.
func ForToolchain(version, toolchainDir string, windows bool) Env {
	env := Env{PathSeparator: ":"}
	if windows {
		env.PathSeparator = ";"
	}

	for _, rel := range toolchainBinDirs {
		dir := filepath.Join(toolchainDir, filepath.FromSlash(rel))
		if isDir(dir) {
			env.PathPrepend = append(env.PathPrepend, dir)
		}
	}

	env.Vars = []Var{
		{Name: EnvEnvironment, Value: version},
		{Name: EnvToolchainDir, Value: toolchainDir},
	}
	if sdk := filepath.Join(toolchainDir, "opt", "zephyr-sdk"); isDir(sdk) {
		env.Vars = append(env.Vars,
			Var{Name: EnvZephyrSDK, Value: sdk},
			Var{Name: EnvToolchainVariant, Value: "zephyr"},
		)
	}
	if base := filepath.Join(filepath.Dir(toolchainDir), "zephyr"); isDir(base) {
		env.Vars = append(env.Vars, Var{Name: EnvZephyrBase, Value: base})
	}
	return env
}

// Render returns env as a script for shell.
func Render(shell ShellType, env Env) (string, error) {
	if err := ValidateShell(shell); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, v := range env.Vars {
		switch shell {
		case ShellFish:
			fmt.Fprintf(&b, "set -gx %s %s;\n", v.Name, fishQuote(v.Value))
		case ShellPowerShell:
			fmt.Fprintf(&b, "$env:%s = %s\n", v.Name, psQuote(v.Value))
		default:
			fmt.Fprintf(&b, "export %s=%s;\n", v.Name, posixQuote(v.Value))
		}
	}

	if len(env.PathPrepend) > 0 {
		sep := env.PathSeparator
		if sep == "" {
			sep = ":"
		}
		switch shell {
		case ShellFish:
			quoted := make([]string, len(env.PathPrepend))
			for i, p := range env.PathPrepend {
				quoted[i] = fishQuote(p)
			}
			fmt.Fprintf(&b, "set -gx PATH %s $PATH;\n", strings.Join(quoted, " "))
		case ShellPowerShell:
			fmt.Fprintf(&b, "$env:PATH = %s + $env:PATH\n", psQuote(strings.Join(env.PathPrepend, sep)+sep))
		default:
			fmt.Fprintf(&b, "export PATH=%s\"$PATH\";\n", posixQuote(strings.Join(env.PathPrepend, sep)+sep))
		}
	}
	return b.String(), nil
}

// posixQuote single-quotes s for sh-compatible shells.
func posixQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// fishQuote single-quotes s for fish, where \ and ' are escapes inside quotes.
func fishQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// psQuote single-quotes s for PowerShell.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
