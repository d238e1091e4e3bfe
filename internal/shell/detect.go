package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// DetectShell detects the user's shell using multiple methods
func DetectShell(ctx context.Context) (*DetectionResult, error) {
	// Method 1: Try $SHELL environment variable (most reliable)
	if shell := os.Getenv("SHELL"); shell != "" {
		shellType := ParseShell(shell)
		if shellType.IsValid() {
			return &DetectionResult{
				Shell:      shellType,
				Method:     "$SHELL environment variable",
				ShellPath:  shell,
				Confidence: "high",
			}, nil
		}
	}

	// Method 2: Try parent process (fallback)
	if shellType, shellPath := detectFromParentProcess(ctx); shellType.IsValid() {
		return &DetectionResult{
			Shell:      shellType,
			Method:     "parent process",
			ShellPath:  shellPath,
			Confidence: "medium",
		}, nil
	}

	// Method 3: Could not detect shell
	return &DetectionResult{
		Shell:      ShellUnknown,
		Method:     "detection failed",
		ShellPath:  "",
		Confidence: "none",
	}, nil
}

// ParseShell extracts the shell type from a shell name or binary path
// Examples:
//   - /bin/bash -> bash
//   - /usr/bin/zsh -> zsh
//   - C:\Program Files\PowerShell\7\pwsh.exe -> powershell
func ParseShell(shellPath string) ShellType {
	// Get the base name (e.g., "/bin/bash" -> "bash"); backslashes are
	// separators even when running on unix
	baseName := filepath.Base(strings.ReplaceAll(shellPath, `\`, "/"))

	// Normalize to lowercase and drop the Windows extension
	baseName = strings.TrimSuffix(strings.ToLower(baseName), ".exe")

	// Map to known shell types
	switch baseName {
	case "bash", "-bash":
		return ShellBash
	case "zsh", "-zsh":
		return ShellZsh
	case "fish", "-fish":
		return ShellFish
	case "pwsh", "powershell":
		return ShellPowerShell
	default:
		return ShellUnknown
	}
}

// detectFromParentProcess inspects the process that started envmgr. When
// run as `eval "$(envmgr env ...)"` that is the user's shell.
func detectFromParentProcess(ctx context.Context) (ShellType, string) {
	parent, err := process.NewProcessWithContext(ctx, int32(os.Getppid()))
	if err != nil {
		return ShellUnknown, ""
	}

	if exe, err := parent.ExeWithContext(ctx); err == nil && exe != "" {
		if shellType := ParseShell(exe); shellType.IsValid() {
			return shellType, exe
		}
	}
	name, err := parent.NameWithContext(ctx)
	if err != nil {
		return ShellUnknown, ""
	}
	return ParseShell(name), ""
}

// ValidateShell validates that a shell type is supported
func ValidateShell(shell ShellType) error {
	if !shell.IsValid() {
		return &UnsupportedShellError{Shell: shell.String()}
	}
	return nil
}

// GetSupportedShells returns a list of supported shells
func GetSupportedShells() []ShellType {
	return []ShellType{ShellBash, ShellZsh, ShellFish, ShellPowerShell}
}
