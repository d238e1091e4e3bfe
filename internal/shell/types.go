package shell

import "fmt"

// ShellType represents a supported shell
type ShellType string

const (
	// ShellBash represents the Bash shell
	ShellBash ShellType = "bash"
	// ShellZsh represents the Z shell
	ShellZsh ShellType = "zsh"
	// ShellFish represents the Fish shell
	ShellFish ShellType = "fish"
	// ShellPowerShell represents Windows PowerShell and pwsh
	ShellPowerShell ShellType = "powershell"
	// ShellUnknown represents an unknown or unsupported shell
	ShellUnknown ShellType = "unknown"
)

// String returns the string representation of the shell type
func (s ShellType) String() string {
	return string(s)
}

// IsValid returns true if the shell type is supported
func (s ShellType) IsValid() bool {
	switch s {
	case ShellBash, ShellZsh, ShellFish, ShellPowerShell:
		return true
	default:
		return false
	}
}

// Var is one environment variable assignment.
type Var struct {
	Name  string
	Value string
}

// Env is what activating an environment changes.
type Env struct {
	// Vars are set in order.
	Vars []Var
	// PathPrepend is prepended to PATH, first entry first.
	PathPrepend []string
	// PathSeparator joins PATH entries.
	PathSeparator string
}

// DetectionResult contains the result of shell detection
type DetectionResult struct {
	// Shell is the detected shell type
	Shell ShellType
	// Method describes how the shell was detected
	Method string
	// ShellPath is the filesystem path to the shell binary
	ShellPath string
	// Confidence is the confidence level (high, medium, none)
	Confidence string
}

// UnsupportedShellError represents an unsupported shell error
type UnsupportedShellError struct {
	Shell string
}

func (e *UnsupportedShellError) Error() string {
	return fmt.Sprintf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", e.Shell)
}
