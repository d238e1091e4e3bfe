// Package shell renders the environment of an installed toolchain as a
// script for the user's shell.
//
// The script is meant to be evaluated by the shell itself:
//
//	# bash, zsh
//	eval "$(envmgr env v2.5.0)"
//
//	# fish
//	envmgr env v2.5.0 | source
//
//	# PowerShell
//	envmgr env v2.5.0 --shell powershell | Invoke-Expression
//
// # Shell Detection
//
// Shell detection tries multiple methods:
//  1. $SHELL environment variable (most reliable)
//  2. Parent process name (fallback, works on Windows too)
//
// # Quoting
//
// Every value is emitted as a single-quoted literal of the target shell.
// Paths therefore never expand, whatever characters they contain.
package shell
