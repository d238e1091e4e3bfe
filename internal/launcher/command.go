// Package launcher starts the external programs envmgr relies on: the
// desktop opener, the toolchain shell, the IDE and the SDK clone script.
//
// Commands are always executed from an argument vector; no string is ever
// handed to a shell for interpolation. Child environments are derived from
// the parent with conflicting variables removed.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
)

// ErrExternalTool is matched by every *ToolError.
var ErrExternalTool = errors.New("external tool failed")

// maxTail bounds the output kept for error messages.
const maxTail = 4096

// ToolError reports a process that could not be started or exited non-zero.
type ToolError struct {
	Path     string
	ExitCode int
	// Output is the redacted tail of the combined output.
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	name := filepath.Base(e.Path)
	if e.ExitCode != 0 {
		if e.Output != "" {
			return fmt.Sprintf("%s exited with code %d: %s", name, e.ExitCode, e.Output)
		}
		return fmt.Sprintf("%s exited with code %d", name, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrExternalTool) true for every ToolError.
func (e *ToolError) Is(target error) bool {
	return target == ErrExternalTool
}

// Command is a fully resolved process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is the complete child environment; nil inherits the parent's.
	Env []string
	// Output, when set, also receives the combined output of Run.
	Output io.Writer
}

// String renders the command for logs.
func (c Command) String() string {
	parts := append([]string{c.Path}, c.Args...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t\"") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// Runner executes commands. Exec is the real implementation.
type Runner interface {
	// Start spawns the command and returns without waiting for it.
	Start(ctx context.Context, cmd Command) error
	// Run waits for the command and fails with ErrExternalTool on a
	// non-zero exit.
	Run(ctx context.Context, cmd Command) error
}

// Exec runs commands with os/exec.
type Exec struct {
	Log logging.Logger
}

// Start spawns cmd detached from ctx so the program outlives the call.
func (e *Exec) Start(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logging.OrNop(e.Log)

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	log.Debug("starting process", "command", cmd.String(), "dir", cmd.Dir)
	if err := c.Start(); err != nil {
		return &ToolError{Path: cmd.Path, Err: err}
	}

	// Reap the child; its exit status is of no interest.
	go func() {
		if err := c.Wait(); err != nil {
			log.Debug("detached process exited", "command", cmd.Path, "error", err)
		}
	}()
	return nil
}

// Run executes cmd and waits for it.
func (e *Exec) Run(ctx context.Context, cmd Command) error {
	log := logging.OrNop(e.Log)

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	tail := &tailBuffer{max: maxTail}
	var out io.Writer = tail
	if cmd.Output != nil {
		out = io.MultiWriter(tail, cmd.Output)
	}
	c.Stdout = out
	c.Stderr = out

	log.Debug("running process", "command", cmd.String(), "dir", cmd.Dir)
	err := c.Run()
	if err == nil {
		return nil
	}

	// Check context cancellation first
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", filepath.Base(cmd.Path), ctxErr)
	}

	te := &ToolError{Path: cmd.Path, Output: redact(tail.String()), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	log.Warn("process failed", "command", cmd.Path, "exit_code", te.ExitCode, "error", err)
	return te
}

// ScrubEnv returns environ without the named variables. Names compare
// case-insensitively, as Windows does.
func ScrubEnv(environ []string, drop ...string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		keep := true
		for _, d := range drop {
			if strings.EqualFold(name, d) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, kv)
		}
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

var (
	linuxHome = regexp.MustCompile(`/home/[^/\s]+`)
	macHome   = regexp.MustCompile(`/Users/[^/\s]+`)
)

// redact trims process output for error messages and hides home paths.
func redact(msg string) string {
	msg = strings.TrimSpace(msg)

	// Keep the end, where the failure usually is
	const maxLen = 400
	if len(msg) > maxLen {
		msg = "..." + msg[len(msg)-maxLen:]
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		msg = strings.ReplaceAll(msg, home, "$HOME")
	}
	msg = linuxHome.ReplaceAllString(msg, "/home/<user>")
	msg = macHome.ReplaceAllString(msg, "/Users/<user>")
	return msg
}
