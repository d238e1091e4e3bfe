package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/metrics"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/scan"
)

// ErrRemove is matched by every *DialogError.
var ErrRemove = errors.New("failed to remove environment")

// DialogError is a remove failure carrying the message shown to the user.
type DialogError struct {
	Dir     string
	Cause   string
	Holders []string
	Err     error
}

// Message returns the user-facing text.
func (e *DialogError) Message() string {
	msg := fmt.Sprintf("Failed to remove %s, %s. Please close any application or window "+
		"that might keep this environment locked, then try to remove it again.", e.Dir, e.Cause)
	if len(e.Holders) > 0 {
		msg += fmt.Sprintf(" Processes using it: %s.", strings.Join(e.Holders, ", "))
	}
	return msg
}

func (e *DialogError) Error() string { return e.Message() }

func (e *DialogError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRemove) true for every DialogError.
func (e *DialogError) Is(target error) bool {
	return target == ErrRemove
}

var causeSeparator = regexp.MustCompile(`[:,] `)

// dialogCause extracts the human readable part of a raw error: the third
// segment when split on ": " and ", ", otherwise the last one.
func dialogCause(err error) string {
	parts := causeSeparator.Split(err.Error(), -1)
	cause := parts[len(parts)-1]
	if len(parts) >= 3 {
		cause = parts[2]
	}
	return strings.TrimRight(cause, ". ")
}

// Remove deletes an installed environment: its directory is moved to the
// staging name next to it, then deleted. When the move fails the record is
// kept and a *DialogError is returned and shown. When only the delete fails
// the environment counts as removed and the staged tree is journaled for
// the next Initialize.
func (m *Manager) Remove(ctx context.Context, version string) error {
	rec, err := m.installed(version)
	if err != nil {
		return err
	}

	end, err := m.begin(ctx, version)
	if err != nil {
		return err
	}
	defer end()

	_ = m.store.Upsert(&environment.Patch{Version: version, IsRemoving: environment.Bool(true)})

	srcDir := filepath.Dir(rec.ToolchainDir)
	staging := filepath.Join(filepath.Dir(srcDir), scan.StagingDir)

	m.log.Info("removing environment", "version", version, "dir", srcDir)
	moveErr := m.moveDir(srcDir, staging)
	var deleteErr error
	if moveErr == nil {
		deleteErr = m.fs.removeAll(staging)
	}

	_ = m.store.Upsert(&environment.Patch{Version: version, IsRemoving: environment.Bool(false)})

	if moveErr != nil {
		derr := &DialogError{
			Dir:     srcDir,
			Cause:   dialogCause(moveErr),
			Holders: m.holders.Holders(ctx, srcDir),
			Err:     moveErr,
		}
		m.log.Error("remove failed", "version", version, "error", moveErr)
		m.store.ShowDialog(derr.Message())
		m.metrics.RemoveFinished(metrics.ResultFailure)
		return derr
	}

	result := metrics.ResultSuccess
	if deleteErr != nil {
		result = metrics.ResultDeferred
		m.log.Warn("staged environment could not be deleted, will retry", "path", staging, "error", deleteErr)
		if _, err := m.state.AddPending(staging, version, deleteErr); err != nil {
			m.log.Error("unable to journal pending deletion", "path", staging, "error", err)
		}
		m.updatePendingGauge()
	}

	m.store.Remove(version)
	if err := m.state.Unselect(version); err != nil {
		m.log.Warn("unable to update state", "error", err)
	}
	m.metrics.RemoveFinished(result)
	m.log.Info("environment removed", "version", version)
	return nil
}

// RemoveToolchain deletes only the toolchain directory of version and
// marks it not installed. The west workspace is left alone.
func (m *Manager) RemoveToolchain(ctx context.Context, version string) error {
	rec, err := m.installed(version)
	if err != nil {
		return err
	}

	end, err := m.begin(ctx, version)
	if err != nil {
		return err
	}
	defer end()

	_ = m.store.Upsert(&environment.Patch{Version: version, IsRemoving: environment.Bool(true)})
	defer func() {
		_ = m.store.Upsert(&environment.Patch{Version: version, IsRemoving: environment.Bool(false)})
	}()

	if err := m.fs.removeAll(rec.ToolchainDir); err != nil {
		derr := &DialogError{
			Dir:     rec.ToolchainDir,
			Cause:   dialogCause(fmt.Errorf("remove toolchain: %w", err)),
			Holders: m.holders.Holders(ctx, rec.ToolchainDir),
			Err:     err,
		}
		m.store.ShowDialog(derr.Message())
		m.metrics.RemoveFinished(metrics.ResultFailure)
		return derr
	}

	_ = m.store.Upsert(&environment.Patch{Version: version, ToolchainDir: environment.String("")})
	m.metrics.RemoveFinished(metrics.ResultSuccess)
	return nil
}

// moveDir renames src to dst, replacing an existing dst.
func (m *Manager) moveDir(src, dst string) error {
	if err := m.fs.removeAll(dst); err != nil {
		return fmt.Errorf("move environment: clear staging: %w", err)
	}
	if err := m.fs.rename(src, dst); err != nil {
		return fmt.Errorf("move environment: %w", err)
	}
	return nil
}

// fileOps are the destructive filesystem calls of the remove flow.
type fileOps struct {
	rename    func(src, dst string) error
	removeAll func(path string) error
}

var osFileOps = fileOps{rename: os.Rename, removeAll: os.RemoveAll}

// retryPendingDeletions removes staged trees journaled by earlier runs.
func (m *Manager) retryPendingDeletions(ctx context.Context) {
	st, err := m.state.Load()
	if err != nil {
		m.log.Warn("unable to read state", "error", err)
		return
	}

	for _, d := range st.Pending {
		if ctx.Err() != nil {
			return
		}
		if err := m.fs.removeAll(d.Path); err != nil {
			m.log.Warn("pending deletion still failing", "path", d.Path, "attempts", d.Attempts+1, "error", err)
			if err := m.state.RecordAttempt(d.ID, err); err != nil {
				m.log.Warn("unable to update state", "error", err)
			}
			continue
		}
		m.log.Info("finished pending deletion", "path", d.Path, "environment", d.Environment)
		if err := m.state.ResolvePending(d.ID); err != nil {
			m.log.Warn("unable to update state", "error", err)
		}
	}
	m.updatePendingGauge()
}

func (m *Manager) updatePendingGauge() {
	st, err := m.state.Load()
	if err != nil {
		return
	}
	m.metrics.SetPendingDeletions(len(st.Pending))
}
