package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/manager"
)

func removeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <version>",
		Short: "Remove an installed environment",
		Long: `Remove the whole environment directory, toolchain and SDK sources.

The directory is first moved aside, so an environment that is in use by
another program is left untouched. If only the final delete fails, the
leftover is deleted the next time envmgr starts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.remove(cmd.Context(), args[0], (*manager.Manager).Remove, "Removed %s")
		},
	}
}

func removeToolchainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-toolchain <version>",
		Short: "Remove only the toolchain of an environment",
		Long:  `Delete the extracted toolchain and keep the SDK sources.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.remove(cmd.Context(), args[0], (*manager.Manager).RemoveToolchain, "Removed the toolchain of %s")
		},
	}
}

type removeFunc func(m *manager.Manager, ctx context.Context, version string) error

func (a *app) remove(ctx context.Context, version string, fn removeFunc, done string) error {
	m, err := a.manager(ctx)
	if err != nil {
		return err
	}
	if err := a.initialize(ctx, m, true); err != nil {
		return err
	}

	if err := fn(m, ctx, version); err != nil {
		var derr *manager.DialogError
		if errors.As(err, &derr) {
			// the message is complete on its own; the raw cause is logged
			return errors.New(derr.Message())
		}
		return err
	}
	success(a.out, done, version)
	return nil
}
