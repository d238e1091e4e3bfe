package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/manager"
)

type openFunc func(m *manager.Manager, ctx context.Context, version string) error

var openTargets = map[string]openFunc{
	"folder":   (*manager.Manager).OpenFolder,
	"terminal": (*manager.Manager).OpenTerminal,
	"ide":      (*manager.Manager).OpenIDE,
}

func openCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open folder|terminal|ide <version>",
		Short: "Open an installed environment",
		Long: `Open the environment directory in the file manager, start the
toolchain shell in it, or start the IDE shipped with the toolchain.

Examples:
  envmgr open folder v2.5.0
  envmgr open terminal v2.5.0`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"folder", "terminal", "ide"},
		RunE: func(cmd *cobra.Command, args []string) error {
			open, ok := openTargets[args[0]]
			if !ok {
				return fmt.Errorf("unknown target %q (want folder, terminal or ide)", args[0])
			}

			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := a.initialize(ctx, m, true); err != nil {
				return err
			}
			return open(m, ctx, args[1])
		},
	}
}
