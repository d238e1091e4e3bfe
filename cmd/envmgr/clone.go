package main

import (
	"github.com/spf13/cobra"
)

func cloneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <version>",
		Short: "Clone the SDK sources of an installed environment",
		Long: `Run the SDK clone script of an installed toolchain. An existing SDK
workspace is reset first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := a.initialize(ctx, m, true); err != nil {
				return err
			}

			p := newProgressPrinter(a.errOut, args[0])
			cancel := m.Store().Subscribe(p.observe)
			err = m.Clone(ctx, args[0])
			cancel()
			p.finish()
			if err != nil {
				return err
			}
			success(a.out, "Cloned the SDK of %s", args[0])
			return nil
		},
	}
}
