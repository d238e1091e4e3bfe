package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/shell"
)

func envCmd(a *app) *cobra.Command {
	var shellName string

	cmd := &cobra.Command{
		Use:   "env <version>",
		Short: "Print a script that activates an environment in the current shell",
		Long: `Print the variables and PATH entries of an installed environment as a
script for your shell. The shell is detected unless --shell is given.

Examples:
  eval "$(envmgr env v2.5.0)"                              # bash, zsh
  envmgr env v2.5.0 | source                               # fish
  envmgr env v2.5.0 --shell powershell | Invoke-Expression # PowerShell`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			target := shell.ParseShell(shellName)
			if shellName == "" {
				detected, err := shell.DetectShell(ctx)
				if err != nil {
					return err
				}
				target = detected.Shell
			}
			if err := shell.ValidateShell(target); err != nil {
				return fmt.Errorf("%w; pass --shell", err)
			}

			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := a.initialize(ctx, m, true); err != nil {
				return err
			}
			env, err := m.ShellEnv(args[0])
			if err != nil {
				return err
			}

			script, err := shell.Render(target, env)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, script)
			return nil
		},
	}

	cmd.Flags().StringVar(&shellName, "shell", "", "Target shell: bash, zsh, fish or powershell")

	return cmd
}
