package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/config"
)

func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		Long: `Print the settings after applying the settings file, environment
variables and flags.

The settings file is Lua:

  envmgr = {
    install_dir = "/opt/ncs",
    clone_after_install = platform.is_linux,
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.settings(cmd.Context())
			if err != nil {
				return err
			}

			path := a.opts.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Fprintf(a.out, "# settings file: %s\n", path)

			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(s); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
