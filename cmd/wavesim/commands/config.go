/*
@Author: Lzww
@LastEditTime: 2025-10-18 15:40:55
@Description: config command, prints the resolved wave limiter config
@Language: Go 1.23.4
*/

package commands

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved wave limiter config as YAML",
		Long: `Print the wave limiter config after applying defaults, the --config
file and GPU_WAVE_LIMIT_* environment variables. The output can be used as
a config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return errors.Wrap(err, "encoding config")
			}
			return enc.Close()
		},
	}
}
