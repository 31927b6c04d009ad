/*
@Author: Lzww
@LastEditTime: 2025-10-18 14:10:37
@Description: Root command and shared flags of wavesim
@Language: Go 1.23.4
*/

package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	wavelimiter "wave-limiter"
	"wave-limiter/internal/logging"
)

const version = "0.1.0"

// rootOptions are the flags shared by every command
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

// loadConfig resolves the wave limiter config from defaults, the config
// file and GPU_WAVE_LIMIT_* variables, logging through the process logger
func (o *rootOptions) loadConfig() (*wavelimiter.Config, error) {
	cfg, err := wavelimiter.LoadConfig(o.cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.Logger = logging.Get()
	cfg.Stats = wavelimiter.NewStats()
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "wavesim",
		Short: "Simulate adaptive wave limiting of GPU kernels",
		Long: `wavesim runs wave limiters against simulated devices.

Each device executes a kernel whose execution time depends on the waves per
SIMD it is dispatched with. The limiters warm up, compare trial wave counts
against a reference and settle on the fastest one.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := opts.v.GetString("log_level")
			if opts.v.GetBool("verbose") {
				level = "debug"
			}
			return logging.Init(level, opts.v.GetString("log_file"), true)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "wave limiter config file (YAML)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "append logs to this file")
	pf.BoolP("verbose", "v", false, "debug logging, shows every limiter transition")

	_ = opts.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = opts.v.BindPFlag("log_file", pf.Lookup("log-file"))
	_ = opts.v.BindPFlag("verbose", pf.Lookup("verbose"))

	opts.v.SetEnvPrefix("WAVESIM")
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()

	cmd.AddCommand(
		newSimulateCommand(opts),
		newDeviceCommand(opts),
		newConfigCommand(opts),
	)
	return cmd
}

// Execute runs the root command
func Execute() error {
	return newRootCommand().Execute()
}
