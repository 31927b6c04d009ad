/*
@Author: Lzww
@LastEditTime: 2025-10-13 19:40:02
@Description: Configuration loading from file and environment
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables read by LoadConfig,
// e.g. GPU_WAVE_LIMIT_MAX_WAVE or GPU_WAVE_LIMIT_DUMP
const EnvPrefix = "GPU_WAVE_LIMIT"

// LoadConfig loads configuration from defaults, an optional YAML file and
// the environment, in increasing priority
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", cfgFile)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	cfg.Enable = strings.ToLower(strings.TrimSpace(cfg.Enable))
	cfg.Algorithm = strings.ToLower(strings.TrimSpace(cfg.Algorithm))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("enable", cfg.Enable)
	v.SetDefault("dump", cfg.Dump)
	v.SetDefault("dump_dir", cfg.DumpDir)
	v.SetDefault("algorithm", cfg.Algorithm)

	v.SetDefault("max_wave", cfg.MaxWave)
	v.SetDefault("warmup", cfg.WarmUpCount)
	v.SetDefault("run", cfg.RunCount)

	v.SetDefault("adapt", cfg.AdaptCount)
	v.SetDefault("abandon", cfg.AbandonThresh)
	v.SetDefault("dsc_thresh", cfg.DscThresh)
	v.SetDefault("dead_zone", cfg.DeadZone)
	v.SetDefault("sample_count", cfg.SampleCount)
	v.SetDefault("max_sample_count", cfg.MaxSampleCount)

	v.SetDefault("waves_per_simd", cfg.FixedWaves)
	v.SetDefault("cu_per_sh", cfg.SIMDPerSH)
}
