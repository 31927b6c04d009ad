/*
@Author: Lzww
@LastEditTime: 2025-10-13 19:12:30
@Description: Wave Limiter
@Language: Go 1.23.4
*/

// Package wavelimiter adaptively limits the number of waves per SIMD a GPU
// kernel is dispatched with, based on the kernel execution times reported
// back by the runtime.
package wavelimiter

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// EnableAuto lets kernel metadata and the hardware generation decide
	EnableAuto = "auto"
	// EnableOn forces adaptation on
	EnableOn = "on"
	// EnableOff forces adaptation off
	EnableOff = "off"

	// AlgorithmSmooth is the trial/abandon/discontinuity aware controller
	AlgorithmSmooth = "smooth"

	// upper bound accepted for max_wave
	maxWaveLimit = 64

	// minimum number of ratios before an early decision
	minAbandonRatios = 2

	// percent base of the trial/reference ratio
	ratioBase = 100
)

// Config holds the settings shared by a manager and its wave limiters
type Config struct {
	// Adaptation mode: auto, on or off
	Enable string `mapstructure:"enable" yaml:"enable"`

	// Data dumper settings
	Dump    bool   `mapstructure:"dump" yaml:"dump"`         // Record execution time, waves and state per sample
	DumpDir string `mapstructure:"dump_dir" yaml:"dump_dir"` // Directory trace files are appended to

	// Controller selected at limiter construction
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm"`

	// State machine settings
	MaxWave     uint `mapstructure:"max_wave" yaml:"max_wave"` // Maximum waves per SIMD
	WarmUpCount uint `mapstructure:"warmup" yaml:"warmup"`     // Executions before adapting
	RunCount    uint `mapstructure:"run" yaml:"run"`           // Executions with the best waves before re-adapting

	// Smoothing algorithm settings, thresholds are in percent
	AdaptCount     uint `mapstructure:"adapt" yaml:"adapt"`                       // Trial rounds per adaptation
	AbandonThresh  uint `mapstructure:"abandon" yaml:"abandon"`                   // Early decision threshold
	DscThresh      uint `mapstructure:"dsc_thresh" yaml:"dsc_thresh"`             // Successive ratio spread treated as discontinuity
	DeadZone       uint `mapstructure:"dead_zone" yaml:"dead_zone"`               // Improvement a trial must exceed to be adopted
	SampleCount    uint `mapstructure:"sample_count" yaml:"sample_count"`         // Initial pairs per round
	MaxSampleCount uint `mapstructure:"max_sample_count" yaml:"max_sample_count"` // Cap for the grown pairs per round

	// Overrides
	FixedWaves uint `mapstructure:"waves_per_simd" yaml:"waves_per_simd"` // Fixed waves per SIMD, disables adaptation when non-zero
	SIMDPerSH  uint `mapstructure:"cu_per_sh" yaml:"cu_per_sh"`           // Replaces the hardware SIMD per SH count when non-zero

	Logger logrus.FieldLogger `mapstructure:"-" yaml:"-"`
	Stats  *Stats             `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Enable:         EnableAuto,
		Dump:           false,
		DumpDir:        filepath.Join(os.TempDir(), "wavelimiter"),
		Algorithm:      AlgorithmSmooth,
		MaxWave:        8,
		WarmUpCount:    10,
		RunCount:       200,
		AdaptCount:     16,
		AbandonThresh:  20,
		DscThresh:      40,
		DeadZone:       3,
		SampleCount:    4,
		MaxSampleCount: 32,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Enable {
	case EnableAuto, EnableOn, EnableOff:
	default:
		return invalidConfigf("enable must be one of %q, %q, %q, got %q", EnableAuto, EnableOn, EnableOff, c.Enable)
	}

	if _, ok := algorithms[c.Algorithm]; !ok {
		return errors.Wrapf(ErrUnknownAlgorithm, "algorithm %q", c.Algorithm)
	}

	if c.MaxWave < 1 || c.MaxWave > maxWaveLimit {
		return invalidConfigf("max_wave must be between 1 and %d, got %d", maxWaveLimit, c.MaxWave)
	}

	if c.RunCount < 1 {
		return invalidConfigf("run must be at least 1")
	}

	if c.SampleCount < 1 {
		return invalidConfigf("sample_count must be at least 1")
	}

	if c.MaxSampleCount < c.SampleCount {
		return invalidConfigf("max_sample_count (%d) must not be below sample_count (%d)", c.MaxSampleCount, c.SampleCount)
	}

	if c.AbandonThresh >= ratioBase || c.DeadZone >= ratioBase {
		return invalidConfigf("abandon and dead_zone must be below %d percent", ratioBase)
	}

	if c.FixedWaves > c.MaxWave {
		return invalidConfigf("waves_per_simd (%d) exceeds max_wave (%d)", c.FixedWaves, c.MaxWave)
	}

	if c.Dump && c.DumpDir == "" {
		return invalidConfigf("dump_dir is required when dump is enabled")
	}

	return nil
}

// adaptBudget bounds the executions one ADAPT phase may take
func (c *Config) adaptBudget() uint64 {
	return uint64(c.AdaptCount) * 4 * uint64(c.MaxSampleCount)
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Config) stats() *Stats {
	if c.Stats != nil {
		return c.Stats
	}
	return DefaultStats
}
