/*
@Author: Lzww
@LastEditTime: 2025-10-15 20:31:09
@Description: Wave limiter base state machine
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"time"

	"github.com/sirupsen/logrus"
)

// State is the control loop phase of a wave limiter
type State uint8

const (
	StateWarmUp State = iota // Executions run unchanged to settle caches and clocks
	StateAdapt               // Trial rounds search for the fastest waves per SIMD
	StateRun                 // The best waves per SIMD is used without measuring
)

func (s State) String() string {
	switch s {
	case StateWarmUp:
		return "WARMUP"
	case StateAdapt:
		return "ADAPT"
	case StateRun:
		return "RUN"
	default:
		return "UNKNOWN"
	}
}

// tag is the one letter state marker written to trace files
func (s State) tag() byte {
	switch s {
	case StateWarmUp:
		return 'W'
	case StateAdapt:
		return 'A'
	case StateRun:
		return 'R'
	default:
		return '?'
	}
}

// ProfilingCallback receives the execution time of every completed kernel
// dispatch together with the waves per SIMD it ran with
type ProfilingCallback interface {
	Callback(duration time.Duration, waves uint)
}

// Limiter adaptively picks the waves per SIMD of one kernel on one device.
// Callbacks for a limiter must not run concurrently with each other or with
// WavesPerSH; the dispatch queue of the device serializes them.
type Limiter interface {
	ProfilingCallback

	// WavesPerSH returns the waves per SIMD for the next dispatch
	WavesPerSH() uint

	// ShaderArrayWaves returns the waves per shader array programmed into hardware
	ShaderArrayWaves() uint

	// OutputTrace flushes the measurement trace to the data dumper
	OutputTrace()

	// Snapshot returns a copy of the observable state
	Snapshot() Snapshot
}

// Snapshot is the observable state of a limiter
type Snapshot struct {
	State         State
	Enabled       bool
	Waves         uint          // waves per SIMD of the next dispatch
	BestWaves     uint          // best waves per SIMD found so far
	Executions    uint64        // callbacks with a usable duration
	Baseline      time.Duration // mean execution time of the last warm up
	Reference     uint          // reference waves of the running adaptation
	Trial         uint          // trial waves of the running round
	Rounds        uint          // rounds of the running adaptation
	DynRunCount   uint          // pairs required per round
	Discontinuous bool
}

// algorithms maps Config.Algorithm to the limiter constructor
var algorithms = map[string]func(base waveLimiter) Limiter{
	AlgorithmSmooth: newSmoothLimiter,
}

// waveLimiter holds the state shared by every algorithm
type waveLimiter struct {
	cfg       *Config
	enable    bool
	simdPerSH uint // Number of SIMDs per SH
	seq       uint // Creation order inside the manager

	waves      uint   // Waves per SIMD to be set
	bestWaves  uint   // Optimal waves per SIMD
	countAll   uint64 // Number of kernel executions
	phaseCount uint64 // Executions in the current state
	baseline   uint64 // Mean time of the last warm up
	state      State

	measure *sampleRecorder
	dumper  *DataDumper
	log     logrus.FieldLogger
	stats   *Stats
}

// newLimiter creates the limiter selected by cfg.Algorithm. A zero simdPerSH
// leaves the limiter disabled.
func newLimiter(cfg *Config, kernelName string, seq, simdPerSH uint, enable, dump bool) Limiter {
	ctor, ok := algorithms[cfg.Algorithm]
	if !ok {
		ctor = newSmoothLimiter
	}

	log := cfg.logger().WithFields(logrus.Fields{
		"kernel": kernelName,
		"seq":    seq,
	})

	measureLimit := int(cfg.WarmUpCount)
	if measureLimit < 2*int(cfg.MaxSampleCount) {
		measureLimit = 2 * int(cfg.MaxSampleCount)
	}

	return ctor(waveLimiter{
		cfg:       cfg,
		enable:    enable && simdPerSH != 0,
		simdPerSH: simdPerSH,
		seq:       seq,
		waves:     cfg.MaxWave,
		bestWaves: cfg.MaxWave,
		state:     StateWarmUp,
		measure:   newSampleRecorder(measureLimit),
		dumper:    newDataDumper(cfg.DumpDir, kernelName, seq, dump, log, cfg.stats()),
		log:       log,
		stats:     cfg.stats(),
	})
}

// WavesPerSH returns the waves per SIMD to be used for the next execution
func (w *waveLimiter) WavesPerSH() uint {
	return w.waves
}

// ShaderArrayWaves returns the waves per shader array to be used for the
// next execution
func (w *waveLimiter) ShaderArrayWaves() uint {
	return w.waves * w.simdPerSH
}

// enterWarmUp restarts the control loop with the current best waves
func (w *waveLimiter) enterWarmUp() {
	w.state = StateWarmUp
	w.phaseCount = 0
	w.waves = w.bestWaves
	w.measure.Reset()
	incr(&w.stats.WarmUps)
	w.log.WithField("waves", w.waves).Debug("wave limiter warming up")
}

// enterRun settles on best until the next warm up
func (w *waveLimiter) enterRun(best uint) {
	w.bestWaves = best
	w.waves = best
	w.state = StateRun
	w.phaseCount = 0
	w.measure.Reset()
	incr(&w.stats.Runs)
	w.log.WithField("best", best).Debug("wave limiter running")
}

// record accepts a callback for the state machine, it reports false when
// the sample carries no information
func (w *waveLimiter) record(duration time.Duration, waves uint) bool {
	w.dumper.addData(duration, waves, w.state)

	if !w.enable {
		return false
	}
	if duration <= 0 {
		incr(&w.stats.ZeroDurations)
		return false
	}

	w.countAll++
	w.phaseCount++
	w.measure.Record(uint64(duration), waves)
	incr(&w.stats.Callbacks)
	return true
}

func (w *waveLimiter) snapshot() Snapshot {
	return Snapshot{
		State:      w.state,
		Enabled:    w.enable,
		Waves:      w.waves,
		BestWaves:  w.bestWaves,
		Executions: w.countAll,
		Baseline:   time.Duration(w.baseline),
	}
}
