/*
@Author: Lzww
@LastEditTime: 2025-10-15 23:02:48
@Description: Smoothing wave limiter algorithm
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// smoothLimiter compares a trial waves per SIMD against the reference with
// interleaved executions, so slow drifts of the workload hit both sides of
// the comparison equally. Rounds whose per-pair ratios jump are dropped and
// retried with more samples.
type smoothLimiter struct {
	waveLimiter

	reference []uint64 // Execution times with the reference waves
	trial     []uint64 // Execution times with the trial waves
	ratio     []uint64 // Per pair trial/reference ratio in percent
	tried     []bool   // Waves already compared in this adaptation

	refWaves      uint
	trialWaves    uint
	preAdaptWaves uint // Waves in effect when the adaptation started
	rounds        uint
	discontinuous bool // Measured data is discontinuous
	dynRunCount   uint // Pairs required before a round is decided
	dataCount     uint // Pairs collected in the current round
}

func newSmoothLimiter(base waveLimiter) Limiter {
	capacity := base.cfg.MaxSampleCount
	return &smoothLimiter{
		waveLimiter: base,
		reference:   make([]uint64, 0, capacity),
		trial:       make([]uint64, 0, capacity),
		ratio:       make([]uint64, 0, capacity),
		tried:       make([]bool, base.cfg.MaxWave+1),
		dynRunCount: base.cfg.SampleCount,
	}
}

// Callback is called from the profiling path with the execution time
func (s *smoothLimiter) Callback(duration time.Duration, waves uint) {
	if !s.record(duration, waves) {
		return
	}

	switch s.state {
	case StateWarmUp:
		if s.phaseCount < uint64(s.cfg.WarmUpCount) {
			return
		}
		s.baseline = s.measure.Mean()
		s.startAdapt()
	case StateAdapt:
		s.updateData(uint64(duration), waves)
	case StateRun:
		if s.phaseCount < uint64(s.cfg.RunCount) {
			return
		}
		s.enterWarmUp()
	}
}

func (s *smoothLimiter) startAdapt() {
	s.state = StateAdapt
	s.phaseCount = 0
	s.rounds = 0
	s.preAdaptWaves = s.waves
	s.refWaves = s.waves
	s.discontinuous = false
	s.measure.Reset()
	resetTried(s.tried, s.refWaves)
	incr(&s.stats.Adaptations)

	s.log.WithFields(logrus.Fields{
		"waves":    s.waves,
		"baseline": time.Duration(s.baseline),
	}).Debug("wave limiter adapting")

	if !s.nextTrial() {
		s.finish()
	}
}

// nextTrial starts a round with the next candidate, false when the
// adaptation is over
func (s *smoothLimiter) nextTrial() bool {
	if s.rounds >= s.cfg.AdaptCount {
		return false
	}
	wave, ok := nextCandidate(s.refWaves, s.cfg.MaxWave, s.tried)
	if !ok {
		return false
	}

	s.tried[wave] = true
	s.trialWaves = wave
	s.rounds++
	s.clearData()
	s.waves = s.refWaves
	incr(&s.stats.Rounds)
	return true
}

// updateData files a sample into the reference or trial buffer and decides
// the round once enough pairs are collected
func (s *smoothLimiter) updateData(elapsed uint64, waves uint) {
	if s.phaseCount > s.cfg.adaptBudget() {
		s.fallback("adaptation budget exhausted")
		return
	}

	expectRef := len(s.reference) == len(s.trial)
	switch {
	case expectRef && waves == s.refWaves:
		s.reference = append(s.reference, elapsed)
	case !expectRef && waves == s.trialWaves:
		s.trial = append(s.trial, elapsed)
		s.dataCount++
		s.evaluate()
		return
	default:
		// dispatched with waves that are not part of this round
		incr(&s.stats.IgnoredSamples)
	}
	s.waves = s.nextWaves()
}

func (s *smoothLimiter) evaluate() {
	last := len(s.trial) - 1
	r := s.trial[last] * ratioBase / s.reference[last]
	if n := len(s.ratio); n > 0 && absDiff(r, s.ratio[n-1]) > uint64(s.cfg.DscThresh) {
		s.onDiscontinuity()
		return
	}
	s.ratio = append(s.ratio, r)

	if len(s.ratio) >= minAbandonRatios {
		abandon := uint64(s.cfg.AbandonThresh)
		switch {
		case s.allRatios(func(r uint64) bool { return r > ratioBase+abandon }):
			incr(&s.stats.TrialsAbandoned)
			s.decide(false)
			return
		case s.allRatios(func(r uint64) bool { return r+abandon < ratioBase }):
			incr(&s.stats.TrialsAdopted)
			s.decide(true)
			return
		}
	}

	if s.dataCount < s.dynRunCount {
		s.waves = s.nextWaves()
		return
	}

	adopt := sum(s.trial)*ratioBase/sum(s.reference)+uint64(s.cfg.DeadZone) < ratioBase
	if adopt {
		incr(&s.stats.TrialsAdopted)
	} else {
		incr(&s.stats.TrialsRejected)
	}
	s.decide(adopt)
}

func (s *smoothLimiter) decide(adopt bool) {
	s.discontinuous = false
	if adopt {
		s.log.WithFields(logrus.Fields{
			"from": s.refWaves,
			"to":   s.trialWaves,
		}).Debug("wave limiter reference moved")
		s.refWaves = s.trialWaves
	}
	if !s.nextTrial() {
		s.finish()
	}
}

// onDiscontinuity drops the round and asks for more samples next time
func (s *smoothLimiter) onDiscontinuity() {
	s.discontinuous = true
	incr(&s.stats.Discontinuities)

	if s.dynRunCount >= s.cfg.MaxSampleCount {
		s.fallback("measurements stay discontinuous")
		return
	}

	s.dynRunCount = min(2*s.dynRunCount, s.cfg.MaxSampleCount)
	s.clearData()
	s.waves = s.refWaves
}

// fallback ends the adaptation with the waves it started from
func (s *smoothLimiter) fallback(reason string) {
	incr(&s.stats.Fallbacks)
	s.log.WithFields(logrus.Fields{
		"waves":  s.preAdaptWaves,
		"rounds": s.rounds,
	}).Info("wave limiter fallback: " + reason)

	s.dynRunCount = s.cfg.SampleCount
	s.clearData()
	s.enterRun(s.preAdaptWaves)
}

// finish ends the adaptation with the best reference found. The next
// adaptation starts again from the configured sample count.
func (s *smoothLimiter) finish() {
	s.dynRunCount = s.cfg.SampleCount
	s.clearData()
	s.enterRun(s.refWaves)
}

// clearData clears measurement data for the next round
func (s *smoothLimiter) clearData() {
	s.reference = s.reference[:0]
	s.trial = s.trial[:0]
	s.ratio = s.ratio[:0]
	s.dataCount = 0
}

// nextWaves alternates reference and trial, reference first
func (s *smoothLimiter) nextWaves() uint {
	if len(s.reference) == len(s.trial) {
		return s.refWaves
	}
	return s.trialWaves
}

func (s *smoothLimiter) allRatios(pred func(uint64) bool) bool {
	for _, r := range s.ratio {
		if !pred(r) {
			return false
		}
	}
	return len(s.ratio) > 0
}

// OutputTrace writes the adaptation state and the buffered samples
func (s *smoothLimiter) OutputTrace() {
	if !s.dumper.Enabled() {
		return
	}

	b := make([]byte, 0, 256)
	b = fmt.Appendf(b, "state %s waves %d best %d ref %d trial %d rounds %d dyn %d discontinuous %t",
		s.state, s.waves, s.bestWaves, s.refWaves, s.trialWaves, s.rounds, s.dynRunCount, s.discontinuous)
	b = appendUints(append(b, " | reference"...), s.reference)
	b = appendUints(append(b, " | trial"...), s.trial)
	b = appendUints(append(b, " | ratio"...), s.ratio)
	refMean, refN := s.measure.MeanFor(s.refWaves)
	trialMean, trialN := s.measure.MeanFor(s.trialWaves)
	b = fmt.Appendf(b, " | mean ref %d/%d trial %d/%d | window %d/%d total %d",
		refMean, refN, trialMean, trialN, s.measure.Len(), s.measure.samples.MaxLen(), s.measure.Total())
	b = s.measure.AppendText(append(b, " | measure "...))
	s.dumper.addNote(string(b))

	if err := s.dumper.Flush(); err != nil {
		s.log.WithError(err).Warn("wave limiter trace not written")
	}
}

func (s *smoothLimiter) Snapshot() Snapshot {
	snap := s.snapshot()
	if s.state == StateAdapt {
		snap.Reference = s.refWaves
		snap.Trial = s.trialWaves
		snap.Rounds = s.rounds
	}
	snap.DynRunCount = s.dynRunCount
	snap.Discontinuous = s.discontinuous
	return snap
}

func appendUints(b []byte, values []uint64) []byte {
	for _, v := range values {
		b = fmt.Appendf(b, " %d", v)
	}
	return b
}

func sum(values []uint64) uint64 {
	var total uint64
	for _, v := range values {
		total += v
	}
	return total
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
