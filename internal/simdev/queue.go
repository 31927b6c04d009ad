/*
@Author: Lzww
@LastEditTime: 2025-10-18 12:20:44
@Description: Serial dispatch queue of a simulated device
@Language: Go 1.23.4
*/

package simdev

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	wavelimiter "wave-limiter"
)

// Queue dispatches one kernel execution at a time on a device and reports
// each completion to the wave limiter before the next dispatch
type Queue struct {
	Device *Device
	Timer  *Timer

	// Noise is the relative amplitude of uniform noise applied to every
	// execution time, 0.1 means ±10%
	Noise float64

	// Scale converts simulated execution time into wall clock time spent
	// waiting for the completion, 0 completes immediately
	Scale float64

	// Seed of the noise source
	Seed int64
}

// Result summarizes a queue run
type Result struct {
	Device     *Device
	Executions int
	Busy       time.Duration        // simulated execution time
	Waves      map[uint]int         // executions per waves per SIMD
	Snapshot   wavelimiter.Snapshot // limiter state after the last completion
	Limited    bool                 // the manager created a limiter for the device
}

// MostUsed returns the waves per SIMD used by the most executions
func (r *Result) MostUsed() uint {
	var best uint
	n := -1
	for w, c := range r.Waves {
		if c > n || (c == n && w < best) {
			best, n = w, c
		}
	}
	return best
}

// Run performs n executions on the queue device. Cancellation is checked
// between executions; the partial result is returned with the error. The
// timer must stay open until Run returns.
func (q *Queue) Run(ctx context.Context, mgr *wavelimiter.Manager, profile Profile, n int) (Result, error) {
	res := Result{Device: q.Device, Waves: make(map[uint]int)}
	if q.Device == nil || q.Timer == nil || mgr == nil || profile == nil {
		return res, errors.New("simdev: queue needs a device, a timer, a manager and a profile")
	}

	rng := rand.New(rand.NewSource(q.Seed))
	cb := mgr.ProfilingCallback(q.Device)
	done := make(chan struct{}, 1)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			res.finish(mgr, q.Device)
			return res, errors.Wrapf(err, "device %s after %d executions", q.Device, i)
		}

		waves := mgr.WavesPerSH(q.Device)
		elapsed := q.jitter(rng, profile.Duration(waves))

		q.Timer.After(time.Duration(float64(elapsed)*q.Scale), func() {
			cb.Callback(elapsed, waves)
			done <- struct{}{}
		})

		// the completion is owed to the limiter even when ctx ends meanwhile
		<-done

		res.Executions++
		res.Busy += elapsed
		res.Waves[waves]++
	}

	res.finish(mgr, q.Device)
	return res, nil
}

func (q *Queue) jitter(rng *rand.Rand, d time.Duration) time.Duration {
	if q.Noise <= 0 {
		return d
	}
	f := 1 + q.Noise*(2*rng.Float64()-1)
	if f <= 0 {
		return 1
	}
	return time.Duration(float64(d) * f)
}

func (r *Result) finish(mgr *wavelimiter.Manager, dev *Device) {
	r.Snapshot, r.Limited = mgr.Snapshot(dev)
}
