/*
@Author: Lzww
@LastEditTime: 2025-10-14 21:07:44
@Description: Sample recorder keeping recent execution times and wave counts
@Language: Go 1.23.4
*/

package wavelimiter

import "strconv"

// MaxRecordedSamples defines the maximum number of samples a recorder keeps.
// Older samples are overwritten, which bounds the memory of every limiter.
const MaxRecordedSamples = 256

// Sample is one kernel execution as reported by the profiling callback
type Sample struct {
	Time  uint64 // Execution time in nanoseconds
	Waves uint   // Waves per SIMD the kernel ran with
}

// sampleRecorder stores raw samples without any policy
type sampleRecorder struct {
	samples *RingBuffer[Sample]
	total   uint64 // samples recorded since the last reset, including overwritten ones
}

func newSampleRecorder(limit int) *sampleRecorder {
	if limit <= 0 || limit > MaxRecordedSamples {
		limit = MaxRecordedSamples
	}
	return &sampleRecorder{samples: NewBoundedRingBuffer[Sample](limit)}
}

// Record stores a sample, dropping the oldest one when the recorder is full
func (r *sampleRecorder) Record(time uint64, waves uint) {
	r.samples.Push(Sample{Time: time, Waves: waves})
	r.total++
}

// Len returns the number of samples currently held
func (r *sampleRecorder) Len() int {
	return r.samples.Len()
}

// Total returns the number of samples recorded since the last reset
func (r *sampleRecorder) Total() uint64 {
	return r.total
}

// Mean returns the average time of the held samples, 0 when empty
func (r *sampleRecorder) Mean() uint64 {
	n := r.samples.Len()
	if n == 0 {
		return 0
	}
	var sum uint64
	r.samples.ForEach(func(s *Sample) bool {
		sum += s.Time
		return true
	})
	return sum / uint64(n)
}

// MeanFor returns the average time of the held samples that ran with waves
// and how many there were
func (r *sampleRecorder) MeanFor(waves uint) (uint64, int) {
	var sum uint64
	n := 0
	r.samples.ForEach(func(s *Sample) bool {
		if s.Waves == waves {
			sum += s.Time
			n++
		}
		return true
	})
	if n == 0 {
		return 0, 0
	}
	return sum / uint64(n), n
}

// Reset drops all samples
func (r *sampleRecorder) Reset() {
	r.samples.Reset()
	r.total = 0
}

// AppendText serializes the held samples as space separated "time/waves" pairs
func (r *sampleRecorder) AppendText(b []byte) []byte {
	first := true
	r.samples.ForEach(func(s *Sample) bool {
		if !first {
			b = append(b, ' ')
		}
		first = false
		b = strconv.AppendUint(b, s.Time, 10)
		b = append(b, '/')
		b = strconv.AppendUint(b, uint64(s.Waves), 10)
		return true
	})
	return b
}
