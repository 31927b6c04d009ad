/*
@Author: Lzww
@LastEditTime: 2025-10-17 22:26:33
@Description: Unit tests for the sample recorder
@Language: Go 1.23.4
*/

package wavelimiter

import "testing"

func TestRecorderMean(t *testing.T) {
	r := newSampleRecorder(8)
	if r.Mean() != 0 {
		t.Error("empty recorder should have a zero mean")
	}

	r.Record(100, 4)
	r.Record(200, 4)
	r.Record(600, 2)

	if r.Len() != 3 || r.Total() != 3 {
		t.Errorf("len=%d total=%d, want 3/3", r.Len(), r.Total())
	}
	if m := r.Mean(); m != 300 {
		t.Errorf("mean = %d, want 300", m)
	}
	if m, n := r.MeanFor(4); m != 150 || n != 2 {
		t.Errorf("mean for 4 = %d over %d, want 150 over 2", m, n)
	}
	if m, n := r.MeanFor(7); m != 0 || n != 0 {
		t.Errorf("mean for 7 = %d over %d", m, n)
	}
}

// TestRecorderBounded 测试超过上限时覆盖最旧的样本
func TestRecorderBounded(t *testing.T) {
	r := newSampleRecorder(4)
	for i := uint64(1); i <= 10; i++ {
		r.Record(i*10, 1)
	}

	if r.Len() != 4 || r.Total() != 10 {
		t.Errorf("len=%d total=%d, want 4/10", r.Len(), r.Total())
	}
	// 70 80 90 100
	if m := r.Mean(); m != 85 {
		t.Errorf("mean = %d, want 85", m)
	}
	if got := string(r.AppendText(nil)); got != "70/1 80/1 90/1 100/1" {
		t.Errorf("text = %q", got)
	}

	r.Reset()
	if r.Len() != 0 || r.Total() != 0 || len(r.AppendText(nil)) != 0 {
		t.Error("recorder not empty after reset")
	}
}

func TestRecorderLimitClamped(t *testing.T) {
	for _, limit := range []int{0, -1, MaxRecordedSamples * 2} {
		r := newSampleRecorder(limit)
		if r.samples.MaxLen() != MaxRecordedSamples {
			t.Errorf("limit %d: max len = %d, want %d", limit, r.samples.MaxLen(), MaxRecordedSamples)
		}
	}
}
