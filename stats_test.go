/*
@Author: Lzww
@LastEditTime: 2025-10-17 22:18:09
@Description: Unit tests for statistics counters
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"sync"
	"testing"
)

func TestStatsHeaderMatchesSlice(t *testing.T) {
	s := NewStats()
	if len(s.Header()) != len(s.ToSlice()) {
		t.Fatalf("header has %d columns, values %d", len(s.Header()), len(s.ToSlice()))
	}
}

func TestStatsCopyAndReset(t *testing.T) {
	s := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				incr(&s.Callbacks)
				incr(&s.Rounds)
			}
		}()
	}
	wg.Wait()

	c := s.Copy()
	if c.Callbacks != 8000 || c.Rounds != 8000 {
		t.Errorf("callbacks=%d rounds=%d, want 8000", c.Callbacks, c.Rounds)
	}
	if got := s.ToSlice()[1]; got != "8000" {
		t.Errorf("callbacks column = %q", got)
	}

	s.Reset()
	if *s.Copy() != (Stats{}) {
		t.Errorf("counters after reset: %+v", s.Copy())
	}
	// 快照不受重置影响
	if c.Callbacks != 8000 {
		t.Error("copy changed by reset")
	}
}
