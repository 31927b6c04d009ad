/*
@Author: Lzww
@LastEditTime: 2025-10-18 11:48:03
@Description: Execution time profiles of simulated kernels
@Language: Go 1.23.4
*/

package simdev

import "time"

// Profile gives the execution time of a kernel dispatched with waves per SIMD
type Profile interface {
	Duration(waves uint) time.Duration
}

// ProfileFunc adapts a function to Profile
type ProfileFunc func(waves uint) time.Duration

func (f ProfileFunc) Duration(waves uint) time.Duration {
	return f(waves)
}

// BowlProfile is fastest at optimal and slows down by step per wave of
// distance from it
func BowlProfile(optimal uint, base, step time.Duration) Profile {
	return ProfileFunc(func(waves uint) time.Duration {
		dist := int64(waves) - int64(optimal)
		if dist < 0 {
			dist = -dist
		}
		return base + time.Duration(dist)*step
	})
}

// TableProfile looks the time up in table, fallback for missing entries
func TableProfile(table map[uint]time.Duration, fallback time.Duration) Profile {
	t := make(map[uint]time.Duration, len(table))
	for w, d := range table {
		t[w] = d
	}
	return ProfileFunc(func(waves uint) time.Duration {
		if d, ok := t[waves]; ok {
			return d
		}
		return fallback
	})
}

// Optimal returns the fastest waves per SIMD of p in [1, maxWave], the
// lowest one on ties
func Optimal(p Profile, maxWave uint) uint {
	best := uint(1)
	bestTime := p.Duration(1)
	for w := uint(2); w <= maxWave; w++ {
		if d := p.Duration(w); d < bestTime {
			best, bestTime = w, d
		}
	}
	return best
}
