/*
@Author: Lzww
@LastEditTime: 2025-10-14 22:15:31
@Description: Trial candidate selection for the adaptation phase
@Language: Go 1.23.4
*/

package wavelimiter

// nextCandidate returns the untried wave count in [1, maxWave] closest to
// reference. At equal distance the count above the reference comes first,
// so the search alternates above/below while it widens.
func nextCandidate(reference, maxWave uint, tried []bool) (uint, bool) {
	for dist := uint(1); dist < maxWave; dist++ {
		if up := reference + dist; up <= maxWave && !tried[up] {
			return up, true
		}
		if dist < reference {
			if down := reference - dist; !tried[down] {
				return down, true
			}
		}
	}
	return 0, false
}

// resetTried marks every wave count untried except reference
func resetTried(tried []bool, reference uint) {
	clear(tried)
	if int(reference) < len(tried) {
		tried[reference] = true
	}
}
