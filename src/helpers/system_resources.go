package helpers

import (
	"strconv"
	"strings"
)

// Cache sizing policy for embedded storage.
const (
	cacheShareOfRAM = 1.0 / 16
	minCacheMB      = 32
	maxCacheMB      = 1024
	fallbackCacheMB = 256
)

// RecommendedCacheMB returns the block cache budget for an embedded store:
// one sixteenth of the memory available to the process, clamped to [32MB, 1GB].
// Falls back to 256MB when that amount cannot be read.
func RecommendedCacheMB() int {
	return cacheBudgetMB(TotalSystemMemoryMB())
}

func cacheBudgetMB(totalMB int) int {
	if totalMB <= 0 {
		return fallbackCacheMB
	}

	budget := int(float64(totalMB) * cacheShareOfRAM)
	if budget < minCacheMB {
		return minCacheMB
	}
	if budget > maxCacheMB {
		return maxCacheMB
	}
	return budget
}

// bytesToMB parses a decimal byte count as printed by sysctl or cgroupfs.
// Anything else, including the cgroup "max" sentinel, yields 0.
func bytesToMB(raw string) int {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return int(n >> 20)
}
