//go:build linux

package helpers

import (
	"os"
	"strconv"
	"strings"
)

const (
	meminfoPath     = "/proc/meminfo"
	cgroupMemoryMax = "/sys/fs/cgroup/memory.max"
)

// TotalSystemMemoryMB reports MemTotal, lowered to the cgroup v2 memory limit
// when the tracker runs in a constrained container. 0 means unknown.
func TotalSystemMemoryMB() int {
	total := meminfoTotalMB(meminfoPath)
	if limit := cgroupLimitMB(cgroupMemoryMax); limit > 0 && (total == 0 || limit < total) {
		return limit
	}
	return total
}

func meminfoTotalMB(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0
		}
		return kb >> 10
	}
	return 0
}

func cgroupLimitMB(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return bytesToMB(string(raw))
}
