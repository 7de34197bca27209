//go:build darwin

package helpers

import "os/exec"

// TotalSystemMemoryMB asks sysctl for hw.memsize. 0 means unknown.
func TotalSystemMemoryMB() int {
	out, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0
	}
	return bytesToMB(string(out))
}
