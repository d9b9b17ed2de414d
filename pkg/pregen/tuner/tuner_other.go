//go:build !linux && !darwin

package tuner

import "runtime"

const defaultTotalRAM = 8 << 30

// Detect reports the CPU count and assumes 8 GiB of memory, half available.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}, nil
}
