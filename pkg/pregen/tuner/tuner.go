// Package tuner sizes the local backend's directory walk from the
// detected CPU and memory of the host.
package tuner

const (
	maxWalkWorkers = 32
	minWalkWorkers = 4

	// Below this much available memory the walk stays at the minimum.
	lowMemory = 1 << 30
)

// SystemResources describes the host.
type SystemResources struct {
	CPUCores     int
	TotalRAM     int64
	AvailableRAM int64
}

// Config is the tuned worker configuration.
type Config struct {
	// WalkWorkers bounds the fastwalk goroutines used to list a local tree.
	WalkWorkers int
}

// Calculate returns the walk configuration for resources: two workers per
// core, between 4 and 32, and the minimum on memory-starved hosts.
func Calculate(resources SystemResources) Config {
	if resources.AvailableRAM > 0 && resources.AvailableRAM < lowMemory {
		return Config{WalkWorkers: minWalkWorkers}
	}
	workers := resources.CPUCores * 2
	workers = max(workers, minWalkWorkers)
	workers = min(workers, maxWalkWorkers)
	return Config{WalkWorkers: workers}
}

// CalculateWithOverride applies a positive override, still capped.
func CalculateWithOverride(resources SystemResources, override int) Config {
	cfg := Calculate(resources)
	if override > 0 {
		cfg.WalkWorkers = min(override, maxWalkWorkers)
	}
	return cfg
}
