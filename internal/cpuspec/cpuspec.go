// Package cpuspec sizes the pipeline worker pool from CPU topology.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
}

// GetCPUSpec returns CPU specifications including the number of performance cores
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: determinePerformanceCores(brandName),
	}
}

// GetOptimalThreadCount returns the recommended number of pipeline consumer
// threads. On hybrid architectures only performance cores are counted.
func (c CPUSpec) GetOptimalThreadCount() int {
	// Get actual available CPU count (important for VMs)
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		if c.PerformanceCores > availableCPUs {
			return availableCPUs
		}
		return c.PerformanceCores
	}

	if logical := cpuid.CPU.LogicalCores; logical > 0 {
		if logical > availableCPUs {
			return availableCPUs
		}
		return logical
	}
	return availableCPUs
}

// WorkerCount returns the thread count clamped to the given cap.
func (c CPUSpec) WorkerCount(maxWorkers int) int {
	n := c.GetOptimalThreadCount()
	if maxWorkers > 0 && n > maxWorkers {
		return maxWorkers
	}
	if n < 1 {
		return 1
	}
	return n
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*core.*i[3579]-(1[2-4]\d{3})`)
	appleRegex       = regexp.MustCompile(`(?i)apple\s+(m[1-4]\s*(pro|max|ultra)?)\s*`)
)

// determinePerformanceCores estimates P-core counts for hybrid architectures
// from the brand string. Returns 0 when the topology is uniform or unknown.
func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	// Intel 12th-14th gen hybrid parts
	if matches := intelHybridRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		model := matches[1]
		switch model[2] {
		case '9', '7':
			return 8
		case '5', '6', '4':
			return 6
		case '1':
			return 4
		}
	}

	// Apple Silicon
	if matches := appleRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		chip := strings.ToLower(strings.TrimSpace(matches[1]))
		switch {
		case strings.HasSuffix(chip, "ultra"):
			return 16
		case strings.HasSuffix(chip, "max"), strings.HasSuffix(chip, "pro"):
			return 8
		default:
			return 4
		}
	}

	return 0
}
