package kernel

import (
	"os"
	"strings"
)

// ISA identifies the selected kernel family.
type ISA uint8

const (
	// Generic is the unrolled pure-Go implementation.
	Generic ISA = iota
	// BLAS routes dense float32 kernels through gonum blas32.
	BLAS
)

// String returns the string representation of an ISA.
func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case BLAS:
		return "blas"
	default:
		return "unknown"
	}
}

// ParseISA parses a string into an ISA value.
func ParseISA(s string) (ISA, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic":
		return Generic, true
	case "blas":
		return BLAS, true
	default:
		return Generic, false
	}
}

// Package-level state, initialized once at package init.
var (
	activeISA   ISA
	hasOverride bool

	// CPU feature flags (set by platform-specific init).
	hasWideVectors bool
)

// initCapabilities is called from platform-specific init functions after CPU
// features are detected.
func initCapabilities() {
	if override := os.Getenv("WEIGHTPACK_KERNEL"); override != "" {
		if isa, ok := ParseISA(override); ok {
			hasOverride = true
			activeISA = isa
			installKernels(isa)
			return
		}
	}

	activeISA = Generic
	if hasWideVectors {
		activeISA = BLAS
	}
	installKernels(activeISA)
}

func installKernels(isa ISA) {
	switch isa {
	case BLAS:
		kernelDot = dotBLAS
		kernelScale = scaleBLAS
	default:
		kernelDot = dotGeneric
		kernelScale = scaleGeneric
	}
}

// ActiveISA returns the currently active kernel family.
func ActiveISA() ISA {
	return activeISA
}

// IsOverridden returns true if WEIGHTPACK_KERNEL was set.
func IsOverridden() bool {
	return hasOverride
}
