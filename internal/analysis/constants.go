// Package analysis recovers per-procedure instruction sequences from an x86-64
// ELF image and classifies each instruction's control-transfer role.
package analysis

import "math"

const (
	// DefaultEntrySymbol names the startup routine whose body lives in the
	// initializer section instead of the code section.
	DefaultEntrySymbol = "_init"

	// sentinelAddr terminates the addressed-symbol list so the partitioner
	// always has a next boundary.
	sentinelAddr = math.MaxUint64
)
