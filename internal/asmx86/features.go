package asmx86

import "github.com/klauspost/cpuid/v2"

// HasSSE2Doubles reports whether the host actually supports the SSE2
// double-precision move/convert encodings this assembler emits unconditionally
// (movsd/movss/cvtss2sd). The assembler itself never consults this — §4.A
// requires deterministic emission regardless of host — but internal/dispatch's
// Nonzero uses it to decide whether to read a float's payload directly or go
// through the __nonzero__ dunder.
func HasSSE2Doubles() bool {
	return cpuid.CPU.Supports(cpuid.SSE2)
}
