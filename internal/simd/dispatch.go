// Package simd resolves the batch lookup entry point to the widest
// interleaved walk the running CPU can profitably use, and drives the
// generic interleaved-walk loop shared by every backend's batch API.
//
// Real AVX/AVX-512 gather instructions are not reachable from pure Go
// without hand-written assembly (see DESIGN.md for why this repo does not
// ship one); what this package provides instead is the structural half of
// §4.7 that pure Go can express faithfully: feature-gated vector-width
// selection via golang.org/x/sys/cpu, and a batch driver that interleaves
// N independent walks so each walk's load latency overlaps the others'
// instead of serializing behind a single pointer-chasing loop.
package simd

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// Tier names the batch implementation bound at dispatch time.
type Tier int

const (
	Scalar Tier = iota
	SSE2
	SSE42
	AVX
	AVX2
	AVX512
)

func (t Tier) String() string {
	switch t {
	case Scalar:
		return "scalar"
	case SSE2:
		return "sse2"
	case SSE42:
		return "sse4.2"
	case AVX:
		return "avx"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// Width returns the number of independent walks this tier interleaves.
func (t Tier) Width() int {
	switch t {
	case AVX512:
		return 16
	case AVX2, AVX:
		return 8
	case SSE42, SSE2:
		return 4
	default:
		return 1
	}
}

var (
	once        sync.Once
	resolvedTier Tier
)

// detect inspects CPU capabilities once and resolves the fastest tier.
// Non-x86 targets report Scalar; cpu.X86 is the zero value there and every
// Has* field reads false, so the fallthrough to Scalar is automatic.
func detect() Tier {
	switch {
	case cpu.X86.HasAVX512F:
		return AVX512
	case cpu.X86.HasAVX2:
		return AVX2
	case cpu.X86.HasAVX:
		return AVX
	case cpu.X86.HasSSE42:
		return SSE42
	case cpu.X86.HasSSE2:
		return SSE2
	default:
		return Scalar
	}
}

// ResolveTier returns the tier this process will use for batch lookups,
// detecting CPU capabilities on first call and caching the result.
func ResolveTier() Tier {
	once.Do(func() {
		resolvedTier = detect()
	})
	return resolvedTier
}

// ForceTier overrides the resolved tier for the rest of the process; it
// exists so tests can exercise every width without depending on which
// instruction sets the test runner's CPU happens to support.
func ForceTier(t Tier) {
	once.Do(func() {})
	resolvedTier = t
}
