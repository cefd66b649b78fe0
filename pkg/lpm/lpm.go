// Package lpm is a longest-prefix-match routing engine: an in-memory
// structure mapping IPv4 and IPv6 prefixes of arbitrary length to 32-bit
// next-hop identifiers, with point lookups and batched lookups across
// four interchangeable backend algorithms.
//
// The engine is single-writer by contract: concurrent readers are safe
// only while no writer is active, and writers/readers must be serialized
// externally (a reader-writer lock in a wrapper layer is the expected
// pattern). No locking or synchronization happens inside this package.
package lpm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/therealutkarshpriyadarshi/lpm/internal/dir24"
	"github.com/therealutkarshpriyadarshi/lpm/internal/simd"
	"github.com/therealutkarshpriyadarshi/lpm/internal/stride"
	"github.com/therealutkarshpriyadarshi/lpm/internal/wide16"
)

// InvalidNextHop is returned by every lookup variant when no prefix,
// including the default route, matches.
const InvalidNextHop = 0xFFFFFFFF

// MaxNextHopDIR24 is the largest next-hop value the DIR-24-8 backend
// accepts (30 bits); larger values are rejected with ErrNextHopOutOfRange.
const MaxNextHopDIR24 = dir24.MaxNextHop

var (
	// ErrInvalidPrefixLength is returned when a prefix length exceeds the
	// backend's maximum (32 for IPv4, 128 for IPv6) or is negative.
	ErrInvalidPrefixLength = errors.New("lpm: invalid prefix length")
	// ErrAllocationFailure is returned when the node pool cannot grow to
	// satisfy an insertion. Go's garbage-collected heap makes this
	// unreachable in practice; the sentinel is kept for interface parity
	// with the core's documented failure modes (spec §7).
	ErrAllocationFailure = errors.New("lpm: allocation failure")
	// ErrNullTable is returned by any operation invoked on a nil or
	// destroyed table handle, instead of panicking.
	ErrNullTable = errors.New("lpm: null table")
	// ErrPrefixNotFound is returned by Delete for a prefix that was never
	// inserted. It is not a fatal condition.
	ErrPrefixNotFound = errors.New("lpm: prefix not found")
	// ErrNextHopOutOfRange is returned when a next-hop exceeds the
	// backend's representable range (DIR-24-8 only).
	ErrNextHopOutOfRange = errors.New("lpm: next hop out of range")
	// ErrUnsupportedBackend is returned when an operation is issued
	// against a table created for a different address family or backend.
	ErrUnsupportedBackend = errors.New("lpm: unsupported backend for this operation")
)

// Backend names one of the four interchangeable LPM algorithms.
type Backend int

const (
	// BackendIPv4DIR24 is the 16 Mi-entry TBL24/TBL8 IPv4 backend (§4.2).
	BackendIPv4DIR24 Backend = iota
	// BackendIPv4Stride8 is the 4-level 8-bit stride IPv4 trie (§4.3).
	BackendIPv4Stride8
	// BackendIPv6Wide16 is the 65536-entry first-stride IPv6 backend (§4.4).
	BackendIPv6Wide16
	// BackendIPv6Stride8 is the 16-level 8-bit stride IPv6 trie (§4.5).
	BackendIPv6Stride8
)

func (b Backend) String() string {
	switch b {
	case BackendIPv4DIR24:
		return "ipv4-dir24-8"
	case BackendIPv4Stride8:
		return "ipv4-8stride"
	case BackendIPv6Wide16:
		return "ipv6-wide16"
	case BackendIPv6Stride8:
		return "ipv6-8stride"
	default:
		return "unknown"
	}
}

func (b Backend) isIPv4() bool {
	return b == BackendIPv4DIR24 || b == BackendIPv4Stride8
}

func (b Backend) addrLen() int {
	if b.isIPv4() {
		return 4
	}
	return 16
}

// Table is an opaque LPM table handle bound to one backend algorithm for
// its entire lifetime; spec.md's Non-goals exclude reconfiguring a live
// table between algorithms.
type Table struct {
	backend Backend

	dir24    *dir24.Table
	stride4  *stride.Trie
	wide16   *wide16.Table
	stride16 *stride.Trie
}

// CreateIPv4DIR24 creates an empty IPv4 table using the DIR-24-8 backend.
func CreateIPv4DIR24() *Table {
	return &Table{backend: BackendIPv4DIR24, dir24: dir24.New()}
}

// CreateIPv4Stride8 creates an empty IPv4 table using the 4-level 8-bit
// stride trie backend.
func CreateIPv4Stride8() *Table {
	return &Table{backend: BackendIPv4Stride8, stride4: stride.New(4)}
}

// CreateIPv6Wide16 creates an empty IPv6 table using the Wide-16 backend.
func CreateIPv6Wide16() *Table {
	return &Table{backend: BackendIPv6Wide16, wide16: wide16.New()}
}

// CreateIPv6Stride8 creates an empty IPv6 table using the 16-level 8-bit
// stride trie backend.
func CreateIPv6Stride8() *Table {
	return &Table{backend: BackendIPv6Stride8, stride16: stride.New(16)}
}

// Destroy releases a table's backing storage. After Destroy, t must not
// be used again; every subsequent operation on it returns ErrNullTable.
func Destroy(t *Table) error {
	if t == nil {
		return ErrNullTable
	}
	t.dir24 = nil
	t.stride4 = nil
	t.wide16 = nil
	t.stride16 = nil
	t.backend = -1
	return nil
}

func (t *Table) live() error {
	if t == nil {
		return ErrNullTable
	}
	switch t.backend {
	case BackendIPv4DIR24, BackendIPv4Stride8, BackendIPv6Wide16, BackendIPv6Stride8:
		return nil
	default:
		return ErrNullTable
	}
}

// Add inserts prefix/prefixLen -> nextHop. prefix is network-order bytes:
// 4 bytes for an IPv4-backed table, 16 for an IPv6-backed one.
func (t *Table) Add(prefix []byte, prefixLen int, nextHop uint32) error {
	if err := t.live(); err != nil {
		return err
	}
	if len(prefix) != t.backend.addrLen() {
		return fmt.Errorf("lpm: add: %w", ErrUnsupportedBackend)
	}

	switch t.backend {
	case BackendIPv4DIR24:
		if prefixLen < 0 || prefixLen > 32 {
			return ErrInvalidPrefixLength
		}
		if err := t.dir24.Add(beUint32(prefix), uint8(prefixLen), nextHop); err != nil {
			return translateDIR24Err(err)
		}
		return nil
	case BackendIPv4Stride8:
		if err := t.stride4.Add(prefix, prefixLen, nextHop); err != nil {
			return translateStrideErr(err)
		}
		return nil
	case BackendIPv6Wide16:
		if err := t.wide16.Add(prefix, prefixLen, nextHop); err != nil {
			return translateWide16Err(err)
		}
		return nil
	case BackendIPv6Stride8:
		if err := t.stride16.Add(prefix, prefixLen, nextHop); err != nil {
			return translateStrideErr(err)
		}
		return nil
	}
	return ErrUnsupportedBackend
}

// Delete removes prefix/prefixLen. Deleting a prefix that was never
// inserted returns ErrPrefixNotFound but is not a fatal condition.
func (t *Table) Delete(prefix []byte, prefixLen int) error {
	if err := t.live(); err != nil {
		return err
	}
	if len(prefix) != t.backend.addrLen() {
		return fmt.Errorf("lpm: delete: %w", ErrUnsupportedBackend)
	}

	switch t.backend {
	case BackendIPv4DIR24:
		if prefixLen < 0 || prefixLen > 32 {
			return ErrInvalidPrefixLength
		}
		return translateDIR24Err(t.dir24.Delete(beUint32(prefix), uint8(prefixLen)))
	case BackendIPv4Stride8:
		return translateStrideErr(t.stride4.Delete(prefix, prefixLen))
	case BackendIPv6Wide16:
		return translateWide16Err(t.wide16.Delete(prefix, prefixLen))
	case BackendIPv6Stride8:
		return translateStrideErr(t.stride16.Delete(prefix, prefixLen))
	}
	return ErrUnsupportedBackend
}

// LookupIPv4 returns the next-hop for addr, a host-order 32-bit IPv4
// address, or InvalidNextHop if nothing matches. Valid only for
// IPv4-backed tables.
func (t *Table) LookupIPv4(addr uint32) uint32 {
	if t.live() != nil || !t.backend.isIPv4() {
		return InvalidNextHop
	}
	if t.backend == BackendIPv4DIR24 {
		nh, ok := t.dir24.Lookup(addr)
		return orInvalid(nh, ok)
	}
	var b [4]byte
	putBeUint32(b[:], addr)
	nh, ok := t.stride4.Lookup(b[:])
	return orInvalid(nh, ok)
}

// LookupIPv4Bytes returns the next-hop for a 4-byte, network-order IPv4
// address.
func (t *Table) LookupIPv4Bytes(addr [4]byte) uint32 {
	return t.LookupIPv4(beUint32(addr[:]))
}

// LookupIPv6 returns the next-hop for a 16-byte, network-order IPv6
// address, or InvalidNextHop if nothing matches. Valid only for
// IPv6-backed tables.
func (t *Table) LookupIPv6(addr [16]byte) uint32 {
	if t.live() != nil || t.backend.isIPv4() {
		return InvalidNextHop
	}
	if t.backend == BackendIPv6Wide16 {
		nh, ok := t.wide16.Lookup(addr[:])
		return orInvalid(nh, ok)
	}
	nh, ok := t.stride16.Lookup(addr[:])
	return orInvalid(nh, ok)
}

// LookupBatchIPv4 fills out[i] with the lookup result for addrs[i]
// (host-order). len(out) must be >= len(addrs).
func (t *Table) LookupBatchIPv4(addrs []uint32, out []uint32) {
	if t.live() != nil || !t.backend.isIPv4() {
		fillInvalid(out[:len(addrs)])
		return
	}
	if t.backend == BackendIPv4DIR24 {
		t.dir24.LookupBatch(addrs, out)
		return
	}
	bytesAddrs := make([][]byte, len(addrs))
	for i, a := range addrs {
		var b [4]byte
		putBeUint32(b[:], a)
		bytesAddrs[i] = b[:]
	}
	t.stride4.LookupBatch(bytesAddrs, out)
}

// LookupBatchIPv4Bytes fills out[i] with the lookup result for addrs[i]
// (4-byte, network-order addresses).
//
// Per §4.7 the public surface may convert a 2-D byte-array input to a
// flat pointer array on the stack for small batches or the heap for
// large ones before calling the internal batch routine; Go has no manual
// stack-allocation knob; a single conversion to a flat []uint32 slice of
// host-order words stands in for that distinction uniformly, and the
// 256-address threshold named in
// the design notes is preserved only as a doc comment, not a code path.
func (t *Table) LookupBatchIPv4Bytes(addrs [][4]byte, out []uint32) {
	if t.live() != nil || !t.backend.isIPv4() {
		fillInvalid(out[:len(addrs)])
		return
	}
	asU32 := make([]uint32, len(addrs))
	for i, a := range addrs {
		asU32[i] = beUint32(a[:])
	}
	t.LookupBatchIPv4(asU32, out)
}

// LookupBatchIPv6 fills out[i] with the lookup result for addrs[i]
// (16-byte, network-order addresses).
func (t *Table) LookupBatchIPv6(addrs [][16]byte, out []uint32) {
	if t.live() != nil || t.backend.isIPv4() {
		fillInvalid(out[:len(addrs)])
		return
	}
	bytesAddrs := make([][]byte, len(addrs))
	for i := range addrs {
		bytesAddrs[i] = addrs[i][:]
	}
	if t.backend == BackendIPv6Wide16 {
		t.wide16.LookupBatch(bytesAddrs, out)
		return
	}
	t.stride16.LookupBatch(bytesAddrs, out)
}

func fillInvalid(out []uint32) {
	for i := range out {
		out[i] = InvalidNextHop
	}
}

func orInvalid(nh uint32, ok bool) uint32 {
	if !ok {
		return InvalidNextHop
	}
	return nh
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func translateDIR24Err(err error) error {
	switch err {
	case nil:
		return nil
	case dir24.ErrInvalidPrefixLength:
		return ErrInvalidPrefixLength
	case dir24.ErrNextHopOutOfRange:
		return ErrNextHopOutOfRange
	case dir24.ErrPrefixNotFound:
		return ErrPrefixNotFound
	default:
		return err
	}
}

func translateStrideErr(err error) error {
	switch err {
	case nil:
		return nil
	case stride.ErrInvalidPrefixLength:
		return ErrInvalidPrefixLength
	case stride.ErrPrefixNotFound:
		return ErrPrefixNotFound
	default:
		return err
	}
}

func translateWide16Err(err error) error {
	switch err {
	case nil:
		return nil
	case wide16.ErrInvalidPrefixLength:
		return ErrInvalidPrefixLength
	case wide16.ErrPrefixNotFound:
		return ErrPrefixNotFound
	default:
		return err
	}
}

// SIMDTier names a batch-lookup vector width, re-exported from
// internal/simd so callers can pin a tier in tests without importing an
// internal package.
type SIMDTier = simd.Tier

// SIMD tier constants, re-exported from internal/simd.
const (
	Scalar = simd.Scalar
	SSE2   = simd.SSE2
	SSE42  = simd.SSE42
	AVX    = simd.AVX
	AVX2   = simd.AVX2
	AVX512 = simd.AVX512
)

// ForceSIMDTier overrides the SIMD tier every backend's batch lookup uses
// for the rest of the process. It exists for §8 property 8 (SIMD
// equivalence) tests that need to exercise every width deterministically
// regardless of the host CPU's actual capabilities.
func ForceSIMDTier(tier SIMDTier) {
	simd.ForceTier(tier)
}

// GetVersion returns the engine's version string.
func GetVersion() string {
	return version
}

const version = "1.0.0"

// Stats reports a table's diagnostic counters. NodeCount is backend
// specific: trie-based backends (8-stride, Wide-16's tail trie) report
// live internal/nodepool nodes; DIR-24-8 has no node pool of its own and
// reports its TBL8 overflow-table count instead.
type Stats struct {
	Backend     Backend
	PrefixCount int
	NodeCount   uint64
	MemoryBytes uint64
}

// GetStats returns a snapshot of t's statistics.
func (t *Table) GetStats() (Stats, error) {
	if err := t.live(); err != nil {
		return Stats{}, err
	}
	switch t.backend {
	case BackendIPv4DIR24:
		s := t.dir24.Stats()
		return Stats{Backend: t.backend, PrefixCount: s.PrefixCount, NodeCount: uint64(s.Tbl8Count), MemoryBytes: s.MemoryBytes}, nil
	case BackendIPv4Stride8:
		s := t.stride4.Stats()
		return Stats{Backend: t.backend, PrefixCount: s.PrefixCount, NodeCount: uint64(s.NodeCount), MemoryBytes: s.MemoryBytes}, nil
	case BackendIPv6Wide16:
		s := t.wide16.Stats()
		return Stats{Backend: t.backend, PrefixCount: s.PrefixCount, NodeCount: uint64(s.TailNodeCount), MemoryBytes: s.MemoryBytes}, nil
	case BackendIPv6Stride8:
		s := t.stride16.Stats()
		return Stats{Backend: t.backend, PrefixCount: s.PrefixCount, NodeCount: uint64(s.NodeCount), MemoryBytes: s.MemoryBytes}, nil
	}
	return Stats{}, ErrUnsupportedBackend
}

// PrintStats writes t's statistics to w, defaulting to os.Stderr if w is
// nil, as plain formatted text rather than through a logging framework
// (§4.8; matches the teacher's treatment of diagnostic dumps).
func (t *Table) PrintStats(w io.Writer) error {
	if w == nil {
		w = os.Stderr
	}
	st, err := t.GetStats()
	if err != nil {
		fmt.Fprintf(w, "lpm: stats unavailable: %v\n", err)
		return err
	}
	fmt.Fprintf(w, "backend=%s prefixes=%d nodes=%d memory_bytes=%d\n",
		st.Backend, st.PrefixCount, st.NodeCount, st.MemoryBytes)
	return nil
}
