// Package dir24 implements the IPv4 DIR-24-8 backend: a 16 Mi-entry
// first-level table keyed by the top 24 bits of an address, with 256-entry
// overflow tables (TBL8s) for prefixes longer than 24 bits.
package dir24

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/lpm/internal/blockpool"
	"github.com/therealutkarshpriyadarshi/lpm/internal/simd"
)

// MaxPrefixLen is the longest prefix this backend accepts.
const MaxPrefixLen = 32

// MaxNextHop is the largest next-hop value this backend accepts (30 bits).
// Add rejects anything larger with ErrNextHopOutOfRange; the cells
// themselves keep the next-hop in a full uint32 beside separate
// owner-length and pointer fields.
const MaxNextHop = 0x3FFFFFFF

const (
	tbl24Size      = 1 << 24
	tbl8Size       = 256
	invalidNextHop = 0xFFFFFFFF
)

var (
	// ErrInvalidPrefixLength is returned when len is outside [0, 32].
	ErrInvalidPrefixLength = errors.New("dir24: invalid prefix length")
	// ErrNextHopOutOfRange is returned when next-hop exceeds 30 bits.
	ErrNextHopOutOfRange = errors.New("dir24: next hop exceeds 30-bit range")
	// ErrPrefixNotFound is returned by Delete for an unknown prefix.
	ErrPrefixNotFound = errors.New("dir24: prefix not found")
)

// tbl24Cell is one TBL24 slot: either a direct next-hop (isPtr == false)
// or the index of a TBL8 (isPtr == true), plus the length of the prefix
// that last wrote the cell so inserts/deletes can tell "more specific"
// from "less specific" without re-walking every registered prefix.
type tbl24Cell struct {
	value    uint32 // next-hop, or TBL8 index when isPtr
	ownerLen uint8  // prefix length that wrote this cell; 0 means empty
	isPtr    bool
}

// tbl8 is one overflow table plus the owner-length metadata for its cells.
type tbl8 struct {
	cells    [tbl8Size]uint32
	ownerLen [tbl8Size]uint8
}

// prefixRecord remembers every inserted prefix so Delete can recompute,
// for any cell it vacates, the next-longest prefix that still covers it.
type prefixRecord struct {
	network uint32 // host-order, already masked to prefixLen
	len     uint8
	nextHop uint32
}

// Table is an IPv4 DIR-24-8 longest-prefix-match table.
type Table struct {
	tbl24       []tbl24Cell
	tbl8s       map[uint32]*tbl8
	tbl8Owner   map[uint32]uint32 // TBL8 index -> owning TBL24 index
	tbl8Pool    *blockpool.Pool[tbl8]
	nextTbl8Idx uint32

	hasDefault bool
	defaultHop uint32

	prefixes []prefixRecord

	prefixCount int
	tbl8Count   int
}

// New creates an empty DIR-24-8 table.
func New() *Table {
	return &Table{
		tbl24:     make([]tbl24Cell, tbl24Size),
		tbl8s:     make(map[uint32]*tbl8),
		tbl8Owner: make(map[uint32]uint32),
		tbl8Pool:  blockpool.New[tbl8](),
	}
}

func mask32(prefixLen uint8) uint32 {
	if prefixLen == 0 {
		return 0
	}
	return ^uint32(0) << (32 - prefixLen)
}

// Add inserts prefix/prefixLen -> nextHop (host-order address). Host bits
// set beyond prefixLen are masked off silently, matching the original's
// documented leniency (spec.md §9).
func (t *Table) Add(addr uint32, prefixLen uint8, nextHop uint32) error {
	if prefixLen > MaxPrefixLen {
		return ErrInvalidPrefixLength
	}
	if nextHop > MaxNextHop {
		return ErrNextHopOutOfRange
	}

	network := addr & mask32(prefixLen)
	isNew := t.recordPrefix(network, prefixLen, nextHop)

	if prefixLen == 0 {
		t.hasDefault = true
		t.defaultHop = nextHop
		if isNew {
			t.prefixCount++
		}
		return nil
	}

	if prefixLen <= 24 {
		base := network >> 8
		span := uint32(1) << (24 - prefixLen)
		for i := base; i < base+span; i++ {
			cell := &t.tbl24[i]
			if cell.isPtr {
				// Ownership for a pointer cell lives per-byte in the TBL8,
				// not in this cell's (now stale) ownerLen field.
				t.writeTbl8Range(cell.value, 0, tbl8Size, prefixLen, nextHop)
				continue
			}
			if cell.ownerLen > prefixLen {
				continue // a more specific prefix already owns this cell
			}
			cell.value = nextHop
			cell.ownerLen = prefixLen
			cell.isPtr = false
		}
	} else {
		idx := network >> 8
		cell := &t.tbl24[idx]
		if !cell.isPtr {
			blk := t.tbl8Pool.Get()
			fillHop, fillLen := cell.value, cell.ownerLen
			for i := range blk.cells {
				blk.cells[i] = fillHop
				blk.ownerLen[i] = fillLen
			}
			t.tbl8s[t.nextTbl8Idx] = blk
			t.tbl8Owner[t.nextTbl8Idx] = idx
			cell.value = t.nextTbl8Idx
			cell.isPtr = true
			t.nextTbl8Idx++
			t.tbl8Count++
		}
		low := network & 0xFF
		span := uint32(1) << (32 - prefixLen)
		t.writeTbl8Range(cell.value, low, low+span, prefixLen, nextHop)
	}

	if isNew {
		t.prefixCount++
	}
	return nil
}

func (t *Table) writeTbl8Range(tbl8Idx uint32, lo, hi uint32, prefixLen uint8, nextHop uint32) {
	blk := t.tbl8s[tbl8Idx]
	if hi > tbl8Size {
		hi = tbl8Size
	}
	for i := lo; i < hi; i++ {
		if blk.ownerLen[i] > prefixLen {
			continue
		}
		blk.cells[i] = nextHop
		blk.ownerLen[i] = prefixLen
	}
}

// recordPrefix adds or updates the bookkeeping entry for a prefix and
// reports whether this was a brand-new prefix (vs. an overwrite).
func (t *Table) recordPrefix(network uint32, prefixLen uint8, nextHop uint32) bool {
	for i := range t.prefixes {
		if t.prefixes[i].network == network && t.prefixes[i].len == prefixLen {
			t.prefixes[i].nextHop = nextHop
			return false
		}
	}
	t.prefixes = append(t.prefixes, prefixRecord{network: network, len: prefixLen, nextHop: nextHop})
	return true
}

// Delete removes prefix/prefixLen. It is not an error to delete a prefix
// that was never inserted; ErrPrefixNotFound is returned but carries no
// fatal significance.
func (t *Table) Delete(addr uint32, prefixLen uint8) error {
	if prefixLen > MaxPrefixLen {
		return ErrInvalidPrefixLength
	}

	network := addr & mask32(prefixLen)

	if prefixLen == 0 {
		if !t.hasDefault {
			return ErrPrefixNotFound
		}
		t.hasDefault = false
		t.defaultHop = 0
		t.removePrefixRecord(0, 0)
		t.prefixCount--
		return nil
	}

	if !t.removePrefixRecord(network, prefixLen) {
		return ErrPrefixNotFound
	}
	t.prefixCount--

	if prefixLen <= 24 {
		base := network >> 8
		span := uint32(1) << (24 - prefixLen)
		for i := base; i < base+span; i++ {
			cell := &t.tbl24[i]
			if cell.isPtr {
				t.reconcileTbl8Range(cell.value, 0, tbl8Size, prefixLen)
				t.maybeCollapse(cell)
				continue
			}
			if cell.ownerLen != prefixLen {
				continue
			}
			t.restoreTbl24Cell(cell, i)
		}
	} else {
		idx := network >> 8
		cell := &t.tbl24[idx]
		if cell.isPtr {
			low := network & 0xFF
			span := uint32(1) << (32 - prefixLen)
			t.reconcileTbl8Range(cell.value, low, low+span, prefixLen)
			t.maybeCollapse(cell)
		}
	}

	return nil
}

// maybeCollapse folds a TBL8 back into a direct TBL24 cell once every one
// of its 256 entries agrees on the same (ownerLen, next-hop) pair and that
// owner is a prefix of length 24 or less, and returns the TBL8's backing
// block to the pool. A TBL8 uniformly owned by longer prefixes is kept, so
// that deleting one of them still finds its cells. Spec.md §4.2 allows this
// collapse to be deferred indefinitely; doing it eagerly here keeps the
// table compact and gives internal/blockpool recycling something to do.
func (t *Table) maybeCollapse(cell *tbl24Cell) {
	blk, ok := t.tbl8s[cell.value]
	if !ok {
		return
	}
	firstLen := blk.ownerLen[0]
	firstHop := blk.cells[0]
	if firstLen > 24 {
		return
	}
	for i := 1; i < tbl8Size; i++ {
		if blk.ownerLen[i] != firstLen || blk.cells[i] != firstHop {
			return
		}
	}

	idx := cell.value
	cell.value = firstHop
	cell.ownerLen = firstLen
	cell.isPtr = false

	delete(t.tbl8s, idx)
	delete(t.tbl8Owner, idx)
	t.tbl8Pool.Put(blk)
	t.tbl8Count--
}

func (t *Table) removePrefixRecord(network uint32, prefixLen uint8) bool {
	for i := range t.prefixes {
		if t.prefixes[i].network == network && t.prefixes[i].len == prefixLen {
			t.prefixes = append(t.prefixes[:i], t.prefixes[i+1:]...)
			return true
		}
	}
	return false
}

// bestCoveringPrefix returns the length and next-hop of the longest
// recorded prefix no longer than maxLen that still covers addr, or
// found=false if none does.
func (t *Table) bestCoveringPrefix(addr uint32, maxLen uint8) (bestLen uint8, bestHop uint32, found bool) {
	for _, pr := range t.prefixes {
		if pr.len > maxLen {
			continue
		}
		if pr.network != (addr & mask32(pr.len)) {
			continue
		}
		if !found || pr.len > bestLen {
			bestLen, bestHop, found = pr.len, pr.nextHop, true
		}
	}
	return
}

func (t *Table) restoreTbl24Cell(cell *tbl24Cell, tbl24Index uint32) {
	addr := tbl24Index << 8
	bestLen, bestHop, found := t.bestCoveringPrefix(addr, 24)
	if !found {
		*cell = tbl24Cell{}
		return
	}
	cell.value = bestHop
	cell.ownerLen = bestLen
	cell.isPtr = false
}

func (t *Table) reconcileTbl8Range(tbl8Idx uint32, lo, hi uint32, deletedLen uint8) {
	blk := t.tbl8s[tbl8Idx]
	if hi > tbl8Size {
		hi = tbl8Size
	}
	tbl24Index := t.tbl8Owner[tbl8Idx] << 8
	for i := lo; i < hi; i++ {
		if blk.ownerLen[i] != deletedLen {
			continue
		}
		addr := tbl24Index | i
		bestLen, bestHop, found := t.bestCoveringPrefix(addr, 32)
		if !found {
			blk.cells[i] = 0
			blk.ownerLen[i] = 0
			continue
		}
		blk.cells[i] = bestHop
		blk.ownerLen[i] = bestLen
	}
}

// Lookup returns the next-hop for addr (host-order), or ok=false if no
// prefix including the default route matches.
func (t *Table) Lookup(addr uint32) (uint32, bool) {
	cell := &t.tbl24[addr>>8]
	if cell.isPtr {
		blk := t.tbl8s[cell.value]
		low := addr & 0xFF
		if blk.ownerLen[low] > 0 {
			return blk.cells[low], true
		}
	} else if cell.ownerLen > 0 {
		return cell.value, true
	}

	if t.hasDefault {
		return t.defaultHop, true
	}
	return 0, false
}

// LookupBatch fills out[i] with the lookup result for addrs[i], using the
// interleaved-walk driver from internal/simd for groups of the resolved
// SIMD tier's width. DIR-24-8 is at most a two-level walk (TBL24, then
// optionally one TBL8), so the interleaving hides at most one level of
// memory latency, but the structure matches every other backend's batch
// entry point per §4.7.
func (t *Table) LookupBatch(addrs []uint32, out []uint32) {
	tier := simd.ResolveTier()
	simd.ForEachGroup(len(addrs), tier, func(offset, size int) {
		if size == 1 {
			nh, ok := t.Lookup(addrs[offset])
			out[offset] = resultOrInvalid(nh, ok)
			return
		}

		cells := make([]*tbl24Cell, size)
		for lane := 0; lane < size; lane++ {
			cells[lane] = &t.tbl24[addrs[offset+lane]>>8]
		}

		simd.RunInterleaved(size, 2, func(lane, depth int) bool {
			cell := cells[lane]
			if depth == 0 {
				if cell.isPtr {
					return true // continue into the TBL8 depth
				}
				out[offset+lane] = t.directOrDefault(cell.ownerLen > 0, cell.value)
				return false
			}

			blk := t.tbl8s[cell.value]
			low := addrs[offset+lane] & 0xFF
			out[offset+lane] = t.directOrDefault(blk.ownerLen[low] > 0, blk.cells[low])
			return false
		})
	})
}

func (t *Table) directOrDefault(matched bool, value uint32) uint32 {
	if matched {
		return value
	}
	if t.hasDefault {
		return t.defaultHop
	}
	return invalidNextHop
}

func resultOrInvalid(nh uint32, ok bool) uint32 {
	if !ok {
		return invalidNextHop
	}
	return nh
}

// Stats reports counters for diagnostics.
type Stats struct {
	PrefixCount int
	Tbl8Count   int
	MemoryBytes uint64
}

// Stats returns current table statistics.
func (t *Table) Stats() Stats {
	var cellBytes, tbl8Bytes uint64 = 8, tbl8Size * 5
	return Stats{
		PrefixCount: t.prefixCount,
		Tbl8Count:   t.tbl8Count,
		MemoryBytes: uint64(len(t.tbl24))*cellBytes + uint64(len(t.tbl8s))*tbl8Bytes,
	}
}
