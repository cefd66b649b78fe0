// Package stride implements the multi-level 8-bit stride trie shared by
// the IPv4 8-stride backend (§4.3, 4 levels) and the IPv6 8-stride backend
// (§4.5, 16 levels) — per spec.md, "identical algorithm to §4.3 extended
// to 16 bytes", so one generic implementation serves both.
//
// A prefix of length L is expanded at insert time into every sibling
// entry its high-order bits cover at level (L-1)/8, so lookup never walks
// back up to an ancestor: it simply remembers the deepest valid entry
// seen while descending and returns that.
package stride

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/lpm/internal/nodepool"
	"github.com/therealutkarshpriyadarshi/lpm/internal/simd"
)

const invalidNextHop = 0xFFFFFFFF

var (
	// ErrInvalidPrefixLength is returned when len is outside [0, addrLen*8].
	ErrInvalidPrefixLength = errors.New("stride: invalid prefix length")
	// ErrPrefixNotFound is returned by Delete for an unknown prefix.
	ErrPrefixNotFound = errors.New("stride: prefix not found")
)

// prefixRecord remembers an inserted prefix so Delete can recompute, for
// any cell it vacates, the next-longest prefix that still covers it.
type prefixRecord struct {
	addr    []byte // addrLen bytes, host bits beyond len already masked
	len     int
	nextHop uint32
}

// Trie is a multi-level 8-bit stride trie. addrLen is the address width in
// bytes (4 for IPv4, 16 for IPv6), which is also the number of trie
// levels.
type Trie struct {
	pool    *nodepool.Pool
	rootIdx uint32
	addrLen int

	// ownerLen[nodeIdx][i] is the length of the prefix that last wrote
	// entry i of the node at nodeIdx; 0 means the entry has no owner.
	// A parallel byte-per-entry array, same idea as DIR-24-8's TBL24/TBL8
	// owner metadata (spec.md §9), generalized to every trie level.
	ownerLen [][nodepool.Width]uint8

	hasDefault bool
	defaultHop uint32

	prefixes []prefixRecord

	prefixCount int
}

// New creates an empty stride trie for addresses of addrLen bytes
// (4 for IPv4, 16 for IPv6).
func New(addrLen int) *Trie {
	pool := nodepool.New()
	root := pool.Allocate()
	return &Trie{
		pool:     pool,
		rootIdx:  root,
		addrLen:  addrLen,
		ownerLen: make([][nodepool.Width]uint8, pool.Len()),
	}
}

func (tr *Trie) ensureOwnerLen(idx uint32) {
	for uint32(len(tr.ownerLen)) <= idx {
		tr.ownerLen = append(tr.ownerLen, [nodepool.Width]uint8{})
	}
}

func mask(addr []byte, prefixLen int) []byte {
	out := make([]byte, len(addr))
	copy(out, addr)
	full := prefixLen / 8
	rem := prefixLen % 8
	if full < len(out) && rem != 0 {
		out[full] &= ^byte(0) << (8 - rem)
		full++
	}
	for i := full; i < len(out); i++ {
		out[i] = 0
	}
	return out
}

// Add inserts addr/prefixLen -> nextHop (network-order address bytes).
// Host bits beyond prefixLen are masked off silently (spec.md §9).
func (tr *Trie) Add(addr []byte, prefixLen int, nextHop uint32) error {
	if prefixLen < 0 || prefixLen > tr.addrLen*8 {
		return ErrInvalidPrefixLength
	}

	masked := mask(addr, prefixLen)
	isNew := tr.recordPrefix(masked, prefixLen, nextHop)

	if prefixLen == 0 {
		tr.hasDefault = true
		tr.defaultHop = nextHop
		if isNew {
			tr.prefixCount++
		}
		return nil
	}

	entryLevel := (prefixLen - 1) / 8
	bitsInByte := prefixLen - entryLevel*8

	nodeIdx := tr.rootIdx
	for lvl := 0; lvl < entryLevel; lvl++ {
		node := tr.pool.Get(nodeIdx)
		b := masked[lvl]
		child := node[b].Child()
		if child == 0 {
			child = tr.pool.Allocate()
			tr.ensureOwnerLen(child)
			node[b].SetChild(child)
		}
		nodeIdx = child
	}

	node := tr.pool.Get(nodeIdx)
	base, span := byteSpan(masked[entryLevel], bitsInByte)
	owners := &tr.ownerLen[nodeIdx]
	for i := base; i < base+span; i++ {
		if owners[i] > uint8(prefixLen) {
			continue // a more specific prefix already owns this entry
		}
		node[i].SetValid(nextHop)
		owners[i] = uint8(prefixLen)
	}

	if isNew {
		tr.prefixCount++
	}
	return nil
}

// byteSpan returns the [base, base+span) range of byte values that share
// the high bitsInByte bits of b.
func byteSpan(b byte, bitsInByte int) (base, span int) {
	span = 256 >> uint(bitsInByte)
	base = int(b) &^ (span - 1)
	return base, span
}

func (tr *Trie) recordPrefix(addr []byte, prefixLen int, nextHop uint32) bool {
	for i := range tr.prefixes {
		if tr.prefixes[i].len == prefixLen && bytesEqual(tr.prefixes[i].addr, addr) {
			tr.prefixes[i].nextHop = nextHop
			return false
		}
	}
	tr.prefixes = append(tr.prefixes, prefixRecord{addr: addr, len: prefixLen, nextHop: nextHop})
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Delete removes addr/prefixLen. It is not an error to delete a prefix
// that was never inserted; ErrPrefixNotFound is returned but carries no
// fatal significance.
func (tr *Trie) Delete(addr []byte, prefixLen int) error {
	if prefixLen < 0 || prefixLen > tr.addrLen*8 {
		return ErrInvalidPrefixLength
	}

	masked := mask(addr, prefixLen)
	if !tr.removePrefixRecord(masked, prefixLen) {
		return ErrPrefixNotFound
	}
	tr.prefixCount--

	if prefixLen == 0 {
		tr.hasDefault = false
		tr.defaultHop = 0
		return nil
	}

	entryLevel := (prefixLen - 1) / 8
	bitsInByte := prefixLen - entryLevel*8

	path := make([]uint32, 0, entryLevel+1)
	path = append(path, tr.rootIdx)
	nodeIdx := tr.rootIdx
	for lvl := 0; lvl < entryLevel; lvl++ {
		node := tr.pool.Get(nodeIdx)
		nodeIdx = node[masked[lvl]].Child()
		path = append(path, nodeIdx)
	}

	node := tr.pool.Get(nodeIdx)
	base, span := byteSpan(masked[entryLevel], bitsInByte)
	owners := &tr.ownerLen[nodeIdx]

	// A covering prefix shorter than this level's own span (length <=
	// entryLevel*8) terminates at an ancestor node and is already found
	// by lookup's ordinary descent — it set its own valid entry there
	// when it was inserted. Restoring it here too would duplicate that
	// marking at this deeper level, and that duplicate is never revisited
	// when the ancestor prefix is itself later deleted (its own deletion
	// only walks its own level's entries). So only a same-level prefix
	// (length > entryLevel*8) may replace what this delete vacates;
	// anything shorter is left to the ancestor's entry to supply.
	minLen := entryLevel * 8

	lookupAddr := make([]byte, len(masked))
	copy(lookupAddr, masked)
	for i := base; i < base+span; i++ {
		if int(owners[i]) != prefixLen {
			continue
		}
		lookupAddr[entryLevel] = byte(i)
		bestLen, bestHop, found := tr.bestCoveringPrefix(lookupAddr, prefixLen, minLen)
		if !found {
			node[i].ClearValid()
			owners[i] = 0
			continue
		}
		node[i].SetValid(bestHop)
		owners[i] = uint8(bestLen)
	}

	tr.pruneEmptyPath(path, masked)
	return nil
}

// bestCoveringPrefix returns the length and next-hop of the longest
// recorded prefix covering addr whose length is in (minLen, maxLen] —
// i.e. a prefix that terminates at the same trie level as the entry
// being restored. Prefixes of length <= minLen terminate at an ancestor
// level and are deliberately excluded: lookup already finds them during
// ordinary descent, so restoring one here would plant a stale duplicate.
func (tr *Trie) bestCoveringPrefix(addr []byte, maxLen, minLen int) (bestLen int, bestHop uint32, found bool) {
	for _, pr := range tr.prefixes {
		if pr.len > maxLen || pr.len <= minLen {
			continue
		}
		if !bytesEqual(mask(addr, pr.len), pr.addr) {
			continue
		}
		if !found || pr.len > bestLen {
			bestLen, bestHop, found = pr.len, pr.nextHop, true
		}
	}
	return
}

// pruneEmptyPath frees trailing nodes on path that no longer hold any
// child pointer or valid entry, walking from the leaf back toward the
// root and clearing the parent's child pointer for each one freed.
func (tr *Trie) pruneEmptyPath(path []uint32, addr []byte) {
	for lvl := len(path) - 1; lvl > 0; lvl-- {
		idx := path[lvl]
		if !tr.nodeIsEmpty(idx) {
			return
		}
		parentIdx := path[lvl-1]
		parent := tr.pool.Get(parentIdx)
		parent[addr[lvl-1]].SetChild(0)
		tr.pool.Free(idx)
	}
}

func (tr *Trie) nodeIsEmpty(idx uint32) bool {
	node := tr.pool.Get(idx)
	for i := range node {
		if node[i].ChildAndValid != 0 {
			return false
		}
	}
	return true
}

func (tr *Trie) removePrefixRecord(addr []byte, prefixLen int) bool {
	for i := range tr.prefixes {
		if tr.prefixes[i].len == prefixLen && bytesEqual(tr.prefixes[i].addr, addr) {
			tr.prefixes = append(tr.prefixes[:i], tr.prefixes[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the next-hop for addr (network-order bytes, addrLen long),
// or ok=false if no prefix including the default route matches.
func (tr *Trie) Lookup(addr []byte) (uint32, bool) {
	var best uint32
	found := false

	nodeIdx := tr.rootIdx
	for lvl := 0; lvl < tr.addrLen; lvl++ {
		node := tr.pool.Get(nodeIdx)
		e := node[addr[lvl]]
		if e.Valid() {
			best = e.NextHop
			found = true
		}
		child := e.Child()
		if child == 0 {
			break
		}
		nodeIdx = child
	}

	if found {
		return best, true
	}
	if tr.hasDefault {
		return tr.defaultHop, true
	}
	return 0, false
}

type lane struct {
	nodeIdx uint32
	best    uint32
	found   bool
}

// LookupBatch fills out[i] with the lookup result for addrs[i] (each
// addrLen bytes, network order), interleaving groups of the resolved SIMD
// tier's width so independent walks' memory loads overlap instead of
// serializing behind one pointer chase (§4.7).
func (tr *Trie) LookupBatch(addrs [][]byte, out []uint32) {
	tier := simd.ResolveTier()
	simd.ForEachGroup(len(addrs), tier, func(offset, size int) {
		if size == 1 {
			nh, ok := tr.Lookup(addrs[offset])
			out[offset] = tr.resultOrInvalid(nh, ok)
			return
		}

		lanes := make([]lane, size)
		for i := range lanes {
			lanes[i].nodeIdx = tr.rootIdx
		}

		simd.RunInterleaved(size, tr.addrLen, func(l, depth int) bool {
			node := tr.pool.Get(lanes[l].nodeIdx)
			e := node[addrs[offset+l][depth]]
			if e.Valid() {
				lanes[l].best = e.NextHop
				lanes[l].found = true
			}
			child := e.Child()
			if child == 0 {
				return false
			}
			lanes[l].nodeIdx = child
			return true
		})

		for i := range lanes {
			out[offset+i] = tr.resultOrInvalid(lanes[i].best, lanes[i].found)
		}
	})
}

func (tr *Trie) resultOrInvalid(nh uint32, found bool) uint32 {
	if found {
		return nh
	}
	if tr.hasDefault {
		return tr.defaultHop
	}
	return invalidNextHop
}

// Stats reports counters for diagnostics.
type Stats struct {
	PrefixCount int
	NodeCount   uint32
	MemoryBytes uint64
}

// Stats returns current trie statistics.
func (tr *Trie) Stats() Stats {
	return Stats{
		PrefixCount: tr.prefixCount,
		NodeCount:   tr.pool.Count(),
		MemoryBytes: tr.pool.MemoryBytes(),
	}
}
