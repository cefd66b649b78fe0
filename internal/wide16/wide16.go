// Package wide16 implements the IPv6 Wide-16 backend (spec.md §4.4): a
// 65536-entry first-level table keyed by the address's top two bytes,
// descending into an internal/stride trie over the remaining 14 bytes for
// anything more specific than a /16.
package wide16

import (
	"errors"

	"github.com/therealutkarshpriyadarshi/lpm/internal/stride"
)

const (
	tbl16Size      = 1 << 16
	invalidNextHop = 0xFFFFFFFF
	addrLen        = 16
	tailLen        = addrLen - 2
)

var (
	// ErrInvalidPrefixLength is returned when prefixLen is outside [0, 128].
	ErrInvalidPrefixLength = errors.New("wide16: invalid prefix length")
	// ErrPrefixNotFound is returned by Delete for an unknown prefix.
	ErrPrefixNotFound = errors.New("wide16: prefix not found")
)

// cell16 is one entry of the first-level table: a direct next-hop/valid
// pair for prefixes of length <= 16, or a pointer into the tail trie for
// anything more specific, mirroring DIR-24-8's direct-cell-or-pointer
// design one level higher (spec.md §4.2, generalized to a 16-bit stride).
type cell16 struct {
	nextHop  uint32
	ownerLen uint8
	valid    bool
}

// Table is the Wide-16 IPv6 backend.
type Table struct {
	tbl16 []cell16
	tail  *stride.Trie

	hasDefault bool
	defaultHop uint32

	prefixes []prefixRecord
}

type prefixRecord struct {
	addr    [addrLen]byte
	len     int
	nextHop uint32
}

// New creates an empty Wide-16 table.
func New() *Table {
	return &Table{
		tbl16: make([]cell16, tbl16Size),
		tail:  stride.New(tailLen),
	}
}

func key16(addr []byte) uint32 {
	return uint32(addr[0])<<8 | uint32(addr[1])
}

func mask128(addr []byte, prefixLen int) [addrLen]byte {
	var out [addrLen]byte
	copy(out[:], addr)
	full := prefixLen / 8
	rem := prefixLen % 8
	if full < addrLen && rem != 0 {
		out[full] &= ^byte(0) << (8 - rem)
		full++
	}
	for i := full; i < addrLen; i++ {
		out[i] = 0
	}
	return out
}

// Add inserts addr/prefixLen -> nextHop. addr must be 16 bytes, network
// order. Host bits beyond prefixLen are masked off silently (spec.md §9).
func (t *Table) Add(addr []byte, prefixLen int, nextHop uint32) error {
	if len(addr) != addrLen || prefixLen < 0 || prefixLen > addrLen*8 {
		return ErrInvalidPrefixLength
	}

	masked := mask128(addr, prefixLen)
	t.recordPrefix(masked, prefixLen, nextHop)

	if prefixLen == 0 {
		t.hasDefault = true
		t.defaultHop = nextHop
		return nil
	}

	if prefixLen <= 16 {
		base, span := rangeFor16(masked, prefixLen)
		for i := base; i < base+span; i++ {
			c := &t.tbl16[i]
			if c.valid && c.ownerLen > uint8(prefixLen) {
				continue
			}
			c.valid = true
			c.nextHop = nextHop
			c.ownerLen = uint8(prefixLen)
		}
		return nil
	}

	return t.tail.Add(masked[2:], prefixLen-16, nextHop)
}

// rangeFor16 returns the [base, base+span) range of tbl16 indices covered
// by the top prefixLen bits, for prefixLen <= 16.
func rangeFor16(addr [addrLen]byte, prefixLen int) (base, span int) {
	key := int(addr[0])<<8 | int(addr[1])
	span = 1 << uint(16-prefixLen)
	base = key &^ (span - 1)
	return base, span
}

func (t *Table) recordPrefix(addr [addrLen]byte, prefixLen int, nextHop uint32) {
	for i := range t.prefixes {
		if t.prefixes[i].len == prefixLen && t.prefixes[i].addr == addr {
			t.prefixes[i].nextHop = nextHop
			return
		}
	}
	t.prefixes = append(t.prefixes, prefixRecord{addr: addr, len: prefixLen, nextHop: nextHop})
}

// Delete removes addr/prefixLen.
func (t *Table) Delete(addr []byte, prefixLen int) error {
	if len(addr) != addrLen || prefixLen < 0 || prefixLen > addrLen*8 {
		return ErrInvalidPrefixLength
	}

	masked := mask128(addr, prefixLen)
	if !t.removePrefixRecord(masked, prefixLen) {
		return ErrPrefixNotFound
	}

	if prefixLen == 0 {
		t.hasDefault = false
		t.defaultHop = 0
		return nil
	}

	if prefixLen <= 16 {
		base, span := rangeFor16(masked, prefixLen)
		for i := base; i < base+span; i++ {
			c := &t.tbl16[i]
			if int(c.ownerLen) != prefixLen {
				continue
			}
			var lookup [addrLen]byte
			lookup[0], lookup[1] = byte(i>>8), byte(i)
			bestLen, bestHop, found := t.bestCoveringPrefix(lookup, prefixLen)
			if !found {
				*c = cell16{}
				continue
			}
			c.valid = true
			c.nextHop = bestHop
			c.ownerLen = uint8(bestLen)
		}
		return nil
	}

	return t.tail.Delete(masked[2:], prefixLen-16)
}

func (t *Table) bestCoveringPrefix(addr [addrLen]byte, maxLen int) (bestLen int, bestHop uint32, found bool) {
	for _, pr := range t.prefixes {
		// The default route is never copied into a cell: Lookup already
		// falls back to it, and a copy would outlive its deletion.
		if pr.len > maxLen || pr.len == 0 {
			continue
		}
		if mask128(addr[:], pr.len) != pr.addr {
			continue
		}
		if !found || pr.len > bestLen {
			bestLen, bestHop, found = pr.len, pr.nextHop, true
		}
	}
	return
}

func (t *Table) removePrefixRecord(addr [addrLen]byte, prefixLen int) bool {
	for i := range t.prefixes {
		if t.prefixes[i].len == prefixLen && t.prefixes[i].addr == addr {
			t.prefixes = append(t.prefixes[:i], t.prefixes[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the next-hop for addr (16 bytes, network order), or
// ok=false if no prefix including the default route matches.
func (t *Table) Lookup(addr []byte) (uint32, bool) {
	c := t.tbl16[key16(addr)]

	if nh, ok := t.tail.Lookup(addr[2:]); ok {
		return nh, true
	}
	if c.valid {
		return c.nextHop, true
	}
	if t.hasDefault {
		return t.defaultHop, true
	}
	return 0, false
}

// LookupBatch fills out[i] with the lookup result for addrs[i].
//
// The tail trie covers the deep, pointer-chasing part of the walk, so
// its batch entry point (internal/stride's interleaved driver, §4.7) is
// used for that half; Wide-16's first-level table is a single direct
// array index per address with no pointer chase to overlap, so it is
// only consulted as a scalar fallback for addresses the tail trie didn't
// match.
func (t *Table) LookupBatch(addrs [][]byte, out []uint32) {
	tails := make([][]byte, len(addrs))
	for i, a := range addrs {
		tails[i] = a[2:]
	}
	t.tail.LookupBatch(tails, out)

	for i, a := range addrs {
		if out[i] != invalidNextHop {
			continue // the tail trie found a more specific match
		}
		c := t.tbl16[key16(a)]
		if c.valid {
			out[i] = c.nextHop
			continue
		}
		if t.hasDefault {
			out[i] = t.defaultHop
			continue
		}
		out[i] = invalidNextHop
	}
}

// Stats reports counters for diagnostics.
type Stats struct {
	PrefixCount   int
	TailNodeCount uint32
	MemoryBytes   uint64
}

// Stats returns current table statistics.
func (t *Table) Stats() Stats {
	tailStats := t.tail.Stats()
	return Stats{
		PrefixCount:   len(t.prefixes),
		TailNodeCount: tailStats.NodeCount,
		MemoryBytes:   uint64(len(t.tbl16))*8 + tailStats.MemoryBytes,
	}
}
