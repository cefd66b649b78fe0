// Package nodepool implements the growable, index-addressed arena that
// every trie-based backend allocates its 256-way nodes from. Nodes are
// addressed by 32-bit index rather than pointer so they pack into the
// 30-bit child field of internal/entry.Entry and so the arena stays
// contiguous in memory for cache locality.
package nodepool

import (
	"unsafe"

	"github.com/therealutkarshpriyadarshi/lpm/internal/entry"
)

// Width is the number of entries in a single node (one per byte value).
const Width = 256

// Node is a fixed-size, 256-way fan-out node. Entry[0] of a freed node
// doubles as the free-list link: its ChildAndValid field stores the next
// free index, which is safe because a freed node is never read as routing
// data until it is reallocated and zeroed.
type Node [Width]entry.Entry

// Pool is a contiguous, growable array of nodes with a free list of
// reclaimed indices. Index 0 is reserved as the null sentinel and is
// never returned by Allocate or accepted by Free.
type Pool struct {
	nodes    []Node
	freeHead uint32 // 0 means the free list is empty
	count    uint32 // live (allocated, not freed) node count
}

const nullIndex = 0

// New creates a pool with its sentinel node already allocated at index 0.
func New() *Pool {
	p := &Pool{
		nodes: make([]Node, 1, 64),
	}
	return p
}

// Allocate returns the index of a fresh, zeroed node: a reclaimed index
// from the free list if one is available, otherwise a newly grown slot.
// The backing array grows by doubling, matching the spec's monotonically
// non-decreasing capacity requirement.
func (p *Pool) Allocate() uint32 {
	if p.freeHead != nullIndex {
		idx := p.freeHead
		p.freeHead = p.nodes[idx][0].Child()
		p.nodes[idx] = Node{}
		p.count++
		return idx
	}

	if len(p.nodes) == cap(p.nodes) {
		newCap := cap(p.nodes) * 2
		if newCap == 0 {
			newCap = 64
		}
		grown := make([]Node, len(p.nodes), newCap)
		copy(grown, p.nodes)
		p.nodes = grown
	}

	p.nodes = append(p.nodes, Node{})
	idx := uint32(len(p.nodes) - 1)
	p.count++
	return idx
}

// Free pushes idx onto the free list. The node is not zeroed until it is
// reallocated, matching the spec's "no zeroing until reallocated" rule;
// the free-list link is written into entry 0's child field.
func (p *Pool) Free(idx uint32) {
	if idx == nullIndex {
		return
	}
	p.nodes[idx][0].SetChild(p.freeHead)
	p.freeHead = idx
	if p.count > 0 {
		p.count--
	}
}

// Get returns a pointer to the node at idx for direct read/write access.
func (p *Pool) Get(idx uint32) *Node {
	return &p.nodes[idx]
}

// Len returns the number of slots currently backing the pool, including
// the sentinel and any freed-but-unreclaimed nodes.
func (p *Pool) Len() int {
	return len(p.nodes)
}

// Count returns the number of live (allocated, not freed) nodes.
func (p *Pool) Count() uint32 {
	return p.count
}

// MemoryBytes estimates the pool's resident memory usage, for statistics.
func (p *Pool) MemoryBytes() uint64 {
	var n Node
	return uint64(cap(p.nodes)) * uint64(unsafe.Sizeof(n))
}
