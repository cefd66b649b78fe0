package nodepool

import "testing"

func TestNewPoolReservesSentinel(t *testing.T) {
	p := New()
	if p.Len() != 1 {
		t.Fatalf("expected pool to start with 1 node (sentinel), got %d", p.Len())
	}
	if p.Count() != 0 {
		t.Fatalf("sentinel should not count as a live node, got %d", p.Count())
	}
}

func TestAllocateNeverReturnsSentinel(t *testing.T) {
	p := New()
	for i := 0; i < 1000; i++ {
		if idx := p.Allocate(); idx == 0 {
			t.Fatalf("Allocate returned the sentinel index")
		}
	}
}

func TestAllocateGrowsAndReclaims(t *testing.T) {
	p := New()

	a := p.Allocate()
	b := p.Allocate()
	if a == b {
		t.Fatalf("expected distinct indices, got %d twice", a)
	}
	if p.Count() != 2 {
		t.Fatalf("expected 2 live nodes, got %d", p.Count())
	}

	p.Free(a)
	if p.Count() != 1 {
		t.Fatalf("expected 1 live node after free, got %d", p.Count())
	}

	c := p.Allocate()
	if c != a {
		t.Fatalf("expected reclaimed index %d, got %d", a, c)
	}
	if p.Count() != 2 {
		t.Fatalf("expected 2 live nodes after reclaim, got %d", p.Count())
	}
}

func TestFreeZeroIsNoop(t *testing.T) {
	p := New()
	p.Free(0) // must not corrupt the free list or panic
	idx := p.Allocate()
	if idx == 0 {
		t.Fatalf("Allocate returned the sentinel after freeing it")
	}
}

func TestPoolCapacityGrowsByDoubling(t *testing.T) {
	p := New()
	prevCap := cap(p.nodes)
	grew := false
	for i := 0; i < 1000; i++ {
		p.Allocate()
		if newCap := cap(p.nodes); newCap > prevCap {
			if prevCap != 0 && newCap != prevCap*2 {
				t.Fatalf("expected capacity to double from %d, got %d", prevCap, newCap)
			}
			grew = true
			prevCap = newCap
		}
	}
	if !grew {
		t.Fatalf("expected pool capacity to grow at least once")
	}
}

func TestGetReturnsWritableNode(t *testing.T) {
	p := New()
	idx := p.Allocate()
	n := p.Get(idx)
	n[5].SetChild(99)

	if p.Get(idx)[5].Child() != 99 {
		t.Fatalf("mutation through Get did not persist")
	}
}
