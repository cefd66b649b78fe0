package entry

import "testing"

func TestEntryEmpty(t *testing.T) {
	var e Entry
	if !e.IsEmpty() {
		t.Fatalf("zero-value entry should be empty")
	}
	if e.Valid() {
		t.Fatalf("zero-value entry should not be valid")
	}
	if e.Child() != 0 {
		t.Fatalf("zero-value entry should have no child, got %d", e.Child())
	}
}

func TestEntrySetChild(t *testing.T) {
	var e Entry
	e.SetChild(42)
	if e.Child() != 42 {
		t.Fatalf("expected child 42, got %d", e.Child())
	}
	if e.IsEmpty() {
		t.Fatalf("entry with a child should not be empty")
	}
	if e.Valid() {
		t.Fatalf("setting a child alone should not set the valid flag")
	}
}

func TestEntrySetValid(t *testing.T) {
	var e Entry
	e.SetChild(7)
	e.SetValid(100)

	if !e.Valid() {
		t.Fatalf("expected entry to be valid")
	}
	if e.NextHop != 100 {
		t.Fatalf("expected next hop 100, got %d", e.NextHop)
	}
	if e.Child() != 7 {
		t.Fatalf("setting valid should preserve child, got %d", e.Child())
	}

	e.ClearValid()
	if e.Valid() {
		t.Fatalf("expected entry to no longer be valid")
	}
	if e.Child() != 7 {
		t.Fatalf("clearing valid should preserve child, got %d", e.Child())
	}
}

func TestChildMaskBounds(t *testing.T) {
	var e Entry
	e.SetChild(MaxChildIndex)
	if e.Child() != MaxChildIndex {
		t.Fatalf("expected max child index %d, got %d", MaxChildIndex, e.Child())
	}

	// A value with bit 30 or 31 set must not leak into Child().
	e.ChildAndValid = 0xFFFFFFFF
	if e.Child() != ChildMask {
		t.Fatalf("Child() must mask to 30 bits, got %#x", e.Child())
	}
}
