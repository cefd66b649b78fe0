package stride

import "testing"

func ip4(a, b, c, d byte) []byte { return []byte{a, b, c, d} }

func TestLongestPrefixMatchIPv4(t *testing.T) {
	tr := New(4)
	mustAdd(t, tr, ip4(192, 168, 0, 0), 16, 100)
	mustAdd(t, tr, ip4(192, 168, 1, 0), 24, 200)
	mustAdd(t, tr, ip4(0, 0, 0, 0), 0, 1)

	cases := []struct {
		addr []byte
		want uint32
	}{
		{ip4(192, 168, 1, 5), 200},
		{ip4(192, 168, 2, 5), 100},
		{ip4(10, 0, 0, 1), 1},
	}
	for _, c := range cases {
		got, ok := tr.Lookup(c.addr)
		if !ok || got != c.want {
			t.Fatalf("lookup(%v) = (%d, %v), want %d", c.addr, got, ok, c.want)
		}
	}
}

func TestHostRouteExactness(t *testing.T) {
	tr := New(4)
	mustAdd(t, tr, ip4(192, 168, 1, 1), 32, 100)

	if got, ok := tr.Lookup(ip4(192, 168, 1, 1)); !ok || got != 100 {
		t.Fatalf("exact match failed: got (%d, %v)", got, ok)
	}
	if _, ok := tr.Lookup(ip4(192, 168, 1, 2)); ok {
		t.Fatalf("expected no match for a non-exact address")
	}
}

func TestDeleteRevertsToShorterPrefix(t *testing.T) {
	tr := New(4)
	mustAdd(t, tr, ip4(10, 0, 0, 0), 8, 100)
	mustAdd(t, tr, ip4(10, 1, 0, 0), 16, 200)

	if err := tr.Delete(ip4(10, 1, 0, 0), 16); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, ok := tr.Lookup(ip4(10, 1, 1, 1))
	if !ok || got != 100 {
		t.Fatalf("expected fallback to /8 route, got (%d, %v)", got, ok)
	}
}

func TestSameByteOverlappingPrefixes(t *testing.T) {
	// /17 and /20 both land in the level-2 node (floor((L-1)/8)==2) but
	// cover different spans of it; /20 must win within its narrower range
	// and reverting it must restore /17 over exactly that range.
	tr := New(4)
	mustAdd(t, tr, ip4(192, 168, 0, 0), 17, 1)
	mustAdd(t, tr, ip4(192, 168, 0, 0), 20, 2)

	if got, ok := tr.Lookup(ip4(192, 168, 0, 5)); !ok || got != 2 {
		t.Fatalf("expected /20 to win inside its range, got (%d, %v)", got, ok)
	}
	if got, ok := tr.Lookup(ip4(192, 168, 100, 5)); !ok || got != 1 {
		t.Fatalf("expected /17 outside the /20 range, got (%d, %v)", got, ok)
	}

	if err := tr.Delete(ip4(192, 168, 0, 0), 20); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, ok := tr.Lookup(ip4(192, 168, 0, 5)); !ok || got != 1 {
		t.Fatalf("expected /17 restored after /20 deletion, got (%d, %v)", got, ok)
	}
}

func TestDeleteOfAncestorDoesNotLeaveStaleDescendant(t *testing.T) {
	// Add 10.0.0.0/8 -> 100; add 10.1.0.0/16 -> 200; delete the /16
	// (restores the level-1 entry from the /8 would be wrong: it must
	// clear instead, since the /8's own level-0 entry already supplies
	// the fallback during descent); then delete the /8 itself. Nothing
	// should match 10.1.1.1 anymore.
	tr := New(4)
	mustAdd(t, tr, ip4(10, 0, 0, 0), 8, 100)
	mustAdd(t, tr, ip4(10, 1, 0, 0), 16, 200)

	if err := tr.Delete(ip4(10, 1, 0, 0), 16); err != nil {
		t.Fatalf("delete /16: %v", err)
	}
	if got, ok := tr.Lookup(ip4(10, 1, 1, 1)); !ok || got != 100 {
		t.Fatalf("expected fallback to /8 after deleting /16, got (%d, %v)", got, ok)
	}

	if err := tr.Delete(ip4(10, 0, 0, 0), 8); err != nil {
		t.Fatalf("delete /8: %v", err)
	}
	if _, ok := tr.Lookup(ip4(10, 1, 1, 1)); ok {
		t.Fatalf("expected no match after deleting both /8 and /16, trie still reports a hit")
	}
}

func TestDefaultRouteIsNeverUsedAsARestoreSource(t *testing.T) {
	// A restore must never pull from the default route: doing so plants
	// an owner-0 valid entry (violating "owner 0 means unowned") and
	// survives deletion of the default route itself, since deleting the
	// default only flips a flag and never walks trie nodes.
	tr := New(4)
	mustAdd(t, tr, ip4(0, 0, 0, 0), 0, 999)
	mustAdd(t, tr, ip4(10, 0, 0, 0), 16, 100)

	if err := tr.Delete(ip4(10, 0, 0, 0), 16); err != nil {
		t.Fatalf("delete /16: %v", err)
	}
	if got, ok := tr.Lookup(ip4(10, 0, 5, 5)); !ok || got != 999 {
		t.Fatalf("expected fallback to default route, got (%d, %v)", got, ok)
	}

	if err := tr.Delete(ip4(0, 0, 0, 0), 0); err != nil {
		t.Fatalf("delete default route: %v", err)
	}
	if _, ok := tr.Lookup(ip4(10, 0, 5, 5)); ok {
		t.Fatalf("expected no match after deleting the default route, trie still reports a hit")
	}
}

func TestOverwriteDoesNotDuplicatePrefixCount(t *testing.T) {
	tr := New(4)
	mustAdd(t, tr, ip4(172, 16, 0, 0), 16, 1)
	mustAdd(t, tr, ip4(172, 16, 0, 0), 16, 2)

	got, ok := tr.Lookup(ip4(172, 16, 5, 5))
	if !ok || got != 2 {
		t.Fatalf("expected overwritten next hop 2, got (%d, %v)", got, ok)
	}
	if st := tr.Stats(); st.PrefixCount != 1 {
		t.Fatalf("overwrite must not increase prefix count, got %d", st.PrefixCount)
	}
}

func TestDeleteNonexistentIsNotFatal(t *testing.T) {
	tr := New(4)
	if err := tr.Delete(ip4(1, 2, 3, 0), 24); err != ErrPrefixNotFound {
		t.Fatalf("expected ErrPrefixNotFound, got %v", err)
	}
}

func TestInvalidPrefixLength(t *testing.T) {
	tr := New(4)
	if err := tr.Add(ip4(0, 0, 0, 0), 33, 1); err != ErrInvalidPrefixLength {
		t.Fatalf("expected ErrInvalidPrefixLength, got %v", err)
	}
}

func TestEmptyNodesArePruned(t *testing.T) {
	tr := New(4)
	before := tr.Stats().NodeCount
	mustAdd(t, tr, ip4(10, 20, 30, 40), 32, 1)
	afterInsert := tr.Stats().NodeCount
	if afterInsert <= before {
		t.Fatalf("expected node count to grow on a /32 insert, got %d -> %d", before, afterInsert)
	}

	if err := tr.Delete(ip4(10, 20, 30, 40), 32); err != nil {
		t.Fatalf("delete: %v", err)
	}
	afterDelete := tr.Stats().NodeCount
	if afterDelete != before {
		t.Fatalf("expected nodes to be fully pruned back to %d, got %d", before, afterDelete)
	}
}

func TestLookupBatchMatchesLookupIPv4(t *testing.T) {
	tr := New(4)
	mustAdd(t, tr, ip4(10, 0, 0, 0), 8, 1)
	mustAdd(t, tr, ip4(10, 1, 0, 0), 16, 2)
	mustAdd(t, tr, ip4(10, 1, 2, 0), 24, 3)
	mustAdd(t, tr, ip4(0, 0, 0, 0), 0, 9)

	addrs := make([][]byte, 0, 64)
	for i := 0; i < 64; i++ {
		addrs = append(addrs, ip4(10, byte(i%4), byte(i), byte(i*7)))
	}

	out := make([]uint32, len(addrs))
	tr.LookupBatch(addrs, out)

	for i, a := range addrs {
		want, ok := tr.Lookup(a)
		if !ok {
			want = invalidNextHop
		}
		if out[i] != want {
			t.Fatalf("batch mismatch at %d: got %d, want %d", i, out[i], want)
		}
	}
}

func TestLookupBatchMatchesLookupIPv6(t *testing.T) {
	tr := New(16)
	base := make([]byte, 16)
	base[0], base[1] = 0x20, 0x01
	mustAdd(t, tr, base, 32, 7)

	addrs := make([][]byte, 0, 40)
	for i := 0; i < 40; i++ {
		a := make([]byte, 16)
		copy(a, base)
		a[15] = byte(i)
		a[4] = byte(i % 3)
		addrs = append(addrs, a)
	}

	out := make([]uint32, len(addrs))
	tr.LookupBatch(addrs, out)

	for i, a := range addrs {
		want, ok := tr.Lookup(a)
		if !ok {
			want = invalidNextHop
		}
		if out[i] != want {
			t.Fatalf("batch mismatch at %d: got %d, want %d", i, out[i], want)
		}
	}
}

func mustAdd(t *testing.T, tr *Trie, addr []byte, prefixLen int, nextHop uint32) {
	t.Helper()
	if err := tr.Add(addr, prefixLen, nextHop); err != nil {
		t.Fatalf("add(%v/%d -> %d): %v", addr, prefixLen, nextHop, err)
	}
}
