package dir24

import "testing"

func ip4(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

func TestLongestPrefixMatch(t *testing.T) {
	tbl := New()
	mustAdd(t, tbl, ip4(192, 168, 0, 0), 16, 100)
	mustAdd(t, tbl, ip4(192, 168, 1, 0), 24, 200)
	mustAdd(t, tbl, 0, 0, 1)

	cases := []struct {
		addr uint32
		want uint32
	}{
		{ip4(192, 168, 1, 5), 200},
		{ip4(192, 168, 2, 5), 100},
		{ip4(10, 0, 0, 1), 1},
	}
	for _, c := range cases {
		got, ok := tbl.Lookup(c.addr)
		if !ok || got != c.want {
			t.Fatalf("lookup(%d) = (%d, %v), want %d", c.addr, got, ok, c.want)
		}
	}
}

func TestHostRouteExactness(t *testing.T) {
	tbl := New()
	mustAdd(t, tbl, ip4(192, 168, 1, 1), 32, 100)

	if got, ok := tbl.Lookup(ip4(192, 168, 1, 1)); !ok || got != 100 {
		t.Fatalf("exact match failed: got (%d, %v)", got, ok)
	}
	if _, ok := tbl.Lookup(ip4(192, 168, 1, 2)); ok {
		t.Fatalf("expected no match for non-exact address")
	}
}

func TestDeleteReverts(t *testing.T) {
	tbl := New()
	mustAdd(t, tbl, ip4(10, 0, 0, 0), 8, 100)
	mustAdd(t, tbl, ip4(10, 1, 0, 0), 16, 200)

	if err := tbl.Delete(ip4(10, 1, 0, 0), 16); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, ok := tbl.Lookup(ip4(10, 1, 1, 1))
	if !ok || got != 100 {
		t.Fatalf("expected fallback to /8 route, got (%d, %v)", got, ok)
	}
}

func TestOverwrite(t *testing.T) {
	tbl := New()
	mustAdd(t, tbl, ip4(172, 16, 0, 0), 16, 1)
	mustAdd(t, tbl, ip4(172, 16, 0, 0), 16, 2)

	got, ok := tbl.Lookup(ip4(172, 16, 5, 5))
	if !ok || got != 2 {
		t.Fatalf("expected overwritten next hop 2, got (%d, %v)", got, ok)
	}
	if st := tbl.Stats(); st.PrefixCount != 1 {
		t.Fatalf("overwrite must not increase prefix count, got %d", st.PrefixCount)
	}
}

func TestDeleteNonexistentIsNotFatal(t *testing.T) {
	tbl := New()
	err := tbl.Delete(ip4(1, 2, 3, 0), 24)
	if err != ErrPrefixNotFound {
		t.Fatalf("expected ErrPrefixNotFound, got %v", err)
	}
}

func TestInvalidPrefixLength(t *testing.T) {
	tbl := New()
	if err := tbl.Add(0, 33, 1); err != ErrInvalidPrefixLength {
		t.Fatalf("expected ErrInvalidPrefixLength, got %v", err)
	}
}

func TestTbl8SplitAndCollapse(t *testing.T) {
	tbl := New()
	mustAdd(t, tbl, ip4(192, 168, 0, 0), 16, 1)
	mustAdd(t, tbl, ip4(192, 168, 0, 0), 25, 2)

	if st := tbl.Stats(); st.Tbl8Count != 1 {
		t.Fatalf("expected 1 TBL8 after a >24 insert, got %d", st.Tbl8Count)
	}

	if err := tbl.Delete(ip4(192, 168, 0, 0), 25); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if st := tbl.Stats(); st.Tbl8Count != 0 {
		t.Fatalf("expected TBL8 to collapse back to a direct cell, got %d", st.Tbl8Count)
	}

	got, ok := tbl.Lookup(ip4(192, 168, 0, 200))
	if !ok || got != 1 {
		t.Fatalf("expected fallback to /16 route after collapse, got (%d, %v)", got, ok)
	}
}

func TestLookupBatchMatchesLookup(t *testing.T) {
	tbl := New()
	mustAdd(t, tbl, ip4(10, 0, 0, 0), 8, 1)
	mustAdd(t, tbl, ip4(10, 1, 0, 0), 16, 2)
	mustAdd(t, tbl, ip4(10, 1, 2, 0), 24, 3)
	mustAdd(t, tbl, 0, 0, 9)

	addrs := make([]uint32, 0, 64)
	for i := 0; i < 64; i++ {
		addrs = append(addrs, ip4(10, byte(i%4), byte(i), byte(i*7)))
	}

	out := make([]uint32, len(addrs))
	tbl.LookupBatch(addrs, out)

	for i, a := range addrs {
		want, ok := tbl.Lookup(a)
		if !ok {
			want = invalidNextHop
		}
		if out[i] != want {
			t.Fatalf("batch mismatch at %d: got %d, want %d", i, out[i], want)
		}
	}
}

func mustAdd(t *testing.T, tbl *Table, addr uint32, prefixLen uint8, nextHop uint32) {
	t.Helper()
	if err := tbl.Add(addr, prefixLen, nextHop); err != nil {
		t.Fatalf("add(%d/%d -> %d): %v", addr, prefixLen, nextHop, err)
	}
}
