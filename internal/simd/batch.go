package simd

// RunInterleaved drives up to groupSize independent walks in depth-major
// order: every still-active lane is advanced one depth before any lane is
// advanced two. This is the software structure behind §4.7's wide batch
// loops — interleaving walks so their independent memory loads overlap
// rather than serializing behind one walk's pointer chase — expressed
// without hardware prefetch or SIMD intrinsics (see package doc).
//
// step(lane, depth) performs the work for one lane at one depth and
// reports whether that lane is still active (has a non-null child to
// continue into). The loop for the whole group stops as soon as every
// lane has gone inactive, even if maxDepth has not been reached.
func RunInterleaved(groupSize, maxDepth int, step func(lane, depth int) bool) {
	if groupSize <= 0 {
		return
	}

	active := make([]bool, groupSize)
	for i := range active {
		active[i] = true
	}

	remaining := groupSize
	for depth := 0; depth < maxDepth && remaining > 0; depth++ {
		for lane := 0; lane < groupSize; lane++ {
			if !active[lane] {
				continue
			}
			if !step(lane, depth) {
				active[lane] = false
				remaining--
			}
		}
	}
}

// ForEachGroup splits n items into groups of the resolved tier's width
// (falling back to groups of 1, i.e. a pure scalar tail, on the last
// partial group) and invokes fn once per group with the group's starting
// offset and size. This is the "stragglers processed by a scalar tail
// loop" behavior from §4.7, generalized so every backend shares one
// chunking policy.
func ForEachGroup(n int, tier Tier, fn func(offset, size int)) {
	width := tier.Width()
	if width <= 1 {
		for i := 0; i < n; i++ {
			fn(i, 1)
		}
		return
	}

	i := 0
	for ; i+width <= n; i += width {
		fn(i, width)
	}
	for ; i < n; i++ {
		fn(i, 1)
	}
}
