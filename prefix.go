package ptreedb

import "bytes"

// cmpKeys is the engine's canonical key comparison: unequal-length
// memcmp where a strict byte-prefix of the other compares less.
// bytes.Compare already implements exactly this rule, so every
// comparison site in the engine (search, separator minimization,
// cursor ordering) funnels through this one function to avoid
// divergence, per the design notes.
func cmpKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}

// fullKey reconstructs slot idx's complete logical key: the page's
// effective prefix followed by its stored, prefix-relative suffix.
func fullKey(m *mpage, idx int) []byte {
	suffix := m.pg().nodeAt(idx).key()
	if len(m.prefix) == 0 {
		return suffix
	}
	out := make([]byte, len(m.prefix)+len(suffix))
	copy(out, m.prefix)
	copy(out[len(m.prefix):], suffix)
	return out
}

// commonPrefixLen returns the length of the longest common byte
// sequence at the start of a and b.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonPrefixBytes(a, b []byte) []byte {
	n := commonPrefixLen(a, b)
	out := make([]byte, n)
	copy(out, a[:n])
	return out
}

// walkLowerBracket finds the closest left separator by walking up
// the parent chain from m until an ancestor was reached via a
// parent index > 0.
func walkLowerBracket(m *mpage) ([]byte, bool) {
	cur := m
	for cur.parent != nil {
		if cur.parentIdx > 0 {
			return fullKey(cur.parent, cur.parentIdx), true
		}
		cur = cur.parent
	}
	return nil, false
}

// walkUpperBracket finds the closest ancestor having a slot at
// parentIndex+1, by walking up the parent chain from m.
func walkUpperBracket(m *mpage) ([]byte, bool) {
	cur := m
	for cur.parent != nil {
		if cur.parentIdx+1 < cur.parent.pg().numKeys() {
			return fullKey(cur.parent, cur.parentIdx+1), true
		}
		cur = cur.parent
	}
	return nil, false
}

// computeEffectivePrefix derives m's effective prefix from its
// bracketing ancestors, per §4.2. The root's prefix is empty. If
// either bracket walk falls off the spine (m sits on the leftmost or
// rightmost edge of the tree), the prefix inherited from the parent
// is used unchanged.
func computeEffectivePrefix(m *mpage) []byte {
	if m.parent == nil {
		return nil
	}
	lower, haveLower := walkLowerBracket(m)
	upper, haveUpper := walkUpperBracket(m)
	if !haveLower || !haveUpper {
		return append([]byte(nil), m.parent.prefix...)
	}
	return commonPrefixBytes(lower, upper)
}

// minimalSeparator implements Bayer–Unterauer separator truncation:
// given the last full key of the left half of a split and the first
// full key of the right half, it returns the shortest prefix of
// rightFirst that still compares strictly greater than leftLast.
func minimalSeparator(leftLast, rightFirst []byte) []byte {
	n := commonPrefixLen(leftLast, rightFirst)
	if n == len(rightFirst) {
		// rightFirst is itself a prefix of leftLast; can't happen
		// for a correctly sorted split, but stay exact rather than
		// produce a non-distinguishing separator.
		return append([]byte(nil), rightFirst...)
	}
	out := make([]byte, n+1)
	copy(out, rightFirst[:n+1])
	return out
}
