package ptreedb

// btCmp compares a full logical query key against node idx's
// prefix-relative stored key by stripping m's effective prefix from
// the query first. This is valid because descent only ever reaches a
// page whose bracket range contains the query key, so the query
// necessarily shares the page's effective prefix with every key
// actually stored there.
func btCmp(m *mpage, key []byte, idx int) int {
	q := key
	if len(m.prefix) > 0 {
		if len(key) < len(m.prefix) {
			return cmpKeys(key, m.prefix)
		}
		q = key[len(m.prefix):]
	}
	return cmpKeys(q, m.pg().nodeAt(idx).key())
}

// searchBranch returns the child slot to descend into for key: the
// largest index i such that node i's key is <= key. Slot 0 is an
// implicit lower bound and always qualifies.
func searchBranch(m *mpage, key []byte) int {
	n := m.pg().numKeys()
	lo, hi := 1, n-1
	res := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if btCmp(m, key, mid) >= 0 {
			res = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return res
}

// searchLeaf returns the position of key within m's leaf node array
// and whether it is an exact match. When not exact, idx is the
// position at which key would be inserted to keep the array sorted.
func searchLeaf(m *mpage, key []byte) (int, bool) {
	n := m.pg().numKeys()
	lo, hi := 0, n-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch c := btCmp(m, key, mid); {
		case c == 0:
			return mid, true
		case c < 0:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return lo, false
}
