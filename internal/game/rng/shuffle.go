package rng

// Shuffle permutes items in place with a Fisher-Yates pass driven by src.
//
// Precondition: src must be non-nil.
// Postcondition: items holds the same multiset of elements.
func Shuffle[T any](src Source, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Pick returns a uniformly chosen element of items.
//
// Precondition: len(items) > 0.
func Pick[T any](src Source, items []T) T {
	return items[src.Intn(len(items))]
}

// Between returns a value in [lo, hi]. When hi <= lo it returns lo.
func Between(src Source, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + int64(src.Intn(int(hi-lo+1)))
}
