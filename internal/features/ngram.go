package features

import "sort"

// ngramStat tracks one distinct n-gram. The first-occurrence offset is kept
// for the deterministic tie-break when counts are equal.
type ngramStat struct {
	key   uint32
	count int
	first int
}

// ngramCounter is a fixed-capacity frequency counter. Once the capacity is
// reached, new n-grams are no longer admitted; already-tracked n-grams keep
// counting. Admission order is input order, so the bound is deterministic.
// A capacity of 65536 tracks every possible bigram exactly.
type ngramCounter struct {
	capacity int
	stats    map[uint32]*ngramStat
}

func newNGramCounter(capacity int) *ngramCounter {
	return &ngramCounter{
		capacity: capacity,
		stats:    make(map[uint32]*ngramStat),
	}
}

func (c *ngramCounter) observe(key uint32, offset int) {
	if s, ok := c.stats[key]; ok {
		s.count++
		return
	}
	if len(c.stats) >= c.capacity {
		return
	}
	c.stats[key] = &ngramStat{key: key, count: 1, first: offset}
}

// top returns the k highest counts, ordered by count descending with ties
// broken by first-occurrence offset ascending, zero-padded to length k.
func (c *ngramCounter) top(k int) []float64 {
	entries := make([]*ngramStat, 0, len(c.stats))
	for _, s := range c.stats {
		entries = append(entries, s)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].first < entries[j].first
	})

	out := make([]float64, k)
	for i := 0; i < k && i < len(entries); i++ {
		out[i] = float64(entries[i].count)
	}
	return out
}

// topNGramCounts slides a window of size n over data and returns the
// NGramTopK most frequent window counts.
func (e *Extractor) topNGramCounts(data []byte, n int) []float64 {
	counter := newNGramCounter(e.cfg.MaxTrackedNGrams)
	for i := 0; i+n <= len(data); i++ {
		var key uint32
		for _, b := range data[i : i+n] {
			key = key<<8 | uint32(b)
		}
		counter.observe(key, i)
	}
	return counter.top(NGramTopK)
}
