package fusion

import "sync"

type dupKey struct {
	chrom string
	start int
}

// dupEntry describes a pair whose leftmost read starts at a dupKey.
type dupEntry struct {
	mateStart  int
	readLength int
	insertSize int
}

// DuplicateCache finds read pairs that repeat the alignment of an earlier
// pair. Pairs are matched on the start of the leftmost read, the start of its
// mate, the read length and the insert size. Only pairs with both reads on one
// chromosome and on opposite strands are checked.
//
// A cache is meant to cover one gene region; call Reset before starting the
// next one. It is thread-safe.
type DuplicateCache struct {
	mu      sync.Mutex
	byStart map[dupKey][]dupEntry
	n       int
}

// NewDuplicateCache creates an empty cache.
func NewDuplicateCache() *DuplicateCache {
	return &DuplicateCache{byStart: map[dupKey][]dupEntry{}}
}

// IsDuplicate checks if an equivalent pair was seen since the last Reset, and
// records f if not.
func (d *DuplicateCache) IsDuplicate(f *Fragment) bool {
	p0, p1 := f.primary(0), f.primary(1)
	if p0 == nil || p1 == nil || p0.Chrom != p1.Chrom || p0.Reverse == p1.Reverse {
		return false
	}
	if p1.Start < p0.Start {
		p0, p1 = p1, p0
	}
	key := dupKey{p0.Chrom, p0.Start}
	e := dupEntry{mateStart: p1.Start, readLength: p0.ReadLength(), insertSize: f.InsertSize}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, x := range d.byStart[key] {
		if x == e {
			return true
		}
	}
	d.byStart[key] = append(d.byStart[key], e)
	d.n++
	return false
}

// Len returns the number of pairs recorded.
func (d *DuplicateCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// Reset forgets every recorded pair.
func (d *DuplicateCache) Reset() {
	d.mu.Lock()
	d.byStart = map[dupKey][]dupEntry{}
	d.n = 0
	d.mu.Unlock()
}
