package fusion

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/isofusion/annotation"
)

// exonRegion is one exon of one transcript.
type exonRegion struct {
	transID string
	rank    int
}

func (r exonRegion) String() string { return fmt.Sprintf("%s-%d", r.transID, r.rank) }

// readMatch is how one read end matches one transcript.
type readMatch struct {
	t     *annotation.Transcript
	match TransMatchType
	// ranks lists the exons overlapped by the read, in block order.
	ranks []int
}

// matchRead matches an alignment against every transcript of the given genes.
// The result follows the order of genes and their transcripts.
func matchRead(seg *MappedSegment, genes []*annotation.Gene) []readMatch {
	var matches []readMatch
	for _, g := range genes {
		for _, t := range g.Transcripts {
			if seg.End < t.Start || seg.Start > t.End {
				continue
			}
			matches = append(matches, matchTranscript(seg, t))
		}
	}
	return matches
}

// matchTranscript classifies one alignment against one transcript.
func matchTranscript(seg *MappedSegment, t *annotation.Transcript) readMatch {
	m := readMatch{t: t}
	var (
		exonIntron bool
		unmatched  bool
		// exon index (into t.Exons) of each block, or -1.
		blockExon = make([]int, len(seg.Blocks))
	)
	for bi, b := range seg.Blocks {
		blockExon[bi] = -1
		n := 0
		for ei, e := range t.Exons {
			if e.End < b.Start || e.Start > b.End {
				continue
			}
			n++
			blockExon[bi] = ei
			m.ranks = append(m.ranks, e.Rank)
			if b.Start < e.Start || b.End > e.End {
				exonIntron = true
			}
		}
		if n == 0 {
			// The block lies in an intron or outside the transcript.
			unmatched = true
		}
	}
	// Every splice gap must join two consecutive exons exactly.
	for bi := 1; bi < len(seg.Blocks); bi++ {
		prev, next := blockExon[bi-1], blockExon[bi]
		if prev < 0 || next != prev+1 ||
			t.Exons[prev].End != seg.Blocks[bi-1].End || t.Exons[next].Start != seg.Blocks[bi].Start {
			unmatched = true
		}
	}
	switch {
	case exonIntron:
		m.match = ExonIntron
	case unmatched:
		m.match = Unmatched
	case seg.Spliced():
		m.match = SpliceJunction
	default:
		m.match = ExonicMatch
	}
	return m
}

// findMatch returns the match for t, or a zero (Unmatched) readMatch.
func findMatch(matches []readMatch, t *annotation.Transcript) readMatch {
	for _, m := range matches {
		if m.t == t {
			return m
		}
	}
	return readMatch{t: t}
}

// mergeRegions returns the exons of t visited by either read, each listed once.
func mergeRegions(t *annotation.Transcript, m0, m1 readMatch) []exonRegion {
	var regions []exonRegion
	add := func(rank int, dedup bool) {
		r := exonRegion{transID: t.ID, rank: rank}
		if dedup {
			for _, x := range regions {
				if x == r {
					return
				}
			}
		}
		regions = append(regions, r)
	}
	// A read's blocks map to distinct exons, so only the second read needs to
	// be checked against what is already there.
	for _, rank := range m0.ranks {
		add(rank, false)
	}
	for _, rank := range m1.ranks {
		add(rank, true)
	}
	return regions
}

// checkUniqueRegions reports an integrity error if an exon is listed twice.
func checkUniqueRegions(name string, regions []exonRegion) error {
	seen := make(map[exonRegion]bool, len(regions))
	for _, r := range regions {
		if seen[r] {
			return errors.E(errors.Integrity, fmt.Sprintf("fragment %s: exon region %v visited twice", name, r))
		}
		seen[r] = true
	}
	return nil
}

// skippedExons returns the number and total length of the exons of t lying
// between the visited regions but not visited themselves.
func skippedExons(t *annotation.Transcript, regions []exonRegion) (n, bases int) {
	if len(regions) == 0 {
		return 0, 0
	}
	minRank, maxRank := regions[0].rank, regions[0].rank
	visited := map[int]bool{}
	for _, r := range regions {
		visited[r.rank] = true
		if r.rank < minRank {
			minRank = r.rank
		}
		if r.rank > maxRank {
			maxRank = r.rank
		}
	}
	for _, e := range t.Exons {
		if e.Rank > minRank && e.Rank < maxRank && !visited[e.Rank] {
			n++
			bases += e.Length()
		}
	}
	return n, bases
}

// transcriptLength returns the number of exonic bases of t within [start, end].
func transcriptLength(t *annotation.Transcript, start, end int) int {
	n := 0
	for _, e := range t.Exons {
		s, x := e.Start, e.End
		if s < start {
			s = start
		}
		if x > end {
			x = end
		}
		if x >= s {
			n += x - s + 1
		}
	}
	return n
}
