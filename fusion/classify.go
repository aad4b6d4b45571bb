package fusion

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/isofusion/annotation"
)

// Classifier turns read pairs into FragmentEvidence. It is stateless apart
// from its configuration and is safe for concurrent use.
type Classifier struct {
	oracle annotation.Oracle
	opts   Opts
}

// NewClassifier creates a classifier that looks up annotations in oracle.
func NewClassifier(oracle annotation.Oracle, opts Opts) *Classifier {
	return &Classifier{oracle: oracle, opts: opts}
}

// Classify classifies one fragment.
//
// A fragment with a missing or malformed read end is not an error: the
// returned evidence has IncompleteData set. An error is returned only when
// internal bookkeeping is inconsistent; the fragment should then be dropped.
func (c *Classifier) Classify(f *Fragment) (FragmentEvidence, error) {
	ev := FragmentEvidence{Name: f.Name}
	for i := range f.Ends {
		if len(f.Ends[i]) == 0 {
			ev.IncompleteData = true
		}
		for j := range f.Ends[i] {
			if !f.Ends[i][j].Valid() {
				ev.IncompleteData = true
			}
		}
	}
	if ev.IncompleteData {
		ev.ReadType = Incomplete
		return ev, nil
	}
	if c.chimeric(f) {
		c.classifyChimeric(f, &ev)
		return ev, nil
	}
	err := c.classifyTranscripts(f, &ev)
	return ev, err
}

// chimeric checks if the two ends cannot come from one transcript molecule of
// one locus: a supplementary alignment, different chromosomes, same-strand
// mates (a local inversion), or mates too far apart.
func (c *Classifier) chimeric(f *Fragment) bool {
	p0, p1 := f.primary(0), f.primary(1)
	if len(f.Ends[0]) > 1 || len(f.Ends[1]) > 1 {
		return true
	}
	if p0.Chrom != p1.Chrom || p0.Reverse == p1.Reverse {
		return true
	}
	start, end := p0.Start, p0.End
	if p1.Start < start {
		start = p1.Start
	}
	if p1.End > end {
		end = p1.End
	}
	return end-start+1 > c.opts.MaxFragmentDistance
}

// classifyChimeric builds junction evidence. A split read gives the junction
// exactly (MatchedJunction); otherwise the inner boundaries of the mates are
// used (Discordant).
func (c *Classifier) classifyChimeric(f *Fragment, ev *FragmentEvidence) {
	ev.ReadType = Chimeric
	split := -1
	for i := range f.Ends {
		if len(f.Ends[i]) > 1 {
			split = i
			break
		}
	}
	if split >= 0 {
		end := f.Ends[split]
		if len(end) > 2 && log.At(log.Debug) {
			log.Debug.Printf("fragment %s: %d segments in one read, using the first two", f.Name, len(end))
		}
		ev.Type = MatchedJunction
		for side := 0; side < 2; side++ {
			seg := end[side]
			ev.Anchors[side] = seg.junctionAnchor()
			ev.Bases[side] = flankBases(&seg, ev.Anchors[side].Orient, c.opts.JunctionFlankLength)
			ev.Segments[side] = []MappedSegment{seg}
		}
		// The mate supports whichever side it lies on.
		if mate := f.primary(1 - split); mate != nil {
			for side := 0; side < 2; side++ {
				a := ev.Anchors[side]
				if mate.Chrom == a.Chrom && a.Retains(mate.Boundary(a.Orient), 0) &&
					abs(mate.Boundary(a.Orient)-a.Pos) <= c.opts.MaxFragmentLength {
					ev.Segments[side] = append(ev.Segments[side], *mate)
					break
				}
			}
		}
		ev.ImpliedLength = f.InsertSize
	} else {
		ev.Type = Discordant
		for side := 0; side < 2; side++ {
			seg := f.Ends[side][0]
			o := seg.Orientation()
			ev.Anchors[side] = Anchor{Chrom: seg.Chrom, Pos: seg.Boundary(o), Orient: o}
			ev.Bases[side] = flankBases(&seg, o, c.opts.JunctionFlankLength)
			ev.Segments[side] = []MappedSegment{seg}
			ev.ImpliedLength += seg.ReadLength()
		}
	}
	for side := 0; side < 2; side++ {
		ev.JunctionTypes[side], ev.TransMatches[side] = annotateAnchor(c.oracle, ev.Anchors[side])
	}
	ev.canonicalize()
}

// annotateAnchor finds the transcripts at a junction anchor.
func annotateAnchor(oracle annotation.Oracle, a Anchor) (JunctionType, []TranscriptMatch) {
	hits := oracle.Annotate(a.Chrom, a.Pos)
	if len(hits) == 0 {
		return JunctionUnknown, nil
	}
	jt := JunctionIntronic
	matches := make([]TranscriptMatch, 0, len(hits))
	for _, h := range hits {
		m := TranscriptMatch{
			GeneID:    h.Gene.ID,
			TransID:   h.Transcript.ID,
			TransName: h.Transcript.Name,
			ExonRank:  h.ExonRank,
		}
		switch {
		case h.AtExonBoundary(a.Pos, a.Orient == Backward):
			m.Type = SpliceJunction
			jt = JunctionKnown
		case h.Region == annotation.Exonic:
			m.Type = ExonicMatch
			if jt != JunctionKnown {
				jt = JunctionExonic
			}
		default:
			m.Type = Unmatched
		}
		matches = append(matches, m)
	}
	return jt, matches
}

// flankBases returns up to n aligned bases of seg adjacent to its Forward
// (right) or Backward (left) boundary.
func flankBases(seg *MappedSegment, o Orientation, n int) string {
	if seg.Bases == "" || n <= 0 {
		return ""
	}
	lo, hi := seg.SoftClipLeft, len(seg.Bases)-seg.SoftClipRight
	if lo < 0 || hi > len(seg.Bases) || lo >= hi {
		return ""
	}
	if o == Forward {
		if hi-n > lo {
			lo = hi - n
		}
	} else if lo+n < hi {
		hi = lo + n
	}
	return seg.Bases[lo:hi]
}

// classifyTranscripts classifies a non-chimeric pair against the transcripts
// of the genes it overlaps.
func (c *Classifier) classifyTranscripts(f *Fragment, ev *FragmentEvidence) error {
	p0, p1 := f.primary(0), f.primary(1)
	start, end := p0.Start, p0.End
	if p1.Start < start {
		start = p1.Start
	}
	if p1.End > end {
		end = p1.End
	}
	genes := c.oracle.Genes(p0.Chrom, start, end)
	if len(genes) == 0 {
		ev.ReadType = Unspliced
		return nil
	}
	m0, m1 := matchRead(p0, genes), matchRead(p1, genes)
	if !hasExonicRegion(m0) && !hasExonicRegion(m1) {
		// Entirely intronic.
		ev.ReadType = Unspliced
		return nil
	}
	for _, g := range genes {
		for _, t := range g.Transcripts {
			r0, r1 := findMatch(m0, t), findMatch(m1, t)
			if !r0.match.valid() || !r1.match.valid() {
				continue
			}
			regions := mergeRegions(t, r0, r1)
			if err := checkUniqueRegions(f.Name, regions); err != nil {
				return err
			}
			if transcriptLength(t, start, end) > c.opts.MaxFragmentLength {
				continue
			}
			if n, bases := skippedExons(t, regions); n > c.opts.MaxSkippedExons && bases > c.opts.MaxFragmentLength {
				continue
			}
			fm := FragmentMatch{TransID: t.ID, Type: Short}
			switch {
			case r0.match == SpliceJunction || r1.match == SpliceJunction:
				fm.Type = Spliced
			case len(regions) > 1:
				fm.Type = Long
			}
			ev.FragmentMatches = append(ev.FragmentMatches, fm)
		}
	}
	switch {
	case len(ev.FragmentMatches) > 0:
		ev.ReadType = TransSupporting
	case outsideGenes(p0, genes) || outsideGenes(p1, genes):
		ev.ReadType = ReadThrough
	case p0.Spliced() || p1.Spliced():
		ev.ReadType = Alt
	default:
		ev.ReadType = Unspliced
	}
	return nil
}

func hasExonicRegion(matches []readMatch) bool {
	for _, m := range matches {
		if len(m.ranks) > 0 {
			return true
		}
	}
	return false
}

// outsideGenes checks if seg extends beyond every one of genes.
func outsideGenes(seg *MappedSegment, genes []*annotation.Gene) bool {
	for _, g := range genes {
		if seg.Start >= g.Start && seg.End <= g.End {
			return false
		}
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
