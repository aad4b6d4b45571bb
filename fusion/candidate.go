package fusion

import (
	"fmt"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	gunsafe "github.com/grailbio/base/unsafe"
)

// CandidateID is a dense sequence number (0, 1, 2, ...) assigned to a
// FusionCandidate by its Aggregator. IDs are valid only within one Aggregator,
// and Aggregator.Finalize renumbers them.
type CandidateID int

// CandidateState is the lifecycle state of a FusionCandidate.
type CandidateState uint8

const (
	// Created candidates have no evidence yet.
	Created CandidateState = iota
	// Accumulating candidates accept evidence.
	Accumulating
	// Finalized candidates are read-only.
	Finalized
)

// FusionCandidate aggregates all the evidence for one junction.
//
// INVARIANT: the junction key never changes, and every fragment is counted
// under exactly one FragmentType.
type FusionCandidate struct {
	ID  CandidateID
	Key JunctionKey

	state     CandidateState
	fragments [numFragmentTypes][]*FragmentEvidence
	// names holds the seahash of each fragment name, so a pair that reaches the
	// candidate twice (e.g., from two gene regions) is counted once.
	names          map[uint64]struct{}
	sample         *FragmentEvidence
	incompleteData bool
	related        []CandidateID

	// Below are set by Aggregator.Finalize.

	// upSide is the index of the upstream anchor in Key.
	upSide int
	// genes lists the candidate genes by stream.
	genes [2][]CandidateGene
	// transExonRefs lists the transcript exons at each side, from the sample
	// fragment.
	transExonRefs [2][]TranscriptMatch
	// flanks are the junction flanking bases by side.
	flanks [2]string
	// depth is the read depth at each anchor.
	depth [2]int
}

func newCandidate(id CandidateID, key JunctionKey) *FusionCandidate {
	return &FusionCandidate{ID: id, Key: key, names: map[uint64]struct{}{}}
}

// State returns the lifecycle state.
func (c *FusionCandidate) State() CandidateState { return c.state }

// add records a fragment. It returns false if a fragment of the same name was
// already recorded.
func (c *FusionCandidate) add(ev *FragmentEvidence) (bool, error) {
	if c.state == Finalized {
		return false, errors.E(errors.Precondition, fmt.Sprintf("candidate %d (%v) is finalized", c.ID, c.Key))
	}
	h := seahash.Sum64(gunsafe.StringToBytes(ev.Name))
	if _, ok := c.names[h]; ok {
		return false, nil
	}
	c.names[h] = struct{}{}
	c.fragments[ev.Type] = append(c.fragments[ev.Type], ev)
	if c.sample == nil || (c.sample.Type != MatchedJunction && ev.Type == MatchedJunction) {
		c.sample = ev
	}
	if ev.IncompleteData {
		c.incompleteData = true
	}
	c.state = Accumulating
	return true, nil
}

// remove drops a fragment recorded under type t.
func (c *FusionCandidate) remove(t FragmentType, ev *FragmentEvidence) {
	frags := c.fragments[t]
	for i, f := range frags {
		if f == ev {
			c.fragments[t] = append(frags[:i:i], frags[i+1:]...)
			delete(c.names, seahash.Sum64(gunsafe.StringToBytes(ev.Name)))
			break
		}
	}
	if c.sample == ev {
		c.sample = nil
		for t := range c.fragments {
			if len(c.fragments[t]) > 0 {
				c.sample = c.fragments[t][0]
				break
			}
		}
	}
}

// Fragments returns the fragments recorded under type t.
func (c *FusionCandidate) Fragments(t FragmentType) []*FragmentEvidence { return c.fragments[t] }

// FragmentCount returns the number of fragments of type t.
func (c *FusionCandidate) FragmentCount(t FragmentType) int { return len(c.fragments[t]) }

// TotalFragments returns the number of fragments of all types.
func (c *FusionCandidate) TotalFragments() int {
	n := 0
	for _, f := range c.fragments {
		n += len(f)
	}
	return n
}

// SampleFragment is the first MatchedJunction fragment, or else the first
// fragment of any type. Nil for an empty candidate.
func (c *FusionCandidate) SampleFragment() *FragmentEvidence { return c.sample }

// IncompleteData checks if any fragment lacked coordinates.
func (c *FusionCandidate) IncompleteData() bool { return c.incompleteData }

// HasViableGenes checks if both an upstream and a downstream gene were found.
func (c *FusionCandidate) HasViableGenes() bool {
	return len(c.genes[Upstream]) > 0 && len(c.genes[Downstream]) > 0
}

// IsValid checks that the candidate has viable genes and complete data.
func (c *FusionCandidate) IsValid() bool { return c.HasViableGenes() && !c.incompleteData }

// JunctionMatch checks if the two candidates have the same junction.
func (c *FusionCandidate) JunctionMatch(o *FusionCandidate) bool { return c.Key == o.Key }

// AddRelated records a related candidate. It is a no-op if id is c.ID or is
// already recorded.
func (c *FusionCandidate) AddRelated(id CandidateID) {
	if id == c.ID {
		return
	}
	for _, r := range c.related {
		if r == id {
			return
		}
	}
	c.related = append(c.related, id)
}

// Related lists related candidates in the order they were recorded.
func (c *FusionCandidate) Related() []CandidateID { return c.related }

// StreamSide returns the index into Key.Anchors of the anchor playing role s.
func (c *FusionCandidate) StreamSide(s Stream) int {
	if s == Upstream {
		return c.upSide
	}
	return otherSide(c.upSide)
}

// Anchor returns the anchor playing role s.
func (c *FusionCandidate) Anchor(s Stream) Anchor { return c.Key.Anchors[c.StreamSide(s)] }

// Genes returns the candidate genes for role s. The first one is the reported
// fusion gene.
func (c *FusionCandidate) Genes(s Stream) []CandidateGene { return c.genes[s] }

// GeneID returns the fusion gene ID for role s, or "".
func (c *FusionCandidate) GeneID(s Stream) string {
	if len(c.genes[s]) == 0 {
		return ""
	}
	return c.genes[s][0].Gene.ID
}

// TransExonRefs lists the transcript exons at the anchor playing role s.
func (c *FusionCandidate) TransExonRefs(s Stream) []TranscriptMatch {
	return c.transExonRefs[c.StreamSide(s)]
}

// JunctionType returns the sample fragment's junction type for role s.
func (c *FusionCandidate) JunctionType(s Stream) JunctionType {
	if c.sample == nil {
		return JunctionUnknown
	}
	return c.sample.JunctionTypes[c.StreamSide(s)]
}

// JunctionDepth returns the read depth at the anchor playing role s.
func (c *FusionCandidate) JunctionDepth(s Stream) int { return c.depth[c.StreamSide(s)] }

// SetJunctionDepth sets the read depth at side (an index into Key.Anchors).
func (c *FusionCandidate) SetJunctionDepth(side, depth int) { c.depth[side] = depth }

// SVType returns the structural variant type implied by the junction.
func (c *FusionCandidate) SVType() SVType { return c.Key.SVType() }

// setGenes assigns streams from the genes at both anchors.
func (c *FusionCandidate) setGenes(start, end []CandidateGene) {
	c.upSide, c.genes = assignStreams(start, end)
}

// cacheTranscriptData copies the transcript exons at both sides from the
// sample fragment, and its flanks unless flanks were already set.
func (c *FusionCandidate) cacheTranscriptData() {
	if c.sample == nil {
		return
	}
	for side := range c.transExonRefs {
		c.transExonRefs[side] = c.sample.TransMatches[side]
		if c.flanks[side] == "" {
			c.flanks[side] = c.sample.Bases[side]
		}
	}
}

// supportsRealigned checks if a soft-clipped read of ev realigns across this
// candidate's junction.
func (c *FusionCandidate) supportsRealigned(ev *FragmentEvidence, opts Opts) bool {
	for side := range c.Key.Anchors {
		other := otherSide(side)
		for _, segs := range ev.Segments {
			for i := range segs {
				if SoftClipSupportsJunction(&segs[i], c.Key.Anchors[side], c.Key.Anchors[other].Orient, c.flanks[other], opts) {
					return true
				}
			}
		}
	}
	return false
}

// canAddDiscordant checks if a discordant fragment is consistent with this
// junction: same orientations, reads on the retained sides, exons close
// enough to the junction exons, and an implied fragment length within
// Opts.MaxFragmentLength.
func (c *FusionCandidate) canAddDiscordant(ev *FragmentEvidence, opts Opts) bool {
	if c.sample == nil {
		return false
	}
	impliedLength := 0
	for side := range c.Key.Anchors {
		ja, fa := c.Key.Anchors[side], ev.Anchors[side]
		if fa.Chrom != ja.Chrom || fa.Orient != ja.Orient {
			return false
		}
		if !ja.Retains(fa.Pos, 0) {
			return false
		}
		if len(ev.Segments[side]) > 0 {
			impliedLength += ev.Segments[side][0].ReadLength()
		}
		upstream := c.StreamSide(Upstream) == side
		if refs, matches := c.transExonRefs[side], ev.TransMatches[side]; len(refs) > 0 && len(matches) > 0 {
			if !exonsCompatible(refs, matches, upstream, c.sample.JunctionTypes[side] == JunctionIntronic) {
				return false
			}
		}
		if t := ev.JunctionTypes[side]; t == JunctionIntronic || t == JunctionUnknown {
			impliedLength += abs(ja.Pos - fa.Pos)
		}
	}
	return impliedLength <= opts.MaxFragmentLength
}

// exonsCompatible checks if a fragment read and a junction share a transcript
// where the read's exon is at most two exons before the junction exon
// (upstream), or at most two (one, if the junction is intronic) after it
// (downstream).
func exonsCompatible(refs, matches []TranscriptMatch, upstream, intronic bool) bool {
	permitted := 2
	switch {
	case upstream:
		permitted = -2
	case intronic:
		permitted = 1
	}
	for _, r := range refs {
		for _, m := range matches {
			if r.TransID != m.TransID {
				continue
			}
			diff := m.ExonRank - r.ExonRank
			if upstream && diff >= permitted && diff <= 0 {
				return true
			}
			if !upstream && diff <= permitted && diff >= 0 {
				return true
			}
		}
	}
	return false
}

func (c *FusionCandidate) String() string {
	return fmt.Sprintf("Id_%d(%v, total=%d)", c.ID, c.Key, c.TotalFragments())
}
