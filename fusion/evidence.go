package fusion

import (
	"strconv"
	"strings"
)

// TransMatchType tells how one read end matches one transcript.
type TransMatchType uint8

const (
	// Unmatched means the read is not consistent with the transcript: an
	// aligned block in an intron, or a splice gap that does not join two
	// consecutive exons.
	Unmatched TransMatchType = iota
	// SpliceJunction means every splice gap of the read lands exactly on the
	// boundaries of two consecutive exons.
	SpliceJunction
	// ExonicMatch means the read is unspliced and lies within one exon.
	ExonicMatch
	// ExonIntron means an aligned block crosses an exon boundary into an intron.
	ExonIntron
	// OtherTranscript means the read matches the transcript, but the pair as a
	// whole was rejected for it.
	OtherTranscript
)

var transMatchTypeNames = [...]string{"UNMATCHED", "SPLICE_JUNCTION", "EXONIC", "EXON_INTRON", "OTHER_TRANSCRIPT"}

func (t TransMatchType) String() string { return transMatchTypeNames[t] }

// valid checks if the match type supports the transcript.
func (t TransMatchType) valid() bool { return t == SpliceJunction || t == ExonicMatch }

// FragmentMatchType is how a whole fragment supports a transcript.
type FragmentMatchType uint8

const (
	// Short means both reads sit in a single exon.
	Short FragmentMatchType = iota
	// Long means the fragment spans more than one exon without a read crossing a
	// splice junction.
	Long
	// Spliced means a read crosses a splice junction of the transcript.
	Spliced
)

var fragmentMatchTypeNames = [...]string{"SHORT", "LONG", "SPLICED"}

func (t FragmentMatchType) String() string { return fragmentMatchTypeNames[t] }

// GeneReadType is the gene-level category of a classified fragment.
type GeneReadType uint8

const (
	// TransSupporting fragments match at least one transcript.
	TransSupporting GeneReadType = iota
	// Unspliced fragments lie in introns or cross exon/intron boundaries.
	Unspliced
	// Alt fragments are spliced, but not like any annotated transcript.
	Alt
	// ReadThrough fragments extend beyond the genes they overlap.
	ReadThrough
	// Chimeric fragments join two distant loci. They are fusion evidence.
	Chimeric
	// Incomplete fragments lacked usable coordinates.
	Incomplete
)

var geneReadTypeNames = [...]string{"TRANS_SUPPORTING", "UNSPLICED", "ALT", "READ_THROUGH", "CHIMERIC", "INCOMPLETE"}

func (t GeneReadType) String() string { return geneReadTypeNames[t] }

// FragmentType is the kind of fusion evidence a fragment provides.
type FragmentType uint8

const (
	// MatchedJunction fragments have a read split exactly at the junction.
	MatchedJunction FragmentType = iota
	// Realigned fragments have a soft clip that matches the far side of a
	// known junction.
	Realigned
	// Discordant fragments have their two reads on the two sides of a junction
	// without crossing it.
	Discordant

	numFragmentTypes = 3
)

var fragmentTypeNames = [...]string{"MATCHED_JUNCTION", "REALIGNED", "DISCORDANT"}

func (t FragmentType) String() string { return fragmentTypeNames[t] }

// JunctionType describes the annotation at one side of a junction.
type JunctionType uint8

const (
	// JunctionUnknown means no gene is annotated at the position.
	JunctionUnknown JunctionType = iota
	// JunctionKnown means the position is an exon boundary facing the junction.
	JunctionKnown
	// JunctionExonic means the position is inside an exon.
	JunctionExonic
	// JunctionIntronic means the position is in an intron.
	JunctionIntronic
)

var junctionTypeNames = [...]string{"UNKNOWN", "KNOWN", "EXONIC", "INTRONIC"}

func (t JunctionType) String() string { return junctionTypeNames[t] }

// TranscriptMatch associates a read (or a junction side) with one exon of one
// transcript.
type TranscriptMatch struct {
	GeneID    string
	TransID   string
	TransName string
	ExonRank  int
	Type      TransMatchType
}

// String returns "TransName-ExonRank".
func (m TranscriptMatch) String() string {
	return m.TransName + "-" + strconv.Itoa(m.ExonRank)
}

// formatTranscriptMatches joins matches as "T1-2;T2-3", or "NONE".
func formatTranscriptMatches(ms []TranscriptMatch) string {
	if len(ms) == 0 {
		return "NONE"
	}
	s := make([]string, len(ms))
	for i, m := range ms {
		s[i] = m.String()
	}
	return strings.Join(s, ";")
}

// FragmentEvidence is the classification of one read pair. Once built it is
// never modified, so it can be shared between goroutines.
//
// For chimeric fragments all the per-side arrays are indexed like the
// anchors, which are in canonical JunctionKey order.
type FragmentEvidence struct {
	Name string
	Type FragmentType
	// ReadType is the gene-level category. Only Chimeric evidence is fed to an
	// Aggregator.
	ReadType GeneReadType
	// IncompleteData is set when some read end had no usable coordinates.
	IncompleteData bool

	Anchors       [2]Anchor
	JunctionTypes [2]JunctionType
	// TransMatches lists the transcripts (and exon ranks) at each anchor.
	TransMatches [2][]TranscriptMatch
	// Bases lists up to Opts.JunctionFlankLength aligned bases next to each
	// anchor, in reference-forward orientation and ending (Forward) or starting
	// (Backward) at the anchor.
	Bases [2]string
	// Segments are the alignments on each side. For a split read, one read end
	// contributes a segment to each side.
	Segments [2][]MappedSegment
	// ImpliedLength is the fragment length implied by the read positions.
	ImpliedLength int

	// FragmentMatches holds the valid transcripts of a non-chimeric fragment.
	FragmentMatches []FragmentMatch
}

// FragmentMatch is one valid transcript of a non-chimeric fragment.
type FragmentMatch struct {
	TransID string
	Type    FragmentMatchType
}

// Key returns the junction key of a chimeric evidence.
func (e *FragmentEvidence) Key() JunctionKey {
	return JunctionKey{Anchors: e.Anchors}
}

// Spliced checks if both sides of the junction are at exon boundaries.
func (e *FragmentEvidence) Spliced() bool {
	return e.JunctionTypes[0] == JunctionKnown && e.JunctionTypes[1] == JunctionKnown
}

// swap exchanges the two sides. Used to put anchors in canonical order.
func (e *FragmentEvidence) swap() {
	e.Anchors[0], e.Anchors[1] = e.Anchors[1], e.Anchors[0]
	e.JunctionTypes[0], e.JunctionTypes[1] = e.JunctionTypes[1], e.JunctionTypes[0]
	e.TransMatches[0], e.TransMatches[1] = e.TransMatches[1], e.TransMatches[0]
	e.Bases[0], e.Bases[1] = e.Bases[1], e.Bases[0]
	e.Segments[0], e.Segments[1] = e.Segments[1], e.Segments[0]
}

// canonicalize orders the sides like NewJunctionKey.
func (e *FragmentEvidence) canonicalize() {
	if e.Anchors[1].Less(e.Anchors[0]) {
		e.swap()
	}
}
