package fusion

import "fmt"

// Block is one gapless aligned stretch of a read, in 1-based closed reference
// coordinates. Insertions and deletions do not break a block; only reference
// skips (splice gaps) do.
type Block struct {
	Start, End int
}

// Length returns the number of reference bases in the block.
func (b Block) Length() int { return b.End - b.Start + 1 }

// MappedSegment is one alignment of a read: the primary alignment, or a
// supplementary (chimeric) alignment of part of the read.
type MappedSegment struct {
	Chrom string
	// Start and End are the first and last aligned reference bases.
	Start, End int
	// Blocks are sorted by position. The gaps between blocks are the splice
	// points of the alignment.
	Blocks []Block
	// Reverse is set if the read aligned to the reverse strand.
	Reverse bool
	// SoftClipLeft and SoftClipRight are the clipped lengths at the low and high
	// coordinate ends of the alignment. Hard clips are included; Bases is then
	// empty.
	SoftClipLeft, SoftClipRight int
	// Bases is the read sequence as stored in the alignment record, i.e., in
	// reference-forward orientation. May be empty if unknown.
	Bases string
	// Supplementary marks a secondary piece of a chimeric alignment.
	Supplementary bool
}

// NewSegment creates a single-block segment. Mostly used in tests and for mates
// whose alignment is known only from the mate fields of a record.
func NewSegment(chrom string, start, end int, reverse bool) MappedSegment {
	return MappedSegment{
		Chrom:   chrom,
		Start:   start,
		End:     end,
		Blocks:  []Block{{start, end}},
		Reverse: reverse,
	}
}

// Valid checks that the segment has usable coordinates.
func (s *MappedSegment) Valid() bool {
	if s.Chrom == "" || s.Start <= 0 || s.End < s.Start || len(s.Blocks) == 0 {
		return false
	}
	prev := 0
	for _, b := range s.Blocks {
		if b.Start <= prev || b.End < b.Start || b.Start < s.Start || b.End > s.End {
			return false
		}
		prev = b.End
	}
	return true
}

// Spliced checks if the alignment has a reference skip.
func (s *MappedSegment) Spliced() bool { return len(s.Blocks) > 1 }

// ReadLength is the length of the read sequence, or, if the bases are unknown,
// the aligned length plus soft clips.
func (s *MappedSegment) ReadLength() int {
	if s.Bases != "" {
		return len(s.Bases)
	}
	n := s.SoftClipLeft + s.SoftClipRight
	for _, b := range s.Blocks {
		n += b.Length()
	}
	return n
}

// Covers checks if pos falls within an aligned block.
func (s *MappedSegment) Covers(pos int) bool {
	for _, b := range s.Blocks {
		if pos >= b.Start && pos <= b.End {
			return true
		}
	}
	return false
}

// Orientation returns the orientation of a discordant read: a forward read
// retains the region below its end, a reverse read the region above its start.
func (s *MappedSegment) Orientation() Orientation {
	if s.Reverse {
		return Backward
	}
	return Forward
}

// Boundary returns the read boundary next to a junction with the given
// orientation: End for Forward, Start for Backward.
func (s *MappedSegment) Boundary(o Orientation) int {
	if o == Forward {
		return s.End
	}
	return s.Start
}

// junctionAnchor returns the junction side of a split-read segment: the side
// where the larger soft clip is.
func (s *MappedSegment) junctionAnchor() Anchor {
	if s.SoftClipRight >= s.SoftClipLeft {
		return Anchor{Chrom: s.Chrom, Pos: s.End, Orient: Forward}
	}
	return Anchor{Chrom: s.Chrom, Pos: s.Start, Orient: Backward}
}

func (s MappedSegment) String() string {
	strand := '+'
	if s.Reverse {
		strand = '-'
	}
	return fmt.Sprintf("%s:%d-%d:%c", s.Chrom, s.Start, s.End, strand)
}

// Fragment is a read pair. Ends[i][0] is the primary alignment of read i+1;
// any further segments are supplementary alignments of the same read.
type Fragment struct {
	Name string
	Ends [2][]MappedSegment
	// Duplicate is set if the aligner marked the pair as a duplicate.
	Duplicate bool
	// InsertSize is the absolute template length reported by the aligner.
	InsertSize int
}

// primary returns the primary alignment of end i, or nil.
func (f *Fragment) primary(i int) *MappedSegment {
	if len(f.Ends[i]) == 0 {
		return nil
	}
	return &f.Ends[i][0]
}

// NumSegments returns the total number of segments in both ends.
func (f *Fragment) NumSegments() int { return len(f.Ends[0]) + len(f.Ends[1]) }
