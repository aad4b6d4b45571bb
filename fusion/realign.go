package fusion

import (
	"strings"

	"github.com/grailbio/isofusion/biosimd"
)

// SoftClipSupportsJunction checks whether the soft clip of seg, at the side
// facing junction, reads into the other side of the fusion.
//
// The read boundary must lie within Opts.SoftClipJunctionBuffer bases past
// the junction, the clip must be at least Opts.MinSoftClipMatch long, and the
// clipped bases (plus any aligned bases past the junction) are compared with
// the other side's flank, at most Opts.MaxSoftClipMatch of them.
//
// otherFlank is the flank of the other anchor as stored by the classifier:
// reference-forward bases ending at (Forward) or starting at (Backward) that
// anchor.
func SoftClipSupportsJunction(seg *MappedSegment, junction Anchor, otherOrient Orientation, otherFlank string, opts Opts) bool {
	if seg.Bases == "" || otherFlank == "" || seg.Chrom != junction.Chrom {
		return false
	}
	// Continuing past this junction, the fused molecule reads the other side
	// forward if the orientations differ, or reverse complemented if they match
	// (an inversion).
	expected := otherFlank
	if otherOrient == junction.Orient {
		expected = ReverseComplement(otherFlank)
	}
	n := len(seg.Bases)
	if junction.Orient == Forward {
		boundary := seg.End
		if boundary < junction.Pos || boundary > junction.Pos+opts.SoftClipJunctionBuffer {
			return false
		}
		clip := seg.SoftClipRight
		if clip < opts.MinSoftClipMatch {
			return false
		}
		extra := clip + boundary - junction.Pos
		if extra > n {
			return false
		}
		s := seg.Bases[n-extra:]
		if len(s) > opts.MaxSoftClipMatch {
			s = s[:opts.MaxSoftClipMatch]
		}
		return strings.HasPrefix(expected, s)
	}
	boundary := seg.Start
	if boundary > junction.Pos || boundary < junction.Pos-opts.SoftClipJunctionBuffer {
		return false
	}
	clip := seg.SoftClipLeft
	if clip < opts.MinSoftClipMatch {
		return false
	}
	extra := clip + junction.Pos - boundary
	if extra > n {
		return false
	}
	s := seg.Bases[:extra]
	if len(s) > opts.MaxSoftClipMatch {
		s = s[len(s)-opts.MaxSoftClipMatch:]
	}
	return strings.HasSuffix(expected, s)
}

// ReverseComplement returns the reverse complement of a nucleotide sequence.
// Unknown bases become 'N'.
func ReverseComplement(seq string) string {
	dst := make([]byte, len(seq))
	biosimd.ReverseComp8(dst, []byte(seq))
	return string(dst)
}
