package fusion

import (
	"fmt"
	"strconv"
)

// Orientation tells which side of a junction position is retained in the
// fused molecule. +1 means the bases at and below Pos are kept (the junction
// is at the 3' end of the retained region in reference coordinates); -1
// means the bases at and above Pos are kept.
type Orientation int8

const (
	// Forward (+1) retains the lower coordinates.
	Forward Orientation = 1
	// Backward (-1) retains the higher coordinates.
	Backward Orientation = -1
)

// String returns "1" or "-1".
func (o Orientation) String() string { return strconv.Itoa(int(o)) }

// Valid checks that o is +1 or -1.
func (o Orientation) Valid() bool { return o == Forward || o == Backward }

// Anchor is a junction endpoint: a 1-based position on a chromosome plus the
// side retained. The zero Anchor is invalid.
type Anchor struct {
	Chrom  string
	Pos    int
	Orient Orientation
}

// Valid checks that the anchor has a chromosome, a positive position and an
// orientation.
func (a Anchor) Valid() bool { return a.Chrom != "" && a.Pos > 0 && a.Orient.Valid() }

func (a Anchor) String() string { return fmt.Sprintf("%s:%d:%v", a.Chrom, a.Pos, a.Orient) }

// Less defines the canonical anchor order: chromosome name, then position,
// then orientation.
func (a Anchor) Less(b Anchor) bool {
	if a.Chrom != b.Chrom {
		return a.Chrom < b.Chrom
	}
	if a.Pos != b.Pos {
		return a.Pos < b.Pos
	}
	return a.Orient < b.Orient
}

// Retains checks if pos is on the retained side of the anchor, allowing pos to
// pass the junction by up to slack bases.
func (a Anchor) Retains(pos, slack int) bool {
	if a.Orient == Forward {
		return pos <= a.Pos+slack
	}
	return pos >= a.Pos-slack
}

// JunctionKey identifies a fusion junction. Use NewJunctionKey to create one;
// the two anchors are always in canonical order, so the key does not depend
// on which read end was seen first.
type JunctionKey struct {
	Anchors [2]Anchor
}

// NewJunctionKey creates a key from two anchors, in either order.
func NewJunctionKey(a, b Anchor) JunctionKey {
	if b.Less(a) {
		a, b = b, a
	}
	return JunctionKey{Anchors: [2]Anchor{a, b}}
}

func (k JunctionKey) String() string {
	return k.Anchors[0].String() + "/" + k.Anchors[1].String()
}

// SameChrom checks if both anchors are on one chromosome.
func (k JunctionKey) SameChrom() bool { return k.Anchors[0].Chrom == k.Anchors[1].Chrom }

// Side constants index the two anchors of a JunctionKey.
const (
	SideStart = 0
	SideEnd   = 1
)

// otherSide returns the index of the opposite anchor.
func otherSide(side int) int { return 1 - side }

// SVType is the structural variant type implied by a junction.
type SVType uint8

const (
	// SVUnknown is used when the key is not valid.
	SVUnknown SVType = iota
	// SVBnd is a translocation (the anchors are on different chromosomes).
	SVBnd
	// SVDel is a deletion: +1 then -1 orientations.
	SVDel
	// SVDup is a tandem duplication: -1 then +1 orientations.
	SVDup
	// SVInv is an inversion: both orientations equal.
	SVInv
)

var svTypeNames = [...]string{"UNKNOWN", "BND", "DEL", "DUP", "INV"}

func (t SVType) String() string { return svTypeNames[t] }

// SVType returns the structural variant type implied by the key.
func (k JunctionKey) SVType() SVType {
	s, e := k.Anchors[SideStart], k.Anchors[SideEnd]
	switch {
	case !s.Valid() || !e.Valid():
		return SVUnknown
	case s.Chrom != e.Chrom:
		return SVBnd
	case s.Orient == e.Orient:
		return SVInv
	case s.Orient == Forward:
		return SVDel
	default:
		return SVDup
	}
}
