package fusion

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestJunctionKey(t *testing.T) {
	a := Anchor{"chr2", 500, Backward}
	b := Anchor{"chr1", 1000, Forward}
	k := NewJunctionKey(a, b)
	expect.EQ(t, k, NewJunctionKey(b, a))
	expect.EQ(t, k.Anchors[SideStart], b)
	expect.EQ(t, k.String(), "chr1:1000:1/chr2:500:-1")
	expect.False(t, k.SameChrom())

	// Same position, orientation breaks the tie.
	x := Anchor{"chr1", 100, Forward}
	y := Anchor{"chr1", 100, Backward}
	expect.EQ(t, NewJunctionKey(x, y).Anchors[SideStart], y)
}

func TestSVType(t *testing.T) {
	for _, test := range []struct {
		a, b Anchor
		want SVType
	}{
		{Anchor{"chr1", 100, Forward}, Anchor{"chr2", 100, Backward}, SVBnd},
		{Anchor{"chr1", 100, Forward}, Anchor{"chr1", 900, Backward}, SVDel},
		{Anchor{"chr1", 100, Backward}, Anchor{"chr1", 900, Forward}, SVDup},
		{Anchor{"chr1", 100, Forward}, Anchor{"chr1", 900, Forward}, SVInv},
		{Anchor{"chr1", 100, Backward}, Anchor{"chr1", 900, Backward}, SVInv},
		{Anchor{"chr1", 0, Backward}, Anchor{"chr1", 900, Backward}, SVUnknown},
	} {
		expect.EQ(t, NewJunctionKey(test.a, test.b).SVType(), test.want)
		expect.EQ(t, NewJunctionKey(test.b, test.a).SVType(), test.want)
	}
	expect.EQ(t, SVDel.String(), "DEL")
}

func TestAnchorRetains(t *testing.T) {
	f := Anchor{"chr1", 100, Forward}
	expect.True(t, f.Retains(100, 0))
	expect.True(t, f.Retains(50, 0))
	expect.False(t, f.Retains(101, 0))
	expect.True(t, f.Retains(103, 3))
	b := Anchor{"chr1", 100, Backward}
	expect.True(t, b.Retains(150, 0))
	expect.False(t, b.Retains(99, 0))
	expect.True(t, b.Retains(97, 3))
	expect.False(t, Anchor{}.Valid())
}

func TestSegment(t *testing.T) {
	s := MappedSegment{
		Chrom: "chr1", Start: 100, End: 399,
		Blocks:       []Block{{100, 149}, {350, 399}},
		SoftClipLeft: 5,
	}
	expect.True(t, s.Valid())
	expect.True(t, s.Spliced())
	expect.EQ(t, s.ReadLength(), 105)
	expect.True(t, s.Covers(120))
	expect.False(t, s.Covers(200))
	expect.EQ(t, s.junctionAnchor(), Anchor{"chr1", 100, Backward})
	s.Blocks = []Block{{350, 399}, {100, 149}}
	expect.False(t, s.Valid())
}
