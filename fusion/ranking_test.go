package fusion

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func bnd(pos, sv, cluster, chain int) Breakend {
	return Breakend{Anchor: Anchor{"chr1", pos, Forward}, SVID: sv, ClusterID: cluster, ChainID: chain}
}

func TestSelectBest(t *testing.T) {
	const refUp, refDown = 1000, 5000
	tests := []struct {
		name  string
		pairs []RankedPair
		want  int
	}{
		{
			"closer",
			[]RankedPair{
				{Up: bnd(900, 1, 1, NoChain), Down: bnd(5200, 2, 2, NoChain)},
				{Up: bnd(990, 3, 3, NoChain), Down: bnd(5010, 4, 4, NoChain)},
			},
			1,
		},
		{
			"samesv",
			[]RankedPair{
				{Up: bnd(1000, 1, 1, NoChain), Down: bnd(5000, 2, 2, NoChain)},
				{Up: bnd(500, 3, 3, NoChain), Down: bnd(6000, 3, 3, NoChain)},
			},
			1,
		},
		{
			"samecluster",
			[]RankedPair{
				{Up: bnd(1000, 1, 1, NoChain), Down: bnd(5000, 2, 2, NoChain)},
				{Up: bnd(500, 3, 5, NoChain), Down: bnd(6000, 4, 5, NoChain)},
			},
			1,
		},
		{
			"samechain",
			[]RankedPair{
				{Up: bnd(1000, 1, 5, NoChain), Down: bnd(5000, 2, 5, NoChain)},
				{Up: bnd(500, 3, 5, 7), Down: bnd(6000, 4, 5, 7)},
			},
			1,
		},
		{
			// A chain only counts within one cluster.
			"chainwithoutcluster",
			[]RankedPair{
				{Up: bnd(1000, 1, 1, NoChain), Down: bnd(5000, 2, 2, NoChain)},
				{Up: bnd(500, 3, 3, 7), Down: bnd(6000, 4, 4, 7)},
			},
			0,
		},
		{
			"tie",
			[]RankedPair{
				{Up: bnd(990, 1, 1, NoChain), Down: bnd(5010, 2, 2, NoChain)},
				{Up: bnd(1010, 3, 3, NoChain), Down: bnd(4990, 4, 4, NoChain)},
			},
			0,
		},
	}
	for _, test := range tests {
		best, ok := SelectBest(test.pairs, refUp, refDown)
		assert.True(t, ok)
		expect.EQ(t, best, test.pairs[test.want], test.name)
		// Reversing the input only matters for ties.
		if test.name == "tie" {
			continue
		}
		rev := []RankedPair{test.pairs[1], test.pairs[0]}
		best, _ = SelectBest(rev, refUp, refDown)
		expect.EQ(t, best, test.pairs[test.want], test.name+" reversed")
	}
	_, ok := SelectBest(nil, refUp, refDown)
	expect.False(t, ok)
}
