package fusion

import (
	"fmt"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type fakeFlanks map[Anchor]string

func (f fakeFlanks) Flank(a Anchor, n int) (string, error) {
	s, ok := f[a]
	if !ok {
		return "", fmt.Errorf("no flank at %v", a)
	}
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}

func classifyAll(t *testing.T, c *Classifier, frags ...*Fragment) []*FragmentEvidence {
	var evs []*FragmentEvidence
	for _, f := range frags {
		ev := classify(t, c, f)
		evs = append(evs, &ev)
	}
	return evs
}

func addAll(t *testing.T, agg *Aggregator, evs []*FragmentEvidence) {
	for _, ev := range evs {
		_, err := agg.AddEvidence(ev)
		assert.NoError(t, err)
	}
}

func TestAggregateSplitAndDiscordant(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	evs := classifyAll(t, c,
		splitFragment("s1", 12000),
		splitFragment("s2", 12000),
		splitFragment("s3", 12000),
		discordantFragment("d1", 2010, 12040))

	agg := NewAggregator(DefaultOpts)
	addAll(t, agg, evs)
	expect.EQ(t, agg.Len(), 2)

	result, err := agg.Finalize(oracle, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(result), 1)
	fc := result[0]
	expect.EQ(t, fc.ID, CandidateID(0))
	expect.EQ(t, fc.State(), Finalized)
	expect.EQ(t, fc.TotalFragments(), 4)
	expect.EQ(t, fc.FragmentCount(MatchedJunction), 3)
	expect.EQ(t, fc.FragmentCount(Realigned), 0)
	expect.EQ(t, fc.FragmentCount(Discordant), 1)
	expect.EQ(t, fc.SampleFragment().Name, "s1")
	expect.True(t, fc.IsValid())
	expect.EQ(t, fc.GeneID(Upstream), "ENSG1")
	expect.EQ(t, fc.GeneID(Downstream), "ENSG2")
	expect.EQ(t, fc.Anchor(Upstream), Anchor{"chr1", 2100, Forward})
	expect.EQ(t, fc.JunctionType(Downstream), JunctionKnown)
	expect.EQ(t, fc.SVType(), SVBnd)
	expect.EQ(t, len(fc.Related()), 0)
}

func TestAggregateOrderIndependent(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	frags := []*Fragment{
		splitFragment("s1", 12000),
		discordantFragment("d1", 2010, 12040),
		splitFragment("s2", 12000),
		splitFragment("t1", 15000),
		discordantFragment("d2", 2020, 12050),
		discordantFragment("far", 4900, 19950),
	}
	summarize := func(reverse bool) []string {
		evs := classifyAll(t, c, frags...)
		if reverse {
			for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
				evs[i], evs[j] = evs[j], evs[i]
			}
		}
		agg := NewAggregator(DefaultOpts)
		addAll(t, agg, evs)
		result, err := agg.Finalize(oracle, nil)
		assert.NoError(t, err)
		var s []string
		for _, fc := range agg.Candidates() {
			if fc.TotalFragments() == 0 {
				continue
			}
			s = append(s, fmt.Sprintf("%v %d/%d/%d", fc.Key,
				fc.FragmentCount(MatchedJunction), fc.FragmentCount(Realigned), fc.FragmentCount(Discordant)))
		}
		expect.EQ(t, len(s), len(result))
		return s
	}
	forward := summarize(false)
	expect.EQ(t, forward, []string{
		"chr1:2100:1/chr2:12000:-1 2/0/2",
		"chr1:2100:1/chr2:15000:-1 1/0/0",
		"chr1:4949:1/chr2:19950:-1 0/0/1",
	})
	expect.EQ(t, summarize(true), forward)
}

func TestAggregateConcurrent(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	agg := NewAggregator(DefaultOpts)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev, err := c.Classify(splitFragment(fmt.Sprintf("s%d", i), 12000+100*(i%2)))
			if err != nil {
				t.Error(err)
				return
			}
			if _, err := agg.AddEvidence(&ev); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	cs := agg.Candidates()
	assert.EQ(t, len(cs), 2)
	expect.EQ(t, cs[0].TotalFragments(), 10)
	expect.EQ(t, cs[1].TotalFragments(), 10)
	ids := map[CandidateID]bool{cs[0].ID: true, cs[1].ID: true}
	expect.True(t, ids[0] && ids[1])
}

func TestAggregateDuplicateName(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	agg := NewAggregator(DefaultOpts)
	evs := classifyAll(t, c, splitFragment("s1", 12000), splitFragment("s1", 12000))
	addAll(t, agg, evs)
	cs := agg.Candidates()
	assert.EQ(t, len(cs), 1)
	expect.EQ(t, cs[0].TotalFragments(), 1)
}

func TestAggregateErrors(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	agg := NewAggregator(DefaultOpts)

	ev := classify(t, c, pairFragment("short",
		NewSegment("chr1", 2010, 2059, false),
		NewSegment("chr1", 2040, 2090, true)))
	_, err := agg.AddEvidence(&ev)
	expect.True(t, errors.Is(errors.Invalid, err))

	evs := classifyAll(t, c, splitFragment("s1", 12000))
	addAll(t, agg, evs)
	result, err := agg.Finalize(oracle, nil)
	assert.NoError(t, err)

	late := classifyAll(t, c, splitFragment("s2", 12000))
	_, err = agg.AddEvidence(late[0])
	expect.True(t, errors.Is(errors.Precondition, err))
	_, err = result[0].add(late[0])
	expect.True(t, errors.Is(errors.Precondition, err))
	expect.EQ(t, result[0].TotalFragments(), 1)

	_, err = agg.Finalize(oracle, nil)
	expect.True(t, errors.Is(errors.Precondition, err))
}

func TestAggregateRealigned(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)

	// The first read ends at the junction and its 4 clipped bases match the
	// start of the downstream flank.
	clipped := NewSegment("chr1", 2061, 2100, false)
	clipped.SoftClipRight = 4
	clipped.Bases = repeat('T', 40) + "ACGT"
	evs := classifyAll(t, c,
		splitFragment("s1", 12000),
		pairFragment("r1", clipped, NewSegment("chr2", 12040, 12089, true)))
	expect.EQ(t, evs[1].Type, Discordant)

	agg := NewAggregator(DefaultOpts)
	addAll(t, agg, evs)
	flanks := fakeFlanks{
		{"chr1", 2100, Forward}:   "CCCCCCCCCC",
		{"chr2", 12000, Backward}: "ACGTACGTAC",
	}
	result, err := agg.Finalize(oracle, flanks)
	assert.NoError(t, err)
	assert.EQ(t, len(result), 1)
	expect.EQ(t, result[0].FragmentCount(MatchedJunction), 1)
	expect.EQ(t, result[0].FragmentCount(Realigned), 1)
	expect.EQ(t, result[0].Fragments(Realigned)[0].Name, "r1")
}

func TestAggregateRelated(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	evs := classifyAll(t, c,
		splitFragment("s1", 12000),
		splitFragment("t1", 15000),
		discordantFragment("d1", 2010, 15040))
	agg := NewAggregator(DefaultOpts)
	addAll(t, agg, evs)
	result, err := agg.Finalize(oracle, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(result), 2)

	// d1 is compatible with both junctions; the first in key order takes it.
	expect.EQ(t, result[0].FragmentCount(Discordant), 1)
	expect.EQ(t, result[1].FragmentCount(Discordant), 0)
	expect.EQ(t, result[0].Related(), []CandidateID{1})
	expect.EQ(t, result[1].Related(), []CandidateID{0})
}

func TestFinalizeRenumbersInKeyOrder(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	frags := func() []*Fragment {
		return []*Fragment{
			discordantFragment("x", 7000, 30000),
			splitFragment("t1", 15000),
			discordantFragment("d1", 2010, 15040),
			splitFragment("s1", 12000),
		}
	}
	finalize := func(frags []*Fragment) []string {
		agg := NewAggregator(DefaultOpts)
		addAll(t, agg, classifyAll(t, c, frags...))
		result, err := agg.Finalize(oracle, nil)
		assert.NoError(t, err)
		var ids []string
		for i, fc := range result {
			expect.EQ(t, fc.ID, CandidateID(i))
			ids = append(ids, fmt.Sprintf("%d %v %v", fc.ID, fc.Key, fc.Related()))
		}
		return ids
	}
	reversed := frags()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	want := finalize(frags())
	assert.EQ(t, len(want), 3)
	expect.EQ(t, finalize(reversed), want)
	// The dropped discordant candidate leaves no gap.
	expect.HasPrefix(t, want[2], "2 ")
}

func TestAggregateUnassignedDiscordant(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	evs := classifyAll(t, c,
		splitFragment("s1", 12000),
		discordantFragment("far", 4900, 19950))
	agg := NewAggregator(DefaultOpts)
	addAll(t, agg, evs)
	result, err := agg.Finalize(oracle, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(result), 2)
	far := result[1]
	expect.EQ(t, far.FragmentCount(Discordant), 1)
	expect.EQ(t, far.SampleFragment().Name, "far")
	expect.EQ(t, far.GeneID(Upstream), "ENSG1")
	expect.EQ(t, far.JunctionType(Upstream), JunctionExonic)
}

func TestCanAddDiscordant(t *testing.T) {
	oracle := newTestOracle(t)
	c := NewClassifier(oracle, DefaultOpts)
	agg := NewAggregator(DefaultOpts)
	addAll(t, agg, classifyAll(t, c, splitFragment("s1", 12000)))
	result, err := agg.Finalize(oracle, nil)
	assert.NoError(t, err)
	fc := result[0]

	for _, test := range []struct {
		pos1, pos2 int
		want       bool
	}{
		{2010, 12040, true},
		// Exon 1 is one exon upstream of the junction exon.
		{1010, 12040, true},
		// Exon 4 of GENE2 is two exons past the junction exon.
		{2010, 19900, true},
		// Past the junction on the chr1 side.
		{2110, 12040, false},
		// Before the junction on the chr2 side.
		{2010, 11900, false},
		// Intronic on both sides; too far for MaxFragmentLength.
		{1500, 13000, false},
	} {
		ev := classify(t, c, discordantFragment("d", test.pos1, test.pos2))
		expect.EQ(t, fc.canAddDiscordant(&ev, DefaultOpts), test.want, "%+v", test)
	}
}

func TestExonsCompatible(t *testing.T) {
	refs := []TranscriptMatch{{TransID: "ENST1", ExonRank: 5}}
	m := func(rank int) []TranscriptMatch { return []TranscriptMatch{{TransID: "ENST1", ExonRank: rank}} }
	expect.True(t, exonsCompatible(refs, m(3), true, false))
	expect.False(t, exonsCompatible(refs, m(2), true, false))
	expect.False(t, exonsCompatible(refs, m(6), true, false))
	expect.True(t, exonsCompatible(refs, m(7), false, false))
	expect.False(t, exonsCompatible(refs, m(7), false, true))
	expect.True(t, exonsCompatible(refs, m(6), false, true))
	expect.False(t, exonsCompatible(refs, []TranscriptMatch{{TransID: "ENST2", ExonRank: 5}}, false, false))
}

func repeat(b byte, n int) string {
	s := make([]byte, n)
	for i := range s {
		s[i] = b
	}
	return string(s)
}
