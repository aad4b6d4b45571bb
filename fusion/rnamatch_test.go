package fusion

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestReadRnaInputs(t *testing.T) {
	ctx := context.Background()
	calls, err := ReadRnaFusionCalls(ctx, "testdata/rna_calls.tsv")
	assert.NoError(t, err)
	assert.EQ(t, len(calls), 3)
	expect.EQ(t, calls[0], RnaFusionCall{
		Name: "FUS1", GeneUp: "GENE1", ChrUp: "chr1", PosUp: 2100, StrandUp: 1,
		GeneDown: "GENE2", ChrDown: "chr2", PosDown: 12000, StrandDown: 1,
		JunctionReads: 5, SpanningFrags: 10, SpliceType: "KNOWN",
	})

	bnds, err := ReadBreakends(ctx, "testdata/breakends.tsv")
	assert.NoError(t, err)
	assert.EQ(t, len(bnds), 5)
	expect.EQ(t, bnds[2], Breakend{Anchor: Anchor{"chr2", 11000, Backward}, SVID: 1, ClusterID: 1, ChainID: NoChain})

	_, err = ReadRnaFusionCalls(ctx, "testdata/rna_calls_bad.tsv")
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = ReadBreakends(ctx, "testdata/nonexistent.tsv")
	expect.True(t, err != nil)
}

func TestRnaMatcher(t *testing.T) {
	ctx := context.Background()
	calls, err := ReadRnaFusionCalls(ctx, "testdata/rna_calls.tsv")
	assert.NoError(t, err)
	bnds, err := ReadBreakends(ctx, "testdata/breakends.tsv")
	assert.NoError(t, err)
	m := NewRnaMatcher(newTestOracle(t), bnds, nil)

	// Both sides have viable breakends; the pair from one variant wins over the
	// closer downstream breakend.
	r := m.Match(calls[0])
	expect.True(t, r.Viable)
	expect.EQ(t, r.Up.Pos, 2500)
	expect.EQ(t, r.Down.Pos, 11000)
	expect.EQ(t, r.ExonsSkippedUp, 0)
	expect.EQ(t, r.ExonsSkippedDown, 0)

	// Unknown downstream gene.
	r = m.Match(calls[1])
	expect.False(t, r.Viable)
	expect.True(t, r.HasUp)
	expect.False(t, r.HasDown)
	expect.EQ(t, r.Up.Pos, 2500)

	// Upstream breakends skip exon 2; the closest one is used.
	r = m.Match(calls[2])
	expect.False(t, r.Viable)
	expect.EQ(t, r.Up.Pos, 2500)
	expect.EQ(t, r.ExonsSkippedUp, 1)
	expect.EQ(t, r.Down.Pos, 11500)

	var buf bytes.Buffer
	assert.NoError(t, WriteRnaMatches(&buf, []RnaMatch{m.Match(calls[0]), m.Match(calls[1])}))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.EQ(t, len(lines), 3)
	expect.EQ(t, len(strings.Split(lines[0], "\t")), len(rnaMatchHeader))
	row := strings.Split(lines[1], "\t")
	expect.EQ(t, row[len(row)-4:], []string{"true", "true", "false", "NONE"})
	row = strings.Split(lines[2], "\t")
	expect.EQ(t, row[17], "NONE")
	expect.EQ(t, row[len(row)-4:], []string{"false", "false", "false", "NONE"})
}

func TestRnaMatcherCandidate(t *testing.T) {
	ctx := context.Background()
	oracle := newTestOracle(t)
	calls, err := ReadRnaFusionCalls(ctx, "testdata/rna_calls.tsv")
	assert.NoError(t, err)
	bnds, err := ReadBreakends(ctx, "testdata/breakends.tsv")
	assert.NoError(t, err)

	agg := NewAggregator(DefaultOpts)
	addAll(t, agg, classifyAll(t, NewClassifier(oracle, DefaultOpts),
		splitFragment("t1", 15000),
		splitFragment("s1", 12000)))
	candidates, err := agg.Finalize(oracle, nil)
	assert.NoError(t, err)
	assert.EQ(t, len(candidates), 2)

	// Without breakends at the candidate junction, no candidate is reported.
	r := NewRnaMatcher(oracle, bnds, candidates).Match(calls[0])
	expect.True(t, r.Viable)
	expect.True(t, r.Candidate == nil)

	// A variant exactly at the chr1:2100-chr2:12000 junction beats variant 1
	// on distance and carries the candidate.
	bnds = append(bnds,
		Breakend{Anchor: Anchor{"chr1", 2100, Forward}, SVID: 5, ClusterID: 5, ChainID: NoChain},
		Breakend{Anchor: Anchor{"chr2", 12000, Backward}, SVID: 5, ClusterID: 5, ChainID: NoChain})
	m := NewRnaMatcher(oracle, bnds, candidates)
	r = m.Match(calls[0])
	expect.True(t, r.Viable)
	expect.EQ(t, r.Up.SVID, 5)
	expect.EQ(t, r.Down.SVID, 5)
	assert.True(t, r.Candidate != nil)
	expect.EQ(t, r.Candidate.Key, NewJunctionKey(Anchor{"chr1", 2100, Forward}, Anchor{"chr2", 12000, Backward}))
	expect.EQ(t, r.Candidate.ID, CandidateID(0))

	var buf bytes.Buffer
	assert.NoError(t, WriteRnaMatches(&buf, []RnaMatch{r}))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.EQ(t, len(lines), 2)
	row := strings.Split(lines[1], "\t")
	expect.EQ(t, row[len(row)-4:], []string{"true", "true", "false", "Id_0"})
}
