package fusion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/isofusion/annotation"
)

// RnaFusionCall is a fusion reported by an RNA caller, to be explained by
// structural variant breakends.
type RnaFusionCall struct {
	Name          string `tsv:"Name"`
	GeneUp        string `tsv:"GeneUp"`
	ChrUp         string `tsv:"ChrUp"`
	PosUp         int    `tsv:"PosUp"`
	StrandUp      int    `tsv:"StrandUp"`
	GeneDown      string `tsv:"GeneDown"`
	ChrDown       string `tsv:"ChrDown"`
	PosDown       int    `tsv:"PosDown"`
	StrandDown    int    `tsv:"StrandDown"`
	JunctionReads int    `tsv:"JunctionReads"`
	SpanningFrags int    `tsv:"SpanningFrags"`
	SpliceType    string `tsv:"SpliceType"`
}

// breakendRow is one line of a breakend TSV file.
type breakendRow struct {
	SVID        int    `tsv:"SvId"`
	ClusterID   int    `tsv:"ClusterId"`
	ChainID     int    `tsv:"ChainId"`
	Chrom       string `tsv:"Chromosome"`
	Pos         int    `tsv:"Position"`
	Orientation int    `tsv:"Orientation"`
}

// ReadRnaFusionCalls reads a TSV file of RnaFusionCall rows with a header.
func ReadRnaFusionCalls(ctx context.Context, path string) (_ []RnaFusionCall, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := tsv.NewReader(bufio.NewReader(in.Reader(ctx)))
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	var calls []RnaFusionCall
	for {
		var row RnaFusionCall
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(err, path)
		}
		if (row.StrandUp != 1 && row.StrandUp != -1) || (row.StrandDown != 1 && row.StrandDown != -1) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: %s: strand must be 1 or -1", path, row.Name))
		}
		calls = append(calls, row)
	}
	return calls, nil
}

// ReadBreakends reads a TSV file of breakends with a header.
func ReadBreakends(ctx context.Context, path string) (_ []Breakend, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := tsv.NewReader(bufio.NewReader(in.Reader(ctx)))
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	var bnds []Breakend
	for {
		var row breakendRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(err, path)
		}
		b := Breakend{
			Anchor:    Anchor{Chrom: row.Chrom, Pos: row.Pos, Orient: Orientation(row.Orientation)},
			SVID:      row.SVID,
			ClusterID: row.ClusterID,
			ChainID:   row.ChainID,
		}
		if !b.Valid() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: bad breakend %+v", path, row))
		}
		bnds = append(bnds, b)
	}
	return bnds, nil
}

// GeneFinder is an annotation oracle that can also look genes up by name.
type GeneFinder interface {
	annotation.Oracle
	GenesByName(name string) []*annotation.Gene
}

// RnaMatch is the result of matching one RnaFusionCall.
type RnaMatch struct {
	Call RnaFusionCall
	// Viable is set if both breakends were chosen from the viable lists.
	Viable           bool
	HasUp, HasDown   bool
	Up, Down         Breakend
	ExonsSkippedUp   int
	ExonsSkippedDown int
	// Candidate is the fusion candidate whose junction is exactly the chosen
	// breakend pair, or nil.
	Candidate *FusionCandidate
}

// RnaMatcher matches RNA fusion calls with structural variant breakends.
type RnaMatcher struct {
	genes      GeneFinder
	breakends  map[string][]Breakend
	candidates map[JunctionKey]*FusionCandidate
}

// NewRnaMatcher creates a matcher. Breakends keep their input order.
// candidates are finalized fusion candidates from the same sample; they may
// be nil.
func NewRnaMatcher(genes GeneFinder, breakends []Breakend, candidates []*FusionCandidate) *RnaMatcher {
	m := &RnaMatcher{
		genes:      genes,
		breakends:  map[string][]Breakend{},
		candidates: make(map[JunctionKey]*FusionCandidate, len(candidates)),
	}
	for _, b := range breakends {
		m.breakends[b.Chrom] = append(m.breakends[b.Chrom], b)
	}
	for _, c := range candidates {
		m.candidates[c.Key] = c
	}
	return m
}

// candidate returns the fusion candidate joining the two breakends.
func (m *RnaMatcher) candidate(up, down Breakend) *FusionCandidate {
	return m.candidates[NewJunctionKey(up.Anchor, down.Anchor)]
}

// sideBreakends holds the breakends found in one gene of a call.
type sideBreakends struct {
	transcript *annotation.Transcript
	// viable breakends are on the correct side of the RNA position, with the
	// correct orientation, and no exon between them and the RNA position.
	viable []Breakend
	// near breakends are like viable ones, but skip exons.
	near []Breakend
	// genic breakends are anywhere else in the gene.
	genic []Breakend
}

func (m *RnaMatcher) findGene(name, chrom string) *annotation.Gene {
	for _, g := range m.genes.GenesByName(name) {
		if g.Chrom == chrom {
			return g
		}
	}
	return nil
}

// collect classifies the breakends in one gene of the call. The fused region
// of an upstream gene lies 5' of the RNA junction and that of a downstream
// gene 3' of it, so the breakend must be past the junction in transcription
// order.
func (m *RnaMatcher) collect(upstream bool, geneName, chrom string, rnaPos, strand int) sideBreakends {
	var s sideBreakends
	g := m.findGene(geneName, chrom)
	if g == nil {
		return s
	}
	s.transcript = g.CanonicalTranscript()
	requireHigher := (upstream && strand == 1) || (!upstream && strand == -1)
	wantOrient := Orientation(strand)
	if !upstream {
		wantOrient = -wantOrient
	}
	for _, b := range m.breakends[chrom] {
		if !g.Contains(b.Pos) {
			continue
		}
		correctLocation := (requireHigher && b.Pos >= rnaPos) || (!requireHigher && b.Pos <= rnaPos)
		if !correctLocation || b.Orient != wantOrient {
			s.genic = append(s.genic, b)
			continue
		}
		if s.transcript == nil || s.transcript.ExonsBetween(rnaPos, b.Pos) == 0 {
			s.viable = append(s.viable, b)
		} else {
			s.near = append(s.near, b)
		}
	}
	return s
}

// closest returns the breakend closest to pos from the first non-empty list.
func closest(pos int, lists ...[]Breakend) (Breakend, bool) {
	for _, l := range lists {
		if len(l) == 0 {
			continue
		}
		best := l[0]
		for _, b := range l[1:] {
			if abs(b.Pos-pos) < abs(best.Pos-pos) {
				best = b
			}
		}
		return best, true
	}
	return Breakend{}, false
}

// Match finds the breakends that best explain call.
func (m *RnaMatcher) Match(call RnaFusionCall) RnaMatch {
	res := RnaMatch{Call: call}
	up := m.collect(true, call.GeneUp, call.ChrUp, call.PosUp, call.StrandUp)
	down := m.collect(false, call.GeneDown, call.ChrDown, call.PosDown, call.StrandDown)

	if len(up.viable) > 0 && len(down.viable) > 0 {
		pairs := make([]RankedPair, 0, len(up.viable)*len(down.viable))
		for _, u := range up.viable {
			for _, d := range down.viable {
				pairs = append(pairs, RankedPair{Candidate: m.candidate(u, d), Up: u, Down: d})
			}
		}
		best, _ := SelectBest(pairs, call.PosUp, call.PosDown)
		res.Viable = true
		res.HasUp, res.HasDown = true, true
		res.Up, res.Down = best.Up, best.Down
		res.Candidate = best.Candidate
	} else {
		res.Up, res.HasUp = closest(call.PosUp, up.viable, up.near, up.genic)
		res.Down, res.HasDown = closest(call.PosDown, down.viable, down.near, down.genic)
		if res.HasUp && res.HasDown {
			res.Candidate = m.candidate(res.Up, res.Down)
		}
	}
	if res.HasUp && up.transcript != nil {
		res.ExonsSkippedUp = up.transcript.ExonsBetween(call.PosUp, res.Up.Pos)
	}
	if res.HasDown && down.transcript != nil {
		res.ExonsSkippedDown = down.transcript.ExonsBetween(call.PosDown, res.Down.Pos)
	}
	return res
}

var rnaMatchHeader = []string{
	"Name", "GeneUp", "ChrUp", "PosUp", "GeneDown", "ChrDown", "PosDown",
	"JunctionReads", "SpanningFrags", "Viable",
	"SvIdUp", "ClusterIdUp", "ChainIdUp", "BreakendPosUp", "BreakendOrientUp", "DistanceUp", "ExonsSkippedUp",
	"SvIdDown", "ClusterIdDown", "ChainIdDown", "BreakendPosDown", "BreakendOrientDown", "DistanceDown", "ExonsSkippedDown",
	"SameSV", "SameCluster", "SameChain", "FusionId",
}

// WriteRnaMatches writes the matches as TSV with a header.
func WriteRnaMatches(w io.Writer, matches []RnaMatch) error {
	out := tsv.NewWriter(w)
	for _, h := range rnaMatchHeader {
		out.WriteString(h)
	}
	if err := out.EndLine(); err != nil {
		return err
	}
	writeSide := func(has bool, b Breakend, rnaPos, skipped int) {
		if !has {
			for i := 0; i < 7; i++ {
				out.WriteString("NONE")
			}
			return
		}
		out.WriteString(strconv.Itoa(b.SVID))
		out.WriteString(strconv.Itoa(b.ClusterID))
		out.WriteString(strconv.Itoa(b.ChainID))
		out.WriteInt64(int64(b.Pos))
		out.WriteString(b.Orient.String())
		out.WriteInt64(int64(abs(b.Pos - rnaPos)))
		out.WriteInt64(int64(skipped))
	}
	for _, m := range matches {
		c := &m.Call
		out.WriteString(c.Name)
		out.WriteString(c.GeneUp)
		out.WriteString(c.ChrUp)
		out.WriteInt64(int64(c.PosUp))
		out.WriteString(c.GeneDown)
		out.WriteString(c.ChrDown)
		out.WriteInt64(int64(c.PosDown))
		out.WriteInt64(int64(c.JunctionReads))
		out.WriteInt64(int64(c.SpanningFrags))
		out.WriteString(strconv.FormatBool(m.Viable))
		writeSide(m.HasUp, m.Up, c.PosUp, m.ExonsSkippedUp)
		writeSide(m.HasDown, m.Down, c.PosDown, m.ExonsSkippedDown)
		both := m.HasUp && m.HasDown
		p := RankedPair{Up: m.Up, Down: m.Down}
		out.WriteString(strconv.FormatBool(both && p.sameSV()))
		out.WriteString(strconv.FormatBool(both && p.sameCluster()))
		out.WriteString(strconv.FormatBool(both && p.sameChain()))
		if m.Candidate != nil {
			out.WriteString(FormatCandidateID(m.Candidate.ID))
		} else {
			out.WriteString("NONE")
		}
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
