package fusion

import "github.com/grailbio/isofusion/annotation"

// Stream is the role of a gene in a fusion: the 5' (upstream) partner or the
// 3' (downstream) partner.
type Stream int

const (
	// Upstream is the 5' partner.
	Upstream Stream = 0
	// Downstream is the 3' partner.
	Downstream Stream = 1
)

func (s Stream) String() string {
	if s == Upstream {
		return "UP"
	}
	return "DOWN"
}

// CandidateGene is a gene that could take part in a fusion at an anchor.
type CandidateGene struct {
	Gene *annotation.Gene
	// Transcripts covering the anchor position, canonical first.
	Transcripts []*annotation.Transcript
	// Stream is the role the gene can play given the anchor orientation.
	Stream Stream
}

// ResolveCandidateGenes lists the genes at an anchor together with the role
// each can play. A gene transcribed towards the junction (strand equal to the
// orientation) can only be the upstream partner; a gene transcribed away from
// it can only be the downstream partner. The order is the oracle's.
func ResolveCandidateGenes(a Anchor, oracle annotation.Oracle) []CandidateGene {
	genes := oracle.Genes(a.Chrom, a.Pos, a.Pos)
	if len(genes) == 0 {
		return nil
	}
	cands := make([]CandidateGene, 0, len(genes))
	for _, g := range genes {
		cg := CandidateGene{Gene: g, Stream: Downstream}
		if int8(g.Strand) == int8(a.Orient) {
			cg.Stream = Upstream
		}
		for _, t := range g.Transcripts {
			if a.Pos >= t.Start && a.Pos <= t.End {
				cg.Transcripts = append(cg.Transcripts, t)
			}
		}
		cands = append(cands, cg)
	}
	return cands
}

func filterStream(genes []CandidateGene, s Stream) []CandidateGene {
	var r []CandidateGene
	for _, g := range genes {
		if g.Stream == s {
			r = append(r, g)
		}
	}
	return r
}

// assignStreams decides which anchor of a junction is upstream. It returns
// the upstream side index and the candidate genes by stream. When no side
// assignment gives genes for both streams, the assignment with more genes
// wins, start-upstream on ties.
func assignStreams(start, end []CandidateGene) (upSide int, genes [2][]CandidateGene) {
	up0, down1 := filterStream(start, Upstream), filterStream(end, Downstream)
	up1, down0 := filterStream(end, Upstream), filterStream(start, Downstream)
	switch {
	case len(up0) > 0 && len(down1) > 0:
		return SideStart, [2][]CandidateGene{up0, down1}
	case len(up1) > 0 && len(down0) > 0:
		return SideEnd, [2][]CandidateGene{up1, down0}
	case len(up0)+len(down1) >= len(up1)+len(down0):
		return SideStart, [2][]CandidateGene{up0, down1}
	default:
		return SideEnd, [2][]CandidateGene{up1, down0}
	}
}
