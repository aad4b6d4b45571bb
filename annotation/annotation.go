// Package annotation describes genes, transcripts and exons, and answers
// "what is annotated at this position" queries for the fusion caller.
//
// Coordinates are 1-based and both ends are closed, as in GTF.
package annotation

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
)

// Strand is the genomic strand of a gene: +1 or -1.
type Strand int8

const (
	// Forward is the '+' strand.
	Forward Strand = 1
	// Reverse is the '-' strand.
	Reverse Strand = -1
)

// String returns "+" or "-".
func (s Strand) String() string {
	if s == Reverse {
		return "-"
	}
	return "+"
}

// ParseStrand parses "+" or "-".
func ParseStrand(s string) (Strand, error) {
	switch s {
	case "+", "1":
		return Forward, nil
	case "-", "-1":
		return Reverse, nil
	}
	return 0, errors.E(errors.Invalid, "annotation: invalid strand", s)
}

// RegionType describes where a position falls relative to one transcript.
type RegionType uint8

const (
	// Exonic means the position lies within one of the transcript's exons.
	Exonic RegionType = iota
	// Intronic means the position lies between two exons of the transcript.
	Intronic
)

func (r RegionType) String() string {
	if r == Intronic {
		return "INTRONIC"
	}
	return "EXONIC"
}

// Exon is one exon of a transcript. Rank counts from 1 at the 5' end of the
// transcript, so on the reverse strand rank 1 is the exon with the highest
// coordinates.
type Exon struct {
	Rank       int
	Start, End int
}

// Length returns the number of bases in the exon.
func (e Exon) Length() int { return e.End - e.Start + 1 }

// Transcript is one isoform of a gene.
type Transcript struct {
	ID         string
	Name       string
	Gene       *Gene
	Start, End int
	Biotype    string
	// Canonical is set for at most one transcript per gene.
	Canonical bool
	// Exons are sorted by Start, regardless of strand.
	Exons []Exon
}

// Length is the sum of the exon lengths.
func (t *Transcript) Length() int {
	n := 0
	for _, e := range t.Exons {
		n += e.Length()
	}
	return n
}

// ExonByRank returns the exon with the given rank.
func (t *Transcript) ExonByRank(rank int) (Exon, bool) {
	for _, e := range t.Exons {
		if e.Rank == rank {
			return e, true
		}
	}
	return Exon{}, false
}

// Locate finds pos within the transcript. For exonic positions the returned
// rank is the rank of the containing exon. For intronic positions it is the
// rank of the exon immediately upstream in transcription order. ok is false
// if pos is outside [Start, End].
func (t *Transcript) Locate(pos int) (region RegionType, rank int, ok bool) {
	if pos < t.Start || pos > t.End || len(t.Exons) == 0 {
		return 0, 0, false
	}
	// First exon whose end is >= pos.
	i := sort.Search(len(t.Exons), func(i int) bool { return t.Exons[i].End >= pos })
	if i < len(t.Exons) && t.Exons[i].Start <= pos {
		return Exonic, t.Exons[i].Rank, true
	}
	// pos is in the intron between exons i-1 and i.
	if i == 0 || i == len(t.Exons) {
		return 0, 0, false
	}
	if t.Gene != nil && t.Gene.Strand == Reverse {
		return Intronic, t.Exons[i].Rank, true
	}
	return Intronic, t.Exons[i-1].Rank, true
}

// ExonsBetween counts the exons that lie strictly between the two positions.
func (t *Transcript) ExonsBetween(pos0, pos1 int) int {
	if pos0 > pos1 {
		pos0, pos1 = pos1, pos0
	}
	n := 0
	for _, e := range t.Exons {
		if e.Start > pos0 && e.End < pos1 {
			n++
		}
	}
	return n
}

func (t *Transcript) String() string {
	return fmt.Sprintf("%s(%s:%d-%d)", t.Name, t.Gene.Chrom, t.Start, t.End)
}

// Gene is an annotated gene.
type Gene struct {
	ID         string
	Name       string
	Chrom      string
	Strand     Strand
	Start, End int
	// Transcripts are sorted with the canonical transcript first, then by ID.
	Transcripts []*Transcript
}

// CanonicalTranscript returns the canonical transcript, or nil if the gene has
// no transcripts.
func (g *Gene) CanonicalTranscript() *Transcript {
	for _, t := range g.Transcripts {
		if t.Canonical {
			return t
		}
	}
	if len(g.Transcripts) > 0 {
		return g.Transcripts[0]
	}
	return nil
}

// Contains checks if pos is within the gene span.
func (g *Gene) Contains(pos int) bool { return pos >= g.Start && pos <= g.End }

func (g *Gene) String() string {
	return fmt.Sprintf("%s(%s:%d-%d:%v)", g.Name, g.Chrom, g.Start, g.End, g.Strand)
}

// Hit is one annotation found at a position.
type Hit struct {
	Gene       *Gene
	Transcript *Transcript
	Region     RegionType
	// ExonRank is the rank of the exon containing the position, or of the
	// exon upstream of an intronic position.
	ExonRank int
}

// AtExonBoundary checks if pos is the first (start=true) or last base of the
// hit's exon.
func (h Hit) AtExonBoundary(pos int, start bool) bool {
	if h.Region != Exonic {
		return false
	}
	e, ok := h.Transcript.ExonByRank(h.ExonRank)
	if !ok {
		return false
	}
	if start {
		return e.Start == pos
	}
	return e.End == pos
}

// Oracle answers annotation queries. Implementations must be safe for
// concurrent use and must return results in a stable order.
type Oracle interface {
	// Genes lists the genes overlapping [start, end] on chrom.
	Genes(chrom string, start, end int) []*Gene
	// Annotate lists every transcript that covers pos.
	Annotate(chrom string, pos int) []Hit
}

// finish sorts the exons and transcripts of g, assigns missing exon ranks and
// picks a canonical transcript when none was flagged.
func (g *Gene) finish() {
	var canonical *Transcript
	for _, t := range g.Transcripts {
		t.Gene = g
		sort.Slice(t.Exons, func(i, j int) bool { return t.Exons[i].Start < t.Exons[j].Start })
		needRank := false
		for _, e := range t.Exons {
			if e.Rank <= 0 {
				needRank = true
			}
		}
		if needRank {
			n := len(t.Exons)
			for i := range t.Exons {
				if g.Strand == Reverse {
					t.Exons[i].Rank = n - i
				} else {
					t.Exons[i].Rank = i + 1
				}
			}
		}
		if t.Canonical {
			if canonical != nil {
				t.Canonical = false
				continue
			}
			canonical = t
		}
	}
	if canonical == nil {
		for _, t := range g.Transcripts {
			if canonical == nil || t.Length() > canonical.Length() ||
				(t.Length() == canonical.Length() && t.ID < canonical.ID) {
				canonical = t
			}
		}
		if canonical != nil {
			canonical.Canonical = true
		}
	}
	sort.SliceStable(g.Transcripts, func(i, j int) bool {
		ti, tj := g.Transcripts[i], g.Transcripts[j]
		if ti.Canonical != tj.Canonical {
			return ti.Canonical
		}
		return ti.ID < tj.ID
	})
}
