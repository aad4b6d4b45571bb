package annotation

import (
	"sort"

	"github.com/biogo/store/interval"
	"github.com/grailbio/base/errors"
)

// geneInterval is a gene stored in an interval tree. Ranges are half-open,
// [Start, End+1).
type geneInterval struct {
	gene *Gene
	uid  uintptr
}

func (iv geneInterval) Overlap(b interval.IntRange) bool {
	return iv.gene.End+1 > b.Start && iv.gene.Start < b.End
}

func (iv geneInterval) ID() uintptr { return iv.uid }

func (iv geneInterval) Range() interval.IntRange {
	return interval.IntRange{Start: iv.gene.Start, End: iv.gene.End + 1}
}

// query is a closed [start, end] interval.
type query struct{ start, end int }

func (q query) Overlap(b interval.IntRange) bool {
	return b.Start < q.end+1 && q.start < b.End
}

// Index is an Oracle backed by one interval tree per chromosome. It is
// immutable once built and safe for concurrent use.
type Index struct {
	genes  []*Gene
	trees  map[string]*interval.IntTree
	byID   map[string]*Gene
	byName map[string][]*Gene
}

var _ Oracle = (*Index)(nil)

// NewIndex builds an index over the given genes. Each gene must have a unique
// ID and Start <= End.
func NewIndex(genes []*Gene) (*Index, error) {
	x := &Index{
		trees:  map[string]*interval.IntTree{},
		byID:   map[string]*Gene{},
		byName: map[string][]*Gene{},
	}
	for _, g := range genes {
		if _, ok := x.byID[g.ID]; ok {
			return nil, errors.E(errors.Invalid, "annotation: duplicate gene", g.ID)
		}
		if g.Start > g.End || g.Start <= 0 {
			return nil, errors.E(errors.Invalid, "annotation: bad gene range", g.String())
		}
		g.finish()
		tree := x.trees[g.Chrom]
		if tree == nil {
			tree = &interval.IntTree{}
			x.trees[g.Chrom] = tree
		}
		if err := tree.Insert(geneInterval{gene: g, uid: uintptr(len(x.genes))}, true); err != nil {
			return nil, errors.E(err, "annotation: insert", g.ID)
		}
		x.genes = append(x.genes, g)
		x.byID[g.ID] = g
		x.byName[g.Name] = append(x.byName[g.Name], g)
	}
	for _, tree := range x.trees {
		tree.AdjustRanges()
	}
	return x, nil
}

// NumGenes returns the number of genes in the index.
func (x *Index) NumGenes() int { return len(x.genes) }

// GeneByID looks up a gene by its stable ID, e.g., "ENSG00000141510".
func (x *Index) GeneByID(id string) *Gene { return x.byID[id] }

// GenesByName looks up genes by symbol. A symbol may map to several genes.
func (x *Index) GenesByName(name string) []*Gene { return x.byName[name] }

// Genes implements Oracle. The result is sorted by gene start, then gene ID.
func (x *Index) Genes(chrom string, start, end int) []*Gene {
	tree := x.trees[chrom]
	if tree == nil {
		return nil
	}
	hits := tree.Get(query{start, end})
	if len(hits) == 0 {
		return nil
	}
	genes := make([]*Gene, len(hits))
	for i, h := range hits {
		genes[i] = h.(geneInterval).gene
	}
	sort.Slice(genes, func(i, j int) bool {
		if genes[i].Start != genes[j].Start {
			return genes[i].Start < genes[j].Start
		}
		return genes[i].ID < genes[j].ID
	})
	return genes
}

// Annotate implements Oracle.
func (x *Index) Annotate(chrom string, pos int) []Hit {
	var hits []Hit
	for _, g := range x.Genes(chrom, pos, pos) {
		for _, t := range g.Transcripts {
			region, rank, ok := t.Locate(pos)
			if !ok {
				continue
			}
			hits = append(hits, Hit{Gene: g, Transcript: t, Region: region, ExonRank: rank})
		}
	}
	return hits
}

// Region is a span of a chromosome covering one or more overlapping genes.
// Regions are the unit of work for alignment scans.
type Region struct {
	Chrom      string
	Start, End int
	Genes      []*Gene
}

// Regions merges overlapping (or touching, after padding) genes into
// non-overlapping regions. The result is sorted by chromosome, then start.
func (x *Index) Regions(padding int) []Region {
	genes := append([]*Gene(nil), x.genes...)
	sort.Slice(genes, func(i, j int) bool {
		if genes[i].Chrom != genes[j].Chrom {
			return genes[i].Chrom < genes[j].Chrom
		}
		if genes[i].Start != genes[j].Start {
			return genes[i].Start < genes[j].Start
		}
		return genes[i].ID < genes[j].ID
	})
	var regions []Region
	for _, g := range genes {
		start := g.Start - padding
		if start < 1 {
			start = 1
		}
		end := g.End + padding
		if n := len(regions); n > 0 {
			last := &regions[n-1]
			if last.Chrom == g.Chrom && start <= last.End+1 {
				if end > last.End {
					last.End = end
				}
				last.Genes = append(last.Genes, g)
				continue
			}
		}
		regions = append(regions, Region{Chrom: g.Chrom, Start: start, End: end, Genes: []*Gene{g}})
	}
	return regions
}
