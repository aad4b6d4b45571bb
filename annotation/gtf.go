package annotation

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// gtfRecord is one line of a GTF file.
type gtfRecord struct {
	Chrom   string
	Source  string
	Feature string
	Start   int
	Stop    int
	Score   string // unused floating point value, but may be "."
	Strand  string
	Frame   string
	Fields  string
}

// canonicalTag marks the canonical transcript of a gene in Ensembl and GENCODE
// GTFs.
const canonicalTag = "Ensembl_canonical"

// gtfAttrs holds the parsed attribute column of a GTF line.
type gtfAttrs struct {
	values map[string]string
	tags   []string
}

// parse parses the attribute column, e.g.,
//
//	gene_id "ENSG1.1"; transcript_id "ENST1.1"; tag "basic"; tag "Ensembl_canonical";
//
// Repeated keys other than "tag" keep the last value.
func (a *gtfAttrs) parse(info string) {
	for k := range a.values {
		delete(a.values, k)
	}
	a.tags = a.tags[:0]
	for _, field := range strings.Split(strings.TrimSpace(info), ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		i := strings.IndexByte(field, ' ')
		if i < 0 {
			continue
		}
		key, value := field[:i], strings.Trim(strings.TrimSpace(field[i+1:]), "\"")
		if key == "tag" {
			a.tags = append(a.tags, value)
			continue
		}
		a.values[key] = value
	}
}

func (a *gtfAttrs) hasTag(tag string) bool {
	for _, t := range a.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ReadGTF reads a GTF file (optionally compressed) and builds an Index from
// its gene, transcript and exon lines. Other features are ignored.
func ReadGTF(ctx context.Context, path string) (_ *Index, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	genes, err := parseGTF(r)
	if err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("%s: read %d genes", path, len(genes))
	return NewIndex(genes)
}

func parseGTF(r io.Reader) ([]*Gene, error) {
	scanner := tsv.NewReader(bufio.NewReaderSize(r, 64<<10))
	scanner.Comment = '#'
	scanner.LazyQuotes = true
	var (
		line        gtfRecord
		attrs       = gtfAttrs{values: map[string]string{}}
		genes       []*Gene
		geneByID    = map[string]*Gene{}
		transByID   = map[string]*Transcript{}
		nTranscript int
		nExon       int
	)
	for {
		if err := scanner.Read(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		switch line.Feature {
		case "gene", "transcript", "exon":
		default:
			continue
		}
		attrs.parse(line.Fields)
		geneID := attrs.values["gene_id"]
		if geneID == "" {
			return nil, errors.E(errors.Invalid, "gtf: missing gene_id", line.Fields)
		}
		switch line.Feature {
		case "gene":
			strand, err := ParseStrand(line.Strand)
			if err != nil {
				return nil, err
			}
			if _, ok := geneByID[geneID]; ok {
				return nil, errors.E(errors.Invalid, "gtf: duplicate gene", geneID)
			}
			name := attrs.values["gene_name"]
			if name == "" {
				name = geneID
			}
			g := &Gene{
				ID:     geneID,
				Name:   name,
				Chrom:  line.Chrom,
				Strand: strand,
				Start:  line.Start,
				End:    line.Stop,
			}
			genes = append(genes, g)
			geneByID[geneID] = g
		case "transcript":
			g := geneByID[geneID]
			if g == nil {
				return nil, errors.E(errors.Invalid, "gtf: transcript before its gene", geneID)
			}
			id := attrs.values["transcript_id"]
			name := attrs.values["transcript_name"]
			if name == "" {
				name = id
			}
			biotype := attrs.values["transcript_type"]
			if biotype == "" {
				biotype = attrs.values["transcript_biotype"]
			}
			t := &Transcript{
				ID:        id,
				Name:      name,
				Gene:      g,
				Start:     line.Start,
				End:       line.Stop,
				Biotype:   biotype,
				Canonical: attrs.hasTag(canonicalTag),
			}
			g.Transcripts = append(g.Transcripts, t)
			transByID[id] = t
			nTranscript++
		case "exon":
			t := transByID[attrs.values["transcript_id"]]
			if t == nil {
				return nil, errors.E(errors.Invalid, "gtf: exon before its transcript", attrs.values["transcript_id"])
			}
			rank := 0
			if s := attrs.values["exon_number"]; s != "" {
				var err error
				if rank, err = strconv.Atoi(s); err != nil {
					return nil, errors.E(errors.Invalid, err, "gtf: exon_number", s)
				}
			}
			t.Exons = append(t.Exons, Exon{Rank: rank, Start: line.Start, End: line.Stop})
			nExon++
		}
	}
	log.Debug.Printf("gtf: %d genes, %d transcripts, %d exons", len(genes), nTranscript, nExon)
	return genes, nil
}
