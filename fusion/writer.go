package fusion

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/tsv"
)

var candidateHeader = []string{
	"FusionId", "Valid",
	"GeneIdUp", "GeneNameUp", "ChrUp", "PosUp", "OrientUp", "StrandUp", "JuncTypeUp",
	"GeneIdDown", "GeneNameDown", "ChrDown", "PosDown", "OrientDown", "StrandDown", "JuncTypeDown",
	"SVType", "TotalFragments", "SplitFrags", "RealignedFrags", "DiscordantFrags",
	"JuncDepthUp", "JuncDepthDown", "TransDataUp", "TransDataDown",
	"OtherGenesUp", "OtherGenesDown", "RelatedFusions",
}

// FormatCandidateID returns the external name of a candidate, "Id_<n>".
func FormatCandidateID(id CandidateID) string { return "Id_" + strconv.Itoa(int(id)) }

func noneIfEmpty(s string) string {
	if s == "" {
		return "NONE"
	}
	return s
}

// WriteCandidates writes one TSV row per candidate, with a header. Fields
// without a value are written as "NONE"; the strand of a side without a gene
// is "0".
func WriteCandidates(w io.Writer, candidates []*FusionCandidate) error {
	out := tsv.NewWriter(w)
	for _, h := range candidateHeader {
		out.WriteString(h)
	}
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, c := range candidates {
		out.WriteString(FormatCandidateID(c.ID))
		out.WriteString(strconv.FormatBool(c.IsValid()))
		for _, s := range []Stream{Upstream, Downstream} {
			a := c.Anchor(s)
			genes := c.Genes(s)
			if len(genes) > 0 {
				out.WriteString(genes[0].Gene.ID)
				out.WriteString(genes[0].Gene.Name)
			} else {
				out.WriteString("NONE")
				out.WriteString("NONE")
			}
			out.WriteString(a.Chrom)
			out.WriteInt64(int64(a.Pos))
			out.WriteString(a.Orient.String())
			if len(genes) > 0 {
				out.WriteString(strconv.Itoa(int(genes[0].Gene.Strand)))
			} else {
				out.WriteString("0")
			}
			out.WriteString(c.JunctionType(s).String())
		}
		out.WriteString(c.SVType().String())
		out.WriteInt64(int64(c.TotalFragments()))
		out.WriteInt64(int64(c.FragmentCount(MatchedJunction)))
		out.WriteInt64(int64(c.FragmentCount(Realigned)))
		out.WriteInt64(int64(c.FragmentCount(Discordant)))
		out.WriteInt64(int64(c.JunctionDepth(Upstream)))
		out.WriteInt64(int64(c.JunctionDepth(Downstream)))
		out.WriteString(formatTranscriptMatches(c.TransExonRefs(Upstream)))
		out.WriteString(formatTranscriptMatches(c.TransExonRefs(Downstream)))
		for _, s := range []Stream{Upstream, Downstream} {
			var others []string
			for i, g := range c.Genes(s) {
				if i > 0 {
					others = append(others, g.Gene.Name)
				}
			}
			out.WriteString(noneIfEmpty(strings.Join(others, ";")))
		}
		var related []string
		for _, id := range c.Related() {
			related = append(related, FormatCandidateID(id))
		}
		out.WriteString(noneIfEmpty(strings.Join(related, ";")))
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}

// FragmentWriter writes one TSV line per chimeric fragment. It is thread-safe.
type FragmentWriter struct {
	mu  sync.Mutex
	out *tsv.Writer
}

// NewFragmentWriter creates a writer and emits the header line.
func NewFragmentWriter(w io.Writer) (*FragmentWriter, error) {
	fw := &FragmentWriter{out: tsv.NewWriter(w)}
	for _, h := range []string{
		"ReadId", "Type", "ChrStart", "PosStart", "OrientStart", "JuncTypeStart",
		"ChrEnd", "PosEnd", "OrientEnd", "JuncTypeEnd", "TransDataStart", "TransDataEnd",
	} {
		fw.out.WriteString(h)
	}
	if err := fw.out.EndLine(); err != nil {
		return nil, err
	}
	return fw, nil
}

// Write writes one fragment.
func (fw *FragmentWriter) Write(ev *FragmentEvidence) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.out.WriteString(ev.Name)
	fw.out.WriteString(ev.Type.String())
	for side := range ev.Anchors {
		a := ev.Anchors[side]
		fw.out.WriteString(a.Chrom)
		fw.out.WriteInt64(int64(a.Pos))
		fw.out.WriteString(a.Orient.String())
		fw.out.WriteString(ev.JunctionTypes[side].String())
	}
	fw.out.WriteString(formatTranscriptMatches(ev.TransMatches[SideStart]))
	fw.out.WriteString(formatTranscriptMatches(ev.TransMatches[SideEnd]))
	return fw.out.EndLine()
}

// Flush flushes buffered lines.
func (fw *FragmentWriter) Flush() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.out.Flush()
}
