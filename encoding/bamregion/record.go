package bamregion

import (
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/isofusion/biosimd"
	"github.com/grailbio/isofusion/fusion"
	"github.com/pkg/errors"
)

var (
	saTag = sam.NewTag("SA")
	mcTag = sam.NewTag("MC")
)

// segmentFromCigar converts an alignment at 0-based position pos into a
// MappedSegment. Deletions extend the current block; reference skips start a
// new one. hardClipped is set if the CIGAR has an H operation.
func segmentFromCigar(chrom string, pos int, cigar sam.Cigar, reverse bool) (seg fusion.MappedSegment, hardClipped bool) {
	seg = fusion.MappedSegment{Chrom: chrom, Reverse: reverse}
	refPos := pos + 1
	aligned, inBlock := false, false
	for _, op := range cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if inBlock {
				seg.Blocks[len(seg.Blocks)-1].End = refPos + n - 1
			} else {
				seg.Blocks = append(seg.Blocks, fusion.Block{Start: refPos, End: refPos + n - 1})
				inBlock = true
			}
			refPos += n
			aligned = true
		case sam.CigarDeletion:
			if inBlock {
				seg.Blocks[len(seg.Blocks)-1].End = refPos + n - 1
			}
			refPos += n
		case sam.CigarSkipped:
			inBlock = false
			refPos += n
		case sam.CigarHardClipped:
			hardClipped = true
			fallthrough
		case sam.CigarSoftClipped:
			if aligned {
				seg.SoftClipRight += n
			} else {
				seg.SoftClipLeft += n
			}
		}
	}
	if len(seg.Blocks) > 0 {
		seg.Start = seg.Blocks[0].Start
		seg.End = seg.Blocks[len(seg.Blocks)-1].End
	}
	return seg, hardClipped
}

// primarySegment converts a mapped record.
func primarySegment(rec *sam.Record) fusion.MappedSegment {
	seg, hard := segmentFromCigar(rec.Ref.Name(), rec.Pos, rec.Cigar, rec.Flags&sam.Reverse != 0)
	if !hard && rec.Seq.Length > 0 {
		seg.Bases = string(rec.Seq.Expand())
	}
	return seg
}

// supplementarySegments parses the SA tag of a primary record. The tag is a
// list of "chrom,pos,strand,CIGAR,mapQ,NM;" entries with 1-based positions.
// primary provides the bases, which are copied when the supplementary CIGAR
// covers the whole read.
func supplementarySegments(rec *sam.Record, primary *fusion.MappedSegment) ([]fusion.MappedSegment, error) {
	aux := rec.AuxFields.Get(saTag)
	if aux == nil {
		return nil, nil
	}
	val, ok := aux.Value().(string)
	if !ok {
		return nil, errors.Errorf("%s: SA tag is not a string: %v", rec.Name, aux)
	}
	var segs []fusion.MappedSegment
	for _, entry := range strings.Split(val, ";") {
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ",")
		if len(fields) < 4 {
			return nil, errors.Errorf("%s: malformed SA entry %q", rec.Name, entry)
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil || pos <= 0 {
			return nil, errors.Errorf("%s: bad SA position in %q", rec.Name, entry)
		}
		if fields[2] != "+" && fields[2] != "-" {
			return nil, errors.Errorf("%s: bad SA strand in %q", rec.Name, entry)
		}
		cigar, err := sam.ParseCigar([]byte(fields[3]))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: SA entry %q", rec.Name, entry)
		}
		seg, hard := segmentFromCigar(fields[0], pos-1, cigar, fields[2] == "-")
		seg.Supplementary = true
		if _, readLen := cigar.Lengths(); !hard && readLen == len(primary.Bases) {
			seg.Bases = primary.Bases
			if seg.Reverse != primary.Reverse {
				bases := []byte(primary.Bases)
				biosimd.ReverseComp8Inplace(bases)
				seg.Bases = string(bases)
			}
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// inferMate builds the segment of the mate of rec from the mate fields and the
// MC (mate CIGAR) tag. Without a usable MC tag, the mate is assumed to align
// without gaps over the read length of rec.
func inferMate(rec *sam.Record) fusion.MappedSegment {
	reverse := rec.Flags&sam.MateReverse != 0
	if aux := rec.AuxFields.Get(mcTag); aux != nil {
		if s, ok := aux.Value().(string); ok {
			if cigar, err := sam.ParseCigar([]byte(s)); err == nil {
				if seg, _ := segmentFromCigar(rec.MateRef.Name(), rec.MatePos, cigar, reverse); seg.Valid() {
					return seg
				}
			}
		}
	}
	_, n := rec.Cigar.Lengths()
	if n <= 0 {
		n = 1
	}
	return fusion.NewSegment(rec.MateRef.Name(), rec.MatePos+1, rec.MatePos+n, reverse)
}

// readEnd returns the read-end index of rec in a fragment.
func readEnd(rec *sam.Record) int {
	if rec.Flags&sam.Read2 != 0 {
		return 1
	}
	return 0
}

// endSegments lists the primary segment of rec followed by its supplementary
// segments.
func endSegments(rec *sam.Record) ([]fusion.MappedSegment, error) {
	p := primarySegment(rec)
	supp, err := supplementarySegments(rec, &p)
	if err != nil {
		return nil, err
	}
	return append([]fusion.MappedSegment{p}, supp...), nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// newFragment builds a fragment from the primary records of a pair. mate may
// be nil, in which case inferred describes the mate of rec, or is nil if the
// mate is unknown.
func newFragment(rec, mate *sam.Record, inferred *fusion.MappedSegment) (*fusion.Fragment, error) {
	f := &fusion.Fragment{
		Name:       rec.Name,
		Duplicate:  rec.Flags&sam.Duplicate != 0,
		InsertSize: abs(rec.TempLen),
	}
	i := readEnd(rec)
	segs, err := endSegments(rec)
	if err != nil {
		return nil, err
	}
	f.Ends[i] = segs
	switch {
	case mate != nil:
		if segs, err = endSegments(mate); err != nil {
			return nil, err
		}
		if readEnd(mate) == i {
			return nil, errors.Errorf("%s: both records are read %d", rec.Name, i+1)
		}
		f.Ends[1-i] = segs
		f.Duplicate = f.Duplicate || mate.Flags&sam.Duplicate != 0
	case inferred != nil:
		f.Ends[1-i] = []fusion.MappedSegment{*inferred}
	}
	return f, nil
}
