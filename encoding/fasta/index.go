package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// buildIndex scans a FASTA file and computes its faidx entries. Every line
// of a sequence except the last must have the same width.
func buildIndex(in io.Reader) ([]faiEntry, error) {
	var (
		r       = bufio.NewReader(in)
		entries []faiEntry
		cur     *faiEntry
		off     int64
		short   bool // the previous line of cur was shorter than LineBases
	)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			off += int64(len(line))
			bases := bytes.TrimRight(line, "\r\n")
			switch {
			case len(bases) > 0 && bases[0] == '>':
				name := string(bytes.SplitN(bases[1:], []byte(" "), 2)[0])
				if name == "" {
					return nil, errors.E(errors.Invalid, "fasta: empty sequence name")
				}
				entries = append(entries, faiEntry{Name: name, Offset: off})
				cur, short = &entries[len(entries)-1], false
			case len(bases) == 0:
			case cur == nil:
				return nil, errors.E(errors.Invalid, "fasta: bases before the first sequence name")
			default:
				if cur.LineBases == 0 {
					cur.LineBases, cur.LineWidth = int64(len(bases)), int64(len(line))
				} else if short || int64(len(bases)) > cur.LineBases {
					return nil, errors.E(errors.Invalid, "fasta: uneven line lengths in", cur.Name)
				}
				short = int64(len(bases)) < cur.LineBases
				cur.Length += int64(len(bases))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(err, "fasta: index")
		}
	}
	if off == 0 {
		return nil, errors.E(errors.Invalid, "fasta: empty file")
	}
	return entries, nil
}

// GenerateIndex writes the faidx index of the FASTA data in in to out, in the
// format of "samtools faidx".
func GenerateIndex(out io.Writer, in io.Reader) error {
	entries, err := buildIndex(in)
	if err != nil {
		return err
	}
	w := tsv.NewWriter(out)
	for _, e := range entries {
		w.WriteString(e.Name)
		w.WriteInt64(e.Length)
		w.WriteInt64(e.Offset)
		w.WriteInt64(e.LineBases)
		w.WriteInt64(e.LineWidth)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
