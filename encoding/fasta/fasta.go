// Package fasta reads reference sequences from FASTA files, either fully into
// memory or through a faidx index (http://www.htslib.org/doc/faidx.html).
//
// A sequence name is the text after '>' up to the first space, so
// ">chr1 primary assembly" names "chr1".
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// Fasta is a set of named sequences.
type Fasta interface {
	// Get returns the bases of seqName in the 0-based half-open range
	// [start, end). Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of seqName.
	Len(seqName string) (uint64, error)

	// SeqNames lists the sequences in file order.
	SeqNames() []string
}

type fasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all sequences in r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &fasta{seqs: map[string]string{}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<30)
	var (
		name string
		seq  strings.Builder
	)
	add := func() {
		if name == "" {
			return
		}
		f.seqs[name] = seq.String()
		f.seqNames = append(f.seqNames, name)
		seq.Reset()
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if line[0] == '>' {
			add()
			name = strings.Split(line[1:], " ")[0]
			if name == "" {
				return nil, errors.E(errors.Invalid, "fasta: empty sequence name")
			}
			continue
		}
		if name == "" {
			return nil, errors.E(errors.Invalid, "fasta: bases before the first sequence name")
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "fasta: read")
	}
	add()
	return f, nil
}

func checkRange(seqName string, start, end, length uint64) error {
	if end <= start {
		return errors.E(errors.Invalid, "fasta: start must be less than end", seqName)
	}
	if end > length {
		return errors.E(errors.Invalid, "fasta: range past the end of", seqName)
	}
	return nil
}

func (f *fasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.E(errors.NotExist, "fasta: sequence not found:", seqName)
	}
	if err := checkRange(seqName, start, end, uint64(len(s))); err != nil {
		return "", err
	}
	return s[start:end], nil
}

func (f *fasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.E(errors.NotExist, "fasta: sequence not found:", seqName)
	}
	return uint64(len(s)), nil
}

func (f *fasta) SeqNames() []string { return f.seqNames }
