package fasta

import (
	"context"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/isofusion/fusion"
)

// Flanks supplies the reference bases next to junction anchors.
type Flanks struct {
	fa Fasta
	// in is the open FASTA file of an indexed Fasta.
	in file.File
}

var _ fusion.FlankSource = (*Flanks)(nil)

// NewFlanks wraps fa.
func NewFlanks(fa Fasta) *Flanks { return &Flanks{fa: fa} }

// OpenFlanks opens the FASTA file at path for random access through its index
// path + ".fai". Without an index, the sequences are read into memory.
func OpenFlanks(ctx context.Context, path string) (*Flanks, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "fasta: open", path)
	}
	index, err := file.Open(ctx, path+".fai")
	if err != nil {
		log.Printf("%s: no index (%v), reading the sequences into memory", path, err)
		fa, err := New(in.Reader(ctx))
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return nil, errors.E(err, path)
		}
		return NewFlanks(fa), nil
	}
	defer index.Close(ctx) // nolint: errcheck
	fa, err := NewIndexed(in.Reader(ctx), index.Reader(ctx))
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, errors.E(err, path+".fai")
	}
	return &Flanks{fa: fa, in: in}, nil
}

// Flank implements fusion.FlankSource. Near the sequence ends fewer than n
// bases are returned.
func (f *Flanks) Flank(a fusion.Anchor, n int) (string, error) {
	length, err := f.fa.Len(a.Chrom)
	if err != nil {
		return "", err
	}
	if a.Pos <= 0 || uint64(a.Pos) > length {
		return "", errors.E(errors.Invalid, "fasta: anchor outside the sequence:", a.String())
	}
	// [start, end) is 0-based.
	var start, end int
	if a.Orient == fusion.Forward {
		start, end = a.Pos-n, a.Pos
	} else {
		start, end = a.Pos-1, a.Pos-1+n
	}
	if start < 0 {
		start = 0
	}
	if uint64(end) > length {
		end = int(length)
	}
	if end <= start {
		return "", nil
	}
	bases, err := f.fa.Get(a.Chrom, uint64(start), uint64(end))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(bases), nil
}

// Close releases the FASTA file.
func (f *Flanks) Close(ctx context.Context) error {
	if f.in == nil {
		return nil
	}
	err := f.in.Close(ctx)
	f.in = nil
	return err
}
