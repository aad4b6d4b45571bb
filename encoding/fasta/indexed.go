package fasta

import (
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// faiEntry is one line of a .fai file.
type faiEntry struct {
	Name      string
	Length    int64
	Offset    int64
	LineBases int64
	LineWidth int64
}

type indexedFasta struct {
	entries  map[string]faiEntry
	seqNames []string

	mu  sync.Mutex
	in  io.ReadSeeker
	buf []byte
}

// readIndex parses a .fai file.
func readIndex(r io.Reader) ([]faiEntry, error) {
	var (
		reader  = tsv.NewReader(r)
		entries []faiEntry
	)
	for {
		var e faiEntry
		if err := reader.Read(&e); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return nil, errors.E(errors.Invalid, err, "fasta: parse index")
		}
		if e.Length < 0 || e.Offset < 0 || (e.Length > 0 && (e.LineBases <= 0 || e.LineWidth < e.LineBases)) {
			return nil, errors.E(errors.Invalid, "fasta: bad line geometry in index entry", e.Name)
		}
		entries = append(entries, e)
	}
}

// NewIndexed returns a Fasta that reads bases from in on demand, using the
// faidx index read from index.
func NewIndexed(in io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, err := readIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{entries: map[string]faiEntry{}, in: in}
	for _, e := range entries {
		f.entries[e.Name] = e
		f.seqNames = append(f.seqNames, e.Name)
	}
	return f, nil
}

func (f *indexedFasta) Len(seqName string) (uint64, error) {
	e, ok := f.entries[seqName]
	if !ok {
		return 0, errors.E(errors.NotExist, "fasta: sequence not found in index:", seqName)
	}
	return uint64(e.Length), nil
}

func (f *indexedFasta) SeqNames() []string { return f.seqNames }

// fileOffset returns the byte offset of base pos of e.
func (e faiEntry) fileOffset(pos int64) int64 {
	return e.Offset + pos/e.LineBases*e.LineWidth + pos%e.LineBases
}

func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	e, ok := f.entries[seqName]
	if !ok {
		return "", errors.E(errors.NotExist, "fasta: sequence not found in index:", seqName)
	}
	if err := checkRange(seqName, start, end, uint64(e.Length)); err != nil {
		return "", err
	}
	first, last := e.fileOffset(int64(start)), e.fileOffset(int64(end)-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.in.Seek(first, io.SeekStart); err != nil {
		return "", errors.E(err, "fasta: seek", seqName)
	}
	n := int(last - first + 1)
	if cap(f.buf) < n {
		f.buf = make([]byte, n)
	}
	f.buf = f.buf[:n]
	if _, err := io.ReadFull(f.in, f.buf); err != nil {
		return "", errors.E(errors.Integrity, err, "fasta: short read, bad index?", seqName)
	}
	// Drop the line terminators, which start LineBases bytes into each line.
	result := make([]byte, 0, end-start)
	col := (first - e.Offset) % e.LineWidth
	for _, b := range f.buf {
		if col < e.LineBases {
			result = append(result, b)
		}
		if col++; col == e.LineWidth {
			col = 0
		}
	}
	return string(result), nil
}
