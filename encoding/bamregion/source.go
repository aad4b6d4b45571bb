// Package bamregion reads read pairs from an indexed BAM file, one gene region
// at a time. It implements fusion.ReadSource.
package bamregion

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/file"
	"github.com/grailbio/isofusion/annotation"
	"github.com/grailbio/isofusion/fusion"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// Source reads an indexed BAM file. It is thread-safe: each iterator opens its
// own reader.
type Source struct {
	path   string
	header *sam.Header
	refs   map[string]*sam.Reference

	mu    sync.Mutex
	index *bam.Index

	// regions, if set, lists the regions that will be scanned, by chromosome
	// and sorted by start.
	regions map[string][]annotation.Region
}

var _ fusion.ReadSource = (*Source)(nil)

// Open opens path and its index. If indexPath is "", path + ".bai" is used.
func Open(ctx context.Context, path, indexPath string) (*Source, error) {
	if indexPath == "" {
		indexPath = path + ".bai"
	}
	s := &Source{path: path, refs: map[string]*sam.Reference{}}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, errors.Wrapf(err, "read header %s", path)
	}
	s.header = r.Header()
	if err := r.Close(); err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, errors.Wrapf(err, "close %s", path)
	}
	if err := in.Close(ctx); err != nil {
		return nil, errors.Wrapf(err, "close %s", path)
	}
	for _, ref := range s.header.Refs() {
		s.refs[ref.Name()] = ref
	}

	indexIn, err := file.Open(ctx, indexPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", indexPath)
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if s.index, err = bam.ReadIndex(indexIn.Reader(ctx)); err != nil {
		return nil, errors.Wrapf(err, "read index %s", indexPath)
	}
	vlog.VI(1).Infof("%s: %d references", path, len(s.header.Refs()))
	return s, nil
}

// Header returns the BAM header.
func (s *Source) Header() *sam.Header { return s.header }

// SetRegions tells the source which regions will be scanned. A pair whose
// reads start in two different regions is then returned by the region of the
// lower read, and a pair with one read outside every region by the region of
// the other read. Without SetRegions, such pairs are always returned by the
// region of the lower read.
func (s *Source) SetRegions(regions []annotation.Region) {
	s.regions = map[string][]annotation.Region{}
	for _, r := range regions {
		s.regions[r.Chrom] = append(s.regions[r.Chrom], r)
	}
	for _, rs := range s.regions {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
	}
}

// inRegions checks if the 0-based position pos falls in one of the regions
// set by SetRegions.
func (s *Source) inRegions(chrom string, pos int) bool {
	rs := s.regions[chrom]
	i := sort.Search(len(rs), func(i int) bool { return rs[i].End > pos })
	return i < len(rs) && rs[i].Start-1 <= pos
}

// cursor is a reader positioned at the first record that may overlap a range.
type cursor struct {
	in     file.File
	reader *bam.Reader
	refID  int
	// empty is set if the index has no records in the range.
	empty bool
}

// seek opens a cursor for the 0-based half-open range [beg, end) of chrom.
func (s *Source) seek(ctx context.Context, chrom string, beg, end int) (*cursor, error) {
	ref, ok := s.refs[chrom]
	if !ok {
		return &cursor{empty: true}, nil
	}
	s.mu.Lock()
	chunks, err := s.index.Chunks(ref, beg, end)
	s.mu.Unlock()
	// References without records have no index data.
	if err == index.ErrInvalid || err == index.ErrNoReference || (err == nil && len(chunks) == 0) {
		return &cursor{empty: true}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s: index lookup %s:%d-%d", s.path, chrom, beg, end)
	}
	c := &cursor{refID: ref.ID()}
	if c.in, err = file.Open(ctx, s.path); err != nil {
		return nil, errors.Wrapf(err, "open %s", s.path)
	}
	if c.reader, err = bam.NewReader(c.in.Reader(ctx), 1); err != nil {
		c.close(ctx) // nolint: errcheck
		return nil, errors.Wrapf(err, "open %s", s.path)
	}
	if err = c.reader.Seek(chunks[0].Begin); err != nil {
		c.close(ctx) // nolint: errcheck
		return nil, errors.Wrapf(err, "%s: seek", s.path)
	}
	return c, nil
}

// next returns the next record of the cursor's reference that starts before
// end, or nil at the end of the range.
func (c *cursor) next(end int) (*sam.Record, error) {
	if c.empty {
		return nil, nil
	}
	rec, err := c.reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Ref == nil || rec.Ref.ID() != c.refID || rec.Pos >= end {
		return nil, nil
	}
	return rec, nil
}

func (c *cursor) close(ctx context.Context) error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
		c.reader = nil
	}
	if c.in != nil {
		if e := c.in.Close(ctx); e != nil && err == nil {
			err = e
		}
		c.in = nil
	}
	return err
}

func isPrimary(rec *sam.Record) bool {
	return rec.Flags&(sam.Secondary|sam.Supplementary|sam.Unmapped) == 0
}

// Depth implements fusion.ReadSource. pos is 1-based.
func (s *Source) Depth(ctx context.Context, chrom string, pos int) (n int, err error) {
	c, err := s.seek(ctx, chrom, pos-1, pos)
	if err != nil {
		return 0, err
	}
	defer func() {
		if e := c.close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	for {
		rec, err := c.next(pos)
		if err != nil {
			return 0, errors.Wrapf(err, "%s: depth at %s:%d", s.path, chrom, pos)
		}
		if rec == nil {
			return n, nil
		}
		if !isPrimary(rec) || rec.End() < pos {
			continue
		}
		if seg, _ := segmentFromCigar(chrom, rec.Pos, rec.Cigar, false); seg.Covers(pos) {
			n++
		}
	}
}

// NewIterator implements fusion.ReadSource.
func (s *Source) NewIterator(ctx context.Context, r annotation.Region) fusion.FragmentIterator {
	it := &regionIterator{
		ctx:     ctx,
		src:     s,
		chrom:   r.Chrom,
		start:   r.Start - 1,
		end:     r.End,
		pending: map[string]*sam.Record{},
	}
	it.cur, it.err = s.seek(ctx, r.Chrom, it.start, it.end)
	return it
}
