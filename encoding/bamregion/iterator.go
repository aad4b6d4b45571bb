package bamregion

import (
	"context"
	"sort"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/isofusion/fusion"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// regionIterator pairs the primary records that start in one region.
type regionIterator struct {
	ctx        context.Context
	src        *Source
	chrom      string
	start, end int // 0-based, half-open
	cur        *cursor

	// pending holds records whose mate starts later in the region.
	pending map[string]*sam.Record
	queue   []*fusion.Fragment
	frag    *fusion.Fragment
	done    bool
	// dropped counts the records that could not be converted to a fragment.
	dropped int
	err     error
}

func (it *regionIterator) Scan() bool {
	for {
		if len(it.queue) > 0 {
			it.frag, it.queue = it.queue[0], it.queue[1:]
			return true
		}
		if it.err != nil || it.done {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		rec, err := it.cur.next(it.end)
		if err != nil {
			it.err = errors.Wrapf(err, "%s: read %s:%d-%d", it.src.path, it.chrom, it.start+1, it.end)
			return false
		}
		if rec == nil {
			it.finish()
			continue
		}
		if rec.Pos < it.start || !isPrimary(rec) {
			continue
		}
		it.add(rec)
	}
}

// mateInRegion checks if the mate of rec starts in the region.
func (it *regionIterator) mateInRegion(rec *sam.Record) bool {
	return rec.MateRef != nil && rec.MateRef.ID() == rec.Ref.ID() &&
		rec.MatePos >= it.start && rec.MatePos < it.end
}

// emitsDistant checks if rec, whose mate starts outside the region, is the
// record that reports the pair.
func (it *regionIterator) emitsDistant(rec *sam.Record) bool {
	if it.src.regions != nil && !it.src.inRegions(rec.MateRef.Name(), rec.MatePos) {
		return true
	}
	if rec.MateRef.ID() != rec.Ref.ID() {
		return rec.Ref.ID() < rec.MateRef.ID()
	}
	return rec.Pos < rec.MatePos
}

func (it *regionIterator) add(rec *sam.Record) {
	if rec.Flags&sam.Paired == 0 || rec.Flags&sam.MateUnmapped != 0 || rec.MateRef == nil {
		it.push(rec, nil, nil)
		return
	}
	if it.mateInRegion(rec) {
		if mate, ok := it.pending[rec.Name]; ok {
			delete(it.pending, rec.Name)
			it.push(rec, mate, nil)
			return
		}
		it.pending[rec.Name] = rec
		return
	}
	if !it.emitsDistant(rec) {
		return
	}
	mate := inferMate(rec)
	it.push(rec, nil, &mate)
}

// push queues the fragment of rec. A record that cannot be converted is
// logged and dropped; it never stops the region.
func (it *regionIterator) push(rec, mate *sam.Record, inferred *fusion.MappedSegment) {
	f, err := newFragment(rec, mate, inferred)
	if err != nil {
		it.dropped++
		vlog.Errorf("%s:%d-%d: dropping %s: %v", it.chrom, it.start+1, it.end, rec.Name, err)
		return
	}
	it.queue = append(it.queue, f)
}

// finish flushes the records whose mate was expected in the region but not
// found, with their mates inferred from the mate fields.
func (it *regionIterator) finish() {
	it.done = true
	if len(it.pending) == 0 {
		return
	}
	vlog.VI(1).Infof("%s:%d-%d: %d records without a mate in the region", it.chrom, it.start+1, it.end, len(it.pending))
	names := make([]string, 0, len(it.pending))
	for name := range it.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := it.pending[name]
		mate := inferMate(rec)
		it.push(rec, nil, &mate)
	}
	it.pending = nil
}

func (it *regionIterator) Fragment() *fusion.Fragment { return it.frag }

func (it *regionIterator) Err() error { return it.err }

func (it *regionIterator) Dropped() int { return it.dropped }

func (it *regionIterator) Close() error {
	if it.cur == nil {
		return nil
	}
	err := it.cur.close(it.ctx)
	it.cur = nil
	return err
}
