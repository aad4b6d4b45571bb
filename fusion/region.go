package fusion

import (
	"context"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/isofusion/annotation"
	"golang.org/x/sync/errgroup"
)

// FragmentIterator yields the fragments of one region. Each Fragment returned
// is newly allocated and owned by the caller.
type FragmentIterator interface {
	Scan() bool
	Fragment() *Fragment
	Err() error
	// Dropped counts the input records skipped because they could not be
	// converted to a fragment. Such records never cause Err.
	Dropped() int
	Close() error
}

// ReadSource reads aligned fragments. Implementations must allow concurrent
// iterators.
type ReadSource interface {
	// NewIterator returns the fragments with a primary alignment starting in the
	// region. Fragments whose mates start in different regions are returned by
	// exactly one of the regions.
	NewIterator(ctx context.Context, region annotation.Region) FragmentIterator
	// Depth counts the primary alignments covering pos with an aligned base.
	Depth(ctx context.Context, chrom string, pos int) (int, error)
}

// Pipeline classifies the fragments of a set of gene regions and feeds the
// chimeric ones to an Aggregator.
type Pipeline struct {
	opts       Opts
	source     ReadSource
	classifier *Classifier
	agg        *Aggregator
	fragOut    *FragmentWriter
}

// NewPipeline creates a pipeline.
func NewPipeline(source ReadSource, oracle annotation.Oracle, agg *Aggregator, opts Opts) *Pipeline {
	return &Pipeline{
		opts:       opts,
		source:     source,
		classifier: NewClassifier(oracle, opts),
		agg:        agg,
	}
}

// SetFragmentWriter makes the pipeline write every chimeric fragment to w.
func (p *Pipeline) SetFragmentWriter(w *FragmentWriter) { p.fragOut = w }

func (p *Pipeline) parallelism(n int) int {
	par := p.opts.Parallelism
	if par <= 0 {
		par = runtime.NumCPU()
	}
	if par > n {
		par = n
	}
	return par
}

// Run scans the regions in parallel. Each worker takes every
// parallelism-th region and owns one DuplicateCache.
func (p *Pipeline) Run(ctx context.Context, regions []annotation.Region) (Stats, error) {
	if len(regions) == 0 {
		return Stats{}, nil
	}
	parallelism := p.parallelism(len(regions))
	stats := make([]Stats, parallelism)
	err := traverse.Each(parallelism, func(job int) error {
		dups := NewDuplicateCache()
		for i := job; i < len(regions); i += parallelism {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.processRegion(ctx, regions[i], dups, &stats[job]); err != nil {
				return err
			}
		}
		return nil
	})
	var total Stats
	for _, s := range stats {
		total = total.Merge(s)
	}
	return total, err
}

// processRegion reads one region. A malformed record or a classification error
// drops the fragment; an I/O or aggregation error aborts the scan.
func (p *Pipeline) processRegion(ctx context.Context, r annotation.Region, dups *DuplicateCache, stats *Stats) error {
	dups.Reset()
	stats.Regions++
	it := p.source.NewIterator(ctx, r)
	n := 0
	for it.Scan() {
		if p.opts.ReadCountLimit > 0 && n >= p.opts.ReadCountLimit {
			log.Printf("region %s:%d-%d (%d genes): read count limit %d reached, skipping the rest",
				r.Chrom, r.Start, r.End, len(r.Genes), p.opts.ReadCountLimit)
			stats.ReadLimitedRegions++
			break
		}
		n++
		f := it.Fragment()
		stats.Fragments++
		if p.opts.DropDuplicates && (f.Duplicate || dups.IsDuplicate(f)) {
			stats.Duplicates++
			continue
		}
		ev, err := p.classifier.Classify(f)
		if err != nil {
			log.Error.Printf("region %s:%d-%d: %v", r.Chrom, r.Start, r.End, err)
			stats.Errors++
			continue
		}
		stats.record(&ev)
		if ev.ReadType != Chimeric {
			continue
		}
		if p.fragOut != nil {
			if err := p.fragOut.Write(&ev); err != nil {
				it.Close() // nolint: errcheck
				return err
			}
		}
		if _, err := p.agg.AddEvidence(&ev); err != nil {
			it.Close() // nolint: errcheck
			return err
		}
	}
	stats.Malformed += it.Dropped()
	e := errors.Once{}
	e.Set(it.Err())
	e.Set(it.Close())
	if err := e.Err(); err != nil {
		return errors.E(err, "read", r.Chrom)
	}
	if log.At(log.Debug) {
		log.Debug.Printf("region %s:%d-%d: %d fragments", r.Chrom, r.Start, r.End, n)
	}
	return nil
}

// RecordJunctionDepth sets the read depth at both anchors of every candidate.
func RecordJunctionDepth(ctx context.Context, source ReadSource, candidates []*FusionCandidate, parallelism int) error {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	type job struct {
		c    *FusionCandidate
		side int
	}
	eg, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job, parallelism)
	eg.Go(func() error {
		defer close(jobs)
		for _, c := range candidates {
			for side := range c.Key.Anchors {
				select {
				case jobs <- job{c, side}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})
	for i := 0; i < parallelism; i++ {
		eg.Go(func() error {
			for j := range jobs {
				a := j.c.Key.Anchors[j.side]
				depth, err := source.Depth(ctx, a.Chrom, a.Pos)
				if err != nil {
					return errors.E(err, "depth", a.String())
				}
				j.c.SetJunctionDepth(j.side, depth)
			}
			return nil
		})
	}
	return eg.Wait()
}
