package main

// bio-isofusion finds fusion junctions in RNA alignments.
//
// The gene regions of a GTF annotation are scanned in an indexed BAM file.
// Split reads and discordant pairs are classified against the annotation and
// aggregated into one fusion candidate per junction, which are written as a
// TSV file.
//
// Example 1: scan a BAM file.
//
//    bio-isofusion -gtf=genes.gtf.gz -bam=sample.bam -ref=hg38.fa -output=fusions.tsv
//
// Example 2: also dump the evidence, then rebuild candidates from it without
// rescanning the BAM file (junction depths are then left at zero).
//
//    bio-isofusion -gtf=genes.gtf.gz -bam=sample.bam -rio-output=sample.rio -output=fusions.tsv
//    bio-isofusion -gtf=genes.gtf.gz -rio-input=sample.rio -output=fusions.tsv
//
// Example 3: match RNA fusion calls with structural variant breakends.
//
//    bio-isofusion -gtf=genes.gtf.gz -rna-calls=calls.tsv -breakends=sv.tsv -rna-output=matches.tsv
//
// Example 4: both; matches whose breakends form the junction of a fusion
// candidate report its ID.
//
//    bio-isofusion -gtf=genes.gtf.gz -bam=sample.bam -output=fusions.tsv \
//        -rna-calls=calls.tsv -breakends=sv.tsv -rna-output=matches.tsv

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/isofusion/annotation"
	"github.com/grailbio/isofusion/encoding/bamregion"
	"github.com/grailbio/isofusion/encoding/fasta"
	"github.com/grailbio/isofusion/fusion"
	"github.com/klauspost/compress/gzip"
)

// Collection of options set via cmdline flags
type isofusionFlags struct {
	gtfPath            string
	bamPath            string
	indexPath          string
	refPath            string
	outputPath         string
	fragmentOutputPath string
	rioOutputPath      string
	rioInputPath       string
	rnaCallsPath       string
	breakendsPath      string
	rnaOutputPath      string
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  bio-isofusion -gtf=<gtf> -bam=<bam> [-ref=<fasta>] [flags...]
  bio-isofusion -gtf=<gtf> -rio-input=<rio> [-ref=<fasta>] [flags...]
  bio-isofusion -gtf=<gtf> -rna-calls=<tsv> -breakends=<tsv> [-bam=<bam>|-rio-input=<rio>] [flags...]

`)
	flag.PrintDefaults()
}

// outputFile is a file opened for writing, gzip-compressed if its name ends
// in ".gz".
type outputFile struct {
	out file.File
	gz  *gzip.Writer
	w   io.Writer
}

func createOutput(ctx context.Context, path string) (*outputFile, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	f := &outputFile{out: out, w: out.Writer(ctx)}
	if strings.HasSuffix(path, ".gz") {
		f.gz = gzip.NewWriter(f.w)
		f.w = f.gz
	}
	return f, nil
}

func (f *outputFile) Close(ctx context.Context) error {
	var err error
	if f.gz != nil {
		err = f.gz.Close()
	}
	if e := f.out.Close(ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// matchRnaCalls matches the RNA fusion calls with the breakends and writes
// the result to flags.rnaOutputPath. candidates may be nil.
func matchRnaCalls(ctx context.Context, flags isofusionFlags, genes *annotation.Index,
	candidates []*fusion.FusionCandidate) (err error) {
	calls, err := fusion.ReadRnaFusionCalls(ctx, flags.rnaCallsPath)
	if err != nil {
		return err
	}
	breakends, err := fusion.ReadBreakends(ctx, flags.breakendsPath)
	if err != nil {
		return err
	}
	m := fusion.NewRnaMatcher(genes, breakends, candidates)
	matches := make([]fusion.RnaMatch, len(calls))
	nViable, nCandidates := 0, 0
	for i, call := range calls {
		matches[i] = m.Match(call)
		if matches[i].Viable {
			nViable++
		}
		if matches[i].Candidate != nil {
			nCandidates++
		}
	}
	log.Printf("matched %d RNA fusion calls with %d breakends: %d viable, %d at a fusion candidate",
		len(calls), len(breakends), nViable, nCandidates)
	out, err := createOutput(ctx, flags.rnaOutputPath)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	return fusion.WriteRnaMatches(out.w, matches)
}

// scan reads the gene regions of the BAM file and adds the chimeric evidence
// to agg.
func scan(ctx context.Context, flags isofusionFlags, src *bamregion.Source, genes *annotation.Index,
	agg *fusion.Aggregator, opts fusion.Opts) (stats fusion.Stats, err error) {
	regions := genes.Regions(opts.RegionPadding)
	src.SetRegions(regions)
	p := fusion.NewPipeline(src, genes, agg, opts)
	var fragOut *outputFile
	if flags.fragmentOutputPath != "" {
		if fragOut, err = createOutput(ctx, flags.fragmentOutputPath); err != nil {
			return stats, err
		}
		defer func() {
			if e := fragOut.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		var fw *fusion.FragmentWriter
		if fw, err = fusion.NewFragmentWriter(fragOut.w); err != nil {
			return stats, err
		}
		p.SetFragmentWriter(fw)
		defer func() {
			if e := fw.Flush(); e != nil && err == nil {
				err = e
			}
		}()
	}
	log.Printf("scanning %d gene regions of %s", len(regions), flags.bamPath)
	if stats, err = p.Run(ctx, regions); err != nil {
		return stats, err
	}
	log.Printf("Stats: %+v", stats)
	return stats, nil
}

func run(ctx context.Context, flags isofusionFlags, opts fusion.Opts) (err error) {
	if flags.gtfPath == "" {
		return errors.E(errors.Invalid, "-gtf must be set")
	}
	if flags.rnaCallsPath != "" && flags.breakendsPath == "" {
		return errors.E(errors.Invalid, "-breakends must be set with -rna-calls")
	}
	if flags.bamPath == "" && flags.rioInputPath == "" && flags.rnaCallsPath == "" {
		return errors.E(errors.Invalid, "one of -bam, -rio-input and -rna-calls must be set")
	}
	genes, err := annotation.ReadGTF(ctx, flags.gtfPath)
	if err != nil {
		return err
	}
	var candidates []*fusion.FusionCandidate
	if flags.bamPath != "" || flags.rioInputPath != "" {
		if candidates, err = findCandidates(ctx, flags, genes, opts); err != nil {
			return err
		}
	}
	if flags.rnaCallsPath != "" {
		return matchRnaCalls(ctx, flags, genes, candidates)
	}
	return nil
}

// findCandidates builds the fusion candidates from -bam or -rio-input and
// writes them to flags.outputPath.
func findCandidates(ctx context.Context, flags isofusionFlags, genes *annotation.Index,
	opts fusion.Opts) (candidates []*fusion.FusionCandidate, err error) {
	var src *bamregion.Source
	if flags.bamPath != "" {
		if src, err = bamregion.Open(ctx, flags.bamPath, flags.indexPath); err != nil {
			return nil, err
		}
	}
	agg := fusion.NewAggregator(opts)
	var stats fusion.Stats
	if flags.rioInputPath != "" {
		trailer, err := readEvidence(ctx, flags.rioInputPath, func(ev *fusion.FragmentEvidence) error {
			_, err := agg.AddEvidence(ev)
			return err
		})
		if err != nil {
			return nil, err
		}
		stats = trailer.Stats
		log.Printf("%s: replayed %d evidence records into %d candidates", flags.rioInputPath, trailer.Evidence, agg.Len())
	} else if stats, err = scan(ctx, flags, src, genes, agg, opts); err != nil {
		return nil, err
	}
	if flags.rioOutputPath != "" {
		w, err := newEvidenceWriter(ctx, flags.rioOutputPath)
		if err != nil {
			return nil, err
		}
		if err := w.WriteCandidates(agg.Candidates()); err != nil {
			return nil, err
		}
		if err := w.Close(ctx, opts, stats); err != nil {
			return nil, err
		}
	}

	var flanks fusion.FlankSource
	if flags.refPath != "" {
		var ref *fasta.Flanks
		if ref, err = fasta.OpenFlanks(ctx, flags.refPath); err != nil {
			return nil, err
		}
		defer func() {
			if e := ref.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		flanks = ref
	}
	if candidates, err = agg.Finalize(genes, flanks); err != nil {
		return nil, err
	}
	if src != nil {
		if err := fusion.RecordJunctionDepth(ctx, src, candidates, opts.Parallelism); err != nil {
			return nil, err
		}
	}
	out, err := createOutput(ctx, flags.outputPath)
	if err != nil {
		return nil, err
	}
	if err := fusion.WriteCandidates(out.w, candidates); err != nil {
		out.Close(ctx) // nolint: errcheck
		return nil, err
	}
	if err := out.Close(ctx); err != nil {
		return nil, err
	}
	log.Printf("wrote %d fusion candidates to %s", len(candidates), flags.outputPath)
	return candidates, nil
}

func main() {
	flag.Usage = usage
	var (
		flags isofusionFlags
		opts  = fusion.DefaultOpts
	)
	flag.StringVar(&flags.gtfPath, "gtf", "", "Gene annotation in GTF format, optionally compressed.")
	flag.StringVar(&flags.bamPath, "bam", "", "Coordinate-sorted BAM file to scan.")
	flag.StringVar(&flags.indexPath, "index", "", "BAM index. (default <bam>.bai)")
	flag.StringVar(&flags.refPath, "ref", "", `Reference FASTA file, indexed by <ref>.fai if that exists.
If set, soft clips are realigned against the reference bases at each junction;
otherwise against the bases of a sample read of the junction.`)
	flag.StringVar(&flags.outputPath, "output", "./fusions.tsv", "TSV file to store the fusion candidates. Compressed if it ends in .gz.")
	flag.StringVar(&flags.fragmentOutputPath, "fragment-output", "", "If set, every chimeric fragment is written to this TSV file.")
	flag.StringVar(&flags.rioOutputPath, "rio-output", "", "If set, the chimeric evidence is dumped to this recordio file.")
	flag.StringVar(&flags.rioInputPath, "rio-input", "", `Recordio file created by -rio-output. If set, the evidence is read from it
instead of scanning -bam. -bam may still be given to compute junction depths.`)
	flag.StringVar(&flags.rnaCallsPath, "rna-calls", "", "TSV file of RNA fusion calls to match with -breakends.")
	flag.StringVar(&flags.breakendsPath, "breakends", "", "TSV file of structural variant breakends.")
	flag.StringVar(&flags.rnaOutputPath, "rna-output", "./rna_matches.tsv", `TSV file to store the RNA matches. If -bam or -rio-input is also set, each
match reports the fusion candidate at its breakend pair. Compressed if it ends in .gz.`)

	flag.IntVar(&opts.MaxFragmentLength, "max-fragment-length", fusion.DefaultOpts.MaxFragmentLength,
		"Longest insert accepted as transcript-consistent.")
	flag.IntVar(&opts.MaxFragmentDistance, "max-fragment-distance", fusion.DefaultOpts.MaxFragmentDistance,
		"Distance between the ends of a pair above which it is treated as chimeric.")
	flag.IntVar(&opts.ReadCountLimit, "read-count-limit", fusion.DefaultOpts.ReadCountLimit,
		"Max fragments read per gene region. 0 means no limit.")
	flag.BoolVar(&opts.DropDuplicates, "drop-duplicates", fusion.DefaultOpts.DropDuplicates, "Drop duplicate fragments.")
	flag.IntVar(&opts.RegionPadding, "region-padding", fusion.DefaultOpts.RegionPadding, "Bases added on both sides of each gene region.")
	flag.IntVar(&opts.Parallelism, "parallelism", fusion.DefaultOpts.Parallelism, "Number of region workers. 0 means the number of CPUs.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()
	if flag.NArg() > 0 {
		usage()
		log.Fatalf("unexpected arguments: %v", flag.Args())
	}
	if err := run(ctx, flags, opts); err != nil {
		log.Fatal(err)
	}
}
