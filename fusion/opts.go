package fusion

// Opts configures fragment classification, aggregation and the region scan.
type Opts struct {
	// MaxFragmentLength is the longest insert accepted as transcript-consistent.
	// It also caps the implied fragment length of discordant fragments attached
	// to a junction, and the bases that may be skipped by a read pair.
	MaxFragmentLength int

	// MaxFragmentDistance is the outer distance between the two ends of a pair
	// on one chromosome above which the pair is treated as chimeric.
	MaxFragmentDistance int

	// MaxSkippedExons is the number of exons a read pair may skip inside one
	// transcript before the skipped bases are checked against
	// MaxFragmentLength.
	MaxSkippedExons int

	// ReadCountLimit is a soft cap on the fragments processed per gene region.
	// Once reached, a warning is logged and the rest of the region is skipped.
	// Zero means no limit.
	ReadCountLimit int

	// DropDuplicates discards fragments found by DuplicateCache, and fragments
	// the aligner flagged as duplicates.
	DropDuplicates bool

	// SoftClipJunctionBuffer is how far past a junction a soft-clipped read may
	// end and still be realigned to it.
	SoftClipJunctionBuffer int
	// MinSoftClipMatch is the least number of soft-clipped bases that must match
	// the other side of a junction.
	MinSoftClipMatch int
	// MaxSoftClipMatch caps the number of soft-clipped bases compared.
	MaxSoftClipMatch int

	// JunctionFlankLength is the number of bases kept on each side of a junction
	// for realignment.
	JunctionFlankLength int

	// RegionPadding extends each gene region on both sides.
	RegionPadding int

	// Parallelism is the number of region workers.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MaxFragmentLength:      550,     // -max-fragment-length
	MaxFragmentDistance:    1000000, // -max-fragment-distance
	MaxSkippedExons:        0,       // no flag
	ReadCountLimit:         0,       // -read-count-limit
	DropDuplicates:         true,    // -drop-duplicates
	SoftClipJunctionBuffer: 3,       // no flag
	MinSoftClipMatch:       3,       // no flag
	MaxSoftClipMatch:       5,       // no flag
	JunctionFlankLength:    10,      // no flag
	RegionPadding:          1000,    // -region-padding
	Parallelism:            0,       // -parallelism; 0 means runtime.NumCPU()
}
