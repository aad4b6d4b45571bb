package fusion

// Stats represents high-level statistics of a region scan.
type Stats struct {
	// Regions is the number of gene regions scanned.
	Regions int
	// ReadLimitedRegions is the number of regions that hit
	// Opts.ReadCountLimit. The rest of such a region is skipped.
	ReadLimitedRegions int
	// Fragments counts the fragments read, including duplicates.
	Fragments int
	// Duplicates counts fragments dropped as duplicates.
	Duplicates int
	// Errors counts fragments dropped after a classification error.
	Errors int
	// Malformed counts the input records the source could not turn into a
	// fragment.
	Malformed int
	// ReadTypes[t] counts the classified fragments of GeneReadType t.
	ReadTypes [Incomplete + 1]int
	// FragmentTypes[t] counts chimeric fragments by FragmentType as classified,
	// before any reassignment.
	FragmentTypes [numFragmentTypes]int
}

// record counts one classified fragment.
func (s *Stats) record(ev *FragmentEvidence) {
	s.ReadTypes[ev.ReadType]++
	if ev.ReadType == Chimeric {
		s.FragmentTypes[ev.Type]++
	}
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Regions += o.Regions
	s.ReadLimitedRegions += o.ReadLimitedRegions
	s.Fragments += o.Fragments
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
	s.Malformed += o.Malformed
	for i, n := range o.ReadTypes {
		s.ReadTypes[i] += n
	}
	for i, n := range o.FragmentTypes {
		s.FragmentTypes[i] += n
	}
	return s
}
