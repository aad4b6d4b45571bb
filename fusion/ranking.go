package fusion

// NoChain marks a breakend that is not part of a traversal chain.
const NoChain = -1

// Breakend is one end of a structural variant call, with its clustering
// context.
type Breakend struct {
	Anchor
	// SVID identifies the variant the breakend belongs to.
	SVID int
	// ClusterID identifies the cluster of related variants.
	ClusterID int
	// ChainID identifies the traversal chain within the cluster, or NoChain.
	ChainID int
}

// RankedPair is one way to explain a reference fusion call: an upstream and a
// downstream breakend, and the fusion candidate whose junction they form, if
// any.
type RankedPair struct {
	Candidate *FusionCandidate
	Up, Down  Breakend
}

// sameSV checks if both breakends belong to one variant.
func (p *RankedPair) sameSV() bool { return p.Up.SVID == p.Down.SVID }

func (p *RankedPair) sameCluster() bool { return p.Up.ClusterID == p.Down.ClusterID }

func (p *RankedPair) sameChain() bool {
	return p.Up.ChainID != NoChain && p.Up.ChainID == p.Down.ChainID
}

// distance is the mean absolute distance between the breakends and the
// reference positions, doubled to stay in integers.
func (p *RankedPair) distance(refUp, refDown int) int {
	return abs(p.Up.Pos-refUp) + abs(p.Down.Pos-refDown)
}

// isBetter checks if cand beats cur. In order: a pair from a single variant
// wins; else a pair within one cluster; within one cluster, a pair on one
// chain; and finally the pair closer to the reference positions. Ties return
// false, so the earlier pair stays.
func isBetter(cur, cand *RankedPair, refUp, refDown int) bool {
	if cur.sameSV() != cand.sameSV() {
		return cand.sameSV()
	}
	if cur.sameCluster() != cand.sameCluster() {
		return cand.sameCluster()
	}
	if cur.sameCluster() && cur.sameChain() != cand.sameChain() {
		return cand.sameChain()
	}
	return cand.distance(refUp, refDown) < cur.distance(refUp, refDown)
}

// SelectBest picks the pair that best explains a reference fusion with the
// given upstream and downstream positions. Ties keep the earliest pair in
// the input. ok is false if pairs is empty.
func SelectBest(pairs []RankedPair, refUp, refDown int) (best RankedPair, ok bool) {
	if len(pairs) == 0 {
		return RankedPair{}, false
	}
	bi := 0
	for i := 1; i < len(pairs); i++ {
		if isBetter(&pairs[bi], &pairs[i], refUp, refDown) {
			bi = i
		}
	}
	return pairs[bi], true
}
