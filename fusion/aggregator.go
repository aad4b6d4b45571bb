package fusion

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/isofusion/annotation"
	"github.com/minio/highwayhash"
)

const numAggregatorShards = 64

type hashKey = [highwayhash.Size]uint8

var zeroSeed = hashKey{}

type aggregatorShard struct {
	mu         sync.Mutex
	candidates map[JunctionKey]*FusionCandidate
}

// FlankSource supplies reference bases next to a junction anchor.
type FlankSource interface {
	// Flank returns n bases ending at (Forward) or starting at (Backward) the
	// anchor, in reference-forward orientation.
	Flank(a Anchor, n int) (string, error)
}

// Aggregator collects FragmentEvidence into one FusionCandidate per junction.
//
// AddEvidence is thread-safe. Candidates are sharded by chromosome pair, so
// workers adding evidence for different chromosome pairs rarely contend.
// Finalize must be called once, after all AddEvidence calls have returned.
type Aggregator struct {
	opts      Opts
	nextID    int64
	finalized int32
	shards    [numAggregatorShards]aggregatorShard
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts Opts) *Aggregator {
	a := &Aggregator{opts: opts}
	for i := range a.shards {
		a.shards[i].candidates = map[JunctionKey]*FusionCandidate{}
	}
	return a
}

func (a *Aggregator) shard(key JunctionKey) *aggregatorShard {
	c0, c1 := key.Anchors[0].Chrom, key.Anchors[1].Chrom
	buf := make([]byte, 0, len(c0)+len(c1)+1)
	buf = append(buf, c0...)
	buf = append(buf, 0)
	buf = append(buf, c1...)
	h := highwayhash.Sum64(buf, zeroSeed[:])
	return &a.shards[h%numAggregatorShards]
}

// AddEvidence adds chimeric evidence to the candidate with the same junction,
// creating the candidate if needed, and returns the candidate's ID. Evidence
// whose fragment name is already recorded for the junction is ignored.
//
// The evidence must not be modified afterwards.
func (a *Aggregator) AddEvidence(ev *FragmentEvidence) (CandidateID, error) {
	if ev.ReadType != Chimeric {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("fragment %s: %v evidence is not chimeric", ev.Name, ev.ReadType))
	}
	if !ev.Anchors[0].Valid() || !ev.Anchors[1].Valid() {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("fragment %s: invalid anchors %v, %v", ev.Name, ev.Anchors[0], ev.Anchors[1]))
	}
	if atomic.LoadInt32(&a.finalized) != 0 {
		return -1, errors.E(errors.Precondition, "aggregator already finalized")
	}
	if ev.Anchors[1].Less(ev.Anchors[0]) {
		cp := *ev
		cp.canonicalize()
		ev = &cp
	}
	key := ev.Key()
	sh := a.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c := sh.candidates[key]
	if c == nil {
		c = newCandidate(CandidateID(atomic.AddInt64(&a.nextID, 1)-1), key)
		sh.candidates[key] = c
	}
	_, err := c.add(ev)
	return c.ID, err
}

// Len returns the number of candidates. It is exact only when no AddEvidence
// call is in progress.
func (a *Aggregator) Len() int {
	n := 0
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.Lock()
		n += len(sh.candidates)
		sh.mu.Unlock()
	}
	return n
}

// Candidates returns all candidates, sorted by junction key.
func (a *Aggregator) Candidates() []*FusionCandidate {
	var all []*FusionCandidate
	for i := range a.shards {
		sh := &a.shards[i]
		sh.mu.Lock()
		for _, c := range sh.candidates {
			all = append(all, c)
		}
		sh.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return keyLess(all[i].Key, all[j].Key) })
	return all
}

func keyLess(a, b JunctionKey) bool {
	if a.Anchors[0] != b.Anchors[0] {
		return a.Anchors[0].Less(b.Anchors[0])
	}
	return a.Anchors[1].Less(b.Anchors[1])
}

type chromPair struct{ c0, c1 string }

// Finalize resolves genes and transcript data for every candidate and moves
// the fragments of discordant-only candidates to a compatible split-read
// junction when there is one, as REALIGNED if a soft clip supports the
// junction and as DISCORDANT otherwise. Candidates left without fragments are
// dropped. The survivors are renumbered 0, 1, 2, ... in junction key order, so
// the IDs do not depend on the order evidence was added. The result is sorted
// by ID, and every candidate in it is Finalized.
//
// flanks may be nil, in which case the junction bases come from the sample
// fragment of each candidate.
func (a *Aggregator) Finalize(oracle annotation.Oracle, flanks FlankSource) ([]*FusionCandidate, error) {
	if !atomic.CompareAndSwapInt32(&a.finalized, 0, 1) {
		return nil, errors.E(errors.Precondition, "aggregator finalized twice")
	}
	var (
		all       = a.Candidates()
		junctions = map[chromPair][]*FusionCandidate{}
		unfused   []*FusionCandidate
		result    []*FusionCandidate
	)
	prepare := func(c *FusionCandidate) {
		c.setGenes(ResolveCandidateGenes(c.Key.Anchors[0], oracle), ResolveCandidateGenes(c.Key.Anchors[1], oracle))
		if flanks != nil {
			for side, anchor := range c.Key.Anchors {
				bases, err := flanks.Flank(anchor, a.opts.JunctionFlankLength)
				if err != nil {
					log.Error.Printf("candidate %v: flank %v: %v", c, anchor, err)
					continue
				}
				c.flanks[side] = bases
			}
		}
		c.cacheTranscriptData()
	}
	for _, c := range all {
		if c.FragmentCount(MatchedJunction) == 0 {
			unfused = append(unfused, c)
			continue
		}
		prepare(c)
		pair := chromPair{c.Key.Anchors[0].Chrom, c.Key.Anchors[1].Chrom}
		junctions[pair] = append(junctions[pair], c)
		result = append(result, c)
	}
	nJunctions, nMoved := len(result), 0
	for _, u := range unfused {
		targets := junctions[chromPair{u.Key.Anchors[0].Chrom, u.Key.Anchors[1].Chrom}]
		if len(targets) > 0 {
			nMoved += a.assignUnfused(u, targets)
		}
		if u.TotalFragments() == 0 {
			continue
		}
		prepare(u)
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return keyLess(result[i].Key, result[j].Key) })
	renumber(result)
	for _, c := range result {
		c.state = Finalized
	}
	log.Printf("finalized %d fusion candidates (%d split-read junctions), moved %d unfused fragments",
		len(result), nJunctions, nMoved)
	return result, nil
}

// renumber assigns dense IDs in slice order and rewrites the related lists to
// match.
func renumber(cs []*FusionCandidate) {
	ids := make(map[CandidateID]CandidateID, len(cs))
	for i, c := range cs {
		ids[c.ID] = CandidateID(i)
	}
	for _, c := range cs {
		c.ID = ids[c.ID]
		related := c.related[:0]
		for _, r := range c.related {
			if id, ok := ids[r]; ok {
				related = append(related, id)
			}
		}
		c.related = related
	}
}

// assignUnfused moves the fragments of u to the first target (in key order)
// that accepts them. Targets that would also have accepted a moved fragment
// and share exactly one anchor with the chosen target are marked related.
// It returns the number of fragments moved.
func (a *Aggregator) assignUnfused(u *FusionCandidate, targets []*FusionCandidate) int {
	var frags []*FragmentEvidence
	for _, f := range u.fragments {
		frags = append(frags, f...)
	}
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Name < frags[j].Name })
	accepts := func(c *FusionCandidate, f *FragmentEvidence) (FragmentType, bool) {
		if c.supportsRealigned(f, a.opts) {
			return Realigned, true
		}
		if c.canAddDiscordant(f, a.opts) {
			return Discordant, true
		}
		return 0, false
	}
	n := 0
	for _, f := range frags {
		var (
			chosen *FusionCandidate
			typ    FragmentType
		)
		for _, c := range targets {
			if t, ok := accepts(c, f); ok {
				chosen, typ = c, t
				break
			}
		}
		if chosen == nil {
			continue
		}
		u.remove(f.Type, f)
		moved := *f
		moved.Type = typ
		if _, err := chosen.add(&moved); err != nil {
			log.Panicf("move %s to %v: %v", f.Name, chosen, err)
		}
		n++
		for _, c := range targets {
			if c == chosen || !shareOneAnchor(c.Key, chosen.Key) {
				continue
			}
			if _, ok := accepts(c, f); ok {
				chosen.AddRelated(c.ID)
				c.AddRelated(chosen.ID)
			}
		}
	}
	return n
}

// shareOneAnchor checks if exactly one anchor of a equals one anchor of b.
func shareOneAnchor(a, b JunctionKey) bool {
	if a == b {
		return false
	}
	for _, x := range a.Anchors {
		for _, y := range b.Anchors {
			if x == y {
				return true
			}
		}
	}
	return false
}
