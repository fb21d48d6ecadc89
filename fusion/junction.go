package fusion

import (
	"math"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Transcript is a spliced sequence made of exons of the two genes of an
// edge. Seq[:Offset] comes from the 5' gene, and Seq[Offset:] from the 3'
// gene.
type Transcript struct {
	Seq    string
	Offset int
	// LeftEnds and RightEnds are the cumulative exon end offsets in Seq of the
	// 5' and the 3' gene parts, respectively. The last element of LeftEnds is
	// Offset, and the last element of RightEnds is len(Seq).
	LeftEnds, RightEnds []int
}

// Layout returns the alignment layout of the transcript.
func (t *Transcript) Layout() Layout {
	ends := make([]int, 0, len(t.LeftEnds)+len(t.RightEnds))
	ends = append(ends, t.LeftEnds...)
	ends = append(ends, t.RightEnds...)
	return Layout{GeneSplit: t.Offset, ExonEnds: ends}
}

// newTranscript concatenates exons1 and exons2.
func newTranscript(exons1, exons2 []*Exon) *Transcript {
	t := &Transcript{}
	var b strings.Builder
	for _, ex := range exons1 {
		b.WriteString(ex.Seq)
		t.LeftEnds = append(t.LeftEnds, b.Len())
	}
	t.Offset = b.Len()
	for _, ex := range exons2 {
		b.WriteString(ex.Seq)
		t.RightEnds = append(t.RightEnds, b.Len())
	}
	t.Seq = b.String()
	return t
}

// Junction is a breakpoint between an exon of the 5' gene and an exon of the
// 3' gene.
type Junction struct {
	// ID is "exon1.exon2", e.g., "G1.2.G2.1".
	ID           string
	Exon1, Exon2 ExonID
	// Flank is the Opts.JunctionFlankLength bases of the provisional
	// transcript around the breakpoint. It is centered on the breakpoint
	// unless that would run past either end.
	Flank string
	// Provisional is the sequence observed around the breakpoint: the 5'
	// exons up to the jump followed by the 3' exons after it.
	Provisional       string
	ProvisionalOffset int
	// Transcript is the exon-complete transcript: exons 1..Exon1 of the 5'
	// gene, then exons Exon2..last of the 3' gene.
	Transcript *Transcript
	// Hits is the # of read alignments that found the junction.
	Hits int
	// LogLikelihood is the sum of log10(alignment prob) over the hits.
	LogLikelihood float64
}

// MeanLogLikelihood returns LogLikelihood/Hits.
func (j *Junction) MeanLogLikelihood() float64 {
	if j.Hits == 0 {
		return 0
	}
	return j.LogLikelihood / float64(j.Hits)
}

// junctionSet collects the junctions of one edge.
type junctionSet map[string]*Junction

// add merges one observation of a junction.
func (s junctionSet) add(j *Junction, prob float64) {
	if old, ok := s[j.ID]; ok {
		j = old
	} else {
		s[j.ID] = j
	}
	j.Hits++
	j.LogLikelihood += math.Log10(prob)
}

// segmentSeq is the concatenation of some exons of one gene.
type segmentSeq struct {
	seq   string
	exons []*Exon
	ends  []int // cumulative end offsets of exons in seq
}

func newSegmentSeq(exons []*Exon) segmentSeq {
	s := segmentSeq{exons: exons}
	var b strings.Builder
	for _, ex := range exons {
		b.WriteString(ex.Seq)
		s.ends = append(s.ends, b.Len())
	}
	s.seq = b.String()
	return s
}

// exonAt returns the exon that contains seq[off].
func (s segmentSeq) exonAt(off int) *Exon {
	i := sort.SearchInts(s.ends, off+1)
	if i >= len(s.exons) {
		i = len(s.exons) - 1
	}
	return s.exons[i]
}

// junctionFinder finds the junctions of edges. Thread compatible.
type junctionFinder struct {
	db      *ExonDB
	opts    Opts
	matcher *pairMatcher
	aligner *Aligner
	exons   *StringMultiset
}

func newJunctionFinder(db *ExonDB, idx *KmerIndex, opts Opts) *junctionFinder {
	return &junctionFinder{
		db:      db,
		opts:    opts,
		matcher: newPairMatcher(idx, opts),
		aligner: NewAligner(opts),
		exons:   NewStringMultiset(),
	}
}

// evidenceExons lists the exons of gene1 and gene2 matched by ev with at
// least Opts.MinExonKmerMatch unique kmers, in the order they are first
// encountered in ev.Seq().
func (f *junctionFinder) evidenceExons(ev Evidence, gene1, gene2 string) (exons1, exons2 []*Exon) {
	f.exons.Reset()
	hits := f.matcher.pairHits(ev)
	for _, h := range hits {
		f.exons.Add(h.occ.Exon.String())
	}
	seen := map[ExonID]bool{}
	for _, h := range hits {
		id := h.occ.Exon
		if seen[id] || f.exons.Count(id.String()) < f.opts.MinExonKmerMatch {
			continue
		}
		seen[id] = true
		ex := f.db.Exon(id)
		if ex == nil {
			continue
		}
		switch id.Gene {
		case gene1:
			exons1 = append(exons1, ex)
		case gene2:
			exons2 = append(exons2, ex)
		}
	}
	return
}

// findJunctions aligns the mates of every evidence of e against its
// evidence exons and collects the gene jumps.
func (f *junctionFinder) findJunctions(e *Edge) junctionSet {
	set := junctionSet{}
	for _, ev := range e.Evidence {
		exons1, exons2 := f.evidenceExons(ev, e.Gene1, e.Gene2)
		if len(exons1) == 0 || len(exons2) == 0 {
			continue
		}
		seg1, seg2 := newSegmentSeq(exons1), newSegmentSeq(exons2)
		ref := seg1.seq + seg2.seq
		layout := Layout{GeneSplit: len(seg1.seq)}
		layout.ExonEnds = append(layout.ExonEnds, seg1.ends...)
		for _, end := range seg2.ends {
			layout.ExonEnds = append(layout.ExonEnds, len(seg1.seq)+end)
		}
		for _, mate := range []string{ev.R1, ev.R2} {
			sol, ok := f.aligner.Align(mate, ref, layout)
			if !ok || sol.Kind != GeneJump || sol.Prob < f.opts.MinAlignScore || sol.Prob <= 0 {
				continue
			}
			set.add(f.newJunction(ref, sol, seg1, seg2), sol.Prob)
		}
	}
	return set
}

func (f *junctionFinder) newJunction(ref string, sol Solution, seg1, seg2 segmentSeq) *Junction {
	split := len(seg1.seq)
	ex1 := seg1.exonAt(sol.JumpStart - 1)
	ex2 := seg2.exonAt(sol.JumpEnd - split)
	provisional := ref[:sol.JumpStart] + ref[sol.JumpEnd:]
	lo, hi := flankWindow(sol.JumpStart, f.opts.JunctionFlankLength, len(provisional))
	return &Junction{
		ID:                ex1.ID.String() + "." + ex2.ID.String(),
		Exon1:             ex1.ID,
		Exon2:             ex2.ID,
		Flank:             provisional[lo:hi],
		Provisional:       provisional,
		ProvisionalOffset: sol.JumpStart,
	}
}

// flankWindow returns the range of the length-n window centered on pos. The
// window is shifted to fit in [0, size), and is shortened only if size < n.
func flankWindow(pos, n, size int) (lo, hi int) {
	lo = pos - n/2
	if lo+n > size {
		lo = size - n
	}
	if lo < 0 {
		lo = 0
	}
	return lo, min(lo+n, size)
}

// finalTranscript builds the exon-complete transcript for a junction
// between exon m of gene1 and exon n of gene2.
func finalTranscript(g1, g2 *GeneInfo, m, n int) *Transcript {
	var exons1, exons2 []*Exon
	for _, ex := range g1.Exons {
		if ex.ID.Exon <= m {
			exons1 = append(exons1, ex)
		}
	}
	for _, ex := range g2.Exons {
		if ex.ID.Exon >= n {
			exons2 = append(exons2, ex)
		}
	}
	return newTranscript(exons1, exons2)
}

// buildEdge computes the junctions, or the no-junction transcript, of e.
func (f *junctionFinder) buildEdge(e *Edge) {
	e.Junctions, e.NoJunction = nil, nil
	g1, g2 := f.db.Gene(e.Gene1), f.db.Gene(e.Gene2)
	if g1 == nil || g2 == nil {
		return
	}
	if len(e.Evidence) >= 2 {
		for _, j := range f.findJunctions(e) {
			if j.Hits < f.opts.MinJunctionHits {
				log.Debug.Printf("%s: junction %s has %d hits, dropped", e.Key, j.ID, j.Hits)
				continue
			}
			j.Transcript = finalTranscript(g1, g2, j.Exon1.Exon, j.Exon2.Exon)
			e.Junctions = append(e.Junctions, j)
		}
		sort.Slice(e.Junctions, func(i, k int) bool { return e.Junctions[i].ID < e.Junctions[k].ID })
	}
	if len(e.Junctions) == 0 {
		e.NoJunction = newTranscript(g1.Exons, g2.Exons)
	}
}

// BuildJunctions finds the junctions of every edge of g. Edges are processed
// in parallel; each edge is touched by only one goroutine.
func BuildJunctions(g *Graph, db *ExonDB, idx *KmerIndex, opts Opts) Stats {
	edges := g.SortedEdges()
	nShard := max(1, opts.Parallelism)
	finders := make([]*junctionFinder, nShard)
	for i := range finders {
		finders[i] = newJunctionFinder(db, idx, opts)
	}
	_ = traverse.Each(nShard, func(shard int) error {
		for i := shard; i < len(edges); i += nShard {
			finders[shard].buildEdge(edges[i])
		}
		return nil
	})
	var stats Stats
	for _, e := range edges {
		stats.Junctions += len(e.Junctions)
		if e.NoJunction != nil {
			stats.NoJunctionEdges++
		}
	}
	log.Printf("Found %d junctions in %d edges, %d edges without a junction",
		stats.Junctions, len(edges), stats.NoJunctionEdges)
	return stats
}
