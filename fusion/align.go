package fusion

import (
	"math"

	"github.com/willf/bitset"
)

// Layout describes the segments of an alignment reference. Offsets are
// 0-based positions in the reference string; a boundary at b separates
// ref[:b] from ref[b:].
type Layout struct {
	// GeneSplit is the offset of the first base of the second gene. Values
	// <= 0 or >= len(ref) mean the reference has a single gene.
	GeneSplit int
	// ExonEnds lists the exon boundaries. The order does not matter, and
	// values outside (0, len(ref)) are ignored.
	ExonEnds []int
}

// JumpKind is the kind of jump taken by an alignment.
type JumpKind int

const (
	// NoJump means the alignment is contiguous in the reference.
	NoJump JumpKind = iota
	// ExonJump means the alignment skips from an exon end to the start of a
	// later exon of the same gene.
	ExonJump
	// GeneJump means the alignment crosses from the first gene to the second.
	GeneJump
)

// Solution is the best local alignment of a read against a reference.
type Solution struct {
	// Score is the raw alignment score.
	Score int
	// Prob is Score normalized into [0,1] by the perfect-match score of the
	// read.
	Prob float64
	Kind JumpKind
	// JumpStart and JumpEnd are the reference offsets where the jump left and
	// resumed. The last base before the jump is ref[JumpStart-1], and the
	// first base after it is ref[JumpEnd]. They are zero when Kind==NoJump.
	JumpStart, JumpEnd int
	// RefStart and RefEnd delimit the aligned reference range [RefStart,
	// RefEnd), jumped-over bases included.
	RefStart, RefEnd int
}

const negInf = math.MinInt32 / 4

// origin records how the best path into a DP cell started.
type origin struct {
	start     int32 // ref offset of the first aligned base
	jumpStart int32
	jumpEnd   int32
}

type dpCell struct {
	h, e, f    int32
	ho, eo, fo origin
}

const nLayer = 3 // indexed by JumpKind

// Aligner aligns reads against segmented references. It holds scratch
// buffers, so it is thread compatible; use one Aligner per goroutine.
type Aligner struct {
	match, mismatch, gapOpen, gapExt int32
	geneJump, exonJump               int32
	minReadLength                    int

	prev, cur [nLayer][]dpCell
	jumpIn    [nLayer][]int32
	jumpFrom  [nLayer][]int32
	breaks    *bitset.BitSet
	breakList []int
}

// NewAligner creates an Aligner using the scores in opts.
func NewAligner(opts Opts) *Aligner {
	return &Aligner{
		match:         int32(opts.MatchScore),
		mismatch:      int32(opts.MismatchPenalty),
		gapOpen:       int32(opts.GapOpenPenalty),
		gapExt:        int32(opts.GapExtensionPenalty),
		geneJump:      int32(opts.GeneJumpPenalty),
		exonJump:      int32(opts.ExonJumpPenalty),
		minReadLength: opts.MinReadLength,
		breaks:        bitset.New(0),
	}
}

func (a *Aligner) resize(n int) {
	for l := 0; l < nLayer; l++ {
		if cap(a.prev[l]) < n+1 {
			a.prev[l] = make([]dpCell, n+1)
			a.cur[l] = make([]dpCell, n+1)
			a.jumpIn[l] = make([]int32, n+1)
			a.jumpFrom[l] = make([]int32, n+1)
		}
		a.prev[l] = a.prev[l][:n+1]
		a.cur[l] = a.cur[l][:n+1]
		a.jumpIn[l] = a.jumpIn[l][:n+1]
		a.jumpFrom[l] = a.jumpFrom[l][:n+1]
	}
}

// setBreaks fills a.breakList with the sorted, unique exon boundaries in
// (0, n), excluding the gene split.
func (a *Aligner) setBreaks(layout Layout, n, split int) {
	a.breaks.ClearAll()
	for _, b := range layout.ExonEnds {
		if b > 0 && b < n && b != split {
			a.breaks.Set(uint(b))
		}
	}
	a.breakList = a.breakList[:0]
	for b, ok := a.breaks.NextSet(0); ok; b, ok = a.breaks.NextSet(b + 1) {
		a.breakList = append(a.breakList, int(b))
	}
}

func (a *Aligner) subst(x, y byte) int32 {
	if x == y && x != 'N' {
		return a.match
	}
	return -a.mismatch
}

// Align computes the best local alignment of read against ref. It returns
// false if either sequence is shorter than Opts.MinReadLength.
//
// The alignment may take at most one jump:
//
// - A gene jump leaves the first gene at one of its exon ends or at the
// gene split, and resumes at the gene split or at an exon start of the
// second gene. Crossing the gene split contiguously is a gene jump with
// JumpStart == JumpEnd == GeneSplit.
//
// - An exon jump leaves at an exon boundary and resumes at a later boundary
// of the same gene.
//
// Exon boundaries that are not jumped over are crossed at no cost. Ties are
// broken in favor of the cell found first, scanning the read positions in
// order.
func (a *Aligner) Align(read, ref string, layout Layout) (Solution, bool) {
	m, n := len(read), len(ref)
	if m < a.minReadLength || n < a.minReadLength || m == 0 || n == 0 {
		return Solution{}, false
	}
	split := layout.GeneSplit
	if split <= 0 || split >= n {
		split = -1
	}
	a.setBreaks(layout, n, split)
	a.resize(n)

	for l := 0; l < nLayer; l++ {
		for j := 0; j <= n; j++ {
			a.prev[l][j] = dpCell{h: negInf, e: negInf, f: negInf}
		}
	}
	for j := 0; j <= n; j++ {
		a.prev[0][j].h = 0
		a.prev[0][j].ho = origin{start: int32(j)}
	}

	var (
		best     int32
		bestKind JumpKind
		bestEnd  int
		bestOrig origin
	)
	active := [nLayer]bool{true, len(a.breakList) > 0, split > 0}
	for i := 1; i <= m; i++ {
		rc := read[i-1]
		a.fillRow(NoJump, rc, ref, split)
		if active[ExonJump] || active[GeneJump] {
			a.computeJumps(split)
		}
		if active[ExonJump] {
			a.fillRow(ExonJump, rc, ref, split)
		}
		if active[GeneJump] {
			a.fillRow(GeneJump, rc, ref, split)
		}
		for l := 0; l < nLayer; l++ {
			if !active[l] {
				continue
			}
			row := a.cur[l]
			for j := 1; j <= n; j++ {
				if row[j].h > best {
					best, bestKind, bestEnd, bestOrig = row[j].h, JumpKind(l), j, row[j].ho
				}
			}
		}
		a.prev, a.cur = a.cur, a.prev
	}
	if best <= 0 {
		return Solution{}, true
	}
	sol := Solution{
		Score:    int(best),
		Prob:     float64(best) / float64(m*int(a.match)),
		Kind:     bestKind,
		RefStart: int(bestOrig.start),
		RefEnd:   bestEnd,
	}
	if sol.Prob > 1 {
		sol.Prob = 1
	}
	if bestKind != NoJump {
		sol.JumpStart, sol.JumpEnd = int(bestOrig.jumpStart), int(bestOrig.jumpEnd)
	}
	return sol, true
}

// fillRow computes a.cur[layer] from a.prev[layer] for read base rc. For
// the jumped layers, a.jumpIn must be set for the current row.
func (a *Aligner) fillRow(layer JumpKind, rc byte, ref string, split int) {
	prev, cur := a.prev[layer], a.cur[layer]
	jumpIn, jumpFrom := a.jumpIn[layer], a.jumpFrom[layer]
	n := len(ref)
	cur[0] = dpCell{h: negInf, e: negInf, f: negInf}
	if layer == NoJump {
		cur[0].h = 0
		cur[0].ho = origin{start: 0}
	}
	for j := 1; j <= n; j++ {
		c := &cur[j]
		*c = dpCell{h: negInf, e: negInf, f: negInf}
		if layer == GeneJump && j < split {
			continue
		}
		// Moving from column split to split+1 crosses the gene split. Only the
		// gene-jumped layer may do so.
		blocked := layer != GeneJump && j == split+1

		// Insertion: read base consumed, ref not.
		if v := prev[j].h - a.gapOpen; v > c.f {
			c.f, c.fo = v, prev[j].ho
		}
		if v := prev[j].f - a.gapExt; v > c.f {
			c.f, c.fo = v, prev[j].fo
		}
		if !blocked {
			// Deletion: ref base consumed, read not.
			if v := cur[j-1].h - a.gapOpen; v > c.e {
				c.e, c.eo = v, cur[j-1].ho
			}
			if v := cur[j-1].e - a.gapExt; v > c.e {
				c.e, c.eo = v, cur[j-1].eo
			}
			if v := prev[j-1].h + a.subst(rc, ref[j-1]); v > c.h {
				c.h, c.ho = v, prev[j-1].ho
			}
		} else if layer == NoJump {
			// A fresh local alignment may still start at the split.
			if v := a.subst(rc, ref[j-1]); v > c.h {
				c.h, c.ho = v, origin{start: int32(j - 1)}
			}
		}
		if c.e > c.h {
			c.h, c.ho = c.e, c.eo
		}
		if c.f > c.h {
			c.h, c.ho = c.f, c.fo
		}
		if layer != NoJump && jumpIn[j] > c.h {
			p := jumpFrom[j]
			c.h, c.ho = jumpIn[j], origin{start: a.cur[NoJump][p].ho.start, jumpStart: p, jumpEnd: int32(j)}
		}
		if layer == NoJump && c.h < 0 {
			c.h, c.ho = 0, origin{start: int32(j)}
		}
	}
}

// computeJumps fills a.jumpIn and a.jumpFrom for the jumped layers from the
// current no-jump row. jumpIn[l][j] is the best score of entering layer l at
// column j, and jumpFrom[l][j] is the column the jump left from.
func (a *Aligner) computeJumps(split int) {
	row := a.cur[NoJump]
	for _, l := range []JumpKind{ExonJump, GeneJump} {
		for j := range a.jumpIn[l] {
			a.jumpIn[l][j] = negInf
		}
	}
	// Only cells that aligned at least one base can take a jump.
	canJump := func(p int) bool { return row[p].h > 0 && int(row[p].ho.start) < p }

	if split > 0 {
		// Gene jumps leave from an exon end of the first gene or the split,
		// and land on the split or an exon start of the second gene.
		bestP, bestV := -1, int32(negInf)
		for _, p := range a.breakList {
			if p > split {
				break
			}
			if canJump(p) && row[p].h > bestV {
				bestP, bestV = p, row[p].h
			}
		}
		if canJump(split) && row[split].h > bestV {
			bestP, bestV = split, row[split].h
		}
		if bestP > 0 {
			a.jumpIn[GeneJump][split] = bestV - a.geneJump
			a.jumpFrom[GeneJump][split] = int32(bestP)
			for _, j := range a.breakList {
				if j > split {
					a.jumpIn[GeneJump][j] = bestV - a.geneJump
					a.jumpFrom[GeneJump][j] = int32(bestP)
				}
			}
		}
	}

	// Exon jumps stay on one side of the split. side1 is [0,split), side2
	// is (split,n). Without a split, everything is on side 1.
	bestP, bestV := -1, int32(negInf)
	side := func(b int) int {
		if split > 0 && b > split {
			return 2
		}
		return 1
	}
	curSide := 0
	for _, j := range a.breakList {
		if s := side(j); s != curSide {
			curSide, bestP, bestV = s, -1, negInf
		}
		if bestP > 0 {
			a.jumpIn[ExonJump][j] = bestV - a.exonJump
			a.jumpFrom[ExonJump][j] = int32(bestP)
		}
		if canJump(j) && row[j].h > bestV {
			bestP, bestV = j, row[j].h
		}
	}
}
