package fusion

import (
	"context"
	"math"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// candidate is one transcript an edge's reads are realigned against.
type candidate struct {
	t        *Transcript
	layout   Layout
	junction *Junction // nil for the no-junction transcript
}

func edgeCandidates(e *Edge) []candidate {
	var cands []candidate
	for _, j := range e.Junctions {
		cands = append(cands, candidate{t: j.Transcript, layout: j.Transcript.Layout(), junction: j})
	}
	if len(cands) == 0 && e.NoJunction != nil {
		cands = append(cands, candidate{t: e.NoJunction, layout: e.NoJunction.Layout()})
	}
	return cands
}

// pairAlignment is the accepted alignment of a read pair against one
// transcript.
type pairAlignment struct {
	pairID       string
	prob1, prob2 float64
	// spanning is true if either mate crossed the gene split.
	spanning bool
}

func (p pairAlignment) prob() float64 { return p.prob1 * p.prob2 }

// edgeState is the per-edge bookkeeping of the best alignment of every read
// pair.
type edgeState struct {
	edge  *Edge
	cands []candidate
	ids   map[string]bool // evidence pair IDs
	best  map[string]pairAlignment
	order []string // pair IDs in the order first accepted
}

func (s *edgeState) offer(pa pairAlignment) (added bool) {
	old, ok := s.best[pa.pairID]
	if !ok {
		s.best[pa.pairID] = pa
		s.order = append(s.order, pa.pairID)
		return true
	}
	if pa.prob() > old.prob() {
		s.best[pa.pairID] = pa
	}
	return false
}

// pairScorer aligns read pairs against transcripts. Thread compatible.
type pairScorer struct {
	opts    Opts
	aligner *Aligner
}

// alignPair aligns both mates of ev against c. It returns false unless both
// mates reach Opts.MinAlignScore.
func (s *pairScorer) alignPair(ev Evidence, c candidate) (pairAlignment, bool) {
	s1, ok := s.aligner.Align(ev.R1, c.t.Seq, c.layout)
	if !ok || s1.Prob < s.opts.MinAlignScore {
		return pairAlignment{}, false
	}
	s2, ok := s.aligner.Align(ev.R2, c.t.Seq, c.layout)
	if !ok || s2.Prob < s.opts.MinAlignScore {
		return pairAlignment{}, false
	}
	return pairAlignment{
		pairID:   ev.PairID,
		prob1:    s1.Prob,
		prob2:    s2.Prob,
		spanning: s1.Kind == GeneJump || s2.Kind == GeneJump,
	}, true
}

// bestAlignment finds the best accepted alignment of ev over cands. Ties go
// to the earlier candidate.
func (s *pairScorer) bestAlignment(ev Evidence, cands []candidate) (pairAlignment, bool) {
	var (
		best  pairAlignment
		found bool
	)
	for _, c := range cands {
		pa, ok := s.alignPair(ev, c)
		if ok && (!found || pa.prob() > best.prob()) {
			best, found = pa, true
		}
	}
	return best, found
}

// flankMatch checks if some window of read is within maxMismatch Hamming
// distance of flank. Candidate windows are found by exact matches of
// maxMismatch+1 disjoint pieces of flank, at least one of which must occur
// in any window that matches.
func flankMatch(read, flank string, maxMismatch int) bool {
	n := len(flank)
	if n == 0 || len(read) < n {
		return false
	}
	nPiece := min(maxMismatch+1, n)
	pieceLen := n / nPiece
	for q := 0; q < nPiece; q++ {
		off, end := q*pieceLen, (q+1)*pieceLen
		if q == nPiece-1 {
			end = n
		}
		piece := flank[off:end]
		for from := 0; from <= len(read)-len(piece); {
			i := strings.Index(read[from:], piece)
			if i < 0 {
				break
			}
			pos := from + i
			if ws := pos - off; ws >= 0 && ws+n <= len(read) {
				if d, err := matchr.Hamming(read[ws:ws+n], flank); err == nil && d <= maxMismatch {
					return true
				}
			}
			from = pos + 1
		}
	}
	return false
}

type flankEntry struct {
	state *edgeState
	cand  candidate
}

type rescue struct {
	state *edgeState
	pa    pairAlignment
}

// retest scans src for read pairs that are not evidence of an edge but whose
// mates match one of the junction flanks, and offers them to the edge.
func retest(ctx context.Context, src PairSource, states []*edgeState, opts Opts, scorers []*pairScorer) (int, error) {
	var flanks []flankEntry
	for _, s := range states {
		for _, c := range s.cands {
			if c.junction != nil && c.junction.Flank != "" {
				flanks = append(flanks, flankEntry{s, c})
			}
		}
	}
	if len(flanks) == 0 {
		return 0, nil
	}
	nRescued := 0
	nShard := len(scorers)
	batch := make([]ReadPair, 0, pairBatchSize)
	flush := func() {
		results := make([][]rescue, len(batch))
		_ = traverse.Each(nShard, func(shard int) error {
			sc := scorers[shard]
			for i := shard; i < len(batch); i += nShard {
				p := batch[i]
				if len(p.R1) == 0 || len(p.R2) == 0 {
					continue
				}
				ev := newEvidence(p)
				for _, f := range flanks {
					if f.state.ids[ev.PairID] {
						continue
					}
					if !flankMatch(ev.R1, f.cand.junction.Flank, opts.MaxFlankMismatch) &&
						!flankMatch(ev.R2, f.cand.junction.Flank, opts.MaxFlankMismatch) {
						continue
					}
					if pa, ok := sc.alignPair(ev, f.cand); ok {
						results[i] = append(results[i], rescue{f.state, pa})
					}
				}
			}
			return nil
		})
		for _, rs := range results {
			for _, r := range rs {
				if r.state.offer(r.pa) {
					nRescued++
				}
			}
		}
		batch = batch[:0]
	}
	err := src.Scan(ctx, func(p ReadPair) error {
		batch = append(batch, p)
		if len(batch) == cap(batch) {
			flush()
		}
		return nil
	})
	if err != nil {
		return nRescued, err
	}
	flush()
	return nRescued, nil
}

// edgeLikelihood computes the likelihood statistic of an edge from the
// accepted alignments of its read pairs.
func edgeLikelihood(s *edgeState, geneHits *StringMultiset, opts Opts) (likelihood float64, spanning int) {
	sum := 0.0
	for _, id := range s.order {
		pa := s.best[id]
		v := -math.Log10(1.1 - pa.prob())
		if pa.spanning {
			v *= opts.JunctionSpanWeight
			spanning++
		}
		sum += v
	}
	hits := geneHits.Count(s.edge.Gene1) + geneHits.Count(s.edge.Gene2)
	return sum / float64(1+hits) * opts.LikelihoodScale, spanning
}

// Score realigns the evidence of every edge against the edge's transcripts,
// rescues junction-spanning read pairs from src, and computes the edge
// weight, likelihood, and p-value. Edges with unknown genes or with weight
// below Opts.MinEdgeWeight are removed from g. BuildJunctions must have been
// called on g. src may be nil, in which case the re-test pass is skipped.
func Score(ctx context.Context, g *Graph, db *ExonDB, src PairSource, bg *Background, opts Opts) (Stats, error) {
	var stats Stats
	var states []*edgeState
	for _, e := range g.SortedEdges() {
		if db.Gene(e.Gene1) == nil || db.Gene(e.Gene2) == nil {
			log.Error.Printf("%s: gene not found in the reference, dropped", e.Key)
			delete(g.Edges, e.Key)
			stats.UnknownGeneEdges++
			continue
		}
		s := &edgeState{
			edge:  e,
			cands: edgeCandidates(e),
			ids:   map[string]bool{},
			best:  map[string]pairAlignment{},
		}
		for _, ev := range e.Evidence {
			s.ids[ev.PairID] = true
		}
		states = append(states, s)
	}

	nShard := max(1, opts.Parallelism)
	scorers := make([]*pairScorer, nShard)
	for i := range scorers {
		scorers[i] = &pairScorer{opts: opts, aligner: NewAligner(opts)}
	}
	_ = traverse.Each(nShard, func(shard int) error {
		sc := scorers[shard]
		for i := shard; i < len(states); i += nShard {
			s := states[i]
			for _, ev := range s.edge.Evidence {
				if pa, ok := sc.bestAlignment(ev, s.cands); ok {
					s.offer(pa)
				}
			}
		}
		return nil
	})
	if src != nil {
		n, err := retest(ctx, src, states, opts, scorers)
		if err != nil {
			return stats, err
		}
		stats.RescuedPairs = n
		log.Printf("Rescued %d junction-spanning read pairs", n)
	}

	for _, s := range states {
		e := s.edge
		e.Weight = len(s.best)
		if e.Weight < opts.MinEdgeWeight {
			log.Debug.Printf("%s: weight %d after realignment, dropped", e.Key, e.Weight)
			delete(g.Edges, e.Key)
			stats.LowWeightEdges++
			continue
		}
		e.Likelihood, e.SpanningPairs = edgeLikelihood(s, g.GeneHits, opts)
		e.PValue = bg.PValue(e.Key, e.Likelihood)
	}
	log.Printf("Scored %d edges", len(g.Edges))
	return stats, nil
}
