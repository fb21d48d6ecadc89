package fusion

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
)

// FusionCandidate is one reported fusion.
type FusionCandidate struct {
	// Gene1 and Gene2 are in the 5'->3' order.
	Gene1, Gene2 string
	Weight       int
	Likelihood   float64
	PValue       float64
	// Junctions lists the IDs of the junctions found for the edge.
	Junctions []string
}

// Candidates lists the scored edges of g whose p-value is <= maxPValue,
// sorted by p-value, then by decreasing likelihood, then by gene names.
func Candidates(g *Graph, maxPValue float64) []FusionCandidate {
	var cands []FusionCandidate
	for _, e := range g.Edges {
		if e.PValue > maxPValue {
			continue
		}
		c := FusionCandidate{
			Gene1:      e.Gene1,
			Gene2:      e.Gene2,
			Weight:     e.Weight,
			Likelihood: e.Likelihood,
			PValue:     e.PValue,
		}
		for _, j := range e.Junctions {
			c.Junctions = append(c.Junctions, j.ID)
		}
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		ci, cj := cands[i], cands[j]
		if ci.PValue != cj.PValue {
			return ci.PValue < cj.PValue
		}
		if ci.Likelihood != cj.Likelihood {
			return ci.Likelihood > cj.Likelihood
		}
		if ci.Gene1 != cj.Gene1 {
			return ci.Gene1 < cj.Gene1
		}
		return ci.Gene2 < cj.Gene2
	})
	return cands
}

// Rescore runs the junction and scoring stages on a graph built by
// BuildGraph, possibly loaded from a checkpoint.
func Rescore(ctx context.Context, g *Graph, db *ExonDB, idx *KmerIndex, src PairSource, bg *Background, opts Opts) ([]FusionCandidate, Stats, error) {
	if err := opts.Validate(); err != nil {
		return nil, Stats{}, err
	}
	if idx.K() != opts.KmerLength {
		return nil, Stats{}, errors.E(errors.Invalid,
			fmt.Sprintf("kmer index has k=%d, but KmerLength=%d", idx.K(), opts.KmerLength))
	}
	stats := BuildJunctions(g, db, idx, opts)
	scoreStats, err := Score(ctx, g, db, src, bg, opts)
	if err != nil {
		return nil, stats, err
	}
	return Candidates(g, opts.MaxPValue), stats.Merge(scoreStats), nil
}

// Predict runs the whole pipeline: graph construction from the read pairs
// in src, junction finding, and scoring. It returns the graph along with the
// fusion candidates.
func Predict(ctx context.Context, db *ExonDB, idx *KmerIndex, src PairSource, bg *Background, opts Opts) ([]FusionCandidate, *Graph, Stats, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, Stats{}, err
	}
	if idx.K() != opts.KmerLength {
		return nil, nil, Stats{}, errors.E(errors.Invalid,
			fmt.Sprintf("kmer index has k=%d, but KmerLength=%d", idx.K(), opts.KmerLength))
	}
	g, stats, err := BuildGraph(ctx, src, idx, opts)
	if err != nil {
		return nil, nil, stats, err
	}
	cands, restStats, err := Rescore(ctx, g, db, idx, src, bg, opts)
	return cands, g, stats.Merge(restStats), err
}
