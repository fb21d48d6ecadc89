package fusion

import "github.com/grailbio/base/log"

// Stats represents high-level statistics during a fusion-prediction run.
type Stats struct {
	// Pairs is the # of read pairs scanned.
	Pairs int
	// EmptyPairs is the # of read pairs where one of the mates has no bases.
	EmptyPairs int
	// LowComplexityPairs is the # of read pairs where one of the mates is
	// found to have low complexity.
	LowComplexityPairs int
	// SingleGenePairs is the # of read pairs that matched fewer than two genes.
	SingleGenePairs int
	// FusionPairs is the # of read pairs that became evidence of some edge.
	FusionPairs int

	// Edges is the # of edges created during graph construction.
	Edges int
	// AmbiguousOrderEdges is the # of edges dropped because the gene order
	// votes summed to zero.
	AmbiguousOrderEdges int
	// DuplicateEvidence is the # of evidence entries removed by dedup.
	DuplicateEvidence int
	// AbundantPartnerEdges is the # of edges dropped by Opts.MaxGenePartners.
	AbundantPartnerEdges int
	// LowWeightEdges is the # of edges dropped by Opts.MinEdgeWeight, during
	// graph construction or scoring.
	LowWeightEdges int

	// Junctions is the # of junctions that survived Opts.MinJunctionHits.
	Junctions int
	// NoJunctionEdges is the # of edges scored against the whole-gene
	// transcript.
	NoJunctionEdges int
	// RescuedPairs is the # of read pairs added by the junction re-test pass.
	RescuedPairs int
	// UnknownGeneEdges is the # of edges dropped because a gene is not in
	// the reference.
	UnknownGeneEdges int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Pairs += o.Pairs
	s.EmptyPairs += o.EmptyPairs
	s.LowComplexityPairs += o.LowComplexityPairs
	s.SingleGenePairs += o.SingleGenePairs
	s.FusionPairs += o.FusionPairs
	s.Edges += o.Edges
	s.AmbiguousOrderEdges += o.AmbiguousOrderEdges
	s.DuplicateEvidence += o.DuplicateEvidence
	s.AbundantPartnerEdges += o.AbundantPartnerEdges
	s.LowWeightEdges += o.LowWeightEdges
	s.Junctions += o.Junctions
	s.NoJunctionEdges += o.NoJunctionEdges
	s.RescuedPairs += o.RescuedPairs
	s.UnknownGeneEdges += o.UnknownGeneEdges
	return s
}

// Log prints the stats.
func (s Stats) Log() {
	log.Printf("Stats: %+v", s)
}
