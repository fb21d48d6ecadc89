package fusion

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

const (
	// MinKmerLength and MaxKmerLength bound Opts.KmerLength.
	MinKmerLength = 1
	MaxKmerLength = 32
)

type Opts struct {
	// KmerLength is the length of kmer used to match reads against exons.
	KmerLength int
	// MinKmerMatch is the min # of unique kmer matches a gene needs in a read
	// pair to become an edge endpoint.
	MinKmerMatch int
	// MinExonKmerMatch is the min # of unique kmer matches an exon needs in a
	// read pair for the exon to be part of the junction search sequence.
	MinExonKmerMatch int
	// MinEdgeWeight is the min # of distinct read pairs an edge needs to be
	// reported.
	MinEdgeWeight int
	// MaxGenePartners caps number of partners a gene can have. Genes above the
	// cap lose all their edges. Zero disables the filter.
	MaxGenePartners int
	// LowComplexityFraction determines whether a read pair should be dropped
	// because it contains too many repetition of the same base types. If
	// either mate exceeds it, the pair is dropped without further analyses.
	LowComplexityFraction float64

	// Alignment scores. Penalties are positive numbers that get subtracted.
	MatchScore          int
	MismatchPenalty     int
	GapOpenPenalty      int
	GapExtensionPenalty int
	// GeneJumpPenalty is charged once when an alignment crosses the gene/gene
	// boundary of a transcript.
	GeneJumpPenalty int
	// ExonJumpPenalty is charged when an alignment skips from the end of one
	// exon to the start of a later exon of the same gene.
	ExonJumpPenalty int

	// MinReadLength is the shortest read (and reference) the aligner accepts.
	MinReadLength int
	// MinAlignScore is the min normalized alignment score, in [0,1], for an
	// alignment to count as evidence.
	MinAlignScore float64

	// MinJunctionHits is the min # of read alignments that must agree on a
	// junction for it to be kept.
	MinJunctionHits int
	// JunctionFlankLength is the length of the sequence snippet kept around
	// each junction.
	JunctionFlankLength int
	// MaxFlankMismatch is the max Hamming distance between a read window and a
	// junction flank for the read to be rescued in the re-test pass.
	MaxFlankMismatch int

	// JunctionSpanWeight multiplies the likelihood contribution of read pairs
	// that cross the fusion point.
	JunctionSpanWeight float64
	// LikelihoodScale rescales the per-edge likelihood.
	LikelihoodScale float64
	// MaxPValue drops edges with larger p-values from the report. 1 keeps all.
	MaxPValue float64

	// Parallelism is the number of edges processed concurrently.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	KmerLength:            25,  // -k
	MinKmerMatch:          2,   // -min-kmer-match
	MinExonKmerMatch:      1,   // -min-exon-kmer-match
	MinEdgeWeight:         2,   // -min-edge-weight
	MaxGenePartners:       0,   // -max-gene-partners
	LowComplexityFraction: 0.9, // -low-complexity-fraction
	MatchScore:            2,   // -match
	MismatchPenalty:       2,   // -mismatch
	GapOpenPenalty:        5,   // -gap-open
	GapExtensionPenalty:   1,   // -gap-ext
	GeneJumpPenalty:       10,  // -gene-jump
	ExonJumpPenalty:       8,   // -exon-jump
	MinReadLength:         20,  // -min-read-length
	MinAlignScore:         0.8, // -min-align-score
	MinJunctionHits:       2,   // -min-junction-hits
	JunctionFlankLength:   40,  // -flank-length
	MaxFlankMismatch:      2,   // -max-flank-mismatch
	JunctionSpanWeight:    2,   // -span-weight
	LikelihoodScale:       1e4, // -likelihood-scale
	MaxPValue:             1,   // -max-pvalue
	Parallelism:           8,   // -parallelism
}

// Validate checks that the option values are in range. It returns an
// errors.Invalid error naming the first bad field.
func (o Opts) Validate() error {
	bad := func(name string, v interface{}) error {
		return errors.E(errors.Invalid, fmt.Sprintf("fusion opts: bad value for %s: %v", name, v))
	}
	switch {
	case o.KmerLength < MinKmerLength || o.KmerLength > MaxKmerLength:
		return bad("KmerLength", o.KmerLength)
	case o.MinKmerMatch < 1:
		return bad("MinKmerMatch", o.MinKmerMatch)
	case o.MinExonKmerMatch < 1:
		return bad("MinExonKmerMatch", o.MinExonKmerMatch)
	case o.MinEdgeWeight < 1:
		return bad("MinEdgeWeight", o.MinEdgeWeight)
	case o.MaxGenePartners < 0:
		return bad("MaxGenePartners", o.MaxGenePartners)
	case o.LowComplexityFraction < 0 || o.LowComplexityFraction > 1:
		return bad("LowComplexityFraction", o.LowComplexityFraction)
	case o.MatchScore <= 0:
		return bad("MatchScore", o.MatchScore)
	case o.MismatchPenalty < 0:
		return bad("MismatchPenalty", o.MismatchPenalty)
	case o.GapOpenPenalty < 0:
		return bad("GapOpenPenalty", o.GapOpenPenalty)
	case o.GapExtensionPenalty < 0:
		return bad("GapExtensionPenalty", o.GapExtensionPenalty)
	case o.GeneJumpPenalty < 0:
		return bad("GeneJumpPenalty", o.GeneJumpPenalty)
	case o.ExonJumpPenalty < 0:
		return bad("ExonJumpPenalty", o.ExonJumpPenalty)
	case o.MinReadLength < 1:
		return bad("MinReadLength", o.MinReadLength)
	case o.MinAlignScore < 0 || o.MinAlignScore > 1:
		return bad("MinAlignScore", o.MinAlignScore)
	case o.MinJunctionHits < 1:
		return bad("MinJunctionHits", o.MinJunctionHits)
	case o.JunctionFlankLength < 2:
		return bad("JunctionFlankLength", o.JunctionFlankLength)
	case o.MaxFlankMismatch < 0:
		return bad("MaxFlankMismatch", o.MaxFlankMismatch)
	case o.JunctionSpanWeight <= 0:
		return bad("JunctionSpanWeight", o.JunctionSpanWeight)
	case o.LikelihoodScale <= 0:
		return bad("LikelihoodScale", o.LikelihoodScale)
	case o.MaxPValue < 0 || o.MaxPValue > 1:
		return bad("MaxPValue", o.MaxPValue)
	case o.Parallelism < 1:
		return bad("Parallelism", o.Parallelism)
	}
	return nil
}
