package fusion

import (
	"io"

	"github.com/grailbio/base/tsv"
)

// WriteReport writes the candidates as a TSV with the columns gene1, gene2,
// weight, score, pvalue.
func WriteReport(w io.Writer, cands []FusionCandidate) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("gene1\tgene2\tweight\tscore\tpvalue")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, c := range cands {
		tw.WriteString(c.Gene1)
		tw.WriteString(c.Gene2)
		tw.WriteInt64(int64(c.Weight))
		tw.WriteFloat64(c.Likelihood, 'f', 4)
		tw.WriteFloat64(c.PValue, 'g', 6)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteJunctionReport writes every junction of the graph as a TSV with the
// columns gene1, gene2, junction, hits, loglik, flank. Mean log10 likelihoods
// are reported.
func WriteJunctionReport(w io.Writer, g *Graph) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("gene1\tgene2\tjunction\thits\tloglik\tflank")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, e := range g.SortedEdges() {
		for _, j := range e.Junctions {
			tw.WriteString(e.Gene1)
			tw.WriteString(e.Gene2)
			tw.WriteString(j.ID)
			tw.WriteInt64(int64(j.Hits))
			tw.WriteFloat64(j.MeanLogLikelihood(), 'f', 4)
			tw.WriteString(j.Flank)
			if err := tw.EndLine(); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}
