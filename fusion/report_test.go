package fusion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteReport(&buf, []FusionCandidate{
		{Gene1: "G1", Gene2: "G2", Weight: 20, Likelihood: 1.5, PValue: 0.2},
		{Gene1: "BCR", Gene2: "ABL1", Weight: 3, Likelihood: 0.123456, PValue: 1},
	}))
	expect.EQ(t, strings.Split(buf.String(), "\n"), []string{
		"gene1\tgene2\tweight\tscore\tpvalue",
		"G1\tG2\t20\t1.5000\t0.2",
		"BCR\tABL1\t3\t0.1235\t1",
		"",
	})
}

func TestWriteJunctionReport(t *testing.T) {
	g := &Graph{Edges: map[string]*Edge{
		"A/B": {Key: "A/B", Gene1: "B", Gene2: "A", Junctions: []*Junction{
			{ID: "B.1.A.2", Hits: 2, LogLikelihood: -0.5, Flank: "ACGT"},
		}},
		"C/D": {Key: "C/D", Gene1: "C", Gene2: "D"},
	}}
	var buf bytes.Buffer
	assert.NoError(t, WriteJunctionReport(&buf, g))
	expect.EQ(t, buf.String(),
		"gene1\tgene2\tjunction\thits\tloglik\tflank\n"+
			"B\tA\tB.1.A.2\t2\t-0.2500\tACGT\n")
}
