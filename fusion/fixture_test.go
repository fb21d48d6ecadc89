package fusion

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/bagfusion/encoding/fasta"
	"github.com/grailbio/testutil/assert"
)

const testKmerLength = 12

func randomSeq(r *rand.Rand, n int) string {
	const bases = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = bases[r.Intn(4)]
	}
	return string(b)
}

// testRef is a small reference: genes G1 and G2 with two 40bp exons each,
// and G3 with one exon.
type testRef struct {
	exons map[string]string // exon ID -> seq
	db    *ExonDB
	idx   *KmerIndex
	// fused is G1.1+G1.2+G2.1+G2.2. The gene split is at 80.
	fused string
}

func newTestRef(t *testing.T) *testRef {
	r := rand.New(rand.NewSource(1))
	ref := &testRef{exons: map[string]string{}}
	var recs []fasta.Record
	for _, name := range []string{"G1.1", "G1.2", "G2.1", "G2.2", "G3.1"} {
		seq := randomSeq(r, 40)
		ref.exons[name] = seq
		recs = append(recs, fasta.Record{Name: name, Seq: seq})
	}
	var err error
	ref.db, err = NewExonDB(recs)
	assert.NoError(t, err)
	ref.idx, err = NewKmerIndex(ref.db, testKmerLength)
	assert.NoError(t, err)
	ref.fused = ref.exons["G1.1"] + ref.exons["G1.2"] + ref.exons["G2.1"] + ref.exons["G2.2"]
	return ref
}

// fusionPairs creates n read pairs from transcript seq. The transcript-
// oriented first mate of pair i starts at 45+i, and the second mate 5 bases
// later. Both mates are 50bp, so with a split at 80 both cross it.
func fusionPairs(prefix, seq string, n int) []ReadPair {
	var pairs []ReadPair
	for i := 0; i < n; i++ {
		s := 45 + i
		pairs = append(pairs, ReadPair{
			ID: fmt.Sprintf("%s%d", prefix, i),
			R1: reverseComplement(seq[s : s+50]),
			R2: seq[s+5 : s+55],
		})
	}
	return pairs
}

func testOpts() Opts {
	opts := DefaultOpts
	opts.KmerLength = testKmerLength
	opts.Parallelism = 3
	return opts
}

// mutate replaces the base at pos with its complement.
func mutate(seq string, pos int) string {
	return seq[:pos] + reverseComplement(seq[pos:pos+1]) + seq[pos+1:]
}

func TestFixture(t *testing.T) {
	ref := newTestRef(t)
	assert.EQ(t, len(ref.fused), 160)
	assert.True(t, strings.HasPrefix(ref.fused, ref.exons["G1.1"]))
	for _, p := range fusionPairs("f", ref.fused, 20) {
		assert.EQ(t, len(p.R1), 50)
		assert.EQ(t, len(p.R2), 50)
	}
}
