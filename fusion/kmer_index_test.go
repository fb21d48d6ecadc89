package fusion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/bagfusion/encoding/fasta"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
)

func TestOccurrence(t *testing.T) {
	o := Occurrence{Exon: ExonID{"G1", 2}, Offset: 17}
	expect.EQ(t, FormatOccurrence(o), "G1.2_17")
	o2, err := ParseOccurrence("G1.2_17")
	assert.NoError(t, err)
	expect.EQ(t, o2, o)

	for _, s := range []string{"G1.2", "G1.2_", "G1.2_x", "G1.2_-1", "G1_3", "_3"} {
		_, err := ParseOccurrence(s)
		expect.True(t, errors.Is(errors.Invalid, err), "occurrence: %q", s)
	}
}

func TestKmerIndexEverySubstring(t *testing.T) {
	ref := newTestRef(t)
	k := ref.idx.K()
	expect.EQ(t, k, testKmerLength)
	for _, ex := range ref.db.Exons() {
		for off := 0; off+k <= len(ex.Seq); off++ {
			occs := ref.idx.Lookup(ex.Seq[off : off+k])
			expect.That(t, occs, h.Contains(Occurrence{Exon: ex.ID, Offset: off}))
		}
	}
	expect.True(t, ref.idx.Lookup("ACGT") == nil)
	expect.True(t, ref.idx.Lookup(strings.Repeat("N", k)) == nil)
}

func TestKmerIndexUnique(t *testing.T) {
	db, err := NewExonDB([]fasta.Record{
		{Name: "A.1", Seq: "AACCGGTT"},
		{Name: "B.1", Seq: "CCGGAAAA"},
		{Name: "B.2", Seq: "TTTTNACG"},
	})
	assert.NoError(t, err)
	idx, err := NewKmerIndex(db, 4)
	assert.NoError(t, err)

	expect.EQ(t, idx.Lookup("CCGG"), []Occurrence{
		{Exon: ExonID{"A", 1}, Offset: 2},
		{Exon: ExonID{"B", 1}, Offset: 0},
	})
	_, ok := idx.Unique("CCGG")
	expect.False(t, ok)
	occ, ok := idx.Unique("GGAA")
	expect.True(t, ok)
	expect.EQ(t, occ, Occurrence{Exon: ExonID{"B", 1}, Offset: 2})
	// Kmers spanning N are not indexed.
	expect.True(t, idx.Lookup("TTTN") == nil)
	expect.True(t, idx.Lookup("NACG") == nil)
	_, ok = idx.Unique("AAAA")
	expect.True(t, ok)

	km := newKmerizer(4)
	hits := idx.uniqueHits(km, "GGAAAAC", nil)
	expect.EQ(t, hits, []kmerHit{
		{pos: 0, occ: Occurrence{Exon: ExonID{"B", 1}, Offset: 2}},
		{pos: 1, occ: Occurrence{Exon: ExonID{"B", 1}, Offset: 3}},
		{pos: 2, occ: Occurrence{Exon: ExonID{"B", 1}, Offset: 4}},
	})
}

// Only kmers made of A, C, G, and T are indexed. Windows over other bases,
// such as N, are neither indexed nor looked up.
func TestKmerIndexAmbiguousBases(t *testing.T) {
	const seq = "AACGTNTTGCA"
	db, err := NewExonDB([]fasta.Record{{Name: "A.1", Seq: seq}})
	assert.NoError(t, err)
	idx, err := NewKmerIndex(db, 3)
	assert.NoError(t, err)
	for off := 0; off+3 <= len(seq); off++ {
		kmer := seq[off : off+3]
		if strings.Contains(kmer, "N") {
			expect.True(t, idx.Lookup(kmer) == nil, "kmer: %s", kmer)
			continue
		}
		expect.EQ(t, idx.Lookup(kmer), []Occurrence{{Exon: ExonID{"A", 1}, Offset: off}}, "kmer: %s", kmer)
	}
}

func TestKmerIndexErrors(t *testing.T) {
	db, err := NewExonDB([]fasta.Record{{Name: "A.1", Seq: "ACGTACGT"}})
	assert.NoError(t, err)
	_, err = NewKmerIndex(db, 0)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewKmerIndex(db, 33)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewKmerIndex(db, 8)
	expect.HasSubstr(t, err.Error(), "must be > kmer length")
	idx, err := NewKmerIndex(db, 7)
	assert.NoError(t, err)
	expect.EQ(t, idx.Len(), 2)
}

func TestKmerIndexCodec(t *testing.T) {
	ref := newTestRef(t)
	var buf bytes.Buffer
	assert.NoError(t, WriteKmerIndex(&buf, ref.idx))
	text := buf.String()

	idx, err := ReadKmerIndex(strings.NewReader(text))
	assert.NoError(t, err)
	expect.EQ(t, idx.K(), ref.idx.K())
	expect.EQ(t, idx.Len(), ref.idx.Len())
	for _, k := range ref.idx.sortedKmers() {
		expect.EQ(t, idx.get(k), ref.idx.get(k))
	}
	buf.Reset()
	assert.NoError(t, WriteKmerIndex(&buf, idx))
	expect.EQ(t, buf.String(), text)

	for _, bad := range []string{
		"",
		">ACGT 1\nA.1_0\n>ACG 1\nA.1_0\n",
		">ACGT 2\nA.1_0\n",
		">ACNT 1\nA.1_0\n",
		">ACGT x\nA.1_0\n",
		">ACGT 1\nA1_0\n",
		">ACGT 1\nA.1_0\n>ACGT 1\nA.1_1\n",
	} {
		_, err := ReadKmerIndex(strings.NewReader(bad))
		expect.NotNil(t, err, "input: %q", bad)
	}
}

func TestKmerIndexFile(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ref := newTestRef(t)
	for _, name := range []string{"index.txt", "index.txt.gz"} {
		path := tempDir + "/" + name
		assert.NoError(t, SaveKmerIndex(ctx, path, ref.idx))
		idx, err := LoadKmerIndex(ctx, path)
		assert.NoError(t, err)
		expect.EQ(t, idx.Len(), ref.idx.Len())
		for _, k := range ref.idx.sortedKmers() {
			expect.EQ(t, idx.get(k), ref.idx.get(k))
		}
	}
}
