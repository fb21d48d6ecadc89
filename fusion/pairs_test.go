package fusion

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/grailbio/bagfusion/encoding/fastq"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

func writeTestFASTQ(t *testing.T, r1Path, r2Path string, pairs []ReadPair) {
	create := func(path string) (*os.File, *gzip.Writer) {
		f, err := os.Create(path)
		assert.NoError(t, err)
		return f, gzip.NewWriter(f)
	}
	f1, gz1 := create(r1Path)
	f2, gz2 := create(r2Path)
	w := fastq.NewPairWriter(gz1, gz2)
	for _, p := range pairs {
		assert.NoError(t, w.Write(p.ID, p.R1, p.R2))
	}
	assert.NoError(t, gz1.Close())
	assert.NoError(t, gz2.Close())
	assert.NoError(t, f1.Close())
	assert.NoError(t, f2.Close())
}

func TestOpenFASTQ(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	pairs := []ReadPair{{ID: "frag0", R1: "ACGTACGT", R2: "TTGGCCAA"}}
	writeTestFASTQ(t, tempDir+"/r1.fastq.gz", tempDir+"/r2.fastq.gz", pairs)
	assert.NoError(t, ioutil.WriteFile(tempDir+"/r1.fastq", []byte("@frag0/1\nACGTACGT\n+\nIIIIIIII\n"), 0644))

	for _, path := range []string{tempDir + "/r1.fastq.gz", tempDir + "/r1.fastq"} {
		in, r, err := openFASTQ(ctx, path)
		assert.NoError(t, err)
		data, err := ioutil.ReadAll(r)
		assert.NoError(t, err)
		expect.EQ(t, string(data), "@frag0/1\nACGTACGT\n+\nIIIIIIII\n", "path: %s", path)
		expect.NoError(t, r.Close())
		expect.NoError(t, in.Close(ctx))
	}
}

func TestFASTQPairSource(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	pairs := []ReadPair{
		{ID: "frag0", R1: "ACGTACGT", R2: "TTGGCCAA"},
		{ID: "frag1", R1: "GGGGCCCC", R2: "ATATATAT"},
	}
	src := FASTQPairSource{R1Path: tempDir + "/r1.fastq.gz", R2Path: tempDir + "/r2.fastq.gz"}
	writeTestFASTQ(t, src.R1Path, src.R2Path, pairs)

	// The source can be scanned more than once.
	for i := 0; i < 2; i++ {
		var got []ReadPair
		assert.NoError(t, src.Scan(ctx, func(p ReadPair) error {
			got = append(got, p)
			return nil
		}))
		expect.EQ(t, got, pairs)
	}

	r2 := "@frag0/2\nTTGGCCAA\n+\nIIIIIIII\n@other/2\nATATATAT\n+\nIIIIIIII\n"
	assert.NoError(t, ioutil.WriteFile(tempDir+"/bad_r2.fastq", []byte(r2), 0644))
	src.R2Path = tempDir + "/bad_r2.fastq"
	n := 0
	err := src.Scan(ctx, func(p ReadPair) error {
		n++
		return nil
	})
	expect.EQ(t, n, 1)
	expect.HasSubstr(t, err.Error(), "mismatched FASTQ pair")

	src.R2Path = tempDir + "/nonexistent.fastq"
	expect.NotNil(t, src.Scan(ctx, func(p ReadPair) error { return nil }))
}
