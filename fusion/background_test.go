package fusion

import (
	"io/ioutil"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestBackgroundPValue(t *testing.T) {
	bg := NewBackground(map[string][]float64{
		"A/B": {3, 1, 2},
		"C/D": {10},
	})
	expect.EQ(t, bg.Len(), 4)
	expect.EQ(t, bg.Values("A/B"), []float64{1, 2, 3})
	expect.EQ(t, bg.Values("X/Y"), []float64{1, 2, 3, 10})

	expect.EQ(t, bg.PValue("A/B", 0), 1.0)
	expect.EQ(t, bg.PValue("A/B", 2), 3.0/4)
	expect.EQ(t, bg.PValue("A/B", 2.5), 2.0/4)
	expect.EQ(t, bg.PValue("A/B", 100), 1.0/4)
	// Unknown keys use all the samples.
	expect.EQ(t, bg.PValue("X/Y", 5), 2.0/5)

	prev := 2.0
	for l := -1.0; l < 12; l += 0.25 {
		p := bg.PValue("X/Y", l)
		expect.True(t, p <= prev, "likelihood %v", l)
		expect.True(t, p > 0 && p <= 1)
		prev = p
	}

	var nilBG *Background
	expect.EQ(t, nilBG.PValue("A/B", 1), 1.0)
	expect.EQ(t, NewBackground(nil).PValue("A/B", 1), 1.0)
}

func TestParseBackground(t *testing.T) {
	bg, err := ParseBackground(strings.NewReader(`# gene1 gene2 n likelihood
B  A	10 1.5

A B 3 0.5
C D 1 2
`))
	assert.NoError(t, err)
	expect.EQ(t, bg.Values("A/B"), []float64{0.5, 1.5})
	expect.EQ(t, bg.Values("C/D"), []float64{2})

	_, err = ParseBackground(strings.NewReader("A B 1\n"))
	expect.HasSubstr(t, err.Error(), "expect 4 fields")
	_, err = ParseBackground(strings.NewReader("A B 1 x\n"))
	expect.HasSubstr(t, err.Error(), "bad value")
}

func TestReadBackground(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := tempDir + "/background.txt"
	assert.NoError(t, ioutil.WriteFile(path, []byte("A B 1 0.5\nA B 1 0.7\n"), 0644))
	bg, err := ReadBackground(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, bg.Len(), 2)
	_, err = ReadBackground(ctx, tempDir+"/nonexistent")
	expect.NotNil(t, err)
}
