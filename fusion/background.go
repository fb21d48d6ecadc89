package fusion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Background is the empirical distribution of the edge likelihood over
// gene pairs that are presumed not to be fused. It is immutable once built.
// Thread safe.
type Background struct {
	byKey  map[string][]float64 // sorted values per EdgeKey
	pooled []float64            // all values, sorted
}

// NewBackground creates a background from per-edge-key samples.
func NewBackground(samples map[string][]float64) *Background {
	b := &Background{byKey: map[string][]float64{}}
	for key, vals := range samples {
		v := append([]float64(nil), vals...)
		sort.Float64s(v)
		b.byKey[key] = v
		b.pooled = append(b.pooled, vals...)
	}
	sort.Float64s(b.pooled)
	return b
}

// Len returns the total # of samples.
func (b *Background) Len() int { return len(b.pooled) }

// Values returns the sorted samples used for the given edge key: the
// samples of that key if any, else all the samples.
func (b *Background) Values(key string) []float64 {
	if v, ok := b.byKey[key]; ok {
		return v
	}
	return b.pooled
}

// PValue computes (1 + #samples >= likelihood) / (1 + #samples) using the
// samples of the given edge key. A nil or empty background yields 1.
func (b *Background) PValue(key string, likelihood float64) float64 {
	if b == nil {
		return 1
	}
	vals := b.Values(key)
	if len(vals) == 0 {
		return 1
	}
	n := len(vals) - sort.SearchFloat64s(vals, likelihood)
	return float64(1+n) / float64(1+len(vals))
}

// ParseBackground reads a whitespace-separated background file. Each line
// has four fields: gene1, gene2, an ignored field, and the likelihood.
// Blank lines and lines starting with '#' are skipped.
func ParseBackground(r io.Reader) (*Background, error) {
	samples := map[string][]float64{}
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("background line %d: expect 4 fields, found %d", lineno, len(fields)))
		}
		v, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("background line %d: bad value %q", lineno, fields[3]))
		}
		key := EdgeKey(fields[0], fields[1])
		samples[key] = append(samples[key], v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewBackground(samples), nil
}

// ReadBackground reads a (possibly compressed) background file.
func ReadBackground(ctx context.Context, path string) (bg *Background, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		defer u.Close()
		r = u
	}
	if bg, err = ParseBackground(r); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("Read %d background samples of %d gene pairs from %s", bg.Len(), len(bg.byKey), path)
	return bg, nil
}
