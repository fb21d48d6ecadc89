package fusion

import (
	"context"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/minio/highwayhash"
)

// edgeKeySep separates the two gene names in an edge key.
const edgeKeySep = "/"

// EdgeKey computes the key of the edge between two genes. The key is the
// same regardless of the argument order.
func EdgeKey(gene1, gene2 string) string {
	if gene2 < gene1 {
		gene1, gene2 = gene2, gene1
	}
	return gene1 + edgeKeySep + gene2
}

// SplitEdgeKey is the inverse of EdgeKey. The genes are returned in the
// lexicographic order.
func SplitEdgeKey(key string) (string, string) {
	i := strings.Index(key, edgeKeySep)
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+len(edgeKeySep):]
}

// Evidence is a read pair that supports an edge. The mates are stored in the
// transcript orientation.
type Evidence struct {
	PairID string
	// R1 is the reverse complement of the first mate.
	R1 string
	// R2 is the second mate as is.
	R2 string
}

// Seq returns R1 followed by R2. Offsets into R2 are shifted by len(R1) in
// this string.
func (e Evidence) Seq() string { return e.R1 + e.R2 }

func newEvidence(p ReadPair) Evidence {
	return Evidence{
		PairID: p.ID,
		R1:     reverseComplement(strings.ToUpper(p.R1)),
		R2:     strings.ToUpper(p.R2),
	}
}

// Edge is a candidate fusion between two genes.
type Edge struct {
	// Key is EdgeKey(Gene1, Gene2).
	Key string
	// Gene1 and Gene2 are the fusion partners in the 5'->3' order.
	Gene1, Gene2 string
	Evidence     []Evidence
	// Weight is the # of distinct read pairs that support the edge.
	Weight int

	// Junctions are the breakpoints found by BuildJunctions, sorted by ID.
	Junctions []*Junction
	// NoJunction is the whole-gene transcript used when Junctions is empty.
	NoJunction *Transcript

	// Likelihood, PValue and SpanningPairs are filled by Score.
	Likelihood    float64
	PValue        float64
	SpanningPairs int
}

// Graph is the breakend-associated graph: genes are nodes, candidate fusions
// are edges.
type Graph struct {
	// Edges maps EdgeKey to the edge.
	Edges map[string]*Edge
	// GeneHits counts the unique kmer matches of each gene over all scanned
	// read pairs.
	GeneHits *StringMultiset
}

// SortedEdges returns the edges sorted by key.
func (g *Graph) SortedEdges() []*Edge {
	edges := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key < edges[j].Key })
	return edges
}

type geneCount struct {
	gene string
	n    int
}

type skipReason int

const (
	notSkipped skipReason = iota
	skipEmpty
	skipLowComplexity
	skipSingleGene
)

// pairResult is the outcome of matching one read pair against the index.
type pairResult struct {
	skip   skipReason
	ev     Evidence
	counts []geneCount
	genes  []string // genes with >= MinKmerMatch unique hits, sorted.
}

// pairMatcher matches read pairs against the kmer index. Thread compatible.
type pairMatcher struct {
	idx   *KmerIndex
	opts  Opts
	km    *kmerizer
	hits  []kmerHit
	genes *StringMultiset
}

func newPairMatcher(idx *KmerIndex, opts Opts) *pairMatcher {
	return &pairMatcher{
		idx:   idx,
		opts:  opts,
		km:    newKmerizer(idx.K()),
		genes: NewStringMultiset(),
	}
}

// pairHits lists the unique kmer matches of ev. Positions are in the
// ev.Seq() coordinate.
func (m *pairMatcher) pairHits(ev Evidence) []kmerHit {
	m.hits = m.idx.uniqueHits(m.km, ev.R1, m.hits[:0])
	n := len(m.hits)
	m.hits = m.idx.uniqueHits(m.km, ev.R2, m.hits)
	for i := n; i < len(m.hits); i++ {
		m.hits[i].pos += len(ev.R1)
	}
	return m.hits
}

func (m *pairMatcher) match(p ReadPair, r *pairResult) {
	*r = pairResult{}
	if len(p.R1) == 0 || len(p.R2) == 0 {
		r.skip = skipEmpty
		return
	}
	if IsLowComplexity(p.R1, m.opts.LowComplexityFraction) || IsLowComplexity(p.R2, m.opts.LowComplexityFraction) {
		r.skip = skipLowComplexity
		return
	}
	r.ev = newEvidence(p)
	m.genes.Reset()
	for _, h := range m.pairHits(r.ev) {
		m.genes.Add(h.occ.Exon.Gene)
	}
	for gene, n := range m.genes.counts {
		r.counts = append(r.counts, geneCount{gene, n})
	}
	r.genes = m.genes.AtLeast(m.opts.MinKmerMatch)
	if len(r.genes) < 2 {
		r.skip = skipSingleGene
	}
}

// GraphBuilder accumulates read pairs into a Graph. Thread compatible.
type GraphBuilder struct {
	idx      *KmerIndex
	opts     Opts
	matchers []*pairMatcher
	edges    map[string]*Edge
	geneHits *StringMultiset
	stats    Stats
}

// NewGraphBuilder creates an empty GraphBuilder.
func NewGraphBuilder(idx *KmerIndex, opts Opts) *GraphBuilder {
	b := &GraphBuilder{
		idx:      idx,
		opts:     opts,
		edges:    map[string]*Edge{},
		geneHits: NewStringMultiset(),
	}
	for i := 0; i < max(1, opts.Parallelism); i++ {
		b.matchers = append(b.matchers, newPairMatcher(idx, opts))
	}
	return b
}

// AddBatch adds read pairs to the graph. Pairs are matched in parallel, but
// evidence is recorded in the order of the pairs.
func (b *GraphBuilder) AddBatch(pairs []ReadPair) {
	results := make([]pairResult, len(pairs))
	nShard := len(b.matchers)
	_ = traverse.Each(nShard, func(shard int) error {
		m := b.matchers[shard]
		for i := shard; i < len(pairs); i += nShard {
			m.match(pairs[i], &results[i])
		}
		return nil
	})
	for i := range results {
		b.add(&results[i])
	}
}

// Add adds one read pair to the graph.
func (b *GraphBuilder) Add(p ReadPair) {
	var r pairResult
	b.matchers[0].match(p, &r)
	b.add(&r)
}

func (b *GraphBuilder) add(r *pairResult) {
	b.stats.Pairs++
	for _, c := range r.counts {
		b.geneHits.AddN(c.gene, c.n)
	}
	switch r.skip {
	case skipEmpty:
		b.stats.EmptyPairs++
		return
	case skipLowComplexity:
		b.stats.LowComplexityPairs++
		return
	case skipSingleGene:
		b.stats.SingleGenePairs++
		return
	}
	b.stats.FusionPairs++
	// The genes are distinct, so there are no self pairs.
	for i := 0; i < len(r.genes); i++ {
		for j := i + 1; j < len(r.genes); j++ {
			key := EdgeKey(r.genes[i], r.genes[j])
			e := b.edges[key]
			if e == nil {
				g1, g2 := SplitEdgeKey(key)
				e = &Edge{Key: key, Gene1: g1, Gene2: g2}
				b.edges[key] = e
				b.stats.Edges++
			}
			e.Evidence = append(e.Evidence, r.ev)
		}
	}
}

// orderVote sums, over the evidence of e, the sign of (mean Gene1 hit
// position - mean Gene2 hit position). A positive sum means Gene2 is
// upstream of Gene1.
func (m *pairMatcher) orderVote(e *Edge) int {
	vote := 0
	for _, ev := range e.Evidence {
		var sum1, n1, sum2, n2 int
		for _, h := range m.pairHits(ev) {
			switch h.occ.Exon.Gene {
			case e.Gene1:
				sum1 += h.pos
				n1++
			case e.Gene2:
				sum2 += h.pos
				n2++
			}
		}
		if n1 == 0 || n2 == 0 {
			continue
		}
		// Compare sum1/n1 and sum2/n2 without division.
		switch d := sum1*n2 - sum2*n1; {
		case d > 0:
			vote++
		case d < 0:
			vote--
		}
	}
	return vote
}

type hashKey = [highwayhash.Size]uint8

var zeroSeed = hashKey{}

// dedupEvidence removes evidence whose mates are identical to an earlier
// one. It returns the # of entries removed.
func dedupEvidence(e *Edge) int {
	seen := make(map[hashKey]struct{}, len(e.Evidence))
	var buf []byte
	n := 0
	for _, ev := range e.Evidence {
		buf = append(buf[:0], gunsafe.StringToBytes(ev.R1)...)
		buf = append(buf, 0)
		buf = append(buf, gunsafe.StringToBytes(ev.R2)...)
		h := highwayhash.Sum(buf, zeroSeed[:])
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		e.Evidence[n] = ev
		n++
	}
	removed := len(e.Evidence) - n
	e.Evidence = e.Evidence[:n]
	return removed
}

// discardAbundantPartners drops the edges of genes that have more than
// maxGenePartners partners. It returns the # of edges dropped.
func discardAbundantPartners(edges map[string]*Edge, maxGenePartners int) int {
	if maxGenePartners <= 0 {
		return 0
	}
	partners := map[string]int{}
	for _, e := range edges {
		partners[e.Gene1]++
		partners[e.Gene2]++
	}
	n := 0
	for key, e := range edges {
		if partners[e.Gene1] > maxGenePartners || partners[e.Gene2] > maxGenePartners {
			delete(edges, key)
			n++
		}
	}
	if n > 0 {
		log.Printf("Discarding %d of %d edges for having too many fusion partners", n, len(edges)+n)
	}
	return n
}

// Finish infers the gene order of each edge, dedups evidence, and drops
// edges that fail the thresholds. The builder must not be used afterwards.
func (b *GraphBuilder) Finish() (*Graph, Stats) {
	edges := make([]*Edge, 0, len(b.edges))
	for _, e := range b.edges {
		edges = append(edges, e)
	}
	votes := make([]int, len(edges))
	nShard := len(b.matchers)
	_ = traverse.Each(nShard, func(shard int) error {
		m := b.matchers[shard]
		for i := shard; i < len(edges); i += nShard {
			votes[i] = m.orderVote(edges[i])
		}
		return nil
	})
	for i, e := range edges {
		switch {
		case votes[i] > 0:
			e.Gene1, e.Gene2 = e.Gene2, e.Gene1
		case votes[i] == 0:
			log.Debug.Printf("%s: ambiguous gene order, dropped", e.Key)
			delete(b.edges, e.Key)
			b.stats.AmbiguousOrderEdges++
			continue
		}
		b.stats.DuplicateEvidence += dedupEvidence(e)
		e.Weight = len(e.Evidence)
	}
	b.stats.AbundantPartnerEdges += discardAbundantPartners(b.edges, b.opts.MaxGenePartners)
	for key, e := range b.edges {
		if e.Weight < b.opts.MinEdgeWeight {
			delete(b.edges, key)
			b.stats.LowWeightEdges++
		}
	}
	log.Printf("Built graph: %d edges from %d read pairs", len(b.edges), b.stats.Pairs)
	return &Graph{Edges: b.edges, GeneHits: b.geneHits}, b.stats
}

// pairBatchSize is the # of read pairs matched in one parallel batch.
const pairBatchSize = 4096

// BuildGraph scans all the read pairs in src and builds the graph.
func BuildGraph(ctx context.Context, src PairSource, idx *KmerIndex, opts Opts) (*Graph, Stats, error) {
	b := NewGraphBuilder(idx, opts)
	batch := make([]ReadPair, 0, pairBatchSize)
	n := 0
	err := src.Scan(ctx, func(p ReadPair) error {
		batch = append(batch, p)
		if len(batch) == cap(batch) {
			b.AddBatch(batch)
			batch = batch[:0]
		}
		if n++; n%(1<<20) == 0 {
			log.Printf("Scanned %d read pairs, %d edges", n, len(b.edges))
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, err
	}
	b.AddBatch(batch)
	g, stats := b.Finish()
	return g, stats, nil
}
