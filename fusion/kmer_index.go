package fusion

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	farm "github.com/dgryski/go-farm"
	"github.com/exascience/pargo/parallel"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// This file implements the kmer -> occurrence-list map.  The map is sharded
// 256-ways, using the lower 8 bits of farmhash(kmer) to pick the shard, so
// that the index can be built from many exons concurrently.

const nKmerIndexShard = 256 // # of shards in the index.

// Occurrence is one place a kmer appears in the reference: the exon and
// the 0-based offset within the exon. Its text form is "gene.exon_offset".
type Occurrence struct {
	Exon   ExonID
	Offset int
}

// String returns "gene.exon_offset".
func (o Occurrence) String() string { return o.Exon.String() + "_" + strconv.Itoa(o.Offset) }

// FormatOccurrence is the same as o.String().
func FormatOccurrence(o Occurrence) string { return o.String() }

// ParseOccurrence parses "gene.exon_offset".
func ParseOccurrence(s string) (Occurrence, error) {
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		return Occurrence{}, errors.E(errors.Invalid, fmt.Sprintf("occurrence %q: expect 'exonid_offset'", s))
	}
	id, err := ParseExonID(s[:i])
	if err != nil {
		return Occurrence{}, err
	}
	off, err := strconv.Atoi(s[i+1:])
	if err != nil || off < 0 {
		return Occurrence{}, errors.E(errors.Invalid, fmt.Sprintf("occurrence %q: bad offset", s))
	}
	return Occurrence{Exon: id, Offset: off}, nil
}

func occurrenceLess(a, b Occurrence) bool {
	if a.Exon.Gene != b.Exon.Gene {
		return a.Exon.Gene < b.Exon.Gene
	}
	if a.Exon.Exon != b.Exon.Exon {
		return a.Exon.Exon < b.Exon.Exon
	}
	return a.Offset < b.Offset
}

// KmerIndex maps every kmer of the reference exons to the list of places it
// occurs. It is immutable once built. Thread safe.
type KmerIndex struct {
	kmerLength int
	shards     [nKmerIndexShard]map[Kmer][]Occurrence
}

func hashKmer(k Kmer) uint64 {
	return farm.Hash64WithSeed(nil, uint64(k))
}

func newEmptyKmerIndex(kmerLength int) *KmerIndex {
	idx := &KmerIndex{kmerLength: kmerLength}
	for i := range idx.shards {
		idx.shards[i] = map[Kmer][]Occurrence{}
	}
	return idx
}

func checkKmerLength(k int) error {
	if k < MinKmerLength || k > MaxKmerLength {
		return errors.E(errors.Invalid, fmt.Sprintf("kmer length %d out of range [%d,%d]", k, MinKmerLength, MaxKmerLength))
	}
	return nil
}

// NewKmerIndex builds an index of all the kmers in db. Exons shorter than
// kmerLength contribute no kmers. Kmers containing non-ACGT bases are not
// indexed. It returns an errors.Invalid error if kmerLength is out of range,
// or if the total reference length is <= kmerLength.
func NewKmerIndex(db *ExonDB, kmerLength int) (*KmerIndex, error) {
	if err := checkKmerLength(kmerLength); err != nil {
		return nil, err
	}
	if n := db.TotalLength(); n <= kmerLength {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("reference length %d must be > kmer length %d", n, kmerLength))
	}
	idx := newEmptyKmerIndex(kmerLength)
	var mu [nKmerIndexShard]sync.Mutex

	// Produce kmers for exons in parallel.
	exons := db.Exons()
	err := traverse.Each(len(exons), func(i int) error {
		ex := exons[i]
		km := newKmerizer(kmerLength)
		km.Reset(ex.Seq)
		for km.Scan() {
			kp := km.Get()
			shard := hashKmer(kp.kmer) % nKmerIndexShard
			mu[shard].Lock()
			idx.shards[shard][kp.kmer] = append(idx.shards[shard][kp.kmer], Occurrence{Exon: ex.ID, Offset: kp.pos})
			mu[shard].Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	idx.finalize()
	log.Printf("Built kmer index: %d exons, %d distinct %d-mers", len(exons), idx.Len(), kmerLength)
	return idx, nil
}

// finalize sorts and dedups each occurrence list, so that the list is
// independent of the order in which occurrences were added.
func (idx *KmerIndex) finalize() {
	parallel.Range(0, nKmerIndexShard, 0, func(low, high int) {
		for shard := low; shard < high; shard++ {
			for kmer, occs := range idx.shards[shard] {
				sort.Slice(occs, func(i, j int) bool { return occurrenceLess(occs[i], occs[j]) })
				n := 1
				for i := 1; i < len(occs); i++ {
					if occs[n-1] != occs[i] {
						occs[n] = occs[i]
						n++
					}
				}
				idx.shards[shard][kmer] = occs[:n:n]
			}
		}
	})
}

// K returns the kmer length.
func (idx *KmerIndex) K() int { return idx.kmerLength }

// Len returns the number of distinct kmers.
func (idx *KmerIndex) Len() int {
	n := 0
	for _, s := range idx.shards {
		n += len(s)
	}
	return n
}

// Lookup returns the occurrences of the given kmer. It returns nil if the
// kmer is not in the index, or if len(kmer) != K(). The caller must not
// modify the returned slice.
func (idx *KmerIndex) Lookup(kmer string) []Occurrence {
	if len(kmer) != idx.kmerLength {
		return nil
	}
	k, ok := asciiToKmer(kmer)
	if !ok {
		return nil
	}
	return idx.get(k)
}

func (idx *KmerIndex) get(k Kmer) []Occurrence {
	return idx.shards[hashKmer(k)%nKmerIndexShard][k]
}

// Unique returns the sole occurrence of the kmer, if the kmer occurs exactly
// once in the reference.
func (idx *KmerIndex) Unique(kmer string) (Occurrence, bool) {
	occs := idx.Lookup(kmer)
	if len(occs) != 1 {
		return Occurrence{}, false
	}
	return occs[0], true
}

// kmerHit is a unique kmer match in a read.
type kmerHit struct {
	// pos is the offset of the kmer in the read.
	pos int
	occ Occurrence
}

// uniqueHits lists the unique kmer matches of seq, in the order of pos.
func (idx *KmerIndex) uniqueHits(km *kmerizer, seq string, hits []kmerHit) []kmerHit {
	km.Reset(seq)
	for km.Scan() {
		kp := km.Get()
		if occs := idx.get(kp.kmer); len(occs) == 1 {
			hits = append(hits, kmerHit{pos: kp.pos, occ: occs[0]})
		}
	}
	return hits
}

// sortedKmers lists all the kmers in the ascending order.
func (idx *KmerIndex) sortedKmers() []Kmer {
	kmers := make([]Kmer, 0, idx.Len())
	for _, s := range idx.shards {
		for k := range s {
			kmers = append(kmers, k)
		}
	}
	sort.Slice(kmers, func(i, j int) bool { return kmers[i] < kmers[j] })
	return kmers
}
