package fusion

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/bagfusion/encoding/fasta"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// ExonID names one exon of a gene. Exon numbers start at 1 and follow the
// 5'->3' order of the gene. Its text form is "gene.exon", e.g., "BCR.13".
type ExonID struct {
	Gene string
	Exon int
}

// String returns "gene.exon".
func (e ExonID) String() string { return e.Gene + "." + strconv.Itoa(e.Exon) }

// FormatExonID is the same as id.String().
func FormatExonID(id ExonID) string { return id.String() }

// ParseExonID parses "gene.exon". The string must have exactly one '.', a
// nonempty gene name, and a positive exon number.
func ParseExonID(s string) (ExonID, error) {
	fields := strings.Split(s, ".")
	if len(fields) != 2 || fields[0] == "" {
		return ExonID{}, errors.E(errors.Invalid, fmt.Sprintf("exon id %q: expect 'gene.exon'", s))
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n <= 0 {
		return ExonID{}, errors.E(errors.Invalid, fmt.Sprintf("exon id %q: bad exon number", s))
	}
	return ExonID{Gene: fields[0], Exon: n}, nil
}

// Exon is one reference exon sequence.
type Exon struct {
	ID ExonID
	// Seq is the upper-cased nucleotide sequence.
	Seq string
}

// GeneInfo stores the exons of one gene.
type GeneInfo struct {
	Name string
	// Exons are sorted by ID.Exon.
	Exons []*Exon
	// Length is the sum of the exon lengths.
	Length int
}

// NumExons returns the number of exons in the gene.
func (g *GeneInfo) NumExons() int { return len(g.Exons) }

// ExonDB stores the reference exons, grouped by gene. It is immutable once
// built. Thread safe.
type ExonDB struct {
	exons []*Exon // in input order
	genes map[string]*GeneInfo
	byID  map[ExonID]*Exon
	names []string // sorted gene names
}

// NewExonDB creates an ExonDB from FASTA records whose names are exon IDs.
func NewExonDB(recs []fasta.Record) (*ExonDB, error) {
	db := &ExonDB{
		genes: map[string]*GeneInfo{},
		byID:  map[ExonID]*Exon{},
	}
	for _, rec := range recs {
		id, err := ParseExonID(rec.Name)
		if err != nil {
			return nil, err
		}
		if _, ok := db.byID[id]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("duplicate exon %v", id))
		}
		ex := &Exon{ID: id, Seq: strings.ToUpper(rec.Seq)}
		db.exons = append(db.exons, ex)
		db.byID[id] = ex
		gi := db.genes[id.Gene]
		if gi == nil {
			gi = &GeneInfo{Name: id.Gene}
			db.genes[id.Gene] = gi
			db.names = append(db.names, id.Gene)
		}
		gi.Exons = append(gi.Exons, ex)
		gi.Length += len(ex.Seq)
	}
	if len(db.exons) == 0 {
		return nil, errors.E(errors.Invalid, "no exons found")
	}
	for _, gi := range db.genes {
		sort.Slice(gi.Exons, func(i, j int) bool { return gi.Exons[i].ID.Exon < gi.Exons[j].ID.Exon })
	}
	sort.Strings(db.names)
	return db, nil
}

// ReadExonDB reads exons from a (possibly compressed) FASTA file.
func ReadExonDB(ctx context.Context, path string) (*ExonDB, error) {
	recs, err := readFASTA(ctx, path)
	if err != nil {
		return nil, err
	}
	db, err := NewExonDB(recs)
	if err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("Read %d exons of %d genes from %s", len(db.exons), len(db.names), path)
	return db, nil
}

func readFASTA(ctx context.Context, path string) (recs []fasta.Record, err error) {
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
	sc := fasta.NewScanner(r)
	var rec fasta.Record
	for sc.Scan(&rec) {
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, path)
	}
	return recs, nil
}

// Gene returns the info about the named gene. It returns nil if the gene is
// unknown.
func (db *ExonDB) Gene(name string) *GeneInfo { return db.genes[name] }

// Exon returns the exon with the given ID, or nil.
func (db *ExonDB) Exon(id ExonID) *Exon { return db.byID[id] }

// Exons returns all exons in input order.
func (db *ExonDB) Exons() []*Exon { return db.exons }

// GeneNames returns the sorted list of gene names.
func (db *ExonDB) GeneNames() []string { return db.names }

// TotalLength returns the sum of all exon lengths.
func (db *ExonDB) TotalLength() int {
	n := 0
	for _, gi := range db.genes {
		n += gi.Length
	}
	return n
}
