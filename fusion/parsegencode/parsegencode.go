// Package parsegencode parses a gencode GTF annotation and extracts the
// exons of each gene from the genome. Exons are collapsed over all the
// transcripts of the gene, ordered 5'->3', and written as FASTA records
// named "gene.N", where N is the 1-based exon number.
package parsegencode

import (
	"bufio"
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
	"github.com/grailbio/base/tsv"
)

type genomicRange struct {
	start, stop int // both ends are closed, 1-based.
}

type genomicRanges []genomicRange

// Append a genomicRange to g. If last item in g overlaps with r, r is merged.
func (g *genomicRanges) merge(r genomicRange) {
	if overlap, newRange := (*g).overlaps(r); overlap {
		(*g)[len(*g)-1] = newRange
		return
	}
	*g = append(*g, r)
}

// If the new genomicRange overlaps with the last range of g, return true and
// the union of the two.
func (g genomicRanges) overlaps(gRange2 genomicRange) (bool, genomicRange) {
	if len(g) == 0 {
		return false, genomicRange{}
	}
	gRange1 := g[len(g)-1]
	if gRange1.start <= gRange2.start {
		if gRange2.start <= gRange1.stop+1 {
			// Includes full overlap of gRange2 by gRange1. +1 accounts for touching ranges
			// gRange1:                |----------|
			// gRange2:                           |---...
			// gRange2:                     |---...
			return true, genomicRange{gRange1.start, max(gRange1.stop, gRange2.stop)}
		}
		return false, genomicRange{}
	} else if gRange1.start-1 <= gRange2.stop {
		// gRange1:                |----------|
		// gRange2:         ...----|
		// gRange2:              ...----------|
		return true, genomicRange{gRange2.start, max(gRange1.stop, gRange2.stop)}
	}
	return false, genomicRange{}
}

// Sort the ranges, then collapse all the overlapping ones.
func (g *genomicRanges) collapse() {
	sort.SliceStable(*g, func(i, j int) bool {
		a, b := (*g)[i], (*g)[j]
		return a.start < b.start || (a.start == b.start && a.stop < b.stop)
	})
	newGR := genomicRanges{}
	for _, gr := range *g {
		newGR.merge(gr)
	}
	*g = newGR
}

func (g genomicRanges) reverse() {
	for i, j := 0, len(g)-1; i < j; i, j = i+1, j-1 {
		g[i], g[j] = g[j], g[i]
	}
}

// Gene is one gene of the annotation.
type Gene struct {
	// ID is the gencode gene_id, e.g., "ENSG00000186092.4".
	ID string
	// Name is the gene_name, e.g., "OR4F5".
	Name   string
	Type   string
	Chrom  string
	Strand string
	// exons are collapsed and sorted in genomic order.
	exons genomicRanges
}

// NumExons returns the # of exons after collapsing.
func (g *Gene) NumExons() int { return len(g.exons) }

func reverseComplement(seq string) (string, error) {
	var revcomp strings.Builder
	revcomp.Grow(len(seq))
	for i := len(seq) - 1; i >= 0; i-- {
		switch x := seq[i]; x {
		case 'A', 'a':
			revcomp.WriteByte('T')
		case 'C', 'c':
			revcomp.WriteByte('G')
		case 'T', 't':
			revcomp.WriteByte('A')
		case 'G', 'g':
			revcomp.WriteByte('C')
		case 'N', 'n':
			revcomp.WriteByte('N')
		default:
			return "", fmt.Errorf("reversecomplement: unrecognized nucleotide '%c'", x)
		}
	}
	return revcomp.String(), nil
}

func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// gtfRecord will store data read from one line of the gencode file
type gtfRecord struct {
	Chrom    string
	Source   string
	Molecule string
	Start    int
	Stop     int
	Score    string // unused floating point value, but may be "."
	Strand   string
	Frame    string
	Fields   string
}

// ParseInfoFields parses the attribute column of a GTF line into key,value
// pairs.
func parseInfoFields(parsedInfo map[string]string, info string) {
	for k := range parsedInfo {
		delete(parsedInfo, k)
	}
	for _, field := range strings.Split(strings.TrimSpace(info), ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		i := strings.IndexByte(field, ' ')
		if i < 0 {
			continue
		}
		parsedInfo[field[:i]] = strings.Trim(strings.TrimSpace(field[i+1:]), "\"")
	}
}

// Obtained from https://www.gencodegenes.org/gencode_biotypes.html
var codingBiotypes = map[string]bool{
	"protein_coding":          true,
	"nonsense_mediated_decay": true,
	"non_stop_decay":          true,
	"IG_C_gene":               true,
	"IG_D_gene":               true,
	"IG_J_gene":               true,
	"IG_LV_gene":              true,
	"IG_V_gene":               true,
	"TR_C_gene":               true,
	"TR_J_gene":               true,
	"TR_V_gene":               true,
	"TR_D_gene":               true,
	"polymorphic_pseudogene":  true,
}

// ParseGTF reads GTF data. Gene lines must precede their exon lines. If
// codingOnly is set, exons of non-coding transcripts are ignored. Genes are
// sorted by name, and genes without exons are dropped.
func ParseGTF(in io.Reader, codingOnly bool) ([]*Gene, error) {
	scanner := tsv.NewReader(bufio.NewReaderSize(in, 64<<10))
	scanner.Comment = '#'
	scanner.LazyQuotes = true
	var (
		line     gtfRecord
		fields   = map[string]string{}
		genes    = map[string]*Gene{}
		nExons   int
		nSkipped int
	)
	for {
		if err := scanner.Read(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err)
		}
		switch line.Molecule {
		case "gene":
			parseInfoFields(fields, line.Fields)
			g := &Gene{
				ID:     fields["gene_id"],
				Name:   fields["gene_name"],
				Type:   fields["gene_type"],
				Chrom:  line.Chrom,
				Strand: line.Strand,
			}
			if g.Name == "" {
				g.Name = g.ID
			}
			genes[g.ID] = g
		case "exon":
			parseInfoFields(fields, line.Fields)
			if codingOnly && !codingBiotypes[fields["transcript_type"]] {
				nSkipped++
				continue
			}
			g, ok := genes[fields["gene_id"]]
			if !ok {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("GTF not sorted properly: exon of unknown gene %s", fields["gene_id"]))
			}
			g.exons = append(g.exons, genomicRange{line.Start, line.Stop})
			nExons++
		}
	}
	sorted := make([]*Gene, 0, len(genes))
	for _, g := range genes {
		if len(g.exons) == 0 {
			continue
		}
		g.exons.collapse()
		if g.Strand == "-" {
			g.exons.reverse()
		}
		sorted = append(sorted, g)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})
	log.Printf("Parsed %d genes with %d exons, skipped %d non-coding exons", len(sorted), nExons, nSkipped)
	return sorted, nil
}

// ReadGTF reads a (possibly compressed) GTF file. See ParseGTF.
func ReadGTF(ctx context.Context, path string, codingOnly bool) (genes []*Gene, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(inr, in.Name()); u != nil {
		defer u.Close()
		inr = u
	}
	if genes, err = ParseGTF(inr, codingOnly); err != nil {
		return nil, errors.E(err, path)
	}
	return genes, nil
}

// WriteExons writes the exons of genes, read from the genome, to w. The
// records are named "gene.N" in the 5'->3' order, and the sequences of
// minus-strand genes are reverse complemented. Genes whose names contain '.'
// can't be encoded in an exon name, and are skipped. Duplicate gene names
// are skipped after the first one.
func WriteExons(w *fasta.Writer, genome fasta.Fasta, genes []*Gene) error {
	seen := map[string]bool{}
	for _, gene := range genes {
		if strings.Contains(gene.Name, ".") || seen[gene.Name] {
			log.Error.Printf("skipping gene %s (%s)", gene.Name, gene.ID)
			continue
		}
		seen[gene.Name] = true
		for i, exon := range gene.exons {
			seq, err := genome.Get(gene.Chrom, uint64(exon.start-1), uint64(exon.stop))
			if err != nil {
				return errors.E(err, gene.ID)
			}
			if gene.Strand == "-" {
				if seq, err = reverseComplement(seq); err != nil {
					return errors.E(errors.Invalid, gene.ID, err)
				}
			}
			if err := w.Write(fasta.Record{
				Name:    gene.Name + "." + strconv.Itoa(i+1),
				Comment: fmt.Sprintf("%s:%d-%d:%s", gene.Chrom, exon.start, exon.stop, gene.Strand),
				Seq:     seq,
			}); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}
