package fusion

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/bagfusion/encoding/fasta"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// The kmer index file is a FASTA-like file with one record per kmer:
//
//   >ACGTACGTAC 2
//   G1.1_10|G2.3_0
//
// The name is the kmer, the comment is the number of occurrences, and the
// sequence is the '|'-separated list of occurrences.

// WriteKmerIndex writes idx in the kmer index file format. Kmers are written
// in sorted order.
func WriteKmerIndex(w io.Writer, idx *KmerIndex) error {
	fw := fasta.NewWriter(w, 0)
	var buf strings.Builder
	for _, k := range idx.sortedKmers() {
		occs := idx.get(k)
		buf.Reset()
		for i, occ := range occs {
			if i > 0 {
				buf.WriteByte('|')
			}
			buf.WriteString(occ.String())
		}
		if err := fw.Write(fasta.Record{
			Name:    k.String(idx.kmerLength),
			Comment: strconv.Itoa(len(occs)),
			Seq:     buf.String(),
		}); err != nil {
			return err
		}
	}
	return fw.Flush()
}

// ReadKmerIndex reads an index written by WriteKmerIndex. All kmers must have
// the same length, and each record's count must match its occurrence list.
func ReadKmerIndex(r io.Reader) (*KmerIndex, error) {
	var (
		idx *KmerIndex
		rec fasta.Record
		sc  = fasta.NewScanner(r)
	)
	for sc.Scan(&rec) {
		if idx == nil {
			if err := checkKmerLength(len(rec.Name)); err != nil {
				return nil, err
			}
			idx = newEmptyKmerIndex(len(rec.Name))
		}
		if len(rec.Name) != idx.kmerLength {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("kmer %s: expect length %d", rec.Name, idx.kmerLength))
		}
		kmer, ok := asciiToKmer(rec.Name)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("kmer %s: non-ACGT base", rec.Name))
		}
		count, err := strconv.Atoi(rec.Comment)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("kmer %s: bad count %q", rec.Name, rec.Comment))
		}
		fields := strings.Split(rec.Seq, "|")
		if len(fields) != count {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("kmer %s: count %d, but found %d occurrences", rec.Name, count, len(fields)))
		}
		occs := make([]Occurrence, len(fields))
		for i, f := range fields {
			if occs[i], err = ParseOccurrence(f); err != nil {
				return nil, err
			}
		}
		shard := hashKmer(kmer) % nKmerIndexShard
		if _, ok := idx.shards[shard][kmer]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("duplicate kmer %s", rec.Name))
		}
		idx.shards[shard][kmer] = occs
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	if idx == nil {
		return nil, errors.E(errors.Invalid, "empty kmer index")
	}
	idx.finalize()
	return idx, nil
}

// SaveKmerIndex writes idx to the given path. The file is gzipped if the
// path ends with ".gz".
func SaveKmerIndex(ctx context.Context, path string, idx *KmerIndex) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if !strings.HasSuffix(path, ".gz") {
		return WriteKmerIndex(w, idx)
	}
	gz := gzip.NewWriter(w)
	if err := WriteKmerIndex(gz, idx); err != nil {
		return errors.E(err, path)
	}
	return gz.Close()
}

// LoadKmerIndex reads an index file written by SaveKmerIndex.
func LoadKmerIndex(ctx context.Context, path string) (idx *KmerIndex, err error) {
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
	if idx, err = ReadKmerIndex(r); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("Loaded kmer index %s: %d distinct %d-mers", path, idx.Len(), idx.K())
	return idx, nil
}
