package fusion

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/grailbio/bagfusion/encoding/fastq"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// ReadPair is one paired-end fragment, as read from the FASTQ files.
type ReadPair struct {
	// ID is the fragment ID, without '@' or the /1, /2 suffix.
	ID     string
	R1, R2 string
}

// PairSource yields read pairs. A source can be scanned any number of
// times, and every scan yields the same pairs in the same order.
type PairSource interface {
	// Scan calls fn for every pair. It stops at the first error returned by
	// fn or the reader, and returns it.
	Scan(ctx context.Context, fn func(p ReadPair) error) error
}

// SlicePairSource is a PairSource backed by a slice.
type SlicePairSource []ReadPair

// Scan implements PairSource.
func (s SlicePairSource) Scan(ctx context.Context, fn func(p ReadPair) error) error {
	for _, p := range s {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// MultiPairSource is the concatenation of sources.
type MultiPairSource []PairSource

// Scan implements PairSource.
func (s MultiPairSource) Scan(ctx context.Context, fn func(p ReadPair) error) error {
	for _, src := range s {
		if err := src.Scan(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

// FASTQPairSource reads pairs from two synchronized, possibly compressed,
// FASTQ files.
type FASTQPairSource struct {
	R1Path, R2Path string
}

// openFASTQ opens the file at path. The caller must close the returned
// reader, then the file.
func openFASTQ(ctx context.Context, path string) (file.File, io.ReadCloser, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, path)
	}
	r := in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		return in, u, nil
	}
	return in, ioutil.NopCloser(r), nil
}

// Scan implements PairSource. Mate IDs that differ after normalization are
// reported as a *fastq.MismatchedPairError.
func (s FASTQPairSource) Scan(ctx context.Context, fn func(p ReadPair) error) (err error) {
	in1, r1, err := openFASTQ(ctx, s.R1Path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in1, &err)
	defer r1.Close() // nolint: errcheck
	in2, r2, err := openFASTQ(ctx, s.R2Path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in2, &err)
	defer r2.Close() // nolint: errcheck

	sc := fastq.NewPairScanner(r1, r2, fastq.ID|fastq.Seq)
	var m1, m2 fastq.Read
	for sc.Scan(&m1, &m2) {
		if err := fn(ReadPair{ID: fastq.FragmentID(m1.ID), R1: m1.Seq, R2: m2.Seq}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return errors.E(errors.Invalid, s.R1Path+","+s.R2Path, err)
	}
	return nil
}
