package main

import (
	"context"
	"io"

	"github.com/grailbio/bagfusion/encoding/fasta"
	"github.com/grailbio/bagfusion/fusion/parsegencode"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

func readGenome(ctx context.Context, path string) (genome fasta.Fasta, err error) {
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
	if genome, err = fasta.New(r); err != nil {
		return nil, errors.E(err, path)
	}
	return genome, nil
}

// extractExons writes the exon FASTA file used by the other subcommands.
func extractExons(ctx context.Context, gtfPath, genomePath, outPath string, codingOnly bool) error {
	genes, err := parsegencode.ReadGTF(ctx, gtfPath, codingOnly)
	if err != nil {
		return err
	}
	genome, err := readGenome(ctx, genomePath)
	if err != nil {
		return err
	}
	return writeFile(ctx, outPath, func(w io.Writer) error {
		return parsegencode.WriteExons(fasta.NewWriter(w, 60), genome, genes)
	})
}
