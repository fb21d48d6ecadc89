package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/grailbio/bagfusion/fusion"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Collection of options set via cmdline flags
type predictFlags struct {
	exonsPath          string
	indexPath          string
	r1, r2             string
	backgroundPath     string
	outputPath         string
	junctionOutputPath string
	graphOutputPath    string
	graphInputPath     string
}

func loadIndex(ctx context.Context, db *fusion.ExonDB, path string, k int) (*fusion.KmerIndex, error) {
	if path == "" {
		return fusion.NewKmerIndex(db, k)
	}
	idx, err := fusion.LoadKmerIndex(ctx, path)
	if err != nil {
		return nil, err
	}
	if idx.K() != k {
		return nil, errors.E(errors.Invalid, path,
			fmt.Sprintf("index has k=%d, but -k=%d", idx.K(), k))
	}
	return idx, nil
}

func writeFile(ctx context.Context, path string, write func(w io.Writer) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err := write(out.Writer(ctx)); err != nil {
		return errors.E(err, path)
	}
	return nil
}

// predict runs the whole pipeline, or only its latter stages if
// flags.graphInputPath is set.
func predict(ctx context.Context, flags predictFlags, opts fusion.Opts) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if flags.exonsPath == "" {
		return errors.E(errors.Invalid, "-exons must be set")
	}
	runID := uuid.New().String()
	log.Printf("Run %s: options %+v", runID, opts)
	var mem memStats
	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go monitorMemory(monCtx, &mem)

	db, err := fusion.ReadExonDB(ctx, flags.exonsPath)
	if err != nil {
		return err
	}
	idx, err := loadIndex(ctx, db, flags.indexPath, opts.KmerLength)
	if err != nil {
		return err
	}
	var bg *fusion.Background
	if flags.backgroundPath != "" {
		if bg, err = fusion.ReadBackground(ctx, flags.backgroundPath); err != nil {
			return err
		}
	}
	var src fusion.PairSource
	if flags.r1 != "" || flags.r2 != "" {
		if src, err = newPairSource(flags.r1, flags.r2); err != nil {
			return err
		}
	}

	var (
		g     *fusion.Graph
		stats fusion.Stats
	)
	if flags.graphInputPath != "" {
		var h graphFileTrailer
		if g, h, err = readGraph(ctx, flags.graphInputPath); err != nil {
			return err
		}
		if h.Opts.KmerLength != opts.KmerLength {
			log.Error.Printf("%s: graph was built with k=%d, now k=%d",
				flags.graphInputPath, h.Opts.KmerLength, opts.KmerLength)
		}
		stats = h.Stats
	} else {
		if src == nil {
			return errors.E(errors.Invalid, "-r1 and -r2 must be set")
		}
		if g, stats, err = fusion.BuildGraph(ctx, src, idx, opts); err != nil {
			return err
		}
		if flags.graphOutputPath != "" {
			if err := writeGraph(ctx, flags.graphOutputPath, runID, g, stats, opts); err != nil {
				return err
			}
		}
	}
	cands, restStats, err := fusion.Rescore(ctx, g, db, idx, src, bg, opts)
	if err != nil {
		return err
	}
	stats = stats.Merge(restStats)

	err = writeFile(ctx, flags.outputPath, func(w io.Writer) error {
		return fusion.WriteReport(w, cands)
	})
	if err != nil {
		return err
	}
	if flags.junctionOutputPath != "" {
		err = writeFile(ctx, flags.junctionOutputPath, func(w io.Writer) error {
			return fusion.WriteJunctionReport(w, g)
		})
		if err != nil {
			return err
		}
	}
	stats.Log()
	log.Printf("Run %s: wrote %d fusion candidates to %s", runID, len(cands), flags.outputPath)
	mem.update()
	log.Printf("MemStats: %s", mem.String())
	return nil
}
