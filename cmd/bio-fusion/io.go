package main

// This file defines the graph checkpoint file. writeGraph dumps the graph
// right after construction into a recordio file, and readGraph reads it
// back, so that the junction and scoring stages can be rerun with different
// options without rescanning the reads.

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/grailbio/bagfusion/fusion"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "bagversion"
	fileVersion       = "BAG_V1"
	// runIDHeader stores the ID of the run that wrote the file.
	runIDHeader = "runid"
)

// graphEdge is one record of the graph file.
type graphEdge struct {
	Key          string
	Gene1, Gene2 string
	Evidence     []fusion.Evidence
	Weight       int
}

// graphFileTrailer is stored in the trailer section of the recordio file.
type graphFileTrailer struct {
	// Opts is the list of options used to build the graph.
	Opts fusion.Opts
	// Stats are the graph construction stats.
	Stats fusion.Stats
	// GeneHits is fusion.Graph.GeneHits.
	GeneHits map[string]int
}

func init() {
	recordiozstd.Init()
}

// writeGraph writes g to a recordio file, one edge per record.
func writeGraph(ctx context.Context, path, runID string, g *fusion.Graph, stats fusion.Stats, opts fusion.Opts) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(runIDHeader, runID)
	w.AddHeader(recordio.KeyTrailer, true)
	for _, e := range g.SortedEdges() {
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(graphEdge{
			Key:      e.Key,
			Gene1:    e.Gene1,
			Gene2:    e.Gene2,
			Evidence: e.Evidence,
			Weight:   e.Weight,
		}); err != nil {
			return errors.E(err, path)
		}
		w.Append(b.Bytes())
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(graphFileTrailer{
		Opts:     opts,
		Stats:    stats,
		GeneHits: g.GeneHits.Map(),
	}); err != nil {
		return errors.E(err, path)
	}
	w.SetTrailer(b.Bytes())
	if err := w.Finish(); err != nil {
		return errors.E(err, path)
	}
	log.Printf("Wrote %d edges to %s", len(g.Edges), path)
	return nil
}

// readGraph reads a file written by writeGraph.
func readGraph(ctx context.Context, path string) (g *fusion.Graph, trailer graphFileTrailer, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, trailer, errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	var runID string
	versionFound := false
	for _, kv := range r.Header() {
		switch kv.Key {
		case fileVersionHeader:
			if v, _ := kv.Value.(string); v != fileVersion {
				return nil, trailer, errors.E(errors.Invalid, path,
					fmt.Sprintf("graph file version mismatch, got %v, expect %v", kv.Value, fileVersion))
			}
			versionFound = true
		case runIDHeader:
			runID, _ = kv.Value.(string)
		}
	}
	if !versionFound {
		return nil, trailer, errors.E(errors.Invalid, path, fileVersionHeader+" not found")
	}
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&trailer); err != nil {
		return nil, trailer, errors.E(err, path, "trailer")
	}
	g = &fusion.Graph{
		Edges:    map[string]*fusion.Edge{},
		GeneHits: fusion.NewStringMultisetFromMap(trailer.GeneHits),
	}
	for r.Scan() {
		var e graphEdge
		if err := gob.NewDecoder(bytes.NewReader(r.Get().([]byte))).Decode(&e); err != nil {
			return nil, trailer, errors.E(err, path)
		}
		g.Edges[e.Key] = &fusion.Edge{
			Key:      e.Key,
			Gene1:    e.Gene1,
			Gene2:    e.Gene2,
			Evidence: e.Evidence,
			Weight:   e.Weight,
		}
	}
	if err := r.Err(); err != nil {
		return nil, trailer, errors.E(err, path)
	}
	log.Printf("Read %d edges from %s, written by run %s", len(g.Edges), path, runID)
	return g, trailer, nil
}
