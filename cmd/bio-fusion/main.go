package main

// bio-fusion predicts gene fusions from paired-end RNA reads.
//
// The pipeline has five stages:
//
//   1. index the kmers of the reference exons (the "index" subcommand, or
//      on the fly).
//
//   2. build the breakend-associated graph: genes are nodes, and read pairs
//      whose kmers match two genes become evidence of an edge.
//
//   3. find the exon/exon junctions of each edge by aligning its evidence
//      with gene jumps.
//
//   4. realign the read pairs against the junction transcripts, and score
//      each edge against a background distribution.
//
//   5. report the edges, sorted by p-value.
//
// Example 1: build an index, then predict.
//
//    bio-fusion index -k 25 exons.fa exons.index
//    bio-fusion predict -exons=exons.fa -index=exons.index -r1=r1.fastq.gz -r2=r2.fastq.gz \
//        -background=background.txt -output=fusions.tsv -graph-output=graph.rio
//
// Example 2: rescore the graph from example 1 with different alignment
// parameters. Reads are needed only for the junction re-test pass.
//
//    bio-fusion predict -exons=exons.fa -index=exons.index -graph-input=graph.rio -min-align-score=0.9
//
// Example 3: run against a panel directory that holds exons.fa,
// exons.index, and background.txt.
//
//    bio-fusion rapid -r1=r1.fastq.gz -r2=r2.fastq.gz panel_dir
//
// Example 4: produce exons.fa from a gencode annotation.
//
//    bio-fusion extract-exons -coding-only gencode.gtf hg38.fa exons.fa

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/bagfusion/fusion"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

type memStats struct {
	mu sync.Mutex
	// Below are copies of runtime.MemStats
	alloc   uint64
	sys     uint64
	heapSys uint64
}

func (m *memStats) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("Alloc: %v Sys: %v, HeapSys: %v", m.alloc, m.sys, m.heapSys)
}

func (m *memStats) update() {
	var s runtime.MemStats
	runtime.ReadMemStats(&s)
	m.mu.Lock()
	if m.alloc < s.Alloc {
		m.alloc = s.Alloc
	}
	if m.sys < s.Sys {
		m.sys = s.Sys
	}
	if m.heapSys < s.HeapSys {
		m.heapSys = s.HeapSys
	}
	m.mu.Unlock()
}

// monitorMemory samples the memory usage until ctx is done.
func monitorMemory(ctx context.Context, m *memStats) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.update()
		}
	}
}

// addOptsFlags binds the pipeline options to flags. Defaults are taken from
// *opts.
func addOptsFlags(fs *flag.FlagSet, opts *fusion.Opts) {
	fs.IntVar(&opts.KmerLength, "k", opts.KmerLength, "Length of kmers")
	fs.IntVar(&opts.MinKmerMatch, "min-kmer-match", opts.MinKmerMatch, "Min # of unique kmer matches of a gene in a read pair")
	fs.IntVar(&opts.MinExonKmerMatch, "min-exon-kmer-match", opts.MinExonKmerMatch,
		"Min # of unique kmer matches of an exon for it to be used in the junction search")
	fs.IntVar(&opts.MinEdgeWeight, "min-edge-weight", opts.MinEdgeWeight, "Min # of distinct read pairs supporting an edge")
	fs.IntVar(&opts.MaxGenePartners, "max-gene-partners", opts.MaxGenePartners,
		"Drop the edges of genes with more fusion partners than this. 0 disables the filter")
	fs.Float64Var(&opts.LowComplexityFraction, "low-complexity-fraction", opts.LowComplexityFraction,
		"Drop read pairs where two bases cover more than this fraction of a mate")
	fs.IntVar(&opts.MatchScore, "match", opts.MatchScore, "Alignment match score")
	fs.IntVar(&opts.MismatchPenalty, "mismatch", opts.MismatchPenalty, "Alignment mismatch penalty")
	fs.IntVar(&opts.GapOpenPenalty, "gap-open", opts.GapOpenPenalty, "Alignment gap open penalty")
	fs.IntVar(&opts.GapExtensionPenalty, "gap-ext", opts.GapExtensionPenalty, "Alignment gap extension penalty")
	fs.IntVar(&opts.GeneJumpPenalty, "gene-jump", opts.GeneJumpPenalty, "Penalty for jumping from the 5' gene to the 3' gene")
	fs.IntVar(&opts.ExonJumpPenalty, "exon-jump", opts.ExonJumpPenalty, "Penalty for skipping exons")
	fs.IntVar(&opts.MinReadLength, "min-read-length", opts.MinReadLength, "Reads shorter than this are not aligned")
	fs.Float64Var(&opts.MinAlignScore, "min-align-score", opts.MinAlignScore, "Min normalized alignment score, in [0,1]")
	fs.IntVar(&opts.MinJunctionHits, "min-junction-hits", opts.MinJunctionHits, "Min # of alignments that must find a junction")
	fs.IntVar(&opts.JunctionFlankLength, "flank-length", opts.JunctionFlankLength, "Length of the sequence kept around each junction")
	fs.IntVar(&opts.MaxFlankMismatch, "max-flank-mismatch", opts.MaxFlankMismatch,
		"Max mismatches between a read and a junction flank in the re-test pass")
	fs.Float64Var(&opts.JunctionSpanWeight, "span-weight", opts.JunctionSpanWeight, "Likelihood weight of junction-spanning read pairs")
	fs.Float64Var(&opts.LikelihoodScale, "likelihood-scale", opts.LikelihoodScale, "Scale of the edge likelihood")
	fs.Float64Var(&opts.MaxPValue, "max-pvalue", opts.MaxPValue, "Report edges with p-value at most this")
	fs.IntVar(&opts.Parallelism, "parallelism", opts.Parallelism, "# of concurrent workers")
}

// newPairSource creates a source that reads the comma-separated R1 and R2
// FASTQ files in order.
func newPairSource(r1, r2 string) (fusion.PairSource, error) {
	r1Paths, r2Paths := strings.Split(r1, ","), strings.Split(r2, ",")
	if len(r1Paths) != len(r2Paths) {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("there must be the same # of R1 and R2 files: '%s' <-> '%s'", r1, r2))
	}
	var src fusion.MultiPairSource
	for i := range r1Paths {
		src = append(src, fusion.FASTQPairSource{R1Path: r1Paths[i], R2Path: r2Paths[i]})
	}
	return src, nil
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Build the kmer index of reference exons",
		ArgsName: "exons.fa index",
		Long: `
The exon FASTA file has one record per exon, named "gene.N", where N is the
1-based exon number in the 5'->3' order. The index file is gzipped if its
name ends with .gz.`,
	}
	k := cmd.Flags.Int("k", fusion.DefaultOpts.KmerLength, "Length of kmers")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("index takes exons.fa and index paths, but got %v", argv)
		}
		ctx := vcontext.Background()
		return buildIndex(ctx, argv[0], argv[1], *k)
	})
	return cmd
}

func buildIndex(ctx context.Context, exonsPath, indexPath string, k int) error {
	db, err := fusion.ReadExonDB(ctx, exonsPath)
	if err != nil {
		return err
	}
	idx, err := fusion.NewKmerIndex(db, k)
	if err != nil {
		return err
	}
	return fusion.SaveKmerIndex(ctx, indexPath, idx)
}

func newCmdPredict() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "predict",
		Short: "Predict gene fusions from paired FASTQ files",
	}
	opts := fusion.DefaultOpts
	flags := predictFlags{}
	cmd.Flags.StringVar(&flags.exonsPath, "exons", "", "FASTA file of the reference exons")
	cmd.Flags.StringVar(&flags.indexPath, "index", "", "Kmer index file. If empty, the index is built from -exons")
	cmd.Flags.StringVar(&flags.r1, "r1", "", "Comma-separated list of FASTQ files containing R1 reads")
	cmd.Flags.StringVar(&flags.r2, "r2", "", "Comma-separated list of FASTQ files containing R2 reads")
	cmd.Flags.StringVar(&flags.backgroundPath, "background", "", `Background likelihood file.
Each line is 'gene1 gene2 n likelihood'. If empty, every p-value is 1`)
	cmd.Flags.StringVar(&flags.outputPath, "output", "fusions.tsv", "TSV file to store the fusion candidates")
	cmd.Flags.StringVar(&flags.junctionOutputPath, "junction-output", "", "If nonempty, TSV file to store the junctions")
	cmd.Flags.StringVar(&flags.graphOutputPath, "graph-output", "", "If nonempty, recordio file to store the graph after construction")
	cmd.Flags.StringVar(&flags.graphInputPath, "graph-input", "", `Graph file written by -graph-output.
If nonempty, graph construction is skipped, and -r1 and -r2 are used only for the junction re-test`)
	addOptsFlags(&cmd.Flags, &opts)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("predict takes no positional arguments, but got %v", argv)
		}
		return predict(vcontext.Background(), flags, opts)
	})
	return cmd
}

func newCmdRapid() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "rapid",
		Short:    "Predict gene fusions against a prebuilt panel",
		ArgsName: "panel_dir",
		Long: `
The panel directory must contain exons.fa. It may also contain exons.index,
built by the "index" subcommand with the same -k, and background.txt.`,
	}
	opts := fusion.DefaultOpts
	flags := predictFlags{}
	cmd.Flags.StringVar(&flags.r1, "r1", "", "Comma-separated list of FASTQ files containing R1 reads")
	cmd.Flags.StringVar(&flags.r2, "r2", "", "Comma-separated list of FASTQ files containing R2 reads")
	cmd.Flags.StringVar(&flags.outputPath, "output", "fusions.tsv", "TSV file to store the fusion candidates")
	addOptsFlags(&cmd.Flags, &opts)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("rapid takes one panel directory, but got %v", argv)
		}
		ctx := vcontext.Background()
		if err := panelFlags(ctx, argv[0], &flags); err != nil {
			return err
		}
		return predict(ctx, flags, opts)
	})
	return cmd
}

// panelFlags fills the reference paths of flags from a panel directory.
func panelFlags(ctx context.Context, dir string, flags *predictFlags) error {
	dir = strings.TrimSuffix(dir, "/")
	flags.exonsPath = dir + "/exons.fa"
	if _, err := file.Stat(ctx, flags.exonsPath); err != nil {
		return errors.E(err, "panel directory "+dir)
	}
	if _, err := file.Stat(ctx, dir+"/exons.index"); err == nil {
		flags.indexPath = dir + "/exons.index"
	}
	if _, err := file.Stat(ctx, dir+"/background.txt"); err == nil {
		flags.backgroundPath = dir + "/background.txt"
	}
	return nil
}

func newCmdExtractExons() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "extract-exons",
		Short:    "Generate the exon FASTA file from a gencode annotation",
		ArgsName: "gencode.gtf genome.fa exons.fa",
		Long: `
The exons of each gene are collapsed over all its transcripts, ordered
5'->3', and written as "gene.N" records. Exons of minus strand genes are
reverse complemented.`,
	}
	codingOnly := cmd.Flags.Bool("coding-only", false, "Use the exons of protein coding transcripts only")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("extract-exons takes gtf, genome, and output paths, but got %v", argv)
		}
		return extractExons(vcontext.Background(), argv[0], argv[1], argv[2], *codingOnly)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-fusion",
		Short:    "Gene fusion prediction from paired-end RNA reads",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdIndex(),
			newCmdPredict(),
			newCmdRapid(),
			newCmdExtractExons(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newCmdRoot(), env, os.Args[1:])
	if err == nil {
		log.Printf("All done")
	}
	shutdown()
	if err != nil {
		os.Exit(cmdline.ExitCode(err, env.Stderr))
	}
}
