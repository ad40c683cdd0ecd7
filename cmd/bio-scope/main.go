package main

/*
  bio-scope turns paired-end single-cell FASTQ files into a gene by cell
  expression matrix. It runs in two stages:

    bio-scope barcode -sample S -outdir S/barcode -fq1 R1.fq.gz -fq2 R2.fq.gz \
      -pattern scope -whitelist bclist -linker linker

  extracts the cell barcode and UMI of every read pair and writes the tagged
  read 2 to S/barcode/S_2.fq.gz. The reads are then aligned and annotated by an
  external tool that stores the gene name in a SAM tag (XT by default).

    bio-scope count -sample S -outdir S/count -bam S_aligned.bam \
      -barcode-stat S/barcode/stat.txt

  counts UMIs per (cell barcode, gene), calls cells and writes the matrix,
  saturation table and summary. Both stages write a stat.txt, so they need
  distinct output directories.
*/

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/barcode"
	"github.com/grailbio/scrna/count"
	"github.com/grailbio/scrna/umi"
	"github.com/klauspost/pgzip"
	"v.io/x/lib/cmdline"
)

func newCmdBarcode() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "barcode",
		Short: "Extract cell barcodes and UMIs from read 1 and tag read 2",
	}
	flags := barcodeFlags{opts: barcode.DefaultOpts}
	cmd.Flags.StringVar(&flags.sample, "sample", "", "Sample name, used as the output file prefix")
	cmd.Flags.StringVar(&flags.outDir, "outdir", ".", "Output directory")
	cmd.Flags.StringVar(&flags.fq1, "fq1", "", "Read 1 FASTQ, plain or gzipped")
	cmd.Flags.StringVar(&flags.fq2, "fq2", "", "Read 2 FASTQ, plain or gzipped")
	cmd.Flags.StringVar(&flags.pattern, "pattern", "scope", `Read 1 layout, either a preset name or a pattern such as
C8L16C8L16C8U8T18. C is a cell barcode segment, L a linker, U the UMI,
T the poly-T tail and N a spacer.`)
	cmd.Flags.StringVar(&flags.whitelist, "whitelist", "", "Cell barcode whitelist. If empty, barcodes are used as read")
	cmd.Flags.StringVar(&flags.linker, "linker", "", "Linker whitelist. Required when the pattern has linker segments")
	cmd.Flags.StringVar(&flags.conflict, "conflict", "last", `Resolution of whitelist variants at equal distance from two entries,
"last" or "first"`)
	cmd.Flags.BoolVar(&flags.rejects, "write-rejects", false, "Write pairs without poly-T or linker to noPolyT_{1,2}.fq and noLinker_{1,2}.fq")
	cmd.Flags.IntVar(&flags.opts.StrictT, "strict-t", flags.opts.StrictT, "Number of leading poly-T bases that must all be T")
	cmd.Flags.IntVar(&flags.opts.MinT, "min-t", flags.opts.MinT, "Minimum number of T bases in the poly-T segment")
	cmd.Flags.IntVar(&flags.opts.LowQual, "low-qual", flags.opts.LowQual, "Phred score below which a barcode or UMI base is low quality")
	cmd.Flags.IntVar(&flags.opts.LowNum, "low-num", flags.opts.LowNum, "Maximum number of low quality barcode and UMI bases")
	cmd.Flags.IntVar(&flags.opts.ErrTolerance, "err-tolerance", flags.opts.ErrTolerance, "Maximum mismatches across all cell barcode segments")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("barcode takes no positional arguments, but got %v", argv)
		}
		return runBarcode(vcontext.Background(), flags)
	})
	return cmd
}

func newCmdCount() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "count",
		Short: "Count UMIs per cell and gene, call cells and estimate saturation",
	}
	flags := countFlags{
		table:      count.DefaultTableOpts,
		saturation: count.DefaultSaturationOpts,
	}
	cmd.Flags.StringVar(&flags.sample, "sample", "", "Sample name, used as the output file prefix")
	cmd.Flags.StringVar(&flags.outDir, "outdir", ".", "Output directory")
	cmd.Flags.StringVar(&flags.bam, "bam", "", "Aligned reads, BAM or SAM, named {barcode}_{umi}_{read}")
	cmd.Flags.StringVar(&flags.geneTag, "gene-tag", count.DefaultGeneTag, "SAM tag holding the gene name")
	cmd.Flags.StringVar(&flags.barcodeStat, "barcode-stat", "", "stat.txt of the barcode stage, used for the mean reads per cell")
	cmd.Flags.IntVar(&flags.expectedCells, "expected-cells", count.DefaultExpectedCells, "Expected number of cells")
	cmd.Flags.Float64Var(&flags.table.Percent, "umi-percent", umi.DefaultPercent, "A UMI is kept as distinct when its count exceeds this fraction of a more abundant neighbor")
	cmd.Flags.IntVar(&flags.table.Parallelism, "parallelism", 0, "Number of UMI correction workers. Zero means one per CPU")
	cmd.Flags.Int64Var(&flags.saturation.Seed, "seed", 0, "Seed of the saturation subsampling")
	cmd.Flags.BoolVar(&flags.gzip, "gzip", false, "Gzip the matrix files")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("count takes no positional arguments, but got %v", argv)
		}
		return runCount(vcontext.Background(), flags)
	})
	return cmd
}

// openInput opens path for reading, decompressing it when its name says so.
func openInput(ctx context.Context, path string) (io.Reader, file.File, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return r, in, nil
}

// output is a file being written. Paths ending in ".gz" are gzipped with
// parallel block compression.
type output struct {
	path string
	f    file.File
	gz   *pgzip.Writer
	w    io.Writer
}

func createOutput(ctx context.Context, path string) (*output, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	o := &output{path: path, f: f, w: f.Writer(ctx)}
	if strings.HasSuffix(path, ".gz") {
		o.gz = pgzip.NewWriter(o.w)
		o.w = o.gz
	}
	return o, nil
}

func (o *output) Write(p []byte) (int, error) { return o.w.Write(p) }

func (o *output) Close(ctx context.Context) error {
	once := errors.Once{}
	if o.gz != nil {
		once.Set(o.gz.Close())
	}
	once.Set(o.f.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "close", o.path)
	}
	return nil
}

// writeOutput creates path and fills it with write.
func writeOutput(ctx context.Context, path string, write func(io.Writer) error) error {
	o, err := createOutput(ctx, path)
	if err != nil {
		return err
	}
	once := errors.Once{}
	if err := write(o); err != nil {
		once.Set(errors.E(err, "write", path))
	}
	once.Set(o.Close(ctx))
	return once.Err()
}

func outPath(dir, name string) string { return filepath.Join(dir, name) }

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-scope",
		Short:    "Single-cell RNA-seq barcode extraction and UMI counting",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdBarcode(),
			newCmdCount(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
