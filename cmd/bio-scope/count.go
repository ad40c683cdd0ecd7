package main

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/barcode"
	"github.com/grailbio/scrna/count"
)

type countFlags struct {
	sample, outDir string
	bam, geneTag   string
	barcodeStat    string
	expectedCells  int
	gzip           bool
	table          count.TableOpts
	saturation     count.SaturationOpts
}

// validReads returns the number of reads written by the barcode stage, or
// the number of counted reads when no barcode stat file is given.
func validReads(ctx context.Context, path string, records []count.Record) (int64, error) {
	if path == "" {
		return count.TotalReads(records), nil
	}
	r, in, err := openInput(ctx, path)
	if err != nil {
		return 0, err
	}
	defer in.Close(ctx) // nolint: errcheck
	n, err := barcode.ParseValidReads(r)
	if err != nil {
		return 0, errors.E(err, path)
	}
	return n, nil
}

func runCount(ctx context.Context, flags countFlags) error {
	if flags.sample == "" || flags.bam == "" {
		return errors.E(errors.Invalid, "count: -sample and -bam are required")
	}
	if flags.expectedCells < 0 {
		return errors.E(errors.Invalid, "count: -expected-cells must not be negative")
	}
	alignments, err := count.OpenAlignments(ctx, flags.bam, flags.geneTag)
	if err != nil {
		return errors.E(err, "count")
	}
	records, err := count.BuildTable(ctx, alignments, flags.table)
	if e := alignments.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return errors.E(err, "count", flags.bam)
	}
	prefix := outPath(flags.outDir, flags.sample)
	if err := writeOutput(ctx, prefix+"_count_detail.txt", func(w io.Writer) error {
		return count.WriteRecords(w, records)
	}); err != nil {
		return errors.E(err, "count")
	}

	call := count.CallCells(count.AggregateRecords(records), flags.expectedCells)
	log.Printf("count: %s: %d cells of %d barcodes, UMI threshold %d",
		flags.sample, call.NumCells, len(call.Barcodes), call.Threshold)
	if err := writeOutput(ctx, prefix+"_counts.txt", func(w io.Writer) error {
		return count.WriteMarkedCounts(w, call.ByBarcode())
	}); err != nil {
		return errors.E(err, "count")
	}

	cells := call.Cells()
	m := count.NewMatrix(records, cells)
	if err := count.WriteMatrix(ctx, prefix, m, count.MatrixOpts{Gzip: flags.gzip}); err != nil {
		return errors.E(err, "count")
	}

	points, err := count.EstimateSaturation(ctx, records, cells, flags.saturation)
	if err != nil {
		return errors.E(err, "count")
	}
	if err := writeOutput(ctx, prefix+"_downsample.txt", func(w io.Writer) error {
		return count.WriteSaturation(w, points)
	}); err != nil {
		return errors.E(err, "count")
	}

	reads, err := validReads(ctx, flags.barcodeStat, records)
	if err != nil {
		return errors.E(err, "count")
	}
	summary := count.Summarize(records, call, reads, points[len(points)-1].Saturation)
	if err := writeOutput(ctx, outPath(flags.outDir, "stat.txt"), summary.Write); err != nil {
		return errors.E(err, "count")
	}
	return nil
}
