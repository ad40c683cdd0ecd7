package main

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/barcode"
)

type barcodeFlags struct {
	sample, outDir    string
	fq1, fq2          string
	pattern           string
	whitelist, linker string
	conflict          string
	rejects           bool
	opts              barcode.Opts
}

// resolvePattern parses a pattern string or the name of a preset.
func resolvePattern(s string) (barcode.Pattern, error) {
	if preset, ok := barcode.PresetPattern(s); ok {
		s = preset
	}
	return barcode.ParsePattern(s)
}

func runBarcode(ctx context.Context, flags barcodeFlags) (err error) {
	if flags.sample == "" || flags.fq1 == "" || flags.fq2 == "" {
		return errors.E(errors.Invalid, "barcode: -sample, -fq1 and -fq2 are required")
	}
	pattern, err := resolvePattern(flags.pattern)
	if err != nil {
		return errors.E(err, "barcode: pattern", flags.pattern)
	}
	policy, err := barcode.ParseConflictPolicy(flags.conflict)
	if err != nil {
		return errors.E(err, "barcode")
	}
	bc, linker, err := barcode.LoadIndexes(ctx, barcode.IndexOpts{
		BarcodePath: flags.whitelist,
		LinkerPath:  flags.linker,
		Policy:      policy,
	})
	if err != nil {
		return errors.E(err, "barcode")
	}
	extractor, err := barcode.NewExtractor(pattern, bc, linker, flags.opts)
	if err != nil {
		return errors.E(err, "barcode")
	}

	r1, in1, err := openInput(ctx, flags.fq1)
	if err != nil {
		return errors.E(err, "barcode")
	}
	defer in1.Close(ctx) // nolint: errcheck
	r2, in2, err := openInput(ctx, flags.fq2)
	if err != nil {
		return errors.E(err, "barcode")
	}
	defer in2.Close(ctx) // nolint: errcheck

	var (
		outputs []*output
		once    errors.Once
	)
	defer func() {
		for _, o := range outputs {
			once.Set(o.Close(ctx))
		}
		if err == nil {
			err = once.Err()
		}
	}()
	create := func(name string) (io.Writer, error) {
		o, err := createOutput(ctx, outPath(flags.outDir, name))
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
		return o, nil
	}
	out, err := create(fmt.Sprintf("%s_2.fq.gz", flags.sample))
	if err != nil {
		return errors.E(err, "barcode")
	}
	var rejects barcode.Rejects
	if flags.rejects {
		pairs := map[string]**barcode.Pair{"noPolyT": &rejects.NoPolyT, "noLinker": &rejects.NoLinker}
		for name, dst := range pairs {
			p := &barcode.Pair{}
			if p.R1, err = create(name + "_1.fq"); err != nil {
				return errors.E(err, "barcode")
			}
			if p.R2, err = create(name + "_2.fq"); err != nil {
				return errors.E(err, "barcode")
			}
			*dst = p
		}
	}

	stats, err := extractor.Extract(r1, r2, out, rejects)
	if err != nil {
		return errors.E(err, "barcode", flags.fq1, flags.fq2)
	}
	if err := writeOutput(ctx, outPath(flags.outDir, "stat.txt"), stats.WriteReport); err != nil {
		return errors.E(err, "barcode")
	}
	if err := writeOutput(ctx, outPath(flags.outDir, flags.sample+"_filter.tsv"), stats.WriteFilterTSV); err != nil {
		return errors.E(err, "barcode")
	}
	log.Printf("barcode: %s: %d of %d read pairs written to %s_2.fq.gz",
		flags.sample, stats.Clean, stats.Total, flags.sample)
	return nil
}
