// Package count turns gene-tagged alignments of barcoded reads into UMI
// counts, calls cells from background barcodes, estimates sequencing
// saturation and writes the expression matrix of the called cells.
package count

import (
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// Record is the number of reads of one UMI of one gene in one cell barcode,
// after UMI correction.
type Record struct {
	Barcode string `tsv:"Barcode"`
	Gene    string `tsv:"geneID"`
	UMI     string `tsv:"UMI"`
	Count   int    `tsv:"count"`
}

// recordHeader is the header line of a count detail table.
const recordHeader = "Barcode\tgeneID\tUMI\tcount"

// WriteRecords writes records as a tab-separated table with a header line.
func WriteRecords(w io.Writer, records []Record) error {
	t := tsv.NewWriter(w)
	t.WriteString(recordHeader)
	if err := t.EndLine(); err != nil {
		return err
	}
	for _, r := range records {
		t.WriteString(r.Barcode)
		t.WriteString(r.Gene)
		t.WriteString(r.UMI)
		t.WriteString(strconv.Itoa(r.Count))
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

// ReadRecords reads a table written by WriteRecords. Columns are matched by
// header name.
func ReadRecords(r io.Reader) ([]Record, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	var records []Record
	for {
		var rec Record
		if err := tr.Read(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, "read count table", err)
		}
		if rec.Count < 0 {
			return nil, errors.E(errors.Invalid, "negative count for", rec.Barcode, rec.Gene, rec.UMI)
		}
		records = append(records, rec)
	}
	return records, nil
}

// TotalReads returns the sum of the record counts.
func TotalReads(records []Record) int64 {
	var n int64
	for _, r := range records {
		n += int64(r.Count)
	}
	return n
}
