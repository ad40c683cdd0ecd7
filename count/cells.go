package count

import (
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/grailbio/base/tsv"
)

// Barcode marks.
const (
	// CellMark marks a barcode called as a cell.
	CellMark = "CB"
	// BackgroundMark marks a background barcode.
	BackgroundMark = "UB"
)

// Aggregate summarizes the records of one barcode.
type Aggregate struct {
	Barcode string
	// ReadCount is the total number of reads.
	ReadCount int
	// UMI2 is the number of reads of UMIs that were seen more than once.
	UMI2 int
	// UMICount is the number of (gene, UMI) records.
	UMICount int
	// GeneCount is the number of distinct genes.
	GeneCount int
	// Mark is CellMark or BackgroundMark once cells are called.
	Mark string
}

// AggregateRecords computes one Aggregate per barcode, sorted by barcode.
func AggregateRecords(records []Record) []Aggregate {
	type acc struct {
		Aggregate
		genes map[string]struct{}
	}
	byBarcode := map[string]*acc{}
	for _, r := range records {
		a, ok := byBarcode[r.Barcode]
		if !ok {
			a = &acc{Aggregate: Aggregate{Barcode: r.Barcode}, genes: map[string]struct{}{}}
			byBarcode[r.Barcode] = a
		}
		a.ReadCount += r.Count
		if r.Count > 1 {
			a.UMI2 += r.Count
		}
		a.UMICount++
		a.genes[r.Gene] = struct{}{}
	}
	aggs := make([]Aggregate, 0, len(byBarcode))
	for _, a := range byBarcode {
		a.GeneCount = len(a.genes)
		aggs = append(aggs, a.Aggregate)
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Barcode < aggs[j].Barcode })
	return aggs
}

// WriteMarkedCounts writes the aggregates as a tab-separated table with
// columns Barcode, readcount, UMI2, UMI, geneID and mark.
func WriteMarkedCounts(w io.Writer, aggs []Aggregate) error {
	t := tsv.NewWriter(w)
	t.WriteString("Barcode\treadcount\tUMI2\tUMI\tgeneID\tmark")
	if err := t.EndLine(); err != nil {
		return err
	}
	for _, a := range aggs {
		t.WriteString(a.Barcode)
		t.WriteString(strconv.Itoa(a.ReadCount))
		t.WriteString(strconv.Itoa(a.UMI2))
		t.WriteString(strconv.Itoa(a.UMICount))
		t.WriteString(strconv.Itoa(a.GeneCount))
		t.WriteString(a.Mark)
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

const (
	// DefaultExpectedCells is the default expected number of cells.
	DefaultExpectedCells = 3000
	// rankFraction selects the reference barcode at this fraction of the
	// expected number of cells.
	rankFraction = 0.01
	// thresholdFraction scales the UMI count of the reference barcode.
	thresholdFraction = 0.1
)

// CellCall is the partition of barcodes into cells and background.
type CellCall struct {
	// Barcodes holds every aggregate, marked, in decreasing UMI count order.
	// Ties are ordered by barcode.
	Barcodes []Aggregate
	// Threshold is the UMI count that a cell must exceed.
	Threshold int
	// NumCells is the number of barcodes marked CellMark.
	NumCells int
}

// CallCells marks barcodes whose UMI count exceeds a tenth of the UMI count
// of the barcode ranked at 1% of expectedCells as cells. The threshold is at
// least 1. When the rank is out of range, the top barcode is used. Calling no
// cell is a valid outcome. The input is not modified.
func CallCells(aggs []Aggregate, expectedCells int) CellCall {
	sorted := append([]Aggregate(nil), aggs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UMICount != sorted[j].UMICount {
			return sorted[i].UMICount > sorted[j].UMICount
		}
		return sorted[i].Barcode < sorted[j].Barcode
	})
	idx := int(math.Round(float64(expectedCells)*rankFraction)) - 1
	if idx < 0 || idx >= len(sorted) {
		idx = 0
	}
	call := CellCall{Barcodes: sorted, Threshold: 1}
	if len(sorted) > 0 {
		if t := int(float64(sorted[idx].UMICount) * thresholdFraction); t > 1 {
			call.Threshold = t
		}
	}
	for i := range sorted {
		if sorted[i].UMICount > call.Threshold {
			sorted[i].Mark = CellMark
			call.NumCells++
		} else {
			sorted[i].Mark = BackgroundMark
		}
	}
	return call
}

// Cells returns the set of barcodes called as cells.
func (c CellCall) Cells() map[string]bool {
	cells := make(map[string]bool, c.NumCells)
	for _, a := range c.Barcodes {
		if a.Mark == CellMark {
			cells[a.Barcode] = true
		}
	}
	return cells
}

// ByBarcode returns the marked aggregates sorted by barcode.
func (c CellCall) ByBarcode() []Aggregate {
	aggs := append([]Aggregate(nil), c.Barcodes...)
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Barcode < aggs[j].Barcode })
	return aggs
}

// median returns the median of xs, averaging the two middle values when the
// length is even. It returns 0 for an empty slice. xs is sorted in place.
func median(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Ints(xs)
	m := len(xs) / 2
	if len(xs)%2 == 1 {
		return float64(xs[m])
	}
	return float64(xs[m-1]+xs[m]) / 2
}
