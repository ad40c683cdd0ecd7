package count

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestAggregateRecords(t *testing.T) {
	aggs := AggregateRecords([]Record{
		{"BBBB", "G1", "TTTT", 1},
		{"AAAA", "G1", "ACGT", 3},
		{"AAAA", "G1", "CCCC", 1},
		{"AAAA", "G2", "GGGG", 2},
	})
	expect.EQ(t, aggs, []Aggregate{
		{Barcode: "AAAA", ReadCount: 6, UMI2: 5, UMICount: 3, GeneCount: 2},
		{Barcode: "BBBB", ReadCount: 1, UMI2: 0, UMICount: 1, GeneCount: 1},
	})
}

func TestCallCells(t *testing.T) {
	var aggs []Aggregate
	// Ranks 0 to 29 have 129 down to 100 UMIs.
	for i := 0; i < 30; i++ {
		aggs = append(aggs, Aggregate{Barcode: fmt.Sprintf("CELL%02d", i), UMICount: 129 - i})
	}
	aggs = append(aggs,
		Aggregate{Barcode: "BG11", UMICount: 11},
		Aggregate{Barcode: "BG10", UMICount: 10},
		Aggregate{Barcode: "BG01", UMICount: 1},
	)
	call := CallCells(aggs, 3000)
	expect.EQ(t, call.Threshold, 10)
	expect.EQ(t, call.NumCells, 31)
	marks := map[string]string{}
	for _, a := range call.Barcodes {
		marks[a.Barcode] = a.Mark
	}
	expect.EQ(t, marks["CELL00"], CellMark)
	expect.EQ(t, marks["CELL29"], CellMark)
	expect.EQ(t, marks["BG11"], CellMark)
	expect.EQ(t, marks["BG10"], BackgroundMark)
	expect.EQ(t, marks["BG01"], BackgroundMark)
	expect.EQ(t, len(call.Cells()), 31)
	for i := 1; i < len(call.Barcodes); i++ {
		expect.True(t, call.Barcodes[i-1].UMICount >= call.Barcodes[i].UMICount)
	}
	// The input is not modified.
	expect.EQ(t, aggs[0].Mark, "")
}

func TestCallCellsEdgeCases(t *testing.T) {
	call := CallCells(nil, 3000)
	expect.EQ(t, call.Threshold, 1)
	expect.EQ(t, call.NumCells, 0)

	// The rank is past the end of the table: the top barcode is the reference.
	aggs := []Aggregate{{Barcode: "A", UMICount: 50}, {Barcode: "B", UMICount: 6}, {Barcode: "C", UMICount: 5}}
	call = CallCells(aggs, 3000)
	expect.EQ(t, call.Threshold, 5)
	expect.EQ(t, call.NumCells, 2)

	call = CallCells(aggs, 0)
	expect.EQ(t, call.Threshold, 5)

	// No barcode exceeds the threshold.
	call = CallCells([]Aggregate{{Barcode: "A", UMICount: 1}, {Barcode: "B", UMICount: 1}}, 100)
	expect.EQ(t, call.Threshold, 1)
	expect.EQ(t, call.NumCells, 0)
	expect.EQ(t, len(call.Cells()), 0)

	// Ties are ordered by barcode.
	call = CallCells([]Aggregate{{Barcode: "B", UMICount: 3}, {Barcode: "A", UMICount: 3}}, 100)
	expect.EQ(t, call.Barcodes[0].Barcode, "A")
	expect.EQ(t, call.ByBarcode()[1].Barcode, "B")
}

func TestWriteMarkedCounts(t *testing.T) {
	aggs := []Aggregate{
		{Barcode: "AAAA", ReadCount: 6, UMI2: 5, UMICount: 3, GeneCount: 2, Mark: CellMark},
		{Barcode: "BBBB", ReadCount: 1, UMICount: 1, GeneCount: 1, Mark: BackgroundMark},
	}
	var b bytes.Buffer
	assert.NoError(t, WriteMarkedCounts(&b, aggs))
	expect.EQ(t, b.String(), "Barcode\treadcount\tUMI2\tUMI\tgeneID\tmark\nAAAA\t6\t5\t3\t2\tCB\nBBBB\t1\t0\t1\t1\tUB\n")
}

func TestMedian(t *testing.T) {
	expect.EQ(t, median(nil), 0.0)
	expect.EQ(t, median([]int{3}), 3.0)
	expect.EQ(t, median([]int{4, 1, 3}), 3.0)
	expect.EQ(t, median([]int{4, 1, 3, 2}), 2.5)
}

func TestSummary(t *testing.T) {
	records := []Record{
		{"AAAA", "G1", "ACGT", 3},
		{"AAAA", "G2", "CCCC", 1},
		{"BBBB", "G1", "TTTT", 4},
		{"BBBB", "G3", "TTTT", 1},
		{"BBBB", "G3", "GGGG", 1},
		{"CCCC", "G4", "AAAA", 10},
	}
	call := CellCall{
		Barcodes: []Aggregate{
			{Barcode: "BBBB", UMICount: 3, GeneCount: 2, Mark: CellMark},
			{Barcode: "AAAA", UMICount: 2, GeneCount: 2, Mark: CellMark},
			{Barcode: "CCCC", UMICount: 1, GeneCount: 1, Mark: BackgroundMark},
		},
		Threshold: 1,
		NumCells:  2,
	}
	s := Summarize(records, call, 2001, 12.345)
	expect.EQ(t, s, Summary{
		Cells:                2,
		FractionReadsInCells: 50,
		MeanReadsPerCell:     1000,
		MedianUMIPerCell:     2,
		TotalGenes:           3,
		MedianGenesPerCell:   2,
		Saturation:           12.345,
	})
	var b bytes.Buffer
	assert.NoError(t, s.Write(&b))
	expect.EQ(t, b.String(), `Estimated Number of Cells:2
Fraction Reads in Cells:50.00%
Mean Reads per Cell:1,000
Median UMI per Cell:2
Total Genes:3
Median Genes per Cell:2
Saturation:12.35%
`)

	empty := Summarize(nil, CallCells(nil, 3000), 100, 0)
	expect.EQ(t, empty, Summary{})
}
