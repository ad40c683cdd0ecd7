package count

import (
	"fmt"
	"io"

	"github.com/grailbio/scrna/barcode"
)

// Summary holds the headline metrics of a count run.
type Summary struct {
	Cells int
	// FractionReadsInCells is the percentage of counted reads that belong to
	// called cells.
	FractionReadsInCells float64
	// MeanReadsPerCell is the number of valid reads of the barcode stage
	// divided by the number of cells.
	MeanReadsPerCell   int64
	MedianUMIPerCell   int
	TotalGenes         int
	MedianGenesPerCell int
	// Saturation is the saturation of the full sample, in percent.
	Saturation float64
}

// Summarize computes the summary of a count run. validReads is the number of
// reads written by the barcode stage.
func Summarize(records []Record, call CellCall, validReads int64, saturation float64) Summary {
	s := Summary{Cells: call.NumCells, Saturation: saturation}
	cells := call.Cells()
	var cellReads, totalReads int64
	genes := map[string]struct{}{}
	for _, r := range records {
		totalReads += int64(r.Count)
		if cells[r.Barcode] {
			cellReads += int64(r.Count)
			genes[r.Gene] = struct{}{}
		}
	}
	s.TotalGenes = len(genes)
	if totalReads > 0 {
		s.FractionReadsInCells = float64(cellReads) / float64(totalReads) * 100
	}
	if s.Cells > 0 {
		s.MeanReadsPerCell = validReads / int64(s.Cells)
	}
	var umis, geneCounts []int
	for _, a := range call.Barcodes {
		if a.Mark == CellMark {
			umis = append(umis, a.UMICount)
			geneCounts = append(geneCounts, a.GeneCount)
		}
	}
	s.MedianUMIPerCell = int(median(umis))
	s.MedianGenesPerCell = int(median(geneCounts))
	return s
}

// Write writes the summary as "key:value" lines.
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, `Estimated Number of Cells:%s
Fraction Reads in Cells:%.2f%%
Mean Reads per Cell:%s
Median UMI per Cell:%s
Total Genes:%s
Median Genes per Cell:%s
Saturation:%.2f%%
`,
		barcode.FormatNumber(int64(s.Cells)),
		s.FractionReadsInCells,
		barcode.FormatNumber(s.MeanReadsPerCell),
		barcode.FormatNumber(int64(s.MedianUMIPerCell)),
		barcode.FormatNumber(int64(s.TotalGenes)),
		barcode.FormatNumber(int64(s.MedianGenesPerCell)),
		s.Saturation)
	return err
}
