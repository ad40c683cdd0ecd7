package count

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"github.com/minio/highwayhash"
)

// SaturationPoint is the outcome of subsampling the reads at one fraction.
type SaturationPoint struct {
	Fraction float64
	// MedianGenes is the median number of distinct genes per cell.
	MedianGenes float64
	// Saturation is 100 * (1 - distinct (barcode, gene, UMI) / sampled reads),
	// over the reads of called cells.
	Saturation float64
}

// SaturationOpts configures EstimateSaturation.
type SaturationOpts struct {
	// Fractions are the subsampling fractions, each in (0, 1].
	Fractions []float64
	// Seed seeds the per-fraction random sources.
	Seed int64
}

// DefaultSaturationOpts sets the default values to SaturationOpts.
var DefaultSaturationOpts = SaturationOpts{
	Fractions: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
}

type hashKey = [highwayhash.Size]uint8

// readTable is a compact form of the read table, with one entry per distinct
// (barcode, gene, UMI).
type readTable struct {
	// counts[i] is the number of reads of triple i.
	counts []int
	// inCell[i] is true if the barcode of triple i is a called cell.
	inCell []bool
	// pair[i] is the (barcode, gene) id of triple i.
	pair []int32
	// pairBarcode[j] is the barcode id of pair j.
	pairBarcode []int32
	nBarcodes   int
	total       int64
}

func newReadTable(records []Record, cells map[string]bool) *readTable {
	var (
		zeroSeed hashKey
		buf      []byte
		t        = &readTable{}
		triples  = map[hashKey]int{}
		pairs    = map[hashKey]int32{}
		barcodes = map[string]int32{}
	)
	for _, r := range records {
		if r.Count <= 0 {
			continue
		}
		buf = append(buf[:0], r.Barcode...)
		buf = append(buf, 0)
		buf = append(buf, r.Gene...)
		pairKey := highwayhash.Sum(buf, zeroSeed[:])
		buf = append(buf, 0)
		buf = append(buf, r.UMI...)
		tripleKey := highwayhash.Sum(buf, zeroSeed[:])

		t.total += int64(r.Count)
		if i, ok := triples[tripleKey]; ok {
			t.counts[i] += r.Count
			continue
		}
		bc, ok := barcodes[r.Barcode]
		if !ok {
			bc = int32(len(barcodes))
			barcodes[r.Barcode] = bc
		}
		p, ok := pairs[pairKey]
		if !ok {
			p = int32(len(t.pairBarcode))
			pairs[pairKey] = p
			t.pairBarcode = append(t.pairBarcode, bc)
		}
		triples[tripleKey] = len(t.counts)
		t.counts = append(t.counts, r.Count)
		t.inCell = append(t.inCell, cells[r.Barcode])
		t.pair = append(t.pair, p)
	}
	t.nBarcodes = len(barcodes)
	return t
}

// sample draws round(fraction * total) reads without replacement by
// selection sampling and measures the cells' part of the sample.
func (t *readTable) sample(fraction float64, r *rand.Rand) SaturationPoint {
	need := int64(math.Round(fraction * float64(t.total)))
	left := t.total
	var (
		sampled, distinct int64
		pairSeen          = make([]bool, len(t.pairBarcode))
		genes             = make([]int, t.nBarcodes)
	)
	for i, c := range t.counts {
		if need == 0 {
			break
		}
		k := int64(0)
		for j := 0; j < c; j++ {
			if r.Int63n(left) < need {
				k++
				need--
			}
			left--
		}
		if k == 0 || !t.inCell[i] {
			continue
		}
		sampled += k
		distinct++
		if p := t.pair[i]; !pairSeen[p] {
			pairSeen[p] = true
			genes[t.pairBarcode[p]]++
		}
	}
	pt := SaturationPoint{Fraction: fraction}
	if sampled == 0 {
		return pt
	}
	perCell := genes[:0]
	for _, n := range genes {
		if n > 0 {
			perCell = append(perCell, n)
		}
	}
	pt.MedianGenes = median(perCell)
	pt.Saturation = (1 - float64(distinct)/float64(sampled)) * 100
	return pt
}

// fractionSeed derives the random seed of one fraction.
func fractionSeed(fraction float64, seed int64) int64 {
	return int64(farm.Hash64WithSeed([]byte(strconv.FormatFloat(fraction, 'f', -1, 64)), uint64(seed)))
}

// EstimateSaturation subsamples the reads of records at every fraction of
// opts. Each fraction draws an independent sample of round(fraction * reads)
// reads; the sample is then restricted to the barcodes in cells. The result
// starts with (0, 0, 0) and is ordered by increasing fraction.
func EstimateSaturation(ctx context.Context, records []Record, cells map[string]bool, opts SaturationOpts) ([]SaturationPoint, error) {
	fractions := append([]float64(nil), opts.Fractions...)
	sort.Float64s(fractions)
	for _, f := range fractions {
		if !(f > 0 && f <= 1) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("subsampling fraction %v not in (0, 1]", f))
		}
	}
	t := newReadTable(records, cells)
	points := make([]SaturationPoint, len(fractions)+1)
	err := traverse.Each(len(fractions), func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := rand.New(rand.NewSource(fractionSeed(fractions[i], opts.Seed)))
		points[i+1] = t.sample(fractions[i], r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// WriteSaturation writes the points as a tab-separated table with columns
// percent, median_geneNum and saturation.
func WriteSaturation(w io.Writer, points []SaturationPoint) error {
	if _, err := io.WriteString(w, "percent\tmedian_geneNum\tsaturation\n"); err != nil {
		return err
	}
	for _, p := range points {
		if _, err := fmt.Fprintf(w, "%.2f\t%.2f\t%.2f\n", p.Fraction, p.MedianGenes, p.Saturation); err != nil {
			return err
		}
	}
	return nil
}
