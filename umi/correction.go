// Package umi collapses UMIs that are likely sequencing or PCR errors of a
// more abundant UMI observed for the same cell and gene.
package umi

import (
	"sort"

	"github.com/grailbio/scrna/util"
)

// DefaultPercent is the default abundance ratio above which a low-count UMI
// is considered a distinct molecule rather than an error of a more abundant
// neighbor.
const DefaultPercent = 0.1

// Correct greedily merges near-duplicate UMIs of a single (barcode, gene)
// group. counts maps a UMI to its read count; the input map is not modified.
//
// UMIs are ranked by (count, sequence), both descending. The lowest-ranked UMI
// is repeatedly removed and compared against the remaining UMIs from the
// highest count down. It is merged into the first UMI at Hamming distance 1,
// unless a UMI u with count(low)/count(u) > percent is reached first, in which
// case low is kept as is. Correction stops when one UMI remains.
//
// The sum of the counts is preserved.
func Correct(counts map[string]int, percent float64) map[string]int {
	out := make(map[string]int, len(counts))
	umis := make([]string, 0, len(counts))
	for u, n := range counts {
		out[u] = n
		umis = append(umis, u)
	}
	sort.Slice(umis, func(i, j int) bool {
		ci, cj := out[umis[i]], out[umis[j]]
		if ci != cj {
			return ci > cj
		}
		return umis[i] > umis[j]
	})
	for len(umis) > 1 {
		low := umis[len(umis)-1]
		umis = umis[:len(umis)-1]
		for _, u := range umis {
			if out[u] <= 0 || float64(out[low])/float64(out[u]) > percent {
				break
			}
			if util.HammingOne(low, u) {
				out[u] += out[low]
				delete(out, low)
				break
			}
		}
	}
	return out
}

// CorrectGenes applies Correct to every gene of one barcode. The input maps
// gene -> UMI -> count.
func CorrectGenes(genes map[string]map[string]int, percent float64) map[string]map[string]int {
	out := make(map[string]map[string]int, len(genes))
	for gene, counts := range genes {
		out[gene] = Correct(counts, percent)
	}
	return out
}
