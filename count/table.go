package count

import (
	"context"
	"runtime"
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/scrna/umi"
)

// numTableShards is the number of barcode shards corrected in parallel.
const numTableShards = 256

// TableOpts configures BuildTable.
type TableOpts struct {
	// Percent is the UMI correction abundance ratio. See umi.Correct.
	Percent float64
	// Parallelism bounds the number of shards corrected concurrently. Zero
	// means the number of CPUs.
	Parallelism int
}

// DefaultTableOpts sets the default values to TableOpts.
var DefaultTableOpts = TableOpts{
	Percent: umi.DefaultPercent,
}

// geneUMIs maps gene -> UMI -> read count of one barcode.
type geneUMIs = map[string]map[string]int

// tableShard holds the barcodes that hash to one shard.
type tableShard struct {
	barcodes map[string]geneUMIs
	records  []Record
}

// BuildTable reads every alignment from it, groups reads by barcode, gene and
// UMI, and corrects the UMIs of every (barcode, gene) with umi.CorrectGenes.
// The result is sorted by barcode, gene and UMI.
func BuildTable(ctx context.Context, it AlignmentIterator, opts TableOpts) ([]Record, error) {
	shards := make([]tableShard, numTableShards)
	for i := range shards {
		shards[i].barcodes = map[string]geneUMIs{}
	}
	var nReads int
	for it.Scan() {
		a := it.Alignment()
		h := seahash.Sum64(gunsafe.StringToBytes(a.Barcode))
		shard := &shards[h%numTableShards]
		genes, ok := shard.barcodes[a.Barcode]
		if !ok {
			genes = geneUMIs{}
			shard.barcodes[a.Barcode] = genes
		}
		umis, ok := genes[a.Gene]
		if !ok {
			umis = map[string]int{}
			genes[a.Gene] = umis
		}
		umis[a.UMI]++
		nReads++
		if nReads%(1<<22) == 0 {
			log.Printf("read %dMi gene-tagged alignments", nReads>>20)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	log.Printf("read %d gene-tagged alignments", nReads)

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(shards) {
		parallelism = len(shards)
	}
	err := traverse.Each(parallelism, func(jobIdx int) error {
		start := (jobIdx * len(shards)) / parallelism
		end := ((jobIdx + 1) * len(shards)) / parallelism
		for i := start; i < end; i++ {
			shards[i].correct(opts.Percent)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mergeShards(shards), nil
}

// correct replaces the raw UMI counts of the shard with sorted, corrected
// records.
func (s *tableShard) correct(percent float64) {
	for bc, genes := range s.barcodes {
		for gene, umis := range umi.CorrectGenes(genes, percent) {
			for u, n := range umis {
				s.records = append(s.records, Record{Barcode: bc, Gene: gene, UMI: u, Count: n})
			}
		}
	}
	s.barcodes = nil
	sort.Slice(s.records, func(i, j int) bool { return recordLess(&s.records[i], &s.records[j]) })
}

func recordLess(a, b *Record) bool {
	if a.Barcode != b.Barcode {
		return a.Barcode < b.Barcode
	}
	if a.Gene != b.Gene {
		return a.Gene < b.Gene
	}
	return a.UMI < b.UMI
}

func compareRecords(a, b *Record) int {
	switch {
	case recordLess(a, b):
		return -1
	case recordLess(b, a):
		return 1
	}
	return 0
}

// mergeLeaf is the unconsumed part of one sorted shard.
type mergeLeaf struct {
	seq     int
	records []Record
}

// Compare implements llrb.Comparable.
func (l *mergeLeaf) Compare(c llrb.Comparable) int {
	l1 := c.(*mergeLeaf)
	if c := compareRecords(&l.records[0], &l1.records[0]); c != 0 {
		return c
	}
	return l.seq - l1.seq
}

// mergeShards merges the sorted shards. The smallest leaf is kept at the top
// of a tree, and records are copied from it until its head passes the head of
// the second smallest leaf.
func mergeShards(shards []tableShard) []Record {
	var (
		leafs llrb.Tree
		n     int
	)
	for i := range shards {
		if len(shards[i].records) > 0 {
			leafs.Insert(&mergeLeaf{seq: i, records: shards[i].records})
			n += len(shards[i].records)
		}
	}
	out := make([]Record, 0, n)
	for leafs.Len() > 0 {
		var top, next *mergeLeaf
		nth := 0
		leafs.Do(func(item llrb.Comparable) bool {
			nth++
			if nth == 1 {
				top = item.(*mergeLeaf)
				return false
			}
			next = item.(*mergeLeaf)
			return true
		})
		leafs.DeleteMin()
		for {
			out = append(out, top.records[0])
			top.records = top.records[1:]
			if len(top.records) == 0 || (next != nil && compareRecords(&next.records[0], &top.records[0]) < 0) {
				break
			}
		}
		if len(top.records) > 0 {
			leafs.Insert(top)
		}
	}
	return out
}
