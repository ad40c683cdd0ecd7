package count

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// Matrix is the gene by cell UMI count matrix of the called cells.
type Matrix struct {
	// Genes and Barcodes are the sorted row and column names.
	Genes, Barcodes []string
	// Entries holds the non-zero cells in row-major order.
	Entries []MatrixEntry
}

// MatrixEntry is one non-zero matrix cell. Row and Col are 0-based.
type MatrixEntry struct {
	Row, Col int
	UMIs     int
}

// NewMatrix counts the UMIs of every (gene, cell) of the records whose
// barcode is in cells.
func NewMatrix(records []Record, cells map[string]bool) *Matrix {
	type cellKey struct{ gene, barcode string }
	counts := map[cellKey]int{}
	genes, barcodes := map[string]int{}, map[string]int{}
	for _, r := range records {
		if !cells[r.Barcode] {
			continue
		}
		counts[cellKey{r.Gene, r.Barcode}]++
		genes[r.Gene] = 0
		barcodes[r.Barcode] = 0
	}
	m := &Matrix{Genes: sortedKeys(genes), Barcodes: sortedKeys(barcodes)}
	for i, g := range m.Genes {
		genes[g] = i
	}
	for i, b := range m.Barcodes {
		barcodes[b] = i
	}
	m.Entries = make([]MatrixEntry, 0, len(counts))
	for k, n := range counts {
		m.Entries = append(m.Entries, MatrixEntry{Row: genes[k.gene], Col: barcodes[k.barcode], UMIs: n})
	}
	sort.Slice(m.Entries, func(i, j int) bool {
		a, b := m.Entries[i], m.Entries[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return m
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteMarket writes the matrix in Matrix Market coordinate format with
// 1-based indexes.
func (m *Matrix) WriteMarket(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%%%%MatrixMarket matrix coordinate integer general\n%%\n%d %d %d\n",
		len(m.Genes), len(m.Barcodes), len(m.Entries))
	for _, e := range m.Entries {
		fmt.Fprintf(bw, "%d %d %d\n", e.Row+1, e.Col+1, e.UMIs)
	}
	return bw.Flush()
}

func writeLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// MatrixOpts configures WriteMatrix.
type MatrixOpts struct {
	// Gzip compresses the three files and appends ".gz" to their names.
	Gzip bool
}

// WriteMatrix writes the matrix of the called cells as
// {prefix}_matrix.mtx, {prefix}_genes.tsv and {prefix}_cellbarcode.tsv.
func WriteMatrix(ctx context.Context, prefix string, m *Matrix, opts MatrixOpts) error {
	outputs := []struct {
		suffix string
		write  func(io.Writer) error
	}{
		{"_matrix.mtx", m.WriteMarket},
		{"_genes.tsv", func(w io.Writer) error { return writeLines(w, m.Genes) }},
		{"_cellbarcode.tsv", func(w io.Writer) error { return writeLines(w, m.Barcodes) }},
	}
	for _, o := range outputs {
		path := prefix + o.suffix
		if opts.Gzip {
			path += ".gz"
		}
		if err := writeFile(ctx, path, o.write); err != nil {
			return err
		}
	}
	return nil
}

// writeFile creates path and fills it with write. Paths ending in ".gz" are
// gzip compressed.
func writeFile(ctx context.Context, path string, write func(io.Writer) error) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	var (
		once = errors.Once{}
		w    = out.Writer(ctx)
	)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(w)
		once.Set(write(gz))
		once.Set(gz.Close())
	} else {
		once.Set(write(w))
	}
	once.Set(out.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}
