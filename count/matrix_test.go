package count

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

var matrixRecords = []Record{
	{"AAAA", "G2", "ACGT", 3},
	{"AAAA", "G2", "CCCC", 1},
	{"AAAA", "G1", "GGGG", 1},
	{"CCCC", "G1", "TTTT", 2},
	{"GGGG", "G3", "TTTT", 9},
}

func TestNewMatrix(t *testing.T) {
	m := NewMatrix(matrixRecords, map[string]bool{"AAAA": true, "CCCC": true})
	expect.EQ(t, m.Genes, []string{"G1", "G2"})
	expect.EQ(t, m.Barcodes, []string{"AAAA", "CCCC"})
	expect.EQ(t, m.Entries, []MatrixEntry{
		{Row: 0, Col: 0, UMIs: 1},
		{Row: 0, Col: 1, UMIs: 1},
		{Row: 1, Col: 0, UMIs: 2},
	})

	var b bytes.Buffer
	assert.NoError(t, m.WriteMarket(&b))
	expect.EQ(t, b.String(), "%%MatrixMarket matrix coordinate integer general\n%\n2 2 3\n1 1 1\n1 2 1\n2 1 2\n")

	empty := NewMatrix(matrixRecords, nil)
	b.Reset()
	assert.NoError(t, empty.WriteMarket(&b))
	expect.EQ(t, b.String(), "%%MatrixMarket matrix coordinate integer general\n%\n0 0 0\n")
}

func TestWriteMatrix(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	m := NewMatrix(matrixRecords, map[string]bool{"AAAA": true, "CCCC": true})

	prefix := filepath.Join(tempDir, "plain")
	assert.NoError(t, WriteMatrix(ctx, prefix, m, MatrixOpts{}))
	data, err := ioutil.ReadFile(prefix + "_genes.tsv")
	assert.NoError(t, err)
	expect.EQ(t, string(data), "G1\nG2\n")
	data, err = ioutil.ReadFile(prefix + "_cellbarcode.tsv")
	assert.NoError(t, err)
	expect.EQ(t, string(data), "AAAA\nCCCC\n")
	plainMtx, err := ioutil.ReadFile(prefix + "_matrix.mtx")
	assert.NoError(t, err)

	prefix = filepath.Join(tempDir, "packed")
	assert.NoError(t, WriteMatrix(ctx, prefix, m, MatrixOpts{Gzip: true}))
	f, err := os.Open(prefix + "_matrix.mtx.gz")
	assert.NoError(t, err)
	defer f.Close() // nolint: errcheck
	gz, err := gzip.NewReader(f)
	assert.NoError(t, err)
	data, err = ioutil.ReadAll(gz)
	assert.NoError(t, err)
	expect.EQ(t, string(data), string(plainMtx))
	_, err = os.Stat(prefix + "_genes.tsv.gz")
	expect.NoError(t, err)
	_, err = os.Stat(prefix + "_cellbarcode.tsv.gz")
	expect.NoError(t, err)
}
