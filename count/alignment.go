package count

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// DefaultGeneTag is the aux tag carrying the gene assigned to an alignment.
const DefaultGeneTag = "XT"

// Alignment is the identity of one gene-assigned read.
type Alignment struct {
	Barcode, UMI, Gene string
}

// AlignmentIterator yields gene-assigned alignments. Scan returns false at
// the end of the input or on error; Err distinguishes the two.
type AlignmentIterator interface {
	Scan() bool
	Alignment() Alignment
	Err() error
}

// ParseReadName splits a read name of the form "{barcode}_{umi}_{name}".
func ParseReadName(name string) (barcode, umi string, err error) {
	i := strings.IndexByte(name, '_')
	if i <= 0 {
		return "", "", errors.E(errors.Integrity, fmt.Sprintf("read name %q: no barcode", name))
	}
	barcode, rest := name[:i], name[i+1:]
	if j := strings.IndexByte(rest, '_'); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", "", errors.E(errors.Integrity, fmt.Sprintf("read name %q: no UMI", name))
	}
	return barcode, rest, nil
}

// recordReader is implemented by both sam.Reader and bam.Reader.
type recordReader interface {
	Read() (*sam.Record, error)
}

// SAMIterator reads alignments from a SAM or BAM stream. Records without the
// gene tag are skipped.
type SAMIterator struct {
	r        recordReader
	tag      sam.Tag
	cur      Alignment
	err      error
	nRecords int
	nSkipped int
}

func newSAMIterator(r recordReader, geneTag string) (*SAMIterator, error) {
	if len(geneTag) != 2 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("gene tag %q must have two characters", geneTag))
	}
	return &SAMIterator{r: r, tag: sam.NewTag(geneTag)}, nil
}

// NewSAMIterator creates an iterator over SAM text.
func NewSAMIterator(r io.Reader, geneTag string) (*SAMIterator, error) {
	sr, err := sam.NewReader(r)
	if err != nil {
		return nil, errors.E(errors.Integrity, "read SAM header", err)
	}
	return newSAMIterator(sr, geneTag)
}

// NewBAMIterator creates an iterator over a BAM stream.
func NewBAMIterator(r io.Reader, geneTag string) (*SAMIterator, error) {
	br, err := bam.NewReader(r, runtime.NumCPU())
	if err != nil {
		return nil, errors.E(errors.Integrity, "read BAM header", err)
	}
	return newSAMIterator(br, geneTag)
}

// Scan implements AlignmentIterator.
func (it *SAMIterator) Scan() bool {
	if it.err != nil {
		return false
	}
	for {
		rec, err := it.r.Read()
		if rec == nil {
			if err != io.EOF {
				it.err = errors.E(errors.Integrity, fmt.Sprintf("read record %d", it.nRecords), err)
			}
			return false
		}
		it.nRecords++
		aux := rec.AuxFields.Get(it.tag)
		if aux == nil {
			it.nSkipped++
			continue
		}
		bc, umi, err := ParseReadName(rec.Name)
		if err != nil {
			it.err = err
			return false
		}
		var gene string
		switch v := aux.Value().(type) {
		case string:
			gene = v
		default:
			gene = fmt.Sprint(v)
		}
		it.cur = Alignment{Barcode: bc, UMI: umi, Gene: gene}
		return true
	}
}

// Alignment implements AlignmentIterator.
func (it *SAMIterator) Alignment() Alignment { return it.cur }

// Err implements AlignmentIterator.
func (it *SAMIterator) Err() error { return it.err }

// Records returns the number of records read, and the number of those that
// were skipped for lack of a gene tag.
func (it *SAMIterator) Records() (read, skipped int) { return it.nRecords, it.nSkipped }

// AlignmentFile is a SAMIterator over a file.
type AlignmentFile struct {
	*SAMIterator
	in file.File
}

// OpenAlignments opens a SAM or BAM file. Paths ending in ".bam" are read as
// BAM; anything else is read as SAM text, possibly compressed.
func OpenAlignments(ctx context.Context, path, geneTag string) (*AlignmentFile, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open alignments", path)
	}
	var (
		r  io.Reader = in.Reader(ctx)
		it *SAMIterator
	)
	if strings.HasSuffix(path, ".bam") {
		it, err = NewBAMIterator(r, geneTag)
	} else {
		if u := compress.NewReaderPath(r, in.Name()); u != nil {
			r = u
		}
		it, err = NewSAMIterator(r, geneTag)
	}
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, errors.E(err, path)
	}
	return &AlignmentFile{SAMIterator: it, in: in}, nil
}

// Close closes the underlying file.
func (f *AlignmentFile) Close(ctx context.Context) error {
	return f.in.Close(ctx)
}
