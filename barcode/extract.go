package barcode

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/encoding/fastq"
)

// Opts configures the read filters of an Extractor.
type Opts struct {
	// StrictT requires the first StrictT bases of the poly-T segment to be T.
	StrictT int
	// MinT is the minimum number of T bases in the poly-T segment.
	MinT int
	// LowQual is the Phred score below which a barcode or UMI base counts as
	// low quality.
	LowQual int
	// LowNum is the maximum number of low quality barcode and UMI bases
	// allowed in a read.
	LowNum int
	// ErrTolerance is the maximum total number of mismatches allowed across
	// the cell barcode segments.
	ErrTolerance int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	StrictT:      0,
	MinT:         10,
	LowQual:      0,
	LowNum:       2,
	ErrTolerance: 1,
}

// Pair receives both mates of a rejected read pair. Either writer may be nil.
type Pair struct {
	R1, R2 io.Writer
}

// Rejects names the optional destinations of pairs dropped by the poly-T
// and linker filters. A nil field discards those pairs.
type Rejects struct {
	NoPolyT  *Pair
	NoLinker *Pair
}

// Extractor extracts the cell barcode and UMI from read 1, filters pairs and
// writes read 2 renamed to "@{barcode}_{umi}_{name}". An Extractor is safe to
// share between goroutines; each Extract call owns its Stats.
type Extractor struct {
	pattern  Pattern
	barcodes *MismatchIndex
	linkers  *MismatchIndex
	opts     Opts
	lowQual  byte
}

// NewExtractor checks that the pattern and the indexes agree and returns an
// Extractor. barcodes may be nil, in which case the raw cell barcode is used.
// linkers must be non-nil iff the pattern has linker segments.
func NewExtractor(pattern Pattern, barcodes, linkers *MismatchIndex, opts Opts) (*Extractor, error) {
	if !pattern.Has(Cell) {
		return nil, errors.E(errors.Invalid, ErrMalformedPattern, "no cell barcode segment in", pattern.String())
	}
	if !pattern.Has(UMI) {
		return nil, errors.E(errors.Invalid, ErrMalformedPattern, "no UMI segment in", pattern.String())
	}
	if pattern.Has(Linker) && linkers == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("pattern %s has linker segments but no linker whitelist was given", pattern))
	}
	if barcodes != nil {
		for _, seg := range pattern.Ranges(Cell) {
			if seg.Len() != barcodes.SeqLen() {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("pattern %s: cell segment [%d,%d) has length %d, barcode whitelist entries have length %d",
						pattern, seg.Start, seg.End, seg.Len(), barcodes.SeqLen()))
			}
		}
	}
	if linkers != nil && pattern.Has(Linker) && pattern.Len(Linker) != linkers.SeqLen() {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("pattern %s: linker segments cover %d bases, linker whitelist entries have length %d",
				pattern, pattern.Len(Linker), linkers.SeqLen()))
	}
	if opts.StrictT < 0 || opts.MinT < 0 || opts.LowNum < 0 || opts.ErrTolerance < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative filter option in %+v", opts))
	}
	if opts.LowQual < 0 || opts.LowQual+PhredOffset > 255 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("low quality threshold %d out of range", opts.LowQual))
	}
	return &Extractor{
		pattern:  pattern,
		barcodes: barcodes,
		linkers:  linkers,
		opts:     opts,
		lowQual:  byte(opts.LowQual + PhredOffset),
	}, nil
}

// verdict is the outcome of filtering one pair.
type verdict int

const (
	clean verdict = iota
	noPolyT
	lowQual
	noLinker
	noBarcode
)

// tagged is the extracted identity of a clean pair.
type tagged struct {
	barcode, umi    string
	bcQual, umiQual string
	corrected       bool
}

// classify runs the filters over read 1 in order and stops at the first
// failure.
func (e *Extractor) classify(r1 *fastq.Read) (verdict, tagged) {
	var t tagged
	if e.pattern.Has(PolyT) && !e.hasPolyT(e.pattern.Extract(PolyT, r1.Seq)) {
		return noPolyT, t
	}
	t.bcQual = e.pattern.Extract(Cell, r1.Qual)
	t.umiQual = e.pattern.Extract(UMI, r1.Qual)
	if e.countLow(t.bcQual)+e.countLow(t.umiQual) > e.opts.LowNum {
		return lowQual, t
	}
	if e.pattern.Has(Linker) {
		if _, ok := e.linkers.Resolve(e.pattern.Extract(Linker, r1.Seq)); !ok {
			return noLinker, t
		}
	}
	if e.barcodes == nil {
		t.barcode = e.pattern.Extract(Cell, r1.Seq)
	} else {
		bc, cost, ok := e.barcodes.CorrectSegments(e.pattern.Split(Cell, r1.Seq), e.opts.ErrTolerance)
		if !ok {
			return noBarcode, t
		}
		t.barcode, t.corrected = bc, cost > 0
	}
	t.umi = e.pattern.Extract(UMI, r1.Seq)
	return clean, t
}

func (e *Extractor) hasPolyT(seq string) bool {
	n := e.opts.StrictT
	if n > len(seq) || strings.Count(seq[:n], "T") != n {
		return false
	}
	return strings.Count(seq, "T") >= e.opts.MinT
}

func (e *Extractor) countLow(qual string) int {
	n := 0
	for i := 0; i < len(qual); i++ {
		if qual[i] < e.lowQual {
			n++
		}
	}
	return n
}

// pairWriter writes rejected pairs to a Pair.
type pairWriter struct {
	w1, w2 *fastq.Writer
}

func newPairWriter(p *Pair) *pairWriter {
	if p == nil {
		return nil
	}
	pw := &pairWriter{}
	if p.R1 != nil {
		pw.w1 = fastq.NewWriter(p.R1)
	}
	if p.R2 != nil {
		pw.w2 = fastq.NewWriter(p.R2)
	}
	return pw
}

func (pw *pairWriter) write(r1, r2 *fastq.Read) error {
	if pw == nil {
		return nil
	}
	if pw.w1 != nil {
		if err := pw.w1.Write(r1); err != nil {
			return err
		}
	}
	if pw.w2 != nil {
		return pw.w2.Write(r2)
	}
	return nil
}

func (pw *pairWriter) flush() error {
	if pw == nil {
		return nil
	}
	once := errors.Once{}
	if pw.w1 != nil {
		once.Set(pw.w1.Flush())
	}
	if pw.w2 != nil {
		once.Set(pw.w2.Flush())
	}
	return once.Err()
}

// progressInterval is the number of pairs between progress messages.
const progressInterval = 1 << 20

// Extract streams read pairs from r1 and r2, writes the tagged read 2 of
// every clean pair to out in input order, and writes rejected pairs to
// rejects. It returns the run statistics, which are valid up to the point of
// failure when an error is returned. Streams of different lengths yield an
// error wrapping fastq.ErrDiscordant.
func (e *Extractor) Extract(r1, r2 io.Reader, out io.Writer, rejects Rejects) (Stats, error) {
	stats := Stats{BarcodeReads: map[string]int64{}}
	sc := fastq.NewPairScanner(r1, r2, fastq.All)
	w := fastq.NewWriter(out)
	polyTW := newPairWriter(rejects.NoPolyT)
	linkerW := newPairWriter(rejects.NoLinker)
	var (
		read1, read2, tag fastq.Read
		idBuf             strings.Builder
	)
	for sc.Scan(&read1, &read2) {
		stats.Total++
		if stats.Total%progressInterval == 0 {
			log.Printf("%dMi read pairs, %d clean", stats.Total/progressInterval, stats.Clean)
		}
		v, t := e.classify(&read1)
		var err error
		switch v {
		case noPolyT:
			stats.NoPolyT++
			err = polyTW.write(&read1, &read2)
		case lowQual:
			stats.LowQual++
		case noLinker:
			stats.NoLinker++
			err = linkerW.write(&read1, &read2)
		case noBarcode:
			stats.NoBarcode++
		case clean:
			idBuf.Reset()
			idBuf.WriteByte('@')
			idBuf.WriteString(t.barcode)
			idBuf.WriteByte('_')
			idBuf.WriteString(t.umi)
			idBuf.WriteByte('_')
			idBuf.WriteString(read2.Name())
			tag = fastq.Read{ID: idBuf.String(), Seq: read2.Seq, Unk: "+", Qual: read2.Qual}
			if err = w.Write(&tag); err != nil {
				break
			}
			stats.Clean++
			if t.corrected {
				stats.Corrected++
			}
			stats.BarcodeQual.Add(t.bcQual)
			stats.UMIQual.Add(t.umiQual)
			for i := 0; i < len(t.barcode); i++ {
				stats.Bases[t.barcode[i]]++
			}
			for i := 0; i < len(t.umi); i++ {
				stats.Bases[t.umi[i]]++
			}
			stats.BarcodeReads[t.barcode]++
		}
		if err != nil {
			return stats, errors.E(err, fmt.Sprintf("write pair %d", stats.Total))
		}
	}
	if err := sc.Err(); err != nil {
		return stats, errors.E(errors.Integrity, fmt.Sprintf("after %d read pairs", stats.Total), err)
	}
	once := errors.Once{}
	once.Set(w.Flush())
	once.Set(polyTW.flush())
	once.Set(linkerW.flush())
	if err := once.Err(); err != nil {
		return stats, errors.E(err, "flush output")
	}
	log.Printf("extracted %d of %d read pairs (%d corrected, %d no polyT, %d low quality, %d no linker, %d no barcode)",
		stats.Clean, stats.Total, stats.Corrected, stats.NoPolyT, stats.LowQual, stats.NoLinker, stats.NoBarcode)
	return stats, nil
}
