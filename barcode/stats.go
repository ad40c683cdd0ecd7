package barcode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// PhredOffset is the ASCII offset of FASTQ quality characters.
const PhredOffset = 33

// QualHistogram counts quality characters by their ASCII value.
type QualHistogram [256]int64

// Add counts every character of qual.
func (h *QualHistogram) Add(qual string) {
	for i := 0; i < len(qual); i++ {
		h[qual[i]]++
	}
}

// Total returns the number of counted characters.
func (h *QualHistogram) Total() int64 {
	var n int64
	for _, c := range h {
		n += c
	}
	return n
}

// AtLeast returns the percentage of counted characters with Phred score of
// at least q. An empty histogram yields 0.
func (h *QualHistogram) AtLeast(q int) float64 {
	var n, total int64
	for i, c := range h {
		total += c
		if i >= q+PhredOffset {
			n += c
		}
	}
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Q30 returns the percentage of counted characters at Phred 30 or above.
func (h *QualHistogram) Q30() float64 { return h.AtLeast(30) }

// Stats reports the outcome of an extraction run. Total equals the sum of
// Clean and the four reject counters.
type Stats struct {
	// Total is the number of read pairs read.
	Total int64
	// Clean is the number of pairs that passed every filter and were written.
	Clean int64
	// NoPolyT is the number of pairs rejected by the poly-T filter.
	NoPolyT int64
	// LowQual is the number of pairs rejected for low barcode or UMI quality.
	LowQual int64
	// NoLinker is the number of pairs whose linker is not in the linker index.
	NoLinker int64
	// NoBarcode is the number of pairs whose cell barcode could not be
	// corrected within tolerance.
	NoBarcode int64
	// Corrected is the number of clean pairs whose barcode needed at least one
	// substitution.
	Corrected int64

	// BarcodeQual and UMIQual are quality histograms over the cell barcode and
	// UMI bases of clean pairs.
	BarcodeQual, UMIQual QualHistogram
	// Bases counts the bases of the corrected barcode and UMI of clean pairs.
	Bases [256]int64
	// BarcodeReads maps a corrected barcode to its number of clean pairs.
	BarcodeReads map[string]int64
}

// Merge adds the counters of o to s.
func (s *Stats) Merge(o Stats) {
	s.Total += o.Total
	s.Clean += o.Clean
	s.NoPolyT += o.NoPolyT
	s.LowQual += o.LowQual
	s.NoLinker += o.NoLinker
	s.NoBarcode += o.NoBarcode
	s.Corrected += o.Corrected
	for i := range s.BarcodeQual {
		s.BarcodeQual[i] += o.BarcodeQual[i]
		s.UMIQual[i] += o.UMIQual[i]
		s.Bases[i] += o.Bases[i]
	}
	if len(o.BarcodeReads) > 0 && s.BarcodeReads == nil {
		s.BarcodeReads = make(map[string]int64, len(o.BarcodeReads))
	}
	for bc, n := range o.BarcodeReads {
		s.BarcodeReads[bc] += n
	}
}

// Rejected returns the number of pairs dropped by any filter.
func (s *Stats) Rejected() int64 {
	return s.NoPolyT + s.LowQual + s.NoLinker + s.NoBarcode
}

const validReadsKey = "Valid Reads"

// WriteReport writes the human-readable summary:
//
//   Raw Reads: 1,234
//   Valid Reads: 1,000(81.03%)
//   Q30 of Barcodes: 95.00%
//   Q30 of UMIs: 94.00%
func (s *Stats) WriteReport(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Raw Reads: %s\n%s: %s(%s)\nQ30 of Barcodes: %.2f%%\nQ30 of UMIs: %.2f%%\n",
		FormatNumber(s.Total),
		validReadsKey, FormatNumber(s.Clean), FormatPercent(s.Clean, s.Total),
		s.BarcodeQual.Q30(), s.UMIQual.Q30())
	return err
}

// WriteFilterTSV writes one row per filter outcome with its pair count and
// the share of all pairs, followed by the base composition of the corrected
// barcodes and UMIs.
func (s *Stats) WriteFilterTSV(w io.Writer) error {
	t := tsv.NewWriter(w)
	t.WriteString("filter\treads\tfraction")
	if err := t.EndLine(); err != nil {
		return err
	}
	rows := []struct {
		name string
		n    int64
	}{
		{"total", s.Total},
		{"noPolyT", s.NoPolyT},
		{"lowQual", s.LowQual},
		{"noLinker", s.NoLinker},
		{"noBarcode", s.NoBarcode},
		{"corrected", s.Corrected},
		{"clean", s.Clean},
	}
	for _, r := range rows {
		t.WriteString(r.name)
		t.WriteString(strconv.FormatInt(r.n, 10))
		t.WriteString(FormatPercent(r.n, s.Total))
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	var nBases int64
	for _, n := range s.Bases {
		nBases += n
	}
	for _, b := range []byte(alphabet) {
		t.WriteString("base_" + string(b))
		t.WriteString(strconv.FormatInt(s.Bases[b], 10))
		t.WriteString(FormatPercent(s.Bases[b], nBases))
		if err := t.EndLine(); err != nil {
			return err
		}
	}
	return t.Flush()
}

// ParseValidReads extracts the number of valid reads from a report written
// by WriteReport.
func ParseValidReads(r io.Reader) (int64, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, validReadsKey+":") {
			continue
		}
		v := strings.TrimSpace(strings.TrimPrefix(line, validReadsKey+":"))
		if i := strings.IndexByte(v, '('); i >= 0 {
			v = v[:i]
		}
		n, err := strconv.ParseInt(strings.Replace(v, ",", "", -1), 10, 64)
		if err != nil {
			return 0, errors.E(errors.Invalid, "malformed line", strconv.Quote(line), err)
		}
		return n, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errors.E(errors.NotExist, "no \""+validReadsKey+"\" line in report")
}

// FormatNumber formats n with thousands separators, e.g. 1234567 as
// "1,234,567".
func FormatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats n/total as a percentage with two decimals. A zero
// total yields "0.00%".
func FormatPercent(n, total int64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(n)/float64(total)*100)
}
