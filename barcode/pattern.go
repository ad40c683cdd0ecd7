package barcode

import (
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Kind is the type of a read-1 segment.
type Kind uint8

const (
	// Cell is a cell barcode block (C).
	Cell Kind = iota
	// Linker is a constant linker block between barcode blocks (L).
	Linker
	// UMI is the unique molecular identifier (U).
	UMI
	// PolyT is the poly-T anchor (T).
	PolyT
	// Spacer is a block that is skipped (N).
	Spacer

	numKinds = iota
)

var kindLetters = [numKinds]byte{'C', 'L', 'U', 'T', 'N'}

// Letter returns the pattern letter of the kind.
func (k Kind) Letter() byte { return kindLetters[k] }

func (k Kind) String() string {
	switch k {
	case Cell:
		return "cell"
	case Linker:
		return "linker"
	case UMI:
		return "umi"
	case PolyT:
		return "polyT"
	default:
		return "spacer"
	}
}

func kindOf(c byte) (Kind, bool) {
	for i, l := range kindLetters {
		if l == c {
			return Kind(i), true
		}
	}
	return 0, false
}

// Segment is a half-open byte range [Start, End) of read 1.
type Segment struct {
	Kind       Kind
	Start, End int
}

// Len returns the length of the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Pattern describes the layout of read 1 as an ordered list of contiguous
// segments. A Pattern is immutable once parsed.
type Pattern struct {
	str    string
	segs   []Segment
	byKind [numKinds][]Segment
	end    int
}

// Presets for known bead designs.
var presets = map[string]string{
	"scope":   "C8L16C8L16C8L1U8T18",
	"dropseq": "C12U8T30",
	"test":    "C6L15C6L15C6U6T25",
}

// PresetPattern returns the pattern string of a named bead design.
func PresetPattern(name string) (string, bool) {
	p, ok := presets[name]
	return p, ok
}

// ParsePattern parses a read structure such as "C8L16C8L16C8U8T18". Each
// token is a letter followed by a length. Letters C, L, U, T and N produce
// segments; other letters produce no segment, but their lengths still advance
// the offset so that later segments stay aligned with the read. Characters
// that are not part of a token are skipped.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern{str: s}
	pos := 0
	for i := 0; i < len(s); {
		c := s[i]
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if !isLetter(c) || j == i+1 {
			i++
			continue
		}
		n, err := strconv.Atoi(s[i+1 : j])
		if err != nil {
			return Pattern{}, errors.E(errors.Invalid, ErrMalformedPattern, "bad segment length in", strconv.Quote(s))
		}
		if kind, ok := kindOf(c); ok {
			seg := Segment{Kind: kind, Start: pos, End: pos + n}
			p.segs = append(p.segs, seg)
			p.byKind[kind] = append(p.byKind[kind], seg)
		}
		pos += n
		i = j
	}
	if len(p.segs) == 0 {
		return Pattern{}, errors.E(errors.Invalid, ErrMalformedPattern, "no segments in", strconv.Quote(s))
	}
	p.end = pos
	return p, nil
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// String returns the pattern string.
func (p Pattern) String() string { return p.str }

// Segments returns all segments in read order.
func (p Pattern) Segments() []Segment {
	return append([]Segment(nil), p.segs...)
}

// Ranges returns the segments of the given kind, in read order. The caller
// must not modify the result.
func (p Pattern) Ranges(kind Kind) []Segment { return p.byKind[kind] }

// Has reports whether the pattern defines at least one segment of the kind.
func (p Pattern) Has(kind Kind) bool { return len(p.byKind[kind]) > 0 }

// Len returns the total number of bases covered by segments of the kind.
func (p Pattern) Len(kind Kind) int {
	n := 0
	for _, s := range p.byKind[kind] {
		n += s.Len()
	}
	return n
}

// End returns the offset just past the last token.
func (p Pattern) End() int { return p.end }

// Extract returns the concatenation of the given kind's segments of s.
// Segments extending past the end of s are clipped.
func (p Pattern) Extract(kind Kind, s string) string {
	ranges := p.byKind[kind]
	if len(ranges) == 1 {
		return clip(s, ranges[0])
	}
	var b strings.Builder
	b.Grow(p.Len(kind))
	for _, r := range ranges {
		b.WriteString(clip(s, r))
	}
	return b.String()
}

// Split returns the given kind's segments of s, one string per segment.
func (p Pattern) Split(kind Kind, s string) []string {
	ranges := p.byKind[kind]
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = clip(s, r)
	}
	return out
}

func clip(s string, r Segment) string {
	start, end := r.Start, r.End
	if start > len(s) {
		start = len(s)
	}
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}
