package barcode

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

const (
	// BarcodeMismatches is the edit budget of cell barcode indexes.
	BarcodeMismatches = 1
	// LinkerMismatches is the edit budget of linker indexes.
	LinkerMismatches = 2

	// unresolvedCost is the cost charged by CorrectSegments for a segment that
	// is not in the index. It exceeds any practical tolerance.
	unresolvedCost = 100
)

// alphabet is the set of symbols substituted when generating variants.
const alphabet = "ACGTN"

// Match is the result of resolving an observed sequence against an index.
type Match struct {
	// Canonical is the whitelist entry the observed sequence resolves to.
	Canonical string
	// Mismatches is the number of substituted positions, 0 for exact matches.
	Mismatches int
	// Positions lists the substituted offsets in increasing order. It is nil
	// for exact matches.
	Positions []int
	// Original and Substituted hold the canonical and the observed bases at
	// Positions.
	Original, Substituted []byte
}

// Exact reports whether the match is an exact whitelist hit.
func (m Match) Exact() bool { return m.Positions == nil }

// ConflictPolicy selects which entry is kept when two whitelist entries
// generate the same variant at the same number of mismatches.
type ConflictPolicy int

const (
	// LastWriteWins keeps the variant of the entry that appears later in the
	// whitelist.
	LastWriteWins ConflictPolicy = iota
	// FirstWriteWins keeps the variant of the entry that appears first.
	FirstWriteWins
)

// ParseConflictPolicy parses "last" or "first".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "last", "":
		return LastWriteWins, nil
	case "first":
		return FirstWriteWins, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown conflict policy %q, want \"first\" or \"last\"", s))
}

// MismatchIndex maps every sequence within a mismatch budget of a whitelist
// entry to that entry. It is immutable after construction and safe for
// concurrent lookups.
type MismatchIndex struct {
	table     map[string]Match
	seqLen    int
	budget    int
	nEntries  int
	conflicts int
}

// NewMismatchIndex builds an index over the whitelist allowing up to
// maxMismatches substitutions from the alphabet ACGTN.
//
// Exact whitelist entries always resolve to themselves. When variants of two
// entries collide, the variant with fewer mismatches is kept; collisions at
// equal mismatch count are resolved by policy. Every collision between
// different entries counts as a conflict.
func NewMismatchIndex(whitelist []string, maxMismatches int, policy ConflictPolicy) (*MismatchIndex, error) {
	if len(whitelist) == 0 {
		return nil, errors.E(errors.Invalid, ErrBadWhitelist, "empty whitelist")
	}
	seqLen := len(whitelist[0])
	if maxMismatches < 0 || maxMismatches > seqLen {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("mismatch budget %d out of range [0, %d]", maxMismatches, seqLen))
	}
	x := &MismatchIndex{
		table:  make(map[string]Match, len(whitelist)*variantCount(seqLen, maxMismatches)),
		seqLen: seqLen,
		budget: maxMismatches,
	}
	entries := make([]string, 0, len(whitelist))
	for _, w := range whitelist {
		w = strings.ToUpper(w)
		if len(w) != seqLen {
			return nil, errors.E(errors.Invalid, ErrBadWhitelist,
				fmt.Sprintf("entry %s has length %d, other entries have length %d", w, len(w), seqLen))
		}
		if i := strings.IndexFunc(w, func(r rune) bool { return !strings.ContainsRune(alphabet, r) }); i >= 0 {
			return nil, errors.E(errors.Invalid, ErrBadWhitelist, fmt.Sprintf("invalid base %c in entry %s", w[i], w))
		}
		if _, ok := x.table[w]; ok {
			log.Debug.Printf("duplicate whitelist entry %s", w)
			continue
		}
		x.table[w] = Match{Canonical: w}
		entries = append(entries, w)
	}
	x.nEntries = len(entries)
	for _, w := range entries {
		for k := 1; k <= maxMismatches; k++ {
			x.enumerate(w, k, policy)
		}
	}
	if x.conflicts > 0 {
		log.Printf("mismatch index: %d whitelist entries, %d sequences, %d conflicts", x.nEntries, len(x.table), x.conflicts)
	}
	return x, nil
}

// variantCount returns the number of sequences of length n within k
// substitutions of a fixed sequence, not counting the sequence itself.
func variantCount(n, k int) int {
	total, choose, pow := 0, 1, 1
	for i := 1; i <= k; i++ {
		choose = choose * (n - i + 1) / i
		pow *= len(alphabet) - 1
		total += choose * pow
	}
	return total
}

// enumerate inserts every variant of canonical with exactly k substitutions.
// Each chosen position takes every symbol other than the canonical base, so a
// variant never collapses back to fewer mismatches.
func (x *MismatchIndex) enumerate(canonical string, k int, policy ConflictPolicy) {
	buf := []byte(canonical)
	pos := make([]int, 0, k)
	var rec func(start, left int)
	rec = func(start, left int) {
		if left == 0 {
			x.insert(string(buf), canonical, pos, buf, policy)
			return
		}
		for p := start; p <= len(buf)-left; p++ {
			orig := canonical[p]
			pos = append(pos, p)
			for i := 0; i < len(alphabet); i++ {
				if alphabet[i] == orig {
					continue
				}
				buf[p] = alphabet[i]
				rec(p+1, left-1)
			}
			buf[p] = orig
			pos = pos[:len(pos)-1]
		}
	}
	rec(0, k)
}

func (x *MismatchIndex) insert(variant, canonical string, pos []int, buf []byte, policy ConflictPolicy) {
	old, ok := x.table[variant]
	if ok {
		x.conflicts++
		log.Debug.Printf("whitelist conflict: %s is within %d of %s and %d of %s",
			variant, old.Mismatches, old.Canonical, len(pos), canonical)
		switch {
		case old.Mismatches < len(pos):
			return
		case old.Mismatches == len(pos) && policy == FirstWriteWins:
			return
		}
	}
	m := Match{
		Canonical:   canonical,
		Mismatches:  len(pos),
		Positions:   append([]int(nil), pos...),
		Original:    make([]byte, len(pos)),
		Substituted: make([]byte, len(pos)),
	}
	for i, p := range pos {
		m.Original[i] = canonical[p]
		m.Substituted[i] = buf[p]
	}
	x.table[variant] = m
}

// Resolve looks up an observed sequence.
func (x *MismatchIndex) Resolve(observed string) (Match, bool) {
	m, ok := x.table[observed]
	return m, ok
}

// CorrectSegments resolves each observed segment independently and
// concatenates the canonical sequences. The cost is the sum of the
// segments' mismatch counts, with unresolved segments charged a cost larger
// than any practical tolerance. ok is false iff cost > tolerance.
func (x *MismatchIndex) CorrectSegments(segs []string, tolerance int) (corrected string, cost int, ok bool) {
	var b strings.Builder
	b.Grow(len(segs) * x.seqLen)
	for _, s := range segs {
		m, found := x.table[s]
		if !found {
			cost += unresolvedCost
			continue
		}
		cost += m.Mismatches
		b.WriteString(m.Canonical)
	}
	if cost > tolerance {
		return "", cost, false
	}
	return b.String(), cost, true
}

// SeqLen returns the length of the whitelist entries.
func (x *MismatchIndex) SeqLen() int { return x.seqLen }

// Budget returns the maximum number of mismatches.
func (x *MismatchIndex) Budget() int { return x.budget }

// Entries returns the number of distinct whitelist entries.
func (x *MismatchIndex) Entries() int { return x.nEntries }

// Len returns the number of sequences in the index, including exact entries.
func (x *MismatchIndex) Len() int { return len(x.table) }

// Conflicts returns the number of variant collisions seen during
// construction.
func (x *MismatchIndex) Conflicts() int { return x.conflicts }
