package barcode

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// testWhitelist entries are pairwise at Hamming distance 6.
var testWhitelist = []string{"ACGTAC", "TGCATG", "GATCGA"}

func TestMismatchIndexExact(t *testing.T) {
	x, err := NewMismatchIndex(testWhitelist, 1, LastWriteWins)
	assert.NoError(t, err)
	for _, w := range testWhitelist {
		m, ok := x.Resolve(w)
		assert.True(t, ok, w)
		expect.EQ(t, m.Canonical, w)
		expect.EQ(t, m.Mismatches, 0)
		expect.True(t, m.Exact())
	}
	expect.EQ(t, x.Entries(), 3)
	expect.EQ(t, x.SeqLen(), 6)
	expect.EQ(t, x.Len(), 3*(1+6*4))
	expect.EQ(t, x.Conflicts(), 0)
}

func TestMismatchIndexSingleSubstitutions(t *testing.T) {
	x, err := NewMismatchIndex(testWhitelist, 1, LastWriteWins)
	assert.NoError(t, err)
	for _, w := range testWhitelist {
		for pos := 0; pos < len(w); pos++ {
			for _, b := range []byte(alphabet) {
				if b == w[pos] {
					continue
				}
				v := []byte(w)
				v[pos] = b
				m, ok := x.Resolve(string(v))
				assert.True(t, ok, string(v))
				expect.EQ(t, m.Canonical, w)
				expect.EQ(t, m.Mismatches, 1)
				expect.EQ(t, m.Positions, []int{pos})
				expect.EQ(t, m.Original, []byte{w[pos]})
				expect.EQ(t, m.Substituted, []byte{b})
				expect.False(t, m.Exact())
			}
		}
	}
	_, ok := x.Resolve("ACGTTT")
	expect.False(t, ok)
}

func TestMismatchIndexTwoSubstitutions(t *testing.T) {
	x, err := NewMismatchIndex([]string{"AAAA"}, 2, LastWriteWins)
	assert.NoError(t, err)
	expect.EQ(t, x.Len(), 1+4*4+6*16)
	m, ok := x.Resolve("ACAN")
	assert.True(t, ok)
	expect.EQ(t, m, Match{
		Canonical:   "AAAA",
		Mismatches:  2,
		Positions:   []int{1, 3},
		Original:    []byte("AA"),
		Substituted: []byte("CN"),
	})
	_, ok = x.Resolve("CCCA")
	expect.False(t, ok)
}

func TestMismatchIndexConflictPolicy(t *testing.T) {
	// AAAT is one substitution away from both entries.
	wl := []string{"AAAA", "AATT"}

	x, err := NewMismatchIndex(wl, 1, LastWriteWins)
	assert.NoError(t, err)
	m, _ := x.Resolve("AAAT")
	expect.EQ(t, m.Canonical, "AATT")
	expect.True(t, x.Conflicts() > 0)

	x, err = NewMismatchIndex(wl, 1, FirstWriteWins)
	assert.NoError(t, err)
	m, _ = x.Resolve("AAAT")
	expect.EQ(t, m.Canonical, "AAAA")
	expect.True(t, x.Conflicts() > 0)
}

func TestMismatchIndexExactWins(t *testing.T) {
	for _, policy := range []ConflictPolicy{LastWriteWins, FirstWriteWins} {
		for _, wl := range [][]string{{"AAAA", "AAAC"}, {"AAAC", "AAAA"}} {
			x, err := NewMismatchIndex(wl, 1, policy)
			assert.NoError(t, err)
			for _, w := range wl {
				m, ok := x.Resolve(w)
				assert.True(t, ok)
				expect.EQ(t, m.Canonical, w, "policy %d, whitelist %v", policy, wl)
				expect.EQ(t, m.Mismatches, 0)
			}
		}
	}
}

func TestMismatchIndexFewerMismatchesWin(t *testing.T) {
	for _, policy := range []ConflictPolicy{LastWriteWins, FirstWriteWins} {
		for _, wl := range [][]string{{"AAAA", "ACCC"}, {"ACCC", "AAAA"}} {
			x, err := NewMismatchIndex(wl, 2, policy)
			assert.NoError(t, err)
			m, _ := x.Resolve("AACC")
			expect.EQ(t, m.Canonical, "ACCC")
			expect.EQ(t, m.Mismatches, 1)
			m, _ = x.Resolve("AAAC")
			expect.EQ(t, m.Canonical, "AAAA")
			expect.EQ(t, m.Mismatches, 1)
		}
	}
}

func TestMismatchIndexErrors(t *testing.T) {
	for _, test := range []struct {
		wl     []string
		budget int
	}{
		{nil, 1},
		{[]string{"ACGT", "ACG"}, 1},
		{[]string{"ACGX"}, 1},
		{[]string{"ACGT"}, 5},
		{[]string{"ACGT"}, -1},
	} {
		_, err := NewMismatchIndex(test.wl, test.budget, LastWriteWins)
		expect.True(t, errors.Is(errors.Invalid, err), "%v/%d: %v", test.wl, test.budget, err)
	}
}

func TestMismatchIndexDuplicates(t *testing.T) {
	x, err := NewMismatchIndex([]string{"ACGT", "acgt", "ACGT"}, 1, LastWriteWins)
	assert.NoError(t, err)
	expect.EQ(t, x.Entries(), 1)
	expect.EQ(t, x.Conflicts(), 0)
}

func TestCorrectSegments(t *testing.T) {
	x, err := NewMismatchIndex(testWhitelist, 1, LastWriteWins)
	assert.NoError(t, err)
	tests := []struct {
		segs []string
		want string
		cost int
		ok   bool
	}{
		{[]string{"ACGTAC", "TGCATG", "GATCGA"}, "ACGTACTGCATGGATCGA", 0, true},
		{[]string{"ACGTAC", "TGCATG", "GATCGT"}, "ACGTACTGCATGGATCGA", 1, true},
		{[]string{"ACGTAA", "TGCATG", "GATCGT"}, "", 2, false},
		{[]string{"ACGTAC", "TTTTTT", "GATCGA"}, "", unresolvedCost, false},
	}
	for _, test := range tests {
		bc, cost, ok := x.CorrectSegments(test.segs, 1)
		expect.EQ(t, bc, test.want, "%v", test.segs)
		expect.EQ(t, cost, test.cost, "%v", test.segs)
		expect.EQ(t, ok, test.ok, "%v", test.segs)
	}
	bc, cost, ok := x.CorrectSegments([]string{"ACGTAA", "TGCATG", "GATCGT"}, 2)
	expect.EQ(t, bc, "ACGTACTGCATGGATCGA")
	expect.EQ(t, cost, 2)
	expect.True(t, ok)
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("first")
	assert.NoError(t, err)
	expect.EQ(t, p, FirstWriteWins)
	p, err = ParseConflictPolicy("last")
	assert.NoError(t, err)
	expect.EQ(t, p, LastWriteWins)
	_, err = ParseConflictPolicy("random")
	expect.True(t, errors.Is(errors.Invalid, err))
}
