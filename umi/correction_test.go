package umi

import (
	"math/rand"
	"os"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/scrna/util"
	"github.com/stretchr/testify/assert"
)

func TestCorrect(t *testing.T) {
	tests := []struct {
		name     string
		counts   map[string]int
		expected map[string]int
	}{
		{"empty", map[string]int{}, map[string]int{}},
		{"single", map[string]int{"ACGT": 3}, map[string]int{"ACGT": 3}},
		{"merge at ratio limit", map[string]int{"AAAA": 10, "AAAT": 1}, map[string]int{"AAAA": 11}},
		{"ratio stop", map[string]int{"AAAA": 10, "AAAT": 2}, map[string]int{"AAAA": 10, "AAAT": 2}},
		{"distance two", map[string]int{"AAAA": 100, "AATT": 1}, map[string]int{"AAAA": 100, "AATT": 1}},
		{
			"merge into first neighbor",
			map[string]int{"AAAA": 100, "CCCC": 50, "AAAC": 3},
			map[string]int{"AAAA": 103, "CCCC": 50},
		},
		{
			"stop before reaching neighbor",
			map[string]int{"GGGG": 100, "AAAA": 20, "AAAT": 3},
			map[string]int{"GGGG": 100, "AAAA": 20, "AAAT": 3},
		},
		{
			"chain",
			map[string]int{"AAAA": 200, "AAAT": 10, "AATT": 1},
			map[string]int{"AAAA": 211},
		},
		{
			"ties",
			map[string]int{"AAAA": 100, "AAAT": 1, "AATT": 1},
			map[string]int{"AAAA": 101, "AATT": 1},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			in := copyCounts(test.counts)
			got := Correct(test.counts, DefaultPercent)
			assert.Equal(t, test.expected, got)
			assert.Equal(t, in, test.counts, "input must not be modified")
		})
	}
}

func TestCorrectGenes(t *testing.T) {
	got := CorrectGenes(map[string]map[string]int{
		"g1": {"AAAA": 10, "AAAT": 1},
		"g2": {"AAAT": 1},
	}, DefaultPercent)
	assert.Equal(t, map[string]map[string]int{
		"g1": {"AAAA": 11},
		"g2": {"AAAT": 1},
	}, got)
}

func randomCounts(r *rand.Rand) map[string]int {
	const bases = "ACGT"
	counts := map[string]int{}
	n := 1 + r.Intn(30)
	for i := 0; i < n; i++ {
		b := []byte("AAAA")
		for j := range b {
			if r.Intn(3) == 0 {
				b[j] = bases[r.Intn(len(bases))]
			}
		}
		counts[string(b)] += 1 + r.Intn(50)
	}
	return counts
}

func sum(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func TestCorrectConservesCounts(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for i := 0; i < 500; i++ {
		counts := randomCounts(r)
		got := Correct(counts, DefaultPercent)
		assert.Equal(t, sum(counts), sum(got))
		assert.True(t, len(got) <= len(counts))
		for u := range got {
			_, ok := counts[u]
			assert.True(t, ok, "output UMI %s not in input", u)
		}
	}
}

// stable reports whether no pair of UMIs is at Hamming distance one with an
// abundance ratio at or below percent.
func stable(counts map[string]int, percent float64) bool {
	for a, ca := range counts {
		for b, cb := range counts {
			if a != b && ca <= cb && float64(ca)/float64(cb) <= percent && util.HammingOne(a, b) {
				return false
			}
		}
	}
	return true
}

func TestCorrectIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	nStable := 0
	for i := 0; i < 500; i++ {
		once := Correct(randomCounts(r), DefaultPercent)
		if !stable(once, DefaultPercent) {
			continue
		}
		nStable++
		assert.Equal(t, once, Correct(once, DefaultPercent))
	}
	assert.True(t, nStable > 0)
}

func copyCounts(m map[string]int) map[string]int {
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	defer shutdown()
	os.Exit(m.Run())
}
