package util

import "fmt"

// Hamming computes the number of positions at which two equal-length
// sequences differ. It panics if the lengths differ.
func Hamming(s1, s2 string) (distance int) {
	if len(s1) != len(s2) {
		panic(fmt.Sprintf("s1 and s2 must have equal length: '%s', '%s'", s1, s2))
	}
	for i := 0; i < len(s1); i++ {
		if s1[i] != s2[i] {
			distance++
		}
	}
	return distance
}

// HammingOne reports whether s1 and s2 have equal length and differ at
// exactly one position. It stops at the second mismatch, so it is cheaper
// than comparing Hamming(s1, s2) against 1.
func HammingOne(s1, s2 string) bool {
	if len(s1) != len(s2) {
		return false
	}
	n := 0
	for i := 0; i < len(s1); i++ {
		if s1[i] != s2[i] {
			if n++; n > 1 {
				return false
			}
		}
	}
	return n == 1
}
