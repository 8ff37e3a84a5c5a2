// Package refnum implements the facture reference scheme FC-<seq>-<year>.
// Sequence numbers are assigned per calendar year and, after any
// delete-and-renumber cycle, form a contiguous range 1..N within each year.
package refnum

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix is the fixed reference prefix.
const Prefix = "FC"

// Parse splits a reference of the form FC-<seq>-<year> into its sequence
// number and year. ok is false for anything that does not match the exact
// shape; Parse never panics on malformed input.
func Parse(ref string) (seq, year int, ok bool) {
	parts := strings.Split(ref, "-")
	if len(parts) != 3 || parts[0] != Prefix {
		return 0, 0, false
	}
	if !isDigits(parts[1]) || !isDigits(parts[2]) {
		return 0, 0, false
	}
	seq, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	year, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}
	return seq, year, true
}

// Format is the inverse of Parse. The sequence number is not zero padded.
func Format(seq, year int) string {
	return fmt.Sprintf("%s-%d-%d", Prefix, seq, year)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
