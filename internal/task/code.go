package task

import (
	"crypto/subtle"
	"fmt"
	"math/rand/v2"
)

// CodeDigits is the width of an acceptance code.
const CodeDigits = 5

// NewAcceptanceCode returns a zero-padded 5-digit handoff code.
func NewAcceptanceCode() string {
	return fmt.Sprintf("%0*d", CodeDigits, rand.IntN(100000))
}

// CodesMatch compares two acceptance codes in constant time.
func CodesMatch(want, got string) bool {
	if want == "" || len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
