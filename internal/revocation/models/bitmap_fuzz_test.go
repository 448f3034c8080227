package models

import (
	"strings"
	"testing"
)

// FuzzDecodeBitmap checks that decoding never panics and that every accepted input
// re-encodes to its lowercase form.
func FuzzDecodeBitmap(f *testing.F) {
	f.Add("")
	f.Add(strings.Repeat("0", EncodedLength))
	f.Add(strings.Repeat("F", EncodedLength))
	f.Add(strings.Repeat("g", EncodedLength))
	f.Add(strings.Repeat("0", EncodedLength-1))

	f.Fuzz(func(t *testing.T, input string) {
		b, err := DecodeBitmap(input)
		if err != nil {
			return
		}
		if got := b.Encode(); got != strings.ToLower(input) {
			t.Errorf("round trip mismatch for accepted input")
		}
	})
}
