package b64j

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for n := 0; n < 256; n++ {
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(i*7 + n)
		}
		enc := EncodeToString(in)
		if strings.ContainsRune(enc, '/') {
			t.Fatalf("encoded output for len %d contains '/': %q", n, enc)
		}
		out, err := DecodeString(enc)
		if err != nil {
			t.Fatalf("decode len %d: %v", n, err)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("round trip mismatch for len %d", n)
		}
	}
}

func TestAtSignIsValueSixtyThree(t *testing.T) {
	// Three bytes of 0xFF encode to all-63 sextets: "////" in stdlib, "@@@@" here.
	enc := EncodeToString([]byte{0xFF, 0xFF, 0xFF})
	if enc != "@@@@" {
		t.Fatalf("expected @@@@, got %q", enc)
	}
}
