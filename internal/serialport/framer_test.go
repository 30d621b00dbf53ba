package serialport

import (
	"bytes"
	"testing"
)

// decodeOne feeds transport bytes through a fresh Decoder and returns the
// single frame it produces (nil if none).
func decodeOne(t *testing.T, transport []byte) []byte {
	t.Helper()
	var got []byte
	var dropped string
	d := NewDecoder(func(p []byte) { got = p }, func(reason string) { dropped = reason })
	for _, b := range transport {
		d.Feed(b)
	}
	if got == nil && dropped != "" {
		t.Logf("frame dropped: %s", dropped)
	}
	return got
}

func TestFramingEscapeWorkedExample(t *testing.T) {
	// Worked example: payload [7E, 7D, 41] with a one-byte length prefix.
	payload := []byte{0x7E, 0x7D, 0x41}
	transport := Encode(0x03, payload)

	want := []byte{soh, 0x03, esc, 0x3E, esc, 0x3D, 0x41}
	if !bytes.Equal(transport[:len(transport)-1], want) {
		t.Fatalf("encoded prefix = % x, want % x", transport[:len(transport)-1], want)
	}

	// Checksum is the additive mod-256 sum of the unescaped bytes
	// (length + payload): 0x03+0x7E+0x7D+0x41 = 0x13F -> 0x3F.
	wantCk := byte((0x03 + 0x7E + 0x7D + 0x41) % 256)
	gotCk := transport[len(transport)-1]
	if gotCk != wantCk {
		t.Fatalf("checksum = %02x, want %02x", gotCk, wantCk)
	}

	got := decodeOne(t, transport)
	if !bytes.Equal(got, payload) {
		t.Fatalf("decoded payload = % x, want % x", got, payload)
	}
}

func TestFramingRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03},
		{soh, soh, soh},
		{esc, esc},
		{soh, esc, soh, esc, 0xFF, 0x00},
		bytes.Repeat([]byte{0xAB}, 200),
	}
	for _, payload := range cases {
		transport := Encode(byte(len(payload)), payload)

		// Encoded output never contains a non-sentinel 0x7E: every 0x7E in
		// the stream must be the leading SOH.
		for i, b := range transport {
			if b == soh && i != 0 {
				t.Fatalf("payload %v: unescaped SOH at offset %d in %v", payload, i, transport)
			}
		}

		got := decodeOne(t, transport)
		if len(payload) == 0 {
			if len(got) != 0 {
				t.Fatalf("expected empty decode, got % x", got)
			}
			continue
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip failed for %v: got % x", payload, got)
		}
	}
}

func TestDecoderDropsOnChecksumMismatch(t *testing.T) {
	payload := []byte{0x01, 0x02}
	transport := Encode(byte(len(payload)), payload)
	transport[len(transport)-1] ^= 0xFF // corrupt checksum

	var fired bool
	var dropped string
	d := NewDecoder(func(p []byte) { fired = true }, func(reason string) { dropped = reason })
	for _, b := range transport {
		d.Feed(b)
	}
	if fired {
		t.Fatal("expected frame to be dropped on checksum mismatch")
	}
	if dropped == "" {
		t.Fatal("expected onDrop callback")
	}
}

func TestDecoderMidFrameSOHResets(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	transport := Encode(byte(len(payload)), payload)

	var got []byte
	d := NewDecoder(func(p []byte) { got = p }, nil)
	// Feed a partial garbage frame, then a real SOH mid-stream, then the
	// full valid transport. The garbage must be discarded without a drop
	// of the following valid frame.
	d.Feed(soh)
	d.Feed(0x05)
	d.Feed(0x01) // only one of five payload bytes before SOH interrupts
	for _, b := range transport {
		d.Feed(b)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected recovery to decode %v, got %v", payload, got)
	}
}

func TestDecoderInterByteGapReset(t *testing.T) {
	d := NewDecoder(nil, nil)
	d.Feed(soh)
	d.Feed(0x05)
	if d.state == stateIdle {
		t.Fatal("decoder should be mid-frame before Reset")
	}
	d.Reset() // simulates inter-byte gap timeout (caller owns the timer)
	if d.state != stateIdle {
		t.Fatalf("state after Reset = %v, want stateIdle", d.state)
	}
}
