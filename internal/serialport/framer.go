// Package serialport implements the byte-stuffed transport framing used on
// the UART link to the RF co-processor, plus the physical serial port
// underneath it.
//
// Encoding/decoding mirrors the read loop in spirilis-smacbase's
// npi_phy.go (npiPhyReader's byte-at-a-time state walk over a freshly
// allocated frame buffer) and the checksum/escape rules of the original
// rf_serial_api.h and rfu_uart.c.
package serialport

import "fmt"

const (
	soh byte = 0x7E
	esc byte = 0x7D
)

// Encode wraps a raw message ([length][payload...]) with the SOH sentinel,
// byte-stuffing, and a trailing additive mod-256 checksum over the length
// and pre-escape payload bytes.
func Encode(length byte, payload []byte) []byte {
	out := make([]byte, 0, 2+len(payload)*2+2)
	out = append(out, soh)

	sum := length
	out = appendEscaped(out, length)

	for _, b := range payload {
		sum += b
		out = appendEscaped(out, b)
	}

	out = appendEscaped(out, sum)
	return out
}

// appendEscaped emits b directly, or ESC followed by b with bit 6 cleared if
// b collides with SOH or ESC (both of which have bit 6 set, so clearing it
// is reversible by the decoder OR-ing it back in).
func appendEscaped(out []byte, b byte) []byte {
	if b == soh || b == esc {
		return append(out, esc, b&^byte(0x40))
	}
	return append(out, b)
}

// decodeState is the inbound framer's state machine.
type decodeState uint8

const (
	stateIdle decodeState = iota
	stateLength
	statePayload
	stateChecksum
)

// Decoder reconstructs frames from a byte stream, byte at a time. It is not
// safe for concurrent use; one Decoder serves one serial link.
type Decoder struct {
	state       decodeState
	escapeNext  bool
	length      int
	buf         []byte
	checksum    byte
	onFrame     func(payload []byte)
	onDrop      func(reason string)
}

// NewDecoder returns a Decoder that calls onFrame for every checksum-valid
// frame. onDrop, if non-nil, is called (with a short reason) whenever a
// partial or invalid frame is discarded — useful for diagnostics only.
// Framing errors are recovered locally and never surfaced to callers.
func NewDecoder(onFrame func(payload []byte), onDrop func(reason string)) *Decoder {
	return &Decoder{onFrame: onFrame, onDrop: onDrop}
}

// Reset discards any partial frame and returns the decoder to Idle. Called
// on SOH-while-not-idle and on inter-byte gap timeout.
func (d *Decoder) Reset() {
	if d.state != stateIdle && d.onDrop != nil {
		d.onDrop("reset")
	}
	d.state = stateIdle
	d.escapeNext = false
	d.length = 0
	d.buf = nil
	d.checksum = 0
}

// Feed processes one incoming byte.
func (d *Decoder) Feed(b byte) {
	if b == soh && d.state != stateIdle {
		d.Reset()
	}

	switch d.state {
	case stateIdle:
		if b == soh {
			d.state = stateLength
			d.escapeNext = false
			d.checksum = 0
		}

	case stateLength:
		if b == esc {
			d.escapeNext = true
			return
		}
		v := b
		if d.escapeNext {
			v = b | 0x40
			d.escapeNext = false
		}
		d.length = int(v)
		d.checksum = v
		d.buf = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}

	case statePayload:
		if b == esc {
			d.escapeNext = true
			return
		}
		v := b
		if d.escapeNext {
			v = b | 0x40
			d.escapeNext = false
		}
		d.buf = append(d.buf, v)
		d.checksum += v
		if len(d.buf) >= d.length {
			d.state = stateChecksum
		}

	case stateChecksum:
		if b == esc {
			d.escapeNext = true
			return
		}
		v := b
		if d.escapeNext {
			v = b | 0x40
			d.escapeNext = false
		}
		if v == d.checksum {
			payload := d.buf
			d.resetKeepingCallbacks()
			if d.onFrame != nil {
				d.onFrame(payload)
			}
		} else {
			d.resetKeepingCallbacks()
			if d.onDrop != nil {
				d.onDrop(fmt.Sprintf("checksum mismatch: got %02x want %02x", v, d.checksum))
			}
		}
	}
}

func (d *Decoder) resetKeepingCallbacks() {
	d.state = stateIdle
	d.escapeNext = false
	d.length = 0
	d.buf = nil
	d.checksum = 0
}
