package serialport

import (
	"context"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

// interByteGap is the maximum silence between bytes of a single frame before
// the decoder is reset and the partial buffer freed.
const interByteGap = 200 * time.Millisecond

// Config describes how to open the UART to the RF co-processor.
type Config struct {
	Path     string
	BaudRate uint
}

// Open opens the serial port at 8N1 with no inter-character timeout and a
// one-byte minimum read size, mirroring spirilis-smacbase's
// NewSerialPHY(path, baud).
func Open(cfg Config) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              cfg.Path,
		BaudRate:              cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	}
	return serial.Open(opts)
}

// Link owns the physical port plus the inbound decoder's inter-byte gap
// timer. It is the single writer/reader of the serial link — no other path
// may touch phy directly.
type Link struct {
	phy     io.ReadWriteCloser
	decoder *Decoder
}

// NewLink wraps an already-open port with a Decoder that dispatches
// validated frames via onFrame.
func NewLink(phy io.ReadWriteCloser, onFrame func(payload []byte)) *Link {
	return &Link{
		phy: phy,
		decoder: NewDecoder(onFrame, func(reason string) {
			log.Debugf("serialport: dropped partial/invalid frame: %s", reason)
		}),
	}
}

// Write sends an already-framed (encoded) buffer.
func (l *Link) Write(framed []byte) error {
	_, err := l.phy.Write(framed)
	return err
}

// Close closes the underlying port.
func (l *Link) Close() error {
	return l.phy.Close()
}

// Run reads from the port until ctx is cancelled or the port errors,
// feeding every byte to the decoder and resetting it on inter-byte gaps.
// Modeled on spirilis-smacbase's npiPhyReader: a fixed scratch buffer reused
// across reads to avoid per-read allocation.
func (l *Link) Run(ctx context.Context) error {
	scratch := make([]byte, 4096)
	gapTimer := time.NewTimer(interByteGap)
	defer gapTimer.Stop()

	readDone := make(chan struct{})
	readResult := make(chan readOutcome, 1)

	go func() {
		defer close(readDone)
		for {
			n, err := l.phy.Read(scratch)
			select {
			case readResult <- readOutcome{n: n, err: err, data: append([]byte(nil), scratch[:n]...)}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gapTimer.C:
			l.decoder.Reset()
			gapTimer.Reset(interByteGap)
		case res := <-readResult:
			if res.err != nil {
				return res.err
			}
			for _, b := range res.data {
				l.decoder.Feed(b)
			}
			if res.n > 0 {
				if !gapTimer.Stop() {
					select {
					case <-gapTimer.C:
					default:
					}
				}
				gapTimer.Reset(interByteGap)
			}
		}
	}
}

type readOutcome struct {
	n    int
	err  error
	data []byte
}
