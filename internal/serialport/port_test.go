package serialport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakePhy is an io.ReadWriteCloser standing in for the UART: Read drains
// chunks pushed onto an internal channel, blocking until one arrives or the
// fake is closed.
type fakePhy struct {
	chunks chan []byte
	writes [][]byte

	mu     sync.Mutex
	closed bool
}

func newFakePhy() *fakePhy {
	return &fakePhy{chunks: make(chan []byte, 16)}
}

func (f *fakePhy) push(b []byte) { f.chunks <- b }

func (f *fakePhy) Read(p []byte) (int, error) {
	chunk, ok := <-f.chunks
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	return n, nil
}

func (f *fakePhy) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakePhy) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	close(f.chunks)
	return nil
}

func TestLinkWriteForwardsToPhy(t *testing.T) {
	phy := newFakePhy()
	link := NewLink(phy, func([]byte) {})

	if err := link.Write([]byte{soh, 0x01, 0x02}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	phy.mu.Lock()
	defer phy.mu.Unlock()
	if len(phy.writes) != 1 {
		t.Fatalf("expected one write reaching phy, got %d", len(phy.writes))
	}
}

func TestLinkRunFeedsDecoderAndDispatchesFrames(t *testing.T) {
	phy := newFakePhy()

	var mu sync.Mutex
	var got []byte
	link := NewLink(phy, func(payload []byte) {
		mu.Lock()
		got = payload
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- link.Run(ctx) }()

	transport := Encode(0x03, []byte{0x07, 0xAA, 0xBB})
	phy.push(transport)

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		found := got != nil
		mu.Unlock()
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for decoded frame")
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []byte{0x07, 0xAA, 0xBB}
	if len(got) != len(want) {
		t.Fatalf("payload = % x, want % x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("payload = % x, want % x", got, want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLinkRunStopsOnReadError(t *testing.T) {
	phy := newFakePhy()
	link := NewLink(phy, func([]byte) {})

	done := make(chan error, 1)
	go func() { done <- link.Run(context.Background()) }()

	phy.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("Run returned %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after phy closed")
	}
}
