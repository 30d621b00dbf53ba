package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintfAppendsTimestampedLine(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if err := l.Printf("shade %d position %d", 7, 50); err != nil {
		t.Fatalf("Printf: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("read log.txt: %v", err)
	}
	if !strings.Contains(string(data), "shade 7 position 50") {
		t.Fatalf("log.txt missing expected line: %q", data)
	}
}

func TestReopenPicksUpExistingSize(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Printf("first line"); err != nil {
		t.Fatalf("Printf: %v", err)
	}
	firstSize := l.Size()
	l.Close()

	l2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Size() != firstSize {
		t.Fatalf("reopened size = %d, want %d", l2.Size(), firstSize)
	}
}

func TestRotationMovesLogToBak(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	// Force the size past the threshold without writing a gigantic string
	// literal: write one long line, then drive the size counter over
	// maxSize directly via repeated writes.
	big := strings.Repeat("x", 64*1024)
	for l.Size() < maxSize {
		if err := l.Printf("%s", big); err != nil {
			t.Fatalf("Printf: %v", err)
		}
	}
	if err := l.Printf("triggers rotation"); err != nil {
		t.Fatalf("Printf: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "log.bak")); err != nil {
		t.Fatalf("expected log.bak after rotation: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("read post-rotation log.txt: %v", err)
	}
	if !strings.Contains(string(data), "triggers rotation") {
		t.Fatal("expected the post-rotation write to land in the fresh log.txt")
	}
	if strings.Contains(string(data), big) {
		t.Fatal("expected the fresh log.txt to not contain the pre-rotation filler")
	}
}

func TestTailReturnsRecentBytes(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if err := l.Printf("line %d", i); err != nil {
			t.Fatalf("Printf: %v", err)
		}
	}

	tail, err := l.Tail(1024)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if !strings.Contains(string(tail), "line 4") {
		t.Fatalf("tail missing most recent line: %q", tail)
	}
}

func TestWriteImplementsIOWriter(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	n, err := l.Write([]byte("raw bytes\n"))
	if err != nil || n != len("raw bytes\n") {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
}
