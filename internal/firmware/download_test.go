package firmware

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shurfire/rfgateway/internal/remote"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestFetchAndVerifySuccess(t *testing.T) {
	payload := []byte("firmware-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "app.hex")
	sidecar := filepath.Join(dir, "app.md5")
	d := NewDownloader()

	status, err := d.FetchAndVerify(context.Background(), srv.URL, md5Hex(payload), dest, sidecar)
	if err != nil || status != remote.StatusOK {
		t.Fatalf("FetchAndVerify failed: status=%v err=%v", status, err)
	}

	got, err := os.ReadFile(dest)
	if err != nil || string(got) != string(payload) {
		t.Fatalf("unexpected committed file contents: %q err=%v", got, err)
	}
	if !HasVerifiedSidecar(sidecar) {
		t.Fatal("expected a verification sidecar after a successful fetch")
	}
}

func TestFetchAndVerifyMD5MismatchDoesNotCommit(t *testing.T) {
	payload := []byte("firmware-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "app.hex")
	sidecar := filepath.Join(dir, "app.md5")
	d := NewDownloader()

	status, err := d.FetchAndVerify(context.Background(), srv.URL, "deadbeefdeadbeefdeadbeefdeadbeef", dest, sidecar)
	if err == nil || status != remote.StatusMD5CheckError {
		t.Fatalf("expected StatusMD5CheckError, got status=%v err=%v", status, err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("expected no committed file after an md5 mismatch")
	}
	if HasVerifiedSidecar(sidecar) {
		t.Fatal("expected no sidecar after an md5 mismatch")
	}
}

func TestFetchAndVerifyNon200StatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "app.hex")
	sidecar := filepath.Join(dir, "app.md5")
	d := NewDownloader()

	status, err := d.FetchAndVerify(context.Background(), srv.URL, "anything", dest, sidecar)
	if err == nil || status != remote.StatusCannotRetrieveFile {
		t.Fatalf("expected StatusCannotRetrieveFile, got status=%v err=%v", status, err)
	}
}

func TestFetchAndVerifyRejectsUnparsableURL(t *testing.T) {
	d := NewDownloader()
	dir := t.TempDir()
	status, err := d.FetchAndVerify(context.Background(), "://bad-url", "anything", filepath.Join(dir, "x"), filepath.Join(dir, "x.md5"))
	if err == nil || status != remote.StatusCannotParseUpdateURL {
		t.Fatalf("expected StatusCannotParseUpdateURL, got status=%v err=%v", status, err)
	}
}
