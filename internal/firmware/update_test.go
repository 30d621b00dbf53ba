package firmware

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shurfire/rfgateway/internal/remote"
)

func TestApplySkipsWhenRevisionsMatch(t *testing.T) {
	applied := false
	u := NewUpdater(t.TempDir(), func() { applied = true })

	manifest := Manifest{Revision: "1.0", RFRevision: "2.0"}
	status, err := u.Apply(context.Background(), manifest, "1.0", "2.0")
	if err != nil || status != remote.StatusOK {
		t.Fatalf("Apply failed: status=%v err=%v", status, err)
	}
	if applied {
		t.Fatal("expected no apply callback when nothing is newer")
	}
}

func TestApplyDownloadsAndAppliesOnNewerHostRevision(t *testing.T) {
	hostPayload := []byte("new-host-image")
	sum := md5.Sum(hostPayload)
	hostMD5 := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(hostPayload)
	}))
	defer srv.Close()

	applied := false
	dir := t.TempDir()
	u := NewUpdater(dir, func() { applied = true })

	manifest := Manifest{Revision: "1.1", FwURL: srv.URL, FwMD5: hostMD5, RFRevision: "2.0"}
	status, err := u.Apply(context.Background(), manifest, "1.0", "2.0")
	if err != nil || status != remote.StatusOK {
		t.Fatalf("Apply failed: status=%v err=%v", status, err)
	}
	if !applied {
		t.Fatal("expected apply callback after a verified newer host image")
	}
	if !HasVerifiedSidecar(filepath.Join(dir, hostSidecarName)) {
		t.Fatal("expected a verified sidecar for the host image")
	}
}

func TestApplyWritesRFVersionFileOnNewerRFRevision(t *testing.T) {
	rfPayload := []byte("new-rf-image")
	sum := md5.Sum(rfPayload)
	rfMD5 := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(rfPayload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	u := NewUpdater(dir, func() {})

	manifest := Manifest{Revision: "1.0", RFRevision: "2.1", RFURL: srv.URL, RFMD5: rfMD5}
	status, err := u.Apply(context.Background(), manifest, "1.0", "2.0")
	if err != nil || status != remote.StatusOK {
		t.Fatalf("Apply failed: status=%v err=%v", status, err)
	}
	if got := CurrentRFRevision(dir); got != "2.1" {
		t.Fatalf("CurrentRFRevision = %q, want 2.1", got)
	}
}

func TestApplyDoesNotApplyOnDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	applied := false
	u := NewUpdater(t.TempDir(), func() { applied = true })

	manifest := Manifest{Revision: "1.1", FwURL: srv.URL, FwMD5: "whatever"}
	_, err := u.Apply(context.Background(), manifest, "1.0", "")
	if err == nil {
		t.Fatal("expected an error from a failing download")
	}
	if applied {
		t.Fatal("expected no apply callback when the download failed")
	}
}
