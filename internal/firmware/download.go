package firmware

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shurfire/rfgateway/internal/remote"
)

// Downloader fetches and verifies one firmware image at a time. It is a
// thin net/http client like internal/remote.Client — built once, reused
// for every image — since the manifest's two URLs (host, co-processor)
// are fetched sequentially, never concurrently.
type Downloader struct {
	http *http.Client
}

// NewDownloader returns a Downloader with a generous per-image timeout;
// firmware images are large relative to the JSON exchanges elsewhere in
// the gateway.
func NewDownloader() *Downloader {
	return &Downloader{http: &http.Client{Timeout: 5 * time.Minute}}
}

// FetchAndVerify downloads rawURL to destPath (via a .part temp file,
// renamed into place only on success), verifying against wantMD5Hex
// (case-insensitive hex). On success it also writes an atomic
// verification sidecar at sidecarPath containing the lowercase hex
// digest, which is the commit marker the rest of the system checks for
// instead of re-verifying on every read.
func (d *Downloader) FetchAndVerify(ctx context.Context, rawURL, wantMD5Hex, destPath, sidecarPath string) (remote.Status, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return remote.StatusCannotParseUpdateURL, fmt.Errorf("firmware: parse url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return remote.StatusCannotParseFileURL, fmt.Errorf("firmware: build request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return remote.StatusCannotRetrieveFile, fmt.Errorf("firmware: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return remote.StatusCannotRetrieveFile, fmt.Errorf("firmware: fetch %s returned %d", rawURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return remote.StatusCannotCreateLocalFile, fmt.Errorf("firmware: create dest dir: %w", err)
	}

	partPath := destPath + ".part"
	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return remote.StatusCannotCreateLocalFile, fmt.Errorf("firmware: create %s: %w", partPath, err)
	}

	hasher := md5.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(partPath)
		return remote.StatusCannotWriteLocalFile, fmt.Errorf("firmware: write %s: %w", partPath, err)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return remote.StatusCannotWriteLocalFile, fmt.Errorf("firmware: close %s: %w", partPath, closeErr)
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		os.Remove(partPath)
		log.Errorf("firmware: %s incomplete: wrote %d of %d bytes", rawURL, written, resp.ContentLength)
		return remote.StatusDownloadIncomplete, fmt.Errorf("firmware: incomplete download, got %d of %d bytes", written, resp.ContentLength)
	}

	gotMD5 := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(gotMD5, wantMD5Hex) {
		os.Remove(partPath)
		log.Errorf("firmware: %s md5 mismatch: got %s want %s", rawURL, gotMD5, wantMD5Hex)
		return remote.StatusMD5CheckError, fmt.Errorf("firmware: md5 mismatch for %s", rawURL)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return remote.StatusCannotWriteLocalFile, fmt.Errorf("firmware: commit %s: %w", destPath, err)
	}

	if err := writeSidecarAtomic(sidecarPath, []byte(strings.ToLower(gotMD5))); err != nil {
		return remote.StatusCannotWriteVersionFile, fmt.Errorf("firmware: write sidecar for %s: %w", destPath, err)
	}

	return remote.StatusOK, nil
}

// writeSidecarAtomic writes data to path via a temp file plus rename, so
// a reader never observes a half-written verification sidecar. Grounded
// on discovery/cache.go's Save.
func writeSidecarAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// HasVerifiedSidecar reports whether sidecarPath already exists,
// recording a successful prior download — the commit marker described
// by the manifest's verify-then-persist flow.
func HasVerifiedSidecar(sidecarPath string) bool {
	_, err := os.Stat(sidecarPath)
	return err == nil
}
