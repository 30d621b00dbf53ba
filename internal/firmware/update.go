package firmware

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/shurfire/rfgateway/internal/remote"
)

// File names for the two firmware payloads and their sidecars, fixed by
// the external contract the cloud and any diagnostics tooling rely on.
const (
	hostImageName   = "app.hex"
	hostSidecarName = "app.md5"
	rfImageName     = "rf.bin"
	rfSidecarName   = "rf.md5"
	rfVersionName   = "rf.ver"
)

// Updater drives one firmware-check cycle: compare advertised revisions
// against what is currently running, fetch and verify whichever images
// are newer, and on an all-match verify success ask the caller to reset
// the host to apply the update.
type Updater struct {
	downloader *Downloader
	dataDir    string
	onApply    func()
}

// NewUpdater returns an Updater that stores images under dataDir and
// calls onApply once every advertised, newer image has verified.
func NewUpdater(dataDir string, onApply func()) *Updater {
	return &Updater{downloader: NewDownloader(), dataDir: dataDir, onApply: onApply}
}

// Apply compares manifest against the currently-running host and RF
// revisions, downloads and verifies whichever are newer, and triggers
// onApply only if every image that needed fetching verified
// successfully.
func (u *Updater) Apply(ctx context.Context, manifest Manifest, currentHostRev, currentRFRev string) (remote.Status, error) {
	needsApply := false

	if manifest.HostNewer(currentHostRev) {
		status, err := u.downloader.FetchAndVerify(ctx, manifest.FwURL, manifest.FwMD5,
			filepath.Join(u.dataDir, hostImageName), filepath.Join(u.dataDir, hostSidecarName))
		if err != nil {
			log.Errorf("firmware: host image update failed: %v", err)
			return status, err
		}
		needsApply = true
	}

	if manifest.RFNewer(currentRFRev) {
		status, err := u.downloader.FetchAndVerify(ctx, manifest.RFURL, manifest.RFMD5,
			filepath.Join(u.dataDir, rfImageName), filepath.Join(u.dataDir, rfSidecarName))
		if err != nil {
			log.Errorf("firmware: co-processor image update failed: %v", err)
			return status, err
		}
		if err := writeSidecarAtomic(filepath.Join(u.dataDir, rfVersionName), []byte(manifest.RFRevision)); err != nil {
			log.Errorf("firmware: writing rf version file failed: %v", err)
			return remote.StatusCannotWriteVersionFile, err
		}
		needsApply = true
	}

	if !needsApply {
		return remote.StatusOK, nil
	}

	log.Infof("firmware: verified update to host=%s rf=%s, applying", manifest.Revision, manifest.RFRevision)
	if u.onApply != nil {
		u.onApply()
	}
	return remote.StatusOK, nil
}

// CurrentRFRevision reads back the last-committed co-processor version
// file, or "" if none has ever been written.
func CurrentRFRevision(dataDir string) string {
	data, err := os.ReadFile(filepath.Join(dataDir, rfVersionName))
	if err != nil {
		return ""
	}
	return string(data)
}
