// Package firmware parses the cloud firmware manifest and downloads,
// verifies, and commits the host and co-processor images it advertises.
package firmware

import "encoding/json"

// Manifest is the JSON document returned by the firmware-check endpoint,
// advertising both the host (Freescale) and co-processor (Nordic)
// firmware revisions.
type Manifest struct {
	Revision    string `json:"revision"`
	FwURL       string `json:"fwUrl"`
	FwMD5       string `json:"fwMd5"`
	RFRevision  string `json:"rfRevision"`
	RFURL       string `json:"rfUrl"`
	RFMD5       string `json:"rfMd5"`
	ReleaseDate string `json:"releaseDate"`
	NextUpdate  int    `json:"nextUpdate"`
}

// ParseManifest decodes a firmware manifest from raw JSON.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// HostNewer reports whether the manifest advertises a host revision
// different from currentRev.
func (m Manifest) HostNewer(currentRev string) bool {
	return m.Revision != "" && m.Revision != currentRev
}

// RFNewer reports whether the manifest advertises a co-processor
// revision different from currentRev.
func (m Manifest) RFNewer(currentRev string) bool {
	return m.RFRevision != "" && m.RFRevision != currentRev
}
