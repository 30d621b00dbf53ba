// Package diag exposes a read-only HTTP+SSE admin surface for the
// gateway: current status, a shade state snapshot, a live indication
// stream, and a tail of the rolling event log. The original firmware's
// only operability surface was an RS-232 interactive shell
// (original_source/src/shell_task.c); this is the idiomatic-Go
// replacement an operator gets instead.
package diag

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shurfire/rfgateway/internal/shade"
)

// ShadeSnapshot is the latest known state for one shade, built up from
// whatever indications have arrived so far; fields are zero-valued
// until the corresponding indication is seen at least once.
type ShadeSnapshot struct {
	DeviceID          uint16    `json:"deviceId"`
	PrimaryPosition   *uint16   `json:"primaryPosition,omitempty"`
	SecondaryPosition *uint16   `json:"secondaryPosition,omitempty"`
	VanePosition      *uint16   `json:"vanePosition,omitempty"`
	Battery           *byte     `json:"battery,omitempty"`
	ShadeType         *byte     `json:"shadeType,omitempty"`
	MotorFirmware     string    `json:"motorFirmware,omitempty"`
	NordicFirmware    string    `json:"nordicFirmware,omitempty"`
	LastSeen          time.Time `json:"lastSeen"`
}

// Hub aggregates shade indications into a queryable snapshot and fans
// every indication out to live SSE subscribers, the same
// subscribe/broadcast shape as sol/manager.go's per-server channel map.
type Hub struct {
	mu     sync.RWMutex
	shades map[uint16]*ShadeSnapshot

	subMu       sync.Mutex
	subscribers map[chan []byte]struct{}

	faults []string
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		shades:      make(map[uint16]*ShadeSnapshot),
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Shades returns a snapshot of every known shade, for GET /api/shades.
func (h *Hub) Shades() []ShadeSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ShadeSnapshot, 0, len(h.shades))
	for _, s := range h.shades {
		out = append(out, *s)
	}
	return out
}

// Subscribe registers a new SSE listener; every subsequent event is
// pushed as JSON bytes onto the returned channel until Unsubscribe is
// called.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	h.subMu.Lock()
	h.subscribers[ch] = struct{}{}
	h.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.subMu.Lock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.subMu.Unlock()
}

func (h *Hub) broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg, err := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{Event: event, Data: data})
	if err != nil {
		return
	}

	h.subMu.Lock()
	defer h.subMu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default: // a slow subscriber drops events rather than blocking indications
		}
	}
}

func (h *Hub) snapshotFor(deviceID uint16) *ShadeSnapshot {
	s, ok := h.shades[deviceID]
	if !ok {
		s = &ShadeSnapshot{DeviceID: deviceID}
		h.shades[deviceID] = s
	}
	return s
}

// The following methods implement shade.Collaborator.

func (h *Hub) ReportPosition(deviceID uint16, kind shade.RailKind, value uint16) {
	h.mu.Lock()
	s := h.snapshotFor(deviceID)
	v := value
	switch kind {
	case shade.RailPrimary:
		s.PrimaryPosition = &v
	case shade.RailSecondary:
		s.SecondaryPosition = &v
	case shade.RailVane:
		s.VanePosition = &v
	}
	s.LastSeen = time.Now()
	snap := *s
	h.mu.Unlock()
	h.broadcast("position", snap)
}

func (h *Hub) ReportScenePosition(deviceID uint16, sceneNum byte, kind shade.RailKind, value uint16) {
	h.mu.Lock()
	s := h.snapshotFor(deviceID)
	s.LastSeen = time.Now()
	h.mu.Unlock()
	h.broadcast("scene-position", struct {
		DeviceID uint16         `json:"deviceId"`
		SceneNum byte           `json:"sceneNum"`
		Kind     shade.RailKind `json:"kind"`
		Value    uint16         `json:"value"`
	}{deviceID, sceneNum, kind, value})
}

func (h *Hub) ReportBattery(deviceID uint16, raw byte) {
	h.mu.Lock()
	s := h.snapshotFor(deviceID)
	s.Battery = &raw
	s.LastSeen = time.Now()
	snap := *s
	h.mu.Unlock()
	h.broadcast("battery", snap)
}

func (h *Hub) ReportFirmwareVersion(deviceID uint16, motor bool, major, minor byte) {
	h.mu.Lock()
	s := h.snapshotFor(deviceID)
	version := byteVersion(major, minor)
	if motor {
		s.MotorFirmware = version
	} else {
		s.NordicFirmware = version
	}
	s.LastSeen = time.Now()
	snap := *s
	h.mu.Unlock()
	h.broadcast("firmware-version", snap)
}

func (h *Hub) ReportGroupBitmap(deviceID uint16, bitmap [32]byte) {
	h.mu.Lock()
	h.snapshotFor(deviceID).LastSeen = time.Now()
	h.mu.Unlock()
	h.broadcast("group-bitmap", struct {
		DeviceID uint16 `json:"deviceId"`
		Bitmap   string `json:"bitmap"`
	}{deviceID, bitmapHex(bitmap)})
}

func (h *Hub) ReportShadeType(deviceID uint16, shadeType byte) {
	h.mu.Lock()
	s := h.snapshotFor(deviceID)
	s.ShadeType = &shadeType
	s.LastSeen = time.Now()
	snap := *s
	h.mu.Unlock()
	h.broadcast("shade-type", snap)
}

func (h *Hub) ReportDebugMetrics(deviceID uint16, metrics shade.DebugMetrics) {
	h.mu.Lock()
	h.snapshotFor(deviceID).LastSeen = time.Now()
	h.mu.Unlock()
	h.broadcast("debug-metrics", struct {
		DeviceID uint16             `json:"deviceId"`
		Metrics  shade.DebugMetrics `json:"metrics"`
	}{deviceID, metrics})
}

func (h *Hub) ReportDiscovered(deviceID uint16) {
	h.mu.Lock()
	h.snapshotFor(deviceID).LastSeen = time.Now()
	h.mu.Unlock()
	h.broadcast("discovered", struct {
		DeviceID uint16 `json:"deviceId"`
	}{deviceID})
}

func (h *Hub) ReportFault(reason string) {
	h.mu.Lock()
	h.faults = append(h.faults, reason)
	if len(h.faults) > 50 {
		h.faults = h.faults[len(h.faults)-50:]
	}
	h.mu.Unlock()
	h.broadcast("fault", struct {
		Reason string `json:"reason"`
	}{reason})
}

// RecentFaults returns up to the last 50 fault reasons reported.
func (h *Hub) RecentFaults() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.faults))
	copy(out, h.faults)
	return out
}

func byteVersion(major, minor byte) string {
	return fmt.Sprintf("%d.%d", major, minor)
}

func bitmapHex(bitmap [32]byte) string {
	return hex.EncodeToString(bitmap[:])
}
