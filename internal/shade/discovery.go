package shade

import (
	"time"

	"github.com/shurfire/rfgateway/internal/radioconfig"
	"github.com/shurfire/rfgateway/internal/wire"
)

// Mode selects how beacon discovery behaves once replies start arriving.
type Mode uint8

const (
	// ModeAbsolute collects exactly one pass of beacon replies and stops.
	ModeAbsolute Mode = iota
	// ModeConditional keeps listening as long as replies keep accumulating.
	ModeConditional
)

const (
	discoveryTimeout   = 3 * time.Second
	discoveryRetryMax  = 4
	networkJoinTimeout = 12 * time.Second
)

// beaconReply is one entry in the discovery FIFO.
type beaconReply struct {
	DeviceID   uint16
	DeviceType byte
}

// Discovery runs beacon-based device discovery: issue a beacon request,
// collect replies for discoveryTimeout, filter, and report each newly-seen
// device to the collaborator as discovered.
type Discovery struct {
	svc        *Service
	collab     Collaborator
	mode       Mode
	typeFilter byte
	hasFilter  bool

	active      bool
	replies     []beaconReply
	emptyPasses int
}

// NewDiscovery returns a Discovery bound to svc for issuing beacon requests
// and collab for reporting discovered devices. If hasFilter is true, only
// beacon replies whose device-type byte equals typeFilter are kept.
func NewDiscovery(svc *Service, collab Collaborator, mode Mode, typeFilter byte, hasFilter bool) *Discovery {
	return &Discovery{svc: svc, collab: collab, mode: mode, typeFilter: typeFilter, hasFilter: hasFilter}
}

// Start issues a beacon request and begins a collection pass.
func (d *Discovery) Start(dest wire.Destination) error {
	d.active = true
	d.replies = nil
	d.emptyPasses = 0
	_, err := d.svc.Enqueue(Command{Kind: KindBeaconIssue}, dest)
	return err
}

// HandleBeaconReply is called for every beacon indication received while a
// discovery pass is active. Device id zero (an echo of our own request) and
// replies already on the list are ignored, as are type mismatches when a
// filter is set.
func (d *Discovery) HandleBeaconReply(deviceID uint16, deviceType byte) {
	if !d.active || deviceID == 0 {
		return
	}
	if d.hasFilter && deviceType != d.typeFilter {
		return
	}
	for _, r := range d.replies {
		if r.DeviceID == deviceID {
			return
		}
	}
	d.replies = append(d.replies, beaconReply{DeviceID: deviceID, DeviceType: deviceType})
}

// Timeout is called discoveryTimeout after Start (or after the previous
// Timeout, for conditional mode). It reports every collected device as
// discovered, removes them, and decides whether to continue.
//
// Absolute mode, and any filtered pass (scene-controller discovery always
// passes hasFilter), stops after one pass. Conditional mode keeps going as long as
// a pass collected at least one reply, up to discoveryRetryMax consecutive
// empty passes.
func (d *Discovery) Timeout(dest wire.Destination) (shouldContinue bool) {
	if !d.active {
		return false
	}

	collected := d.replies
	d.replies = nil
	for _, r := range collected {
		d.collab.ReportDiscovered(r.DeviceID)
	}

	if d.mode == ModeAbsolute || d.hasFilter {
		d.active = false
		return false
	}

	if len(collected) == 0 {
		d.emptyPasses++
		if d.emptyPasses >= discoveryRetryMax {
			d.active = false
			return false
		}
	} else {
		d.emptyPasses = 0
	}

	d.svc.Enqueue(Command{Kind: KindBeaconIssue}, dest)
	return true
}

// Active reports whether a discovery pass is currently collecting replies.
func (d *Discovery) Active() bool { return d.active }

// NetworkJoin places the radio into a mode that adopts the first valid
// beacon carrying a real (non-"all", non-factory-default) network id, then
// disables itself after networkJoinTimeout.
type NetworkJoin struct {
	enabled  bool
	deadline time.Time
	onJoined func(networkID uint16)
}

// NewNetworkJoin returns a NetworkJoin that calls onJoined once a valid
// network id is adopted.
func NewNetworkJoin(onJoined func(networkID uint16)) *NetworkJoin {
	return &NetworkJoin{onJoined: onJoined}
}

// Enable arms the join window starting at now.
func (j *NetworkJoin) Enable(now time.Time) {
	j.enabled = true
	j.deadline = now.Add(networkJoinTimeout)
}

// Disable cancels the join window.
func (j *NetworkJoin) Disable() { j.enabled = false }

// Enabled reports whether the join window is currently open.
func (j *NetworkJoin) Enabled() bool { return j.enabled }

// HandleBeacon offers a candidate network id seen in a beacon while the
// join window is open. Returns true if it was adopted (onJoined fires and
// the window closes).
func (j *NetworkJoin) HandleBeacon(networkID uint16) bool {
	if !j.enabled {
		return false
	}
	if !radioconfig.IsAssignableNetworkID(networkID) {
		return false
	}
	j.enabled = false
	if j.onJoined != nil {
		j.onJoined(networkID)
	}
	return true
}

// Tick closes the join window once its deadline passes. Called on the same
// cadence as Service.Tick.
func (j *NetworkJoin) Tick(now time.Time) {
	if j.enabled && !now.Before(j.deadline) {
		j.enabled = false
	}
}
