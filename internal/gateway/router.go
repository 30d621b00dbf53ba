// Package gateway wires the serial link's inbound frames to the subsystem
// that owns each frame type, and lets radioconfig's startup sequence ride
// the same single-writer outbound pacer the shade layer uses.
//
// This is the generalized equivalent of spirilis-smacbase's npi_linkmgr.go
// dispatch table: one frame arrives at a time off the wire, and its leading
// type byte picks exactly one downstream handler.
package gateway

import (
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shurfire/rfgateway/internal/outbound"
	"github.com/shurfire/rfgateway/internal/radioconfig"
	"github.com/shurfire/rfgateway/internal/serialport"
	"github.com/shurfire/rfgateway/internal/shade"
	"github.com/shurfire/rfgateway/internal/wire"
)

// confirmOK is the ack status byte of a serial confirmation (the same value
// as outbound.StatusAck); beaconPayloadLen is the minimum beacon indication
// payload length.
const (
	confirmOK  byte = 0x00
	beaconPayloadLen = 5 // deviceID(2) + deviceType(1) + networkID(2), little-endian
)

// Router dispatches every validated inbound frame (as handed to it by
// serialport.Link's onFrame callback) to the subsystem responsible for
// that frame type.
type Router struct {
	arena   *wire.Arena
	manager *outbound.Manager
	machine *radioconfig.Machine
	service *shade.Service
	collab  shade.Collaborator
	dedup   *shade.Dedup

	discovery   *shade.Discovery
	networkJoin *shade.NetworkJoin
	battery     *shade.Sweep
}

// New returns a Router. discovery and networkJoin may be nil if the caller
// hasn't started those passes yet; HandleFrame skips routing to a nil
// target.
func New(arena *wire.Arena, manager *outbound.Manager, machine *radioconfig.Machine, service *shade.Service, collab shade.Collaborator) *Router {
	return &Router{
		arena:   arena,
		manager: manager,
		machine: machine,
		service: service,
		collab:  collab,
		dedup:   shade.NewDedup(),
	}
}

// SetDiscovery attaches (or clears, with nil) the active beacon-discovery
// pass so beacon indications are routed to it.
func (r *Router) SetDiscovery(d *shade.Discovery) { r.discovery = d }

// SetNetworkJoin attaches (or clears) the network-join listener.
func (r *Router) SetNetworkJoin(j *shade.NetworkJoin) { r.networkJoin = j }

// SetBatterySweep attaches (or clears) a battery-sweep pass. HandleFrame
// does not route battery replies to it; battery indications reach only the
// collaborator's ReportBattery.
func (r *Router) SetBatterySweep(s *shade.Sweep) { r.battery = s }

// HandleFrame is the Link.onFrame callback: buf[0] is the wire type code,
// buf[1:] is the frame's logical payload.
func (r *Router) HandleFrame(buf []byte) {
	if len(buf) == 0 {
		return
	}
	typ, payload := buf[0], buf[1:]

	switch typ {
	case wire.TypeResetConf:
		r.handleConfigConfirm(payload, func(ok bool) { r.machine.OnResetConfirmed(ok) })
	case wire.TypeConfigGetConf:
		r.handleGetConfigConfirm(payload)
	case wire.TypeConfigSetConf:
		r.handleConfigConfirm(payload, func(ok bool) { r.machine.OnSetConfigConfirmed(ok) })
	case wire.TypeStartConf:
		r.handleConfigConfirm(payload, func(ok bool) { r.machine.OnStartConfirmed(ok) })

	case wire.TypeShadeDataConf, wire.TypeGroupSetConf:
		if len(payload) < 1 {
			return
		}
		r.manager.NotifySerialResponse(payload[0])

	case wire.TypeShadeDataInd:
		r.handleShadeDataInd(payload)

	case wire.TypeBeaconConf:
		if len(payload) < 1 {
			return
		}
		r.manager.NotifySerialResponse(payload[0])
	case wire.TypeBeaconInd:
		r.handleBeaconInd(payload)

	case wire.TypeGroupSetInd:
		// acknowledgment-only frame from a shade accepting group
		// membership; nothing to report beyond the confirm above.

	case wire.TypeSystemInd:
		log.Warnf("gateway: system indication: % x", payload)

	default:
		log.Debugf("gateway: unhandled frame type 0x%02x", typ)
	}
}

// handleConfigConfirm runs a radioconfig step confirmation: it frees the
// outbound pacer and then calls fn with the ack/nak outcome.
func (r *Router) handleConfigConfirm(payload []byte, fn func(ok bool)) {
	if len(payload) < 1 {
		return
	}
	status := payload[0]
	r.manager.NotifySerialResponse(status)
	fn(status == confirmOK)
}

// handleGetConfigConfirm additionally carries the co-processor's 64-bit
// unique id once the status byte is ack.
func (r *Router) handleGetConfigConfirm(payload []byte) {
	if len(payload) < 1 {
		return
	}
	status := payload[0]
	r.manager.NotifySerialResponse(status)
	var uuid uint64
	if status == confirmOK && len(payload) >= 9 {
		uuid = binary.LittleEndian.Uint64(payload[1:9])
	}
	r.machine.OnGetConfigConfirmed(status == confirmOK, uuid)
}

func (r *Router) handleShadeDataInd(payload []byte) {
	if len(payload) < 2 {
		return
	}
	deviceID := binary.LittleEndian.Uint16(payload[0:2])
	shade.HandleIndication(r.dedup, r.collab, deviceID, payload[2:], time.Now())
}

func (r *Router) handleBeaconInd(payload []byte) {
	if len(payload) < beaconPayloadLen {
		return
	}
	deviceID := binary.LittleEndian.Uint16(payload[0:2])
	deviceType := payload[2]
	networkID := binary.LittleEndian.Uint16(payload[3:5])

	if r.discovery != nil && r.discovery.Active() {
		r.discovery.HandleBeaconReply(deviceID, deviceType)
	}
	if r.networkJoin != nil && r.networkJoin.Enabled() {
		r.networkJoin.HandleBeacon(networkID)
	}
}

// radioTransport adapts radioconfig.Transport onto the outbound pacer: each
// Send builds a config-destined record and hands it straight to the
// manager, exactly as shade.Service does for RF-destined commands.
type radioTransport struct {
	arena   *wire.Arena
	manager *outbound.Manager
}

// NewRadioTransport returns a radioconfig.Transport backed by arena/manager.
func NewRadioTransport(arena *wire.Arena, manager *outbound.Manager) radioconfig.Transport {
	return &radioTransport{arena: arena, manager: manager}
}

func (t *radioTransport) send(typ byte, payload []byte) error {
	frame := wire.Frame{Type: typ, Payload: payload}
	msg := frame.Bytes()
	buf := serialport.Encode(byte(len(msg)), msg)

	rec := &wire.RequestRecord{
		Dest:     wire.DestConfig,
		RetryCap: 0,
		Buffer:   buf,
		State:    wire.WaitingToSend,
	}
	tok := t.arena.PushBack(rec)
	rec.OnComplete = func(tok wire.Token, status byte) {
		t.arena.Remove(tok)
	}
	if !t.manager.DeliverRequest(tok) {
		log.Warnf("gateway: radio config request type 0x%02x rejected, link busy", typ)
	}
	return nil
}

func (t *radioTransport) SendReset() error {
	return t.send(wire.TypeResetReq, nil)
}

func (t *radioTransport) SendGetAttribute(attrID byte) error {
	return t.send(wire.TypeConfigGetReq, []byte{attrID})
}

func (t *radioTransport) SendSetAttribute(attr radioconfig.Attribute) error {
	payload := append([]byte{attr.ID}, attr.Value...)
	return t.send(wire.TypeConfigSetReq, payload)
}

func (t *radioTransport) SendStart() error {
	return t.send(wire.TypeStartReq, nil)
}
