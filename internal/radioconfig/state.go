// Package radioconfig drives the RF co-processor through its
// Reset -> GetConfig -> SetConfig -> Start startup sequence and owns the
// non-volatile configuration blob (including the network id).
//
// The original firmware's equivalent state machine
// (rc_process_startup_confirmation in RC_RadioConfig.c) left every failure
// path as a bare "FIX ME" comment with no retry. Here a step failure
// restarts the whole sequence from its Reset step (a fresh reset request
// to the co-processor), up to Policy.MaxSequenceAttempts attempts in all;
// once those are used up the machine parks in a terminal Failed state —
// turning a silent stall into an observable, bounded recovery. No further
// reset is issued after that.
package radioconfig

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// State is a step in the startup sequence.
type State uint8

const (
	StateIdle State = iota
	StateReset
	StateGetConfig
	StateSetConfig
	StateStart
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReset:
		return "reset"
	case StateGetConfig:
		return "get-config"
	case StateSetConfig:
		return "set-config"
	case StateStart:
		return "start"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attribute is one non-volatile configuration item pushed to the
// co-processor during StateSetConfig, e.g. the network id or channel.
type Attribute struct {
	ID    byte
	Value []byte
}

// Config is the non-volatile configuration blob the state machine builds.
// The Machine keeps it in memory only; it does not read it from or write
// it to storage.
type Config struct {
	NetworkID  uint16
	NordicUUID uint64
	Attributes []Attribute
}

// Policy bounds how many times the sequence may be attempted from the top
// (each attempt starting with a reset request) before the machine gives up
// in StateFailed. StepTimeout is carried for callers; the Machine itself
// does not time steps out.
type Policy struct {
	MaxSequenceAttempts int
	StepTimeout         time.Duration
}

// DefaultPolicy matches the original firmware's step cadence with a bounded
// retry/escalation policy layered on top.
func DefaultPolicy() Policy {
	return Policy{MaxSequenceAttempts: 3, StepTimeout: 5 * time.Second}
}

// Transport is what the state machine needs from the outbound/serial
// layer: issue a reset, a config get/set, or a start, each keyed so the
// caller can correlate a later confirmation back to the pending step.
type Transport interface {
	SendReset() error
	SendGetAttribute(attrID byte) error
	SendSetAttribute(attr Attribute) error
	SendStart() error
}

// Machine drives one co-processor through its startup sequence.
type Machine struct {
	transport Transport
	policy    Policy
	cfg       Config
	pending   []Attribute // attributes still to push during StateSetConfig

	state    State
	attempts int
	onReady  func(Config)
	onFailed func()
}

// NewMachine returns a Machine in StateIdle. attrs is the full list of
// attributes to push once GetConfig succeeds.
func NewMachine(transport Transport, policy Policy, attrs []Attribute, onReady func(Config), onFailed func()) *Machine {
	return &Machine{
		transport: transport,
		policy:    policy,
		pending:   attrs,
		onReady:   onReady,
		onFailed:  onFailed,
	}
}

// Start begins (or restarts) the sequence from StateReset.
func (m *Machine) Start() {
	m.state = StateReset
	m.attempts++
	if err := m.transport.SendReset(); err != nil {
		log.Errorf("radioconfig: reset send failed: %v", err)
	}
}

// State reports the machine's current step.
func (m *Machine) State() State { return m.state }

// OnResetConfirmed advances Reset -> GetConfig on success, or retries /
// escalates on failure.
func (m *Machine) OnResetConfirmed(ok bool) {
	if m.state != StateReset {
		return
	}
	if !ok {
		m.fail("reset")
		return
	}
	m.state = StateGetConfig
	if err := m.transport.SendGetAttribute(attrNordicUUID); err != nil {
		log.Errorf("radioconfig: get-config send failed: %v", err)
	}
}

// OnGetConfigConfirmed advances GetConfig -> SetConfig, recording uuid.
func (m *Machine) OnGetConfigConfirmed(ok bool, uuid uint64) {
	if m.state != StateGetConfig {
		return
	}
	if !ok {
		m.fail("get-config")
		return
	}
	m.cfg.NordicUUID = uuid
	m.state = StateSetConfig
	m.sendNextAttribute()
}

func (m *Machine) sendNextAttribute() {
	if len(m.pending) == 0 {
		m.state = StateStart
		if err := m.transport.SendStart(); err != nil {
			log.Errorf("radioconfig: start send failed: %v", err)
		}
		return
	}
	next := m.pending[0]
	if err := m.transport.SendSetAttribute(next); err != nil {
		log.Errorf("radioconfig: set-config send failed: %v", err)
	}
}

// OnSetConfigConfirmed advances to the next pending attribute, or to
// StateStart once all attributes are pushed.
func (m *Machine) OnSetConfigConfirmed(ok bool) {
	if m.state != StateSetConfig {
		return
	}
	if !ok {
		m.fail("set-config")
		return
	}
	if len(m.pending) > 0 {
		m.pending = m.pending[1:]
	}
	m.sendNextAttribute()
}

// OnStartConfirmed finishes the sequence: success moves to StateReady and
// fires onReady; failure retries/escalates like any other step.
func (m *Machine) OnStartConfirmed(ok bool) {
	if m.state != StateStart {
		return
	}
	if !ok {
		m.fail("start")
		return
	}
	m.state = StateReady
	m.attempts = 0
	if m.onReady != nil {
		m.onReady(m.cfg)
	}
}

// SetNetworkID records the network id the machine should push to the
// co-processor. Called during the initial startup sequence (before
// StateSetConfig has drained its attribute list) it just queues the
// attribute for sendNextAttribute to pick up in order. Called later, once
// the machine is StateReady — as it is when the shade layer adopts a new
// network id via a beacon during normal operation — any previously queued
// (and by now stale) network-id push is dropped in favor of this one, and
// the machine re-enters StateSetConfig to actively drive the new id out
// over the transport rather than silently queuing it behind a sequence
// that already finished.
func (m *Machine) SetNetworkID(id uint16) {
	m.cfg.NetworkID = id
	attr := Attribute{ID: attrDLLNetworkID, Value: []byte{byte(id), byte(id >> 8)}}

	filtered := m.pending[:0]
	for _, a := range m.pending {
		if a.ID != attrDLLNetworkID {
			filtered = append(filtered, a)
		}
	}
	m.pending = append(filtered, attr)

	if m.state != StateReady {
		return
	}
	m.state = StateSetConfig
	m.attempts = 0
	m.sendNextAttribute()
}

// fail handles a step failure: while fewer than Policy.MaxSequenceAttempts
// attempts have been made, restart the whole sequence from Reset; once the
// attempt budget is used up, the machine parks in StateFailed and calls
// onFailed.
func (m *Machine) fail(step string) {
	log.Warnf("radioconfig: %s step failed (attempt %d/%d)", step, m.attempts, m.policy.MaxSequenceAttempts)

	if m.attempts < m.policy.MaxSequenceAttempts {
		m.Start()
		return
	}

	log.Errorf("radioconfig: %s exhausted %d attempts, giving up", step, m.policy.MaxSequenceAttempts)
	m.state = StateFailed
	if m.onFailed != nil {
		m.onFailed()
	}
}

// Attribute ids used by the startup sequence. Kept minimal; the original
// firmware's attribute table carries many more, but only the unique id
// (read) and network id (written) are load-bearing for this sequence.
const (
	attrNordicUUID   byte = 0x01
	attrDLLNetworkID byte = 0x02
)
