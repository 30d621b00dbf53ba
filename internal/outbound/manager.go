// Package outbound implements the state machine that paces messages to the
// RF co-processor with retry, acknowledgment, and timeout policy. It
// serializes every write to the single serial link: only one RequestRecord
// is ever in flight.
//
// The pacing loop is grounded on spirilis-smacbase/npi_linkmgr.go's Ctrl():
// a request is handed off, a timer races the reply, and the result is
// delivered once via a completion channel/callback — generalized here with
// an added retry-before-giving-up step.
package outbound

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shurfire/rfgateway/internal/wire"
)

// Status bytes exchanged with the co-processor's serial confirmation path.
const (
	StatusAck     byte = 0x00
	StatusNak     byte = 0x01
	StatusTimeout byte = 0xFF // synthetic: fabricated by the manager, never on the wire
)

// Writer is the single thing allowed to put bytes on the serial link.
type Writer interface {
	Write(framed []byte) error
}

type state uint8

const (
	stateIdle state = iota
	stateSending
	stateRetrying
)

// Manager serializes access to the single serial writer. It exposes a
// deliver/notify pair: DeliverRequest hands off a queued record,
// NotifySerialResponse reports the co-processor's confirmation.
type Manager struct {
	mu       sync.Mutex
	policies map[wire.Destination]Policy
	writer   Writer
	arena    *wire.Arena

	st      state
	active  wire.Token
	retries int
	timer   *time.Timer
}

// NewManager returns a Manager that writes framed requests through w and
// reads record fields from arena.
func NewManager(w Writer, arena *wire.Arena, policies map[wire.Destination]Policy) *Manager {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Manager{writer: w, arena: arena, policies: policies, st: stateIdle}
}

// DeliverRequest hands a queued record to the pacer. It returns false
// (logging a diagnostic) if another record is already in flight — callers
// must not retry the same record themselves; the manager already owns
// retry policy.
func (m *Manager) DeliverRequest(tok wire.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st != stateIdle {
		log.Warnf("outbound: deliver_request for %v rejected, %v already in flight", tok, m.active)
		return false
	}

	rec, ok := m.arena.Get(tok)
	if !ok {
		log.Warnf("outbound: deliver_request for unknown token %v", tok)
		return false
	}

	m.active = tok
	m.retries = 0
	m.st = stateSending
	m.send(rec)
	return true
}

// send writes the record's framed buffer and arms the response timeout.
// Caller must hold m.mu.
func (m *Manager) send(rec *wire.RequestRecord) {
	if err := m.writer.Write(rec.Buffer); err != nil {
		log.Errorf("outbound: serial write failed: %v", err)
	}
	policy := m.policies[rec.Dest]
	m.armTimer(policy.ResponseTimeout, m.onResponseTimeout)
}

func (m *Manager) armTimer(d time.Duration, fn func()) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, fn)
}

// onResponseTimeout fires when the co-processor never answers within the
// destination's response timeout.
func (m *Manager) onResponseTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handleFailureLocked(false)
}

// NotifySerialResponse delivers the co-processor's confirmation status for
// the currently in-flight record. A status other than StatusAck is treated
// as NAK and triggers a retry if one remains.
func (m *Manager) NotifySerialResponse(status byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st == stateIdle {
		log.Debugf("outbound: serial response %02x with nothing in flight, ignored", status)
		return
	}

	if m.timer != nil {
		m.timer.Stop()
	}

	if status == StatusAck {
		m.completeLocked(StatusAck)
		return
	}

	m.handleFailureLocked(true)
}

// handleFailureLocked handles a NAK or timeout: retry if the destination's
// cap allows it, otherwise fabricate a Timeout status to the requester and
// return to idle.
func (m *Manager) handleFailureLocked(wasNak bool) {
	rec, ok := m.arena.Get(m.active)
	if !ok {
		m.resetLocked()
		return
	}

	policy := m.policies[rec.Dest]
	if m.retries < policy.MaxRetries {
		m.retries++
		m.st = stateRetrying
		reason := "timeout"
		if wasNak {
			reason = "NAK"
		}
		log.Debugf("outbound: %s for %v, retry %d/%d", reason, m.active, m.retries, policy.MaxRetries)
		m.armTimer(policy.RetryWait, m.onRetryWaitElapsed)
		return
	}

	log.Warnf("outbound: retries exhausted for %v, reporting synthetic timeout", m.active)
	m.completeLocked(StatusTimeout)
}

func (m *Manager) onRetryWaitElapsed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.arena.Get(m.active)
	if !ok {
		m.resetLocked()
		return
	}
	m.st = stateSending
	m.send(rec)
}

// completeLocked delivers the terminal status to the requester's callback
// and returns the manager to idle. The callback is invoked outside the lock
// to avoid deadlock if it re-enters the manager.
func (m *Manager) completeLocked(status byte) {
	rec, ok := m.arena.Get(m.active)
	tok := m.active
	m.resetLocked()

	if !ok || rec.OnComplete == nil {
		return
	}
	cb := rec.OnComplete
	go cb(tok, status)
}

func (m *Manager) resetLocked() {
	m.st = stateIdle
	m.active = 0
	m.retries = 0
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Busy reports whether a record is currently in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st != stateIdle
}
