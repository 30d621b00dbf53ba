package shade

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/shurfire/rfgateway/internal/serialport"
	"github.com/shurfire/rfgateway/internal/wire"
)

// Normal commands hold the record open for 5 ticks after the serial ack
// before it is considered fully delivered; a single-shade battery query
// holds it open for 9, giving the shade longer to answer over RF.
const (
	normalAckWaitTicks        = 5
	batteryQueryAckWaitTicks  = 9
)

// Deliverer is the subset of outbound.Manager the service depends on,
// narrowed for testability.
type Deliverer interface {
	DeliverRequest(tok wire.Token) bool
}

// Service owns the FIFO of shade-directed requests and the pacing that
// advances it one record at a time.
type Service struct {
	mu             sync.Mutex
	arena          *wire.Arena
	deliverer      Deliverer
	pendingStatus  map[wire.Token]byte
	upstreamCB     map[wire.Token]wire.CompletionFunc
}

// NewService returns a Service backed by arena and paced through deliverer.
// Callers must route deliverer's completion callbacks back to
// Service.onRecordComplete (outbound.NewManager's records are built with
// that as OnComplete).
func NewService(arena *wire.Arena, deliverer Deliverer) *Service {
	return &Service{
		arena:         arena,
		deliverer:     deliverer,
		pendingStatus: make(map[wire.Token]byte),
		upstreamCB:    make(map[wire.Token]wire.CompletionFunc),
	}
}

// Enqueue frames cmd, appends it to the FIFO, and kicks the pump. dest picks
// the RF-vs-config destination the outbound manager paces it against.
func (s *Service) Enqueue(cmd Command, dest wire.Destination) (wire.Token, error) {
	frame, err := Encode(cmd)
	if err != nil {
		return 0, fmt.Errorf("shade: encode: %w", err)
	}
	msg := frame.Bytes()
	buf := serialport.Encode(byte(len(msg)), msg)

	ackTicks := normalAckWaitTicks
	if cmd.Kind == KindRawPayload && cmd.BatteryQuery {
		ackTicks = batteryQueryAckWaitTicks
	}

	s.mu.Lock()
	rec := &wire.RequestRecord{
		Dest:         dest,
		Addr:         cmd.Addr,
		RetryCap:     1,
		AckWaitTicks: ackTicks,
		Buffer:       buf,
		State:        wire.WaitingToSend,
	}
	tok := s.arena.PushBack(rec)
	rec.OnComplete = s.onRecordComplete
	if cmd.OnComplete != nil {
		s.upstreamCB[tok] = cmd.OnComplete
	}
	s.mu.Unlock()

	s.pump()
	return tok, nil
}

// pump promotes the head of the FIFO to in-flight if nothing else is
// currently waiting for a serial ack.
func (s *Service) pump() {
	s.mu.Lock()
	if s.arena.AnyInFlight() {
		s.mu.Unlock()
		return
	}
	tok, ok := s.arena.Head()
	if !ok {
		s.mu.Unlock()
		return
	}
	rec, ok := s.arena.Get(tok)
	if !ok || rec.State != wire.WaitingToSend {
		s.mu.Unlock()
		return
	}
	rec.State = wire.WaitingForSerialAck
	s.mu.Unlock()

	if !s.deliverer.DeliverRequest(tok) {
		log.Warnf("shade: deliver_request rejected for %v, leaving queued", tok)
		s.mu.Lock()
		rec.State = wire.WaitingToSend
		s.mu.Unlock()
	}
}

// onRecordComplete is the outbound manager's completion callback. It does
// not remove the record or invoke the caller's callback immediately: the
// record holds WaitingToSendNext for its configured ack-wait ticks first.
func (s *Service) onRecordComplete(tok wire.Token, status byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.arena.Get(tok)
	if !ok {
		return
	}
	rec.State = wire.WaitingToSendNext
	s.pendingStatus[tok] = status
}

// Tick advances every WaitingToSendNext record's counter by one. Must be
// called every 200ms by the caller's scheduler.
func (s *Service) Tick() {
	var done []wire.Token

	s.mu.Lock()
	s.arena.Range(func(tok wire.Token, rec *wire.RequestRecord) bool {
		if rec.State != wire.WaitingToSendNext {
			return true
		}
		rec.AckWaitTicks--
		if rec.AckWaitTicks <= 0 {
			done = append(done, tok)
		}
		return true
	})
	s.mu.Unlock()

	for _, tok := range done {
		s.finish(tok)
	}

	s.pump()
}

func (s *Service) finish(tok wire.Token) {
	s.mu.Lock()
	status := s.pendingStatus[tok]
	cb := s.upstreamCB[tok]
	delete(s.pendingStatus, tok)
	delete(s.upstreamCB, tok)
	s.arena.Remove(tok)
	s.mu.Unlock()

	if cb != nil {
		cb(tok, status)
	}
}

// QueueLen reports how many records are currently queued or in flight.
func (s *Service) QueueLen() int {
	return s.arena.Len()
}
