package shade

import (
	"sync"
	"testing"

	"github.com/shurfire/rfgateway/internal/wire"
)

// fakeDeliverer stands in for outbound.Manager: it accepts one delivery at
// a time and completes it, with a caller-supplied status, only when the
// test calls complete.
type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []wire.Token
	arena     *wire.Arena
	busy      bool
}

func (d *fakeDeliverer) DeliverRequest(tok wire.Token) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return false
	}
	d.busy = true
	d.delivered = append(d.delivered, tok)
	return true
}

func (d *fakeDeliverer) complete(svc *Service, tok wire.Token, status byte) {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
	svc.onRecordComplete(tok, status)
}

func TestEnqueuePumpsHeadImmediately(t *testing.T) {
	arena := wire.NewArena()
	deliverer := &fakeDeliverer{arena: arena}
	svc := NewService(arena, deliverer)

	tok, err := svc.Enqueue(Command{Kind: KindBeaconIssue}, wire.DestRF)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliverer.delivered) != 1 || deliverer.delivered[0] != tok {
		t.Fatalf("expected head to be delivered immediately, got %v", deliverer.delivered)
	}
}

func TestSecondEnqueueWaitsForFirstToClear(t *testing.T) {
	arena := wire.NewArena()
	deliverer := &fakeDeliverer{arena: arena}
	svc := NewService(arena, deliverer)

	tok1, _ := svc.Enqueue(Command{Kind: KindBeaconIssue}, wire.DestRF)
	_, _ = svc.Enqueue(Command{Kind: KindBeaconIssue}, wire.DestRF)

	if len(deliverer.delivered) != 1 {
		t.Fatalf("expected only the head delivered, got %d", len(deliverer.delivered))
	}

	deliverer.complete(svc, tok1, 0)
	// Still waiting on ack-wait ticks before the next record is promoted.
	if len(deliverer.delivered) != 1 {
		t.Fatalf("second record must not be delivered before tick-out, got %d", len(deliverer.delivered))
	}

	for i := 0; i < normalAckWaitTicks; i++ {
		svc.Tick()
	}
	if len(deliverer.delivered) != 2 {
		t.Fatalf("expected second record delivered after tick-out, got %d", len(deliverer.delivered))
	}
}

func TestFinishInvokesUpstreamCallbackWithStatus(t *testing.T) {
	arena := wire.NewArena()
	deliverer := &fakeDeliverer{arena: arena}
	svc := NewService(arena, deliverer)

	var gotStatus byte
	called := false
	tok, _ := svc.Enqueue(Command{
		Kind: KindBeaconIssue,
		OnComplete: func(_ wire.Token, status byte) {
			called = true
			gotStatus = status
		},
	}, wire.DestRF)

	deliverer.complete(svc, tok, 7)
	for i := 0; i < normalAckWaitTicks; i++ {
		svc.Tick()
	}

	if !called {
		t.Fatal("expected upstream callback to be invoked")
	}
	if gotStatus != 7 {
		t.Fatalf("status = %d, want 7", gotStatus)
	}
	if svc.QueueLen() != 0 {
		t.Fatalf("expected record removed after finish, queue len = %d", svc.QueueLen())
	}
}

func TestBatteryQueryHoldsOpenLonger(t *testing.T) {
	arena := wire.NewArena()
	deliverer := &fakeDeliverer{arena: arena}
	svc := NewService(arena, deliverer)

	tok, _ := svc.Enqueue(Command{
		Kind:         KindRawPayload,
		Raw:          []byte{'!', indOpBattery},
		BatteryQuery: true,
	}, wire.DestRF)

	deliverer.complete(svc, tok, 0)
	for i := 0; i < normalAckWaitTicks; i++ {
		svc.Tick()
	}
	if svc.QueueLen() != 1 {
		t.Fatal("battery query must outlast the normal ack-wait tick count")
	}
	for i := 0; i < batteryQueryAckWaitTicks-normalAckWaitTicks; i++ {
		svc.Tick()
	}
	if svc.QueueLen() != 0 {
		t.Fatal("battery query should finish after its full tick count")
	}
}
