package wire

import "testing"

func TestArenaFIFOOrder(t *testing.T) {
	a := NewArena()
	t1 := a.PushBack(&RequestRecord{Dest: DestRF})
	t2 := a.PushBack(&RequestRecord{Dest: DestRF})
	t3 := a.PushBack(&RequestRecord{Dest: DestConfig})

	head, ok := a.Head()
	if !ok || head != t1 {
		t.Fatalf("expected head %v, got %v (ok=%v)", t1, head, ok)
	}

	var order []Token
	a.Range(func(tok Token, _ *RequestRecord) bool {
		order = append(order, tok)
		return true
	})
	want := []Token{t1, t2, t3}
	if len(order) != len(want) {
		t.Fatalf("order length = %d, want %d", len(order), len(want))
	}
	for i, tok := range want {
		if order[i] != tok {
			t.Fatalf("order[%d] = %v, want %v", i, order[i], tok)
		}
	}
}

func TestArenaRemoveIsIdempotent(t *testing.T) {
	a := NewArena()
	tok := a.PushBack(&RequestRecord{})
	a.Remove(tok)
	if _, ok := a.Get(tok); ok {
		t.Fatal("record should be gone after Remove")
	}
	a.Remove(tok) // must not panic
	if a.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", a.Len())
	}
}

func TestArenaRemoveMiddlePreservesOrder(t *testing.T) {
	a := NewArena()
	t1 := a.PushBack(&RequestRecord{})
	t2 := a.PushBack(&RequestRecord{})
	t3 := a.PushBack(&RequestRecord{})

	a.Remove(t2)

	var order []Token
	a.Range(func(tok Token, _ *RequestRecord) bool {
		order = append(order, tok)
		return true
	})
	if len(order) != 2 || order[0] != t1 || order[1] != t3 {
		t.Fatalf("order after removing middle = %v, want [%v %v]", order, t1, t3)
	}
}

func TestAnyInFlightRespectsCap(t *testing.T) {
	a := NewArena()
	tok := a.PushBack(&RequestRecord{State: WaitingToSend})
	if a.AnyInFlight() {
		t.Fatal("nothing should be in flight yet")
	}
	rec, _ := a.Get(tok)
	rec.State = WaitingForSerialAck
	if !a.AnyInFlight() {
		t.Fatal("expected in-flight record to be detected")
	}
}

func TestGroupListAddressBounds(t *testing.T) {
	if _, err := GroupListAddress(); err == nil {
		t.Fatal("expected error for empty group list")
	}
	if _, err := GroupListAddress(1, 2, 3, 4, 5, 6, 7, 8, 9); err == nil {
		t.Fatal("expected error for >8 groups")
	}
	addr, err := GroupListAddress(1, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.NumGroups != 3 || addr.Groups[0] != 1 {
		t.Fatalf("unexpected address: %+v", addr)
	}
}
