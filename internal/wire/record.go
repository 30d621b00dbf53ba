package wire

import (
	"sync"
	"time"
)

// Destination is the kind of endpoint a RequestRecord targets: the RF
// network (a shade or group) or the co-processor's own configuration
// interface.
type Destination uint8

const (
	DestRF Destination = iota
	DestConfig
)

func (d Destination) String() string {
	if d == DestConfig {
		return "config"
	}
	return "rf"
}

// RecordState is the lifecycle state of a RequestRecord in the outbound
// queue. Records only ever advance forward.
type RecordState uint8

const (
	WaitingToSend RecordState = iota
	WaitingForSerialAck
	WaitingToSendNext
)

func (s RecordState) String() string {
	switch s {
	case WaitingToSend:
		return "waiting-to-send"
	case WaitingForSerialAck:
		return "waiting-for-serial-ack"
	case WaitingToSendNext:
		return "waiting-to-send-next"
	default:
		return "unknown"
	}
}

// Token identifies a RequestRecord in a Arena. Zero is never issued, so it
// doubles as an absent/none sentinel.
type Token uint64

// CompletionFunc is invoked exactly once when a record finishes, successfully
// or with a synthetic timeout. It holds only the token's outcome, never a
// pointer back into the arena — callbacks cannot extend a record's lifetime.
type CompletionFunc func(tok Token, status byte)

// RequestRecord is an entry in the outbound queue. It is never referenced
// directly outside the Arena that owns it; callers interact with it
// exclusively through its Token.
type RequestRecord struct {
	Dest          Destination
	Addr          Address
	Retries       int
	RetryCap      int
	AckWaitTicks  int // ticks remaining after WaitingToSendNext is entered
	SerialTimeout time.Duration
	ExpectedReply byte
	OnComplete    CompletionFunc
	Buffer        []byte
	State         RecordState

	next, prev Token
}

// Arena owns every active RequestRecord, exclusively. It is the single
// outbound FIFO: records form a doubly-linked sequence internally, but
// callers only ever see Tokens — use-after-free is structurally impossible
// because a stale Token simply misses in Get.
type Arena struct {
	mu      sync.Mutex
	records map[Token]*RequestRecord
	nextTok Token
	head    Token
	tail    Token
}

// NewArena returns an empty, ready-to-use Arena.
func NewArena() *Arena {
	return &Arena{records: make(map[Token]*RequestRecord)}
}

// PushBack appends a new record to the tail of the FIFO and returns its
// Token. The record starts life owned exclusively by the Arena.
func (a *Arena) PushBack(rec *RequestRecord) Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextTok++
	if a.nextTok == 0 {
		a.nextTok = 1 // skip zero on wrap
	}
	tok := a.nextTok

	rec.next = 0
	rec.prev = a.tail
	if prev, ok := a.records[a.tail]; ok {
		prev.next = tok
	} else {
		a.head = tok
	}
	a.tail = tok
	a.records[tok] = rec
	return tok
}

// Get returns the record for tok, or false if it has already been freed.
func (a *Arena) Get(tok Token) (*RequestRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[tok]
	return rec, ok
}

// Head returns the token of the FIFO head, or false if empty.
func (a *Arena) Head() (Token, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.head == 0 {
		return 0, false
	}
	return a.head, true
}

// Next returns the token following tok in FIFO order, or false at the tail.
func (a *Arena) Next(tok Token) (Token, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[tok]
	if !ok || rec.next == 0 {
		return 0, false
	}
	return rec.next, true
}

// Remove frees a record exactly once. It is the only way a RequestRecord's
// lifetime ends; calling it twice on the same Token is a no-op the second
// time.
func (a *Arena) Remove(tok Token) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[tok]
	if !ok {
		return
	}

	if prev, ok := a.records[rec.prev]; ok {
		prev.next = rec.next
	} else {
		a.head = rec.next
	}
	if next, ok := a.records[rec.next]; ok {
		next.prev = rec.prev
	} else {
		a.tail = rec.prev
	}

	delete(a.records, tok)
}

// Len reports the number of records currently held.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Range walks the FIFO head-to-tail, calling fn for each token/record.
// Stops early if fn returns false. Safe against concurrent Remove of the
// current element (it captures next before calling fn).
func (a *Arena) Range(fn func(Token, *RequestRecord) bool) {
	a.mu.Lock()
	tok := a.head
	a.mu.Unlock()

	for tok != 0 {
		a.mu.Lock()
		rec, ok := a.records[tok]
		if !ok {
			a.mu.Unlock()
			return
		}
		next := rec.next
		a.mu.Unlock()

		if !fn(tok, rec) {
			return
		}
		tok = next
	}
}

// AnyInFlight reports whether any record in the queue is currently
// WaitingForSerialAck. Callers must keep this from ever exceeding one.
func (a *Arena) AnyInFlight() bool {
	found := false
	a.Range(func(_ Token, rec *RequestRecord) bool {
		if rec.State == WaitingForSerialAck {
			found = true
			return false
		}
		return true
	})
	return found
}
