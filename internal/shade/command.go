// Package shade owns the FIFO of shade-directed requests: it turns
// ShadeCommands into framed wire payloads, paces them through the outbound
// manager, and parses inbound indications back into shade state.
package shade

import "github.com/shurfire/rfgateway/internal/wire"

// Kind identifies what a ShadeCommand asks a shade (or group of shades) to do.
type Kind uint8

const (
	KindPosition Kind = iota
	KindScene
	KindGroupAssign
	KindBeaconIssue
	KindRawPayload
	KindControllerAssign
	KindReset
)

// RailKind distinguishes the three independently-positionable rails a shade
// may expose.
type RailKind uint8

const (
	RailPrimary RailKind = iota
	RailSecondary
	RailVane
)

// PositionEntry is one sub-record of a multi-position command: move the
// named rail to value (0-65535, device-specific units).
type PositionEntry struct {
	Kind  RailKind
	Value uint16
}

// ResetMask carries the bits a factory-reset command may set independently,
// recovered from the original firmware's SC_REQUEST_RESET handling: a reset
// can target position memory, group membership, and scene memory
// separately rather than an all-or-nothing wipe.
type ResetMask struct {
	PositionMemory bool
	GroupMembership bool
	SceneMemory    bool
}

func (m ResetMask) byte() byte {
	var b byte
	if m.PositionMemory {
		b |= 1 << 0
	}
	if m.GroupMembership {
		b |= 1 << 1
	}
	if m.SceneMemory {
		b |= 1 << 2
	}
	return b
}

// ControllerRecord is the scene-controller analogue of a group-assign
// command: scene controllers carry a button mask alongside the group id and
// assign flag, a layout distinct from a plain shade's group assignment.
type ControllerRecord struct {
	GroupID    byte
	Assign     bool
	ButtonMask byte
}

// Command is a logical request built by a caller before framing. Exactly
// one of its kind-specific fields is meaningful, selected by Kind.
type Command struct {
	Kind Kind
	Addr wire.Address

	Positions []PositionEntry // KindPosition
	SceneIDs  []byte          // KindScene, 1-28 entries

	GroupID byte // KindGroupAssign
	Assign  bool // KindGroupAssign

	Controller ControllerRecord // KindControllerAssign

	Raw          []byte // KindRawPayload
	BatteryQuery bool   // KindRawPayload: a single-shade battery-level query, held open longer

	Reset ResetMask // KindReset

	OnComplete wire.CompletionFunc
}
