package shade

import (
	"fmt"

	"github.com/shurfire/rfgateway/internal/wire"
)

// Sub-record opcodes for a multi-position ShadeDataReq: one byte
// identifies the rail, accompanied by a 16-bit value.
const (
	opPrimaryPosition   byte = 'P'
	opSecondaryPosition byte = 'M'
	opVanePosition      byte = 'T'
	opSceneExecute      byte = 'S'
	opRawOpcode         byte = 'R'
)

func railOpcode(k RailKind) (byte, error) {
	switch k {
	case RailPrimary:
		return opPrimaryPosition, nil
	case RailSecondary:
		return opSecondaryPosition, nil
	case RailVane:
		return opVanePosition, nil
	default:
		return 0, fmt.Errorf("shade: unknown rail kind %d", k)
	}
}

const maxSceneIDs = 28

// Encode builds the on-wire record type and payload for cmd. The returned
// Frame's Type selects the serial record type; Payload is the
// command-specific body that record carries.
func Encode(cmd Command) (wire.Frame, error) {
	switch cmd.Kind {
	case KindPosition:
		return encodePosition(cmd)
	case KindScene:
		return encodeScene(cmd)
	case KindGroupAssign:
		return encodeGroupAssign(cmd)
	case KindControllerAssign:
		return encodeControllerAssign(cmd)
	case KindBeaconIssue:
		return wire.Frame{Type: wire.TypeBeaconReq}, nil
	case KindRawPayload:
		return wire.Frame{Type: wire.TypeShadeDataReq, Payload: append([]byte(nil), cmd.Raw...)}, nil
	case KindReset:
		return encodeReset(cmd)
	default:
		return wire.Frame{}, fmt.Errorf("shade: unknown command kind %d", cmd.Kind)
	}
}

// encodePosition packs N sub-records of the form
// [sub-len][opcode][kind-byte][value-lo][value-hi].
func encodePosition(cmd Command) (wire.Frame, error) {
	if len(cmd.Positions) == 0 {
		return wire.Frame{}, fmt.Errorf("shade: position command with no entries")
	}
	payload := make([]byte, 0, len(cmd.Positions)*5)
	for _, p := range cmd.Positions {
		op, err := railOpcode(p.Kind)
		if err != nil {
			return wire.Frame{}, err
		}
		sub := []byte{4, op, byte(p.Kind), byte(p.Value), byte(p.Value >> 8)}
		payload = append(payload, sub...)
	}
	return wire.Frame{Type: wire.TypeShadeDataReq, Payload: payload}, nil
}

func encodeScene(cmd Command) (wire.Frame, error) {
	if len(cmd.SceneIDs) == 0 || len(cmd.SceneIDs) > maxSceneIDs {
		return wire.Frame{}, fmt.Errorf("shade: scene command must carry 1-%d ids, got %d", maxSceneIDs, len(cmd.SceneIDs))
	}
	payload := make([]byte, 0, 1+len(cmd.SceneIDs))
	payload = append(payload, opSceneExecute)
	payload = append(payload, cmd.SceneIDs...)
	return wire.Frame{Type: wire.TypeShadeDataReq, Payload: payload}, nil
}

func encodeGroupAssign(cmd Command) (wire.Frame, error) {
	var assignByte byte
	if cmd.Assign {
		assignByte = 1
	}
	payload := []byte{cmd.GroupID, assignByte}
	return wire.Frame{Type: wire.TypeGroupSetReq, Payload: payload}, nil
}

// encodeControllerAssign is the scene-controller analogue of
// encodeGroupAssign: same record type, with an extra button-mask byte a
// plain shade's group assignment never carries.
func encodeControllerAssign(cmd Command) (wire.Frame, error) {
	var assignByte byte
	if cmd.Controller.Assign {
		assignByte = 1
	}
	payload := []byte{cmd.Controller.GroupID, assignByte, cmd.Controller.ButtonMask}
	return wire.Frame{Type: wire.TypeGroupSetReq, Payload: payload}, nil
}

func encodeReset(cmd Command) (wire.Frame, error) {
	return wire.Frame{Type: wire.TypeShadeDataReq, Payload: []byte{'X', cmd.Reset.byte()}}, nil
}
