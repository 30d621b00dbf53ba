package wire

// Record type codes for the serial wire protocol. Request and indication
// type codes are disjoint.
const (
	TypeConfigGetReq  byte = 0x04
	TypeConfigGetConf byte = 0x05
	TypeConfigSetReq  byte = 0x06
	TypeConfigSetConf byte = 0x07

	TypeResetReq  byte = 0x1D
	TypeResetConf byte = 0x1E

	TypeStartReq  byte = 0x1F
	TypeStartConf byte = 0x20

	TypeShadeDataReq  byte = 0x0C
	TypeShadeDataConf byte = 0x0D
	TypeShadeDataInd  byte = 0x0E

	TypeBeaconReq  byte = 0x0F
	TypeBeaconConf byte = 0x10
	TypeBeaconInd  byte = 0x11

	TypeGroupSetReq  byte = 0x12
	TypeGroupSetConf byte = 0x14
	TypeGroupSetInd  byte = 0x15

	TypeSystemInd byte = 0xFF
)

// RecordSpec describes the length bounds and dispatch behavior for a record
// type code. The serialport Decoder does not consult it: it hands off every
// checksum-valid frame regardless of type or length.
type RecordSpec struct {
	Type     byte
	MinLen   int
	MaxLen   int
	Dispatch func(payload []byte)
}

// Frame is a length-prefixed, type-tagged record exchanged over the serial
// link. Type is the first payload byte; the rest is type-specific data.
type Frame struct {
	Type    byte
	Payload []byte
}

// Bytes returns the logical (pre-transport) message: [type][payload...].
func (f Frame) Bytes() []byte {
	out := make([]byte, 1+len(f.Payload))
	out[0] = f.Type
	copy(out[1:], f.Payload)
	return out
}
