// Package wire defines the data model shared by every subsystem that speaks
// to the RF co-processor: addresses, framed records, the outbound queue's
// request records, and the command/indication payloads the shade layer
// builds and parses.
package wire

import "fmt"

// AddressKind tags which variant an Address holds.
type AddressKind uint8

const (
	AddressNone AddressKind = iota
	AddressDevice
	AddressGroupList
	AddressUnique
)

// Address is a tagged variant identifying an RF endpoint: no destination, a
// single device ID, a list of up to 8 group indices, or a 64-bit unique ID.
type Address struct {
	Kind     AddressKind
	DeviceID uint16
	Groups   [8]byte // 1-8 group indices; zero-terminated unless full. First byte 0 means "all".
	NumGroups int
	UniqueID uint64
}

// NoneAddress returns the empty Address variant.
func NoneAddress() Address { return Address{Kind: AddressNone} }

// DeviceAddress returns an Address targeting a single device ID.
func DeviceAddress(id uint16) Address { return Address{Kind: AddressDevice, DeviceID: id} }

// UniqueAddress returns an Address targeting a 64-bit unique ID.
func UniqueAddress(id uint64) Address { return Address{Kind: AddressUnique, UniqueID: id} }

// AllGroupsAddress returns the GroupList variant meaning "every group".
func AllGroupsAddress() Address {
	return Address{Kind: AddressGroupList, NumGroups: 1, Groups: [8]byte{0}}
}

// GroupListAddress builds a GroupList Address from 1-8 group indices.
func GroupListAddress(groups ...byte) (Address, error) {
	if len(groups) == 0 || len(groups) > 8 {
		return Address{}, fmt.Errorf("wire: group list must have 1-8 entries, got %d", len(groups))
	}
	a := Address{Kind: AddressGroupList, NumGroups: len(groups)}
	copy(a.Groups[:], groups)
	return a, nil
}

func (a Address) String() string {
	switch a.Kind {
	case AddressNone:
		return "none"
	case AddressDevice:
		return fmt.Sprintf("device:%04x", a.DeviceID)
	case AddressGroupList:
		return fmt.Sprintf("groups:%v", a.Groups[:a.NumGroups])
	case AddressUnique:
		return fmt.Sprintf("unique:%016x", a.UniqueID)
	default:
		return "invalid"
	}
}
