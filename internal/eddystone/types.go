package eddystone

import "fmt"

const (
	// Version reported in the capabilities record
	Version = 0x00

	// MaxFrameLen is the longest frame a peer may write into a slot
	// (frame type + scheme + 17 bytes of encoded URL).
	MaxFrameLen = 19

	// ReservedLen counts the service-data bytes that precede the writable
	// frame body: UUID16 (2) + frame type (1) + calibrated power (1).
	ReservedLen = 4

	KeyLen       = 16
	PublicKeyLen = 32

	// DefaultInterval is the beacon advertising interval in milliseconds.
	DefaultInterval uint16 = 100

	// ServiceUUID16 is the Eddystone 16-bit service UUID used in beacon frames.
	ServiceUUID16 uint16 = 0xFEAA
)

// DefaultLockKey is the factory lock key. It is a known value, so a locked slot
// is only as safe as the peer's ignorance of it.
var DefaultLockKey = [KeyLen]byte{'S', 'A', 'V', 'V', 'Y', '2', '0', '2', '1', '1', '0', '1', '6', '0', '0', '0'}

// FrameType is the Eddystone frame type byte
type FrameType uint8

const (
	FrameUID  FrameType = 0x00
	FrameURL  FrameType = 0x10
	FrameTLM  FrameType = 0x20
	FrameEID  FrameType = 0x30
	FrameNone FrameType = 0xFF
)

func (t FrameType) String() string {
	switch t {
	case FrameUID:
		return "uid"
	case FrameURL:
		return "url"
	case FrameTLM:
		return "tlm"
	case FrameEID:
		return "eid"
	case FrameNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

// LockState guards write access to slot configuration
type LockState uint8

const (
	Locked           LockState = 0x00
	Unlocked         LockState = 0x01
	UnlockedNoRelock LockState = 0x02
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case UnlockedNoRelock:
		return "unlocked_no_relock"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(s))
	}
}

// Valid reports whether s is one of the three defined states.
func (s LockState) Valid() bool {
	return s <= UnlockedNoRelock
}

// slot type bits advertised in the capabilities record (big-endian on the wire)
const (
	slotTypeUID uint16 = 1 << 0
	slotTypeURL uint16 = 1 << 1
	slotTypeTLM uint16 = 1 << 2
	slotTypeEID uint16 = 1 << 3
)

// Capabilities describes what the beacon supports.
//
// Wire format (7 bytes):
//   - Byte 0:    Version
//   - Byte 1:    Slot count
//   - Byte 2:    EID slot count
//   - Byte 3:    Capability bits
//   - Bytes 4-5: Supported frame types (big-endian bitfield)
//   - Byte 6:    Supported radio Tx power (single value)
type Capabilities struct {
	Version    uint8
	Slots      uint8
	EIDSlots   uint8
	AdvTypes   uint8
	SlotTypes  uint16
	RadioPower int8
}

// Bytes encodes the capabilities record
func (c Capabilities) Bytes() []byte {
	return []byte{
		c.Version,
		c.Slots,
		c.EIDSlots,
		c.AdvTypes,
		byte(c.SlotTypes >> 8),
		byte(c.SlotTypes),
		byte(c.RadioPower),
	}
}

// Slot is one configurable beacon identity
type Slot struct {
	Type              FrameType
	Lock              LockState
	Connectable       bool
	RadioTxPower      int8
	AdvertisedTxPower int8
	Interval          uint16
	LockKey           [KeyLen]byte
	Challenge         [KeyLen]byte
	Frame             []byte
}

func newSlot() Slot {
	return Slot{
		Type:     FrameNone,
		Lock:     Unlocked,
		Interval: DefaultInterval,
		LockKey:  DefaultLockKey,
	}
}

// Clone returns a deep copy
func (s Slot) Clone() Slot {
	c := s
	if s.Frame != nil {
		c.Frame = append([]byte(nil), s.Frame...)
	}
	return c
}

// ServiceData returns the beacon service-data body that follows the UUID16:
// frame type, calibrated power, then the written frame body.
// It returns nil for an empty slot.
func (s Slot) ServiceData() []byte {
	if s.Type == FrameNone || len(s.Frame) == 0 {
		return nil
	}
	out := make([]byte, 0, 2+len(s.Frame)-1)
	out = append(out, byte(s.Type), byte(s.AdvertisedTxPower))
	return append(out, s.Frame[1:]...)
}
