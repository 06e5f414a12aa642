package eddystone

import (
	"bytes"
	"crypto/rand"
	"io"

	"github.com/srg/beacon/internal/device"
)

// challengeAttempts bounds regeneration when the RNG repeats the previous challenge.
const challengeAttempts = 4

// Store holds the configuration slots and the active slot index.
//
// Store is not safe for concurrent use; it is owned by the scheduler flow and every
// mutation reaches it through that flow. Each method validates before it mutates,
// so a rejected call leaves the slot untouched.
type Store struct {
	slots       []Slot
	active      uint8
	caps        Capabilities
	publicKey   [PublicKeyLen]byte
	identityKey [KeyLen]byte
	random      io.Reader
}

// NewStore creates a store with n slots in their boot defaults. A nil random
// source selects crypto/rand.
func NewStore(n int, random io.Reader) *Store {
	if n < 1 {
		n = 1
	}
	if n > 255 {
		n = 255
	}
	if random == nil {
		random = rand.Reader
	}

	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = newSlot()
	}

	return &Store{
		slots:  slots,
		random: random,
		caps: Capabilities{
			Version:   Version,
			Slots:     uint8(n),
			SlotTypes: slotTypeURL,
		},
	}
}

// Count returns the number of slots
func (s *Store) Count() int {
	return len(s.slots)
}

// Capabilities returns the fixed capabilities record
func (s *Store) Capabilities() Capabilities {
	return s.caps
}

func (s *Store) ActiveIndex() uint8 {
	return s.active
}

// SetActiveIndex selects the slot later reads and writes address
func (s *Store) SetActiveIndex(idx uint8) error {
	if int(idx) >= len(s.slots) {
		return device.InvalidValue("slot index %d out of range [0,%d)", idx, len(s.slots))
	}
	s.active = idx
	return nil
}

func (s *Store) slot() *Slot {
	return &s.slots[s.active]
}

// Active returns a copy of the active slot
func (s *Store) Active() Slot {
	return s.slot().Clone()
}

// Slot returns a copy of slot idx
func (s *Store) Slot(idx int) (Slot, bool) {
	if idx < 0 || idx >= len(s.slots) {
		return Slot{}, false
	}
	return s.slots[idx].Clone(), true
}

// Snapshot captures the active slot for a later Restore
func (s *Store) Snapshot() Slot {
	return s.Active()
}

// Restore puts a snapshot back into the active slot
func (s *Store) Restore(snap Slot) {
	*s.slot() = snap.Clone()
}

func (s *Store) LockState() LockState {
	return s.slot().Lock
}

// IsLocked reports whether the active slot is locked
func (s *Store) IsLocked() bool {
	return s.slot().Lock == Locked
}

// SetLockState moves the lock state machine. Only an unlocked slot may change its
// lock state, and only to one of the defined states.
func (s *Store) SetLockState(v uint8) error {
	sl := s.slot()
	if sl.Lock == Locked {
		return device.Denied("lock state is locked")
	}
	if !LockState(v).Valid() {
		return device.InvalidValue("lock state 0x%02X", v)
	}
	sl.Lock = LockState(v)
	return nil
}

// NewChallenge generates and stores a fresh unlock challenge. The returned value
// never equals the previous one.
func (s *Store) NewChallenge() ([KeyLen]byte, error) {
	sl := s.slot()
	if sl.Lock != Locked {
		return [KeyLen]byte{}, device.Denied("challenge is only issued while locked")
	}

	var c [KeyLen]byte
	for i := 0; i < challengeAttempts; i++ {
		if _, err := io.ReadFull(s.random, c[:]); err != nil {
			return [KeyLen]byte{}, device.InternalError("random challenge", err)
		}
		if !bytes.Equal(c[:], sl.Challenge[:]) {
			sl.Challenge = c
			return c, nil
		}
	}
	return [KeyLen]byte{}, device.InternalError("random challenge repeated", nil)
}

// Unlock would verify a challenge response. No credential scheme is implemented,
// so a locked slot rejects every response.
func (s *Store) Unlock(_ []byte) error {
	if s.slot().Lock != Locked {
		return device.Denied("slot is not locked")
	}
	return device.NotSupported("unlock")
}

func (s *Store) RadioTxPower() int8 {
	return s.slot().RadioTxPower
}

func (s *Store) SetRadioTxPower(v int8) {
	s.slot().RadioTxPower = v
}

func (s *Store) AdvertisedTxPower() int8 {
	return s.slot().AdvertisedTxPower
}

func (s *Store) SetAdvertisedTxPower(v int8) {
	s.slot().AdvertisedTxPower = v
}

func (s *Store) Interval() uint16 {
	return s.slot().Interval
}

func (s *Store) Connectable() bool {
	return s.slot().Connectable
}

// SetConnectable applies a remain-connectable write: any nonzero value sets the
// flag, zero clears it.
func (s *Store) SetConnectable(v byte) {
	s.slot().Connectable = v != 0
}

func (s *Store) Type() FrameType {
	return s.slot().Type
}

// ReadFrame returns the slot data as a peer reads it: frame type, calibrated
// power, frame body. An empty slot reads as zero bytes.
func (s *Store) ReadFrame() []byte {
	return s.slot().ServiceData()
}

// WriteFrame stores a frame written by a peer. An empty frame clears the slot.
// Only URL frames are accepted; their scheme and suffix bytes are stored as sent.
func (s *Store) WriteFrame(frame []byte) (FrameType, error) {
	sl := s.slot()

	if len(frame) == 0 {
		sl.Type = FrameNone
		sl.Frame = nil
		return FrameNone, nil
	}
	if len(frame) > MaxFrameLen {
		return sl.Type, device.InvalidLength(len(frame), MaxFrameLen)
	}

	switch t := FrameType(frame[0]); t {
	case FrameURL:
		sl.Frame = append([]byte(nil), frame...)
		sl.Type = FrameURL
		return FrameURL, nil
	default:
		return sl.Type, device.Denied("frame type %s not writable", t)
	}
}

// ClearFrame empties the active slot
func (s *Store) ClearFrame() {
	sl := s.slot()
	sl.Type = FrameNone
	sl.Frame = nil
}

// PublicKey returns the (unprovisioned) ECDH public key storage
func (s *Store) PublicKey() []byte {
	return append([]byte(nil), s.publicKey[:]...)
}

// IdentityKey returns the (unprovisioned) EID identity key storage
func (s *Store) IdentityKey() []byte {
	return append([]byte(nil), s.identityKey[:]...)
}
