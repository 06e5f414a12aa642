package gateway

import (
	"encoding/binary"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/eddystone"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ServiceUUID is the configuration service
var ServiceUUID = ble.MustParse("a3c87500-8ed3-4bdf-8a39-a01bebede295")

// ID names an attribute of the configuration service
type ID string

const (
	Capabilities        ID = "capabilities"
	ActiveSlotIndex     ID = "activeSlotIndex"
	AdvertisingInterval ID = "advertisingInterval"
	RadioTxPower        ID = "radioTxPower"
	AdvertisedTxPower   ID = "advertisedTxPower"
	LockState           ID = "lockState"
	UnlockChallenge     ID = "unlockChallenge"
	PublicKey           ID = "publicKey"
	IdentityKey         ID = "identityKey"
	SlotPayload         ID = "slotPayload"
	FactoryReset        ID = "factoryReset"
	RemainConnectable   ID = "remainConnectable"
)

// Gate decides whether an operation may reach an attribute handler
type Gate int

const (
	GateOpen         Gate = iota // always allowed
	GateDenyLocked               // denied while the active slot is Locked
	GateDenyUnlocked             // denied unless the active slot is Locked
	GateNever                    // operation not supported by the attribute
)

func (g Gate) String() string {
	switch g {
	case GateOpen:
		return "open"
	case GateDenyLocked:
		return "deny-locked"
	case GateDenyUnlocked:
		return "deny-unlocked"
	default:
		return "never"
	}
}

// allows reports whether an operation passes the gate for the given lock state.
func (g Gate) allows(locked bool) bool {
	switch g {
	case GateOpen:
		return true
	case GateDenyLocked:
		return !locked
	case GateDenyUnlocked:
		return locked
	default:
		return false
	}
}

type readFunc func(s *eddystone.Store) ([]byte, error)
type writeFunc func(g *Gateway, data []byte) error

// Attribute is one row of the configuration table
type Attribute struct {
	ID     ID
	UUID   ble.UUID
	Read   Gate
	Write  Gate
	MaxLen int
	// Exact requires writes to be exactly MaxLen bytes long
	Exact bool
	// Unchecked hands writes past the gate straight to the handler, without
	// offset or length validation.
	Unchecked bool

	read  readFunc
	write writeFunc
}

// Readable reports whether reads can ever succeed
func (a *Attribute) Readable() bool {
	return a.Read != GateNever
}

// Writable reports whether writes can ever succeed
func (a *Attribute) Writable() bool {
	return a.Write != GateNever
}

// Table is the ordered set of attributes exposed to a configuration peer.
type Table struct {
	attrs *orderedmap.OrderedMap[ID, *Attribute]
}

// NewTable builds the configuration table. Characteristic UUIDs follow the
// service UUID in table order.
func NewTable() *Table {
	t := &Table{attrs: orderedmap.New[ID, *Attribute]()}

	t.add(&Attribute{ID: Capabilities, Read: GateOpen, Write: GateNever, MaxLen: 7, read: readCapabilities})
	t.add(&Attribute{ID: ActiveSlotIndex, Read: GateOpen, Write: GateOpen, MaxLen: 1, Exact: true, read: readActiveSlot, write: writeActiveSlot})
	t.add(&Attribute{ID: AdvertisingInterval, Read: GateOpen, Write: GateNever, MaxLen: 2, read: readInterval})
	t.add(&Attribute{ID: RadioTxPower, Read: GateDenyLocked, Write: GateDenyLocked, MaxLen: 1, Exact: true, read: readRadioTx, write: writeRadioTx})
	t.add(&Attribute{ID: AdvertisedTxPower, Read: GateDenyLocked, Write: GateDenyLocked, MaxLen: 1, Exact: true, read: readAdvertisedTx, write: writeAdvertisedTx})
	t.add(&Attribute{ID: LockState, Read: GateOpen, Write: GateDenyLocked, MaxLen: 1, Exact: true, read: readLockState, write: writeLockState})
	t.add(&Attribute{ID: UnlockChallenge, Read: GateDenyUnlocked, Write: GateDenyUnlocked, MaxLen: eddystone.KeyLen, Unchecked: true, read: readChallenge, write: writeUnlock})
	t.add(&Attribute{ID: PublicKey, Read: GateOpen, Write: GateNever, MaxLen: eddystone.PublicKeyLen, read: readPublicKey})
	t.add(&Attribute{ID: IdentityKey, Read: GateOpen, Write: GateNever, MaxLen: eddystone.KeyLen, read: readIdentityKey})
	t.add(&Attribute{ID: SlotPayload, Read: GateDenyLocked, Write: GateDenyLocked, MaxLen: eddystone.MaxFrameLen, read: readSlotPayload, write: writeSlotPayload})
	t.add(&Attribute{ID: FactoryReset, Read: GateNever, Write: GateOpen, MaxLen: 1, Unchecked: true, write: writeFactoryReset})
	t.add(&Attribute{ID: RemainConnectable, Read: GateOpen, Write: GateDenyLocked, MaxLen: 1, Exact: true, read: readRemainConnectable, write: writeRemainConnectable})

	return t
}

func (t *Table) add(a *Attribute) {
	a.UUID = characteristicUUID(t.attrs.Len() + 1)
	t.attrs.Set(a.ID, a)
}

// characteristicUUID returns the n-th characteristic UUID of the service.
func characteristicUUID(n int) ble.UUID {
	return ble.MustParse(fmt.Sprintf("a3c875%02x-8ed3-4bdf-8a39-a01bebede295", n))
}

// Get looks up an attribute by ID
func (t *Table) Get(id ID) (*Attribute, bool) {
	return t.attrs.Get(id)
}

// ByUUID looks up an attribute by characteristic UUID
func (t *Table) ByUUID(u ble.UUID) (*Attribute, bool) {
	for pair := t.attrs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.UUID.Equal(u) {
			return pair.Value, true
		}
	}
	return nil, false
}

// All returns the attributes in table order
func (t *Table) All() []*Attribute {
	out := make([]*Attribute, 0, t.attrs.Len())
	for pair := t.attrs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of attributes
func (t *Table) Len() int {
	return t.attrs.Len()
}

func readCapabilities(s *eddystone.Store) ([]byte, error) {
	return s.Capabilities().Bytes(), nil
}

func readActiveSlot(s *eddystone.Store) ([]byte, error) {
	return []byte{s.ActiveIndex()}, nil
}

func readInterval(s *eddystone.Store) ([]byte, error) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, s.Interval())
	return b, nil
}

func readRadioTx(s *eddystone.Store) ([]byte, error) {
	return []byte{byte(s.RadioTxPower())}, nil
}

func readAdvertisedTx(s *eddystone.Store) ([]byte, error) {
	return []byte{byte(s.AdvertisedTxPower())}, nil
}

func readLockState(s *eddystone.Store) ([]byte, error) {
	return []byte{byte(s.LockState())}, nil
}

func readChallenge(s *eddystone.Store) ([]byte, error) {
	c, err := s.NewChallenge()
	if err != nil {
		return nil, err
	}
	return c[:], nil
}

func readPublicKey(s *eddystone.Store) ([]byte, error) {
	return s.PublicKey(), nil
}

func readIdentityKey(s *eddystone.Store) ([]byte, error) {
	return s.IdentityKey(), nil
}

func readSlotPayload(s *eddystone.Store) ([]byte, error) {
	return s.ReadFrame(), nil
}

// The beacon can always be made non-connectable.
func readRemainConnectable(*eddystone.Store) ([]byte, error) {
	return []byte{0x01}, nil
}

func writeActiveSlot(g *Gateway, data []byte) error {
	return g.state.Slots.SetActiveIndex(data[0])
}

func writeRadioTx(g *Gateway, data []byte) error {
	g.state.Slots.SetRadioTxPower(int8(data[0]))
	return nil
}

func writeAdvertisedTx(g *Gateway, data []byte) error {
	g.state.Slots.SetAdvertisedTxPower(int8(data[0]))
	return nil
}

func writeLockState(g *Gateway, data []byte) error {
	return g.state.Slots.SetLockState(data[0])
}

func writeUnlock(g *Gateway, data []byte) error {
	return g.state.Slots.Unlock(data)
}

func writeFactoryReset(*Gateway, []byte) error {
	return device.NotSupported("factory reset")
}

func writeRemainConnectable(g *Gateway, data []byte) error {
	g.state.Slots.SetConnectable(data[0])
	return nil
}

func writeSlotPayload(g *Gateway, data []byte) error {
	return g.commitFrame(data)
}
