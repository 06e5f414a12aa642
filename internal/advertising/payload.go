package advertising

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-ble/ble"
)

// Mode is the kind of advertising session on air
type Mode int

const (
	ModeIdle Mode = iota
	ModeConfigConnectable
	ModeBeaconNonConnectable
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeConfigConnectable:
		return "config"
	case ModeBeaconNonConnectable:
		return "beacon"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// AD structure types used by the beacon
const (
	ADFlags             byte = 0x01
	ADServiceUUID16     byte = 0x03
	ADServiceUUID128    byte = 0x07
	ADShortName         byte = 0x08
	ADCompleteName      byte = 0x09
	ADServiceData16     byte = 0x16
	ADManufacturerData  byte = 0xFF
	MaxAdvertisementLen      = 31
)

// Flags values
const (
	FlagsBeacon byte = 0x04 // BR/EDR not supported
	FlagsConfig byte = 0x06 // LE general discoverable, BR/EDR not supported
)

// MaxNameLen is the longest name that still leaves room for flags and the status record.
const MaxNameLen = MaxAdvertisementLen - 3 - 2 - 8

// ConfigInterval is the advertising interval used in configuration mode.
const ConfigInterval = 500 * time.Millisecond

// Record is a single AD structure
type Record struct {
	Type byte
	Data []byte
}

// Payload is the complete description of one advertising session.
type Payload struct {
	Mode        Mode
	Connectable bool
	Flags       byte

	// Configuration mode
	LocalName        string
	CompanyID        uint16
	ManufacturerData []byte // record body after the company ID
	ServiceUUID      ble.UUID

	// Beacon mode
	ServiceUUID16 uint16
	ServiceData   []byte // body after the UUID16

	Interval time.Duration
}

// Name returns the advertised name and whether it is complete.
func (p Payload) Name() (string, bool) {
	if len(p.LocalName) > MaxNameLen {
		return p.LocalName[:MaxNameLen], false
	}
	return p.LocalName, true
}

// ManufacturerRecord returns the manufacturer-specific data including the company ID.
func (p Payload) ManufacturerRecord() []byte {
	if p.ManufacturerData == nil {
		return nil
	}
	b := make([]byte, 2, 2+len(p.ManufacturerData))
	binary.LittleEndian.PutUint16(b, p.CompanyID)
	return append(b, p.ManufacturerData...)
}

// Advertising returns the AD structures of the advertising packet.
func (p Payload) Advertising() []Record {
	var recs []Record
	if p.Flags != 0 {
		recs = append(recs, Record{Type: ADFlags, Data: []byte{p.Flags}})
	}

	switch p.Mode {
	case ModeConfigConnectable:
		if p.LocalName != "" {
			name, complete := p.Name()
			t := ADCompleteName
			if !complete {
				t = ADShortName
			}
			recs = append(recs, Record{Type: t, Data: []byte(name)})
		}
		if mfg := p.ManufacturerRecord(); mfg != nil {
			recs = append(recs, Record{Type: ADManufacturerData, Data: mfg})
		}
	case ModeBeaconNonConnectable:
		uuid := make([]byte, 2)
		binary.LittleEndian.PutUint16(uuid, p.ServiceUUID16)
		recs = append(recs, Record{Type: ADServiceUUID16, Data: uuid})
		if p.ServiceData != nil {
			data := append(append([]byte(nil), uuid...), p.ServiceData...)
			recs = append(recs, Record{Type: ADServiceData16, Data: data})
		}
	}
	return recs
}

// ScanResponse returns the AD structures of the scan response.
func (p Payload) ScanResponse() []Record {
	if p.Mode != ModeConfigConnectable || len(p.ServiceUUID) == 0 {
		return nil
	}
	// ble.UUID is stored little-endian, which is the air order
	return []Record{{Type: ADServiceUUID128, Data: append([]byte(nil), p.ServiceUUID...)}}
}

// Encode serializes AD structures as length-type-value triplets.
func Encode(recs []Record) []byte {
	var out []byte
	for _, r := range recs {
		out = append(out, byte(len(r.Data)+1), r.Type)
		out = append(out, r.Data...)
	}
	return out
}

// Bytes returns the encoded advertising packet
func (p Payload) Bytes() []byte {
	return Encode(p.Advertising())
}

// Find returns the data of the first record of type t.
func Find(recs []Record, t byte) ([]byte, bool) {
	for _, r := range recs {
		if r.Type == t {
			return r.Data, true
		}
	}
	return nil, false
}
