package status

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/beacon/internal/device"
)

// DefaultCompanyID is the Bluetooth SIG company identifier placed in the status record.
const DefaultCompanyID uint16 = 0x0059

// RecordLen is the encoded length of a status record
const RecordLen = 6

// Record is the manufacturer-specific status payload of the configuration-mode advertisement.
//
// Format (6 bytes, little-endian):
//   - Bytes 0-1: Company ID
//   - Bytes 2-3: Battery level in mV
//   - Bytes 4-5: Button state (only the low byte is meaningful: 0 released, 1 pressed)
type Record struct {
	CompanyID uint16
	BatteryMV uint16
	Button    device.ButtonState
}

// Bytes encodes the record including the company ID
func (r Record) Bytes() []byte {
	b := make([]byte, RecordLen)
	binary.LittleEndian.PutUint16(b[0:2], r.CompanyID)
	binary.LittleEndian.PutUint16(b[2:4], r.BatteryMV)
	binary.LittleEndian.PutUint16(b[4:6], uint16(r.Button))
	return b
}

// Body returns the record without the company ID
func (r Record) Body() []byte {
	return r.Bytes()[2:]
}

// ParseRecord decodes a status record as received from the air
func ParseRecord(data []byte) (Record, error) {
	if len(data) < RecordLen {
		return Record{}, fmt.Errorf("status record too short: %d bytes, expected %d", len(data), RecordLen)
	}

	button := device.ButtonReleased
	if data[4] != 0 {
		button = device.ButtonPressed
	}

	return Record{
		CompanyID: binary.LittleEndian.Uint16(data[0:2]),
		BatteryMV: binary.LittleEndian.Uint16(data[2:4]),
		Button:    button,
	}, nil
}
