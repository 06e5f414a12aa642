package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/beacon/internal/advertising"
)

// txPowerUnknown is how go-ble reports an absent TX power level
const txPowerUnknown = 127

// payloadAdvertisement presents an advertising.Payload as a ble.Advertisement so
// it can be handed to ble.Device.Advertise.
type payloadAdvertisement struct {
	p advertising.Payload
}

// NewAdvertisement wraps p for ble.Device.Advertise
func NewAdvertisement(p advertising.Payload) ble.Advertisement {
	return &payloadAdvertisement{p: p}
}

func (a *payloadAdvertisement) LocalName() string {
	name, _ := a.p.Name()
	return name
}

func (a *payloadAdvertisement) ManufacturerData() []byte { return a.p.ManufacturerRecord() }
func (a *payloadAdvertisement) TxPowerLevel() int        { return txPowerUnknown }
func (a *payloadAdvertisement) Connectable() bool        { return a.p.Connectable }
func (a *payloadAdvertisement) RSSI() int                { return 0 }
func (a *payloadAdvertisement) Addr() ble.Addr           { return ble.NewAddr("") }
func (a *payloadAdvertisement) SolicitedService() []ble.UUID {
	return nil
}

func (a *payloadAdvertisement) ServiceData() []ble.ServiceData {
	if a.p.ServiceData == nil {
		return nil
	}
	return []ble.ServiceData{{UUID: ble.UUID16(a.p.ServiceUUID16), Data: a.p.ServiceData}}
}

func (a *payloadAdvertisement) Services() []ble.UUID {
	if a.p.Mode != advertising.ModeBeaconNonConnectable {
		return nil
	}
	return []ble.UUID{ble.UUID16(a.p.ServiceUUID16)}
}

// The configuration service UUID does not fit next to the name and status
// record, so it is only carried in the scan response.
func (a *payloadAdvertisement) OverflowService() []ble.UUID {
	if len(a.p.ServiceUUID) == 0 {
		return nil
	}
	return []ble.UUID{a.p.ServiceUUID}
}
