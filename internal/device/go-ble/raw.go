package goble

import (
	"context"
	"time"
)

// Advertising PDU types of LE Set Advertising Parameters
const (
	advInd        uint8 = 0x00
	advScanInd    uint8 = 0x02
	advNonconnInd uint8 = 0x03
)

// advertising interval bounds in 0.625 ms units
const (
	minIntervalUnits        uint16 = 0x0020
	minNonconnIntervalUnits uint16 = 0x00A0
	maxIntervalUnits        uint16 = 0x4000
	defaultIntervalUnits    uint16 = 0x0800
)

// RawParams are the link-layer settings of one advertising session.
type RawParams struct {
	Connectable bool
	Interval    time.Duration
}

// RawAdvertiser is implemented by devices that take pre-encoded advertising and
// scan response data. AdvertiseRaw blocks until ctx is done.
type RawAdvertiser interface {
	AdvertiseRaw(ctx context.Context, params RawParams, adv, scanRsp []byte) error
}

// pduType picks the advertising PDU for the session
func (p RawParams) pduType(scanRsp []byte) uint8 {
	switch {
	case p.Connectable:
		return advInd
	case len(scanRsp) > 0:
		return advScanInd
	default:
		return advNonconnInd
	}
}

// intervalUnits converts Interval to controller units, clamped to the range the
// PDU type allows. Zero selects the controller default of 1.28 s.
func (p RawParams) intervalUnits() uint16 {
	if p.Interval <= 0 {
		return defaultIntervalUnits
	}
	lo := minIntervalUnits
	if !p.Connectable {
		lo = minNonconnIntervalUnits
	}

	units := p.Interval / (625 * time.Microsecond)
	switch {
	case units < time.Duration(lo):
		return lo
	case units > time.Duration(maxIntervalUnits):
		return maxIntervalUnits
	}
	return uint16(units)
}
