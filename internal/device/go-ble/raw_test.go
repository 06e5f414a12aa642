package goble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawParams(t *testing.T) {
	tests := []struct {
		name    string
		params  RawParams
		scanRsp []byte
		pdu     uint8
		units   uint16
	}{
		{name: "connectable config", params: RawParams{Connectable: true, Interval: 500 * time.Millisecond}, scanRsp: []byte{1}, pdu: advInd, units: 800},
		{name: "non-connectable beacon", params: RawParams{Interval: 100 * time.Millisecond}, pdu: advNonconnInd, units: 160},
		{name: "scannable", params: RawParams{Interval: time.Second}, scanRsp: []byte{1}, pdu: advScanInd, units: 1600},
		{name: "non-connectable floor", params: RawParams{Interval: 20 * time.Millisecond}, pdu: advNonconnInd, units: minNonconnIntervalUnits},
		{name: "connectable floor", params: RawParams{Connectable: true, Interval: time.Millisecond}, pdu: advInd, units: minIntervalUnits},
		{name: "ceiling", params: RawParams{Interval: time.Minute}, pdu: advNonconnInd, units: maxIntervalUnits},
		{name: "default", params: RawParams{}, pdu: advNonconnInd, units: defaultIntervalUnits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pdu, tt.params.pduType(tt.scanRsp))
			assert.Equal(t, tt.units, tt.params.intervalUnits())
		})
	}
}
