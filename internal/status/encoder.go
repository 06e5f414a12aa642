package status

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/device"
)

// Power summarizes the battery against the configured threshold
type Power int

const (
	PowerOK Power = iota
	PowerLow
	PowerUnknown
)

func (p Power) String() string {
	switch p {
	case PowerOK:
		return "ok"
	case PowerLow:
		return "low"
	default:
		return "unknown"
	}
}

// Encoder samples the battery and button into status records.
type Encoder struct {
	battery     device.BatterySensor
	button      device.Button
	companyID   uint16
	thresholdMV uint16
	logger      *logrus.Logger
}

// NewEncoder creates an encoder. thresholdMV is the level at or below which the
// battery is reported as low.
func NewEncoder(battery device.BatterySensor, button device.Button, companyID, thresholdMV uint16, logger *logrus.Logger) *Encoder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Encoder{
		battery:     battery,
		button:      button,
		companyID:   companyID,
		thresholdMV: thresholdMV,
		logger:      logger,
	}
}

// Sample reads both sensors. With pinPressed the button field reports pressed
// regardless of the line level. A failed battery read reports 0 mV.
func (e *Encoder) Sample(pinPressed bool) Record {
	rec := Record{CompanyID: e.companyID}

	mv, err := e.battery.BatteryMillivolts()
	if err != nil {
		e.logger.WithError(err).Warn("Failed to read battery level")
	} else {
		rec.BatteryMV = mv
	}

	if pinPressed {
		rec.Button = device.ButtonPressed
	} else if state, err := e.button.State(); err != nil {
		e.logger.WithError(err).Warn("Failed to read button state")
	} else {
		rec.Button = state
	}

	e.logger.WithFields(logrus.Fields{
		"company_id": e.companyID,
		"battery_mv": rec.BatteryMV,
		"button":     rec.Button,
	}).Debug("Sampled status record")

	return rec
}

// Power checks the battery against the threshold
func (e *Encoder) Power() Power {
	mv, err := e.battery.BatteryMillivolts()
	if err != nil {
		e.logger.WithError(err).Warn("Failed to read battery level")
		return PowerUnknown
	}
	if mv <= e.thresholdMV {
		return PowerLow
	}
	return PowerOK
}
