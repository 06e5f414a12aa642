package main

import (
	"errors"

	"github.com/srg/beacon/internal/device"
	goble "github.com/srg/beacon/internal/device/go-ble"
)

// formatUserError turns well-known failures into a hint for the operator.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is unavailable; check that the adapter is powered and the process may use it (" + err.Error() + ")"
	case errors.Is(err, device.ErrUnsupported):
		return "this platform is not supported: " + err.Error()
	default:
		return err.Error()
	}
}
