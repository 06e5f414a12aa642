//go:build !linux && !darwin

package goble

import (
	"errors"
	"runtime"

	"github.com/go-ble/ble"
)

const nativeLinkEvents = false

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(_ LinkHandlers) (ble.Device, error) {
	return nil, errors.New("ble: unsupported platform " + runtime.GOOS)
}
