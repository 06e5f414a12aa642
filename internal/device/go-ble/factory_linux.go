//go:build linux

package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/go-ble/ble/linux/hci/evt"
)

// The HCI stack reports connection events directly.
const nativeLinkEvents = true

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(links LinkHandlers) (ble.Device, error) {
	dev, err := linux.NewDevice(
		ble.OptConnectHandler(func(e evt.LEConnectionComplete) {
			if links.Connected != nil {
				links.Connected(handleID(e.ConnectionHandle()))
			}
		}),
		ble.OptDisconnectHandler(func(e evt.DisconnectionComplete) {
			if links.Disconnected != nil {
				links.Disconnected(handleID(e.ConnectionHandle()))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return &hciDevice{Device: dev}, nil
}

// hciDevice programs the controller directly so the PDU type, the interval and
// the exact AD structures reach the air.
type hciDevice struct {
	*linux.Device
}

func (d *hciDevice) AdvertiseRaw(ctx context.Context, p RawParams, adv, scanRsp []byte) error {
	units := p.intervalUnits()
	params := cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: units,
		AdvertisingIntervalMax: units,
		AdvertisingType:        p.pduType(scanRsp),
		AdvertisingChannelMap:  0x07,
	}
	// SetAdvParams only caches the parameters for the next HCI init.
	if err := d.HCI.SetAdvParams(params); err != nil {
		return fmt.Errorf("set advertising parameters: %w", err)
	}
	if err := d.HCI.Send(&params, nil); err != nil {
		return fmt.Errorf("set advertising parameters: %w", err)
	}
	if err := d.HCI.SetAdvertisement(adv, scanRsp); err != nil {
		return fmt.Errorf("set advertising data: %w", err)
	}
	if err := d.HCI.Advertise(); err != nil {
		return err
	}

	<-ctx.Done()
	_ = d.HCI.StopAdvertising()
	return ctx.Err()
}

func handleID(h uint16) string {
	return fmt.Sprintf("hci-%04x", h)
}
