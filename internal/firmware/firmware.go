// Package firmware assembles the beacon: slot store, advertising controller,
// button bridge, duty-cycle scheduler and configuration gateway.
package firmware

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/advertising"
	"github.com/srg/beacon/internal/beacon"
	"github.com/srg/beacon/internal/button"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/eddystone"
	"github.com/srg/beacon/internal/gateway"
	"github.com/srg/beacon/internal/groutine"
	"github.com/srg/beacon/internal/scheduler"
	"github.com/srg/beacon/internal/status"
	"github.com/srg/beacon/pkg/config"
)

// Radio is the BLE transport: the advertising radio plus the GATT server.
type Radio interface {
	advertising.Radio
	Serve(gw *gateway.Gateway) error
	Close() error
}

// RadioOpener creates the transport. Peer-link events go to observer.
type RadioOpener func(observer device.ConnectionObserver) (Radio, error)

// Hardware lists the board collaborators. Interrupts and Runner are optional.
type Hardware struct {
	Button     device.Button
	Interrupts device.InterruptSource
	Runner     device.Runner
	Buzzer     device.Buzzer
	LEDs       device.Indicator
	Battery    device.BatterySensor
	Identity   device.Identity
}

// Firmware is a fully wired beacon
type Firmware struct {
	cfg    *config.Config
	hw     Hardware
	logger *logrus.Logger

	state      *beacon.State
	radio      Radio
	controller *advertising.Controller
	bridge     *button.Bridge
	scheduler  *scheduler.Scheduler
	gateway    *gateway.Gateway
}

// New wires every component and registers the configuration service.
func New(cfg *config.Config, hw Hardware, open RadioOpener, logger *logrus.Logger) (*Firmware, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if hw.Button == nil || hw.Battery == nil || hw.Identity == nil {
		return nil, errors.New("button, battery and identity are required")
	}
	if hw.Buzzer == nil {
		hw.Buzzer = device.NopBuzzer{}
	}
	if hw.LEDs == nil {
		hw.LEDs = device.NopIndicator{}
	}

	store, err := newStore(cfg.Slots)
	if err != nil {
		return nil, err
	}
	state := beacon.NewState(store)

	radio, err := open(state)
	if err != nil {
		return nil, fmt.Errorf("failed to open radio: %w", err)
	}

	name := advertising.DeviceName(cfg.Device.NamePrefix, hw.Identity.SerialNumber())
	controller := advertising.NewController(radio, state, advertising.Config{
		Name:        name,
		CompanyID:   cfg.Device.CompanyID,
		ServiceUUID: gateway.ServiceUUID,
	}, logger)

	bridge := button.NewBridge(hw.Button, hw.Buzzer, button.Config{
		Debounce:     cfg.Timing.Debounce,
		BeepCount:    cfg.Beep.Count,
		BeepDuration: cfg.Beep.Duration,
		BeepPeriod:   cfg.Beep.Period,
	}, logger)
	if hw.Interrupts != nil {
		hw.Interrupts.Observe(bridge)
	}

	encoder := status.NewEncoder(hw.Battery, hw.Button, cfg.Device.CompanyID, cfg.Power.ThresholdMV, logger)

	sched := scheduler.New(scheduler.Config{
		Tick:            cfg.Timing.Tick,
		ActiveWindow:    cfg.Timing.ActiveWindow,
		WakeupPeriod:    cfg.Timing.WakeupPeriod,
		AdvertiseOnBoot: cfg.Slots.AdvertiseOnBoot,
		ConnectionLED:   cfg.Hardware.ConnectionLED,
		ConnectBeep:     cfg.Beep.Connect,
	}, state, controller, bridge, encoder, scheduler.Hardware{
		Button: hw.Button,
		LEDs:   hw.LEDs,
		Buzzer: hw.Buzzer,
	}, logger)

	gw := gateway.New(state, controller, sched, logger)
	if err := radio.Serve(gw); err != nil {
		_ = radio.Close()
		return nil, fmt.Errorf("failed to serve configuration service: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"name":  name,
		"slots": store.Count(),
		"frame": store.Type(),
	}).Info("Beacon assembled")

	return &Firmware{
		cfg:        cfg,
		hw:         hw,
		logger:     logger,
		state:      state,
		radio:      radio,
		controller: controller,
		bridge:     bridge,
		scheduler:  sched,
		gateway:    gw,
	}, nil
}

// newStore creates the slots and preloads slot 0 with the configured URL.
func newStore(cfg config.SlotsConfig) (*eddystone.Store, error) {
	store := eddystone.NewStore(cfg.Count, nil)

	connectable := byte(0)
	if cfg.Connectable {
		connectable = 1
	}
	for i := 0; i < store.Count(); i++ {
		if err := store.SetActiveIndex(uint8(i)); err != nil {
			return nil, err
		}
		store.SetRadioTxPower(cfg.RadioTxPower)
		store.SetAdvertisedTxPower(cfg.AdvertisedTxPower)
		store.SetConnectable(connectable)
	}
	if err := store.SetActiveIndex(0); err != nil {
		return nil, err
	}

	if cfg.URL != "" {
		frame, err := eddystone.EncodeURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("slot url: %w", err)
		}
		if _, err := store.WriteFrame(frame); err != nil {
			return nil, fmt.Errorf("slot url: %w", err)
		}
	}
	return store, nil
}

// Run drives the beacon until ctx is cancelled or a task fails.
func (f *Firmware) Run(ctx context.Context) error {
	g := groutine.NewGroup(ctx, f.logger)
	g.Go("scheduler", f.scheduler.Run)
	g.Go("button-bridge", f.bridge.Run)
	if f.hw.Runner != nil {
		g.Go("button-edges", f.hw.Runner.Run)
	}

	err := g.Wait()
	if cerr := f.radio.Close(); cerr != nil {
		f.logger.WithError(cerr).Warn("Failed to close radio")
	}
	return err
}

func (f *Firmware) State() *beacon.State            { return f.state }
func (f *Firmware) Gateway() *gateway.Gateway       { return f.gateway }
func (f *Firmware) Scheduler() *scheduler.Scheduler { return f.scheduler }

// Session reports the live advertising session. It is read through the
// scheduler flow.
func (f *Firmware) Session(ctx context.Context) (advertising.Session, bool, error) {
	var (
		s  advertising.Session
		ok bool
	)
	err := f.scheduler.Do(ctx, func() error {
		s, ok = f.controller.Session()
		return nil
	})
	return s, ok, err
}
