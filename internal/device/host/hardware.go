package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/device"
	"periph.io/x/conn/v3/physic"
)

// Battery sources accepted by Config.BatterySource
const (
	BatteryFixed = "fixed"
	BatterySysfs = "sysfs"
	BatteryADC   = "ads1115"
)

// Config names the board wiring. Empty pin names leave the part unwired.
type Config struct {
	ButtonPin       string
	ButtonActiveLow bool
	EdgePoll        time.Duration
	BuzzerPin       string
	RedLEDPin       string
	GreenLEDPin     string

	BatterySource   string
	BatteryPath     string
	FixedMillivolts uint16
	ADC             ADCConfig

	Serial        string
	MachineIDPath string
}

// InputButton is a button that can also deliver interrupts
type InputButton interface {
	device.Button
	device.InterruptSource
	device.Runner
}

// Hardware bundles the board collaborators.
type Hardware struct {
	Button   InputButton
	Buzzer   device.Buzzer
	LEDs     device.Indicator
	Battery  device.BatterySensor
	Identity device.Identity

	closers []func() error
}

// Open resolves every configured part. Parts without a pin fall back to
// no-op implementations.
func Open(cfg Config, logger *logrus.Logger) (*Hardware, error) {
	if logger == nil {
		logger = logrus.New()
	}

	hw := &Hardware{
		Button: releasedButton{},
		Buzzer: device.NopBuzzer{},
		LEDs:   device.NopIndicator{},
	}

	if cfg.ButtonPin != "" {
		b, err := OpenButton(cfg.ButtonPin, cfg.ButtonActiveLow, cfg.EdgePoll, logger)
		if err != nil {
			return nil, fmt.Errorf("button: %w", err)
		}
		hw.Button = b
	}

	if cfg.BuzzerPin != "" {
		b, err := OpenBuzzer(cfg.BuzzerPin, DefaultTone)
		if err != nil {
			return nil, fmt.Errorf("buzzer: %w", err)
		}
		hw.Buzzer = b
	}

	if cfg.RedLEDPin != "" || cfg.GreenLEDPin != "" {
		l, err := OpenLEDs(cfg.RedLEDPin, cfg.GreenLEDPin)
		if err != nil {
			return nil, fmt.Errorf("leds: %w", err)
		}
		hw.LEDs = l
	}

	battery, err := hw.openBattery(cfg)
	if err != nil {
		_ = hw.Close()
		return nil, fmt.Errorf("battery: %w", err)
	}
	hw.Battery = battery

	identity, err := openIdentity(cfg)
	if err != nil {
		_ = hw.Close()
		return nil, fmt.Errorf("identity: %w", err)
	}
	hw.Identity = identity

	logger.WithFields(logrus.Fields{
		"button":  cfg.ButtonPin,
		"buzzer":  cfg.BuzzerPin,
		"red":     cfg.RedLEDPin,
		"green":   cfg.GreenLEDPin,
		"battery": cfg.BatterySource,
	}).Info("Hardware ready")

	return hw, nil
}

func (hw *Hardware) openBattery(cfg Config) (device.BatterySensor, error) {
	switch cfg.BatterySource {
	case "", BatteryFixed:
		return FixedBattery(cfg.FixedMillivolts), nil
	case BatterySysfs:
		if cfg.BatteryPath == "" {
			return nil, errors.New("sysfs battery needs a path")
		}
		return NewSysfsBattery(cfg.BatteryPath), nil
	case BatteryADC:
		adc := cfg.ADC
		if adc.MaxVoltage == 0 {
			adc.MaxVoltage = 3300 * physic.MilliVolt
		}
		b, err := OpenADCBattery(adc)
		if err != nil {
			return nil, err
		}
		hw.closers = append(hw.closers, b.Close)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown battery source %q", cfg.BatterySource)
	}
}

func openIdentity(cfg Config) (device.Identity, error) {
	if cfg.Serial != "" {
		return ParseSerial(cfg.Serial)
	}
	return MachineSerial(cfg.MachineIDPath)
}

// Run drives the button edge loop until ctx is done.
func (hw *Hardware) Run(ctx context.Context) error {
	return hw.Button.Run(ctx)
}

func (hw *Hardware) Close() error {
	var errs []error
	for _, c := range hw.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	hw.closers = nil
	return errors.Join(errs...)
}
