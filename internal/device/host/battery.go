package host

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// FixedBattery reports a constant voltage. Used on boards without a gauge.
type FixedBattery uint16

func (f FixedBattery) BatteryMillivolts() (uint16, error) { return uint16(f), nil }

// SysfsBattery reads an integer from a sysfs attribute and scales it to
// millivolts as raw*Mul/Div. power_supply voltage_now reports microvolts,
// so Mul=1, Div=1000.
type SysfsBattery struct {
	Path string
	Mul  int64
	Div  int64
}

func NewSysfsBattery(path string) *SysfsBattery {
	return &SysfsBattery{Path: path, Mul: 1, Div: 1000}
}

func (s *SysfsBattery) BatteryMillivolts() (uint16, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.Path, err)
	}

	mul, div := s.Mul, s.Div
	if mul == 0 {
		mul = 1
	}
	if div == 0 {
		div = 1
	}
	return clampMillivolts(v * mul / div), nil
}

// ADCBattery samples a single ADS1115 channel behind a resistor divider.
type ADCBattery struct {
	mu      sync.Mutex
	bus     i2c.BusCloser
	pin     analog.PinADC
	divider int64
}

// ADCConfig selects the bus, channel and divider ratio of an ADS1115 gauge.
type ADCConfig struct {
	Bus        string
	Address    uint16
	Channel    int
	MaxVoltage physic.ElectricPotential
	Divider    int64
}

func OpenADCBattery(cfg ADCConfig) (*ADCBattery, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}

	b, err := newADCBattery(bus, cfg)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return b, nil
}

func newADCBattery(bus i2c.BusCloser, cfg ADCConfig) (*ADCBattery, error) {
	opts := ads1x15.DefaultOpts
	if cfg.Address != 0 {
		opts.I2cAddress = cfg.Address
	}
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("ads1115: %w", err)
	}

	channels := []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}
	if cfg.Channel < 0 || cfg.Channel >= len(channels) {
		return nil, fmt.Errorf("ads1115: channel %d out of range", cfg.Channel)
	}
	maxV := cfg.MaxVoltage
	if maxV == 0 {
		maxV = 3300 * physic.MilliVolt
	}
	pin, err := adc.PinForChannel(channels[cfg.Channel], maxV, 8*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		return nil, fmt.Errorf("ads1115 channel %d: %w", cfg.Channel, err)
	}

	divider := cfg.Divider
	if divider <= 0 {
		divider = 2
	}
	return &ADCBattery{bus: bus, pin: pin, divider: divider}, nil
}

func (a *ADCBattery) BatteryMillivolts() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.pin.Read()
	if err != nil {
		return 0, err
	}
	return clampMillivolts(int64(s.V/physic.MilliVolt) * a.divider), nil
}

func (a *ADCBattery) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.pin.Halt()
	return a.bus.Close()
}

func clampMillivolts(v int64) uint16 {
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
