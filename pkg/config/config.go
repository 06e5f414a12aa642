package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/eddystone"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Device   DeviceConfig   `yaml:"device"`
	Timing   TimingConfig   `yaml:"timing"`
	Beep     BeepConfig     `yaml:"beep"`
	Slots    SlotsConfig    `yaml:"slots"`
	Power    PowerConfig    `yaml:"power"`
	Hardware HardwareConfig `yaml:"hardware"`
	Radio    RadioConfig    `yaml:"radio"`
}

// DeviceConfig identifies the beacon on air
type DeviceConfig struct {
	NamePrefix string `yaml:"name_prefix" default:"BEACON"`
	// Serial is a hex string. When empty the serial is derived from MachineIDPath.
	Serial        string `yaml:"serial"`
	MachineIDPath string `yaml:"machine_id_path" default:"/etc/machine-id"`
	CompanyID     uint16 `yaml:"company_id" default:"89"`
}

type TimingConfig struct {
	Tick           time.Duration `yaml:"tick" default:"250ms"`
	ActiveWindow   time.Duration `yaml:"active_window" default:"30s"`
	WakeupPeriod   time.Duration `yaml:"wakeup_period" default:"600s"`
	Debounce       time.Duration `yaml:"debounce" default:"75ms"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"2s"`
}

// BeepConfig sets the emergency feedback pattern and the connection chirp
type BeepConfig struct {
	Count    int           `yaml:"count" default:"10"`
	Duration time.Duration `yaml:"duration" default:"100ms"`
	Period   time.Duration `yaml:"period" default:"500ms"`
	Connect  time.Duration `yaml:"connect" default:"100ms"`
}

type SlotsConfig struct {
	Count int `yaml:"count" default:"1"`
	// URL preloads slot 0 with an Eddystone-URL frame. Empty leaves it disabled.
	URL               string `yaml:"url"`
	Connectable       bool   `yaml:"connectable" default:"false"`
	AdvertisedTxPower int8   `yaml:"advertised_tx_power" default:"0"`
	RadioTxPower      int8   `yaml:"radio_tx_power" default:"0"`
	AdvertiseOnBoot   bool   `yaml:"advertise_on_boot" default:"true"`
}

type PowerConfig struct {
	ThresholdMV uint16 `yaml:"threshold_mv" default:"1900"`
	// FallbackMV is reported by the fixed battery source.
	FallbackMV uint16 `yaml:"fallback_mv" default:"3000"`
}

// HardwareConfig names the board wiring. Empty pins leave the part unwired.
type HardwareConfig struct {
	ButtonPin       string        `yaml:"button_pin"`
	ButtonActiveLow bool          `yaml:"button_active_low" default:"false"`
	EdgePoll        time.Duration `yaml:"edge_poll" default:"250ms"`
	BuzzerPin       string        `yaml:"buzzer_pin"`
	RedLEDPin       string        `yaml:"red_led_pin"`
	GreenLEDPin     string        `yaml:"green_led_pin"`
	ConnectionLED   bool          `yaml:"connection_led" default:"true"`

	BatterySource string `yaml:"battery_source" default:"fixed"`
	BatteryPath   string `yaml:"battery_path"`
	ADCBus        string `yaml:"adc_bus"`
	ADCAddress    uint16 `yaml:"adc_address" default:"72"`
	ADCChannel    int    `yaml:"adc_channel" default:"0"`
	ADCDivider    int64  `yaml:"adc_divider" default:"2"`
}

type RadioConfig struct {
	StartGrace  time.Duration `yaml:"start_grace" default:"50ms"`
	StopTimeout time.Duration `yaml:"stop_timeout" default:"1s"`
}

var batterySources = map[string]bool{"fixed": true, "sysfs": true, "ads1115": true}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults and validates the result. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Device.NamePrefix == "" {
		errs = append(errs, errors.New("device.name_prefix must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"timing.tick":            c.Timing.Tick,
		"timing.active_window":   c.Timing.ActiveWindow,
		"timing.wakeup_period":   c.Timing.WakeupPeriod,
		"timing.request_timeout": c.Timing.RequestTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Timing.Tick > c.Timing.ActiveWindow {
		errs = append(errs, fmt.Errorf("timing.tick %s exceeds active_window %s", c.Timing.Tick, c.Timing.ActiveWindow))
	}
	if c.Beep.Count < 0 {
		errs = append(errs, fmt.Errorf("beep.count must not be negative, got %d", c.Beep.Count))
	}
	if c.Beep.Count > 0 && c.Beep.Duration > c.Beep.Period {
		errs = append(errs, fmt.Errorf("beep.duration %s exceeds period %s", c.Beep.Duration, c.Beep.Period))
	}
	if c.Slots.Count < 1 || c.Slots.Count > 255 {
		errs = append(errs, fmt.Errorf("slots.count must be within 1..255, got %d", c.Slots.Count))
	}
	if c.Slots.URL != "" {
		if _, err := eddystone.EncodeURL(c.Slots.URL); err != nil {
			errs = append(errs, fmt.Errorf("slots.url: %w", err))
		}
	}
	if !batterySources[c.Hardware.BatterySource] {
		errs = append(errs, fmt.Errorf("hardware.battery_source %q is not one of fixed, sysfs, ads1115", c.Hardware.BatterySource))
	}
	if c.Hardware.BatterySource == "sysfs" && c.Hardware.BatteryPath == "" {
		errs = append(errs, errors.New("hardware.battery_path is required for the sysfs battery source"))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, InfoLevel when unparsable
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
