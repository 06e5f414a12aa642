package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "BEACON", cfg.Device.NamePrefix)
	assert.Equal(t, uint16(0x0059), cfg.Device.CompanyID)
	assert.Equal(t, 250*time.Millisecond, cfg.Timing.Tick)
	assert.Equal(t, 30*time.Second, cfg.Timing.ActiveWindow)
	assert.Equal(t, 600*time.Second, cfg.Timing.WakeupPeriod)
	assert.Equal(t, 75*time.Millisecond, cfg.Timing.Debounce)
	assert.Equal(t, 10, cfg.Beep.Count)
	assert.Equal(t, 100*time.Millisecond, cfg.Beep.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Beep.Period)
	assert.Equal(t, 1, cfg.Slots.Count)
	assert.True(t, cfg.Slots.AdvertiseOnBoot)
	assert.Equal(t, uint16(1900), cfg.Power.ThresholdMV)
	assert.Equal(t, "fixed", cfg.Hardware.BatterySource)
	assert.Equal(t, uint16(0x48), cfg.Hardware.ADCAddress)
	assert.Equal(t, 50*time.Millisecond, cfg.Radio.StartGrace)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "beacon.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
device:
  name_prefix: TAG
  serial: "a1b2"
timing:
  active_window: 10s
slots:
  url: https://example.com
hardware:
  button_pin: GPIO17
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "TAG", cfg.Device.NamePrefix)
		assert.Equal(t, "a1b2", cfg.Device.Serial)
		assert.Equal(t, 10*time.Second, cfg.Timing.ActiveWindow)
		assert.Equal(t, "https://example.com", cfg.Slots.URL)
		assert.Equal(t, "GPIO17", cfg.Hardware.ButtonPin)
		// untouched values keep their defaults
		assert.Equal(t, 250*time.Millisecond, cfg.Timing.Tick)
		assert.Equal(t, 10, cfg.Beep.Count)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read config")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("timing: [unclosed"), 0o600))
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "empty prefix", mutate: func(c *Config) { c.Device.NamePrefix = "" }, wantErr: "name_prefix"},
		{name: "zero tick", mutate: func(c *Config) { c.Timing.Tick = 0 }, wantErr: "timing.tick"},
		{name: "tick beyond window", mutate: func(c *Config) { c.Timing.Tick = time.Minute }, wantErr: "exceeds active_window"},
		{name: "negative beeps", mutate: func(c *Config) { c.Beep.Count = -1 }, wantErr: "beep.count"},
		{name: "beep longer than period", mutate: func(c *Config) { c.Beep.Duration = time.Second }, wantErr: "beep.duration"},
		{name: "no slots", mutate: func(c *Config) { c.Slots.Count = 0 }, wantErr: "slots.count"},
		{name: "too many slots", mutate: func(c *Config) { c.Slots.Count = 256 }, wantErr: "slots.count"},
		{name: "bad url", mutate: func(c *Config) { c.Slots.URL = "ftp://example.com" }, wantErr: "slots.url"},
		{name: "unknown battery", mutate: func(c *Config) { c.Hardware.BatterySource = "solar" }, wantErr: "battery_source"},
		{name: "sysfs without path", mutate: func(c *Config) { c.Hardware.BatterySource = "sysfs" }, wantErr: "battery_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			want:     logrus.DebugLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			want:     logrus.WarnLevel,
		},
		{
			name:     "falls back to info on unknown level",
			logLevel: "chatty",
			want:     logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
