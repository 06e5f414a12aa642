package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/beacon/internal/device"
	goble "github.com/srg/beacon/internal/device/go-ble"
	"github.com/srg/beacon/internal/device/host"
	"github.com/srg/beacon/internal/firmware"
	"github.com/srg/beacon/pkg/config"
	"periph.io/x/conn/v3/physic"
)

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("serial") {
		cfg.Device.Serial, _ = cmd.Flags().GetString("serial")
	}
	if cmd.Flags().Changed("url") {
		cfg.Slots.URL, _ = cmd.Flags().GetString("url")
	}
	if off, _ := cmd.Flags().GetBool("no-boot-window"); off {
		cfg.Slots.AdvertiseOnBoot = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func hostConfig(cfg *config.Config) host.Config {
	hw := cfg.Hardware
	return host.Config{
		ButtonPin:       hw.ButtonPin,
		ButtonActiveLow: hw.ButtonActiveLow,
		EdgePoll:        hw.EdgePoll,
		BuzzerPin:       hw.BuzzerPin,
		RedLEDPin:       hw.RedLEDPin,
		GreenLEDPin:     hw.GreenLEDPin,
		BatterySource:   hw.BatterySource,
		BatteryPath:     hw.BatteryPath,
		FixedMillivolts: cfg.Power.FallbackMV,
		ADC: host.ADCConfig{
			Bus:        hw.ADCBus,
			Address:    hw.ADCAddress,
			Channel:    hw.ADCChannel,
			MaxVoltage: 3300 * physic.MilliVolt,
			Divider:    hw.ADCDivider,
		},
		Serial:        cfg.Device.Serial,
		MachineIDPath: cfg.Device.MachineIDPath,
	}
}

func radioOpener(cfg *config.Config, logger *logrus.Logger) firmware.RadioOpener {
	return func(observer device.ConnectionObserver) (firmware.Radio, error) {
		t, err := goble.Open(goble.Config{
			StartGrace:     cfg.Radio.StartGrace,
			StopTimeout:    cfg.Radio.StopTimeout,
			RequestTimeout: cfg.Timing.RequestTimeout,
		}, observer, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

func runBeacon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg.Level())
	if err != nil {
		return err
	}

	hw, err := host.Open(hostConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to open hardware: %w", err)
	}
	defer hw.Close()

	fw, err := firmware.New(cfg, firmware.Hardware{
		Button:     hw.Button,
		Interrupts: hw.Button,
		Runner:     hw,
		Buzzer:     hw.Buzzer,
		LEDs:       hw.LEDs,
		Battery:    hw.Battery,
		Identity:   hw.Identity,
	}, radioOpener(cfg, logger), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("version", formatVersion(version)).Info("Beacon running")
	if err := fw.Run(ctx); err != nil {
		return err
	}
	logger.Info("Beacon stopped")
	return nil
}
