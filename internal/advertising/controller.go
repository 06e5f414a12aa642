package advertising

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/beacon"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/eddystone"
	"github.com/srg/beacon/internal/status"
)

// FrameSource selects what a restarted session carries
type FrameSource int

const (
	SourceIdentity FrameSource = iota
	SourceSlot
)

func (s FrameSource) String() string {
	if s == SourceSlot {
		return "slot"
	}
	return "identity"
}

// Radio is the advertising half of the BLE transport. Start and Stop are bounded
// synchronous calls; start-when-started and stop-when-stopped are reported with
// device.ErrAlreadyAdvertising and device.ErrNotAdvertising.
type Radio interface {
	Start(p Payload) error
	Stop() error
	Update(p Payload) error
}

// Session describes the live advertising session
type Session struct {
	Source  FrameSource
	Payload Payload
	Started time.Time
}

// Config holds the identity advertised in configuration mode
type Config struct {
	Name        string
	CompanyID   uint16
	ServiceUUID ble.UUID
}

// DeviceName derives the advertised name from a prefix and the serial number.
func DeviceName(prefix string, serial []byte) string {
	if len(serial) == 0 {
		return prefix
	}
	return prefix + "_" + strings.ToUpper(hex.EncodeToString(serial))
}

// Controller owns the single advertising session.
//
// Controller is driven from the scheduler flow only.
type Controller struct {
	radio  Radio
	state  *beacon.State
	cfg    Config
	logger *logrus.Logger

	status  status.Record
	session *Session
	now     func() time.Time
}

// NewController creates a controller with no live session
func NewController(radio Radio, state *beacon.State, cfg Config, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		radio:  radio,
		state:  state,
		cfg:    cfg,
		logger: logger,
		status: status.Record{CompanyID: cfg.CompanyID},
		now:    time.Now,
	}
}

// Restart stops the current session and starts a new one built from src.
// A failed start leaves no session live.
func (c *Controller) Restart(src FrameSource) error {
	if err := c.Stop(); err != nil {
		return err
	}

	p, src := c.build(src)
	if err := c.radio.Start(p); err != nil {
		if !errors.Is(err, device.ErrAlreadyAdvertising) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"source": src,
				"mode":   p.Mode,
			}).Warn("Failed to start advertising")
			return device.Transport("start advertising", err)
		}
		c.logger.WithField("source", src).Debug("Radio reports advertising already running")
	}

	c.session = &Session{Source: src, Payload: p, Started: c.now()}
	c.logger.WithFields(logrus.Fields{
		"source":   src,
		"mode":     p.Mode,
		"interval": p.Interval,
	}).Info("Advertising started")
	return nil
}

// Stop ends the live session. Stopping while stopped is not an error.
func (c *Controller) Stop() error {
	if err := c.radio.Stop(); err != nil {
		if !errors.Is(err, device.ErrNotAdvertising) {
			c.logger.WithError(err).Warn("Failed to stop advertising")
			return device.Transport("stop advertising", err)
		}
		c.logger.Debug("Radio reports advertising already stopped")
	}

	if c.session != nil {
		c.logger.WithFields(logrus.Fields{
			"source":   c.session.Source,
			"duration": c.now().Sub(c.session.Started),
		}).Info("Advertising stopped")
	}
	c.session = nil
	return nil
}

// UpdateStatus stores the status record used by the next identity payload.
func (c *Controller) UpdateStatus(rec status.Record) {
	c.status = rec
}

// Refresh stores rec and pushes it to a live identity session.
func (c *Controller) Refresh(rec status.Record) error {
	c.UpdateStatus(rec)
	if c.session == nil || c.session.Payload.Mode != ModeConfigConnectable {
		return nil
	}

	p := c.identity()
	if err := c.radio.Update(p); err != nil {
		return device.Transport("update advertising", err)
	}
	c.session.Payload = p
	return nil
}

// Session returns the live session, if any
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Active reports whether a session is live
func (c *Controller) Active() bool {
	return c.session != nil
}

func (c *Controller) build(src FrameSource) (Payload, FrameSource) {
	if src == SourceSlot {
		slot := c.state.Slots.Active()
		if data := slot.ServiceData(); data != nil {
			return Payload{
				Mode:          ModeBeaconNonConnectable,
				Flags:         FlagsBeacon,
				ServiceUUID16: eddystone.ServiceUUID16,
				ServiceData:   data,
				Interval:      time.Duration(slot.Interval) * time.Millisecond,
			}, SourceSlot
		}
		c.logger.Debug("Active slot is empty, advertising identity")
	}
	return c.identity(), SourceIdentity
}

func (c *Controller) identity() Payload {
	return Payload{
		Mode:             ModeConfigConnectable,
		Connectable:      true,
		Flags:            FlagsConfig,
		LocalName:        c.cfg.Name,
		CompanyID:        c.cfg.CompanyID,
		ManufacturerData: c.status.Body(),
		ServiceUUID:      c.cfg.ServiceUUID,
		Interval:         ConfigInterval,
	}
}

func (s Session) String() string {
	return fmt.Sprintf("%s/%s", s.Source, s.Payload.Mode)
}
