// Package goble adapts github.com/go-ble/ble to the beacon core: it runs the
// advertising half of the radio and serves the configuration service.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/advertising"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/gateway"
	"github.com/srg/beacon/internal/groutine"
)

// Config bounds the synchronous radio calls
type Config struct {
	// StartGrace is how long Start waits for an early failure from the stack.
	StartGrace time.Duration
	// StopTimeout bounds how long Stop waits for the advertiser to exit.
	StopTimeout time.Duration
	// RequestTimeout bounds one attribute request.
	RequestTimeout time.Duration
}

// DefaultConfig returns conservative bounds
func DefaultConfig() Config {
	return Config{
		StartGrace:     50 * time.Millisecond,
		StopTimeout:    time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

// LinkHandlers receive peer-link events from platforms that report them natively.
type LinkHandlers struct {
	Connected    func(id string)
	Disconnected func(id string)
}

type advRun struct {
	cancel context.CancelFunc
	done   chan error
}

// Transport implements advertising.Radio on a ble.Device and serves the
// configuration gateway as a GATT service.
type Transport struct {
	dev      ble.Device
	cfg      Config
	observer device.ConnectionObserver
	logger   *logrus.Logger

	peers      *hashmap.Map[string, time.Time]
	learnLinks bool

	mu  sync.Mutex
	adv *advRun

	ctx    context.Context
	cancel context.CancelFunc
}

// Open creates the platform device through DeviceFactory and wraps it.
func Open(cfg Config, observer device.ConnectionObserver, logger *logrus.Logger) (*Transport, error) {
	t := newTransport(cfg, observer, logger)

	dev, err := DeviceFactory(LinkHandlers{
		Connected:    t.peerConnected,
		Disconnected: t.peerDisconnected,
	})
	if err != nil {
		t.logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	t.dev = dev
	t.learnLinks = !nativeLinkEvents
	return t, nil
}

// NewTransport wraps an existing device. Peer links are learned from requests.
func NewTransport(dev ble.Device, cfg Config, observer device.ConnectionObserver, logger *logrus.Logger) *Transport {
	t := newTransport(cfg, observer, logger)
	t.dev = dev
	t.learnLinks = true
	return t
}

func newTransport(cfg Config, observer device.ConnectionObserver, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:      cfg,
		observer: observer,
		logger:   logger,
		peers:    hashmap.New[string, time.Time](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins advertising p. It returns device.ErrAlreadyAdvertising when a
// session is running, or the stack error if advertising fails within the grace
// period.
func (t *Transport) Start(p advertising.Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(p)
}

func (t *Transport) startLocked(p advertising.Payload) error {
	if t.adv != nil {
		select {
		case <-t.adv.done:
			t.adv = nil
		default:
			return device.ErrAlreadyAdvertising
		}
	}

	ctx, cancel := context.WithCancel(t.ctx)
	run := &advRun{cancel: cancel, done: make(chan error, 1)}

	groutine.Go(ctx, "ble-advertise", func(ctx context.Context) {
		run.done <- t.advertise(ctx, p)
		close(run.done)
	})

	grace := time.NewTimer(t.cfg.StartGrace)
	defer grace.Stop()

	select {
	case err := <-run.done:
		cancel()
		if err == nil {
			err = errors.New("advertiser exited immediately")
		}
		return NormalizeError(err)
	case <-grace.C:
	}

	t.adv = run
	t.logger.WithFields(logrus.Fields{
		"mode":        p.Mode,
		"connectable": p.Connectable,
		"interval":    p.Interval,
	}).Debug("Radio advertising")
	return nil
}

// advertise runs one session until ctx is done. Devices that accept raw data get
// the encoded records and PDU settings; others fall back to the go-ble helpers,
// which choose their own flags and PDU type.
func (t *Transport) advertise(ctx context.Context, p advertising.Payload) error {
	var err error
	raw, isRaw := t.dev.(RawAdvertiser)
	switch {
	case isRaw:
		params := RawParams{Connectable: p.Connectable, Interval: p.Interval}
		err = raw.AdvertiseRaw(ctx, params, p.Bytes(), advertising.Encode(p.ScanResponse()))
	case p.Mode == advertising.ModeBeaconNonConnectable:
		err = t.dev.AdvertiseServiceData16(ctx, p.ServiceUUID16, p.ServiceData)
	default:
		err = t.dev.Advertise(ctx, NewAdvertisement(p))
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

// Stop ends advertising. It returns device.ErrNotAdvertising when nothing runs.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Transport) stopLocked() error {
	run := t.adv
	if run == nil {
		return device.ErrNotAdvertising
	}
	t.adv = nil

	select {
	case <-run.done:
		// exited on its own, e.g. the controller stops advertising on connect
		run.cancel()
		return device.ErrNotAdvertising
	default:
	}

	run.cancel()
	timeout := time.NewTimer(t.cfg.StopTimeout)
	defer timeout.Stop()

	select {
	case err := <-run.done:
		if err != nil {
			return NormalizeError(err)
		}
		return nil
	case <-timeout.C:
		return fmt.Errorf("advertiser did not stop within %s", t.cfg.StopTimeout)
	}
}

// Update replaces the payload of the running session.
func (t *Transport) Update(p advertising.Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.stopLocked(); err != nil && !errors.Is(err, device.ErrNotAdvertising) {
		return err
	}
	return t.startLocked(p)
}

// Serve publishes the gateway table as a GATT service.
func (t *Transport) Serve(gw *gateway.Gateway) error {
	svc := ble.NewService(gateway.ServiceUUID)

	for _, attr := range gw.Table().All() {
		c := svc.NewCharacteristic(attr.UUID)
		if attr.Readable() {
			c.HandleRead(ble.ReadHandlerFunc(t.readHandler(gw, attr.ID)))
		}
		if attr.Writable() {
			c.HandleWrite(ble.WriteHandlerFunc(t.writeHandler(gw, attr.ID)))
		}
	}

	if err := t.dev.AddService(svc); err != nil {
		return fmt.Errorf("failed to add configuration service: %w", NormalizeError(err))
	}

	t.logger.WithFields(logrus.Fields{
		"service":         gateway.ServiceUUID.String(),
		"characteristics": gw.Table().Len(),
	}).Info("Configuration service registered")
	return nil
}

func (t *Transport) readHandler(gw *gateway.Gateway, id gateway.ID) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		t.trackPeer(req.Conn())

		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.RequestTimeout)
		defer cancel()

		data, err := gw.Read(ctx, id, req.Offset())
		if err != nil {
			rsp.SetStatus(ATTStatus(err, false))
			return
		}
		if c := rsp.Cap(); len(data) > c {
			data = data[:c]
		}
		if _, err := rsp.Write(data); err != nil {
			t.logger.WithError(err).WithField("attribute", id).Warn("Failed to write read response")
			rsp.SetStatus(ble.ErrUnlikely)
		}
	}
}

func (t *Transport) writeHandler(gw *gateway.Gateway, id gateway.ID) func(ble.Request, ble.ResponseWriter) {
	return func(req ble.Request, rsp ble.ResponseWriter) {
		t.trackPeer(req.Conn())

		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.RequestTimeout)
		defer cancel()

		if err := gw.Write(ctx, id, req.Data(), req.Offset()); err != nil {
			rsp.SetStatus(ATTStatus(err, true))
		}
	}
}

// Peers returns the number of connected peers
func (t *Transport) Peers() int {
	return t.peers.Len()
}

// trackPeer learns a link from a request on platforms without native link events.
func (t *Transport) trackPeer(conn ble.Conn) {
	if !t.learnLinks || conn == nil {
		return
	}

	id := conn.RemoteAddr().String()
	if _, existing := t.peers.GetOrInsert(id, time.Now()); existing {
		return
	}
	t.notifyConnected(id)

	groutine.Go(t.ctx, "ble-peer-"+id, func(ctx context.Context) {
		select {
		case <-conn.Disconnected():
			t.peerDisconnected(id)
		case <-ctx.Done():
		}
	})
}

func (t *Transport) peerConnected(id string) {
	if _, existing := t.peers.GetOrInsert(id, time.Now()); existing {
		return
	}
	t.notifyConnected(id)
}

func (t *Transport) notifyConnected(id string) {
	t.logger.WithField("peer", id).Info("Peer connected")
	if t.observer != nil {
		t.observer.OnConnected()
	}
}

func (t *Transport) peerDisconnected(id string) {
	since, ok := t.peers.Get(id)
	if !ok || !t.peers.Del(id) {
		return
	}
	t.logger.WithFields(logrus.Fields{
		"peer":     id,
		"duration": time.Since(since),
	}).Info("Peer disconnected")

	if t.peers.Len() == 0 && t.observer != nil {
		t.observer.OnDisconnected()
	}
}

// Close stops advertising and releases the device.
func (t *Transport) Close() error {
	t.mu.Lock()
	if err := t.stopLocked(); err != nil && !errors.Is(err, device.ErrNotAdvertising) {
		t.logger.WithError(err).Warn("Failed to stop advertising on close")
	}
	t.mu.Unlock()

	t.cancel()
	if err := t.dev.Stop(); err != nil {
		return NormalizeError(err)
	}
	return nil
}
