package goble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/beacon/internal/advertising"
	"github.com/srg/beacon/internal/beacon"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/eddystone"
	"github.com/srg/beacon/internal/gateway"
	"github.com/srg/beacon/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// MockBLEDevice implements ble.Device for testing. Advertise calls block until
// their context is cancelled unless advErr is set.
type MockBLEDevice struct {
	mu       sync.Mutex
	advErr   error
	services []*ble.Service
	adverts  []ble.Advertisement
	svcData  map[uint16][]byte
	active   atomic.Int32
	stopped  bool
}

func (m *MockBLEDevice) AddService(svc *ble.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
	return nil
}
func (m *MockBLEDevice) RemoveAllServices() error              { return nil }
func (m *MockBLEDevice) SetServices(svcs []*ble.Service) error { return nil }
func (m *MockBLEDevice) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *MockBLEDevice) block(ctx context.Context) error {
	m.mu.Lock()
	err := m.advErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.active.Add(1)
	defer m.active.Add(-1)
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockBLEDevice) Advertise(ctx context.Context, adv ble.Advertisement) error {
	m.mu.Lock()
	m.adverts = append(m.adverts, adv)
	m.mu.Unlock()
	return m.block(ctx)
}
func (m *MockBLEDevice) AdvertiseNameAndServices(ctx context.Context, name string, ss ...ble.UUID) error {
	return m.block(ctx)
}
func (m *MockBLEDevice) AdvertiseIBeacon(ctx context.Context, u ble.UUID, major, minor uint16, pwr int8) error {
	return m.block(ctx)
}
func (m *MockBLEDevice) AdvertiseIBeaconData(ctx context.Context, b []byte) error        { return m.block(ctx) }
func (m *MockBLEDevice) AdvertiseMfgData(ctx context.Context, id uint16, b []byte) error { return m.block(ctx) }
func (m *MockBLEDevice) AdvertiseServiceData16(ctx context.Context, id uint16, b []byte) error {
	m.mu.Lock()
	if m.svcData == nil {
		m.svcData = map[uint16][]byte{}
	}
	m.svcData[id] = append([]byte(nil), b...)
	m.mu.Unlock()
	return m.block(ctx)
}
func (m *MockBLEDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error { return nil }
func (m *MockBLEDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error)        { return nil, nil }

type rawCall struct {
	params  RawParams
	adv     []byte
	scanRsp []byte
}

// rawBLEDevice also accepts pre-encoded advertising data, as the HCI device does.
type rawBLEDevice struct {
	*MockBLEDevice
	raw []rawCall
}

func (d *rawBLEDevice) AdvertiseRaw(ctx context.Context, p RawParams, adv, scanRsp []byte) error {
	d.mu.Lock()
	d.raw = append(d.raw, rawCall{params: p, adv: adv, scanRsp: scanRsp})
	d.mu.Unlock()
	return d.block(ctx)
}

func (d *rawBLEDevice) calls() []rawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rawCall(nil), d.raw...)
}

type mockConn struct {
	ble.Conn
	addr ble.Addr
	gone chan struct{}
}

func (c *mockConn) RemoteAddr() ble.Addr          { return c.addr }
func (c *mockConn) Disconnected() <-chan struct{} { return c.gone }

type mockRequest struct {
	conn   ble.Conn
	data   []byte
	offset int
}

func (r *mockRequest) Conn() ble.Conn { return r.conn }
func (r *mockRequest) Data() []byte   { return r.data }
func (r *mockRequest) Offset() int    { return r.offset }

type mockResponse struct {
	buf    []byte
	status ble.ATTError
}

func (r *mockResponse) Write(b []byte) (int, error) {
	r.buf = append(r.buf, b...)
	return len(b), nil
}
func (r *mockResponse) Status() ble.ATTError          { return r.status }
func (r *mockResponse) SetStatus(status ble.ATTError) { r.status = status }
func (r *mockResponse) Len() int                      { return len(r.buf) }
func (r *mockResponse) Cap() int                      { return 512 }

type linkCounter struct {
	connected    atomic.Int32
	disconnected atomic.Int32
}

func (l *linkCounter) OnConnected()    { l.connected.Add(1) }
func (l *linkCounter) OnDisconnected() { l.disconnected.Add(1) }

type TransportTestSuite struct {
	suite.Suite
	dev   *MockBLEDevice
	links *linkCounter
	tr    *Transport
}

func (s *TransportTestSuite) SetupTest() {
	logger := testutils.NewLogger()

	s.dev = &MockBLEDevice{}
	s.links = &linkCounter{}
	cfg := DefaultConfig()
	cfg.StartGrace = 10 * time.Millisecond
	s.tr = NewTransport(s.dev, cfg, s.links, logger)
}

func (s *TransportTestSuite) TearDownTest() {
	s.NoError(s.tr.Close())
}

func configPayload() advertising.Payload {
	return advertising.Payload{
		Mode:             advertising.ModeConfigConnectable,
		Connectable:      true,
		Flags:            advertising.FlagsConfig,
		LocalName:        "TAG_01",
		CompanyID:        0x0059,
		ManufacturerData: []byte{0xB8, 0x0B, 0x00, 0x00},
		ServiceUUID:      gateway.ServiceUUID,
	}
}

func (s *TransportTestSuite) TestStartStop() {
	s.Require().NoError(s.tr.Start(configPayload()))
	s.Eventually(func() bool { return s.dev.active.Load() == 1 }, time.Second, time.Millisecond)

	s.ErrorIs(s.tr.Start(configPayload()), device.ErrAlreadyAdvertising)

	s.NoError(s.tr.Stop())
	s.Equal(int32(0), s.dev.active.Load())
	s.ErrorIs(s.tr.Stop(), device.ErrNotAdvertising)

	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.Require().Len(s.dev.adverts, 1)
	adv := s.dev.adverts[0]
	s.Equal("TAG_01", adv.LocalName())
	s.Equal([]byte{0x59, 0x00, 0xB8, 0x0B, 0x00, 0x00}, adv.ManufacturerData())
	s.True(adv.Connectable())
	s.Require().Len(adv.OverflowService(), 1)
	s.True(adv.OverflowService()[0].Equal(gateway.ServiceUUID))
}

func (s *TransportTestSuite) TestStartFailure() {
	s.dev.advErr = errors.New("hci: command disallowed")

	err := s.tr.Start(configPayload())
	s.Require().Error(err)
	s.Contains(err.Error(), "command disallowed")
	s.ErrorIs(s.tr.Stop(), device.ErrNotAdvertising)
}

func (s *TransportTestSuite) TestBeaconUsesServiceData() {
	p := advertising.Payload{
		Mode:          advertising.ModeBeaconNonConnectable,
		Flags:         advertising.FlagsBeacon,
		ServiceUUID16: eddystone.ServiceUUID16,
		ServiceData:   []byte{0x10, 0xEC, 0x03, 'g', 'o'},
	}

	s.Require().NoError(s.tr.Start(p))
	s.dev.mu.Lock()
	s.Equal(p.ServiceData, s.dev.svcData[0xFEAA])
	s.dev.mu.Unlock()
	s.NoError(s.tr.Stop())
}

func (s *TransportTestSuite) rawTransport() (*Transport, *rawBLEDevice) {
	dev := &rawBLEDevice{MockBLEDevice: &MockBLEDevice{}}
	cfg := DefaultConfig()
	cfg.StartGrace = 10 * time.Millisecond
	tr := NewTransport(dev, cfg, s.links, testutils.NewLogger())
	s.T().Cleanup(func() { _ = tr.Close() })
	return tr, dev
}

func (s *TransportTestSuite) TestRawBeaconIsNonConnectable() {
	tr, dev := s.rawTransport()
	p := advertising.Payload{
		Mode:          advertising.ModeBeaconNonConnectable,
		Flags:         advertising.FlagsBeacon,
		ServiceUUID16: eddystone.ServiceUUID16,
		ServiceData:   []byte{0x10, 0x00, 0x03, 'g', 'o', 0x07},
		Interval:      100 * time.Millisecond,
	}

	s.Require().NoError(tr.Start(p))
	calls := dev.calls()
	s.Require().Len(calls, 1)

	// flags 0x04, complete uuid16 list FEAA, service data
	testutils.AssertHex(s.T(), calls[0].adv, `
		02 01 04
		03 03 AA FE
		09 16 AA FE 10 00 03 67 6F 07`)
	s.Empty(calls[0].scanRsp)
	s.False(calls[0].params.Connectable)
	s.Equal(100*time.Millisecond, calls[0].params.Interval)
	s.Equal(advNonconnInd, calls[0].params.pduType(calls[0].scanRsp))

	dev.mu.Lock()
	s.Empty(dev.svcData)
	s.Empty(dev.adverts)
	dev.mu.Unlock()
	s.NoError(tr.Stop())
}

func (s *TransportTestSuite) TestRawConfigIsConnectable() {
	tr, dev := s.rawTransport()
	p := configPayload()
	p.Interval = advertising.ConfigInterval

	s.Require().NoError(tr.Start(p))
	calls := dev.calls()
	s.Require().Len(calls, 1)

	s.Equal(p.Bytes(), calls[0].adv)
	testutils.AssertHex(s.T(), calls[0].scanRsp, "11 07", testutils.WithPrefixOnly())
	s.True(calls[0].params.Connectable)
	s.Equal(advInd, calls[0].params.pduType(calls[0].scanRsp))
	s.Equal(uint16(800), calls[0].params.intervalUnits())
	s.NoError(tr.Stop())
}

func (s *TransportTestSuite) TestUpdateRestartsAdvertiser() {
	s.Require().NoError(s.tr.Start(configPayload()))

	p := configPayload()
	p.ManufacturerData = []byte{0xF0, 0x0A, 0x01, 0x00}
	s.Require().NoError(s.tr.Update(p))

	s.dev.mu.Lock()
	s.Require().Len(s.dev.adverts, 2)
	s.Equal([]byte{0x59, 0x00, 0xF0, 0x0A, 0x01, 0x00}, s.dev.adverts[1].ManufacturerData())
	s.dev.mu.Unlock()
	s.Eventually(func() bool { return s.dev.active.Load() == 1 }, time.Second, time.Millisecond)
}

func (s *TransportTestSuite) TestSelfTerminatedAdvertiser() {
	s.Require().NoError(s.tr.Start(configPayload()))

	// the stack stops advertising on its own, e.g. when a central connects
	s.tr.mu.Lock()
	s.tr.adv.cancel()
	s.tr.mu.Unlock()
	s.Eventually(func() bool { return s.dev.active.Load() == 0 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	s.ErrorIs(s.tr.Stop(), device.ErrNotAdvertising)
	s.NoError(s.tr.Start(configPayload()))
}

func (s *TransportTestSuite) findChar(svc *ble.Service, id gateway.ID) *ble.Characteristic {
	attr, ok := gateway.NewTable().Get(id)
	s.Require().True(ok)
	for _, c := range svc.Characteristics {
		if c.UUID.Equal(attr.UUID) {
			return c
		}
	}
	s.FailNow("characteristic not registered", string(id))
	return nil
}

func (s *TransportTestSuite) TestServe() {
	state := beacon.NewState(eddystone.NewStore(1, nil))
	ctrl := advertising.NewController(s.tr, state, advertising.Config{Name: "TAG_01", CompanyID: 0x0059}, nil)
	gw := gateway.New(state, ctrl, nil, nil)

	s.Require().NoError(s.tr.Serve(gw))
	s.Require().Len(s.dev.services, 1)
	svc := s.dev.services[0]
	s.True(svc.UUID.Equal(gateway.ServiceUUID))
	s.Len(svc.Characteristics, 12)

	caps := s.findChar(svc, gateway.Capabilities)
	s.Nil(caps.WriteHandler)
	rsp := &mockResponse{}
	caps.ReadHandler.ServeRead(&mockRequest{}, rsp)
	s.Equal(ble.ErrSuccess, rsp.status)
	s.Equal(state.Slots.Capabilities().Bytes(), rsp.buf)

	s.Nil(s.findChar(svc, gateway.FactoryReset).ReadHandler)

	// lock, then a gated write is refused with write-not-permitted
	lock := s.findChar(svc, gateway.LockState)
	rsp = &mockResponse{}
	lock.WriteHandler.ServeWrite(&mockRequest{data: []byte{0x00}}, rsp)
	s.Equal(ble.ErrSuccess, rsp.status)

	rsp = &mockResponse{}
	s.findChar(svc, gateway.RadioTxPower).WriteHandler.ServeWrite(&mockRequest{data: []byte{0x04}}, rsp)
	s.Equal(ble.ErrWriteNotPerm, rsp.status)

	rsp = &mockResponse{}
	s.findChar(svc, gateway.SlotPayload).ReadHandler.ServeRead(&mockRequest{}, rsp)
	s.Equal(ble.ErrReadNotPerm, rsp.status)

	rsp = &mockResponse{}
	s.findChar(svc, gateway.UnlockChallenge).WriteHandler.ServeWrite(&mockRequest{data: make([]byte, 16)}, rsp)
	s.Equal(ble.ErrReqNotSupp, rsp.status)
}

func (s *TransportTestSuite) TestPeerTracking() {
	conn := &mockConn{addr: ble.NewAddr("aa:bb:cc:dd:ee:ff"), gone: make(chan struct{})}

	s.tr.trackPeer(conn)
	s.tr.trackPeer(conn)
	s.Equal(int32(1), s.links.connected.Load())
	s.Equal(1, s.tr.Peers())

	close(conn.gone)
	s.Eventually(func() bool { return s.links.disconnected.Load() == 1 }, time.Second, time.Millisecond)
	s.Equal(0, s.tr.Peers())
}

func (s *TransportTestSuite) TestNativeLinkEvents() {
	s.tr.peerConnected("hci-0040")
	s.tr.peerConnected("hci-0041")
	s.Equal(int32(2), s.links.connected.Load())

	s.tr.peerDisconnected("hci-0040")
	s.Equal(int32(0), s.links.disconnected.Load())
	s.tr.peerDisconnected("hci-0041")
	s.tr.peerDisconnected("hci-0041")
	s.Equal(int32(1), s.links.disconnected.Load())
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}

func TestOpen_UsesDeviceFactory(t *testing.T) {
	original := DeviceFactory
	defer func() { DeviceFactory = original }()

	var handlers LinkHandlers
	DeviceFactory = func(links LinkHandlers) (ble.Device, error) {
		handlers = links
		return &MockBLEDevice{}, nil
	}

	links := &linkCounter{}
	tr, err := Open(DefaultConfig(), links, nil)
	require.NoError(t, err)
	defer tr.Close()

	require.NotNil(t, handlers.Connected)
	handlers.Connected("hci-0001")
	assert.Equal(t, int32(1), links.connected.Load())

	DeviceFactory = func(LinkHandlers) (ble.Device, error) {
		return nil, errors.New("can't init hci: no devices available")
	}
	_, err = Open(DefaultConfig(), links, nil)
	assert.ErrorIs(t, err, ErrBluetoothOff)
}
