package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dypmon/pkg/app/config"
	"dypmon/pkg/cancel"
	"dypmon/pkg/dyp"
	"dypmon/pkg/framereader"
	"dypmon/pkg/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/womat/debug"
	"go.bug.st/serial"
)

func init() {
	debug.SetDebug(io.Discard, 0)
}

// fakeSerial delivers queued frames, a read without frame times out.
type fakeSerial struct {
	serial.Port

	frames  chan []byte
	closed  chan struct{}
	once    sync.Once
	closes  atomic.Int32
	reads   atomic.Int32
	timeout atomic.Int64

	readErr  error
	modemErr error
}

func newFakeSerial() *fakeSerial {
	return &fakeSerial{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakeSerial) Read(b []byte) (int, error) {
	p.reads.Add(1)
	if p.readErr != nil {
		return 0, p.readErr
	}

	timer := time.NewTimer(time.Duration(p.timeout.Load()))
	defer timer.Stop()

	select {
	case <-p.closed:
		return 0, errors.New("port has been closed")
	case f := <-p.frames:
		return copy(b, f), nil
	case <-timer.C:
		return 0, nil
	}
}

func (p *fakeSerial) Close() error {
	p.closes.Add(1)
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakeSerial) SetMode(*serial.Mode) error { return nil }

func (p *fakeSerial) SetReadTimeout(t time.Duration) error {
	p.timeout.Store(int64(t))
	return nil
}

func (p *fakeSerial) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	if p.modemErr != nil {
		return nil, p.modemErr
	}
	return &serial.ModemStatusBits{}, nil
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	c := config.NewConfig()
	c.Flag.Port = "COM3"
	c.Port = port.DefaultConfig()
	return c
}

func newTestApp(t *testing.T, c *config.Config, p *fakeSerial) (*App, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	opener := func(string, *serial.Mode) (serial.Port, error) { return p, nil }
	a, err := newApp(c, opener, out)
	require.NoError(t, err)
	return a, out
}

func runAsync(a *App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	return done
}

func TestRunUntilInterrupt(t *testing.T) {
	p := newFakeSerial()
	a, out := newTestApp(t, testConfig(), p)
	defer func() { _ = a.Close() }()

	done := runAsync(a)

	// a frame is followed by silence, otherwise the port joins the bytes to one read
	for i, f := range [][]byte{{0x02, 0x01, 0x2C, 0x2F}, {0x02, 0x01, 0x2C, 0x00}, {0xFF}} {
		p.frames <- f
		lines := i + 1
		require.Eventually(t, func() bool { return strings.Count(out.String(), "\n") == lines }, 2*time.Second, time.Millisecond)
	}

	// the operator presses Ctrl-C while the reader waits for data
	a.controller.C <- os.Interrupt

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, ExitOK, ExitCode(err))
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after interrupt")
	}

	assert.Equal(t, "0x02 0x01 0x2C 0x2F , distance=300, check sum OK\n"+
		"0x02 0x01 0x2C 0x00 , distance=300, check sum FAILED\n"+
		"0xFF , incomplete frame\n", out.String())
	assert.True(t, a.cancel.IsSet())
	assert.Equal(t, port.Closed, a.port.State())

	require.NoError(t, a.Close())
	assert.Equal(t, int32(1), p.closes.Load(), "port must be closed exactly once")
}

func TestRunNoReadsAfterCancel(t *testing.T) {
	p := newFakeSerial()
	a, _ := newTestApp(t, testConfig(), p)
	defer func() { _ = a.Close() }()

	done := runAsync(a)
	assert.Eventually(t, func() bool { return p.reads.Load() > 0 }, time.Second, time.Millisecond)

	require.True(t, a.controller.Trip())
	require.NoError(t, <-done)

	reads := p.reads.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, reads, p.reads.Load())
}

func TestRunFatalReadError(t *testing.T) {
	p := newFakeSerial()
	p.readErr = errors.New("the device does not recognize the command")
	a, out := newTestApp(t, testConfig(), p)
	defer func() { _ = a.Close() }()

	err := a.Run()
	assert.ErrorIs(t, err, framereader.ErrRead)
	assert.Equal(t, ExitRead, ExitCode(err))
	assert.Empty(t, out.String())
}

func TestRunSetupErrors(t *testing.T) {
	errSys := errors.New("access is denied")

	t.Run("open", func(t *testing.T) {
		a, err := newApp(testConfig(), func(string, *serial.Mode) (serial.Port, error) { return nil, errSys }, io.Discard)
		require.NoError(t, err)
		defer func() { _ = a.Close() }()

		err = a.Run()
		assert.ErrorIs(t, err, errSys)
		assert.Equal(t, ExitOpen, ExitCode(err))
	})

	t.Run("get config", func(t *testing.T) {
		p := newFakeSerial()
		p.modemErr = errSys
		a, _ := newTestApp(t, testConfig(), p)
		defer func() { _ = a.Close() }()

		assert.Equal(t, ExitGetConfig, ExitCode(a.Run()))
	})

	t.Run("set config", func(t *testing.T) {
		c := testConfig()
		c.Port.DataBits = 9
		a, _ := newTestApp(t, c, newFakeSerial())
		defer func() { _ = a.Close() }()

		assert.Equal(t, ExitSetConfig, ExitCode(a.Run()))
	})

	t.Run("set timeouts", func(t *testing.T) {
		c := testConfig()
		c.Port.Timeouts.ReadTotalConstant = 0
		c.Port.Timeouts.ReadTotalMultiplier = 0
		a, _ := newTestApp(t, c, newFakeSerial())
		defer func() { _ = a.Close() }()

		assert.Equal(t, ExitSetTimeouts, ExitCode(a.Run()))
	})

	t.Run("cancel setup", func(t *testing.T) {
		a, _ := newTestApp(t, testConfig(), newFakeSerial())
		defer func() { _ = a.Close() }()

		// the controller is already armed
		require.NoError(t, a.controller.Arm())
		assert.Equal(t, ExitCancelSetup, ExitCode(a.Run()))
		assert.Equal(t, port.Uninitialized, a.port.State())
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{fmt.Errorf("%w: two arguments", ErrUsage), 1},
		{fmt.Errorf("%w: bad yaml", ErrConfig), 1},
		{cancel.ErrArmed, 2},
		{fmt.Errorf("%w COM9: not found", port.ErrOpen), 3},
		{fmt.Errorf("%w: x", port.ErrGetConfig), 4},
		{fmt.Errorf("%w: x", port.ErrSetConfig), 5},
		{fmt.Errorf("%w: x", port.ErrSetTimeouts), 6},
		{fmt.Errorf("%w: x", framereader.ErrRead), 7},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestPublishDue(t *testing.T) {
	t0 := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	last := dyp.Measurement{Time: t0, Distance: 300, Valid: true}

	tests := []struct {
		name string
		last dyp.Measurement
		m    dyp.Measurement
		want bool
	}{
		{"first", dyp.Measurement{}, dyp.Measurement{Time: t0, Distance: 1}, true},
		{"unchanged", last, dyp.Measurement{Time: t0.Add(time.Second), Distance: 305}, false},
		{"distance increased", last, dyp.Measurement{Time: t0.Add(time.Second), Distance: 310}, true},
		{"distance decreased", last, dyp.Measurement{Time: t0.Add(time.Second), Distance: 290}, true},
		{"interval elapsed", last, dyp.Measurement{Time: t0.Add(time.Minute), Distance: 300}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publishDue(tt.last, tt.m, time.Minute, 10))
		})
	}
}

func TestReportPublishesValidMeasurements(t *testing.T) {
	c := testConfig()
	c.MQTT.Connection = "tcp://127.0.0.1:1883"
	c.MQTT.Interval = time.Minute
	a, out := newTestApp(t, c, newFakeSerial())

	now := time.Now()
	valid := dyp.Encode(dyp.Header, 300).Measurement(now)
	invalid := dyp.Measurement{Time: now, Distance: 900}

	a.Report(framereader.Reading{Time: now, Raw: []byte{0xFF, 0x01, 0x2C, 0x2C}, Measurement: &valid})
	a.Report(framereader.Reading{Time: now, Raw: []byte{0xFF, 0x03, 0x84, 0x00}, Measurement: &invalid})
	a.Report(framereader.Reading{Time: now, Raw: []byte{0xFF}})

	require.Len(t, a.mqtt.C, 1)
	msg := <-a.mqtt.C
	assert.Equal(t, "dypmon/distance", msg.Topic)

	var got dyp.Measurement
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, 300, got.Distance)
	assert.True(t, got.Valid)

	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	assert.Equal(t, []byte{0xFF}, a.lastReading().Raw)
}

func TestWebServices(t *testing.T) {
	c := testConfig()
	c.Webserver.URL = "http://127.0.0.1:4000"
	c.Webserver.Webservices["health"] = false
	a, _ := newTestApp(t, c, newFakeSerial())
	a.initDefaultRoutes()

	m := dyp.Encode(dyp.Header, 1500).Measurement(time.Now())
	a.Report(framereader.Reading{Time: m.Time, Raw: dyp.Encode(dyp.Header, 1500).Bytes(), Measurement: &m})

	resp, err := a.web.Test(httptest.NewRequest("GET", "/data", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var data struct {
		State       string
		Raw         string
		Measurement dyp.Measurement
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	assert.Equal(t, "uninitialized", data.State)
	assert.Equal(t, "ff05dce0", data.Raw)
	assert.Equal(t, 1500, data.Measurement.Distance)

	resp, err = a.web.Test(httptest.NewRequest("GET", "/version", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = a.web.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestNewInvalidURL(t *testing.T) {
	c := testConfig()
	c.Webserver.URL = "http://[::1"
	_, err := New(c)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "dypmon V1.0.00", Version())
}
