// Package port holds the handle of a physical serial port.
//
// A Handle owns one opened serial port. The state moves from Uninitialized to Open
// and from Open to Closed exactly once; a closed handle is never reopened.
// Close may be called from any goroutine, a pending Read returns as soon as the port is closed.
package port

import (
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/womat/debug"
	"go.bug.st/serial"
)

// StateType represents the state of a port handle.
type StateType int32

const (
	// Uninitialized indicates a handle without an acquired port.
	Uninitialized StateType = iota
	// Open indicates a configured port which is ready to read.
	Open
	// Closed indicates a released port. This state is terminal.
	Closed
)

func (s StateType) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

var (
	ErrOpen        = errors.New("can not open port")
	ErrGetConfig   = errors.New("can not get port params")
	ErrSetConfig   = errors.New("can not set port params")
	ErrSetTimeouts = errors.New("can not set port timeouts")
	ErrState       = errors.New("invalid port state")
)

// Opener opens a serial port, serial.Open is the default.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

// Handle is the exclusively owned serial port.
type Handle struct {
	opener Opener
	// port is written once before state becomes Open.
	port     serial.Port
	name     string
	timeouts Timeouts
	state    int32
}

// New creates an uninitialized handle. If opener is nil, serial.Open is used.
func New(opener Opener) *Handle {
	if opener == nil {
		opener = serial.Open
	}
	return &Handle{opener: opener}
}

// Open acquires and configures the port.
// The steps are open, get port params, set port params and set timeouts;
// each failing step returns its own error (ErrOpen, ErrGetConfig, ErrSetConfig, ErrSetTimeouts).
func (h *Handle) Open(name string, c Config) error {
	if s := h.State(); s != Uninitialized {
		return fmt.Errorf("%w: port %s is %v", ErrState, name, s)
	}

	debug.InfoLog.Printf("opening port: %s", name)
	p, err := h.opener(name, defaultMode())
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrOpen, name, err)
	}

	fail := func(step error, err error) error {
		_ = p.Close()
		atomic.StoreInt32(&h.state, int32(Closed))
		return fmt.Errorf("%w: %w", step, err)
	}

	debug.InfoLog.Print("get port params")
	bits, err := p.GetModemStatusBits()
	switch {
	case err == nil:
		debug.DebugLog.Printf("modem status: %+v", *bits)
	case noModemLines(err):
		debug.DebugLog.Printf("port %s has no modem lines: %v", name, err)
	default:
		return fail(ErrGetConfig, err)
	}

	debug.InfoLog.Printf("set port params: %v baud, %v data bits, parity %v, stop bits %v",
		c.BaudRate, c.DataBits, c.Parity, c.StopBits)
	mode, err := c.Mode()
	if err != nil {
		return fail(ErrSetConfig, err)
	}
	if err = p.SetMode(mode); err != nil {
		return fail(ErrSetConfig, err)
	}

	debug.InfoLog.Print("setup port timeout params")
	if err = c.Timeouts.validate(); err != nil {
		return fail(ErrSetTimeouts, err)
	}
	if err = p.SetReadTimeout(c.Timeouts.total(1)); err != nil {
		return fail(ErrSetTimeouts, err)
	}

	h.port = p
	h.name = name
	h.timeouts = c.Timeouts
	atomic.StoreInt32(&h.state, int32(Open))
	return nil
}

// defaultMode is the line setting the device is opened with, the configured one is set afterwards.
func defaultMode() *serial.Mode {
	return &serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
}

// noModemLines reports whether err means the device can't report modem lines,
// e.g. a pty or a virtual port. Its line settings can still be set.
func noModemLines(err error) bool {
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) {
		return true
	}

	var pe *serial.PortError
	return errors.As(err, &pe) && pe.Code() == serial.InvalidSerialPort
}

// Read reads up to len(b) bytes.
// The whole read is bounded by ReadTotalConstant + ReadTotalMultiplier*len(b).
// After the first byte is received, the read returns as soon as the line is silent
// for ReadInterval or b is full. A read without data returns 0, nil.
func (h *Handle) Read(b []byte) (int, error) {
	if !h.IsOpen() {
		return 0, fmt.Errorf("%w: port is %v", ErrState, h.State())
	}
	if len(b) == 0 {
		return 0, nil
	}

	t := h.timeouts
	deadline := time.Now().Add(t.total(len(b)))

	if err := h.port.SetReadTimeout(t.total(len(b))); err != nil {
		return 0, err
	}

	n, err := h.port.Read(b)
	if err != nil || n == 0 {
		return n, err
	}

	for n < len(b) {
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		if t.ReadInterval > 0 && t.ReadInterval < wait {
			wait = t.ReadInterval
		}

		if err = h.port.SetReadTimeout(wait); err != nil {
			return n, err
		}

		m, err := h.port.Read(b[n:])
		if err != nil {
			return n, err
		}
		if m == 0 {
			break
		}
		n += m
	}

	return n, nil
}

// Close releases the port. Only the first call on an open handle closes the port,
// all other calls are no-ops.
func (h *Handle) Close() error {
	if !atomic.CompareAndSwapInt32(&h.state, int32(Open), int32(Closed)) {
		return nil
	}

	debug.InfoLog.Printf("close port %s", h.name)
	return h.port.Close()
}

// State returns the current state of the handle.
func (h *Handle) State() StateType {
	return StateType(atomic.LoadInt32(&h.state))
}

// IsOpen reports whether the handle can be read.
func (h *Handle) IsOpen() bool {
	return h.State() == Open
}

// Name returns the name of the opened port.
func (h *Handle) Name() string {
	return h.name
}
