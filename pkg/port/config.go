package port

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Config defines the line settings and timeouts of a serial port.
type Config struct {
	BaudRate int
	DataBits int
	// Parity is one of none, odd, even, mark, space.
	Parity string
	// StopBits is one of 1, 1.5, 2.
	StopBits string
	Timeouts Timeouts
}

// Timeouts defines the read and write timeouts of a port.
// A read is bounded by ReadTotalConstant + ReadTotalMultiplier * requested bytes,
// ReadInterval is the max line silence between two received bytes.
// The write timeouts are kept for completeness, the port is never written.
type Timeouts struct {
	ReadInterval         time.Duration
	ReadTotalConstant    time.Duration
	ReadTotalMultiplier  time.Duration
	WriteTotalConstant   time.Duration
	WriteTotalMultiplier time.Duration
}

// DefaultConfig returns 9600 baud, 8 data bits, no parity, one stop bit
// and the timeouts of the DYP-A11 tooling.
func DefaultConfig() Config {
	return Config{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   "none",
		StopBits: "1",
		Timeouts: Timeouts{
			ReadInterval:         50 * time.Millisecond,
			ReadTotalConstant:    50 * time.Millisecond,
			ReadTotalMultiplier:  50 * time.Millisecond,
			WriteTotalConstant:   50 * time.Millisecond,
			WriteTotalMultiplier: 10 * time.Millisecond,
		},
	}
}

// Mode converts the config to a serial.Mode.
func (c Config) Mode() (*serial.Mode, error) {
	if c.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %v", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %v", c.DataBits)
	}

	m := serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}

	switch strings.ToLower(c.Parity) {
	case "", "none", "n":
		m.Parity = serial.NoParity
	case "odd", "o":
		m.Parity = serial.OddParity
	case "even", "e":
		m.Parity = serial.EvenParity
	case "mark", "m":
		m.Parity = serial.MarkParity
	case "space", "s":
		m.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", c.Parity)
	}

	switch c.StopBits {
	case "", "1":
		m.StopBits = serial.OneStopBit
	case "1.5":
		m.StopBits = serial.OnePointFiveStopBits
	case "2":
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %q", c.StopBits)
	}

	return &m, nil
}

func (t Timeouts) validate() error {
	switch {
	case t.ReadInterval < 0, t.ReadTotalConstant < 0, t.ReadTotalMultiplier < 0,
		t.WriteTotalConstant < 0, t.WriteTotalMultiplier < 0:
		return fmt.Errorf("negative timeout in %+v", t)
	case t.ReadTotalConstant == 0 && t.ReadTotalMultiplier == 0:
		// a read without total timeout would block forever and starve the cancel check
		return fmt.Errorf("read total timeout must not be zero")
	}
	return nil
}

// total returns the total read timeout for n requested bytes.
func (t Timeouts) total(n int) time.Duration {
	return t.ReadTotalConstant + t.ReadTotalMultiplier*time.Duration(n)
}
