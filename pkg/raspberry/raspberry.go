//go:build linux

// Package raspberry drives the power supply line of the sensor on a gpio chip.
package raspberry

import (
	"fmt"

	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
}

// Line represents a single requested output line.
type Line struct {
	gpiodLine *gpiod.Line
	offset    int
}

// Open opens a GPIO character device, e.g. gpiochip0.
func Open(name string) (*Chip, error) {
	c, err := gpiod.NewChip(name, gpiod.WithConsumer("dypmon"))
	if err != nil {
		return nil, fmt.Errorf("can't open gpio chip %s: %w", name, err)
	}
	return &Chip{gpiodChip: c}, nil
}

// PowerOn requests the line as output and drives it active.
// Control is maintained until the Line is closed.
func (c *Chip) PowerOn(offset int, activeLow bool) (*Line, error) {
	if offset < 0 {
		return nil, ErrInvalidParam
	}

	opts := []gpiod.LineReqOption{gpiod.AsOutput(1)}
	if activeLow {
		opts = append(opts, gpiod.AsActiveLow)
	}

	l, err := c.gpiodChip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("can't request gpio line %v: %w", offset, err)
	}

	debug.InfoLog.Printf("sensor power on (gpio line %v)", offset)
	return &Line{gpiodLine: l, offset: offset}, nil
}

// Close releases the Chip.
//
// It does not release any lines which may be requested - they must be closed
// independently.
func (c *Chip) Close() error {
	return c.gpiodChip.Close()
}

// Close drives the line inactive and releases it.
func (l *Line) Close() error {
	if err := l.gpiodLine.SetValue(0); err != nil {
		debug.ErrorLog.Printf("can't switch off gpio line %v: %v", l.offset, err)
	}
	debug.InfoLog.Printf("sensor power off (gpio line %v)", l.offset)
	return l.gpiodLine.Close()
}
