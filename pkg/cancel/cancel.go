// Package cancel stops a blocking read loop on an operator interrupt.
//
// The Controller waits for termination signals (Ctrl-C, Ctrl-Break, console close, SIGTERM, SIGHUP).
// The first signal sets the shared Flag and then closes the port, which unblocks a pending read.
// The loop polls the Flag before each read and again after a failed read, so a read error caused
// by the close is never treated as fatal.
package cancel

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/womat/debug"
)

var (
	ErrArmed    = errors.New("cancel controller already armed")
	ErrNoCloser = errors.New("cancel controller has nothing to close")
)

// Flag is a terminal boolean, once set it never reverts.
type Flag struct {
	v atomic.Bool
}

// Set sets the flag.
func (f *Flag) Set() {
	f.v.Store(true)
}

// IsSet reports whether the flag is set.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}

// DefaultSignals are the notifications which trip the controller.
// On Windows Ctrl-C and Ctrl-Break arrive as os.Interrupt and a console close as SIGTERM.
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

// Controller trips the cancel flag and closes the port on the first received signal.
type Controller struct {
	flag   *Flag
	closer io.Closer

	armed   atomic.Bool
	tripped atomic.Bool

	// C receives the notifications, it is exported to inject signals in tests.
	C    chan os.Signal
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewController returns an unarmed controller for flag and closer.
func NewController(flag *Flag, closer io.Closer) *Controller {
	return &Controller{
		flag:   flag,
		closer: closer,
		C:      make(chan os.Signal, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Arm registers for the given signals (DefaultSignals if none) and starts watching.
// A controller can only be armed once.
func (c *Controller) Arm(sig ...os.Signal) error {
	if c.flag == nil || c.closer == nil {
		return ErrNoCloser
	}
	if !c.armed.CompareAndSwap(false, true) {
		return ErrArmed
	}

	if len(sig) == 0 {
		sig = DefaultSignals
	}

	// signals stay registered until Disarm, so the default action (exit) is suppressed
	signal.Notify(c.C, sig...)
	go c.watch()
	return nil
}

func (c *Controller) watch() {
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			return
		case s := <-c.C:
			if c.Trip() {
				debug.InfoLog.Printf("got %v signal, close port", s)
				continue
			}
			debug.DebugLog.Printf("got %v signal, already cancelled", s)
		}
	}
}

// Trip sets the flag and closes the port. Only the first call has an effect,
// Trip reports whether this call tripped the controller.
func (c *Controller) Trip() bool {
	if !c.tripped.CompareAndSwap(false, true) {
		return false
	}

	// the flag must be visible before the port is closed
	c.flag.Set()
	if err := c.closer.Close(); err != nil {
		debug.ErrorLog.Printf("close port: %v", err)
	}
	return true
}

// Tripped reports whether a signal has been received.
func (c *Controller) Tripped() bool {
	return c.tripped.Load()
}

// Disarm stops the signal delivery and waits until the watcher has stopped.
func (c *Controller) Disarm() {
	c.once.Do(func() {
		if !c.armed.Load() {
			return
		}
		signal.Stop(c.C)
		close(c.quit)
		<-c.done
	})
}
