// Package framereader reads sensor frames from a port until it is cancelled.
package framereader

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"dypmon/pkg/cancel"
	"dypmon/pkg/dyp"

	"github.com/womat/debug"
)

func init() {
	debug.SetDebug(os.Stderr, debug.Standard)
}

var (
	ErrRead = errors.New("read error")
)

// Port is the timed reader the frames are read from.
// Read must return within its timeout, a read without data returns 0, nil.
type Port interface {
	Read(b []byte) (int, error)
	IsOpen() bool
}

// Reading is the result of one read.
type Reading struct {
	Time time.Time
	// Raw are the received bytes.
	Raw []byte
	// Measurement is nil if less than a frame was received.
	Measurement *dyp.Measurement
}

// Reporter receives the readings in the order the bytes were received.
type Reporter interface {
	Report(Reading)
}

// Stats are the counters of a reader.
type Stats struct {
	Reads      uint64 `json:"reads"`
	Frames     uint64 `json:"frames"`
	Valid      uint64 `json:"valid"`
	Invalid    uint64 `json:"invalid"`
	Incomplete uint64 `json:"incomplete"`
}

// Reader drives the read, decode, report cycle.
type Reader struct {
	port     Port
	cancel   *cancel.Flag
	reporter Reporter
	buffer   []byte

	sl    sync.Mutex
	stats Stats
}

// New initials a new reader.
func New(port Port, flag *cancel.Flag, reporter Reporter) *Reader {
	return &Reader{
		port:     port,
		cancel:   flag,
		reporter: reporter,
		buffer:   make([]byte, dyp.BufferSize),
	}
}

// Run reads frames until the cancel flag is set or the port is closed, both return nil.
// Any other read failure is fatal and returned as ErrRead.
func (r *Reader) Run() error {
	debug.InfoLog.Print("start read")
	defer debug.InfoLog.Print("stop read")

	for {
		if r.cancel.IsSet() || !r.port.IsOpen() {
			return nil
		}

		n, err := r.port.Read(r.buffer)
		if err != nil {
			if r.cancel.IsSet() {
				debug.DebugLog.Printf("read cancelled: %v", err)
				return nil
			}
			return fmt.Errorf("%w: %w", ErrRead, err)
		}

		r.count(func(s *Stats) { s.Reads++ })
		if n == 0 {
			continue
		}

		r.report(r.buffer[:n])
	}
}

func (r *Reader) report(b []byte) {
	debug.TraceLog.Printf("read %v byte(s): %v", len(b), hex.EncodeToString(b))

	reading := Reading{
		Time: time.Now(),
		Raw:  append([]byte(nil), b...),
	}

	f, err := dyp.Decode(b, len(b))
	switch {
	case err != nil:
		debug.DebugLog.Printf("%v: %v byte(s)", err, len(b))
		r.count(func(s *Stats) { s.Incomplete++ })
	default:
		m := f.Measurement(reading.Time)
		reading.Measurement = &m
		r.count(func(s *Stats) {
			s.Frames++
			if m.Valid {
				s.Valid++
			} else {
				s.Invalid++
			}
		})
	}

	r.reporter.Report(reading)
}

func (r *Reader) count(f func(*Stats)) {
	r.sl.Lock()
	f(&r.stats)
	r.sl.Unlock()
}

// Stats returns a copy of the counters.
func (r *Reader) Stats() Stats {
	r.sl.Lock()
	defer r.sl.Unlock()
	return r.stats
}
