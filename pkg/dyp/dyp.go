// Package dyp is the decoder of the UART output frames of a DYP-A11 ultrasonic ranging sensor.
//
// Each frame consists of four bytes:
//  [header][distance high byte][distance low byte][checksum]
// The checksum is the low byte of the sum of the first three bytes.
package dyp

import (
	"errors"
	"time"
)

const (
	// Header is the start byte the sensor sends in front of each frame.
	Header = 0xFF
	// FrameSize is the size of one measurement frame.
	FrameSize = 4
	// BufferSize is the number of bytes requested by one read.
	BufferSize = 64
)

var (
	ErrIncomplete = errors.New("incomplete frame")
)

// Frame is one measurement frame of the sensor.
type Frame struct {
	Header       byte
	DistanceHigh byte
	DistanceLow  byte
	Checksum     byte
}

// Measurement is the decoded and validated content of a frame.
type Measurement struct {
	Time     time.Time `json:"time"`
	Distance int       `json:"distance"`
	Valid    bool      `json:"valid"`
	Header   byte      `json:"header"`
	Checksum byte      `json:"checksum"`
}

// Decode extracts the first frame of b. n is the number of valid bytes in b,
// bytes beyond n are not read. Bytes after the first frame are ignored.
// If less than FrameSize bytes are available, ErrIncomplete is returned.
func Decode(b []byte, n int) (Frame, error) {
	if n > len(b) {
		n = len(b)
	}

	if n < FrameSize {
		return Frame{}, ErrIncomplete
	}

	return Frame{
		Header:       b[0],
		DistanceHigh: b[1],
		DistanceLow:  b[2],
		Checksum:     b[3],
	}, nil
}

// Encode builds a frame with a matching checksum.
func Encode(header byte, distance uint16) Frame {
	f := Frame{
		Header:       header,
		DistanceHigh: byte(distance >> 8),
		DistanceLow:  byte(distance),
	}
	f.Checksum = f.Sum()
	return f
}

// Distance returns the measured distance (high byte * 256 + low byte).
func (f Frame) Distance() int {
	return int(f.DistanceHigh)*256 + int(f.DistanceLow)
}

// Sum returns the checksum computed over header and distance bytes (modulo 256).
func (f Frame) Sum() byte {
	return byte((int(f.Header) + int(f.DistanceHigh) + int(f.DistanceLow)) & 0xFF)
}

// Valid reports whether the received checksum matches the computed one.
func (f Frame) Valid() bool {
	return f.Sum() == f.Checksum
}

// Bytes returns the wire representation of the frame.
func (f Frame) Bytes() []byte {
	return []byte{f.Header, f.DistanceHigh, f.DistanceLow, f.Checksum}
}

// Measurement converts the frame into a time stamped measurement.
func (f Frame) Measurement(t time.Time) Measurement {
	return Measurement{
		Time:     t,
		Distance: f.Distance(),
		Valid:    f.Valid(),
		Header:   f.Header,
		Checksum: f.Checksum,
	}
}
