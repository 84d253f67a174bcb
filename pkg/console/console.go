// Package console prints the readings of the sensor.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"dypmon/pkg/dyp"
	"dypmon/pkg/framereader"
)

// Printer writes one line per reading:
//  0x02 0x01 0x2C 0x2F , distance=300, check sum OK
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Report prints the reading.
func (p *Printer) Report(r framereader.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, Line(r.Raw, r.Measurement))
}

// Line formats the raw bytes as hex dump followed by distance and checksum verdict.
// If m is nil, the frame is reported as incomplete.
func Line(raw []byte, m *dyp.Measurement) string {
	var sb strings.Builder
	for _, b := range raw {
		fmt.Fprintf(&sb, "0x%02X ", b)
	}

	if m == nil {
		sb.WriteString(", incomplete frame")
		return sb.String()
	}

	fmt.Fprintf(&sb, ", distance=%d, check sum %s", m.Distance, Verdict(m.Valid))
	return sb.String()
}

// Verdict returns OK or FAILED.
func Verdict(valid bool) string {
	if valid {
		return "OK"
	}
	return "FAILED"
}
