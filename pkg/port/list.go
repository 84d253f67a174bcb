package port

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// Info describes a serial port found on the system.
type Info struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial,omitempty"`
	Product      string `json:"product,omitempty"`
}

// String formats the port like "/dev/ttyUSB0 (USB 1a86:7523 CH340)".
func (i Info) String() string {
	if !i.IsUSB {
		return i.Name
	}

	s := fmt.Sprintf("%s (USB %s:%s", i.Name, i.VID, i.PID)
	if i.Product != "" {
		s += " " + i.Product
	}
	if i.SerialNumber != "" {
		s += " S/N " + i.SerialNumber
	}
	return s + ")"
}

// List returns the serial ports of the system.
func List() ([]Info, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	l := make([]Info, 0, len(ports))
	for _, p := range ports {
		l = append(l, Info{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return l, nil
}
