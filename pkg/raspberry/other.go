//go:build !linux

package raspberry

// Chip is not available outside linux.
type Chip struct{}

// Line is not available outside linux.
type Line struct{}

// Open returns ErrNotSupported.
func Open(string) (*Chip, error) {
	return nil, ErrNotSupported
}

// PowerOn returns ErrNotSupported.
func (c *Chip) PowerOn(int, bool) (*Line, error) {
	return nil, ErrNotSupported
}

func (c *Chip) Close() error { return nil }

func (l *Line) Close() error { return nil }
