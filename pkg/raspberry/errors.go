package raspberry

import "errors"

var (
	ErrInvalidParam = errors.New("invalid parameters")
	ErrNotSupported = errors.New("gpio is not supported on this platform")
)
