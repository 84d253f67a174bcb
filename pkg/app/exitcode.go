package app

import (
	"errors"

	"dypmon/pkg/cancel"
	"dypmon/pkg/framereader"
	"dypmon/pkg/port"
)

var (
	ErrUsage  = errors.New("usage")
	ErrConfig = errors.New("invalid configuration")
)

// exit codes of the application
const (
	ExitOK = iota
	ExitUsage
	ExitCancelSetup
	ExitOpen
	ExitGetConfig
	ExitSetConfig
	ExitSetTimeouts
	ExitRead
)

// ExitCode maps the error returned by Run to the process exit code.
// Usage and configuration errors exit with ExitUsage.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, cancel.ErrArmed), errors.Is(err, cancel.ErrNoCloser):
		return ExitCancelSetup
	case errors.Is(err, port.ErrOpen):
		return ExitOpen
	case errors.Is(err, port.ErrGetConfig):
		return ExitGetConfig
	case errors.Is(err, port.ErrSetConfig):
		return ExitSetConfig
	case errors.Is(err, port.ErrSetTimeouts):
		return ExitSetTimeouts
	case errors.Is(err, framereader.ErrRead):
		return ExitRead
	default:
		return ExitUsage
	}
}
