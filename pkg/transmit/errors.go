package transmit

import "github.com/pkg/errors"

// Transmitter errors
var (
	// ErrInvalidParameters indicates an empty, oversized or malformed request
	ErrInvalidParameters = errors.New("invalid transmission parameters")

	// ErrFrameTooLong indicates a replay that does not fit the radio's frame buffer
	ErrFrameTooLong = errors.Wrap(ErrInvalidParameters, "frame too long")

	// ErrNoTransmitPath indicates the radio can neither drive the data line nor send frames
	ErrNoTransmitPath = errors.New("radio has no transmit path")
)
