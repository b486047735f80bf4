package processor

import "github.com/pkg/errors"

// Processor errors
var (
	// ErrNotInitialized indicates Init has not allocated the sample buffers
	ErrNotInitialized = errors.New("signal buffers not initialized")

	// ErrAllocation indicates the sample pool could not serve the buffers
	ErrAllocation = errors.New("failed to allocate signal buffers")

	// ErrCaptureActive indicates a capture session is already running
	ErrCaptureActive = errors.New("capture in progress")

	// ErrNotCapturing indicates StopCapture was called without a running capture
	ErrNotCapturing = errors.New("no capture in progress")

	// ErrRadioBusy indicates the radio is transmitting
	ErrRadioBusy = errors.New("radio is transmitting")

	// ErrInsufficientSamples indicates too few samples for the operation
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrNoTransmitter indicates the processor was built without a transmitter
	ErrNoTransmitter = errors.New("no transmitter configured")

	// ErrInvalidConfig indicates a configuration value out of range
	ErrInvalidConfig = errors.New("invalid processor configuration")
)
