package processor

import (
	"github.com/pkg/errors"

	"github.com/herlein/rfsignal/pkg/detect"
	"github.com/herlein/rfsignal/pkg/quality"
)

// Capture defaults
const (
	DefaultMinSamples      = 30
	DefaultMaxSamples      = 2000
	DefaultMinPulseWidth   = 100 // us
	DefaultErrorTolerance  = 200 // us, replaced by the smoothing tolerance
	DefaultAcceptThreshold = quality.DefaultAcceptThreshold
)

// Config holds signal processor settings
type Config struct {
	MinSamples      int     // samples needed before a capture counts
	MaxSamples      int     // capacity of the raw and smoothed buffers
	MinPulseWidth   uint32  // us - shorter pulses are noise
	ErrorTolerance  uint32  // us - compression tolerance until smoothing sets one
	AcceptThreshold float64 // minimum overall quality for AcceptCapture
	Detect          detect.Options
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		MinSamples:      DefaultMinSamples,
		MaxSamples:      DefaultMaxSamples,
		MinPulseWidth:   DefaultMinPulseWidth,
		ErrorTolerance:  DefaultErrorTolerance,
		AcceptThreshold: DefaultAcceptThreshold,
		Detect:          detect.DefaultOptions(),
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.MinSamples < 2 {
		return errors.Wrap(ErrInvalidConfig, "min samples must be at least 2")
	}
	if c.MaxSamples < c.MinSamples {
		return errors.Wrapf(ErrInvalidConfig, "max samples %d below min samples %d", c.MaxSamples, c.MinSamples)
	}
	if c.AcceptThreshold < 0 || c.AcceptThreshold > 100 {
		return errors.Wrap(ErrInvalidConfig, "accept threshold must be in [0, 100]")
	}
	if err := c.Detect.Validate(); err != nil {
		return errors.Wrap(err, "detection options")
	}
	return nil
}

func (c Config) qualityOptions() quality.Options {
	return quality.Options{
		MinPulseWidth: c.MinPulseWidth,
		MinSamples:    c.MinSamples,
	}
}

// detectOptions applies the processor sample minimum to detection
func (c Config) detectOptions() detect.Options {
	opts := c.Detect
	opts.MinSamples = c.MinSamples
	return opts
}
