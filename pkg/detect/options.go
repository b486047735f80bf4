// Package detect finds repeating patterns in pulse trains, matches them
// against known remote-control protocol timings and estimates their spectral
// properties.
package detect

import "github.com/pkg/errors"

// Detection defaults
const (
	DefaultMinSamples            = 30
	DefaultMaxPatternLength      = 64
	DefaultMinPatternConfidence  = 0.85
	DefaultMinRepeats            = 2
	DefaultMinProtocolConfidence = 0.75
	DefaultPatternTolerance      = 0.10 // relative, per element

	// minPatternLength is the shortest repeat unit considered
	minPatternLength = 4
)

// ErrInvalidOptions indicates detection options out of range
var ErrInvalidOptions = errors.New("invalid detection options")

// Options tunes pattern and protocol detection
type Options struct {
	MinSamples            int
	MaxPatternLength      int
	MinPatternConfidence  float64
	MinRepeats            int // windows needed before a pattern is valid
	MinProtocolConfidence float64
	PatternTolerance      float64
}

// DefaultOptions returns Options with default values
func DefaultOptions() Options {
	return Options{
		MinSamples:            DefaultMinSamples,
		MaxPatternLength:      DefaultMaxPatternLength,
		MinPatternConfidence:  DefaultMinPatternConfidence,
		MinRepeats:            DefaultMinRepeats,
		MinProtocolConfidence: DefaultMinProtocolConfidence,
		PatternTolerance:      DefaultPatternTolerance,
	}
}

// Validate checks the options for errors
func (o Options) Validate() error {
	if o.MinSamples < 2 {
		return errors.Wrap(ErrInvalidOptions, "min samples must be at least 2")
	}
	if o.MaxPatternLength < minPatternLength {
		return errors.Wrapf(ErrInvalidOptions, "max pattern length must be at least %d", minPatternLength)
	}
	if o.MinRepeats < 2 {
		return errors.Wrap(ErrInvalidOptions, "min repeats must be at least 2")
	}
	if o.MinPatternConfidence <= 0 || o.MinPatternConfidence > 1 {
		return errors.Wrap(ErrInvalidOptions, "min pattern confidence must be in (0, 1]")
	}
	if o.MinProtocolConfidence <= 0 || o.MinProtocolConfidence > 1 {
		return errors.Wrap(ErrInvalidOptions, "min protocol confidence must be in (0, 1]")
	}
	if o.PatternTolerance <= 0 || o.PatternTolerance >= 1 {
		return errors.Wrap(ErrInvalidOptions, "pattern tolerance must be in (0, 1)")
	}
	return nil
}
