package transmit

import "time"

// Delayer blocks for a duration
type Delayer interface {
	Delay(d time.Duration)
}

// DelayFunc adapts a function to Delayer
type DelayFunc func(d time.Duration)

// Delay calls f(d)
func (f DelayFunc) Delay(d time.Duration) {
	f(d)
}

// Precision waits with sub-millisecond accuracy. Durations below SpinBelow
// are busy-waited; longer ones sleep for all but SpinWindow and busy-wait the
// remainder.
type Precision struct {
	SpinBelow  time.Duration
	SpinWindow time.Duration
}

// DefaultPrecision returns the delay used for bit-banged transmission
func DefaultPrecision() Precision {
	return Precision{
		SpinBelow:  DefaultSpinThreshold,
		SpinWindow: DefaultSpinWindow,
	}
}

// Delay returns once at least d has elapsed
func (p Precision) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	if d >= p.SpinBelow && d > p.SpinWindow {
		time.Sleep(d - p.SpinWindow)
	}
	for time.Since(start) < d {
	}
}

// PrecisionDelay waits for d using DefaultPrecision
func PrecisionDelay(d time.Duration) {
	DefaultPrecision().Delay(d)
}
