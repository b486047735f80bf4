// Package transmit replays pulse timings and Manchester-encoded data through a
// radio, either by driving its async data line from the host or by handing it
// a buffered OOK frame.
package transmit

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/herlein/rfsignal/pkg/metrics"
	"github.com/herlein/rfsignal/pkg/pulse"
)

// Transmission defaults
const (
	DefaultGuardTime     = 10 * time.Millisecond
	DefaultMinFreeMemory = 10240 // bytes
	DefaultMaxSamples    = 2000
	DefaultSpinThreshold = 100 * time.Microsecond
	DefaultSpinWindow    = time.Millisecond

	// minBitTime is the shortest bit time in microseconds that still has two halves
	minBitTime = 2
)

// Transmission modes, used as metric labels
const (
	ModeRaw    = "raw"
	ModeBinary = "binary"
)

// Radio switches the transceiver between receive and transmit
type Radio interface {
	SetTx() error
	SetRx() error
}

// LineDriver is a radio whose async TX data line is driven by the host
type LineDriver interface {
	SetLevel(high bool) error
}

// FrameSender is a radio that clocks out a buffered bitstream itself
type FrameSender interface {
	SendFrame(bits []byte, symbol time.Duration, repeat int) error
}

// FrameLimiter is a FrameSender whose frame buffer holds at most
// MaxFrameBytes bytes. Longer raw replays are rejected before TX is keyed.
type FrameLimiter interface {
	MaxFrameBytes() int
}

// MemoryMonitor reports sample pool headroom and can defragment it
type MemoryMonitor interface {
	FreeBytes() int
	Defragment()
}

// Config holds transmitter settings
type Config struct {
	GuardTime     time.Duration // line low before and after every repetition
	MinFreeMemory int           // defragment first when the pool has less free
	MaxSamples    int           // longest accepted timing sequence
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		GuardTime:     DefaultGuardTime,
		MinFreeMemory: DefaultMinFreeMemory,
		MaxSamples:    DefaultMaxSamples,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.GuardTime < 0 {
		return errors.Wrap(ErrInvalidParameters, "guard time must not be negative")
	}
	if c.MaxSamples <= 0 {
		return errors.Wrap(ErrInvalidParameters, "max samples must be positive")
	}
	return nil
}

// Transmitter sends timings through a radio. Only one transmission runs at a
// time.
type Transmitter struct {
	cfg     Config
	radio   Radio
	line    LineDriver
	frames  FrameSender
	mem     MemoryMonitor
	delay   Delayer
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// New creates a transmitter for radio, which must also implement LineDriver
// or FrameSender. mem may be nil.
func New(cfg Config, radio Radio, mem MemoryMonitor, log logrus.FieldLogger, m *metrics.Metrics) (*Transmitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	t := &Transmitter{
		cfg:     cfg,
		radio:   radio,
		mem:     mem,
		delay:   DefaultPrecision(),
		log:     log.WithField("component", "transmit"),
		metrics: m,
	}

	// LineDriver takes precedence over FrameSender
	if line, ok := radio.(LineDriver); ok {
		t.line = line
	} else if frames, ok := radio.(FrameSender); ok {
		t.frames = frames
	} else {
		return nil, ErrNoTransmitPath
	}

	return t, nil
}

// SetDelayer replaces the delay used between line transitions
func (t *Transmitter) SetDelayer(d Delayer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
}

// TransmitRaw sends timings (microseconds, alternating high/low starting high)
// repetitions times, with the guard time before and after each repetition.
func (t *Transmitter) TransmitRaw(timings []uint32, repetitions int) error {
	if err := t.validateTimings(timings); err != nil {
		return err
	}
	if repetitions < 1 {
		return errors.Wrapf(ErrInvalidParameters, "repetitions %d", repetitions)
	}
	if err := t.checkFrame(timings); err != nil {
		return err
	}

	err := t.send(timings, repetitions)
	t.metrics.ObserveTransmission(ModeRaw, err == nil)
	return err
}

// TransmitBinary Manchester-encodes data with the given bit time in
// microseconds and sends it once.
func (t *Transmitter) TransmitBinary(data []byte, bitTime uint32) error {
	if len(data) == 0 {
		return errors.Wrap(ErrInvalidParameters, "no data")
	}
	if len(data)*16 > t.cfg.MaxSamples {
		return errors.Wrapf(ErrInvalidParameters, "%d bytes exceed the sample limit", len(data))
	}
	if bitTime < minBitTime {
		return errors.Wrapf(ErrInvalidParameters, "bit time %dus", bitTime)
	}

	timings := ManchesterTimings(data, bitTime)
	if err := t.checkFrame(timings); err != nil {
		return err
	}

	err := t.send(timings, 1)
	t.metrics.ObserveTransmission(ModeBinary, err == nil)
	return err
}

func (t *Transmitter) validateTimings(timings []uint32) error {
	if len(timings) == 0 {
		return errors.Wrap(ErrInvalidParameters, "no timings")
	}
	if len(timings) > t.cfg.MaxSamples {
		return errors.Wrapf(ErrInvalidParameters, "%d timings exceed the limit of %d", len(timings), t.cfg.MaxSamples)
	}
	for i, d := range timings {
		if d == 0 {
			return errors.Wrapf(ErrInvalidParameters, "timing %d is zero", i)
		}
	}
	return nil
}

// send keys the radio, transmits and always returns it to RX
func (t *Transmitter) send(timings []uint32, repetitions int) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prepareMemory()

	if err := t.radio.SetTx(); err != nil {
		t.restoreRX()
		return errors.Wrap(err, "failed to enter TX")
	}
	defer func() {
		if rxErr := t.restoreRX(); rxErr != nil && err == nil {
			err = rxErr
		}
	}()

	t.log.WithFields(logrus.Fields{
		"timings":     len(timings),
		"repetitions": repetitions,
	}).Debug("transmitting")

	if t.line != nil {
		err = t.drive(timings, repetitions)
	} else {
		err = t.sendFrame(timings, repetitions)
	}
	if err != nil {
		t.log.WithError(err).Error("transmission failed")
	}
	return err
}

// drive bit-bangs the timings on the data line
func (t *Transmitter) drive(timings []uint32, repetitions int) error {
	for rep := 0; rep < repetitions; rep++ {
		if err := t.guard(); err != nil {
			return err
		}
		for i, d := range timings {
			if err := t.line.SetLevel(i%2 == 0); err != nil {
				return errors.Wrapf(err, "failed to set line level (repetition %d, timing %d)", rep, i)
			}
			t.delay.Delay(time.Duration(d) * time.Microsecond)
		}
		if err := t.guard(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transmitter) guard() error {
	if err := t.line.SetLevel(false); err != nil {
		return errors.Wrap(err, "failed to drop line for guard time")
	}
	t.delay.Delay(t.cfg.GuardTime)
	return nil
}

// checkFrame rejects timings whose rendered frame would not fit the radio
func (t *Transmitter) checkFrame(timings []uint32) error {
	if t.frames == nil {
		return nil
	}
	limiter, ok := t.frames.(FrameLimiter)
	if !ok {
		return nil
	}
	bits, _, err := t.renderFrame(timings)
	if err != nil {
		return err
	}
	if limit := limiter.MaxFrameBytes(); len(bits) > limit {
		return errors.Wrapf(ErrFrameTooLong, "%d timings render to %d bytes, radio holds %d", len(timings), len(bits), limit)
	}
	return nil
}

// renderFrame packs the timings as a bitstream at the base unit symbol rate,
// padded with the guard time on both sides
func (t *Transmitter) renderFrame(timings []uint32) ([]byte, uint32, error) {
	symbol := uint32(pulse.BaseUnit(timings) + 0.5)
	if symbol == 0 {
		return nil, 0, errors.Wrap(ErrInvalidParameters, "cannot derive a symbol time")
	}

	guardUs := uint32(t.cfg.GuardTime / time.Microsecond)
	framed := make([]uint32, 0, len(timings)+3)
	if guardUs > 0 {
		// a zero-length high keeps the alternation while leading with low
		framed = append(framed, 0, guardUs)
	}
	framed = append(framed, timings...)
	if guardUs > 0 {
		if len(timings)%2 == 0 {
			framed = append(framed, 0)
		}
		framed = append(framed, guardUs)
	}
	return EncodeOOK(framed, symbol), symbol, nil
}

func (t *Transmitter) sendFrame(timings []uint32, repetitions int) error {
	bits, symbol, err := t.renderFrame(timings)
	if err != nil {
		return err
	}
	if err := t.frames.SendFrame(bits, time.Duration(symbol)*time.Microsecond, repetitions); err != nil {
		return errors.Wrap(err, "failed to send frame")
	}
	return nil
}

// restoreRX drops the line and switches the radio back to receive
func (t *Transmitter) restoreRX() error {
	if t.line != nil {
		if err := t.line.SetLevel(false); err != nil {
			t.log.WithError(err).Warn("failed to drop data line")
		}
	}
	if err := t.radio.SetRx(); err != nil {
		t.log.WithError(err).Error("failed to return radio to RX")
		return errors.Wrap(err, "failed to return radio to RX")
	}
	return nil
}

func (t *Transmitter) prepareMemory() {
	if t.mem == nil {
		return
	}
	if free := t.mem.FreeBytes(); free < t.cfg.MinFreeMemory {
		t.log.WithField("free", free).Info("low memory before transmission, defragmenting")
		t.mem.Defragment()
	}
}
