// Package processor runs the capture, conditioning, analysis and replay of
// pulse-width signals for one radio.
package processor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/herlein/rfsignal/pkg/detect"
	"github.com/herlein/rfsignal/pkg/dsp"
	"github.com/herlein/rfsignal/pkg/metrics"
	"github.com/herlein/rfsignal/pkg/pulse"
)

// State is the capture state
type State int32

// Capture states
const (
	StateIdle State = iota
	StateCapturing
	StateCaptured
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateCaptured:
		return "captured"
	}
	return "unknown"
}

// Allocator hands out sample buffer regions
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Free(buf []byte)
}

// Transmitter replays timings through the radio
type Transmitter interface {
	TransmitRaw(timings []uint32, repetitions int) error
	TransmitBinary(data []byte, bitTime uint32) error
}

// Processor owns one signal buffer and the capture session writing into it.
// ProcessPulse may run concurrently with everything else but must only be
// called from one goroutine.
type Processor struct {
	cfg     Config
	mem     Allocator
	tx      Transmitter
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// capture path
	state    atomic.Int32
	inflight atomic.Int32
	count    atomic.Int64
	rejected atomic.Int64
	dropped  atomic.Int64

	mu           sync.Mutex
	buf          pulse.SignalBuffer
	started      time.Time
	transmitting int
	spectrum     *detect.SpectralInfo

	radioMu sync.Mutex
}

// New creates a processor. tx may be nil when replay is not needed.
func New(cfg Config, mem Allocator, tx Transmitter, log logrus.FieldLogger, m *metrics.Metrics) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, errors.New("processor needs an allocator")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Processor{
		cfg:     cfg,
		mem:     mem,
		tx:      tx,
		log:     log.WithField("component", "processor"),
		metrics: m,
	}, nil
}

// Init allocates the raw and smoothed buffers from the sample pool
func (p *Processor) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.Raw != nil {
		return nil
	}

	size := p.cfg.MaxSamples * pulse.SampleSize
	raw, err := p.mem.Allocate(size)
	if err != nil {
		p.log.WithError(err).Error("failed to allocate raw buffer")
		return errors.Wrapf(ErrAllocation, "raw buffer: %v", err)
	}
	smooth, err := p.mem.Allocate(size)
	if err != nil {
		p.mem.Free(raw)
		p.log.WithError(err).Error("failed to allocate smooth buffer")
		return errors.Wrapf(ErrAllocation, "smooth buffer: %v", err)
	}

	p.buf = pulse.SignalBuffer{
		Raw:            pulse.NewBuffer(raw),
		Smooth:         pulse.NewBuffer(smooth),
		ErrorTolerance: p.cfg.ErrorTolerance,
	}
	p.state.Store(int32(StateIdle))
	p.count.Store(0)
	p.spectrum = nil

	p.log.WithField("capacity", p.cfg.MaxSamples).Debug("signal buffers allocated")
	return nil
}

// Cleanup stops any capture and returns the buffers to the pool
func (p *Processor) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Store(int32(StateIdle))
	if p.buf.Raw != nil {
		p.mem.Free(p.buf.Raw.Region())
	}
	if p.buf.Smooth != nil {
		p.mem.Free(p.buf.Smooth.Region())
	}
	p.buf = pulse.SignalBuffer{}
	p.count.Store(0)
	p.spectrum = nil
}

// State returns the capture state
func (p *Processor) State() State {
	return State(p.state.Load())
}

// StartCapture clears the raw buffer and begins accepting pulses
func (p *Processor) StartCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.Raw == nil {
		return ErrNotInitialized
	}
	if p.State() == StateCapturing {
		return ErrCaptureActive
	}
	if p.transmitting > 0 {
		return ErrRadioBusy
	}

	p.buf.Raw.Reset()
	p.buf.Smooth.Reset()
	p.buf.ErrorTolerance = p.cfg.ErrorTolerance
	p.spectrum = nil
	p.count.Store(0)
	p.rejected.Store(0)
	p.dropped.Store(0)
	p.started = time.Now()
	p.state.Store(int32(StateCapturing))

	p.log.Debug("capture started")
	return nil
}

// StopCapture freezes the raw buffer. When fewer than MinSamples pulses were
// kept it returns ErrInsufficientSamples and the processor goes back to idle
// with an empty raw buffer; CaptureStats still describes the attempt.
func (p *Processor) StopCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.CompareAndSwap(int32(StateCapturing), int32(StateCaptured)) {
		return ErrNotCapturing
	}
	for p.inflight.Load() != 0 {
		runtime.Gosched()
	}

	n := int(p.count.Load())
	rejected := int(p.rejected.Load())
	dropped := int(p.dropped.Load())
	ok := n >= p.cfg.MinSamples
	p.metrics.ObserveCapture(n, rejected, dropped, ok)

	p.log.WithFields(logrus.Fields{
		"samples":  n,
		"rejected": rejected,
		"dropped":  dropped,
		"elapsed":  time.Since(p.started).String(),
	}).Info("capture stopped")

	if !ok {
		p.buf.Raw.Reset()
		p.state.Store(int32(StateIdle))
		return errors.Wrapf(ErrInsufficientSamples, "captured %d of %d", n, p.cfg.MinSamples)
	}
	p.buf.Raw.SetLen(n)
	return nil
}

// ProcessPulse records one pulse width in microseconds. It never blocks or
// allocates. Pulses are dropped when no capture is running, when shorter than
// MinPulseWidth or when the buffer is full.
func (p *Processor) ProcessPulse(d uint32) {
	// StopCapture waits for inflight to drain before freezing the count
	p.inflight.Add(1)
	defer p.inflight.Add(-1)

	if State(p.state.Load()) != StateCapturing {
		return
	}
	if d < p.cfg.MinPulseWidth {
		p.rejected.Add(1)
		return
	}

	n := p.count.Load()
	if int(n) >= p.buf.Raw.Cap() {
		p.dropped.Add(1)
		return
	}
	p.buf.Raw.Set(int(n), d)
	p.count.Store(n + 1)
}

// CaptureStats returns the pulses kept, rejected as noise and dropped on
// overflow in the current or last capture
func (p *Processor) CaptureStats() (captured, rejected, dropped int) {
	return int(p.count.Load()), int(p.rejected.Load()), int(p.dropped.Load())
}

// SmoothSignal fills the smoothed buffer from the raw capture and adopts the
// smoothing tolerance as the error tolerance.
func (p *Processor) SmoothSignal() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkIdle(); err != nil {
		return err
	}
	if n := p.buf.Raw.Len(); n < p.cfg.MinSamples {
		return errors.Wrapf(ErrInsufficientSamples, "raw buffer holds %d", n)
	}

	res := dsp.Smooth(p.buf.Raw.Snapshot(), p.cfg.MinPulseWidth)
	p.buf.Smooth.Load(res.Samples)
	p.buf.ErrorTolerance = res.Tolerance

	if n := p.buf.Smooth.Len(); n < p.cfg.MinSamples {
		return errors.Wrapf(ErrInsufficientSamples, "%d samples left after smoothing", n)
	}
	return nil
}

// CompressSignal merges similar consecutive smoothed samples in place
func (p *Processor) CompressSignal() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkIdle(); err != nil {
		return err
	}
	if n := p.buf.Smooth.Len(); n < p.cfg.MinSamples {
		return errors.Wrapf(ErrInsufficientSamples, "smooth buffer holds %d", n)
	}

	before := p.buf.Smooth.Len()
	p.buf.Smooth.Load(dsp.Compress(p.buf.Smooth.Snapshot(), p.buf.ErrorTolerance))

	p.log.WithFields(logrus.Fields{
		"before": before,
		"after":  p.buf.Smooth.Len(),
	}).Debug("signal compressed")
	return nil
}

// LoadSamples replaces the raw capture with samples for offline analysis and
// returns how many fit. Fewer than MinSamples leaves the processor idle with
// an empty raw buffer and returns ErrInsufficientSamples.
func (p *Processor) LoadSamples(samples []uint32) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkIdle(); err != nil {
		return 0, err
	}

	n := p.buf.Raw.Load(samples)
	p.buf.Smooth.Reset()
	p.buf.ErrorTolerance = p.cfg.ErrorTolerance
	p.spectrum = nil
	p.count.Store(int64(n))
	p.rejected.Store(0)
	p.dropped.Store(int64(len(samples) - n))

	if n < p.cfg.MinSamples {
		p.buf.Raw.Reset()
		p.state.Store(int32(StateIdle))
		return n, errors.Wrapf(ErrInsufficientSamples, "loaded %d of %d", n, p.cfg.MinSamples)
	}
	p.state.Store(int32(StateCaptured))
	return n, nil
}

// RawSamples returns a copy of the raw capture
func (p *Processor) RawSamples() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Raw == nil || p.State() == StateCapturing {
		return nil
	}
	return p.buf.Raw.Snapshot()
}

// SmoothSamples returns a copy of the smoothed buffer
func (p *Processor) SmoothSamples() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Smooth == nil {
		return nil
	}
	return p.buf.Smooth.Snapshot()
}

// ErrorTolerance returns the current timing tolerance in microseconds
func (p *Processor) ErrorTolerance() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.ErrorTolerance
}

// TransmitRaw replays timings. It fails with ErrCaptureActive while a capture
// is running; transmissions are serialised.
func (p *Processor) TransmitRaw(timings []uint32, repetitions int) error {
	return p.transmit(func(tx Transmitter) error {
		return tx.TransmitRaw(timings, repetitions)
	})
}

// TransmitBinary Manchester-encodes data and sends it
func (p *Processor) TransmitBinary(data []byte, bitTime uint32) error {
	return p.transmit(func(tx Transmitter) error {
		return tx.TransmitBinary(data, bitTime)
	})
}

// TransmitCapture replays the smoothed buffer, or the raw capture when it has
// not been smoothed
func (p *Processor) TransmitCapture(repetitions int) error {
	samples := p.analysisSamples()
	if len(samples) == 0 {
		return errors.Wrap(ErrInsufficientSamples, "nothing captured")
	}
	return p.TransmitRaw(samples, repetitions)
}

func (p *Processor) transmit(send func(Transmitter) error) error {
	if p.tx == nil {
		return ErrNoTransmitter
	}

	p.mu.Lock()
	if p.State() == StateCapturing {
		p.mu.Unlock()
		return ErrCaptureActive
	}
	p.transmitting++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.transmitting--
		p.mu.Unlock()
	}()

	p.radioMu.Lock()
	defer p.radioMu.Unlock()
	return send(p.tx)
}

// checkIdle must be called with mu held
func (p *Processor) checkIdle() error {
	if p.buf.Raw == nil {
		return ErrNotInitialized
	}
	if p.State() == StateCapturing {
		return ErrCaptureActive
	}
	return nil
}
