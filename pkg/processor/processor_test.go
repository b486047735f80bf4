package processor

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/rfsignal/pkg/memory"
	"github.com/herlein/rfsignal/pkg/metrics"
)

var necUnit = []uint32{562, 1124, 562, 562, 1124, 562, 1124, 1124}

func repeatUnit(unit []uint32, times int) []uint32 {
	out := make([]uint32, 0, len(unit)*times)
	for i := 0; i < times; i++ {
		out = append(out, unit...)
	}
	return out
}

type fakeTransmitter struct {
	raw     [][]uint32
	binary  [][]byte
	entered chan struct{}
	release chan struct{}
}

func (f *fakeTransmitter) TransmitRaw(timings []uint32, repetitions int) error {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.raw = append(f.raw, timings)
	return nil
}

func (f *fakeTransmitter) TransmitBinary(data []byte, bitTime uint32) error {
	f.binary = append(f.binary, data)
	return nil
}

// failingAllocator serves ok allocations and then fails
type failingAllocator struct {
	ok    int
	freed int
}

func (a *failingAllocator) Allocate(size int) ([]byte, error) {
	if a.ok == 0 {
		return nil, memory.ErrOutOfMemory
	}
	a.ok--
	return make([]byte, size), nil
}

func (a *failingAllocator) Free(buf []byte) {
	a.freed++
}

type fixture struct {
	proc    *Processor
	mem     *memory.Manager
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config, tx Transmitter) fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	mem, err := memory.NewManager(memory.DefaultConfig(), log, nil)
	require.NoError(t, err)

	m := metrics.New(nil)
	proc, err := New(cfg, mem, tx, log, m)
	require.NoError(t, err)
	require.NoError(t, proc.Init())
	t.Cleanup(proc.Cleanup)

	return fixture{proc: proc, mem: mem, metrics: m}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	return cfg
}

func capture(t *testing.T, p *Processor, samples []uint32) error {
	t.Helper()
	require.NoError(t, p.StartCapture())
	for _, s := range samples {
		p.ProcessPulse(s)
	}
	return p.StopCapture()
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinSamples = 1
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.MaxSamples = 10
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.AcceptThreshold = 120
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}

func TestInitAndCleanupUseThePool(t *testing.T) {
	log, _ := test.NewNullLogger()
	mem, err := memory.NewManager(memory.DefaultConfig(), log, nil)
	require.NoError(t, err)
	total := mem.FreeBytes()

	proc, err := New(DefaultConfig(), mem, nil, log, nil)
	require.NoError(t, err)
	require.NoError(t, proc.Init())
	assert.Equal(t, total-2*DefaultMaxSamples*4, mem.FreeBytes())

	proc.Cleanup()
	assert.Equal(t, total, mem.FreeBytes())
	assert.Equal(t, ErrNotInitialized, proc.StartCapture())
}

func TestInitReleasesRawBufferWhenSmoothFails(t *testing.T) {
	alloc := &failingAllocator{ok: 1}
	proc, err := New(DefaultConfig(), alloc, nil, nil, nil)
	require.NoError(t, err)

	err = proc.Init()
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Equal(t, 1, alloc.freed)
	assert.Equal(t, ErrNotInitialized, proc.StartCapture())
}

func TestCaptureStateMachine(t *testing.T) {
	f := newFixture(t, smallConfig(), nil)
	p := f.proc

	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, ErrNotCapturing, p.StopCapture())

	require.NoError(t, p.StartCapture())
	assert.Equal(t, StateCapturing, p.State())
	assert.Equal(t, ErrCaptureActive, p.StartCapture())
	assert.Equal(t, ErrCaptureActive, p.SmoothSignal())

	for i := 0; i < 12; i++ {
		p.ProcessPulse(500)
	}
	require.NoError(t, p.StopCapture())
	assert.Equal(t, StateCaptured, p.State())
	assert.Len(t, p.RawSamples(), 12)

	// pulses after stop are ignored
	p.ProcessPulse(500)
	assert.Len(t, p.RawSamples(), 12)
}

func TestProcessPulseFiltersAndBounds(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxSamples = 20
	f := newFixture(t, cfg, nil)
	p := f.proc

	p.ProcessPulse(500) // not capturing
	require.NoError(t, p.StartCapture())
	p.ProcessPulse(50)
	p.ProcessPulse(99)
	for i := 0; i < 25; i++ {
		p.ProcessPulse(uint32(400 + i))
	}
	require.NoError(t, p.StopCapture())

	captured, rejected, dropped := p.CaptureStats()
	assert.Equal(t, 20, captured)
	assert.Equal(t, 2, rejected)
	assert.Equal(t, 5, dropped)
	assert.Equal(t, uint32(400), p.RawSamples()[0])
	assert.Equal(t, uint32(419), p.RawSamples()[19])

	assert.Equal(t, 20.0, testutil.ToFloat64(f.metrics.PulsesCaptured))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PulsesRejected))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.PulsesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Captures.WithLabelValues("ok")))
}

func TestStopCaptureInsufficientSamples(t *testing.T) {
	f := newFixture(t, smallConfig(), nil)

	err := capture(t, f.proc, []uint32{500, 500, 500})
	assert.True(t, errors.Is(err, ErrInsufficientSamples))
	assert.Equal(t, StateIdle, f.proc.State())
	assert.Empty(t, f.proc.RawSamples())
	captured, _, _ := f.proc.CaptureStats()
	assert.Equal(t, 3, captured)
	assert.True(t, errors.Is(f.proc.SmoothSignal(), ErrInsufficientSamples))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Captures.WithLabelValues("failed")))

	require.NoError(t, f.proc.StartCapture())
	assert.Equal(t, StateCapturing, f.proc.State())
}

func TestLoadSamplesInsufficient(t *testing.T) {
	f := newFixture(t, smallConfig(), nil)
	p := f.proc

	_, err := p.LoadSamples(repeatUnit([]uint32{500, 1000}, 10))
	require.NoError(t, err)
	assert.Equal(t, StateCaptured, p.State())

	n, err := p.LoadSamples([]uint32{500, 1000, 500})
	assert.True(t, errors.Is(err, ErrInsufficientSamples))
	assert.Equal(t, 3, n)
	assert.Equal(t, StateIdle, p.State())
	assert.Empty(t, p.RawSamples())
	assert.True(t, errors.Is(p.TransmitCapture(1), ErrInsufficientSamples))
}

func TestStopCaptureFreezesCount(t *testing.T) {
	cfg := smallConfig()
	cfg.MinSamples = 2
	f := newFixture(t, cfg, nil)
	p := f.proc

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				p.ProcessPulse(500)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		require.NoError(t, p.StartCapture())
		err := p.StopCapture()
		before, _, _ := p.CaptureStats()
		raw := p.RawSamples()
		after, _, _ := p.CaptureStats()

		assert.Equal(t, before, after)
		if err == nil {
			assert.Len(t, raw, before)
		} else {
			assert.True(t, errors.Is(err, ErrInsufficientSamples))
			assert.Empty(t, raw)
		}
	}
	close(done)
	wg.Wait()
}

func TestCaptureToPatternTwoRepeats(t *testing.T) {
	unit := []uint32{500, 500, 500, 500, 1500}
	f := newFixture(t, smallConfig(), nil)
	p := f.proc

	require.NoError(t, capture(t, p, repeatUnit(unit, 2)))
	require.NoError(t, p.SmoothSignal())
	assert.GreaterOrEqual(t, len(p.SmoothSamples()), 10)

	pat := p.DetectPattern()
	assert.Equal(t, 5, pat.Length)
	assert.Equal(t, 2, pat.Repeats)
	assert.InDelta(t, 1.0, pat.Confidence, 1e-9)
	assert.True(t, pat.IsValid)
}

func TestCaptureToPatternNeedsCorroboration(t *testing.T) {
	unit := []uint32{500, 500, 500, 500, 1500}
	cfg := smallConfig()
	cfg.Detect.MinRepeats = 3

	f := newFixture(t, cfg, nil)
	require.NoError(t, capture(t, f.proc, repeatUnit(unit, 2)))
	require.NoError(t, f.proc.SmoothSignal())
	assert.False(t, f.proc.DetectPattern().IsValid)

	require.NoError(t, capture(t, f.proc, repeatUnit(unit, 3)))
	require.NoError(t, f.proc.SmoothSignal())
	pat := f.proc.DetectPattern()
	assert.Equal(t, 5, pat.Length)
	assert.Equal(t, 3, pat.Repeats)
	assert.True(t, pat.IsValid)
}

func TestSmoothAndCompress(t *testing.T) {
	f := newFixture(t, smallConfig(), nil)
	p := f.proc

	samples := repeatUnit([]uint32{500, 510, 490, 1500, 1490, 505}, 5)
	require.NoError(t, capture(t, p, samples))
	assert.Equal(t, uint32(DefaultErrorTolerance), p.ErrorTolerance())

	require.NoError(t, p.SmoothSignal())
	assert.Equal(t, uint32(101), p.ErrorTolerance())
	smoothed := len(p.SmoothSamples())

	require.NoError(t, p.CompressSignal())
	assert.Less(t, len(p.SmoothSamples()), smoothed)
	assert.Len(t, p.RawSamples(), len(samples))
}

func TestCompressNeedsSmoothedSamples(t *testing.T) {
	f := newFixture(t, smallConfig(), nil)
	require.NoError(t, capture(t, f.proc, repeatUnit([]uint32{500, 1000}, 10)))
	assert.True(t, errors.Is(f.proc.CompressSignal(), ErrInsufficientSamples))
}

func TestAnalyzePulses(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	_, err := f.proc.LoadSamples(repeatUnit([]uint32{300, 600}, 15))
	require.NoError(t, err)

	timing, err := f.proc.AnalyzePulses()
	require.NoError(t, err)
	assert.Equal(t, PulseTiming{Period: 900, ZeroPulse: 300, OnePulse: 600}, timing)

	_, err = f.proc.LoadSamples([]uint32{300, 600})
	assert.True(t, errors.Is(err, ErrInsufficientSamples))
	_, err = f.proc.AnalyzePulses()
	assert.True(t, errors.Is(err, ErrInsufficientSamples))
}

func TestDecodeBinary(t *testing.T) {
	one := []uint32{600, 300}
	zero := []uint32{300, 600}
	var samples []uint32
	for rep := 0; rep < 2; rep++ {
		for _, bit := range []int{1, 0, 1, 1, 0, 0, 1, 0} {
			if bit == 1 {
				samples = append(samples, one...)
			} else {
				samples = append(samples, zero...)
			}
		}
	}

	f := newFixture(t, DefaultConfig(), nil)
	_, err := f.proc.LoadSamples(samples)
	require.NoError(t, err)

	data, bits, err := f.proc.DecodeBinary()
	require.NoError(t, err)
	assert.Equal(t, 16, bits)
	assert.Equal(t, []byte{0xB2, 0xB2}, data)
}

func TestSignalQualityQueries(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	p := f.proc

	assert.Zero(t, p.CalculateSignalQuality())

	_, err := p.LoadSamples(repeatUnit([]uint32{500}, 40))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, p.CalculateSignalQuality(), 1e-9)

	m, ok := p.AnalyzeSignalQuality()
	require.True(t, ok)
	assert.Greater(t, m.Overall, 90.0)

	_, accepted := p.AcceptCapture()
	assert.True(t, accepted)
}

func TestAnalyzeSpectrumIsCachedPerCapture(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	p := f.proc

	_, ok := p.AnalyzeSpectrum()
	assert.False(t, ok)

	_, err := p.LoadSamples(repeatUnit([]uint32{500, 1000}, 20))
	require.NoError(t, err)
	first, ok := p.AnalyzeSpectrum()
	require.True(t, ok)
	again, ok := p.AnalyzeSpectrum()
	require.True(t, ok)
	assert.Equal(t, first, again)

	_, err = p.LoadSamples(repeatUnit([]uint32{400}, 40))
	require.NoError(t, err)
	next, ok := p.AnalyzeSpectrum()
	require.True(t, ok)
	assert.NotEqual(t, first.DominantFreq, next.DominantFreq)
}

func TestIdentifyProtocol(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	_, err := f.proc.LoadSamples(repeatUnit(necUnit, 5))
	require.NoError(t, err)

	m, ok := f.proc.IdentifyProtocol()
	require.True(t, ok)
	assert.Equal(t, "NEC", m.Protocol.Name)
	assert.GreaterOrEqual(t, m.Confidence, 0.75)

	assert.True(t, f.proc.ValidateTiming(600, 562, 0.15))
	assert.False(t, f.proc.ValidateTiming(700, 562, 0.15))
}

func TestTransmitRequiresTransmitter(t *testing.T) {
	f := newFixture(t, smallConfig(), nil)
	assert.Equal(t, ErrNoTransmitter, f.proc.TransmitRaw([]uint32{500}, 1))
}

func TestTransmitRefusedDuringCapture(t *testing.T) {
	tx := &fakeTransmitter{}
	f := newFixture(t, smallConfig(), tx)
	p := f.proc

	require.NoError(t, p.StartCapture())
	assert.Equal(t, ErrCaptureActive, p.TransmitRaw([]uint32{500, 500}, 1))
	assert.Equal(t, ErrCaptureActive, p.TransmitBinary([]byte{0xA5}, 500))
	assert.Empty(t, tx.raw)
	assert.Empty(t, tx.binary)

	assert.True(t, errors.Is(p.StopCapture(), ErrInsufficientSamples))
	require.NoError(t, capture(t, p, repeatUnit([]uint32{500, 1000}, 10)))
	require.NoError(t, p.TransmitBinary([]byte{0xA5}, 500))
	require.NoError(t, p.TransmitCapture(1))
	assert.Equal(t, [][]byte{{0xA5}}, tx.binary)
	require.Len(t, tx.raw, 1)
	assert.Len(t, tx.raw[0], 20)
}

func TestCaptureRefusedWhileTransmitting(t *testing.T) {
	tx := &fakeTransmitter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, smallConfig(), tx)

	done := make(chan error, 1)
	go func() {
		done <- f.proc.TransmitRaw([]uint32{500, 500}, 1)
	}()

	<-tx.entered
	assert.Equal(t, ErrRadioBusy, f.proc.StartCapture())
	close(tx.release)
	require.NoError(t, <-done)

	assert.NoError(t, f.proc.StartCapture())
}
