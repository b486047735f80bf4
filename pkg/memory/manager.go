package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/herlein/rfsignal/pkg/metrics"
)

// historySize is the number of recent allocation sizes kept for prediction
const historySize = 10

// Config holds the sample pool size and the pressure thresholds
type Config struct {
	PoolSize                 int
	Alignment                int
	LowMemoryThreshold       int           // bytes - warn below this
	CriticalMemoryThreshold  int           // bytes - predicted OOM below this
	DefragThreshold          float64       // percent - defragment after free above this
	EmergencyDefragThreshold float64       // percent - monitor defragments above this
	DefragInterval           time.Duration // minimum spacing of free-triggered passes
	CheckInterval            time.Duration // monitor period
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		PoolSize:                 32768,
		Alignment:                DefaultAlignment,
		LowMemoryThreshold:       10240,
		CriticalMemoryThreshold:  5120,
		DefragThreshold:          70,
		EmergencyDefragThreshold: 85,
		DefragInterval:           5 * time.Second,
		CheckInterval:            5 * time.Second,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "pool size must be positive")
	}
	if c.CriticalMemoryThreshold < 0 || c.LowMemoryThreshold < c.CriticalMemoryThreshold {
		return errors.Wrap(ErrInvalidConfig, "low memory threshold must be at least the critical threshold")
	}
	if c.DefragThreshold <= 0 || c.EmergencyDefragThreshold < c.DefragThreshold || c.EmergencyDefragThreshold > 100 {
		return errors.Wrap(ErrInvalidConfig, "defrag thresholds must satisfy 0 < defrag <= emergency <= 100")
	}
	if c.CheckInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "check interval must be positive")
	}
	return nil
}

// Manager owns the sample pool and applies allocation prediction, recovery and
// periodic health checks on top of it.
type Manager struct {
	cfg     Config
	pool    *Pool
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time

	mu           sync.Mutex
	history      [historySize]int
	historyIndex int
	lastDefrag   time.Time
}

// NewManager creates the sample pool described by cfg
func NewManager(cfg Config, log logrus.FieldLogger, m *metrics.Metrics) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	pool, err := NewPool(cfg.PoolSize, cfg.Alignment, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sample pool")
	}

	mgr := &Manager{
		cfg:     cfg,
		pool:    pool,
		log:     log.WithField("component", "memory"),
		metrics: m,
		now:     time.Now,
	}
	mgr.publish()
	return mgr, nil
}

// Pool returns the underlying sample pool
func (m *Manager) Pool() *Pool {
	return m.pool
}

// Allocate reserves size bytes, running one defragmentation and retry when the
// request is predicted or observed to fail.
func (m *Manager) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrZeroSize
	}

	recovered := false
	if m.predictOOM(size) {
		recovered = true
		if !m.recoverMemory(size) {
			m.metrics.IncAllocFailure()
			m.log.WithField("size", size).Error("allocation would exhaust the sample pool")
			return nil, errors.Wrapf(ErrOutOfMemory, "allocation of %d bytes", size)
		}
	}

	buf, err := m.pool.Allocate(size)
	if errors.Is(err, ErrOutOfMemory) && !recovered && m.recoverMemory(size) {
		buf, err = m.pool.Allocate(size)
	}
	if err != nil {
		m.metrics.IncAllocFailure()
		m.log.WithField("size", size).WithError(err).Error("allocation failed")
		return nil, errors.Wrapf(err, "allocation of %d bytes", size)
	}

	m.recordAllocation(size)
	m.publish()
	return buf, nil
}

// Free releases buf and defragments when fragmentation is high, at most once
// per DefragInterval.
func (m *Manager) Free(buf []byte) {
	if buf == nil {
		return
	}
	m.pool.Free(buf)

	if m.pool.Stats().Fragmentation > m.cfg.DefragThreshold {
		m.mu.Lock()
		due := m.now().Sub(m.lastDefrag) > m.cfg.DefragInterval
		if due {
			m.lastDefrag = m.now()
		}
		m.mu.Unlock()

		if due {
			m.Defragment()
		}
	}
	m.publish()
}

// FreeBytes returns the free bytes in the pool
func (m *Manager) FreeBytes() int {
	return m.pool.Stats().Free
}

// LargestFreeBlock returns the largest contiguous free block
func (m *Manager) LargestFreeBlock() int {
	return m.pool.Stats().LargestFree
}

// Fragmentation returns the fragmentation percentage
func (m *Manager) Fragmentation() float64 {
	return m.pool.Stats().Fragmentation
}

// Stats returns the pool statistics
func (m *Manager) Stats() Stats {
	return m.pool.Stats()
}

// CanAllocate reports whether a request of size bytes would currently succeed
func (m *Manager) CanAllocate(size int) bool {
	return size > 0 && m.pool.AlignSize(size) <= m.LargestFreeBlock()
}

// Defragment runs a pool defragmentation pass and logs what it achieved
func (m *Manager) Defragment() {
	before := m.pool.Stats()
	merged := m.pool.Defragment()
	after := m.pool.Stats()

	m.metrics.IncDefragment()
	m.publish()

	if merged > 0 || before.Fragmentation-after.Fragmentation > 5 {
		m.log.WithFields(logrus.Fields{
			"merged":        merged,
			"fragmentation": after.Fragmentation,
			"before":        before.Fragmentation,
		}).Info("defragmented sample pool")
	}
}

// LogStats writes the current pool statistics at info level
func (m *Manager) LogStats() {
	s := m.pool.Stats()
	m.log.WithFields(logrus.Fields{
		"free":          s.Free,
		"largest":       s.LargestFree,
		"fragmentation": s.Fragmentation,
		"avg_recent":    m.averageRecent(),
	}).Info("memory stats")
}

// Run monitors the pool every CheckInterval until ctx is done
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check performs one monitor pass. Corruption is reported, never repaired.
func (m *Manager) Check() {
	s := m.pool.Stats()
	if s.Fragmentation > m.cfg.DefragThreshold || s.Free < m.cfg.LowMemoryThreshold {
		m.log.WithFields(logrus.Fields{
			"free":          s.Free,
			"fragmentation": s.Fragmentation,
		}).Warn("sample pool under pressure")

		if s.Fragmentation > m.cfg.EmergencyDefragThreshold {
			m.Defragment()
		}
	}

	if err := m.pool.CheckIntegrity(); err != nil {
		m.metrics.IncIntegrityError()
		m.log.WithError(err).Error("sample pool corruption detected")
	}
	m.publish()
}

// predictOOM reports whether size is likely to fail or leave the pool starved
func (m *Manager) predictOOM(size int) bool {
	s := m.pool.Stats()
	if size > s.LargestFree {
		return true
	}
	if s.Free-size < m.cfg.CriticalMemoryThreshold {
		return true
	}

	recent := m.recentTotal()
	return recent > s.Free/2 && size > s.Free/4
}

// recoverMemory defragments once and reports whether a block for size now exists
func (m *Manager) recoverMemory(size int) bool {
	before := m.LargestFreeBlock()
	m.Defragment()
	after := m.LargestFreeBlock()

	if after > before {
		m.log.WithFields(logrus.Fields{
			"largest_before": before,
			"largest_after":  after,
		}).Info("memory recovered through defragmentation")
	}
	return m.CanAllocate(size)
}

func (m *Manager) recordAllocation(size int) {
	m.mu.Lock()
	m.history[m.historyIndex] = size
	m.historyIndex = (m.historyIndex + 1) % historySize
	m.mu.Unlock()

	avg := m.averageRecent()
	if free := m.FreeBytes(); avg > float64(free)/10 {
		m.log.WithFields(logrus.Fields{
			"avg_allocation": avg,
			"free":           free,
		}).Warn("high memory pressure detected")
	}
}

func (m *Manager) recentTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, size := range m.history {
		total += size
	}
	return total
}

func (m *Manager) averageRecent() float64 {
	return float64(m.recentTotal()) / historySize
}

func (m *Manager) publish() {
	s := m.pool.Stats()
	m.metrics.ObservePool(s.Free, s.Fragmentation)
}
