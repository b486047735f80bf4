// Package config loads the rfsignal YAML configuration and turns it into the
// settings of each component.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/herlein/rfsignal/pkg/detect"
	"github.com/herlein/rfsignal/pkg/memory"
	"github.com/herlein/rfsignal/pkg/processor"
	"github.com/herlein/rfsignal/pkg/profiles"
	"github.com/herlein/rfsignal/pkg/pulse"
	"github.com/herlein/rfsignal/pkg/transmit"
)

// Version is the configuration format version
const Version = "1.0"

// Radio drivers
const (
	DriverNone      = ""
	DriverCC1101    = "cc1101"
	DriverYardStick = "yardstick"
)

// ErrInvalidConfig indicates a configuration that cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete rfsignal configuration
type Config struct {
	Version   string          `yaml:"version"`
	Logging   LoggingConfig   `yaml:"logging"`
	Memory    MemoryConfig    `yaml:"memory"`
	Processor ProcessorConfig `yaml:"processor"`
	Transmit  TransmitConfig  `yaml:"transmit"`
	Radio     RadioConfig     `yaml:"radio"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig selects the log level and output format (text or json)
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MemoryConfig sizes the sample pool and its pressure thresholds
type MemoryConfig struct {
	PoolSize                 int           `yaml:"pool_size"`
	Alignment                int           `yaml:"alignment"`
	LowMemoryThreshold       int           `yaml:"low_memory_threshold"`
	CriticalMemoryThreshold  int           `yaml:"critical_memory_threshold"`
	DefragThreshold          float64       `yaml:"defrag_threshold"`
	EmergencyDefragThreshold float64       `yaml:"emergency_defrag_threshold"`
	DefragInterval           time.Duration `yaml:"defrag_interval"`
	CheckInterval            time.Duration `yaml:"check_interval"`
}

// ProcessorConfig holds capture and analysis settings
type ProcessorConfig struct {
	MinSamples      int          `yaml:"min_samples"`
	MaxSamples      int          `yaml:"max_samples"`
	MinPulseWidth   uint32       `yaml:"min_pulse_width_us"`
	ErrorTolerance  uint32       `yaml:"error_tolerance_us"`
	AcceptThreshold float64      `yaml:"accept_threshold"`
	Detect          DetectConfig `yaml:"detect"`
}

// DetectConfig tunes pattern and protocol detection
type DetectConfig struct {
	MaxPatternLength      int     `yaml:"max_pattern_length"`
	MinPatternConfidence  float64 `yaml:"min_pattern_confidence"`
	MinRepeats            int     `yaml:"min_repeats"`
	MinProtocolConfidence float64 `yaml:"min_protocol_confidence"`
	PatternTolerance      float64 `yaml:"pattern_tolerance"`
}

// TransmitConfig holds replay settings
type TransmitConfig struct {
	GuardTime     time.Duration `yaml:"guard_time"`
	MinFreeMemory int           `yaml:"min_free_memory"`
}

// RadioConfig selects and configures the radio
type RadioConfig struct {
	Driver  string `yaml:"driver"`
	Profile string `yaml:"profile"` // preset name or profile file

	// cc1101
	SPIPort     string        `yaml:"spi_port"`
	GDO0Pin     string        `yaml:"gdo0_pin"`
	EdgeTimeout time.Duration `yaml:"edge_timeout"`

	// yardstick
	Device    string `yaml:"device"` // "", "#N" or serial number
	Amplifier bool   `yaml:"amplifier"`
}

// MetricsConfig sets the Prometheus listen address, empty to disable
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with default values
func Default() *Config {
	mem := memory.DefaultConfig()
	proc := processor.DefaultConfig()
	tx := transmit.DefaultConfig()

	return &Config{
		Version: Version,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Memory: MemoryConfig{
			PoolSize:                 mem.PoolSize,
			Alignment:                mem.Alignment,
			LowMemoryThreshold:       mem.LowMemoryThreshold,
			CriticalMemoryThreshold:  mem.CriticalMemoryThreshold,
			DefragThreshold:          mem.DefragThreshold,
			EmergencyDefragThreshold: mem.EmergencyDefragThreshold,
			DefragInterval:           mem.DefragInterval,
			CheckInterval:            mem.CheckInterval,
		},
		Processor: ProcessorConfig{
			MinSamples:      proc.MinSamples,
			MaxSamples:      proc.MaxSamples,
			MinPulseWidth:   proc.MinPulseWidth,
			ErrorTolerance:  proc.ErrorTolerance,
			AcceptThreshold: proc.AcceptThreshold,
			Detect: DetectConfig{
				MaxPatternLength:      proc.Detect.MaxPatternLength,
				MinPatternConfidence:  proc.Detect.MinPatternConfidence,
				MinRepeats:            proc.Detect.MinRepeats,
				MinProtocolConfidence: proc.Detect.MinProtocolConfidence,
				PatternTolerance:      proc.Detect.PatternTolerance,
			},
		},
		Transmit: TransmitConfig{
			GuardTime:     tx.GuardTime,
			MinFreeMemory: tx.MinFreeMemory,
		},
		Radio: RadioConfig{
			Profile:     "433-ook-2.4k",
			SPIPort:     "/dev/spidev0.0",
			GDO0Pin:     "GPIO25",
			EdgeTimeout: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Listen: ":9110",
		},
	}
}

// Load reads a YAML configuration. Fields missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadOrDefault loads path, or returns the defaults when it does not exist
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration as YAML, creating the directory if needed
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal configuration")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "failed to write file")
}

// DefaultPath returns the configuration path for a named setup
func DefaultPath(name string) string {
	return filepath.Join("etc", "rfsignal", name+".yaml")
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Version != Version {
		return errors.Wrapf(ErrInvalidConfig, "unsupported version %q", c.Version)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.Wrapf(ErrInvalidConfig, "log format %q", c.Logging.Format)
	}

	if err := c.MemoryConfig().Validate(); err != nil {
		return errors.Wrap(err, "memory")
	}
	if err := c.ProcessorConfig().Validate(); err != nil {
		return errors.Wrap(err, "processor")
	}
	if err := c.TransmitConfig().Validate(); err != nil {
		return errors.Wrap(err, "transmit")
	}

	// raw and smoothed buffers both come from the pool
	if need := 2 * c.Processor.MaxSamples * pulse.SampleSize; need > c.Memory.PoolSize {
		return errors.Wrapf(ErrInvalidConfig, "pool of %d bytes cannot hold %d byte sample buffers", c.Memory.PoolSize, need)
	}

	switch c.Radio.Driver {
	case DriverNone, DriverYardStick:
	case DriverCC1101:
		if c.Radio.SPIPort == "" || c.Radio.GDO0Pin == "" {
			return errors.Wrap(ErrInvalidConfig, "cc1101 needs spi_port and gdo0_pin")
		}
		if c.Radio.EdgeTimeout <= 0 {
			return errors.Wrap(ErrInvalidConfig, "edge timeout must be positive")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown radio driver %q", c.Radio.Driver)
	}
	if c.Radio.Driver != DriverNone {
		if _, err := c.Radio.LoadProfile(); err != nil {
			return err
		}
	}
	return nil
}

// MemoryConfig returns the sample pool settings
func (c *Config) MemoryConfig() memory.Config {
	m := c.Memory
	return memory.Config{
		PoolSize:                 m.PoolSize,
		Alignment:                m.Alignment,
		LowMemoryThreshold:       m.LowMemoryThreshold,
		CriticalMemoryThreshold:  m.CriticalMemoryThreshold,
		DefragThreshold:          m.DefragThreshold,
		EmergencyDefragThreshold: m.EmergencyDefragThreshold,
		DefragInterval:           m.DefragInterval,
		CheckInterval:            m.CheckInterval,
	}
}

// ProcessorConfig returns the signal processor settings
func (c *Config) ProcessorConfig() processor.Config {
	p := c.Processor
	return processor.Config{
		MinSamples:      p.MinSamples,
		MaxSamples:      p.MaxSamples,
		MinPulseWidth:   p.MinPulseWidth,
		ErrorTolerance:  p.ErrorTolerance,
		AcceptThreshold: p.AcceptThreshold,
		Detect: detect.Options{
			MinSamples:            p.MinSamples,
			MaxPatternLength:      p.Detect.MaxPatternLength,
			MinPatternConfidence:  p.Detect.MinPatternConfidence,
			MinRepeats:            p.Detect.MinRepeats,
			MinProtocolConfidence: p.Detect.MinProtocolConfidence,
			PatternTolerance:      p.Detect.PatternTolerance,
		},
	}
}

// TransmitConfig returns the transmitter settings
func (c *Config) TransmitConfig() transmit.Config {
	return transmit.Config{
		GuardTime:     c.Transmit.GuardTime,
		MinFreeMemory: c.Transmit.MinFreeMemory,
		MaxSamples:    c.Processor.MaxSamples,
	}
}

// LoadProfile resolves the radio profile, first as a preset name and then as
// a profile file
func (r RadioConfig) LoadProfile() (profiles.Profile, error) {
	if p, ok := profiles.Lookup(r.Profile); ok {
		return p, nil
	}
	p, err := profiles.LoadFromFile(r.Profile)
	if err != nil {
		return profiles.Profile{}, errors.Wrapf(ErrInvalidConfig, "profile %q: %v", r.Profile, err)
	}
	return *p, nil
}

// NewLogger builds a logger from the logging section
func NewLogger(c LoggingConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	log := logrus.New()
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
