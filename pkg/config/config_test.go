package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/rfsignal/pkg/profiles"
)

// writeTempYAML creates a temp YAML file and returns its path
func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rfsignal.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 30, c.ProcessorConfig().MinSamples)
	assert.Equal(t, 30, c.ProcessorConfig().Detect.MinSamples)
	assert.Equal(t, 2000, c.TransmitConfig().MaxSamples)
	assert.Equal(t, 10*time.Millisecond, c.TransmitConfig().GuardTime)
	assert.Equal(t, 32768, c.MemoryConfig().PoolSize)
}

func TestLoadKeepsDefaults(t *testing.T) {
	p := writeTempYAML(t, `
version: "1.0"
logging:
  level: debug
processor:
  min_samples: 40
  detect:
    min_repeats: 3
radio:
  driver: cc1101
  profile: 868-fsk-9.6k
  edge_timeout: 250ms
`)

	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "text", c.Logging.Format)
	assert.Equal(t, 40, c.Processor.MinSamples)
	assert.Equal(t, 2000, c.Processor.MaxSamples)
	assert.Equal(t, 3, c.ProcessorConfig().Detect.MinRepeats)
	assert.Equal(t, 250*time.Millisecond, c.Radio.EdgeTimeout)
	assert.Equal(t, "/dev/spidev0.0", c.Radio.SPIPort)

	prof, err := c.Radio.LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, profiles.Freq868, prof.FrequencyHz)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"version", `version: "2.0"`},
		{"log level", "logging:\n  level: loud"},
		{"log format", "logging:\n  format: xml"},
		{"driver", "radio:\n  driver: hackrf"},
		{"profile", "radio:\n  driver: yardstick\n  profile: nowhere.yaml"},
		{"min samples", "processor:\n  min_samples: 1"},
		{"pool too small", "memory:\n  pool_size: 8192"},
		{"cc1101 pins", "radio:\n  driver: cc1101\n  gdo0_pin: \"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempYAML(t, tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeTempYAML(t, "processor: [1, 2"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	c, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "rfsignal", "bench.yaml")

	c := Default()
	c.Radio.Driver = DriverYardStick
	c.Radio.Device = "#1"
	c.Radio.Amplifier = true
	c.Transmit.GuardTime = 5 * time.Millisecond
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestProfileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garage.yaml")
	require.NoError(t, profiles.NewOOK(310e6, 2000).SaveToFile(path, profiles.CrystalCC1101))

	r := RadioConfig{Driver: DriverCC1101, Profile: path}
	p, err := r.LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, 310e6, p.FrequencyHz)
}

func TestValidateWrapsSentinel(t *testing.T) {
	c := Default()
	c.Radio.Driver = "sdr"
	assert.True(t, errors.Is(c.Validate(), ErrInvalidConfig))
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	_, err = NewLogger(LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("etc", "rfsignal", "bench.yaml"), DefaultPath("bench"))
}
