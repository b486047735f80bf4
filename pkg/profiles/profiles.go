// Package profiles describes radio configurations for asynchronous pulse
// capture and replay and computes the CC1101-family register values for them.
// The same profile can be applied to a CC1101 (26 MHz crystal) or a CC1111
// based YardStick One (24 MHz crystal).
package profiles

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Crystal frequencies
const (
	CrystalCC1101 = 26000000.0 // Hz
	CrystalCC1111 = 24000000.0 // Hz - YardStick One
)

// Modulation types (MDMCFG2[6:4])
const (
	Mod2FSK   = 0x00 // 2-level FSK
	ModGFSK   = 0x10 // Gaussian FSK
	ModASKOOK = 0x30 // ASK/OOK
	Mod4FSK   = 0x40 // 4-level FSK
	ModMSK    = 0x70 // Minimum Shift Keying
)

// Register identifies a configuration register independent of its address on
// a particular chip
type Register int

// Registers written when a profile is applied
const (
	IOCFG0 Register = iota
	PKTCTRL0
	FSCTRL1
	FREQ2
	FREQ1
	FREQ0
	MDMCFG4
	MDMCFG3
	MDMCFG2
	MDMCFG1
	DEVIATN
	MCSM0
	FOCCFG
	AGCCTRL2
	AGCCTRL1
	AGCCTRL0
	FREND1
	FREND0
	FSCAL3
	FSCAL2
	FSCAL1
	FSCAL0
	TEST2
	TEST1
	TEST0

	NumRegisters
)

var registerNames = [NumRegisters]string{
	"IOCFG0", "PKTCTRL0", "FSCTRL1", "FREQ2", "FREQ1", "FREQ0",
	"MDMCFG4", "MDMCFG3", "MDMCFG2", "MDMCFG1", "DEVIATN", "MCSM0",
	"FOCCFG", "AGCCTRL2", "AGCCTRL1", "AGCCTRL0", "FREND1", "FREND0",
	"FSCAL3", "FSCAL2", "FSCAL1", "FSCAL0", "TEST2", "TEST1", "TEST0",
}

func (r Register) String() string {
	if r < 0 || r >= NumRegisters {
		return "UNKNOWN"
	}
	return registerNames[r]
}

// Settings are the register values for one profile. Registers are applied in
// index order.
type Settings struct {
	Regs    [NumRegisters]uint8
	PATable [8]uint8
}

// Profile is a radio configuration for async serial (pulse) mode
type Profile struct {
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description,omitempty"`
	FrequencyHz  float64 `yaml:"frequency_hz"`
	Modulation   uint8   `yaml:"modulation"`
	DataRateBaud float64 `yaml:"data_rate_baud"`
	DeviationHz  float64 `yaml:"deviation_hz,omitempty"` // FSK modes only
	ChannelBWHz  float64 `yaml:"channel_bandwidth_hz"`
}

// ProfileFile is the on-disk form of a profile with the register values it
// produced
type ProfileFile struct {
	Profile   Profile           `yaml:"profile"`
	CrystalHz float64           `yaml:"crystal_hz"`
	Registers map[string]string `yaml:"registers"`
	Timestamp time.Time         `yaml:"timestamp"`
}

// ErrInvalidProfile indicates a profile outside the chip's capabilities
var ErrInvalidProfile = errors.New("invalid radio profile")

// Validate checks the profile against the CC1101 operating ranges
func (p Profile) Validate() error {
	f := p.FrequencyHz
	inBand := (f >= 300e6 && f <= 348e6) || (f >= 387e6 && f <= 464e6) || (f >= 779e6 && f <= 928e6)
	if !inBand {
		return errors.Wrapf(ErrInvalidProfile, "frequency %.0f Hz outside the supported bands", f)
	}
	if p.DataRateBaud < 600 || p.DataRateBaud > 500000 {
		return errors.Wrapf(ErrInvalidProfile, "data rate %.0f baud", p.DataRateBaud)
	}
	if p.ChannelBWHz < 58000 || p.ChannelBWHz > 812000 {
		return errors.Wrapf(ErrInvalidProfile, "channel bandwidth %.0f Hz", p.ChannelBWHz)
	}
	switch p.Modulation {
	case Mod2FSK, ModGFSK, ModASKOOK, Mod4FSK, ModMSK:
	default:
		return errors.Wrapf(ErrInvalidProfile, "modulation 0x%02X", p.Modulation)
	}
	return nil
}

// IsFSK reports whether the modulation uses frequency deviation
func (p Profile) IsFSK() bool {
	return p.Modulation == Mod2FSK || p.Modulation == ModGFSK || p.Modulation == Mod4FSK
}

// CalcFreqRegs calculates FREQ2/1/0 for a carrier frequency
func CalcFreqRegs(freqHz, crystalHz float64) (freq2, freq1, freq0 uint8) {
	num := uint32(freqHz * 65536.0 / crystalHz)
	freq2 = uint8((num >> 16) & 0xFF)
	freq1 = uint8((num >> 8) & 0xFF)
	freq0 = uint8(num & 0xFF)
	return
}

// CalcDataRateRegs calculates MDMCFG4[3:0] (DRATE_E) and MDMCFG3 (DRATE_M)
func CalcDataRateRegs(drateBaud, crystalHz float64) (drateE, drateM uint8) {
	for e := uint8(0); e < 16; e++ {
		m := int((drateBaud*math.Pow(2, 28)/(math.Pow(2, float64(e))*crystalHz) - 256) + 0.5)
		if m >= 0 && m < 256 {
			return e, uint8(m)
		}
	}
	return 15, 255
}

// DataRate converts DRATE_E/DRATE_M back to baud
func DataRate(drateE, drateM uint8, crystalHz float64) float64 {
	return (256 + float64(drateM)) * math.Pow(2, float64(drateE)) * crystalHz / math.Pow(2, 28)
}

// CalcChannelBWRegs calculates MDMCFG4[7:4] for the receive bandwidth
func CalcChannelBWRegs(bwHz, crystalHz float64) (chanbwE, chanbwM uint8) {
	for e := uint8(0); e < 4; e++ {
		m := int((crystalHz/(bwHz*math.Pow(2, float64(e))*8.0) - 4) + 0.5)
		if m >= 0 && m < 4 {
			return e, uint8(m)
		}
	}
	// widest
	return 0, 0
}

// CalcDeviationRegs calculates DEVIATN for FSK deviation
func CalcDeviationRegs(devHz, crystalHz float64) uint8 {
	for e := uint8(0); e < 8; e++ {
		m := int((devHz*math.Pow(2, 17)/(math.Pow(2, float64(e))*crystalHz) - 8) + 0.5)
		if m >= 0 && m < 8 {
			return (e << 4) | uint8(m)
		}
	}
	return 0x47
}

// MaxPower returns the highest PA table value for the band
func MaxPower(freqHz float64) uint8 {
	switch {
	case freqHz <= 400e6:
		return 0xC2
	case freqHz <= 464e6:
		return 0xC0
	case freqHz <= 849e6:
		return 0xC2
	}
	return 0xC0
}

// VCOSelection returns the FSCAL2 value for the frequency
func VCOSelection(freqHz float64) uint8 {
	if freqHz < 318e6 || (freqHz >= 391e6 && freqHz < 424e6) || (freqHz >= 782e6 && freqHz < 848e6) {
		return 0x0A // low VCO
	}
	return 0x2A
}

// Settings computes the register values for the profile on a chip clocked by
// crystalHz. GDO0 carries the demodulated data and the packet engine is
// bypassed (async serial mode, no sync word, no preamble).
func (p Profile) Settings(crystalHz float64) Settings {
	var s Settings
	r := &s.Regs

	r[IOCFG0] = 0x0D   // serial data output
	r[PKTCTRL0] = 0x32 // async serial, infinite length
	r[FSCTRL1] = 0x06

	r[FREQ2], r[FREQ1], r[FREQ0] = CalcFreqRegs(p.FrequencyHz, crystalHz)
	r[FSCAL2] = VCOSelection(p.FrequencyHz)

	drateE, drateM := CalcDataRateRegs(p.DataRateBaud, crystalHz)
	chanbwE, chanbwM := CalcChannelBWRegs(p.ChannelBWHz, crystalHz)
	r[MDMCFG4] = (chanbwE << 6) | (chanbwM << 4) | drateE
	r[MDMCFG3] = drateM
	r[MDMCFG2] = p.Modulation // no sync
	r[MDMCFG1] = 0x00

	if p.IsFSK() {
		dev := p.DeviationHz
		if dev <= 0 {
			dev = p.DataRateBaud * 0.5
		}
		r[DEVIATN] = CalcDeviationRegs(dev, crystalHz)
	}

	r[MCSM0] = 0x18 // calibrate on IDLE->RX/TX
	r[FOCCFG] = 0x16
	r[AGCCTRL2] = 0x03
	r[AGCCTRL1] = 0x00
	r[AGCCTRL0] = 0x91

	power := MaxPower(p.FrequencyHz)
	if p.Modulation == ModASKOOK {
		// PA_TABLE[0] is the off level, PA_TABLE[1] the on level
		s.PATable[1] = power
		r[FREND0] = 0x11
	} else {
		s.PATable[0] = power
		r[FREND0] = 0x10
	}
	if p.ChannelBWHz > 102000 {
		r[FREND1] = 0xB6
	} else {
		r[FREND1] = 0x56
	}

	r[FSCAL3] = 0xE9
	r[FSCAL1] = 0x00
	r[FSCAL0] = 0x1F

	if p.ChannelBWHz > 325000 {
		r[TEST2], r[TEST1] = 0x88, 0x31
	} else {
		r[TEST2], r[TEST1] = 0x81, 0x35
	}
	r[TEST0] = 0x09

	return s
}

// SaveToFile writes the profile and its register values as YAML
func (p Profile) SaveToFile(path string, crystalHz float64) error {
	s := p.Settings(crystalHz)
	regs := make(map[string]string, NumRegisters)
	for i, v := range s.Regs {
		regs[Register(i).String()] = fmt.Sprintf("0x%02X", v)
	}

	data, err := yaml.Marshal(ProfileFile{
		Profile:   p,
		CrystalHz: crystalHz,
		Registers: regs,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal profile")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create profile directory")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "failed to write profile")
}

// LoadFromFile reads a profile written by SaveToFile and validates it
func LoadFromFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read profile file")
	}

	var f ProfileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse profile file")
	}
	if err := f.Profile.Validate(); err != nil {
		return nil, err
	}
	return &f.Profile, nil
}
