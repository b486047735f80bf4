// Package cc1101 drives a TI CC1101 over SPI in asynchronous serial mode.
// GDO0 carries the demodulated data in RX and the data to transmit in TX, so
// pulses are timed and driven by the host.
package cc1101

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"

	"github.com/herlein/rfsignal/pkg/profiles"
)

// Driver errors
var (
	ErrNoChip       = errors.New("no CC1101 responding on SPI")
	ErrStateTimeout = errors.New("timeout waiting for radio state")
)

const (
	stateTimeout = 10 * time.Millisecond

	// DefaultEdgeTimeout ends a pulse train when GDO0 stays quiet this long
	DefaultEdgeTimeout = 100 * time.Millisecond
)

// Bus is a full duplex SPI connection, satisfied by periph spi.Conn
type Bus interface {
	Tx(w, r []byte) error
}

// DataPin is the GDO0 line, satisfied by periph gpio.PinIO
type DataPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// Radio is a CC1101 transceiver
type Radio struct {
	bus  Bus
	gdo0 DataPin
	log  logrus.FieldLogger

	// EdgeTimeout is the longest pulse WatchPulses measures
	EdgeTimeout time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// New resets the chip and checks that it answers
func New(bus Bus, gdo0 DataPin, log logrus.FieldLogger) (*Radio, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Radio{
		bus:         bus,
		gdo0:        gdo0,
		log:         log.WithField("component", "cc1101"),
		EdgeTimeout: DefaultEdgeTimeout,
		now:         time.Now,
	}

	if err := r.Reset(); err != nil {
		return nil, err
	}
	part, err := r.ReadStatus(RegPARTNUM)
	if err != nil {
		return nil, err
	}
	version, err := r.ReadStatus(RegVERSION)
	if err != nil {
		return nil, err
	}
	if version == 0x00 || version == 0xFF {
		return nil, errors.Wrapf(ErrNoChip, "version 0x%02X", version)
	}

	r.log.WithFields(logrus.Fields{
		"partnum": part,
		"version": version,
	}).Info("CC1101 detected")
	return r, nil
}

func (r *Radio) tx(w []byte) ([]byte, error) {
	rd := make([]byte, len(w))
	r.mu.Lock()
	err := r.bus.Tx(w, rd)
	r.mu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "spi transfer 0x%02X", w[0])
	}
	return rd, nil
}

// WriteReg writes one configuration register
func (r *Radio) WriteReg(addr, value uint8) error {
	_, err := r.tx([]byte{addr & addrMask, value})
	return err
}

// ReadReg reads one configuration register
func (r *Radio) ReadReg(addr uint8) (uint8, error) {
	rd, err := r.tx([]byte{addr&addrMask | readFlag, 0})
	if err != nil {
		return 0, err
	}
	return rd[1], nil
}

// WriteBurst writes consecutive registers starting at addr
func (r *Radio) WriteBurst(addr uint8, data []byte) error {
	w := make([]byte, 1+len(data))
	w[0] = addr&addrMask | burstFlag
	copy(w[1:], data)
	_, err := r.tx(w)
	return err
}

// ReadBurst reads n consecutive registers starting at addr
func (r *Radio) ReadBurst(addr uint8, n int) ([]byte, error) {
	w := make([]byte, 1+n)
	w[0] = addr&addrMask | readFlag | burstFlag
	rd, err := r.tx(w)
	if err != nil {
		return nil, err
	}
	return rd[1:], nil
}

// ReadStatus reads a status register. These share addresses with the
// strobes and are told apart by the burst bit.
func (r *Radio) ReadStatus(addr uint8) (uint8, error) {
	rd, err := r.tx([]byte{addr&addrMask | readFlag | burstFlag, 0})
	if err != nil {
		return 0, err
	}
	return rd[1], nil
}

// Strobe sends a command strobe and returns the chip status byte
func (r *Radio) Strobe(cmd uint8) (uint8, error) {
	rd, err := r.tx([]byte{cmd & addrMask})
	if err != nil {
		return 0, err
	}
	return rd[0], nil
}

// Reset issues SRES
func (r *Radio) Reset() error {
	if _, err := r.Strobe(StrobeSRES); err != nil {
		return errors.Wrap(err, "reset failed")
	}
	time.Sleep(time.Millisecond)
	return nil
}

// MARCState reads the radio state machine
func (r *Radio) MARCState() (RadioState, error) {
	v, err := r.ReadStatus(RegMARCSTATE)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read MARCSTATE")
	}
	return RadioState(v & 0x1F), nil
}

// WaitForState polls MARCSTATE until it reads state or timeout passes
func (r *Radio) WaitForState(state RadioState, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		current, err := r.MARCState()
		if err != nil {
			return err
		}
		if current == state {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Wrapf(ErrStateTimeout, "want %s, at %s", state, current)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// RSSI returns the received signal strength in dBm
func (r *Radio) RSSI() (float64, error) {
	v, err := r.ReadStatus(RegRSSI)
	if err != nil {
		return 0, err
	}
	return float64(int8(v))/2 - 74, nil
}

// Configure idles the radio and writes the profile's registers and PA table
func (r *Radio) Configure(p profiles.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := r.SetIdle(); err != nil {
		return err
	}

	s := p.Settings(profiles.CrystalCC1101)
	for i, v := range s.Regs {
		if err := r.WriteReg(registerAddr[i], v); err != nil {
			return errors.Wrapf(err, "failed to write %s", profiles.Register(i))
		}
	}
	if err := r.WriteBurst(RegPATABLE, s.PATable[:]); err != nil {
		return errors.Wrap(err, "failed to write PA table")
	}

	r.log.WithFields(logrus.Fields{
		"profile":   p.Name,
		"frequency": p.FrequencyHz,
		"baud":      p.DataRateBaud,
	}).Info("profile applied")
	return nil
}

// SetIdle strobes SIDLE and waits for IDLE
func (r *Radio) SetIdle() error {
	if _, err := r.Strobe(StrobeSIDLE); err != nil {
		return err
	}
	return r.WaitForState(StateIDLE, stateTimeout)
}

// SetRx releases GDO0 to the chip and enters RX
func (r *Radio) SetRx() error {
	if err := r.gdo0.In(gpio.Float, gpio.BothEdges); err != nil {
		return errors.Wrap(err, "failed to set GDO0 as input")
	}
	if _, err := r.Strobe(StrobeSRX); err != nil {
		return err
	}
	return r.WaitForState(StateRX, stateTimeout)
}

// SetTx drives GDO0 low and enters TX. The carrier follows GDO0 from here.
func (r *Radio) SetTx() error {
	if err := r.gdo0.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "failed to set GDO0 as output")
	}
	if _, err := r.Strobe(StrobeSTX); err != nil {
		return err
	}
	return r.WaitForState(StateTX, stateTimeout)
}

// SetLevel drives the async TX data line
func (r *Radio) SetLevel(high bool) error {
	return r.gdo0.Out(gpio.Level(high))
}
