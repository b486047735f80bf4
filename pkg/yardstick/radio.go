package yardstick

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/herlein/rfsignal/pkg/profiles"
)

// stateTimeout bounds MARCSTATE polling after a mode change
const stateTimeout = 50 * time.Millisecond

// SetRx puts the radio into receive mode and waits for MARCSTATE to follow
func (d *Device) SetRx() error {
	if err := d.SetIdle(); err != nil {
		return errors.Wrap(err, "failed to set IDLE before RX")
	}
	if _, err := d.Send(AppSystem, SysCmdRFMode, []byte{RFSTSrx}, USBDefaultTimeout); err != nil {
		return errors.Wrap(err, "failed to set RX mode")
	}
	return d.WaitForState(MarcStateRX, stateTimeout)
}

// SetTx puts the radio into transmit mode. Frames are normally sent with
// SendFrame which handles the TX transition itself.
func (d *Device) SetTx() error {
	_, err := d.Send(AppSystem, SysCmdRFMode, []byte{RFSTStx}, USBDefaultTimeout)
	return errors.Wrap(err, "failed to set TX mode")
}

// SetIdle puts the radio into idle mode
func (d *Device) SetIdle() error {
	_, err := d.Send(AppSystem, SysCmdRFMode, []byte{RFSTSidle}, USBDefaultTimeout)
	return errors.Wrap(err, "failed to set IDLE mode")
}

// MARCState returns the current radio state machine state
func (d *Device) MARCState() (uint8, error) {
	return d.PeekByte(RegMARCSTATE)
}

// WaitForState polls MARCSTATE until the desired state is reached or timeout
func (d *Device) WaitForState(state uint8, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		current, err := d.MARCState()
		if err != nil {
			return errors.Wrap(err, "failed to read MARCSTATE")
		}
		if current == state {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("timeout waiting for radio state 0x%02X (at 0x%02X)", state, current)
		}
		time.Sleep(time.Millisecond)
	}
}

// ApplyProfile writes the profile's registers and PA table. The radio is
// idled first since most registers must not change while active.
func (d *Device) ApplyProfile(p profiles.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := d.SetIdle(); err != nil {
		return err
	}

	s := p.Settings(profiles.CrystalCC1111)
	for i, v := range s.Regs {
		if err := d.PokeByte(registerAddr[i], v); err != nil {
			return errors.Wrapf(err, "failed to write %s", profiles.Register(i))
		}
	}
	if err := d.Poke(RegPATable0, s.PATable[:]); err != nil {
		return errors.Wrap(err, "failed to write PA table")
	}

	d.log.WithFields(logrus.Fields{
		"profile":   p.Name,
		"frequency": p.FrequencyHz,
		"baud":      p.DataRateBaud,
	}).Info("profile applied")
	return nil
}

// SetAmplifier switches the front-end amplifier
func (d *Device) SetAmplifier(on bool) error {
	mode := uint8(AmpModeOff)
	if on {
		mode = AmpModeOn
	}
	_, err := d.Send(AppNIC, NICSetAmpMode, []byte{mode}, USBDefaultTimeout)
	return errors.Wrap(err, "failed to set amplifier mode")
}

// MaxFrameBytes is the largest bitstream SendFrame accepts
func (d *Device) MaxFrameBytes() int {
	return RFMaxTXBlock
}

// SendFrame clocks out a packed OOK bitstream with one bit per symbol. The
// data rate is reprogrammed from the symbol time and the packet engine is put
// into fixed-length mode without sync word for the frame.
func (d *Device) SendFrame(bits []byte, symbol time.Duration, repeat int) error {
	if len(bits) == 0 || len(bits) > RFMaxTXBlock {
		return errors.Errorf("frame of %d bytes outside 1..%d", len(bits), RFMaxTXBlock)
	}
	if symbol <= 0 || repeat < 1 || repeat > 0xFFFF {
		return errors.Errorf("invalid frame timing: symbol %v repeat %d", symbol, repeat)
	}

	baud := float64(time.Second) / float64(symbol)
	drateE, drateM := profiles.CalcDataRateRegs(baud, profiles.CrystalCC1111)

	mdmcfg4, err := d.PeekByte(RegMDMCFG4)
	if err != nil {
		return err
	}
	writes := []struct {
		addr  uint16
		value uint8
	}{
		{RegMDMCFG4, (mdmcfg4 & 0xF0) | drateE},
		{RegMDMCFG3, drateM},
		{RegMDMCFG2, profiles.ModASKOOK}, // no preamble/sync
		{RegPKTCTRL0, 0x00},              // fixed length, no CRC
		{RegPKTLEN, uint8(len(bits))},
	}
	for _, w := range writes {
		if err := d.PokeByte(w.addr, w.value); err != nil {
			return err
		}
	}

	d.log.WithFields(logrus.Fields{
		"bytes":  len(bits),
		"symbol": symbol.String(),
		"baud":   profiles.DataRate(drateE, drateM, profiles.CrystalCC1111),
		"repeat": repeat,
	}).Debug("sending frame")

	return d.RFXmit(bits, uint16(repeat-1), 0)
}

// RFXmit transmits one buffered frame.
// repeat is the number of extra transmissions, offset the start offset of
// repeated transmissions within data.
func (d *Device) RFXmit(data []byte, repeat, offset uint16) error {
	if len(data) > RFMaxTXBlock {
		return errors.Errorf("frame of %d bytes exceeds %d", len(data), RFMaxTXBlock)
	}

	// len(2) + repeat(2) + offset(2) + data
	payload := make([]byte, 6+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], uint16(len(data)))
	binary.LittleEndian.PutUint16(payload[2:4], repeat)
	binary.LittleEndian.PutUint16(payload[4:6], offset)
	copy(payload[6:], data)

	waitLen := len(data) + int(repeat)*(len(data)-int(offset))
	waitTime := USBTXWaitTimeout * time.Duration(waitLen/RFMaxTXBlock+1)

	response, err := d.Send(AppNIC, NICXmit, payload, waitTime)
	if err != nil {
		return errors.Wrap(err, "transmit failed")
	}

	// firmware variants answer 1, '0' or 0 on success
	if len(response) > 0 {
		if code := response[0]; code != 1 && code != '0' && code != 0 {
			return errors.Errorf("transmit error: device returned 0x%02X", code)
		}
	}
	return nil
}
