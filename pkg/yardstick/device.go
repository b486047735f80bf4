// Package yardstick drives a YardStick One (CC1111) over its EP5 USB command
// channel. The radio buffers whole frames, so replay goes through SendFrame.
package yardstick

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Device errors
var (
	ErrNotFound = errors.New("no YardStick One found")
	ErrTimeout  = errors.New("timeout waiting for response")
)

// InEndpoint is the device-to-host half of EP5
type InEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// OutEndpoint is the host-to-device half of EP5
type OutEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Device represents a YardStick One USB device
type Device struct {
	epIn   InEndpoint
	epOut  OutEndpoint
	closer func() error
	log    logrus.FieldLogger

	Serial string

	sendMu  sync.Mutex
	recvBuf []byte
}

// NewDevice wraps an already opened EP5 endpoint pair
func NewDevice(in InEndpoint, out OutEndpoint, log logrus.FieldLogger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Device{
		epIn:    in,
		epOut:   out,
		log:     log.WithField("component", "yardstick"),
		recvBuf: make([]byte, 0, EP5OutBufferSize),
	}
}

// Open opens a YardStick One. selector is empty for the first device, "#N"
// for the Nth (0-indexed) or a serial number.
func Open(usb *gousb.Context, selector string, log logrus.FieldLogger) (*Device, error) {
	usbDevices, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	if err != nil && len(usbDevices) == 0 {
		return nil, errors.Wrap(err, "failed to enumerate devices")
	}

	index := 0
	serial := ""
	if strings.HasPrefix(selector, "#") {
		if index, err = strconv.Atoi(selector[1:]); err != nil {
			closeAll(usbDevices)
			return nil, errors.Errorf("invalid device index: %s", selector)
		}
	} else {
		serial = selector
	}

	var chosen *gousb.Device
	seen := 0
	for _, usbDev := range usbDevices {
		if chosen == nil {
			if serial != "" {
				if s, _ := usbDev.SerialNumber(); s == serial {
					chosen = usbDev
					continue
				}
			} else if seen == index {
				chosen = usbDev
				continue
			}
		}
		seen++
		usbDev.Close()
	}
	if chosen == nil {
		return nil, errors.Wrapf(ErrNotFound, "selector %q", selector)
	}

	d, err := wrapDevice(chosen, log)
	if err != nil {
		chosen.Close()
		return nil, err
	}
	return d, nil
}

func closeAll(devs []*gousb.Device) {
	for _, d := range devs {
		d.Close()
	}
}

func wrapDevice(usbDev *gousb.Device, log logrus.FieldLogger) (*Device, error) {
	serial, _ := usbDev.SerialNumber()
	usbDev.SetAutoDetach(true)

	config, err := usbDev.Config(1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get configuration")
	}

	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, errors.Wrap(err, "failed to claim interface")
	}

	epIn, err := iface.InEndpoint(EP5Number)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, errors.Wrap(err, "failed to get IN endpoint")
	}

	epOut, err := iface.OutEndpoint(EP5Number)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, errors.Wrap(err, "failed to get OUT endpoint")
	}

	d := NewDevice(epIn, epOut, log)
	d.Serial = serial
	d.closer = func() error {
		iface.Close()
		config.Close()
		return usbDev.Close()
	}

	d.drain()
	return d, nil
}

// Close idles the radio and releases the USB device
func (d *Device) Close() error {
	if err := d.SetIdle(); err != nil {
		d.log.WithError(err).Warn("failed to idle radio on close")
	}
	if d.closer != nil {
		return d.closer()
	}
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("YardStick One (Serial: %s)", d.Serial)
}

// drain discards stale data left from a previous session
func (d *Device) drain() {
	buf := make([]byte, readChunkSize)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		n, err := d.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil || n == 0 {
			break
		}
	}
	d.recvBuf = d.recvBuf[:0]
}

// Send sends a command via EP5 and waits for its response.
// Protocol: app(1) + cmd(1) + length(2 LE) + payload
func (d *Device) Send(app, cmd uint8, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout == 0 {
		timeout = USBDefaultTimeout
	}

	packet := make([]byte, 4+len(payload))
	packet[0] = app
	packet[1] = cmd
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(payload)))
	copy(packet[4:], payload)

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	n, err := d.epOut.WriteContext(ctx, packet)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to write to EP5")
	}
	if n != len(packet) {
		return nil, errors.Errorf("short write: wrote %d of %d bytes", n, len(packet))
	}

	return d.recv(app, cmd, timeout)
}

// recv reads until a response for app/cmd is buffered.
// Response format: '@'(1) + app(1) + cmd(1) + length(2 LE) + payload
func (d *Device) recv(app, cmd uint8, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, readChunkSize)

	for {
		if payload, ok := d.parseResponse(app, cmd); ok {
			return payload, nil
		}

		left := time.Until(deadline)
		if left <= 0 {
			return nil, errors.Wrapf(ErrTimeout, "app 0x%02X cmd 0x%02X", app, cmd)
		}
		if left > usbPollInterval {
			left = usbPollInterval
		}

		ctx, cancel := context.WithTimeout(context.Background(), left)
		n, err := d.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return nil, errors.Wrap(err, "failed to read from EP5")
		}
		d.recvBuf = append(d.recvBuf, buf[:n]...)
	}
}

// parseResponse extracts the first complete response for app/cmd from the
// receive buffer. Responses for other commands are skipped.
func (d *Device) parseResponse(app, cmd uint8) ([]byte, bool) {
	for {
		idx := -1
		for i, b := range d.recvBuf {
			if b == ResponseMarker {
				idx = i
				break
			}
		}
		if idx == -1 {
			d.recvBuf = d.recvBuf[:0]
			return nil, false
		}
		data := d.recvBuf[idx:]

		// marker + app + cmd + length(2)
		if len(data) < 5 {
			d.recvBuf = data
			return nil, false
		}
		length := int(binary.LittleEndian.Uint16(data[3:5]))
		total := 5 + length
		if len(data) < total {
			d.recvBuf = data
			return nil, false
		}

		if data[1] != app || data[2] != cmd {
			d.log.WithFields(logrus.Fields{
				"app": data[1],
				"cmd": data[2],
			}).Debug("skipping unexpected response")
			d.recvBuf = data[total:]
			continue
		}

		payload := make([]byte, length)
		copy(payload, data[5:total])
		d.recvBuf = data[total:]
		return payload, true
	}
}

// Ping sends data and verifies it is echoed back
func (d *Device) Ping(data []byte) error {
	response, err := d.Send(AppSystem, SysCmdPing, data, USBDefaultTimeout)
	if err != nil {
		return errors.Wrap(err, "ping failed")
	}
	if string(response) != string(data) {
		return errors.Errorf("ping response mismatch: sent % X, got % X", data, response)
	}
	return nil
}

// Peek reads bytes from device memory
func (d *Device) Peek(address, length uint16) ([]byte, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], length)
	binary.LittleEndian.PutUint16(payload[2:4], address)

	response, err := d.Send(AppSystem, SysCmdPeek, payload, USBDefaultTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "peek failed at 0x%04X", address)
	}
	return response, nil
}

// PeekByte reads a single byte from device memory
func (d *Device) PeekByte(address uint16) (uint8, error) {
	data, err := d.Peek(address, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, errors.Errorf("peek at 0x%04X returned no data", address)
	}
	return data[0], nil
}

// Poke writes bytes to device memory
func (d *Device) Poke(address uint16, data []byte) error {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], address)
	copy(payload[2:], data)

	response, err := d.Send(AppSystem, SysCmdPoke, payload, USBDefaultTimeout)
	if err != nil {
		return errors.Wrapf(err, "poke failed at 0x%04X", address)
	}

	// bytes left, 0 on success
	if len(response) >= 2 {
		if left := binary.LittleEndian.Uint16(response[0:2]); left != 0 {
			return errors.Errorf("poke at 0x%04X incomplete: %d bytes left", address, left)
		}
	}
	return nil
}

// PokeByte writes a single byte to device memory
func (d *Device) PokeByte(address uint16, value uint8) error {
	return d.Poke(address, []byte{value})
}

// PartNum returns the chip part number
func (d *Device) PartNum() (uint8, error) {
	response, err := d.Send(AppSystem, SysCmdPartNum, nil, USBDefaultTimeout)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get part number")
	}
	if len(response) < 1 {
		return 0, errors.New("empty part number response")
	}
	return response[0], nil
}

// BuildType returns the firmware build string
func (d *Device) BuildType() (string, error) {
	response, err := d.Send(AppSystem, SysCmdBuildType, nil, USBDefaultTimeout)
	if err != nil {
		return "", errors.Wrap(err, "failed to get build type")
	}
	if i := strings.IndexByte(string(response), 0); i >= 0 {
		response = response[:i]
	}
	return string(response), nil
}
