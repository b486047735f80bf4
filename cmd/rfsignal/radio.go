package main

import (
	"github.com/google/gousb"
	"github.com/pkg/errors"
	"periph.io/x/host/v3"

	"github.com/herlein/rfsignal/pkg/cc1101"
	"github.com/herlein/rfsignal/pkg/config"
	"github.com/herlein/rfsignal/pkg/transmit"
	"github.com/herlein/rfsignal/pkg/yardstick"
)

// radioHandle is an opened and configured radio
type radioHandle struct {
	radio transmit.Radio
	cc    *cc1101.Radio // nil unless driver is cc1101
	close func()
}

// openRadio opens the configured radio and applies the configured profile
func openRadio() (*radioHandle, error) {
	profile, err := cfg.Radio.LoadProfile()
	if err != nil {
		return nil, err
	}

	switch cfg.Radio.Driver {
	case config.DriverCC1101:
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "failed to load host drivers")
		}
		r, port, err := cc1101.Open(cfg.Radio.SPIPort, cfg.Radio.GDO0Pin, log)
		if err != nil {
			return nil, err
		}
		r.EdgeTimeout = cfg.Radio.EdgeTimeout
		if err := r.Configure(profile); err != nil {
			port.Close()
			return nil, err
		}
		return &radioHandle{
			radio: r,
			cc:    r,
			close: func() {
				if err := r.SetIdle(); err != nil {
					log.WithError(err).Warn("failed to idle radio")
				}
				port.Close()
			},
		}, nil

	case config.DriverYardStick:
		usb := gousb.NewContext()
		d, err := yardstick.Open(usb, cfg.Radio.Device, log)
		if err != nil {
			usb.Close()
			return nil, err
		}
		closeAll := func() {
			d.Close()
			usb.Close()
		}
		if err := d.ApplyProfile(profile); err != nil {
			closeAll()
			return nil, err
		}
		if err := d.SetAmplifier(cfg.Radio.Amplifier); err != nil {
			closeAll()
			return nil, err
		}
		log.WithField("device", d.String()).Info("YardStick One ready")
		return &radioHandle{radio: d, close: closeAll}, nil
	}

	return nil, errors.Wrap(config.ErrInvalidConfig, "no radio driver configured")
}
