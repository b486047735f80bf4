package cc1101

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// SPIClock is the SCLK frequency used by Open
const SPIClock = 5 * physic.MegaHertz

// Open connects to a CC1101 on the named SPI port with GDO0 on the named
// GPIO. Host drivers must be loaded first (periph host.Init). Close the
// returned port when done.
func Open(spiName, gdo0Name string, log logrus.FieldLogger) (*Radio, spi.PortCloser, error) {
	port, err := spireg.Open(spiName)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open SPI port %q", spiName)
	}

	conn, err := port.Connect(SPIClock, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, nil, errors.Wrap(err, "failed to configure SPI")
	}

	pin := gpioreg.ByName(gdo0Name)
	if pin == nil {
		port.Close()
		return nil, nil, errors.Errorf("GPIO %q not found", gdo0Name)
	}

	r, err := New(conn, pin, log)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return r, port, nil
}
