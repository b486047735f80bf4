package cc1101

import (
	"fmt"

	"github.com/herlein/rfsignal/pkg/profiles"
)

// SPI header bits
const (
	readFlag  = 0x80
	burstFlag = 0x40
	addrMask  = 0x3F
)

// Command strobes
const (
	StrobeSRES    = 0x30 // Reset chip
	StrobeSFSTXON = 0x31 // Enable and calibrate frequency synthesizer
	StrobeSXOFF   = 0x32 // Turn off crystal oscillator
	StrobeSCAL    = 0x33 // Calibrate frequency synthesizer
	StrobeSRX     = 0x34 // Enable RX
	StrobeSTX     = 0x35 // Enable TX
	StrobeSIDLE   = 0x36 // Exit RX/TX
	StrobeSFRX    = 0x3A // Flush RX FIFO
	StrobeSFTX    = 0x3B // Flush TX FIFO
	StrobeSNOP    = 0x3D // No operation
)

// Status registers, read with the burst bit set
const (
	RegPARTNUM   = 0x30
	RegVERSION   = 0x31
	RegRSSI      = 0x34
	RegMARCSTATE = 0x35
	RegPKTSTATUS = 0x38
)

// RegPATABLE is the PA power table, written as an 8 byte burst
const RegPATABLE = 0x3E

// registerAddr maps profile registers to CC1101 configuration addresses
var registerAddr = [profiles.NumRegisters]uint8{
	profiles.IOCFG0:   0x02,
	profiles.PKTCTRL0: 0x08,
	profiles.FSCTRL1:  0x0B,
	profiles.FREQ2:    0x0D,
	profiles.FREQ1:    0x0E,
	profiles.FREQ0:    0x0F,
	profiles.MDMCFG4:  0x10,
	profiles.MDMCFG3:  0x11,
	profiles.MDMCFG2:  0x12,
	profiles.MDMCFG1:  0x13,
	profiles.DEVIATN:  0x15,
	profiles.MCSM0:    0x18,
	profiles.FOCCFG:   0x19,
	profiles.AGCCTRL2: 0x1B,
	profiles.AGCCTRL1: 0x1C,
	profiles.AGCCTRL0: 0x1D,
	profiles.FREND1:   0x21,
	profiles.FREND0:   0x22,
	profiles.FSCAL3:   0x23,
	profiles.FSCAL2:   0x24,
	profiles.FSCAL1:   0x25,
	profiles.FSCAL0:   0x26,
	profiles.TEST2:    0x2C,
	profiles.TEST1:    0x2D,
	profiles.TEST0:    0x2E,
}

// RadioState is the main radio control state (MARCSTATE[4:0])
type RadioState uint8

const (
	StateSLEEP     RadioState = 0x00
	StateIDLE      RadioState = 0x01
	StateXOFF      RadioState = 0x02
	StateMANCAL    RadioState = 0x05
	StateFSWAKEUP  RadioState = 0x06
	StateCALIBRATE RadioState = 0x08
	StateSETTLING  RadioState = 0x09
	StateRX        RadioState = 0x0D
	StateRXEND     RadioState = 0x0E
	StateRXFIFOOVF RadioState = 0x11
	StateFSTXON    RadioState = 0x12
	StateTX        RadioState = 0x13
	StateTXEND     RadioState = 0x14
	StateTXFIFOUNF RadioState = 0x16
)

var stateNames = map[RadioState]string{
	StateSLEEP:     "SLEEP",
	StateIDLE:      "IDLE",
	StateXOFF:      "XOFF",
	StateMANCAL:    "MANCAL",
	StateFSWAKEUP:  "FS_WAKEUP",
	StateCALIBRATE: "CALIBRATE",
	StateSETTLING:  "SETTLING",
	StateRX:        "RX",
	StateRXEND:     "RX_END",
	StateRXFIFOOVF: "RXFIFO_OVERFLOW",
	StateFSTXON:    "FSTXON",
	StateTX:        "TX",
	StateTXEND:     "TX_END",
	StateTXFIFOUNF: "TXFIFO_UNDERFLOW",
}

func (s RadioState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
}
