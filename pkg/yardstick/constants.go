package yardstick

import (
	"time"

	"github.com/herlein/rfsignal/pkg/profiles"
)

// USB Device Identifiers
const (
	VendorID  = 0x1D50
	ProductID = 0x605B // YardStick One
)

// USB Endpoint Configuration
const (
	EP5Number        = 5
	EP5OutBufferSize = 516
	ResponseMarker   = 0x40 // '@' character marks start of response
	readChunkSize    = 512
)

// USB Timeouts
const (
	USBDefaultTimeout = 1000 * time.Millisecond
	USBTXWaitTimeout  = 10000 * time.Millisecond
	usbPollInterval   = 100 * time.Millisecond
)

// Application IDs for EP5 protocol
const (
	AppNIC    = 0x42 // Radio NIC operations
	AppSystem = 0xFF // System/administrative commands
)

// System Commands (APP_SYSTEM = 0xFF)
const (
	SysCmdPeek      = 0x80 // Read memory
	SysCmdPoke      = 0x81 // Write memory
	SysCmdPing      = 0x82 // Echo test
	SysCmdBuildType = 0x86 // Get firmware build info
	SysCmdRFMode    = 0x88 // Set radio mode
	SysCmdPartNum   = 0x8E // Get chip part number
)

// NIC Commands (APP_NIC = 0x42)
const (
	NICXmit       = 0x02 // Transmit RF data
	NICSetAmpMode = 0x0A // Set amplifier mode
)

// Radio Strobe Commands (RFST register values)
const (
	RFSTSrx   = 0x02 // Enable RX
	RFSTStx   = 0x03 // Enable TX
	RFSTSidle = 0x04 // Idle mode
)

// MARCSTATE values
const (
	MarcStateIdle = 0x01
	MarcStateRX   = 0x0D
	MarcStateTX   = 0x13
)

// Amplifier Mode values
const (
	AmpModeOff = 0x00
	AmpModeOn  = 0x01
)

// RFMaxTXBlock is the largest frame NIC_XMIT accepts
const RFMaxTXBlock = 255

// CC1111 XDATA register addresses
const (
	RegPKTLEN    = 0xDF02
	RegPKTCTRL0  = 0xDF04
	RegMDMCFG4   = 0xDF0C
	RegMDMCFG3   = 0xDF0D
	RegMDMCFG2   = 0xDF0E
	RegPATable0  = 0xDF2E
	RegMARCSTATE = 0xDF3B
	RegRFST      = 0xDFE1
)

// registerAddr maps profile registers to CC1111 XDATA addresses
var registerAddr = [profiles.NumRegisters]uint16{
	profiles.IOCFG0:   0xDF31,
	profiles.PKTCTRL0: RegPKTCTRL0,
	profiles.FSCTRL1:  0xDF07,
	profiles.FREQ2:    0xDF09,
	profiles.FREQ1:    0xDF0A,
	profiles.FREQ0:    0xDF0B,
	profiles.MDMCFG4:  RegMDMCFG4,
	profiles.MDMCFG3:  RegMDMCFG3,
	profiles.MDMCFG2:  RegMDMCFG2,
	profiles.MDMCFG1:  0xDF0F,
	profiles.DEVIATN:  0xDF11,
	profiles.MCSM0:    0xDF14,
	profiles.FOCCFG:   0xDF15,
	profiles.AGCCTRL2: 0xDF17,
	profiles.AGCCTRL1: 0xDF18,
	profiles.AGCCTRL0: 0xDF19,
	profiles.FREND1:   0xDF1A,
	profiles.FREND0:   0xDF1B,
	profiles.FSCAL3:   0xDF1C,
	profiles.FSCAL2:   0xDF1D,
	profiles.FSCAL1:   0xDF1E,
	profiles.FSCAL0:   0xDF1F,
	profiles.TEST2:    0xDF23,
	profiles.TEST1:    0xDF24,
	profiles.TEST0:    0xDF25,
}
