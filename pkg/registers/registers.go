// Package registers defines the CC1101 register space: configuration
// register addresses, read-only status registers, command strobes and the
// main radio control state machine values.
package registers

import "fmt"

// Configuration register addresses (0x00 - 0x2E).
const (
	RegIOCFG2   = 0x00 // GDO2 output pin configuration
	RegIOCFG1   = 0x01 // GDO1 output pin configuration
	RegIOCFG0   = 0x02 // GDO0 output pin configuration
	RegFIFOTHR  = 0x03 // RX FIFO and TX FIFO thresholds
	RegSYNC1    = 0x04 // Sync word, high byte
	RegSYNC0    = 0x05 // Sync word, low byte
	RegPKTLEN   = 0x06 // Packet length
	RegPKTCTRL1 = 0x07 // Packet automation control
	RegPKTCTRL0 = 0x08 // Packet automation control
	RegADDR     = 0x09 // Device address
	RegCHANNR   = 0x0A // Channel number
	RegFSCTRL1  = 0x0B // Frequency synthesizer control
	RegFSCTRL0  = 0x0C // Frequency synthesizer control
	RegFREQ2    = 0x0D // Frequency control word, high byte
	RegFREQ1    = 0x0E // Frequency control word, middle byte
	RegFREQ0    = 0x0F // Frequency control word, low byte
	RegMDMCFG4  = 0x10 // Modem configuration (CHANBW, DRATE_E)
	RegMDMCFG3  = 0x11 // Modem configuration (DRATE_M)
	RegMDMCFG2  = 0x12 // Modem configuration (modulation, sync mode)
	RegMDMCFG1  = 0x13 // Modem configuration (FEC, preamble)
	RegMDMCFG0  = 0x14 // Modem configuration (channel spacing)
	RegDEVIATN  = 0x15 // Modem deviation setting
	RegMCSM2    = 0x16 // Main radio control state machine configuration
	RegMCSM1    = 0x17 // Main radio control state machine configuration
	RegMCSM0    = 0x18 // Main radio control state machine configuration
	RegFOCCFG   = 0x19 // Frequency offset compensation configuration
	RegBSCFG    = 0x1A // Bit synchronization configuration
	RegAGCCTRL2 = 0x1B // AGC control
	RegAGCCTRL1 = 0x1C // AGC control
	RegAGCCTRL0 = 0x1D // AGC control
	RegWOREVT1  = 0x1E // Event 0 timeout, high byte
	RegWOREVT0  = 0x1F // Event 0 timeout, low byte
	RegWORCTRL  = 0x20 // Wake-on-radio control
	RegFREND1   = 0x21 // Front end RX configuration
	RegFREND0   = 0x22 // Front end TX configuration
	RegFSCAL3   = 0x23 // Frequency synthesizer calibration
	RegFSCAL2   = 0x24 // Frequency synthesizer calibration
	RegFSCAL1   = 0x25 // Frequency synthesizer calibration
	RegFSCAL0   = 0x26 // Frequency synthesizer calibration
	RegRCCTRL1  = 0x27 // RC oscillator configuration
	RegRCCTRL0  = 0x28 // RC oscillator configuration
	RegFSTEST   = 0x29 // Frequency synthesizer calibration control
	RegPTEST    = 0x2A // Production test
	RegAGCTEST  = 0x2B // AGC test
	RegTEST2    = 0x2C // Test settings
	RegTEST1    = 0x2D // Test settings
	RegTEST0    = 0x2E // Test settings
)

// NumConfigRegisters is the size of the burst-readable configuration block.
const NumConfigRegisters = 0x2F

// Multi-byte register addresses.
const (
	RegPATABLE = 0x3E // Power amplifier table
	RegFIFO    = 0x3F // TX/RX FIFO access
)

// Status register addresses. Status registers share the strobe address range
// and are selected by setting the burst bit in the SPI header.
const (
	RegPARTNUM       = 0x30 // Chip part number
	RegVERSION       = 0x31 // Chip version number
	RegFREQEST       = 0x32 // Frequency offset estimate
	RegLQI           = 0x33 // Link quality estimate and CRC_OK flag
	RegRSSI          = 0x34 // Received signal strength indication
	RegMARCSTATE     = 0x35 // Main radio control state
	RegWORTIME1      = 0x36 // WOR timer, high byte
	RegWORTIME0      = 0x37 // WOR timer, low byte
	RegPKTSTATUS     = 0x38 // GDOx status and packet status
	RegVCOVCDAC      = 0x39 // PLL calibration module setting
	RegTXBYTES       = 0x3A // Underflow flag and number of bytes in TX FIFO
	RegRXBYTES       = 0x3B // Overflow flag and number of bytes in RX FIFO
	RegRCCTRL1Status = 0x3C // Last RC oscillator calibration result
	RegRCCTRL0Status = 0x3D // Last RC oscillator calibration result
)

// SPI header bits.
const (
	SPIReadBit  = 0x80
	SPIBurstBit = 0x40
)

// Command strobes. A strobe is a single-byte SPI header with no data phase.
const (
	StrobeSRES    = 0x30 // Reset chip
	StrobeSFSTXON = 0x31 // Enable and calibrate frequency synthesizer
	StrobeSXOFF   = 0x32 // Turn off crystal oscillator
	StrobeSCAL    = 0x33 // Calibrate frequency synthesizer, then idle
	StrobeSRX     = 0x34 // Enable RX
	StrobeSTX     = 0x35 // Enable TX
	StrobeSIDLE   = 0x36 // Exit RX/TX, turn off frequency synthesizer
	StrobeSWOR    = 0x38 // Start wake-on-radio
	StrobeSPWD    = 0x39 // Power down when CSn goes high
	StrobeSFRX    = 0x3A // Flush the RX FIFO
	StrobeSFTX    = 0x3B // Flush the TX FIFO
	StrobeSWORRST = 0x3C // Reset the WOR timer
	StrobeSNOP    = 0x3D // No operation
)

// Expected identity register values. Version 0x04 is early production
// silicon, 0x14 is the current revision.
const (
	PartNumCC1101       = 0x00
	VersionCC1101       = 0x14
	VersionCC1101Legacy = 0x04
)

// RadioState represents the main radio control state read from MARCSTATE.
type RadioState uint8

const (
	StateSLEEP       RadioState = 0x00
	StateIDLE        RadioState = 0x01
	StateXOFF        RadioState = 0x02
	StateVCOON_MC    RadioState = 0x03
	StateREGON_MC    RadioState = 0x04
	StateMAN_CAL     RadioState = 0x05
	StateVCOON       RadioState = 0x06
	StateREGON       RadioState = 0x07
	StateSTARTCAL    RadioState = 0x08
	StateBWBOOST     RadioState = 0x09
	StateFS_LOCK     RadioState = 0x0A
	StateIFADCON     RadioState = 0x0B
	StateENDCAL      RadioState = 0x0C
	StateRX          RadioState = 0x0D
	StateRX_END      RadioState = 0x0E
	StateRX_RST      RadioState = 0x0F
	StateTXRX_SWITCH RadioState = 0x10
	StateRXFIFO_OVF  RadioState = 0x11
	StateFSTXON      RadioState = 0x12
	StateTX          RadioState = 0x13
	StateTX_END      RadioState = 0x14
	StateRXTX_SWITCH RadioState = 0x15
	StateTXFIFO_UNF  RadioState = 0x16
)

// StateMask extracts the 5-bit state from a raw MARCSTATE read.
const StateMask = 0x1F

// String returns a human-readable state name.
func (s RadioState) String() string {
	names := map[RadioState]string{
		StateSLEEP:       "SLEEP",
		StateIDLE:        "IDLE",
		StateXOFF:        "XOFF",
		StateVCOON_MC:    "VCOON_MC",
		StateREGON_MC:    "REGON_MC",
		StateMAN_CAL:     "MANCAL",
		StateVCOON:       "VCOON",
		StateREGON:       "REGON",
		StateSTARTCAL:    "STARTCAL",
		StateBWBOOST:     "BWBOOST",
		StateFS_LOCK:     "FS_LOCK",
		StateIFADCON:     "IFADCON",
		StateENDCAL:      "ENDCAL",
		StateRX:          "RX",
		StateRX_END:      "RX_END",
		StateRX_RST:      "RX_RST",
		StateTXRX_SWITCH: "TXRX_SWITCH",
		StateRXFIFO_OVF:  "RXFIFO_OVERFLOW",
		StateFSTXON:      "FSTXON",
		StateTX:          "TX",
		StateTX_END:      "TX_END",
		StateRXTX_SWITCH: "RXTX_SWITCH",
		StateTXFIFO_UNF:  "TXFIFO_UNDERFLOW",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Modulation formats (MDMCFG2[6:4]).
const (
	Mod2FSK   = 0x00 // 2-FSK
	ModGFSK   = 0x10 // GFSK
	ModASKOOK = 0x30 // ASK/OOK
	Mod4FSK   = 0x40 // 4-FSK
	ModMSK    = 0x70 // MSK
)

// ModulationMask extracts the modulation format bits from MDMCFG2.
const ModulationMask = 0x70

// ParseModulation converts a modulation name to its MDMCFG2 bits.
func ParseModulation(name string) (uint8, error) {
	switch name {
	case "2fsk":
		return Mod2FSK, nil
	case "gfsk":
		return ModGFSK, nil
	case "ask_ook", "ook":
		return ModASKOOK, nil
	case "4fsk":
		return Mod4FSK, nil
	case "msk":
		return ModMSK, nil
	}
	return 0, fmt.Errorf("unknown modulation %q", name)
}

// ModulationName converts MDMCFG2 modulation bits back to the config name.
func ModulationName(bits uint8) string {
	switch bits & ModulationMask {
	case Mod2FSK:
		return "2fsk"
	case ModGFSK:
		return "gfsk"
	case ModASKOOK:
		return "ask_ook"
	case Mod4FSK:
		return "4fsk"
	case ModMSK:
		return "msk"
	}
	return "unknown"
}

// Sync word qualifier modes (MDMCFG2[2:0]).
const (
	SyncModeNone      = 0x00 // No preamble/sync
	SyncMode15of16    = 0x01 // 15/16 sync word bits detected
	SyncMode16of16    = 0x02 // 16/16 sync word bits detected
	SyncMode30of32    = 0x03 // 30/32 sync word bits detected
	SyncModeCarrier   = 0x04 // No preamble/sync, carrier sense above threshold
	SyncMode15Carrier = 0x05 // 15/16 + carrier sense
	SyncMode16Carrier = 0x06 // 16/16 + carrier sense
	SyncMode30Carrier = 0x07 // 30/32 + carrier sense
)
