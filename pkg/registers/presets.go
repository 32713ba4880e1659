package registers

// ReceivePreset returns the base register configuration for RSSI survey
// reception: 433.92 MHz GFSK at 1.2 kbps with a 203 kHz channel filter,
// automatic synthesizer calibration disabled so calibration timing stays
// under host control.
func ReceivePreset() RegisterMap {
	return RegisterMap{
		IOCFG2:   0x29, // CHIP_RDYn
		IOCFG1:   0x2E, // Tri-state
		IOCFG0:   0x06, // Sync word sent/received
		FIFOTHR:  0x47,
		SYNC1:    0xD3,
		SYNC0:    0x91,
		PKTLEN:   0xFF,
		PKTCTRL1: 0x04, // Append RSSI/LQI status bytes
		PKTCTRL0: 0x05, // Variable length, CRC enabled
		ADDR:     0x00,
		CHANNR:   0x00,
		FSCTRL1:  0x06, // 152 kHz IF
		FSCTRL0:  0x00,
		FREQ2:    0x10, // 433.92 MHz
		FREQ1:    0xB0,
		FREQ0:    0x71,
		MDMCFG4:  0x85, // 203 kHz BW, DRATE_E=5
		MDMCFG3:  0x83, // 1.2 kbps
		MDMCFG2:  0x13, // GFSK, 30/32 sync bits
		MDMCFG1:  0x22, // 4 preamble bytes, FEC off
		MDMCFG0:  0xF8, // 200 kHz channel spacing
		DEVIATN:  0x46, // 44.4 kHz
		MCSM2:    0x07,
		MCSM1:    0x30, // RX and TX both return to IDLE
		MCSM0:    0x08, // FS_AUTOCAL=0, calibration by SCAL only
		FOCCFG:   0x16,
		BSCFG:    0x6C,
		AGCCTRL2: 0x03,
		AGCCTRL1: 0x40,
		AGCCTRL0: 0x91,
		WOREVT1:  0x87,
		WOREVT0:  0x6B,
		WORCTRL:  0xF8,
		FREND1:   0x56,
		FREND0:   0x10,
		FSCAL3:   0xE9,
		FSCAL2:   0x2A,
		FSCAL1:   0x00,
		FSCAL0:   0x1F,
		RCCTRL1:  0x41,
		RCCTRL0:  0x00,
		FSTEST:   0x59,
		PTEST:    0x7F,
		AGCTEST:  0x3F,
		TEST2:    0x81,
		TEST1:    0x35,
		TEST0:    0x09,
	}
}
