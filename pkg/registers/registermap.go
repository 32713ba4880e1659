package registers

import (
	"github.com/herlein/rfwatch/pkg/codec"
)

// RegisterMap mirrors the CC1101 configuration register block. Field order
// matches the on-chip address order so the whole block can be moved with a
// single burst transfer.
type RegisterMap struct {
	IOCFG2   uint8 `json:"iocfg2"`   // 0x00
	IOCFG1   uint8 `json:"iocfg1"`   // 0x01
	IOCFG0   uint8 `json:"iocfg0"`   // 0x02
	FIFOTHR  uint8 `json:"fifothr"`  // 0x03
	SYNC1    uint8 `json:"sync1"`    // 0x04
	SYNC0    uint8 `json:"sync0"`    // 0x05
	PKTLEN   uint8 `json:"pktlen"`   // 0x06
	PKTCTRL1 uint8 `json:"pktctrl1"` // 0x07
	PKTCTRL0 uint8 `json:"pktctrl0"` // 0x08
	ADDR     uint8 `json:"addr"`     // 0x09
	CHANNR   uint8 `json:"channr"`   // 0x0A
	FSCTRL1  uint8 `json:"fsctrl1"`  // 0x0B
	FSCTRL0  uint8 `json:"fsctrl0"`  // 0x0C
	FREQ2    uint8 `json:"freq2"`    // 0x0D
	FREQ1    uint8 `json:"freq1"`    // 0x0E
	FREQ0    uint8 `json:"freq0"`    // 0x0F
	MDMCFG4  uint8 `json:"mdmcfg4"`  // 0x10
	MDMCFG3  uint8 `json:"mdmcfg3"`  // 0x11
	MDMCFG2  uint8 `json:"mdmcfg2"`  // 0x12
	MDMCFG1  uint8 `json:"mdmcfg1"`  // 0x13
	MDMCFG0  uint8 `json:"mdmcfg0"`  // 0x14
	DEVIATN  uint8 `json:"deviatn"`  // 0x15
	MCSM2    uint8 `json:"mcsm2"`    // 0x16
	MCSM1    uint8 `json:"mcsm1"`    // 0x17
	MCSM0    uint8 `json:"mcsm0"`    // 0x18
	FOCCFG   uint8 `json:"foccfg"`   // 0x19
	BSCFG    uint8 `json:"bscfg"`    // 0x1A
	AGCCTRL2 uint8 `json:"agcctrl2"` // 0x1B
	AGCCTRL1 uint8 `json:"agcctrl1"` // 0x1C
	AGCCTRL0 uint8 `json:"agcctrl0"` // 0x1D
	WOREVT1  uint8 `json:"worevt1"`  // 0x1E
	WOREVT0  uint8 `json:"worevt0"`  // 0x1F
	WORCTRL  uint8 `json:"worctrl"`  // 0x20
	FREND1   uint8 `json:"frend1"`   // 0x21
	FREND0   uint8 `json:"frend0"`   // 0x22
	FSCAL3   uint8 `json:"fscal3"`   // 0x23
	FSCAL2   uint8 `json:"fscal2"`   // 0x24
	FSCAL1   uint8 `json:"fscal1"`   // 0x25
	FSCAL0   uint8 `json:"fscal0"`   // 0x26
	RCCTRL1  uint8 `json:"rcctrl1"`  // 0x27
	RCCTRL0  uint8 `json:"rcctrl0"`  // 0x28
	FSTEST   uint8 `json:"fstest"`   // 0x29
	PTEST    uint8 `json:"ptest"`    // 0x2A
	AGCTEST  uint8 `json:"agctest"`  // 0x2B
	TEST2    uint8 `json:"test2"`    // 0x2C
	TEST1    uint8 `json:"test1"`    // 0x2D
	TEST0    uint8 `json:"test0"`    // 0x2E
}

// Bytes serializes the register map in address order.
func (r *RegisterMap) Bytes() []byte {
	return []byte{
		r.IOCFG2, r.IOCFG1, r.IOCFG0, r.FIFOTHR,
		r.SYNC1, r.SYNC0, r.PKTLEN, r.PKTCTRL1, r.PKTCTRL0,
		r.ADDR, r.CHANNR, r.FSCTRL1, r.FSCTRL0,
		r.FREQ2, r.FREQ1, r.FREQ0,
		r.MDMCFG4, r.MDMCFG3, r.MDMCFG2, r.MDMCFG1, r.MDMCFG0,
		r.DEVIATN, r.MCSM2, r.MCSM1, r.MCSM0,
		r.FOCCFG, r.BSCFG,
		r.AGCCTRL2, r.AGCCTRL1, r.AGCCTRL0,
		r.WOREVT1, r.WOREVT0, r.WORCTRL,
		r.FREND1, r.FREND0,
		r.FSCAL3, r.FSCAL2, r.FSCAL1, r.FSCAL0,
		r.RCCTRL1, r.RCCTRL0,
		r.FSTEST, r.PTEST, r.AGCTEST,
		r.TEST2, r.TEST1, r.TEST0,
	}
}

// FromBytes fills the register map from an address-ordered block as returned
// by a burst read starting at address 0x00. Short blocks fill a prefix.
func (r *RegisterMap) FromBytes(data []byte) {
	fields := []*uint8{
		&r.IOCFG2, &r.IOCFG1, &r.IOCFG0, &r.FIFOTHR,
		&r.SYNC1, &r.SYNC0, &r.PKTLEN, &r.PKTCTRL1, &r.PKTCTRL0,
		&r.ADDR, &r.CHANNR, &r.FSCTRL1, &r.FSCTRL0,
		&r.FREQ2, &r.FREQ1, &r.FREQ0,
		&r.MDMCFG4, &r.MDMCFG3, &r.MDMCFG2, &r.MDMCFG1, &r.MDMCFG0,
		&r.DEVIATN, &r.MCSM2, &r.MCSM1, &r.MCSM0,
		&r.FOCCFG, &r.BSCFG,
		&r.AGCCTRL2, &r.AGCCTRL1, &r.AGCCTRL0,
		&r.WOREVT1, &r.WOREVT0, &r.WORCTRL,
		&r.FREND1, &r.FREND0,
		&r.FSCAL3, &r.FSCAL2, &r.FSCAL1, &r.FSCAL0,
		&r.RCCTRL1, &r.RCCTRL0,
		&r.FSTEST, &r.PTEST, &r.AGCTEST,
		&r.TEST2, &r.TEST1, &r.TEST0,
	}
	for i, field := range fields {
		if i >= len(data) {
			break
		}
		*field = data[i]
	}
}

// Frequency returns the programmed carrier frequency in MHz.
func (r *RegisterMap) Frequency() float64 {
	return codec.FreqFromRegs(r.FREQ2, r.FREQ1, r.FREQ0)
}

// SetFrequency programs the carrier frequency registers.
func (r *RegisterMap) SetFrequency(freqMHz float64) error {
	freq2, freq1, freq0, err := codec.CalcFreqRegs(freqMHz)
	if err != nil {
		return err
	}
	r.FREQ2, r.FREQ1, r.FREQ0 = freq2, freq1, freq0
	return nil
}

// DataRate returns the programmed data rate in kbps.
func (r *RegisterMap) DataRate() float64 {
	return codec.DataRateFromRegs(r.MDMCFG4&0x0F, r.MDMCFG3)
}

// Deviation returns the programmed FSK deviation in kHz.
func (r *RegisterMap) Deviation() float64 {
	return codec.DeviationFromRegs(r.DEVIATN)
}

// ChannelBW returns the programmed channel filter bandwidth in kHz.
func (r *RegisterMap) ChannelBW() float64 {
	return codec.ChannelBWFromRegs((r.MDMCFG4>>6)&0x03, (r.MDMCFG4>>4)&0x03)
}

// SyncWord returns the programmed 16-bit sync word.
func (r *RegisterMap) SyncWord() uint16 {
	return uint16(r.SYNC1)<<8 | uint16(r.SYNC0)
}

// SetSyncWord programs the 16-bit sync word.
func (r *RegisterMap) SetSyncWord(word uint16) {
	r.SYNC1 = uint8(word >> 8)
	r.SYNC0 = uint8(word & 0xFF)
}

// Modulation returns the modulation format bits from MDMCFG2.
func (r *RegisterMap) Modulation() uint8 {
	return r.MDMCFG2 & ModulationMask
}

// SetModulation replaces the modulation format bits in MDMCFG2.
func (r *RegisterMap) SetModulation(mod uint8) {
	r.MDMCFG2 = (r.MDMCFG2 &^ ModulationMask) | (mod & ModulationMask)
}
