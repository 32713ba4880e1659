package codec

import "math"

// Data rate programming limits in kbps. Requests outside the range are
// replaced by the default rather than rejected.
const (
	DataRateMinKbps     = 0.6
	DataRateMaxKbps     = 500.0
	DataRateDefaultKbps = 1.2
)

// Deviation programming limits in kHz.
const (
	DeviationMinKHz     = 1.587
	DeviationMaxKHz     = 380.0
	DeviationDefaultKHz = 45.0
)

// Channel filter bandwidth limits in kHz.
const (
	ChannelBWMinKHz     = 58.036
	ChannelBWMaxKHz     = 812.5
	ChannelBWDefaultKHz = 203.125
)

// CalcDataRateRegs calculates the DRATE_E exponent and DRATE_M mantissa for a
// data rate in kbps. The exponent is floor(log2(rate * 2^20 / crystal)) and
// the mantissa is rounded from rate * 2^28 / (crystal * 2^E) - 256. A rate
// outside [DataRateMinKbps, DataRateMaxKbps] is replaced by the default and
// reported through clamped.
func CalcDataRateRegs(kbps float64) (drateE, drateM uint8, clamped bool) {
	if kbps < DataRateMinKbps || kbps > DataRateMaxKbps {
		kbps = DataRateDefaultKbps
		clamped = true
	}

	baud := kbps * 1000.0
	e := math.Floor(math.Log2(baud * math.Pow(2, 20) / CrystalHz))
	m := math.Round(baud*math.Pow(2, 28)/(CrystalHz*math.Pow(2, e)) - 256.0)
	if m > 255 {
		// (256+256)*2^e is exactly (256+0)*2^(e+1)
		e++
		m = 0
	}
	return uint8(e), uint8(m), clamped
}

// DataRateFromRegs converts a DRATE_E/DRATE_M pair back to kbps.
func DataRateFromRegs(drateE, drateM uint8) float64 {
	return (256.0 + float64(drateM)) * math.Pow(2, float64(drateE)) * CrystalHz / math.Pow(2, 28) / 1000.0
}

// CalcDeviationRegs calculates the DEVIATN register value for an FSK
// deviation in kHz. The exponent is floor(log2(dev * 2^17 / crystal) - 3)
// and the mantissa is rounded from dev * 2^17 / (crystal * 2^E) - 8. A
// deviation outside [DeviationMinKHz, DeviationMaxKHz] is replaced by the
// default and reported through clamped.
func CalcDeviationRegs(khz float64) (deviatn uint8, clamped bool) {
	if khz < DeviationMinKHz || khz > DeviationMaxKHz {
		khz = DeviationDefaultKHz
		clamped = true
	}

	hz := khz * 1000.0
	e := math.Floor(math.Log2(hz*math.Pow(2, 17)/CrystalHz) - 3.0)
	if e < 0 {
		e = 0
	}
	m := math.Round(hz*math.Pow(2, 17)/(CrystalHz*math.Pow(2, e)) - 8.0)
	if m > 7 {
		// (8+8)*2^e is exactly (8+0)*2^(e+1)
		e++
		m = 0
	}
	return uint8(e)<<4 | uint8(m), clamped
}

// DeviationFromRegs converts a DEVIATN register value back to kHz.
func DeviationFromRegs(deviatn uint8) float64 {
	e := float64((deviatn >> 4) & 0x07)
	m := float64(deviatn & 0x07)
	return CrystalHz / math.Pow(2, 17) * (8.0 + m) * math.Pow(2, e) / 1000.0
}

// CalcChannelBWRegs calculates the CHANBW_E/CHANBW_M pair for a channel
// filter bandwidth in kHz, picking the closest programmable setting.
// Requests outside the programmable range are clamped to the nearest edge.
func CalcChannelBWRegs(khz float64) (bwE, bwM uint8) {
	hz := khz * 1000.0
	if hz > ChannelBWMaxKHz*1000.0 {
		hz = ChannelBWMaxKHz * 1000.0
	}
	if hz < ChannelBWMinKHz*1000.0 {
		hz = ChannelBWMinKHz * 1000.0
	}

	for e := 0; e <= 3; e++ {
		m := math.Round(CrystalHz/(hz*8.0*math.Pow(2, float64(e))) - 4.0)
		if m >= 0 && m <= 3 {
			return uint8(e), uint8(m)
		}
	}
	return 3, 3
}

// ChannelBWFromRegs converts a CHANBW_E/CHANBW_M pair back to kHz.
func ChannelBWFromRegs(bwE, bwM uint8) float64 {
	return CrystalHz / (8.0 * (4.0 + float64(bwM)) * math.Pow(2, float64(bwE))) / 1000.0
}
