package registers

import "fmt"

// Accessor is the minimal register-level transport needed to move register
// blocks to and from a chip. The bus backends satisfy it.
type Accessor interface {
	ReadReg(addr uint8) (uint8, error)
	WriteReg(addr uint8, value uint8) error
	ReadStatus(addr uint8) (uint8, error)
	ReadBurst(addr uint8, n int) ([]byte, error)
	WriteBurst(addr uint8, data []byte) error
}

// Port extends Accessor with command strobes, enough to drive state changes
// around a register transaction.
type Port interface {
	Accessor
	Strobe(cmd uint8) error
}

// ReadAll reads the full configuration register block in one burst.
func ReadAll(a Accessor) (*RegisterMap, error) {
	data, err := a.ReadBurst(RegIOCFG2, NumConfigRegisters)
	if err != nil {
		return nil, fmt.Errorf("failed to read register block: %w", err)
	}
	if len(data) < NumConfigRegisters {
		return nil, fmt.Errorf("short register block read: got %d bytes, want %d", len(data), NumConfigRegisters)
	}

	regs := &RegisterMap{}
	regs.FromBytes(data)
	return regs, nil
}

// WriteAll writes the full configuration register block in one burst.
func WriteAll(a Accessor, regs *RegisterMap) error {
	if err := a.WriteBurst(RegIOCFG2, regs.Bytes()); err != nil {
		return fmt.Errorf("failed to write register block: %w", err)
	}
	return nil
}

// ReadState reads the main radio control state machine state.
func ReadState(a Accessor) (RadioState, error) {
	raw, err := a.ReadStatus(RegMARCSTATE)
	if err != nil {
		return 0, fmt.Errorf("failed to read MARCSTATE: %w", err)
	}
	return RadioState(raw & StateMask), nil
}

// ReadIdentity reads the part number and version status registers.
func ReadIdentity(a Accessor) (partNum, version uint8, err error) {
	partNum, err = a.ReadStatus(RegPARTNUM)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read PARTNUM: %w", err)
	}
	version, err = a.ReadStatus(RegVERSION)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read VERSION: %w", err)
	}
	return partNum, version, nil
}
