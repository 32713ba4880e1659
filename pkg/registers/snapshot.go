package registers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is a point-in-time capture of a chip's configuration block,
// suitable for saving to disk and applying to another chip.
type Snapshot struct {
	Description string      `json:"description,omitempty"`
	PartNum     uint8       `json:"part_num"`
	Version     uint8       `json:"version"`
	Timestamp   time.Time   `json:"timestamp"`
	Registers   RegisterMap `json:"registers"`
}

// Capture reads the chip identity and full register block. The radio is
// moved to IDLE for the read and restored to RX afterwards if it was
// receiving.
func Capture(p Port, description string) (*Snapshot, error) {
	originalState, err := ReadState(p)
	if err != nil {
		return nil, fmt.Errorf("failed to get radio state: %w", err)
	}

	if originalState != StateIDLE {
		if err := p.Strobe(StrobeSIDLE); err != nil {
			return nil, fmt.Errorf("failed to set IDLE state: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	partNum, version, err := ReadIdentity(p)
	if err != nil {
		return nil, err
	}

	regs, err := ReadAll(p)
	if err != nil {
		return nil, err
	}

	if originalState == StateRX {
		p.Strobe(StrobeSRX)
	}

	return &Snapshot{
		Description: description,
		PartNum:     partNum,
		Version:     version,
		Timestamp:   time.Now(),
		Registers:   *regs,
	}, nil
}

// Apply writes the snapshot's register block to a chip. The radio is moved
// to IDLE for the write and restored to RX afterwards if it was receiving.
func (s *Snapshot) Apply(p Port) error {
	originalState, err := ReadState(p)
	if err != nil {
		return fmt.Errorf("failed to get radio state: %w", err)
	}

	if originalState != StateIDLE {
		if err := p.Strobe(StrobeSIDLE); err != nil {
			return fmt.Errorf("failed to set IDLE state: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := WriteAll(p, &s.Registers); err != nil {
		return err
	}

	if originalState == StateRX {
		if err := p.Strobe(StrobeSRX); err != nil {
			return fmt.Errorf("failed to restore RX state: %w", err)
		}
	}
	return nil
}

// SaveToFile writes the snapshot as indented JSON, creating parent
// directories as needed.
func (s *Snapshot) SaveToFile(path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// LoadSnapshot reads a snapshot previously written by SaveToFile.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &s, nil
}
