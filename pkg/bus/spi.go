package bus

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/herlein/rfwatch/pkg/registers"
)

type spiBus struct {
	port   spi.PortCloser
	conn   spi.Conn
	mu     sync.Mutex
	closed bool
}

// openSPI connects to a CC1101 wired to a native SPI port. The chip uses
// SPI mode 0 with the header byte carrying the read and burst flags.
func openSPI(cfg SPIConfig) (*spiBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", cfg.Port, err)
	}

	speedKHz := cfg.SpeedKHz
	if speedKHz == 0 {
		speedKHz = DefaultSPISpeedKHz
	}

	conn, err := port.Connect(physic.Frequency(speedKHz)*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure SPI port: %w", err)
	}

	return &spiBus{port: port, conn: conn}, nil
}

func (b *spiBus) tx(write []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	read := make([]byte, len(write))
	if err := b.conn.Tx(write, read); err != nil {
		return nil, fmt.Errorf("SPI transfer failed: %w", err)
	}
	return read, nil
}

func (b *spiBus) ReadReg(addr uint8) (uint8, error) {
	read, err := b.tx([]byte{addr | registers.SPIReadBit, 0})
	if err != nil {
		return 0, err
	}
	return read[1], nil
}

func (b *spiBus) WriteReg(addr uint8, value uint8) error {
	_, err := b.tx([]byte{addr &^ (registers.SPIReadBit | registers.SPIBurstBit), value})
	return err
}

// ReadStatus reads a status register. Status registers share addresses with
// the command strobes and are selected by the burst bit.
func (b *spiBus) ReadStatus(addr uint8) (uint8, error) {
	read, err := b.tx([]byte{addr | registers.SPIReadBit | registers.SPIBurstBit, 0})
	if err != nil {
		return 0, err
	}
	return read[1], nil
}

func (b *spiBus) ReadBurst(addr uint8, n int) ([]byte, error) {
	write := make([]byte, n+1)
	write[0] = addr | registers.SPIReadBit | registers.SPIBurstBit
	read, err := b.tx(write)
	if err != nil {
		return nil, err
	}
	return read[1:], nil
}

func (b *spiBus) WriteBurst(addr uint8, data []byte) error {
	write := make([]byte, len(data)+1)
	write[0] = (addr &^ registers.SPIReadBit) | registers.SPIBurstBit
	copy(write[1:], data)
	_, err := b.tx(write)
	return err
}

func (b *spiBus) Strobe(cmd uint8) error {
	_, err := b.tx([]byte{cmd})
	return err
}

// Reset issues the SRES strobe. The crystal needs a moment to stabilize
// before the chip accepts further traffic.
func (b *spiBus) Reset() error {
	if err := b.Strobe(registers.StrobeSRES); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	return nil
}

func (b *spiBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.port.Close()
}
