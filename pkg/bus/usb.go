//go:build cgo

package bus

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/rfwatch/pkg/registers"
)

// Bridge dongle EP5 protocol. Commands are framed as
// app(1) + cmd(1) + length(2 LE) + payload, responses as
// '@'(1) + app(1) + cmd(1) + length(2 LE) + payload.
const (
	appRadio = 0x52

	cmdRegRead    = 0x80 // payload: count(2 LE) + addr(2 LE), response: data
	cmdRegWrite   = 0x81 // payload: addr(2 LE) + data, response: bytes left(2 LE)
	cmdPing       = 0x82 // payload echoed back
	cmdStatusRead = 0x83 // payload: addr(2 LE), response: 1 byte
	cmdStrobe     = 0x84 // payload: strobe(1), response: chip status(1)
	cmdReset      = 0x8F // no payload, pulses the chip reset sequence

	responseMarker = '@'
	endpointNum    = 5
	readChunkSize  = 512
)

type usbBus struct {
	usbCtx       *gousb.Context
	usbDevice    *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface
	epIn         *gousb.InEndpoint
	epOut        *gousb.OutEndpoint
	serial       string
	timeout      time.Duration
	recvBuf      []byte
	recvMu       sync.Mutex
	closed       bool
	mu           sync.Mutex
}

// openUSB opens a bridge dongle, claims its bulk endpoints and verifies the
// command channel with a ping.
func openUSB(cfg USBConfig) (*usbBus, error) {
	vendor := cfg.Vendor
	if vendor == 0 {
		vendor = DefaultUSBVendor
	}
	product := cfg.Product
	if product == 0 {
		product = DefaultUSBProduct
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultUSBTimeout
	}

	usbCtx := gousb.NewContext()

	usbDev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(vendor), gousb.ID(product))
	if err != nil {
		usbCtx.Close()
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	if usbDev == nil {
		usbCtx.Close()
		return nil, fmt.Errorf("%w: %04x:%04x", ErrDeviceNotFound, vendor, product)
	}

	b, err := wrapDevice(usbCtx, usbDev, timeout)
	if err != nil {
		usbDev.Close()
		usbCtx.Close()
		return nil, err
	}

	if cfg.Serial != "" && b.serial != cfg.Serial {
		b.Close()
		return nil, fmt.Errorf("device serial mismatch: wanted %s, got %s", cfg.Serial, b.serial)
	}

	if err := b.ping(); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

func wrapDevice(usbCtx *gousb.Context, usbDev *gousb.Device, timeout time.Duration) (*usbBus, error) {
	serial, _ := usbDev.SerialNumber()

	usbDev.SetAutoDetach(true)

	config, err := usbDev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	epIn, err := iface.InEndpoint(endpointNum)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get IN endpoint: %w", err)
	}

	epOut, err := iface.OutEndpoint(endpointNum)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get OUT endpoint: %w", err)
	}

	b := &usbBus{
		usbCtx:       usbCtx,
		usbDevice:    usbDev,
		usbConfig:    config,
		usbInterface: iface,
		epIn:         epIn,
		epOut:        epOut,
		serial:       serial,
		timeout:      timeout,
		recvBuf:      make([]byte, 0, readChunkSize),
	}

	// Clear any stale data left from a previous session.
	b.drainReceiveBuffer()

	return b, nil
}

func (b *usbBus) ReadReg(addr uint8) (uint8, error) {
	data, err := b.ReadBurst(addr, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, fmt.Errorf("register read at 0x%02X returned no data", addr)
	}
	return data[0], nil
}

func (b *usbBus) WriteReg(addr uint8, value uint8) error {
	return b.WriteBurst(addr, []byte{value})
}

func (b *usbBus) ReadStatus(addr uint8) (uint8, error) {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, uint16(addr))

	response, err := b.send(cmdStatusRead, payload)
	if err != nil {
		return 0, fmt.Errorf("status read failed at 0x%02X: %w", addr, err)
	}
	if len(response) < 1 {
		return 0, fmt.Errorf("status read at 0x%02X returned no data", addr)
	}
	return response[0], nil
}

func (b *usbBus) ReadBurst(addr uint8, n int) ([]byte, error) {
	// Payload: bytecount(2 LE) + address(2 LE)
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], uint16(n))
	binary.LittleEndian.PutUint16(payload[2:4], uint16(addr))

	response, err := b.send(cmdRegRead, payload)
	if err != nil {
		return nil, fmt.Errorf("register read failed at 0x%02X: %w", addr, err)
	}
	return response, nil
}

func (b *usbBus) WriteBurst(addr uint8, data []byte) error {
	// Payload: address(2 LE) + data
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], uint16(addr))
	copy(payload[2:], data)

	response, err := b.send(cmdRegWrite, payload)
	if err != nil {
		return fmt.Errorf("register write failed at 0x%02X: %w", addr, err)
	}

	// Response carries the number of bytes the bridge could not commit.
	if len(response) >= 2 {
		bytesLeft := binary.LittleEndian.Uint16(response[0:2])
		if bytesLeft != 0 {
			return fmt.Errorf("register write incomplete: %d bytes left", bytesLeft)
		}
	}
	return nil
}

func (b *usbBus) Strobe(cmd uint8) error {
	if _, err := b.send(cmdStrobe, []byte{cmd}); err != nil {
		return fmt.Errorf("strobe 0x%02X failed: %w", cmd, err)
	}
	return nil
}

func (b *usbBus) Reset() error {
	if _, err := b.send(cmdReset, nil); err != nil {
		return fmt.Errorf("chip reset failed: %w", err)
	}
	return nil
}

// Close releases the USB interface and context. The radio is idled first on
// a best-effort basis so the chip is in a known state for the next session.
func (b *usbBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if b.epOut != nil {
		b.sendNoWait(cmdStrobe, []byte{registers.StrobeSIDLE})
	}

	if b.usbInterface != nil {
		b.usbInterface.Close()
	}
	if b.usbConfig != nil {
		b.usbConfig.Close()
	}
	var err error
	if b.usbDevice != nil {
		err = b.usbDevice.Close()
	}
	if b.usbCtx != nil {
		if cerr := b.usbCtx.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ping verifies the command channel by echoing a test pattern.
func (b *usbBus) ping() error {
	pattern := []byte{0x55, 0xAA, 0xC1, 0x01}
	response, err := b.send(cmdPing, pattern)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if len(response) != len(pattern) {
		return fmt.Errorf("ping response length mismatch: sent %d bytes, got %d", len(pattern), len(response))
	}
	for i := range pattern {
		if response[i] != pattern[i] {
			return fmt.Errorf("ping response data mismatch at byte %d: sent 0x%02X, got 0x%02X", i, pattern[i], response[i])
		}
	}
	return nil
}

// drainReceiveBuffer reads and discards any stale data from the receive
// endpoint.
func (b *usbBus) drainReceiveBuffer() {
	buf := make([]byte, readChunkSize)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		n, err := b.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil || n == 0 {
			break
		}
	}
	b.recvBuf = b.recvBuf[:0]
}

// send transmits a command packet and waits for the matching response.
func (b *usbBus) send(cmd uint8, payload []byte) ([]byte, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.mu.Unlock()

	packet := make([]byte, 4+len(payload))
	packet[0] = appRadio
	packet[1] = cmd
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(payload)))
	copy(packet[4:], payload)

	writeCtx, writeCancel := context.WithTimeout(context.Background(), b.timeout)
	n, err := b.epOut.WriteContext(writeCtx, packet)
	writeCancel()
	if err != nil {
		if writeCtx.Err() != nil {
			return nil, fmt.Errorf("write timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to write to EP%d: %w", endpointNum, err)
	}
	if n != len(packet) {
		return nil, fmt.Errorf("short write: wrote %d of %d bytes", n, len(packet))
	}

	return b.recv(cmd)
}

// sendNoWait transmits a command packet without waiting for a response,
// used best effort during cleanup.
func (b *usbBus) sendNoWait(cmd uint8, payload []byte) {
	packet := make([]byte, 4+len(payload))
	packet[0] = appRadio
	packet[1] = cmd
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(payload)))
	copy(packet[4:], payload)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	b.epOut.WriteContext(ctx, packet)
}

// recv reads from the IN endpoint until a complete response for cmd is
// assembled or the command timeout expires.
func (b *usbBus) recv(expectedCmd uint8) ([]byte, error) {
	b.recvMu.Lock()
	defer b.recvMu.Unlock()

	deadline := time.Now().Add(b.timeout)
	buf := make([]byte, readChunkSize)

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for response to 0x%02X", expectedCmd)
		}

		response, remaining, ok := b.parseResponse(expectedCmd)
		b.recvBuf = remaining
		if ok {
			return response, nil
		}

		remainingTime := time.Until(deadline)
		if remainingTime <= 0 {
			return nil, fmt.Errorf("timeout waiting for response to 0x%02X", expectedCmd)
		}
		readTimeout := 100 * time.Millisecond
		if remainingTime < readTimeout {
			readTimeout = remainingTime
		}

		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		n, err := b.epIn.ReadContext(ctx, buf)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			errStr := strings.ToLower(err.Error())
			if strings.Contains(errStr, "timeout") ||
				strings.Contains(errStr, "timed out") ||
				strings.Contains(errStr, "canceled") ||
				strings.Contains(errStr, "context") {
				continue
			}
			return nil, fmt.Errorf("failed to read from EP%d: %w", endpointNum, err)
		}

		if n > 0 {
			b.recvBuf = append(b.recvBuf, buf[:n]...)
		}
	}
}

// parseResponse attempts to extract a complete response for expectedCmd from
// the receive buffer. It returns the payload, the unconsumed remainder and
// whether a response was found.
func (b *usbBus) parseResponse(expectedCmd uint8) ([]byte, []byte, bool) {
	markerIdx := -1
	for i, c := range b.recvBuf {
		if c == responseMarker {
			markerIdx = i
			break
		}
	}
	if markerIdx == -1 {
		return nil, b.recvBuf, false
	}

	data := b.recvBuf[markerIdx:]

	// Header is marker + app + cmd + length(2).
	if len(data) < 5 {
		return nil, b.recvBuf, false
	}

	app := data[1]
	cmd := data[2]
	length := binary.LittleEndian.Uint16(data[3:5])

	totalLen := 5 + int(length)
	if len(data) < totalLen {
		return nil, b.recvBuf, false
	}

	if app != appRadio || cmd != expectedCmd {
		// A response to some other command. Skip the marker and rescan.
		return nil, b.recvBuf[markerIdx+1:], false
	}

	payload := make([]byte, length)
	copy(payload, data[5:totalLen])
	return payload, data[totalLen:], true
}
