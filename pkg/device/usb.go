package device

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// Control command bytes of the vendor-specific bulk protocol.
const (
	cmdReset   = 0x00
	cmdProgram = 0x01
	cmdStart   = 0x02
	cmdStop    = 0x03
	cmdStatus  = 0x04
	cmdInfo    = 0x05

	statusOK = 0x00

	defaultTimeout = 5 * time.Second
)

// Status register bits reported by cmdStatus.
const (
	StatusStopped = 1 << 0
	StatusReset   = 1 << 1
	StatusRunning = 1 << 2
	StatusWaiting = 1 << 3
)

// USBBoard drives a pulse-generator board over its vendor-specific USB
// interface.
type USBBoard struct {
	cfg pulse.Config

	usb  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	info    BoardInfo
	timeout time.Duration
	closed  bool
}

// OpenUSBBoard finds and opens the first board matching vid/pid.
func OpenUSBBoard(vid, pid uint16, cfg pulse.Config) (*USBBoard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	usb := gousb.NewContext()
	dev, err := usb.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		usb.Close()
		return nil, fmt.Errorf("device: USB error: %w", err)
	}
	if dev == nil {
		usb.Close()
		return nil, fmt.Errorf("device: board not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// important on Linux, harmless elsewhere
	_ = dev.SetAutoDetach(true)

	b := &USBBoard{
		cfg:     cfg,
		usb:     usb,
		dev:     dev,
		timeout: defaultTimeout,
	}
	if err := b.claimInterface(); err != nil {
		dev.Close()
		usb.Close()
		return nil, err
	}

	b.info = BoardInfo{
		VendorID:  vid,
		ProductID: pid,
		NrFlags:   cfg.NrFlags,
	}
	if serial, err := dev.SerialNumber(); err == nil {
		b.info.Serial = serial
	}
	if product, err := dev.Product(); err == nil {
		b.info.Name = product
	}
	return b, nil
}

// claimInterface claims the board's vendor interface and opens its bulk
// endpoint pair.
func (b *USBBoard) claimInterface() error {
	intf, done, err := b.dev.DefaultInterface()
	if err != nil {
		return fmt.Errorf("device: failed to claim interface: %w", err)
	}
	b.intf = intf
	b.done = done

	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if b.epOut == nil {
				out, err := intf.OutEndpoint(ep.Number)
				if err != nil {
					return fmt.Errorf("device: failed to open OUT endpoint: %w", err)
				}
				b.epOut = out
			}
		case gousb.EndpointDirectionIn:
			if b.epIn == nil {
				in, err := intf.InEndpoint(ep.Number)
				if err != nil {
					return fmt.Errorf("device: failed to open IN endpoint: %w", err)
				}
				b.epIn = in
			}
		}
	}
	if b.epOut == nil || b.epIn == nil {
		return fmt.Errorf("device: bulk endpoint pair not found")
	}
	return nil
}

// command performs one write-then-acknowledge transaction.
func (b *USBBoard) command(ctx context.Context, payload []byte) error {
	if b.closed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.epOut.WriteContext(ctx, payload); err != nil {
		return fmt.Errorf("device: USB write failed: %w", err)
	}
	ack := make([]byte, b.epIn.Desc.MaxPacketSize)
	n, err := b.epIn.ReadContext(ctx, ack)
	if err != nil {
		return fmt.Errorf("device: USB read failed: %w", err)
	}
	if n < 2 || ack[0] != payload[0] {
		return fmt.Errorf("device: malformed response to command 0x%02X", payload[0])
	}
	if ack[1] != statusOK {
		return fmt.Errorf("device: command 0x%02X failed with status 0x%02X", payload[0], ack[1])
	}
	return nil
}

func (b *USBBoard) Info() (BoardInfo, error) {
	if b.closed {
		return BoardInfo{}, ErrClosed
	}
	return b.info, nil
}

// Program resets the board, then streams the encoded instruction words.
// The payload is framed as {cmdProgram, count_hi, count_lo, words...}.
func (b *USBBoard) Program(ctx context.Context, seq *pulse.InstructionSequence) error {
	if b.closed {
		return ErrClosed
	}
	if seq.Len() > 0xFFFF {
		return fmt.Errorf("device: %d instructions exceed the 16-bit program header", seq.Len())
	}
	words, err := EncodeSequence(seq, b.cfg)
	if err != nil {
		return err
	}
	if err := b.command(ctx, []byte{cmdReset}); err != nil {
		return fmt.Errorf("device: reset before programming: %w", err)
	}

	payload := make([]byte, 0, 3+len(words))
	payload = append(payload, cmdProgram, byte(seq.Len()>>8), byte(seq.Len()))
	payload = append(payload, words...)
	return b.command(ctx, payload)
}

func (b *USBBoard) Start() error {
	return b.command(context.Background(), []byte{cmdStart})
}

func (b *USBBoard) Stop() error {
	return b.command(context.Background(), []byte{cmdStop})
}

func (b *USBBoard) Reset() error {
	return b.command(context.Background(), []byte{cmdReset})
}

// Status reads the 4-bit status register.
func (b *USBBoard) Status() (byte, error) {
	if b.closed {
		return 0, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if _, err := b.epOut.WriteContext(ctx, []byte{cmdStatus}); err != nil {
		return 0, fmt.Errorf("device: USB write failed: %w", err)
	}
	resp := make([]byte, b.epIn.Desc.MaxPacketSize)
	n, err := b.epIn.ReadContext(ctx, resp)
	if err != nil {
		return 0, fmt.Errorf("device: USB read failed: %w", err)
	}
	if n < 3 || resp[0] != cmdStatus || resp[1] != statusOK {
		return 0, fmt.Errorf("device: malformed status response")
	}
	return resp[2], nil
}

func (b *USBBoard) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.done != nil {
		b.done()
	}
	if err := b.dev.Close(); err != nil {
		b.usb.Close()
		return err
	}
	return b.usb.Close()
}
