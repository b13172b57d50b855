package device

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// BoardKind categorizes pulse-generator board families.
type BoardKind string

const (
	BoardKindPCI BoardKind = "pci-bridge"
	BoardKindUSB BoardKind = "usb"
	BoardKindSim BoardKind = "simulator"
)

// DiscoveredBoard describes a detected board before it is opened.
type DiscoveredBoard struct {
	Kind        BoardKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the board.
func (d DiscoveredBoard) Label() string {
	if d.Description != "" {
		return d.Description
	}
	return fmt.Sprintf("Board %04X:%04X", d.VendorID, d.ProductID)
}

// DiscoverBoards enumerates connected USB devices that match known
// pulse-generator VID/PID pairs. It always returns at least the simulator
// entry so sequences can be exercised without hardware connected.
func DiscoverBoards(ctx context.Context) ([]DiscoveredBoard, error) {
	var results []DiscoveredBoard
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if board, ok := classifyUSBDevice(desc); ok {
			results = append(results, board)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, DiscoveredBoard{
		Kind:        BoardKindSim,
		Description: "Simulator (no hardware)",
	})

	return results, nil
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (DiscoveredBoard, bool) {
	for _, known := range knownBoardVIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return DiscoveredBoard{
				Kind:        known.Kind,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return DiscoveredBoard{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Kind        BoardKind
	Description string
}

var knownBoardVIDPIDs = []knownUSBDevice{
	{VendorID: 0x10e8, ProductID: 0x8852, Kind: BoardKindPCI, Description: "AMCC S5933 PCI pulse generator"},
	{VendorID: 0x0403, ProductID: 0xc7d0, Kind: BoardKindUSB, Description: "USB pulse generator"},
}
