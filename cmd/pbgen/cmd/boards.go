package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/device"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List connected pulse-generator boards",
	Long: `Enumerate USB devices matching known pulse-generator boards. The
simulator entry is always listed so programs can be exercised without
hardware.`,
	RunE: runBoards,
}

func init() {
	rootCmd.AddCommand(boardsCmd)
}

func runBoards(cmd *cobra.Command, args []string) error {
	boards, err := device.DiscoverBoards(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	for _, b := range boards {
		if b.Kind == device.BoardKindSim {
			fmt.Printf("%-12s %s\n", b.Kind, b.Label())
			continue
		}
		fmt.Printf("%-12s %s (%04X:%04X)\n", b.Kind, b.Label(), b.VendorID, b.ProductID)
	}
	return nil
}

// openBoard resolves a --load argument: "sim" for the simulator, or a
// VID:PID pair like "0403:c7d0" for a USB board.
func openBoard(spec string, cfg pulse.Config) (device.Board, error) {
	if spec == "sim" || spec == "simulator" {
		return device.NewSimBoard(device.BoardInfo{Name: "Simulator"}, cfg), nil
	}

	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("board must be \"sim\" or VID:PID, got %q", spec)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("bad vendor ID %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("bad product ID %q: %w", parts[1], err)
	}
	return device.OpenUSBBoard(uint16(vid), uint16(pid), cfg)
}
