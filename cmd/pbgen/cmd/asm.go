package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTracePulse/internal/ctxlog"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/asm"
)

var (
	asmLoad  string
	asmStart bool
)

var asmCmd = &cobra.Command{
	Use:   "asm <program-file>",
	Short: "Assemble a textual pulse program",
	Long: `Assemble a textual pulse program into an instruction sequence and list it.
With --load the program is written to a board; --start begins playback.

Examples:
  pbgen asm program.pbi
  pbgen asm program.pbi --load sim
  pbgen asm program.pbi --load 0403:c7d0 --start`,
	Args: cobra.ExactArgs(1),
	RunE: runAsm,
}

func init() {
	rootCmd.AddCommand(asmCmd)
	asmCmd.Flags().StringVar(&asmLoad, "load", "", "program a board (sim or VID:PID)")
	asmCmd.Flags().BoolVar(&asmStart, "start", false, "start playback after programming")
}

func runAsm(cmd *cobra.Command, args []string) error {
	cfg, err := boardConfig()
	if err != nil {
		return err
	}
	logger := ctxlog.FromContext(cmd.Context())

	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	assembler, err := asm.New(cfg)
	if err != nil {
		return err
	}
	seq, err := assembler.Assemble(string(src))
	if err != nil {
		return fmt.Errorf("failed to assemble %s: %w", args[0], err)
	}
	logger.Debug("assembled program", "file", args[0], "instructions", seq.Len())

	printListing(seq, cfg)

	if asmLoad == "" {
		if asmStart {
			return fmt.Errorf("--start requires --load")
		}
		return nil
	}

	board, err := openBoard(asmLoad, cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	if err := board.Program(cmd.Context(), seq); err != nil {
		return fmt.Errorf("failed to program board: %w", err)
	}
	logger.Info("programmed board", "instructions", seq.Len())

	if asmStart {
		if err := board.Start(); err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}
		fmt.Println("playback started")
	}
	return nil
}
