package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/asm"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/wave"
)

var (
	waveWidth   int
	waveAll     bool
	waveExclude []int
)

var waveCmd = &cobra.Command{
	Use:   "wave <program-file>",
	Short: "Render an assembled program as a text waveform",
	Long: `Assemble a textual pulse program, replay it with loops and subroutine
calls expanded, and render the channel levels over time.

Examples:
  pbgen wave program.pbi
  pbgen wave program.pbi --width 100 --exclude 21,22,23`,
	Args: cobra.ExactArgs(1),
	RunE: runWave,
}

func init() {
	rootCmd.AddCommand(waveCmd)
	waveCmd.Flags().IntVar(&waveWidth, "width", 64, "waveform width in columns")
	waveCmd.Flags().BoolVar(&waveAll, "all", false, "show every channel, not only active ones")
	waveCmd.Flags().IntSliceVar(&waveExclude, "exclude", nil, "channels to hide")
}

func runWave(cmd *cobra.Command, args []string) error {
	cfg, err := boardConfig()
	if err != nil {
		return err
	}

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

	trace, err := wave.New(seq, cfg)
	if err != nil {
		return err
	}
	return trace.Render(os.Stdout, wave.RenderOptions{
		Width:           waveWidth,
		AllChannels:     waveAll,
		ExcludeChannels: waveExclude,
	})
}
