package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTracePulse/internal/ctxlog"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

var (
	// Global flags
	verbose bool
	nrFlags int
	tickNs  int64
	minNs   int64
	maxNs   int64
	memCap  int
)

var rootCmd = &cobra.Command{
	Use:   "pbgen",
	Short: "PulseBlaster program generator and loader",
	Long: `pbgen compiles pulse programs for PulseBlaster-class boards:
  - Assemble textual pulse programs into instruction sequences
  - Schedule periodic signals into a minimal instruction program
  - Render programs as text waveforms
  - Discover and program boards over USB

Examples:
  pbgen asm program.pbi               # Assemble and list a program
  pbgen gen signals.hcl --repeats 10  # Schedule signals from an HCL file
  pbgen wave program.pbi              # Show the program as a waveform
  pbgen boards                        # List connected boards`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	def := pulse.DefaultConfig()
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVar(&nrFlags, "flags", def.NrFlags, "instruction flag width (24 or 32)")
	rootCmd.PersistentFlags().Int64Var(&tickNs, "tick", def.TickNs, "core clock tick in ns")
	rootCmd.PersistentFlags().Int64Var(&minNs, "min-instruction", def.MinInstructionNs, "shortest instruction duration in ns")
	rootCmd.PersistentFlags().Int64Var(&maxNs, "max-instruction", def.MaxInstructionNs, "longest instruction duration in ns")
	rootCmd.PersistentFlags().IntVar(&memCap, "capacity", def.MemoryCapacity, "instruction memory size in words")
}

// boardConfig builds the device configuration from the persistent flags.
func boardConfig() (pulse.Config, error) {
	cfg := pulse.DefaultConfig()
	cfg.NrFlags = nrFlags
	cfg.TickNs = tickNs
	cfg.MinInstructionNs = minNs
	cfg.MaxInstructionNs = maxNs
	cfg.MemoryCapacity = memCap
	if err := cfg.Validate(); err != nil {
		return pulse.Config{}, err
	}
	return cfg, nil
}

// printListing writes one line per instruction in memory order.
func printListing(seq *pulse.InstructionSequence, cfg pulse.Config) {
	width := (cfg.NrFlags + 3) / 4
	for addr := 0; addr < seq.Len(); addr++ {
		in := seq.At(addr)
		line := fmt.Sprintf("%4d  0x%0*X  %12s  %s",
			addr, width, in.Flags, pulse.FormatDuration(in.DurationNs), in.Opcode)
		if in.Opcode.TakesAddress() || in.Opcode == pulse.Loop {
			line += fmt.Sprintf(" %d", in.Operand)
		}
		if in.Label != "" {
			line += "  ; " + in.Label
		}
		fmt.Println(line)
	}
	fmt.Printf("%d instructions, %s per pass\n",
		seq.Len(), pulse.FormatDuration(seq.TotalDurationNs()))
}
