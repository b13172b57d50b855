package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTracePulse/internal/ctxlog"
	"github.com/OpenTraceLab/OpenTracePulse/internal/sigfile"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/sched"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/wave"
)

var (
	genRepeats    int
	genSubroutine bool
	genShowWave   bool
	genLoad       string
)

var genCmd = &cobra.Command{
	Use:   "gen <signals.hcl>",
	Short: "Schedule periodic signals into a pulse program",
	Long: `Read signal and mask definitions from an HCL file and compile them into
an instruction sequence covering one repeat period.

Examples:
  pbgen gen signals.hcl
  pbgen gen signals.hcl --repeats 100
  pbgen gen signals.hcl --wave --load sim`,
	Args: cobra.ExactArgs(1),
	RunE: runGen,
}

func init() {
	rootCmd.AddCommand(genCmd)
	genCmd.Flags().IntVar(&genRepeats, "repeats", 0, "repeat the program N times, then stop (0 = loop forever)")
	genCmd.Flags().BoolVar(&genSubroutine, "subroutine", false, "end with RTS instead of a branch")
	genCmd.Flags().BoolVar(&genShowWave, "wave", false, "render the program as a text waveform")
	genCmd.Flags().StringVar(&genLoad, "load", "", "program a board (sim or VID:PID)")
}

func runGen(cmd *cobra.Command, args []string) error {
	cfg, err := boardConfig()
	if err != nil {
		return err
	}
	if genRepeats > 0 && genSubroutine {
		return fmt.Errorf("--repeats and --subroutine are mutually exclusive")
	}
	logger := ctxlog.FromContext(cmd.Context())

	set, err := sigfile.Load(args[0])
	if err != nil {
		return err
	}
	logger.Debug("loaded signal file", "file", args[0],
		"signals", len(set.Signals), "masks", len(set.Masks))

	opts := []sched.Option{}
	if genRepeats > 0 {
		opts = append(opts, sched.WithRepeats(uint32(genRepeats)))
	}
	if genSubroutine {
		opts = append(opts, sched.WithSubroutine())
	}
	if verbose {
		opts = append(opts, sched.WithProgress(func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rscheduling %d/%d", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		}))
	}

	seq, err := sched.Generate(cmd.Context(), set.Signals, set.Masks, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to schedule signals: %w", err)
	}

	printListing(seq, cfg)

	if genShowWave {
		trace, err := wave.New(seq, cfg)
		if err != nil {
			return err
		}
		if err := trace.Render(os.Stdout, wave.RenderOptions{}); err != nil {
			return err
		}
	}

	if genLoad == "" {
		return nil
	}
	board, err := openBoard(genLoad, cfg)
	if err != nil {
		return err
	}
	defer board.Close()
	if err := board.Program(cmd.Context(), seq); err != nil {
		return fmt.Errorf("failed to program board: %w", err)
	}
	logger.Info("programmed board", "instructions", seq.Len())
	return nil
}
