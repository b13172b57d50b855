// Package wave replays an instruction sequence into a channel-vs-time step
// trace and renders it as a text waveform. Graphical plotting is left to
// external tooling; this package produces the data it needs.
package wave

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// Step is one flat interval of the replayed program.
type Step struct {
	StartNs    uint64
	DurationNs uint64
	Flags      uint32
}

// Trace is the fully unrolled timeline of a sequence.
type Trace struct {
	Steps   []Step
	TotalNs uint64
	// BranchNs is the time the terminal branch jumps back to, or -1 when
	// the program ends without branching.
	BranchNs int64

	nrChannels int
}

// New replays seq, expanding loops and subroutine calls into a flat trace.
func New(seq *pulse.InstructionSequence, cfg pulse.Config) (*Trace, error) {
	un, err := seq.Unroll()
	if err != nil {
		return nil, err
	}

	t := &Trace{
		Steps:      make([]Step, 0, len(un.DurationsNs)),
		BranchNs:   -1,
		nrChannels: cfg.NrChannels,
	}
	var at uint64
	for i, dur := range un.DurationsNs {
		t.Steps = append(t.Steps, Step{StartNs: at, DurationNs: dur, Flags: un.Flags[i]})
		if i == un.BranchIndex {
			t.BranchNs = int64(at)
		}
		at += dur
	}
	t.TotalNs = at
	return t, nil
}

// FlagsAt returns the channel flags in effect at time ns. Times at or past
// the end of the trace report the final step's flags.
func (t *Trace) FlagsAt(ns uint64) uint32 {
	if len(t.Steps) == 0 {
		return 0
	}
	i := sort.Search(len(t.Steps), func(i int) bool {
		return t.Steps[i].StartNs > ns
	})
	if i == 0 {
		return t.Steps[0].Flags
	}
	return t.Steps[i-1].Flags
}

// ActiveChannels lists the channels that are ever driven high, ascending.
func (t *Trace) ActiveChannels() []int {
	var seen uint32
	for _, s := range t.Steps {
		seen |= s.Flags
	}
	var chans []int
	for ch := 0; ch < t.nrChannels; ch++ {
		if seen&(1<<ch) != 0 {
			chans = append(chans, ch)
		}
	}
	return chans
}

// RenderOptions tune the text output.
type RenderOptions struct {
	// Width is the number of waveform columns. Zero means 64.
	Width int
	// ExcludeChannels hides the listed channels.
	ExcludeChannels []int
	// AllChannels renders every channel instead of only the active ones.
	AllChannels bool
}

const (
	highRune = '▔'
	lowRune  = '▁'
)

// Render writes one row per channel, a branch marker row when the program
// loops, and a time footer.
func (t *Trace) Render(w io.Writer, opts RenderOptions) error {
	width := opts.Width
	if width <= 0 {
		width = 64
	}

	chans := t.ActiveChannels()
	if opts.AllChannels {
		chans = make([]int, t.nrChannels)
		for ch := range chans {
			chans[ch] = ch
		}
	}
	if len(opts.ExcludeChannels) > 0 {
		excluded := make(map[int]bool, len(opts.ExcludeChannels))
		for _, ch := range opts.ExcludeChannels {
			if ch < 0 || ch >= t.nrChannels {
				return fmt.Errorf("wave: excluded channel %d out of range 0..%d", ch, t.nrChannels-1)
			}
			excluded[ch] = true
		}
		kept := chans[:0]
		for _, ch := range chans {
			if !excluded[ch] {
				kept = append(kept, ch)
			}
		}
		chans = kept
	}

	if t.TotalNs == 0 || len(chans) == 0 {
		_, err := fmt.Fprintln(w, "(no active channels)")
		return err
	}

	for i := len(chans) - 1; i >= 0; i-- {
		ch := chans[i]
		var row strings.Builder
		fmt.Fprintf(&row, "CH%-3d ", ch)
		for col := 0; col < width; col++ {
			// sample at the column midpoint
			ns := (uint64(col)*t.TotalNs + t.TotalNs/2) / uint64(width)
			if t.FlagsAt(ns)&(1<<ch) != 0 {
				row.WriteRune(highRune)
			} else {
				row.WriteRune(lowRune)
			}
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}

	if t.BranchNs >= 0 {
		col := int(uint64(t.BranchNs) * uint64(width) / t.TotalNs)
		if col >= width {
			col = width - 1
		}
		marker := strings.Repeat(" ", 6+col) + "^ branch"
		if _, err := fmt.Fprintln(w, marker); err != nil {
			return err
		}
	}

	div, unit := TimeUnit(t.TotalNs)
	_, err := fmt.Fprintf(w, "%6s 0 .. %g %s\n", "", float64(t.TotalNs)/div, unit)
	return err
}

// TimeUnit picks the largest divisor that keeps the total at or above one,
// so a 1.5e6 ns trace reads as 1.5 ms.
func TimeUnit(totalNs uint64) (div float64, unit string) {
	units := []struct {
		div  float64
		name string
	}{
		{1e9, "s"},
		{1e6, "ms"},
		{1e3, "us"},
		{1, "ns"},
	}
	for _, u := range units {
		if float64(totalNs)/u.div >= 1 {
			return u.div, u.name
		}
	}
	return 1, "ns"
}
