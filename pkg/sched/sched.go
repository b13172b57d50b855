// Package sched compiles periodic Signal requirements into a minimal
// repeating InstructionSequence for a programmable pulse generator.
package sched

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/OpenTraceLab/OpenTracePulse/internal/ctxlog"
	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// Progress observes timeline traversal on potentially long-running calls.
// done counts processed timeline boundaries out of total. The callback must
// not affect the output.
type Progress func(done, total int)

// progressStride bounds how often the progress callback fires.
const progressStride = 1024

type options struct {
	progress   Progress
	repeats    uint32
	subroutine bool
}

// Option configures a Generate call.
type Option func(*options)

// WithProgress installs a progress callback, invoked periodically while the
// merged event timeline is walked.
func WithProgress(fn Progress) Option {
	return func(o *options) { o.progress = fn }
}

// WithRepeats makes the sequence play n times and STOP, instead of
// branching back to address zero forever. The generated body is wrapped in
// a LOOP/END_LOOP pair with iteration count n.
func WithRepeats(n uint32) Option {
	return func(o *options) { o.repeats = n }
}

// WithSubroutine terminates the sequence with RTS so it can be JSR-called
// from a larger program. Overrides WithRepeats' STOP terminator.
func WithSubroutine() Option {
	return func(o *options) { o.subroutine = true }
}

// timedSignal is a Signal quantized to device ticks.
type timedSignal struct {
	period int64
	offset int64
	high   int64
	mask   uint32
}

// level reports whether the signal is asserted at time t. A signal is off
// before its first rising edge at offset and then periodic.
func (q timedSignal) level(t int64) bool {
	if t < q.offset {
		return false
	}
	return (t-q.offset)%q.period < q.high
}

// interval is a maximal stretch of constant physical flags.
type interval struct {
	flags uint32
	dur   int64
}

// Generate compiles signals, optionally gated by masks, into an
// InstructionSequence that satisfies every signal's frequency, offset and
// high-window requirement on its channels when played back. Masked
// channels are asserted only while their gating signal is high.
//
// Generate is a pure function of its inputs: identical inputs yield a
// bit-identical sequence. ctx cancels the timeline walk.
func Generate(ctx context.Context, signals, masks []pulse.Signal, cfg pulse.Config, opts ...Option) (*pulse.InstructionSequence, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateChannels(signals, masks, cfg); err != nil {
		return nil, err
	}

	base, err := quantizeAll(signals, cfg)
	if err != nil {
		return nil, err
	}
	gates, err := quantizeAll(masks, cfg)
	if err != nil {
		return nil, err
	}

	total, err := repeatPeriod(base, gates, cfg)
	if err != nil {
		return nil, err
	}

	bounds := timeline(base, gates, total)
	ctxlog.FromContext(ctx).Debug("merged event timeline",
		"period_ns", total, "boundaries", len(bounds))

	activeLow := pulse.ActiveLowMask(signals)
	var physOr uint32
	if activeLow != 0 {
		physOr = cfg.ReservedMask()
	}

	intervals := make([]interval, 0, len(bounds))
	for i, t := range bounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if o.progress != nil && (i%progressStride == 0 || i == len(bounds)-1) {
			o.progress(i+1, len(bounds))
		}

		next := total
		if i+1 < len(bounds) {
			next = bounds[i+1]
		}
		if next == t {
			continue
		}

		var logical uint32
		for _, q := range base {
			if q.level(t) {
				logical |= q.mask
			}
		}
		for _, g := range gates {
			if !g.level(t) {
				logical &^= g.mask
			}
		}
		phys := pulse.ApplyPolarity(logical, activeLow) | physOr

		if n := len(intervals); n > 0 && intervals[n-1].flags == phys {
			intervals[n-1].dur += next - t
		} else {
			intervals = append(intervals, interval{flags: phys, dur: next - t})
		}
	}

	// The terminator word plays for MinInstructionNs, so it occupies the
	// final slice of the period rather than extending it.
	off := pulse.AllChannelsOff(signals, cfg)
	n := len(intervals) - 1
	intervals[n].dur -= cfg.MinInstructionNs
	switch {
	case intervals[n].dur == 0 && intervals[n].flags == off:
		intervals = intervals[:n]
	case intervals[n].dur < cfg.MinInstructionNs:
		return nil, &pulse.CapacityError{Msg: fmt.Sprintf(
			"final flag interval of %dns leaves no room for the %dns terminator word",
			intervals[n].dur+cfg.MinInstructionNs, cfg.MinInstructionNs)}
	}

	var instrs []pulse.Instruction
	for _, iv := range intervals {
		instrs, err = emitInterval(instrs, iv, cfg)
		if err != nil {
			return nil, err
		}
	}

	instrs, err = terminate(instrs, signals, cfg, o)
	if err != nil {
		return nil, err
	}
	return pulse.NewSequence(instrs, cfg)
}

// validateChannels fails fast on out-of-range channel indices and on mask
// channel sets that are not a subset of the gated base channels.
func validateChannels(signals, masks []pulse.Signal, cfg pulse.Config) error {
	if len(signals) == 0 {
		return &pulse.ValidationError{Msg: "at least one signal must be provided"}
	}

	usable := cfg.UsableChannels()
	check := func(kind string, sigs []pulse.Signal) error {
		for i, s := range sigs {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%s %d: %w", kind, i, err)
			}
			for _, ch := range s.Channels {
				if ch >= usable {
					return &pulse.ValidationError{Msg: fmt.Sprintf(
						"%s %d: channel %d outside the controllable range 0..%d", kind, i, ch, usable-1)}
				}
			}
		}
		return nil
	}
	if err := check("signal", signals); err != nil {
		return err
	}
	if err := check("masking signal", masks); err != nil {
		return err
	}

	baseMask := uint32(0)
	for _, s := range signals {
		baseMask |= pulse.ChannelMask(s.Channels)
	}
	for i, m := range masks {
		if extra := pulse.ChannelMask(m.Channels) &^ baseMask; extra != 0 {
			return &pulse.ValidationError{Msg: fmt.Sprintf(
				"masking signal %d: channels 0x%X are not a subset of the gated signal channels", i, extra)}
		}
	}
	return nil
}

func quantizeAll(signals []pulse.Signal, cfg pulse.Config) ([]timedSignal, error) {
	out := make([]timedSignal, 0, len(signals))
	for i, s := range signals {
		q, err := quantize(s, cfg)
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// quantize rounds a signal's period, offset and high window to the device
// granularity. Periods use the (possibly coarser) period granularity so
// that nearly-commensurate frequencies share divisors and keep the overall
// repeat period small.
func quantize(s pulse.Signal, cfg pulse.Config) (timedSignal, error) {
	period := pulse.RoundToNearest(int64(math.Round(s.PeriodNs())), cfg.PeriodGranularity())
	if period <= 0 {
		return timedSignal{}, &pulse.ValidationError{Msg: fmt.Sprintf(
			"frequency %g Hz has a period below the %dns quantization granularity", s.Frequency, cfg.PeriodGranularity())}
	}
	high := pulse.RoundToNearest(s.ResolvedHighNs(), cfg.TickNs)
	if high <= 0 {
		return timedSignal{}, &pulse.ValidationError{Msg: fmt.Sprintf(
			"high window %dns quantizes to zero ticks", s.ResolvedHighNs())}
	}
	if high > period {
		high = period
	}
	return timedSignal{
		period: period,
		offset: pulse.RoundToNearest(s.OffsetNs, cfg.TickNs),
		high:   high,
		mask:   pulse.ChannelMask(s.Channels),
	}, nil
}

// repeatPeriod computes the least common multiple of all quantized signal
// periods: the shortest time after which the combined output repeats.
func repeatPeriod(base, gates []timedSignal, cfg pulse.Config) (int64, error) {
	total := int64(1)
	fold := func(qs []timedSignal) error {
		for _, q := range qs {
			g := gcd(total, q.period)
			step := total / g
			if step > cfg.MaxSequenceNs/q.period {
				return &pulse.CapacityError{Msg: fmt.Sprintf(
					"least common period of the input frequencies exceeds %s", pulse.FormatDuration(uint64(cfg.MaxSequenceNs)))}
			}
			total = step * q.period
		}
		return nil
	}
	if err := fold(base); err != nil {
		return 0, err
	}
	if err := fold(gates); err != nil {
		return 0, err
	}
	return total, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// timeline enumerates every rise and fall event inside the repeat period
// and merges them into one sorted, deduplicated boundary list that always
// starts at zero.
func timeline(base, gates []timedSignal, total int64) []int64 {
	var events []pulse.Pulse
	collect := func(qs []timedSignal) {
		for _, q := range qs {
			for rise := q.offset; rise < total; rise += q.period {
				events = append(events, pulse.Pulse{TimeNs: rise, Mask: q.mask, Assert: true})
				if fall := rise + q.high; fall < total {
					events = append(events, pulse.Pulse{TimeNs: fall, Mask: q.mask, Assert: false})
				}
			}
		}
	}
	collect(base)
	collect(gates)

	bounds := make([]int64, 0, len(events)+1)
	bounds = append(bounds, 0)
	for _, ev := range events {
		bounds = append(bounds, ev.TimeNs)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	dedup := bounds[:1]
	for _, t := range bounds[1:] {
		if t != dedup[len(dedup)-1] {
			dedup = append(dedup, t)
		}
	}
	return dedup
}

// emitInterval appends the instructions covering one constant-flag
// interval. Intervals longer than the single-instruction maximum split
// into repeated identical-flag words, folded into a LOOP/END_LOOP pair
// once the repeat count reaches cfg.LoopFoldMin.
func emitInterval(out []pulse.Instruction, iv interval, cfg pulse.Config) ([]pulse.Instruction, error) {
	if iv.dur < cfg.MinInstructionNs {
		return nil, &pulse.CapacityError{Msg: fmt.Sprintf(
			"flag interval of %dns is below the %dns minimum instruction duration", iv.dur, cfg.MinInstructionNs)}
	}
	if iv.dur <= cfg.MaxInstructionNs {
		return append(out, pulse.Instruction{Flags: iv.flags, DurationNs: uint64(iv.dur)}), nil
	}

	chunks := iv.dur / cfg.MaxInstructionNs
	rem := iv.dur % cfg.MaxInstructionNs
	if rem > 0 && rem < cfg.MinInstructionNs {
		// steal a full chunk so the remainder stays emittable
		chunks--
		rem += cfg.MaxInstructionNs
	}
	if chunks > math.MaxUint32 {
		return nil, &pulse.CapacityError{Msg: fmt.Sprintf(
			"flag interval of %dns cannot be represented in a 32-bit loop count", iv.dur)}
	}

	if chunks >= int64(cfg.LoopFoldMin) {
		// One trip through LOOP+END_LOOP burns one chunk, split across
		// the two instructions on tick-aligned halves.
		h1 := alignDown(cfg.MaxInstructionNs/2, cfg.TickNs)
		h2 := cfg.MaxInstructionNs - h1
		out = append(out, pulse.Instruction{
			Flags: iv.flags, DurationNs: uint64(h1), Opcode: pulse.Loop, Operand: uint32(chunks),
		})
		out = append(out, pulse.Instruction{
			Flags: iv.flags, DurationNs: uint64(h2), Opcode: pulse.EndLoop, Operand: uint32(len(out) - 1),
		})
	} else {
		for i := int64(0); i < chunks; i++ {
			out = append(out, pulse.Instruction{Flags: iv.flags, DurationNs: uint64(cfg.MaxInstructionNs)})
		}
	}

	if rem > cfg.MaxInstructionNs {
		h1 := alignDown(rem/2, cfg.TickNs)
		out = append(out, pulse.Instruction{Flags: iv.flags, DurationNs: uint64(h1)})
		rem -= h1
	}
	if rem > 0 {
		out = append(out, pulse.Instruction{Flags: iv.flags, DurationNs: uint64(rem)})
	}
	return out, nil
}

func alignDown(v, tick int64) int64 {
	return v - v%tick
}

// terminate closes the sequence: by default an all-off BRANCH back to
// address zero repeats it forever; with repeats the body is wrapped in
// LOOP/END_LOOP and ends with STOP; in subroutine mode it ends with RTS.
// The body has already ceded the period's final MinInstructionNs, so one
// pass through body plus terminator covers exactly one repeat period.
func terminate(out []pulse.Instruction, signals []pulse.Signal, cfg pulse.Config, o options) ([]pulse.Instruction, error) {
	off := pulse.AllChannelsOff(signals, cfg)
	tail := func(op pulse.Opcode, operand uint32) pulse.Instruction {
		return pulse.Instruction{Flags: off, DurationNs: uint64(cfg.MinInstructionNs), Opcode: op, Operand: operand}
	}

	switch {
	case o.subroutine:
		return append(out, tail(pulse.RTS, 0)), nil
	case o.repeats > 0:
		if len(out) > 0 && out[0].Opcode == pulse.Continue {
			out[0].Opcode = pulse.Loop
			out[0].Operand = o.repeats
		} else {
			// first body word is itself a folded LOOP: prepend a header
			// word and shift the loop back-references it displaces
			for i := range out {
				if out[i].Opcode == pulse.EndLoop {
					out[i].Operand++
				}
			}
			out = append([]pulse.Instruction{tail(pulse.Loop, o.repeats)}, out...)
		}
		out = append(out, tail(pulse.EndLoop, 0))
		return append(out, tail(pulse.Stop, 0)), nil
	default:
		return append(out, tail(pulse.Branch, 0)), nil
	}
}
