package pulse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RoundToNearest quantizes value to the nearest multiple of granularity.
// Ties round away from zero: RoundToNearest(1500, 1000) == 2000 and
// RoundToNearest(-1500, 1000) == -2000. granularity must be positive.
func RoundToNearest(value, granularity int64) int64 {
	q := value / granularity
	r := value % granularity
	if r < 0 {
		r = -r
	}
	if 2*r >= granularity {
		if value < 0 {
			q--
		} else {
			q++
		}
	}
	return q * granularity
}

// ChannelMask converts a channel index list into a flag bitmask.
func ChannelMask(channels []int) uint32 {
	var mask uint32
	for _, ch := range channels {
		mask |= 1 << ch
	}
	return mask
}

// ActiveLowMask returns the combined channel mask of every active-low
// signal in the set.
func ActiveLowMask(signals []Signal) uint32 {
	var mask uint32
	for _, s := range signals {
		if !s.ActiveHigh {
			mask |= ChannelMask(s.Channels)
		}
	}
	return mask
}

// AllChannelsOff builds the default "all outputs off" flag word for the
// given signal set. Active-low channels idle high, so their bits are set;
// when any active-low signal exists the reserved trailing channels must be
// driven high as well (they feed the output-enable circuit).
func AllChannelsOff(signals []Signal, cfg Config) uint32 {
	off := ActiveLowMask(signals)
	if off != 0 {
		off |= cfg.ReservedMask()
	}
	return off & cfg.FlagsMask()
}

// ApplyPolarity converts a logical assertion mask into physical line
// levels: channels in activeLow drive the line low when asserted, so their
// bits are inverted immediately before emission.
func ApplyPolarity(flags, activeLow uint32) uint32 {
	return flags ^ activeLow
}

var durationPattern = regexp.MustCompile(`^\s*([0-9]+)\s*([a-zA-Z]+)\s*$`)

var durationUnits = map[string]int64{
	"ns": 1,
	"us": 1_000,
	"ms": 1_000_000,
	"s":  1_000_000_000,
}

// ParseDuration converts a duration token such as "100ns" or "500 ms" into
// nanoseconds. Units are ns, us, ms and s, case-insensitive.
func ParseDuration(token string) (int64, error) {
	m := durationPattern.FindStringSubmatch(token)
	if m == nil {
		return 0, fmt.Errorf("pulse: invalid duration %q, expected <value><unit> such as 100ns", token)
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pulse: invalid duration %q: %w", token, err)
	}
	scale, ok := durationUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("pulse: unsupported time unit %q, use ns, us, ms or s", m[2])
	}
	return value * scale, nil
}

// FormatDuration renders ns in the largest unit that divides it evenly.
func FormatDuration(ns uint64) string {
	switch {
	case ns >= 1_000_000_000 && ns%1_000_000_000 == 0:
		return fmt.Sprintf("%ds", ns/1_000_000_000)
	case ns >= 1_000_000 && ns%1_000_000 == 0:
		return fmt.Sprintf("%dms", ns/1_000_000)
	case ns >= 1_000 && ns%1_000 == 0:
		return fmt.Sprintf("%dus", ns/1_000)
	default:
		return fmt.Sprintf("%dns", ns)
	}
}
