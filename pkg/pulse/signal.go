package pulse

// Signal is a periodic channel-assertion requirement: assert the listed
// channels for HighNs nanoseconds once per period, starting OffsetNs after
// the sequence trigger.
//
// When HighNs is zero the high window defaults to the period times
// DutyCycle, and a zero DutyCycle means 50%.
type Signal struct {
	// Frequency in Hz, must be positive.
	Frequency float64
	// Channels carries the output channel indices driven by this signal.
	Channels []int
	// OffsetNs delays the first rising edge relative to the trigger.
	OffsetNs int64
	// HighNs is the duration of the asserted window within one period.
	HighNs int64
	// DutyCycle is the asserted fraction of the period, used only when
	// HighNs is zero.
	DutyCycle float64
	// ActiveHigh selects the physical polarity: when false, a logically
	// asserted channel drives the line low.
	ActiveHigh bool
}

// PeriodNs returns the signal period in nanoseconds.
func (s Signal) PeriodNs() float64 {
	return 1e9 / s.Frequency
}

// ResolvedHighNs returns the high window, applying the duty-cycle default
// when HighNs is unset.
func (s Signal) ResolvedHighNs() int64 {
	if s.HighNs > 0 {
		return s.HighNs
	}
	duty := s.DutyCycle
	if duty == 0 {
		duty = 0.5
	}
	return int64(s.PeriodNs() * duty)
}

// Validate checks the signal in isolation. Channel-range and mask-subset
// checks need the device Config and the full signal set; those live with
// the scheduler.
func (s Signal) Validate() error {
	if s.Frequency <= 0 {
		return validationf("frequency must be positive, got %g", s.Frequency)
	}
	if s.OffsetNs < 0 {
		return validationf("offset must be non-negative, got %dns", s.OffsetNs)
	}
	if s.HighNs < 0 {
		return validationf("high duration must be non-negative, got %dns", s.HighNs)
	}
	if s.DutyCycle < 0 || s.DutyCycle > 1 {
		return validationf("duty cycle must be between 0 and 1, got %g", s.DutyCycle)
	}
	if len(s.Channels) == 0 {
		return validationf("at least one channel must be specified")
	}
	for _, ch := range s.Channels {
		if ch < 0 {
			return validationf("channels must be non-negative, got %d", ch)
		}
	}
	if float64(s.ResolvedHighNs()) > s.PeriodNs() {
		return validationf("high %dns exceeds period %.0fns at %g Hz", s.ResolvedHighNs(), s.PeriodNs(), s.Frequency)
	}
	return nil
}

// Pulse is one derived level transition on a set of channels, timestamped
// within the repeat period. It is a purely intermediate value between a
// Signal and the emitted instructions and is never persisted.
type Pulse struct {
	// TimeNs is the transition time within the repeat period.
	TimeNs int64
	// Mask is the affected channel bitmask.
	Mask uint32
	// Assert is true for a rising (logical assert) edge.
	Assert bool
}
