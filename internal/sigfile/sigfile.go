// Package sigfile loads signal descriptions from HCL files for the CLI.
//
// A file holds signal and mask blocks:
//
//	signal "camera" {
//	  frequency = 2 * MHz
//	  channels  = [0, 1]
//	  offset    = "100ns"
//	  high      = "200ns"
//	}
//
//	mask "gate" {
//	  frequency = 1 * kHz
//	  channels  = [0]
//	}
package sigfile

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

// Set is the decoded content of one signal file.
type Set struct {
	Signals []pulse.Signal
	Masks   []pulse.Signal
	// Names carries the block labels in signal order, for listings.
	Names []string
}

type hclSignal struct {
	Name      string   `hcl:"name,label"`
	Frequency float64  `hcl:"frequency"`
	Channels  []int    `hcl:"channels"`
	Offset    *string  `hcl:"offset,optional"`
	High      *string  `hcl:"high,optional"`
	Duty      *float64 `hcl:"duty,optional"`
	ActiveLow *bool    `hcl:"active_low,optional"`
}

type hclFile struct {
	Signals []*hclSignal `hcl:"signal,block"`
	Masks   []*hclSignal `hcl:"mask,block"`
}

// evalContext exposes frequency-unit constants so blocks can write
// `frequency = 2 * MHz`.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"Hz":  cty.NumberFloatVal(1),
			"kHz": cty.NumberFloatVal(1e3),
			"MHz": cty.NumberFloatVal(1e6),
			"GHz": cty.NumberFloatVal(1e9),
		},
	}
}

// Load reads and decodes the signal file at path.
func Load(path string) (*Set, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sigfile: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*Set, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("sigfile: failed to parse %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("sigfile: failed to decode %s: %w", filename, diags)
	}

	set := &Set{}
	for _, block := range parsed.Signals {
		sig, err := block.toSignal()
		if err != nil {
			return nil, fmt.Errorf("sigfile: signal %q: %w", block.Name, err)
		}
		set.Signals = append(set.Signals, sig)
		set.Names = append(set.Names, block.Name)
	}
	for _, block := range parsed.Masks {
		sig, err := block.toSignal()
		if err != nil {
			return nil, fmt.Errorf("sigfile: mask %q: %w", block.Name, err)
		}
		set.Masks = append(set.Masks, sig)
	}
	return set, nil
}

func (b *hclSignal) toSignal() (pulse.Signal, error) {
	sig := pulse.Signal{
		Frequency:  b.Frequency,
		Channels:   b.Channels,
		ActiveHigh: true,
	}
	if b.Offset != nil {
		ns, err := pulse.ParseDuration(*b.Offset)
		if err != nil {
			return pulse.Signal{}, err
		}
		sig.OffsetNs = ns
	}
	if b.High != nil {
		ns, err := pulse.ParseDuration(*b.High)
		if err != nil {
			return pulse.Signal{}, err
		}
		sig.HighNs = ns
	}
	if b.Duty != nil {
		sig.DutyCycle = *b.Duty
	}
	if b.ActiveLow != nil {
		sig.ActiveHigh = !*b.ActiveLow
	}
	return sig, sig.Validate()
}
