package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "flag width not 24 or 32",
			mutate: func(c *Config) { c.NrFlags = 16 },
		},
		{
			name:   "more channels than flag bits",
			mutate: func(c *Config) { c.NrChannels = 25 },
		},
		{
			name:   "all channels reserved",
			mutate: func(c *Config) { c.ReservedChannels = 24 },
		},
		{
			name:   "minimum not a tick multiple",
			mutate: func(c *Config) { c.MinInstructionNs = 55 },
		},
		{
			name:   "maximum below twice the minimum",
			mutate: func(c *Config) { c.MaxInstructionNs = 60 },
		},
		{
			name:   "maximum not a tick multiple",
			mutate: func(c *Config) { c.MaxInstructionNs = 205 },
		},
		{
			name:   "loop fold threshold too small",
			mutate: func(c *Config) { c.LoopFoldMin = 1 },
		},
		{
			name:   "period rounding not a tick multiple",
			mutate: func(c *Config) { c.PeriodRoundNs = 15 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestConfigMasks(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 21, cfg.UsableChannels())
	assert.Equal(t, uint32(0b111)<<21, cfg.ReservedMask())
	assert.Equal(t, uint32(1)<<24-1, cfg.FlagsMask())

	cfg.NrFlags = 32
	cfg.NrChannels = 32
	assert.Equal(t, ^uint32(0), cfg.FlagsMask())
}
