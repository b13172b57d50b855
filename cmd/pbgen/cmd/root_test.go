package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTracePulse/pkg/pulse"
)

func TestBoardConfigDefaults(t *testing.T) {
	cfg, err := boardConfig()
	require.NoError(t, err)
	assert.Equal(t, pulse.DefaultConfig(), cfg)
}

func TestBoardConfigRejectsBadFlags(t *testing.T) {
	saved := nrFlags
	defer func() { nrFlags = saved }()

	nrFlags = 16
	_, err := boardConfig()
	var verr *pulse.ValidationError
	require.ErrorAs(t, err, &verr)
}
