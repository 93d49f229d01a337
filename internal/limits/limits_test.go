package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessdash/internal/config"
)

func TestFromConfigDefaults(t *testing.T) {
	got, err := FromConfig(config.LimitsConfig{})
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestFromConfigOverrides(t *testing.T) {
	got, err := FromConfig(config.LimitsConfig{
		ReadHeaderTimeoutMS: 500,
		ReadTimeoutMS:       1000,
		WriteTimeoutMS:      -1,
		IdleTimeoutMS:       60000,
		MaxHeaderBytes:      4096,
	})
	require.NoError(t, err)
	assert.Equal(t, Limits{
		MaxHeaderBytes:    4096,
		ReadHeaderTimeout: 500 * time.Millisecond,
		ReadTimeout:       time.Second,
		IdleTimeout:       time.Minute,
	}, got)
}

func TestFromConfigRejectsNegative(t *testing.T) {
	_, err := FromConfig(config.LimitsConfig{ReadHeaderTimeoutMS: -1})
	assert.Error(t, err)
	_, err = FromConfig(config.LimitsConfig{MaxHeaderBytes: -1})
	assert.Error(t, err)
}
