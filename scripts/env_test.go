package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("DB_USER", "allocator")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_NAME", "allocator")

	cfg, err := dbConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)

	t.Setenv("DB_PORT", "nope")
	_, err = dbConfigFromEnv()
	assert.ErrorContains(t, err, "DB_PORT")

	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "")
	_, err = dbConfigFromEnv()
	assert.ErrorContains(t, err, "DB_NAME")
}

func TestParseTickFlag(t *testing.T) {
	_, set, err := parseTickFlag("")
	require.NoError(t, err)
	assert.False(t, set)

	tick, set, err := parseTickFlag("0")
	require.NoError(t, err)
	assert.True(t, set)
	assert.Zero(t, tick)

	tick, set, err = parseTickFlag("1200")
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, uint64(1200), tick)

	_, _, err = parseTickFlag("-3")
	assert.ErrorContains(t, err, "-reset-tick")
}
