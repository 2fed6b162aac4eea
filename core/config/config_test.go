package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/extsession/core/config"
)

type janitorConfig struct {
	Interval time.Duration `env:"CONFIG_TEST_INTERVAL" envDefault:"1m"`
	Backend  string        `env:"CONFIG_TEST_BACKEND" envDefault:"memory"`
}

type requiredConfig struct {
	Value string `env:"CONFIG_TEST_REQUIRED_VALUE,required"`
}

func TestLoad(t *testing.T) {
	t.Setenv("CONFIG_TEST_BACKEND", "redis")
	config.Reset()

	var cfg janitorConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, "redis", cfg.Backend)

	t.Setenv("CONFIG_TEST_BACKEND", "mongo")
	var cached janitorConfig
	require.NoError(t, config.Load(&cached))
	assert.Equal(t, "redis", cached.Backend, "value is cached per type")

	config.Reset()
	var fresh janitorConfig
	require.NoError(t, config.Load(&fresh))
	assert.Equal(t, "mongo", fresh.Backend)
}

func TestLoad_Required(t *testing.T) {
	config.Reset()

	var cfg requiredConfig
	require.ErrorIs(t, config.Load(&cfg), config.ErrParse)
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
