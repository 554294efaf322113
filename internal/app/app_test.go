package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/artbot/core/bootstrap"
	"github.com/m3rciful/artbot/internal/engine"
)

const memoryYAML = `
telegram:
  token: "123:abc"
  admin_id: 42
ledger:
  driver: memory
billing:
  generation_cost: "40"
  initial_balance: "0"
generation:
  timeout: 30s
ops:
  listen: "127.0.0.1:0"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BILLING_IMPROVE_COST", "12.50")

	cfg, err := LoadConfig(writeConfig(t, memoryYAML))
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
	assert.Equal(t, "longpoll", cfg.Telegram.RunMode)
	assert.Equal(t, DriverMemory, cfg.Ledger.Driver)
	assert.Equal(t, DriverMemory, cfg.Session.Driver)
	assert.Equal(t, 30*time.Second, cfg.Generation.Timeout)

	p, err := cfg.Billing.prices()
	require.NoError(t, err)
	assert.True(t, p.generation.Equal(decimal.NewFromInt(40)))
	assert.True(t, p.improve.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, p.initial.IsZero())
	assert.True(t, p.maxTopUp.Equal(engine.DefaultMaxTopUp))
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"unknown ledger", func(c *Config) { c.Ledger.Driver = "sqlite" }},
		{"postgres without host", func(c *Config) { c.Ledger.Driver = DriverPostgres }},
		{"redis without addr", func(c *Config) { c.Session.Driver = DriverRedis }},
		{"zero cost", func(c *Config) { c.Billing.GenerationCost = "0" }},
		{"three decimals", func(c *Config) { c.Billing.MaxTopUp = "1.005" }},
		{"not a number", func(c *Config) { c.Billing.ImproveCost = "cheap" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Telegram.Token = "123:abc"
			cfg.Ledger.Driver = DriverMemory
			tt.mutate(cfg)
			assert.Error(t, cfg.Normalize())
		})
	}
}

func TestBuildMemoryApp(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, memoryYAML))
	require.NoError(t, err)

	a, err := build(cfg, &bootstrap.Result{})
	require.NoError(t, err)
	require.NotNil(t, a.ops)
	assert.Len(t, a.registry.ListCallbacks(), len(engine.Actions()))

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Routes)
	assert.NotEmpty(t, opts.Middlewares)
	assert.Same(t, a.registry, opts.Registry)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()
	assert.NoError(t, <-done)
	assert.NoError(t, a.Close())
}

func TestBuildNeedsBackends(t *testing.T) {
	cfg := &Config{}
	cfg.Ledger.Driver = DriverPostgres
	_, err := build(cfg, &bootstrap.Result{})
	assert.Error(t, err)
}
