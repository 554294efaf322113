package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	coreconfig "github.com/m3rciful/artbot/core/config"
	coredatabase "github.com/m3rciful/artbot/core/database"
	"github.com/m3rciful/artbot/core/kv"
	"github.com/m3rciful/artbot/internal/engine"
	"github.com/m3rciful/artbot/internal/ledger"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// LedgerConfig selects where balances live.
type LedgerConfig struct {
	Driver string `yaml:"driver" envconfig:"LEDGER_DRIVER"`
}

// SessionConfig selects where conversation positions live.
type SessionConfig struct {
	Driver string        `yaml:"driver" envconfig:"SESSION_DRIVER"`
	TTL    time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
}

// BillingConfig holds prices as decimal strings.
type BillingConfig struct {
	GenerationCost string   `yaml:"generation_cost" envconfig:"BILLING_GENERATION_COST"`
	ImproveCost    string   `yaml:"improve_cost" envconfig:"BILLING_IMPROVE_COST"`
	InitialBalance string   `yaml:"initial_balance" envconfig:"BILLING_INITIAL_BALANCE"`
	MaxTopUp       string   `yaml:"max_top_up" envconfig:"BILLING_MAX_TOP_UP"`
	PaymentMethods []string `yaml:"payment_methods" envconfig:"BILLING_PAYMENT_METHODS"`
}

// GenerationConfig tunes the generation gateway and the prompt improver.
type GenerationConfig struct {
	Timeout         time.Duration `yaml:"timeout" envconfig:"GENERATION_TIMEOUT"`
	ImproveTemplate string        `yaml:"improve_template" envconfig:"GENERATION_IMPROVE_TEMPLATE"`
	MaxPromptRunes  int           `yaml:"max_prompt_runes" envconfig:"GENERATION_MAX_PROMPT_RUNES"`
	// Delay makes the stand-in gateway take time like a real one.
	Delay time.Duration `yaml:"delay" envconfig:"GENERATION_DELAY"`
}

// EngineConfig tunes update handling.
type EngineConfig struct {
	DedupeWindow time.Duration `yaml:"dedupe_window" envconfig:"ENGINE_DEDUPE_WINDOW"`
}

// OpsConfig configures the operator HTTP endpoint. An empty Listen disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// Config is the whole application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database   coredatabase.Config `yaml:"database"`
	Redis      kv.Config           `yaml:"redis"`
	Ledger     LedgerConfig        `yaml:"ledger"`
	Session    SessionConfig       `yaml:"session"`
	Billing    BillingConfig       `yaml:"billing"`
	Generation GenerationConfig    `yaml:"generation"`
	Engine     EngineConfig        `yaml:"engine"`
	Ops        OpsConfig           `yaml:"ops"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads .env when present, then the YAML file at path with
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	switch c.Ledger.Driver {
	case "":
		c.Ledger.Driver = DriverPostgres
		fallthrough
	case DriverPostgres:
		if err := c.Database.Normalize(); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid ledger.driver %q; allowed: postgres, memory", c.Ledger.Driver)
	}

	c.Session.Driver = strings.ToLower(strings.TrimSpace(c.Session.Driver))
	switch c.Session.Driver {
	case "":
		c.Session.Driver = DriverMemory
	case DriverMemory:
	case DriverRedis:
		if err := c.Redis.Normalize(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid session.driver %q; allowed: memory, redis", c.Session.Driver)
	}
	if c.Session.TTL < 0 {
		return errors.New("session.ttl must be >= 0")
	}

	if _, err := c.Billing.prices(); err != nil {
		return err
	}
	if c.Generation.Timeout < 0 || c.Generation.Delay < 0 {
		return errors.New("generation.timeout and generation.delay must be >= 0")
	}
	if c.Generation.MaxPromptRunes < 0 {
		return errors.New("generation.max_prompt_runes must be >= 0")
	}
	if c.Engine.DedupeWindow < 0 {
		return errors.New("engine.dedupe_window must be >= 0")
	}
	return nil
}

type prices struct {
	generation decimal.Decimal
	improve    decimal.Decimal
	initial    decimal.Decimal
	maxTopUp   decimal.Decimal
}

func (b BillingConfig) prices() (prices, error) {
	var (
		p   prices
		err error
	)
	fields := []struct {
		name string
		raw  string
		def  decimal.Decimal
		dst  *decimal.Decimal
		zero bool
	}{
		{"billing.generation_cost", b.GenerationCost, engine.DefaultGenerationCost, &p.generation, false},
		{"billing.improve_cost", b.ImproveCost, engine.DefaultImproveCost, &p.improve, false},
		{"billing.initial_balance", b.InitialBalance, ledger.DefaultInitialBalance, &p.initial, true},
		{"billing.max_top_up", b.MaxTopUp, engine.DefaultMaxTopUp, &p.maxTopUp, false},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			*f.dst = f.def
			continue
		}
		if *f.dst, err = decimal.NewFromString(raw); err != nil {
			return prices{}, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		if f.dst.IsNegative() || (!f.zero && f.dst.IsZero()) {
			return prices{}, fmt.Errorf("invalid %s %q: must be positive", f.name, f.raw)
		}
		if !f.dst.Equal(f.dst.Round(2)) {
			return prices{}, fmt.Errorf("invalid %s %q: at most two decimals", f.name, f.raw)
		}
	}
	return p, nil
}
