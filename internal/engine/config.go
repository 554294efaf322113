package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config tunes prices and limits of the conversation.
type Config struct {
	GenerationCost    decimal.Decimal
	ImproveCost       decimal.Decimal
	MaxTopUp          decimal.Decimal
	GenerationTimeout time.Duration
	DedupeWindow      time.Duration
	PaymentMethods    []string
	Languages         []string
	MaxPromptRunes    int
}

const (
	DefaultGenerationTimeout = 60 * time.Second
	DefaultMaxPromptRunes    = 1000
)

var (
	DefaultGenerationCost = decimal.NewFromInt(50)
	DefaultImproveCost    = decimal.NewFromInt(15)
	DefaultMaxTopUp       = decimal.NewFromInt(100000)
	DefaultPaymentMethods = []string{"yookassa", "card", "sbp"}
	DefaultLanguages      = []string{"ru", "en"}
)

// DefaultConfig returns the stock prices and limits.
func DefaultConfig() Config {
	c := Config{}
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if !c.GenerationCost.IsPositive() {
		c.GenerationCost = DefaultGenerationCost
	}
	if !c.ImproveCost.IsPositive() {
		c.ImproveCost = DefaultImproveCost
	}
	if !c.MaxTopUp.IsPositive() {
		c.MaxTopUp = DefaultMaxTopUp
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = DefaultGenerationTimeout
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = DefaultDedupeWindow
	}
	if len(c.PaymentMethods) == 0 {
		c.PaymentMethods = append([]string(nil), DefaultPaymentMethods...)
	}
	if len(c.Languages) == 0 {
		c.Languages = append([]string(nil), DefaultLanguages...)
	}
	if c.MaxPromptRunes <= 0 {
		c.MaxPromptRunes = DefaultMaxPromptRunes
	}
}
