package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libroscan/catalog-cli/pkg/anthropic"
)

func TestMessage(t *testing.T) {
	calc := NewCalculator(Rates{
		"claude-haiku-4-5-20251001": {Input: 0.80, Output: 4.00},
	})

	got := calc.Message("claude-haiku-4-5-20251001", anthropic.TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 500_000,
	})
	assert.InDelta(t, 0.80+2.00, got, 1e-9)
}

func TestMessage_UnknownModelPricesAtZero(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	got := calc.Message("some-future-model", anthropic.TokenUsage{InputTokens: 1e6})
	assert.Zero(t, got)
}

func TestMessage_ZeroUsage(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	assert.Zero(t, calc.Message("claude-opus-4-6", anthropic.TokenUsage{}))
}

func TestDefaultRates_CoverConfiguredModels(t *testing.T) {
	rates := DefaultRates()
	for _, model := range []string{
		"claude-haiku-4-5-20251001",
		"claude-sonnet-4-5-20250929",
		"claude-opus-4-6",
	} {
		rate, ok := rates[model]
		assert.True(t, ok, model)
		assert.Greater(t, rate.Output, rate.Input, model)
	}
}
