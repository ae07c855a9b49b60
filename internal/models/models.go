// Package models holds the static model catalogue: aliases, context and
// output limits, and pricing.
package models

import "fmt"

// Info is static metadata for a known model. Prices are USD per million
// tokens.
type Info struct {
	ID               string
	Provider         string
	ContextWindow    int
	MaxOutput        int
	InputPricePerM   float64
	OutputPricePerM  float64
	SupportsThinking bool
	SupportsImages   bool
}

var registry = []Info{
	{
		ID:               "claude-sonnet-4-20250514",
		Provider:         "anthropic",
		ContextWindow:    200_000,
		MaxOutput:        16_000,
		InputPricePerM:   3.0,
		OutputPricePerM:  15.0,
		SupportsThinking: true,
		SupportsImages:   true,
	},
	{
		ID:               "claude-opus-4-20250514",
		Provider:         "anthropic",
		ContextWindow:    200_000,
		MaxOutput:        32_000,
		InputPricePerM:   15.0,
		OutputPricePerM:  75.0,
		SupportsThinking: true,
		SupportsImages:   true,
	},
	{
		ID:              "claude-haiku-3-20250307",
		Provider:        "anthropic",
		ContextWindow:   200_000,
		MaxOutput:       4_000,
		InputPricePerM:  0.25,
		OutputPricePerM: 1.25,
		SupportsImages:  true,
	},
	{
		ID:              "gpt-4o",
		Provider:        "openai",
		ContextWindow:   128_000,
		MaxOutput:       16_000,
		InputPricePerM:  2.50,
		OutputPricePerM: 10.0,
		SupportsImages:  true,
	},
	{
		ID:              "gpt-4o-mini",
		Provider:        "openai",
		ContextWindow:   128_000,
		MaxOutput:       16_000,
		InputPricePerM:  0.15,
		OutputPricePerM: 0.60,
		SupportsImages:  true,
	},
	{
		ID:              "gpt-4-turbo",
		Provider:        "openai",
		ContextWindow:   128_000,
		MaxOutput:       4_000,
		InputPricePerM:  10.0,
		OutputPricePerM: 30.0,
		SupportsImages:  true,
	},
}

var aliases = map[string]string{
	"sonnet":        "claude-sonnet-4-20250514",
	"claude-sonnet": "claude-sonnet-4-20250514",
	"opus":          "claude-opus-4-20250514",
	"claude-opus":   "claude-opus-4-20250514",
	"haiku":         "claude-haiku-3-20250307",
	"claude-haiku":  "claude-haiku-3-20250307",
	"gpt4o":         "gpt-4o",
	"gpt4o-mini":    "gpt-4o-mini",
	"gpt4-turbo":    "gpt-4-turbo",
}

const (
	defaultContextWindow = 128_000
	defaultMaxOutput     = 4_096
)

// ResolveAlias maps a short alias to the canonical model id. Unknown names
// pass through unchanged so full model ids always work.
func ResolveAlias(name string) string {
	if id, ok := aliases[name]; ok {
		return id
	}
	return name
}

// Lookup returns the catalogue entry for a canonical model id.
func Lookup(model string) (Info, bool) {
	for _, m := range registry {
		if m.ID == model {
			return m, true
		}
	}
	return Info{}, false
}

// ContextLimit returns the model's context window, falling back to 128000
// for unknown models.
func ContextLimit(model string) int {
	if info, ok := Lookup(model); ok {
		return info.ContextWindow
	}
	return defaultContextWindow
}

// MaxOutputTokens returns the model's output cap, falling back to 4096.
func MaxOutputTokens(model string) int {
	if info, ok := Lookup(model); ok {
		return info.MaxOutput
	}
	return defaultMaxOutput
}

// EstimateCost returns the USD cost for the given token counts. The second
// return is false for models not in the catalogue.
func EstimateCost(model string, inputTokens, outputTokens int) (float64, bool) {
	info, ok := Lookup(model)
	if !ok {
		return 0, false
	}
	cost := float64(inputTokens)/1_000_000*info.InputPricePerM +
		float64(outputTokens)/1_000_000*info.OutputPricePerM
	return cost, true
}

// FormatCost renders a dollar amount, using four decimals below one cent so
// tiny turns do not round to $0.00.
func FormatCost(cost float64) string {
	if cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}
