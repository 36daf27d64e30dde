package catalog

import (
	"fmt"
	"strings"
)

// Pricing is USD per one million tokens.
type Pricing struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// USDToDKK is the fixed exchange rate used for display.
const USDToDKK = 7.0

// DefaultPricing applies to models without a price.
var DefaultPricing = Pricing{Input: 1.0, Output: 2.0}

// extraPricing covers models that are priced but not selectable for chat.
var extraPricing = map[string]Pricing{
	"TEE/qwen3-30b-a3b-instruct-2507": {Input: 0.4, Output: 1.2},
	"TEE/gemma-3-27b-it":              {Input: 0.2, Output: 0.8},
}

// PricingFor returns the price of modelID.
func (c *Catalog) PricingFor(modelID string) Pricing {
	if m, ok := c.ByID(modelID); ok && (m.Pricing != Pricing{}) {
		return m.Pricing
	}
	if p, ok := extraPricing[modelID]; ok {
		return p
	}
	return DefaultPricing
}

// CostUSD is the cost of one completion.
func (c *Catalog) CostUSD(modelID string, promptTokens, completionTokens int) float64 {
	p := c.PricingFor(modelID)
	return float64(promptTokens)/1_000_000*p.Input + float64(completionTokens)/1_000_000*p.Output
}

// ToDKK converts USD to DKK.
func ToDKK(usd float64) float64 { return usd * USDToDKK }

// FormatDKK renders an amount the Danish way, e.g. "1,50 kr".
func FormatDKK(dkk float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", dkk), ".", ",", 1) + " kr"
}

// FormatUSD renders an amount like "$0.06".
func FormatUSD(usd float64) string {
	return fmt.Sprintf("$%.2f", usd)
}
