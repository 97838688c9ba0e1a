// Package cost estimates API spend for embedding and chat calls.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens). Embedding
// models only use Input.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Embedding computes the cost for an embedding call. Unknown models cost 0.
func (c *Calculator) Embedding(model string, tokens int) float64 {
	rate, ok := c.rates.OpenAI[model]
	if !ok {
		return 0
	}
	return (float64(tokens) / 1e6) * rate.Input
}

// Chat computes the cost for a chat completion, looking the model up in
// both provider tables.
func (c *Calculator) Chat(model string, inputTokens, outputTokens int) float64 {
	rate, ok := c.rates.OpenAI[model]
	if !ok {
		rate, ok = c.rates.Anthropic[model]
	}
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		OpenAI: map[string]ModelRate{
			"text-embedding-3-small": {Input: 0.02},
			"text-embedding-3-large": {Input: 0.13},
			"gpt-4o":                 {Input: 2.50, Output: 10.00},
			"gpt-4o-mini":            {Input: 0.15, Output: 0.60},
		},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
