// Package cost extracts token usage from provider response bodies and
// turns it into a priced cost record. It never returns an error to a
// caller on the request path — failures are logged and swallowed.
package cost

import "context"

// Record is one priced usage event ready for persistence.
type Record struct {
	AgentID            string
	Provider           string
	ModelID            string
	InputTokens        int
	OutputTokens       int
	InputCachedTokens  int
	InputCostUSD       float64
	OutputCostUSD      float64
	TotalCostUSD       float64
	RateInput          *float64
	RateOutput         *float64
	PricingKnown       bool
	RequestID          *string
}

// Pricing is one provider/model pricing row, rates per million tokens.
type Pricing struct {
	Provider       string
	ModelID        string
	InputPerMillion  float64
	OutputPerMillion float64
}

// Repository is the persistence port for priced usage and pricing rows.
type Repository interface {
	ListPricing(ctx context.Context) ([]Pricing, error)
	RecordCost(ctx context.Context, rec Record) error
}
