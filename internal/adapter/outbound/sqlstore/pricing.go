package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/cost"
)

// CostRepository implements cost.Repository: the pricing table backs
// the recorder's cache, and RecordCost appends one usage row per call.
type CostRepository struct {
	store *Store
}

func NewCostRepository(store *Store) *CostRepository {
	return &CostRepository{store: store}
}

var _ cost.Repository = (*CostRepository)(nil)

func (r *CostRepository) ListPricing(ctx context.Context) ([]cost.Pricing, error) {
	rows, err := r.store.DB().QueryContext(ctx,
		`SELECT provider, model_id, input_per_million, output_per_million FROM pricing`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cost.Pricing
	for rows.Next() {
		var p cost.Pricing
		if err := rows.Scan(&p.Provider, &p.ModelID, &p.InputPerMillion, &p.OutputPerMillion); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *CostRepository) RecordCost(ctx context.Context, rec cost.Record) error {
	var requestID interface{}
	if rec.RequestID != nil {
		requestID = *rec.RequestID
	}
	var rateInput, rateOutput interface{}
	if rec.RateInput != nil {
		rateInput = *rec.RateInput
	}
	if rec.RateOutput != nil {
		rateOutput = *rec.RateOutput
	}

	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO costs (
			agent_id, provider, model_id, input_tokens, output_tokens, input_cached_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd, rate_input, rate_output,
			pricing_known, request_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.Provider, rec.ModelID, rec.InputTokens, rec.OutputTokens, rec.InputCachedTokens,
		rec.InputCostUSD, rec.OutputCostUSD, rec.TotalCostUSD, rateInput, rateOutput,
		rec.PricingKnown, requestID,
	)
	return err
}

// UpsertPricing creates or replaces a model's per-million-token rates.
func (r *CostRepository) UpsertPricing(ctx context.Context, p cost.Pricing) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO pricing (provider, model_id, input_per_million, output_per_million)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, model_id) DO UPDATE SET
			input_per_million = excluded.input_per_million,
			output_per_million = excluded.output_per_million,
			updated_at = CURRENT_TIMESTAMP`,
		p.Provider, p.ModelID, p.InputPerMillion, p.OutputPerMillion,
	)
	return err
}

// DeletePricing removes a model's rate card entry. Recording a cost for
// a deleted model afterward falls back to the unknown-rate path in the
// recorder, same as a model that was never priced.
func (r *CostRepository) DeletePricing(ctx context.Context, provider, modelID string) error {
	_, err := r.store.DB().ExecContext(ctx,
		`DELETE FROM pricing WHERE provider = ? AND model_id = ?`, provider, modelID)
	return err
}

// SeedDefaultPricing inserts a starter rate card for the most common
// models if the pricing table is empty, so cost recording has rates to
// work with before an operator configures their own.
func (r *CostRepository) SeedDefaultPricing(ctx context.Context) error {
	var count int
	if err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM pricing`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, p := range defaultPricing {
		if err := r.UpsertPricing(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// CostRecord is one priced usage row as exposed through the HTTP API.
type CostRecord struct {
	ID                int64     `json:"id"`
	AgentID           string    `json:"agent_id"`
	Provider          string    `json:"provider"`
	ModelID           string    `json:"model_id"`
	InputTokens       int       `json:"input_tokens"`
	OutputTokens      int       `json:"output_tokens"`
	InputCachedTokens int       `json:"input_cached_tokens"`
	InputCostUSD      float64   `json:"input_cost_usd"`
	OutputCostUSD     float64   `json:"output_cost_usd"`
	TotalCostUSD      float64   `json:"total_cost_usd"`
	RateInput         *float64  `json:"rate_input,omitempty"`
	RateOutput        *float64  `json:"rate_output,omitempty"`
	PricingKnown      bool      `json:"pricing_known"`
	RequestID         string    `json:"request_id,omitempty"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// CostSortColumns is the allowlist of indexed columns the cost-records
// endpoint may sort by.
var CostSortColumns = map[string]bool{
	"recorded_at": true,
	"agent_id":    true,
	"provider":    true,
	"total_cost_usd": true,
}

// CostPageFilter narrows and orders a paginated cost-records query.
type CostPageFilter struct {
	AgentID  string
	Provider string
	Sort     string // must be a key of CostSortColumns; defaults to recorded_at
	Order    string // "asc" or "desc"; defaults to desc
	Page     int    // 1-based
	PageSize int
}

const costColumns = `id, agent_id, provider, model_id, input_tokens, output_tokens,
	input_cached_tokens, input_cost_usd, output_cost_usd, total_cost_usd,
	rate_input, rate_output, pricing_known, request_id, recorded_at`

func scanCostRow(scan func(...interface{}) error) (CostRecord, error) {
	var rec CostRecord
	var rateInput, rateOutput sql.NullFloat64
	var requestID sql.NullString

	err := scan(&rec.ID, &rec.AgentID, &rec.Provider, &rec.ModelID, &rec.InputTokens,
		&rec.OutputTokens, &rec.InputCachedTokens, &rec.InputCostUSD, &rec.OutputCostUSD,
		&rec.TotalCostUSD, &rateInput, &rateOutput, &rec.PricingKnown, &requestID, &rec.RecordedAt)
	if err != nil {
		return CostRecord{}, err
	}
	if rateInput.Valid {
		rec.RateInput = &rateInput.Float64
	}
	if rateOutput.Valid {
		rec.RateOutput = &rateOutput.Float64
	}
	rec.RequestID = requestID.String
	return rec, nil
}

// ListCostsPage returns one page of recorded cost rows plus the total
// count matching filter, for the GET /api/costs endpoint's paginated
// {items, total, page, page_size, total_pages} response shape.
func (r *CostRepository) ListCostsPage(ctx context.Context, filter CostPageFilter) ([]CostRecord, int, error) {
	where := `WHERE 1=1`
	var args []interface{}

	if filter.AgentID != "" {
		where += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.Provider != "" {
		where += ` AND provider = ?`
		args = append(args, filter.Provider)
	}

	var total int
	if err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM costs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol := filter.Sort
	if sortCol == "" || !CostSortColumns[sortCol] {
		sortCol = "recorded_at"
	}
	order := "DESC"
	if filter.Order == "asc" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := `SELECT ` + costColumns + ` FROM costs ` + where + ` ORDER BY ` + sortCol + ` ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, pageSize, offset)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []CostRecord
	for rows.Next() {
		rec, err := scanCostRow(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

var defaultPricing = []cost.Pricing{
	{Provider: "anthropic", ModelID: "claude-opus-4", InputPerMillion: 15, OutputPerMillion: 75},
	{Provider: "anthropic", ModelID: "claude-sonnet-4", InputPerMillion: 3, OutputPerMillion: 15},
	{Provider: "anthropic", ModelID: "claude-haiku-3.5", InputPerMillion: 0.8, OutputPerMillion: 4},
	{Provider: "openai", ModelID: "gpt-4o", InputPerMillion: 2.5, OutputPerMillion: 10},
	{Provider: "openai", ModelID: "gpt-4o-mini", InputPerMillion: 0.15, OutputPerMillion: 0.6},
	{Provider: "openai", ModelID: "o1", InputPerMillion: 15, OutputPerMillion: 60},
	{Provider: "gemini", ModelID: "gemini-1.5-pro", InputPerMillion: 1.25, OutputPerMillion: 5},
	{Provider: "gemini", ModelID: "gemini-1.5-flash", InputPerMillion: 0.075, OutputPerMillion: 0.3},
}
