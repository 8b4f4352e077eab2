package cost

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

const cacheTTL = 5 * time.Minute

// Recorder extracts token usage from a completed upstream response and
// persists a priced cost row. Record never returns an error that could
// abort the request path — every failure is logged and swallowed, per
// spec.md §4.5 and the original's own "MUST NEVER raise" contract.
type Recorder struct {
	repo   Repository
	logger *slog.Logger

	mu         sync.RWMutex
	pricing    map[string][2]float64 // "{provider}/{model_id}" -> [input_rate, output_rate]
	loadedAt   time.Time
	refreshing sync.Mutex
}

// NewRecorder builds a Recorder backed by repo.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger, pricing: map[string][2]float64{}}
}

func (r *Recorder) ensureCache(ctx context.Context) {
	r.mu.RLock()
	fresh := !r.loadedAt.IsZero() && time.Since(r.loadedAt) < cacheTTL
	r.mu.RUnlock()
	if fresh {
		return
	}
	r.loadPricing(ctx)
}

// RefreshPricingCache forces an immediate pricing reload, the entry
// point the admin settings flow calls after editing pricing rows.
func (r *Recorder) RefreshPricingCache(ctx context.Context) {
	r.mu.Lock()
	r.loadedAt = time.Time{}
	r.mu.Unlock()
	r.loadPricing(ctx)
}

func (r *Recorder) loadPricing(ctx context.Context) {
	r.refreshing.Lock()
	defer r.refreshing.Unlock()

	r.mu.RLock()
	fresh := !r.loadedAt.IsZero() && time.Since(r.loadedAt) < cacheTTL
	r.mu.RUnlock()
	if fresh {
		return
	}

	entries, err := r.repo.ListPricing(ctx)
	if err != nil {
		r.logger.Warn("cost: failed to load pricing cache", "error", err)
		return
	}

	cache := make(map[string][2]float64, len(entries))
	for _, e := range entries {
		cache[fmt.Sprintf("%s/%s", e.Provider, e.ModelID)] = [2]float64{e.InputPerMillion, e.OutputPerMillion}
	}

	r.mu.Lock()
	r.pricing = cache
	r.loadedAt = time.Now()
	r.mu.Unlock()
}

func (r *Recorder) lookupRates(provider, canonicalID string) (inputRate, outputRate float64, known bool) {
	key := fmt.Sprintf("%s/%s", provider, canonicalID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if rates, ok := r.pricing[key]; ok {
		return rates[0], rates[1], true
	}
	suffix := "/" + canonicalID
	for k, rates := range r.pricing {
		if strings.HasSuffix(k, suffix) {
			return rates[0], rates[1], true
		}
	}
	return 0, 0, false
}

// Record extracts tokens from body and, if anything was extracted,
// prices and persists a cost row. It never returns an error: every
// failure path is logged at debug level and the call becomes a no-op,
// matching the original's swallow-everything contract.
func (r *Recorder) Record(ctx context.Context, provider, agentID string, body []byte, requestID *string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("cost: Record panicked, swallowed", "panic", rec)
		}
	}()

	r.ensureCache(ctx)

	u := extractTokens(body, provider)
	if u.modelID == "" && u.inputTokens == 0 && u.outputTokens == 0 {
		return
	}

	canonicalID := normalizeModelID(u.modelID)
	rateIn, rateOut, known := r.lookupRates(provider, canonicalID)

	var inputCost, outputCost float64
	if known {
		discount := discountFor(provider)
		uncached := u.inputTokens - u.inputCachedTokens
		if uncached < 0 {
			uncached = 0
		}
		inputCost = float64(uncached) / 1e6 * rateIn
		inputCost += float64(u.inputCachedTokens) / 1e6 * rateIn * discount
		outputCost = float64(u.outputTokens) / 1e6 * rateOut
	}
	totalCost := inputCost + outputCost

	modelID := u.modelID
	if modelID == "" {
		modelID = canonicalID
	}

	rec := Record{
		AgentID:           agentID,
		Provider:          provider,
		ModelID:           modelID,
		InputTokens:       u.inputTokens,
		OutputTokens:      u.outputTokens,
		InputCachedTokens: u.inputCachedTokens,
		InputCostUSD:      round8(inputCost),
		OutputCostUSD:     round8(outputCost),
		TotalCostUSD:      round8(totalCost),
		PricingKnown:      known,
		RequestID:         requestID,
	}
	if known {
		rec.RateInput = &rateIn
		rec.RateOutput = &rateOut
	}

	if err := r.repo.RecordCost(ctx, rec); err != nil {
		r.logger.Debug("cost: RecordCost failed, swallowed", "error", err)
	}
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
