// Package llmproxy routes outbound LLM API traffic through a local
// reverse proxy, scanning request/response content and enforcing
// per-agent spending budgets before traffic reaches the real provider.
package llmproxy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/cel"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/budget"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/cost"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/toolcall"
)

// ScanMode mirrors the config's security.scan_mode: monitor annotates
// without blocking, enforce replaces a matched body with a synthetic
// error.
type ScanMode string

const (
	ScanModeMonitor ScanMode = "monitor"
	ScanModeEnforce ScanMode = "enforce"
)

// Review is a secondary assessment attached to an event after the fact
// (e.g. an operator or a second model judging the analyzer's verdict).
// Nothing in this package populates it yet; it exists so a future review
// stage has somewhere to write without another schema migration.
type Review struct {
	Agreement      bool
	Confidence     float64
	Explanation    string
	RiskAdjustment int
	ModelUsed      string
}

// Event is one analyzed proxy call, persisted off the response path.
type Event struct {
	AgentID          string
	Provider         string
	Path             string
	IsThreat         bool
	ThreatType       string
	RiskScore        int
	Confidence       float64
	MatchedRules     []threat.MatchedRule
	ToolDecisions    []toolcall.Decision
	UpstreamStatus   int
	ErrorMetadata    string
	Source           string // "request" | "response" | "response_partial"
	RequestID        *string
	TextContent      string // empty when store-text is disabled or unavailable
	ContentDigest    string
	TextLength       int
	SessionLabel     string
	ProcessingTimeMS int64
	Metadata         map[string]string
	Review           *Review
	OccurredAt       time.Time
}

// digestText returns a content-addressable digest of text, so an event's
// content can be deduplicated or correlated even when store-text is
// disabled and TextContent is withheld.
func digestText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// extractUpstreamRequestID pulls the provider-assigned request id out of
// a response body, trying the common "id" field OpenAI/Anthropic/Gemini
// chat-completion responses share. Returns nil when absent or the body
// isn't a JSON object.
func extractUpstreamRequestID(body []byte) *string {
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.ID == "" {
		return nil
	}
	id := parsed.ID
	return &id
}

// EventRecorder is the persistence port for analyzed proxy events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// sideEffectJob carries everything the off-path writer needs once the
// response has closed; it never holds a reference to the original
// request's context so a client disconnect cannot cancel the write.
type sideEffectJob struct {
	agentID        string
	provider       string
	path           string
	sessionLabel   string
	responseBody   []byte
	upstreamStatus int
	errMetadata    string
	requestID      *string
	completed      bool
	elapsedMS      int64
}

// Router implements the LLM proxy's per-request pipeline: identify,
// budget pre-check, rewrite, stream-and-scan, and an off-path
// side-effect writer for events and cost records.
type Router struct {
	providers atomic.Pointer[[]ProviderSpec]
	client    *http.Client

	analyzer  *threat.Analyzer
	guardian  *budget.Guardian
	permEngine *toolcall.Engine
	recorder  *cost.Recorder
	events    EventRecorder

	scanMode            func() ScanMode
	scanEnabled         func() bool
	storeTextEnabled    func() bool
	maxScanBodyBytes    int64
	defaultAgentHeader  string
	sessionHeader       string
	logger              *slog.Logger

	sideEffects      chan sideEffectJob
	channelSize      int
	warningThreshold float64
}

// RouterConfig tunes the router's resource limits, the same knobs the
// teacher's AuditConfig exposes for its own background writer channel.
type RouterConfig struct {
	Timeout            time.Duration
	MaxScanBodyBytes   int64
	DefaultAgentHeader string
	ChannelSize        int
	WarningThreshold   float64
	ScanMode           func() ScanMode
	ScanEnabled        func() bool
	StoreTextEnabled   func() bool
	SessionHeader      string
}

// NewRouter builds a Router and starts its background side-effect
// writer goroutine.
func NewRouter(cfg RouterConfig, analyzer *threat.Analyzer, guardian *budget.Guardian, permEngine *toolcall.Engine, recorder *cost.Recorder, events EventRecorder, logger *slog.Logger) *Router {
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = 256
	}
	if cfg.MaxScanBodyBytes <= 0 {
		cfg.MaxScanBodyBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.DefaultAgentHeader == "" {
		cfg.DefaultAgentHeader = "X-Agent-Id"
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 0.8
	}
	if cfg.SessionHeader == "" {
		cfg.SessionHeader = "X-Session-Id"
	}
	if cfg.StoreTextEnabled == nil {
		cfg.StoreTextEnabled = func() bool { return true }
	}

	r := &Router{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		analyzer:           analyzer,
		guardian:           guardian,
		permEngine:         permEngine,
		recorder:           recorder,
		events:             events,
		scanMode:           cfg.ScanMode,
		scanEnabled:        cfg.ScanEnabled,
		storeTextEnabled:   cfg.StoreTextEnabled,
		maxScanBodyBytes:   cfg.MaxScanBodyBytes,
		defaultAgentHeader: cfg.DefaultAgentHeader,
		sessionHeader:      cfg.SessionHeader,
		logger:             logger,
		sideEffects:        make(chan sideEffectJob, cfg.ChannelSize),
		channelSize:        cfg.ChannelSize,
		warningThreshold:   cfg.WarningThreshold,
	}

	providers := append([]ProviderSpec(nil), DefaultProviders...)
	r.providers.Store(&providers)

	go r.drainSideEffects()
	return r
}

// SetProviders atomically replaces the provider table.
func (r *Router) SetProviders(providers []ProviderSpec) {
	cp := append([]ProviderSpec(nil), providers...)
	r.providers.Store(&cp)
}

func (r *Router) matchProvider(path string) (ProviderSpec, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	providers := r.providers.Load()
	if providers == nil {
		return ProviderSpec{}, "", false
	}
	for _, p := range *providers {
		prefix := p.Prefix + "/"
		if trimmed == p.Prefix || strings.HasPrefix(trimmed, prefix) {
			rest := strings.TrimPrefix(trimmed, p.Prefix)
			if !strings.HasPrefix(rest, "/") {
				rest = "/" + rest
			}
			return p, rest, true
		}
	}
	return ProviderSpec{}, "", false
}

func (r *Router) agentID(req *http.Request) string {
	if id := req.Header.Get(r.defaultAgentHeader); id != "" {
		return id
	}
	return "default"
}

func (r *Router) sessionLabel(req *http.Request) string {
	return req.Header.Get(r.sessionHeader)
}

// ServeHTTP implements the pipeline described in spec.md §4.7.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	provider, restPath, ok := r.matchProvider(req.URL.Path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown_provider", "no provider matches this path", "")
		return
	}

	agentID := r.agentID(req)

	if r.guardian != nil {
		result, err := r.guardian.Evaluate(req.Context(), agentID)
		if err != nil {
			r.logger.Error("llmproxy: budget evaluation failed", "error", err)
		} else if result.Decision == budget.DecisionDeny {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
			w.Header().Set("X-SV-Budget-Status", "block")
			writeJSONError(w, http.StatusTooManyRequests, "budget_exceeded",
				fmt.Sprintf("%s budget exceeded: %.2f >= %.2f", result.Scope, result.DayTotal, result.Limit), "")
			return
		} else if result.Decision == budget.DecisionWarn {
			w.Header().Set("X-SV-Budget-Status", "warn")
		}
	}

	requestBody, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "failed to read request body", "")
		return
	}

	if r.scanEnabled != nil && r.scanEnabled() && r.analyzer != nil {
		text := extractOutboundText(requestBody, provider.Dialect)
		verdict, err := r.analyzer.AnalyzeWithContext(req.Context(), text, cel.EvaluationContext{
			AgentID:       agentID,
			Provider:      provider.Prefix,
			ContentLength: len(text),
		})
		if err == nil && verdict.IsThreat {
			r.queueEvent(agentID, provider.Prefix, req.URL.Path, r.sessionLabel(req), text, verdict, nil, 0, "", "request")
			if r.scanMode != nil && r.scanMode() == ScanModeEnforce {
				w.Header().Set("X-SV-Threat", "blocked")
				writeJSONError(w, http.StatusForbidden, "request_blocked", "request content blocked by scanning", verdict.ThreatType)
				return
			}
			w.Header().Set("X-SV-Threat", "matched")
		} else {
			w.Header().Set("X-SV-Threat", "none")
		}
	}

	upstreamURL := strings.TrimRight(provider.UpstreamBase, "/") + restPath
	if req.URL.RawQuery != "" {
		upstreamURL += "?" + req.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(req.Context(), req.Method, upstreamURL, bytes.NewReader(requestBody))
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "gateway_error", "failed to build upstream request", "")
		return
	}
	r.prepareOutbound(outReq, req, provider)

	resp, err := r.client.Do(outReq)
	if err != nil {
		if req.Context().Err() != nil {
			// Client disconnected; no event, nothing to record.
			return
		}
		r.logger.Warn("llmproxy: upstream unreachable", "provider", provider.Prefix, "error", err)
		r.queueEvent(agentID, provider.Prefix, req.URL.Path, r.sessionLabel(req), "", threat.Verdict{}, nil, 0, err.Error(), "response")
		writeJSONError(w, http.StatusBadGateway, "gateway_error", "upstream unreachable", "")
		return
	}
	defer resp.Body.Close()

	r.forwardAndScan(w, resp, agentID, provider, req)
}

func (r *Router) prepareOutbound(outReq, inReq *http.Request, provider ProviderSpec) {
	for key, values := range inReq.Header {
		for _, v := range values {
			outReq.Header.Add(key, v)
		}
	}
	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}

	if provider.AuthHeaderTemplate != "" {
		if credential := os.Getenv(provider.CredentialEnvVar()); credential != "" {
			outReq.Header.Set(provider.AuthHeaderTemplate, provider.AuthValuePrefix+credential)
		}
	}

	clientIP, _, _ := net.SplitHostPort(inReq.RemoteAddr)
	if clientIP == "" {
		clientIP = inReq.RemoteAddr
	}
	if prior := outReq.Header.Get("X-Forwarded-For"); prior != "" {
		outReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}
	scheme := "http"
	if inReq.TLS != nil {
		scheme = "https"
	}
	outReq.Header.Set("X-Forwarded-Proto", scheme)
	outReq.Header.Set("X-Forwarded-Host", inReq.Host)
}

// forwardAndScan tees the response into a bounded buffer while copying
// it to the client, then (once the stream ends) scans the captured
// body and schedules the off-path cost/event write.
func (r *Router) forwardAndScan(w http.ResponseWriter, resp *http.Response, agentID string, provider ProviderSpec, req *http.Request) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	buf := &boundedBuffer{limit: r.maxScanBodyBytes}
	writer := io.MultiWriter(w, buf)
	if _, err := io.Copy(writer, resp.Body); err != nil {
		r.logger.Debug("llmproxy: error copying response body", "error", err)
	}

	if req.Context().Err() != nil {
		// Client disconnected mid-stream: still record any tokens
		// already captured, but no "completed" event.
		r.dispatchSideEffect(agentID, provider, req, buf.Bytes(), resp.StatusCode, "", false)
		return
	}

	r.dispatchSideEffect(agentID, provider, req, buf.Bytes(), resp.StatusCode, "", true)
}

func (r *Router) dispatchSideEffect(agentID string, provider ProviderSpec, req *http.Request, responseBody []byte, status int, errMeta string, completed bool) {
	job := sideEffectJob{
		agentID:        agentID,
		provider:       provider.Prefix,
		path:           req.URL.Path,
		sessionLabel:   r.sessionLabel(req),
		responseBody:   responseBody,
		upstreamStatus: status,
		errMetadata:    errMeta,
		requestID:      extractUpstreamRequestID(responseBody),
		completed:      completed,
	}
	select {
	case r.sideEffects <- job:
		if fillRatio := float64(len(r.sideEffects)) / float64(r.channelSize); fillRatio >= r.warningThreshold {
			r.logger.Warn("llmproxy: side-effect channel near capacity", "fill_ratio", fillRatio)
		}
	default:
		r.logger.Warn("llmproxy: side-effect channel full, dropping event/cost write", "agent_id", agentID, "provider", provider.Prefix)
	}
}

func (r *Router) queueEvent(agentID, provider, path, sessionLabel, text string, verdict threat.Verdict, toolDecisions []toolcall.Decision, status int, errMeta, source string) {
	if r.events == nil {
		return
	}
	ev := Event{
		AgentID:          agentID,
		Provider:         provider,
		Path:             path,
		IsThreat:         verdict.IsThreat,
		ThreatType:       verdict.ThreatType,
		RiskScore:        verdict.RiskScore,
		Confidence:       verdict.Confidence,
		MatchedRules:     verdict.MatchedRules,
		ToolDecisions:    toolDecisions,
		UpstreamStatus:   status,
		ErrorMetadata:    errMeta,
		Source:           source,
		SessionLabel:     sessionLabel,
		TextLength:       len(text),
		ProcessingTimeMS: verdict.ElapsedMS,
		OccurredAt:       time.Now(),
	}
	if text != "" {
		ev.ContentDigest = digestText(text)
		if r.storeTextEnabled != nil && r.storeTextEnabled() {
			ev.TextContent = text
		}
	}
	go func() {
		if err := r.events.RecordEvent(context.Background(), ev); err != nil {
			r.logger.Warn("llmproxy: failed to record event", "error", err)
		}
	}()
}

// drainSideEffects is the background writer: every side effect of a
// proxied call (response scan, tool-permission evaluation, cost
// recording, event persistence) happens here, off the response path.
func (r *Router) drainSideEffects() {
	for job := range r.sideEffects {
		ctx := context.Background()

		var verdict threat.Verdict
		if r.scanEnabled != nil && r.scanEnabled() && r.analyzer != nil && len(job.responseBody) > 0 {
			v, err := r.analyzer.Analyze(ctx, string(job.responseBody))
			if err == nil {
				verdict = v
			}
		}

		var decisions []toolcall.Decision
		if r.permEngine != nil {
			for _, call := range toolcall.Extract(job.responseBody) {
				decision, err := r.permEngine.Evaluate(ctx, call.FunctionName)
				if err == nil {
					decisions = append(decisions, decision)
				}
			}
		}

		if r.recorder != nil && job.completed {
			r.recorder.Record(ctx, job.provider, job.agentID, job.responseBody, job.requestID)
		}

		if r.events != nil {
			source := "response"
			if !job.completed {
				source = "response_partial"
			}
			text := string(job.responseBody)
			ev := Event{
				AgentID:          job.agentID,
				Provider:         job.provider,
				Path:             job.path,
				IsThreat:         verdict.IsThreat,
				ThreatType:       verdict.ThreatType,
				RiskScore:        verdict.RiskScore,
				Confidence:       verdict.Confidence,
				MatchedRules:     verdict.MatchedRules,
				ToolDecisions:    decisions,
				UpstreamStatus:   job.upstreamStatus,
				ErrorMetadata:    job.errMetadata,
				Source:           source,
				RequestID:        job.requestID,
				SessionLabel:     job.sessionLabel,
				TextLength:       len(text),
				ProcessingTimeMS: verdict.ElapsedMS,
				OccurredAt:       time.Now(),
			}
			if len(job.responseBody) > 0 {
				ev.ContentDigest = digestText(text)
				if r.storeTextEnabled != nil && r.storeTextEnabled() {
					ev.TextContent = text
				}
			}
			if err := r.events.RecordEvent(ctx, ev); err != nil {
				r.logger.Warn("llmproxy: failed to record event", "error", err)
			}
		}
	}
}

// boundedBuffer captures up to limit bytes; beyond that, writes are
// dropped for scanning purposes while the client still receives every
// byte (it is only one side of the MultiWriter).
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int64
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len()) < b.limit {
		remaining := b.limit - int64(b.buf.Len())
		if int64(len(p)) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
