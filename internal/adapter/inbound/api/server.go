// Package api implements the local HTTP control-plane server: health,
// rule/tool/settings CRUD, paginated event queries, the synchronous
// analyze endpoint, and proxy start/stop/status.
package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/inbound/llmproxy"
	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/cloudproxy"
	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/sqlstore"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/cost"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/toolcall"
)

// BuildInfo carries version metadata surfaced on GET /health.
type BuildInfo struct {
	Version string
}

// Server wires the local HTTP API to the domain packages and sqlstore
// repositories built at startup.
type Server struct {
	mux *http.ServeMux

	logger      *slog.Logger
	analyzer    *threat.Analyzer
	cloudClient cloudproxy.Client

	events   *sqlstore.EventRepository
	rules    *sqlstore.RuleRepository
	settings *sqlstore.SettingsRepository
	tools    *sqlstore.ToolRepository
	toolEngine *toolcall.Engine
	costs    *sqlstore.CostRepository
	budgets  *sqlstore.BudgetRepository
	recorder *cost.Recorder

	proxy      *llmproxy.Supervisor
	metrics    *Metrics
	buildInfo  BuildInfo
	startTime  time.Time
	db         *sqlstore.Store

	allowedOrigins map[string]bool
	bearerHash     string // empty disables remote bearer-token auth
}

// Deps bundles Server's constructor dependencies. Tools/Costs/Budgets
// back the essential-tool override, pricing, and budget-scope CRUD
// endpoints this package exposes alongside the proxy's own use of the
// same repositories. Recorder is only used to refresh the pricing
// cache right after a pricing write lands.
type Deps struct {
	Logger      *slog.Logger
	Analyzer    *threat.Analyzer
	CloudClient cloudproxy.Client
	Events      *sqlstore.EventRepository
	Rules       *sqlstore.RuleRepository
	Settings    *sqlstore.SettingsRepository
	Tools       *sqlstore.ToolRepository
	ToolEngine  *toolcall.Engine
	Costs       *sqlstore.CostRepository
	Budgets     *sqlstore.BudgetRepository
	Recorder    *cost.Recorder
	Proxy       *llmproxy.Supervisor
	Store       *sqlstore.Store
	BuildInfo   BuildInfo

	// AllowedOrigins is the configured host:port(s) browser calls must
	// match (server.HTTPAddr plus any extra configured origins).
	AllowedOrigins []string
	// BearerHash is the stored hash of the optional shared bearer token.
	// Empty disables remote access entirely (localhost-only).
	BearerHash string
}

// NewServer builds a Server and registers its routes.
func NewServer(deps Deps) *Server {
	origins := make(map[string]bool, len(deps.AllowedOrigins))
	for _, o := range deps.AllowedOrigins {
		origins[o] = true
	}

	s := &Server{
		mux:            http.NewServeMux(),
		logger:         deps.Logger,
		analyzer:       deps.Analyzer,
		cloudClient:    deps.CloudClient,
		events:         deps.Events,
		rules:          deps.Rules,
		settings:       deps.Settings,
		tools:          deps.Tools,
		toolEngine:     deps.ToolEngine,
		costs:          deps.Costs,
		budgets:        deps.Budgets,
		recorder:       deps.Recorder,
		proxy:          deps.Proxy,
		db:             deps.Store,
		buildInfo:      deps.BuildInfo,
		startTime:      time.Now(),
		allowedOrigins: origins,
		bearerHash:     deps.BearerHash,
		metrics:        NewMetrics(),
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler (middleware + routes).
func (s *Server) Handler() http.Handler {
	return s.originCheck(s.auth(s.metrics.middleware(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/threat-analytics/", s.handleThreatAnalytics)

	s.mux.HandleFunc("GET /api/threat-intel", s.handleListThreatIntel)
	s.mux.HandleFunc("GET /api/threat-intel/{id}", s.handleGetThreatIntel)

	s.mux.HandleFunc("GET /api/rules", s.handleListRules)
	s.mux.HandleFunc("PUT /api/rules", s.handlePutRules)
	s.mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	s.mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("POST /api/settings/cloud/credentials", s.handleCloudCredentials)

	s.mux.HandleFunc("GET /api/tools", s.handleListTools)
	s.mux.HandleFunc("PUT /api/tools/{id}", s.handlePutToolOverride)
	s.mux.HandleFunc("DELETE /api/tools/{id}", s.handleDeleteToolOverride)
	s.mux.HandleFunc("POST /api/tools", s.handleCreateCustomTool)

	s.mux.HandleFunc("GET /api/pricing", s.handleListPricing)
	s.mux.HandleFunc("PUT /api/pricing", s.handlePutPricing)
	s.mux.HandleFunc("DELETE /api/pricing/{provider}/{model}", s.handleDeletePricing)

	s.mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	s.mux.HandleFunc("PUT /api/budgets/{scope}", s.handlePutBudgetScope)

	s.mux.HandleFunc("GET /api/costs", s.handleListCosts)

	s.mux.HandleFunc("GET /proxy/status", s.handleProxyStatus)
	s.mux.HandleFunc("POST /proxy/start", s.handleProxyStart)
	s.mux.HandleFunc("POST /proxy/stop", s.handleProxyStop)
	s.mux.HandleFunc("DELETE /proxy/stop", s.handleProxyStop)

	s.mux.Handle("GET /metrics", s.metrics.handler())
}

// isLocalhost reports whether the request originates from loopback.
// X-Forwarded-For is intentionally not trusted: a remote caller could
// spoof it to bypass the check.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// originCheck restricts browser-originated requests (those carrying an
// Origin header) to the configured local host:port, per spec.md §4.8.
// Non-browser callers (no Origin header — curl, server-to-server) pass
// through unchecked.
func (s *Server) originCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(s.allowedOrigins) == 0 || s.allowedOrigins[origin] {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusForbidden, "forbidden_origin", "origin not allowed", "")
	})
}

// auth bypasses localhost callers entirely and otherwise requires a
// bearer token matching the configured hash. With no hash configured,
// remote callers are rejected outright.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}
		if s.bearerHash == "" {
			writeError(w, http.StatusForbidden, "forbidden", "remote access requires a configured bearer token", "")
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", "")
			return
		}
		match, err := verifyBearer(token, s.bearerHash)
		if err != nil || !match {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
