package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/inbound/api"
	"github.com/sentinelwatch/sentinelwatch/internal/adapter/inbound/llmproxy"
	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/cloudproxy"
	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/sqlstore"
	"github.com/sentinelwatch/sentinelwatch/internal/config"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/budget"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/cost"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
	"github.com/sentinelwatch/sentinelwatch/internal/domain/toolcall"
	"github.com/sentinelwatch/sentinelwatch/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server and LLM proxy",
	Long: `Start the local API server (health, rule/settings CRUD, paginated
threat timeline, proxy control) and, unless disabled, the multi-provider
LLM proxy that requests are routed through.

Examples:
  # Start with the defaults
  sentinelwatch serve

  # Start with an explicit config file
  sentinelwatch serve --config ./sentinelwatch.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	otelShutdown, err := observability.Setup(cfg.DevMode)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("serve: telemetry shutdown error", "error", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	store, err := sqlstore.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	rules := sqlstore.NewRuleRepository(store)
	if err := threat.Seed(ctx, rules, logger); err != nil {
		return fmt.Errorf("seeding community rules: %w", err)
	}

	analyzer, err := threat.NewAnalyzer(rules, logger)
	if err != nil {
		return fmt.Errorf("building threat analyzer: %w", err)
	}

	tools := sqlstore.NewToolRepository(store)
	toolEngine, err := toolcall.NewEngine(tools)
	if err != nil {
		return fmt.Errorf("building tool-call engine: %w", err)
	}

	costs := sqlstore.NewCostRepository(store)
	if err := costs.SeedDefaultPricing(ctx); err != nil {
		return fmt.Errorf("seeding default pricing: %w", err)
	}
	recorder := cost.NewRecorder(costs, logger)

	budgets := sqlstore.NewBudgetRepository(store)
	var guardian *budget.Guardian
	if cfg.Budget.Enabled {
		globalLimit := cfg.Budget.GlobalDailyLimitUSD
		if err := budgets.UpsertScope(ctx, "global", optionalLimit(globalLimit), budget.ActionBlock, cfg.Budget.WarnThresholdPercent); err != nil {
			return fmt.Errorf("seeding global budget scope: %w", err)
		}
		guardian = budget.NewGuardian(budgets)
		if cfg.Budget.DefaultAgentDailyLimitUSD > 0 {
			limit := cfg.Budget.DefaultAgentDailyLimitUSD
			guardian = guardian.WithDefaultAgentScope(&budget.Scope{
				DailyLimitUSD:        &limit,
				Action:               budget.ActionBlock,
				WarnThresholdPercent: cfg.Budget.WarnThresholdPercent,
			})
		}
	}

	events := sqlstore.NewEventRepository(store)
	settings := sqlstore.NewSettingsRepository(store)
	if err := config.Reconcile(ctx, cfg, settingsStoreAdapter{settings}); err != nil {
		return fmt.Errorf("reconciling settings: %w", err)
	}

	scanMode := llmproxy.ScanMode(cfg.Security.ScanMode)
	router := llmproxy.NewRouter(llmproxy.RouterConfig{
		Timeout:            parseDuration(cfg.Proxy.Timeout, 60*time.Second),
		MaxScanBodyBytes:   int64(cfg.Security.MaxScanBodyBytes),
		DefaultAgentHeader: cfg.Proxy.DefaultAgentHeader,
		ChannelSize:        cfg.Proxy.Events.ChannelSize,
		WarningThreshold:   cfg.Proxy.Events.WarningThreshold,
		ScanMode:           func() llmproxy.ScanMode { return scanMode },
		ScanEnabled:        func() bool { return true },
		StoreTextEnabled:   func() bool { return cfg.Security.StoreText },
	}, analyzer, guardian, toolEngine, recorder, events, logger)
	if providers := providersFromConfig(cfg.Proxy.Upstreams); len(providers) > 0 {
		router.SetProviders(append(append([]llmproxy.ProviderSpec(nil), llmproxy.DefaultProviders...), providers...))
	}
	supervisor := llmproxy.NewSupervisor(router, cfg.Proxy.ListenAddr, logger)

	allowedOrigins := append([]string{cfg.Server.HTTPAddr}, cfg.Server.AllowedOrigins...)
	server := api.NewServer(api.Deps{
		Logger:         logger,
		Analyzer:       analyzer,
		CloudClient:    cloudproxy.NewLocalClient(analyzer),
		Events:         events,
		Rules:          rules,
		Settings:       settings,
		Tools:          tools,
		ToolEngine:     toolEngine,
		Costs:          costs,
		Budgets:        budgets,
		Recorder:       recorder,
		Proxy:          supervisor,
		Store:          store,
		BuildInfo:      api.BuildInfo{Version: Version},
		AllowedOrigins: allowedOrigins,
		BearerHash:     cfg.Server.BearerTokenHash,
	})

	if cfg.Proxy.Enabled {
		if err := supervisor.Start(ctx); err != nil {
			return fmt.Errorf("starting llm proxy: %w", err)
		}
	}

	httpServer := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: observability.HTTPMiddleware(server.Handler())}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("serve: failed to write PID file", "error", err)
	}
	defer os.Remove(pidPath)

	printBanner(Version, cfg.Server.HTTPAddr, cfg.Proxy.ListenAddr, cfg.DevMode)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve: local API listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("serve: shutting down")
	case err := <-errCh:
		return fmt.Errorf("local API server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("serve: local API shutdown error", "error", err)
	}
	if cfg.Proxy.Enabled {
		if err := supervisor.Stop(context.Background(), 10*time.Second); err != nil && err != llmproxy.ErrNotRunning {
			logger.Warn("serve: proxy shutdown error", "error", err)
		}
	}
	return nil
}

// settingsStoreAdapter satisfies config.SettingsStore by translating its
// storage-agnostic SettingsPatch into sqlstore's own update type.
type settingsStoreAdapter struct {
	repo *sqlstore.SettingsRepository
}

func (a settingsStoreAdapter) Update(ctx context.Context, patch config.SettingsPatch) error {
	return a.repo.Update(ctx, sqlstore.SettingsUpdate{
		Theme:         patch.Theme,
		ScanMode:      patch.ScanMode,
		RedactSecrets: patch.RedactSecrets,
		BlockThreats:  patch.BlockThreats,
		RetentionDays: patch.RetentionDays,
		ProxyEnabled:  patch.ProxyEnabled,
		ServerHost:    patch.ServerHost,
		ServerPort:    patch.ServerPort,
		StoreText:     patch.StoreText,
	})
}

// optionalLimit returns nil when limit is zero ("unlimited" per
// BudgetConfig's documented semantics), else a pointer to limit.
func optionalLimit(limit float64) *float64 {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func providersFromConfig(upstreams []config.ProxyUpstream) []llmproxy.ProviderSpec {
	specs := make([]llmproxy.ProviderSpec, 0, len(upstreams))
	for _, u := range upstreams {
		if !u.Enabled {
			continue
		}
		specs = append(specs, llmproxy.ProviderSpec{
			Prefix:             u.Provider,
			UpstreamBase:       u.Base,
			AuthHeaderTemplate: u.AuthHeader,
			AuthValuePrefix:    u.AuthValuePrefix,
			CredentialEnv:      u.CredentialEnv,
			Dialect:            llmproxy.DialectOpenAI,
		})
	}
	return specs
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr.
func printBanner(version, httpAddr, proxyAddr string, devMode bool) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%ssentinelwatch %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-10s http://%s\n", "API:", httpAddr)
	fmt.Fprintf(os.Stderr, "  %-10s http://%s\n", "Proxy:", proxyAddr)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the sentinelwatch PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".sentinelwatch", "server.pid")
	}
	return filepath.Join(os.TempDir(), "sentinelwatch-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// readPIDFile reads a PID from the given file path. Returns 0 if unreadable.
func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		return 0
	}
	return pid
}
