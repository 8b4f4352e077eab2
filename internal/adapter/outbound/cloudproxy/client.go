// Package cloudproxy provides the AnalyzerClient edge spec.md scopes as
// "a consumer of the same analyzer contract": a local implementation
// backed by threat.Analyzer, and a thin remote client that falls back
// to local analysis on any error. No cloud backend is implemented here,
// only the interface boundary.
package cloudproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
)

// Source tags where an analysis result actually came from.
type Source string

const (
	SourceLocal         Source = "local"
	SourceCloud         Source = "cloud"
	SourceLocalFallback Source = "local_fallback"
)

// Result wraps a threat verdict with the source that produced it.
type Result struct {
	Verdict threat.Verdict
	Source  Source
}

// Client is the analyzer contract both local and cloud-proxied analysis
// satisfy, so the HTTP handler for /api/threat-analytics/ doesn't need
// to know which one it's talking to.
type Client interface {
	Analyze(ctx context.Context, text string) (Result, error)
}

// LocalClient always analyzes with the in-process analyzer.
type LocalClient struct {
	analyzer *threat.Analyzer
}

func NewLocalClient(analyzer *threat.Analyzer) *LocalClient {
	return &LocalClient{analyzer: analyzer}
}

func (c *LocalClient) Analyze(ctx context.Context, text string) (Result, error) {
	verdict, err := c.analyzer.Analyze(ctx, text)
	if err != nil {
		return Result{}, err
	}
	return Result{Verdict: verdict, Source: SourceLocal}, nil
}

// CloudClient posts to a remote analysis endpoint and falls back to the
// local analyzer on any transport or decode error, tagging the result
// local_fallback so callers can distinguish a degraded response.
type CloudClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	fallback   *threat.Analyzer
	logger     *slog.Logger
}

// NewCloudClient builds a CloudClient posting to endpoint with apiKey as
// a bearer credential, falling back to fallback on any remote failure.
func NewCloudClient(endpoint, apiKey string, fallback *threat.Analyzer, logger *slog.Logger) *CloudClient {
	return &CloudClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
		fallback:   fallback,
		logger:     logger,
	}
}

type remoteRequest struct {
	Text string `json:"text"`
}

func (c *CloudClient) Analyze(ctx context.Context, text string) (Result, error) {
	verdict, err := c.callRemote(ctx, text)
	if err != nil {
		c.logger.Warn("cloudproxy: remote analysis failed, falling back to local", "error", err)
		local, lerr := c.fallback.Analyze(ctx, text)
		if lerr != nil {
			return Result{}, lerr
		}
		return Result{Verdict: local, Source: SourceLocalFallback}, nil
	}
	return Result{Verdict: verdict, Source: SourceCloud}, nil
}

func (c *CloudClient) callRemote(ctx context.Context, text string) (threat.Verdict, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return threat.Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return threat.Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return threat.Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return threat.Verdict{}, fmt.Errorf("cloudproxy: remote status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, 1<<20)
	var verdict threat.Verdict
	if err := json.NewDecoder(limited).Decode(&verdict); err != nil {
		return threat.Verdict{}, fmt.Errorf("cloudproxy: decoding remote response: %w", err)
	}
	return verdict, nil
}
