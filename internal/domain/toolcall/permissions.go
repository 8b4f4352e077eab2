package toolcall

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed rules/essential_tools.yaml
var registryFile embed.FS

type registryDocument struct {
	Tools []registryDocEntry `yaml:"tools"`
}

type registryDocEntry struct {
	ID       string `yaml:"id"`
	RiskTier string `yaml:"risk_tier"`
	Action   string `yaml:"action"`
	Reason   string `yaml:"reason"`
}

// loadBuiltinRegistry parses the bundled essential-tool registry into a
// tool_id-keyed map, the teacher's own pattern of bundling a static
// security asset via //go:embed.
func loadBuiltinRegistry() (map[string]RegistryEntry, error) {
	data, err := registryFile.ReadFile("rules/essential_tools.yaml")
	if err != nil {
		return nil, fmt.Errorf("toolcall: reading bundled registry: %w", err)
	}

	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("toolcall: parsing bundled registry: %w", err)
	}

	registry := make(map[string]RegistryEntry, len(doc.Tools))
	for _, entry := range doc.Tools {
		registry[entry.ID] = RegistryEntry{
			ToolID:        entry.ID,
			RiskTier:      RiskTier(entry.RiskTier),
			DefaultAction: Action(entry.Action),
			Reason:        entry.Reason,
		}
	}
	return registry, nil
}

type snapshot struct {
	overrides map[string]Override
	custom    map[string]RegistryEntry
}

// Engine evaluates a tool call's function name against the essential
// tool registry, user overrides, and the custom tool registry, applying
// spec.md §4.4's four-step precedence.
type Engine struct {
	builtin  map[string]RegistryEntry
	repo     Repository
	snap     atomic.Pointer[snapshot]
	loadOnce sync.Once
	loadErr  error
	reloadMu sync.Mutex
}

// NewEngine builds an Engine backed by repo for overrides/custom tools.
func NewEngine(repo Repository) (*Engine, error) {
	builtin, err := loadBuiltinRegistry()
	if err != nil {
		return nil, err
	}
	return &Engine{builtin: builtin, repo: repo}, nil
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.loadOnce.Do(func() {
		e.loadErr = e.load(ctx)
	})
	return e.loadErr
}

// Reload refreshes overrides and the custom tool registry from repo.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	return e.load(ctx)
}

func (e *Engine) load(ctx context.Context) error {
	overrideList, err := e.repo.ListOverrides(ctx)
	if err != nil {
		return fmt.Errorf("toolcall: listing overrides: %w", err)
	}
	overrides := make(map[string]Override, len(overrideList))
	for _, o := range overrideList {
		overrides[o.ToolID] = o
	}

	customList, err := e.repo.ListCustomTools(ctx)
	if err != nil {
		return fmt.Errorf("toolcall: listing custom tools: %w", err)
	}
	custom := make(map[string]RegistryEntry, len(customList))
	for _, c := range customList {
		custom[c.ToolID] = c
	}

	e.snap.Store(&snapshot{overrides: overrides, custom: custom})
	return nil
}

// Evaluate resolves the permission decision for one function name,
// implementing spec.md §4.4's precedence: exact registry match, then
// dotted-suffix match, then custom registry, then a log_only fallback.
func (e *Engine) Evaluate(ctx context.Context, functionName string) (Decision, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return Decision{}, err
	}
	snap := e.snap.Load()
	if snap == nil {
		snap = &snapshot{}
	}

	if entry, ok := e.builtin[functionName]; ok {
		return e.decide(functionName, entry, snap.overrides[functionName], true), nil
	}

	for toolID, entry := range e.builtin {
		if suffixMatches(toolID, functionName) {
			return e.decide(functionName, entry, snap.overrides[toolID], true), nil
		}
	}

	if entry, ok := snap.custom[functionName]; ok {
		return e.decide(functionName, entry, snap.overrides[functionName], true), nil
	}

	return Decision{
		ToolID:       functionName,
		FunctionName: functionName,
		Action:       ActionLogOnly,
		Reason:       "non-essential",
		IsEssential:  false,
	}, nil
}

// ToolView is one tool's effective, override-applied permission state,
// for the HTTP surface's read view over the registry.
type ToolView struct {
	ToolID      string
	RiskTier    RiskTier
	Action      Action
	Reason      string
	IsEssential bool
	Overridden  bool
}

// ListEffective returns every known tool (builtin essential plus custom)
// with overrides already applied, ordered by tool id.
func (e *Engine) ListEffective(ctx context.Context) ([]ToolView, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	snap := e.snap.Load()
	if snap == nil {
		snap = &snapshot{}
	}

	views := make([]ToolView, 0, len(e.builtin)+len(snap.custom))
	for toolID, entry := range e.builtin {
		override, overridden := snap.overrides[toolID]
		d := e.decide(toolID, entry, override, true)
		views = append(views, ToolView{
			ToolID: toolID, RiskTier: d.RiskTier, Action: d.Action,
			Reason: d.Reason, IsEssential: true, Overridden: overridden,
		})
	}
	for toolID, entry := range snap.custom {
		override, overridden := snap.overrides[toolID]
		d := e.decide(toolID, entry, override, false)
		views = append(views, ToolView{
			ToolID: toolID, RiskTier: d.RiskTier, Action: d.Action,
			Reason: d.Reason, IsEssential: false, Overridden: overridden,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ToolID < views[j].ToolID })
	return views, nil
}

// suffixMatches reports whether functionName equals the segment after
// the last dot in toolID (e.g. "send_email" matches "gmail.send_email").
func suffixMatches(toolID, functionName string) bool {
	idx := strings.LastIndex(toolID, ".")
	if idx < 0 {
		return false
	}
	return toolID[idx+1:] == functionName
}

func (e *Engine) decide(functionName string, entry RegistryEntry, override Override, essential bool) Decision {
	action := entry.DefaultAction
	reason := entry.Reason
	if override.Action != "" {
		action = override.Action
		reason = override.Reason
		if reason == "" {
			reason = "user override"
		}
	}
	return Decision{
		ToolID:       entry.ToolID,
		FunctionName: functionName,
		Action:       action,
		RiskTier:     entry.RiskTier,
		Reason:       reason,
		IsEssential:  essential,
	}
}
