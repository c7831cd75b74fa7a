// Package registry maps model identifiers to upstream providers and holds
// the static model catalog served by the model-listing endpoints.
package registry

import (
	"strings"
	"sync"
	"time"
)

// Provider identifies an upstream backend.
type Provider string

const (
	ProviderGemini      Provider = "gemini"
	ProviderClaude      Provider = "claude"
	ProviderCodex       Provider = "codex"
	ProviderAntigravity Provider = "antigravity"
	ProviderKiro        Provider = "kiro"
)

// All lists every provider the gateway can dispatch to.
func All() []Provider {
	return []Provider{ProviderGemini, ProviderClaude, ProviderCodex, ProviderAntigravity, ProviderKiro}
}

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGemini, ProviderClaude, ProviderCodex, ProviderAntigravity, ProviderKiro:
		return true
	}
	return false
}

// ModelInfo describes one model in the catalog.
type ModelInfo struct {
	ID          string
	DisplayName string
	Description string
	Provider    Provider
	Created     int64
}

var staticModels = []ModelInfo{
	{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", Description: "Google Gemini 2.5 Pro via Cloud Code Assist", Provider: ProviderGemini, Created: 1743465600},
	{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", Description: "Google Gemini 2.5 Flash via Cloud Code Assist", Provider: ProviderGemini, Created: 1743465600},
	{ID: "gemini-3-pro-preview", DisplayName: "Gemini 3 Pro", Description: "Gemini 3 Pro via Antigravity", Provider: ProviderAntigravity, Created: 1763424000},
	{ID: "gemini-3-pro-high", DisplayName: "Gemini 3 Pro High", Description: "Gemini 3 Pro high reasoning via Antigravity", Provider: ProviderAntigravity, Created: 1763424000},
	{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", Description: "Anthropic Claude Sonnet 4.5", Provider: ProviderClaude, Created: 1759104000},
	{ID: "claude-opus-4-1", DisplayName: "Claude Opus 4.1", Description: "Anthropic Claude Opus 4.1", Provider: ProviderClaude, Created: 1754006400},
	{ID: "claude-3-5-sonnet", DisplayName: "Claude 3.5 Sonnet", Description: "Anthropic Claude 3.5 Sonnet", Provider: ProviderClaude, Created: 1719187200},
	{ID: "gpt-5", DisplayName: "GPT-5", Description: "OpenAI GPT-5 via Codex", Provider: ProviderCodex, Created: 1754524800},
	{ID: "gpt-5-codex", DisplayName: "GPT-5 Codex", Description: "OpenAI GPT-5 Codex", Provider: ProviderCodex, Created: 1754524800},
	{ID: "kiro-claude-sonnet-4-5", DisplayName: "Kiro Claude Sonnet 4.5", Description: "Claude Sonnet 4.5 via Kiro/CodeWhisperer", Provider: ProviderKiro, Created: 1759104000},
	{ID: "kiro-claude-haiku-4-5", DisplayName: "Kiro Claude Haiku 4.5", Description: "Claude Haiku 4.5 via Kiro/CodeWhisperer", Provider: ProviderKiro, Created: 1761523200},
}

// ProviderForModel resolves the upstream provider for a model id.
// Exact catalog matches win; prefixes decide the rest.
func ProviderForModel(model string) (Provider, bool) {
	m := strings.TrimSpace(model)
	for i := range staticModels {
		if staticModels[i].ID == m {
			return staticModels[i].Provider, true
		}
	}
	switch {
	case strings.HasPrefix(m, "kiro-"), strings.HasPrefix(m, "amazonq"):
		return ProviderKiro, true
	case strings.HasPrefix(m, "antigravity-"):
		return ProviderAntigravity, true
	case strings.HasPrefix(m, "gemini-3"):
		return ProviderAntigravity, true
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGemini, true
	case strings.HasPrefix(m, "claude-"):
		return ProviderClaude, true
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"), strings.HasPrefix(m, "codex-"):
		return ProviderCodex, true
	}
	return "", false
}

// Models returns the catalog entries for the given providers, in catalog order.
func Models(providers map[Provider]bool) []ModelInfo {
	out := make([]ModelInfo, 0, len(staticModels))
	for _, m := range staticModels {
		if providers == nil || providers[m.Provider] {
			out = append(out, m)
		}
	}
	return out
}

// StripKiroPrefix translates a gateway-facing kiro model id into the
// upstream model name (kiro-claude-sonnet-4-5 -> claude-sonnet-4-5).
func StripKiroPrefix(model string) string {
	return strings.TrimPrefix(model, "kiro-")
}

// ModelCache caches a provider's dynamically discovered model list.
// Read-heavy: guarded by an RWMutex and refilled on TTL expiry.
type ModelCache struct {
	mu      sync.RWMutex
	models  []ModelInfo
	expires time.Time
	ttl     time.Duration
}

// NewModelCache creates a cache with the given TTL (1h for Kiro).
func NewModelCache(ttl time.Duration) *ModelCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ModelCache{ttl: ttl}
}

// Get returns the cached list and whether it is still fresh.
func (c *ModelCache) Get() ([]ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.models == nil || time.Now().After(c.expires) {
		return nil, false
	}
	out := make([]ModelInfo, len(c.models))
	copy(out, c.models)
	return out, true
}

// Put replaces the cached list and restarts the TTL.
func (c *ModelCache) Put(models []ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make([]ModelInfo, len(models))
	copy(c.models, models)
	c.expires = time.Now().Add(c.ttl)
}
