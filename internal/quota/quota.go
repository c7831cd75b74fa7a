// Package quota periodically snapshots provider quota state for the Google
// accounts and caches it in the store, so status surfaces never hit the
// provider on the request path.
package quota

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/store"
)

const loadCodeAssistURL = "https://cloudcode-pa.googleapis.com/v1internal:loadCodeAssist"

// Refresher polls quota state for every usable Google credential.
type Refresher struct {
	Auth     *auth.Store
	Tokens   *auth.Refresher
	Client   *http.Client
	Logs     store.Backend
	Interval time.Duration
}

// Run polls until ctx is cancelled. A zero or negative interval disables
// polling entirely.
func (r *Refresher) Run(ctx context.Context) {
	if r.Interval <= 0 || r.Logs == nil {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.refreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, p := range []registry.Provider{registry.ProviderGemini, registry.ProviderAntigravity} {
		for _, cred := range r.Auth.List(p) {
			if !cred.Usable() {
				continue
			}
			if err := r.refreshOne(ctx, p, cred); err != nil {
				logging.Warnf("quota refresh for %s %s: %v", p, cred.Email, err)
			}
		}
	}
}

func (r *Refresher) refreshOne(ctx context.Context, p registry.Provider, cred *auth.Credential) error {
	fresh, err := r.Tokens.Fresh(ctx, cred)
	if err != nil {
		return err
	}
	payload, err := fetchCodeAssist(ctx, r.Client, fresh.Token.AccessToken)
	if err != nil {
		return err
	}
	authID := fresh.Email
	if authID == "" {
		authID = fresh.FileName()
	}
	return r.Logs.SaveQuota(ctx, store.QuotaEntry{
		Provider:  string(p),
		AuthID:    authID,
		Payload:   string(payload),
		FetchedAt: time.Now(),
	})
}

// fetchCodeAssist returns the raw loadCodeAssist document, which carries the
// account tier and per-model quota buckets.
func fetchCodeAssist(ctx context.Context, client *http.Client, accessToken string) ([]byte, error) {
	body := []byte(`{"metadata":{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loadCodeAssistURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loadCodeAssist: status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}
