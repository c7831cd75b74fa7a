package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
)

// authTimeout bounds every token-endpoint call.
const authTimeout = 30 * time.Second

// expirySkew is subtracted from expires_in so tokens refresh before the
// upstream clock would reject them.
const expirySkew = 60 * time.Second

// Refresher exchanges refresh tokens for fresh access tokens. Concurrent
// refreshes of the same file collapse into one upstream call.
type Refresher struct {
	Client *http.Client
	Store  *Store

	// Overrides for the Google client pair, from config or environment.
	GoogleClientID     string
	GoogleClientSecret string

	group   singleflight.Group
	limiter *rate.Limiter
}

// refreshRate caps token-endpoint traffic so a burst of expired credentials
// cannot stampede the provider.
var refreshRate = rate.NewLimiter(rate.Every(200*time.Millisecond), 5)

func (r *Refresher) wait(ctx context.Context) error {
	l := r.limiter
	if l == nil {
		l = refreshRate
	}
	return l.Wait(ctx)
}

// tokenResponse is the union of the fields the providers return.
type tokenResponse struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	ExpiresIn       int    `json:"expires_in"`
	TokenType       string `json:"token_type"`
	AccessTokenAWS  string `json:"accessToken"`
	RefreshTokenAWS string `json:"refreshToken"`
	ExpiresInAWS    int    `json:"expiresIn"`
}

// Fresh returns the credential with a valid access token, refreshing and
// persisting it first when needed.
func (r *Refresher) Fresh(ctx context.Context, c *Credential) (*Credential, error) {
	if !c.Token.Expired(time.Now()) {
		return c, nil
	}
	v, err, _ := r.group.Do(c.Path, func() (any, error) {
		// Another caller may have finished while we queued.
		if cur, err := LoadFile(c.Path); err == nil {
			if !cur.Token.Expired(time.Now()) {
				return cur, nil
			}
			c = cur
		}
		return r.refresh(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

func (r *Refresher) refresh(ctx context.Context, c *Credential) (*Credential, error) {
	if c.Token.RefreshToken == "" {
		return nil, fmt.Errorf("%s: no refresh token", c.Provider)
	}

	var (
		tr  *tokenResponse
		err error
	)
	switch c.Provider {
	case registry.ProviderGemini:
		id, secret := r.googleClient(c, GeminiClientID, GeminiClientSecret)
		tr, err = r.postForm(ctx, GoogleTokenURL, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {c.Token.RefreshToken},
			"client_id":     {id},
			"client_secret": {secret},
		})
	case registry.ProviderAntigravity:
		id, secret := r.googleClient(c, AntigravityClientID, AntigravityClientSecret)
		tr, err = r.postForm(ctx, GoogleTokenURL, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {c.Token.RefreshToken},
			"client_id":     {id},
			"client_secret": {secret},
		})
	case registry.ProviderClaude:
		tr, err = r.postJSON(ctx, AnthropicTokenURL, map[string]any{
			"grant_type":    "refresh_token",
			"refresh_token": c.Token.RefreshToken,
			"client_id":     AnthropicClientID,
		})
	case registry.ProviderCodex:
		tr, err = r.postJSON(ctx, OpenAITokenURL, map[string]any{
			"grant_type":    "refresh_token",
			"refresh_token": c.Token.RefreshToken,
			"client_id":     OpenAIClientID,
		})
	case registry.ProviderKiro:
		tr, err = r.refreshKiro(ctx, c)
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
	if err != nil {
		return nil, err
	}

	access := tr.AccessToken
	if access == "" {
		access = tr.AccessTokenAWS
	}
	if access == "" {
		return nil, fmt.Errorf("%s: refresh returned no access token", c.Provider)
	}
	c.Token.AccessToken = access
	if refresh := firstNonEmpty(tr.RefreshToken, tr.RefreshTokenAWS); refresh != "" {
		c.Token.RefreshToken = refresh
	}
	if c.Token.TokenType == "" {
		c.Token.TokenType = firstNonEmpty(tr.TokenType, "Bearer")
	}
	if expiresIn := max(tr.ExpiresIn, tr.ExpiresInAWS); expiresIn > 0 {
		at := time.Now().Add(time.Duration(expiresIn)*time.Second - expirySkew).UTC()
		c.Token.ExpiresAt = &at
	}

	if r.Store != nil {
		if err := r.Store.Save(c); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
	}
	logging.Infof("refreshed %s token for %s", c.Provider, firstNonEmpty(c.Email, c.Path))
	return c, nil
}

func (r *Refresher) refreshKiro(ctx context.Context, c *Credential) (*tokenResponse, error) {
	if c.AuthMethod == KiroAuthIdC {
		return r.postJSON(ctx, KiroIdCTokenURL(c.Region), map[string]any{
			"clientId":     c.ClientID,
			"clientSecret": c.ClientSecret,
			"grantType":    "refresh_token",
			"refreshToken": c.Token.RefreshToken,
		})
	}
	return r.postJSON(ctx, KiroSocialRefreshURL, map[string]any{
		"refreshToken": c.Token.RefreshToken,
	})
}

func (r *Refresher) googleClient(c *Credential, defaultID, defaultSecret string) (string, string) {
	if c.ClientID != "" {
		return c.ClientID, c.ClientSecret
	}
	if r.GoogleClientID != "" && c.Provider == registry.ProviderGemini {
		return r.GoogleClientID, r.GoogleClientSecret
	}
	return defaultID, defaultSecret
}

func (r *Refresher) postForm(ctx context.Context, endpoint string, values url.Values) (*tokenResponse, error) {
	return r.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
}

func (r *Refresher) postJSON(ctx context.Context, endpoint string, body map[string]any) (*tokenResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return r.post(ctx, endpoint, "application/json", bytes.NewReader(raw))
}

func (r *Refresher) post(ctx context.Context, endpoint, contentType string, body io.Reader) (*tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Warnf("token refresh %s returned %d: %s", endpoint, resp.StatusCode, raw)
		return nil, fmt.Errorf("token refresh failed: status %d", resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("token refresh response: %w", err)
	}
	return &tr, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
