package oauth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
)

const (
	anthropicCallbackPort = 8417
	anthropicCallbackPath = "/anthropic/callback"

	anthropicAuthorizeURL = "https://claude.ai/oauth/authorize"
	anthropicScopes       = "org:create_api_key user:profile user:inference"
)

// LoginAnthropic runs the Claude OAuth flow and persists the credential.
func LoginAnthropic(ctx context.Context, store *auth.Store, sessions *Sessions, opts Options) (*auth.Credential, error) {
	codes, err := GenerateCodes()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	sessions.Put(state, codes.Verifier)

	server, err := NewCallbackServer(anthropicCallbackPort, anthropicCallbackPath)
	if err != nil {
		return nil, err
	}
	defer server.Close()

	q := url.Values{
		"code":                  {"true"},
		"client_id":             {auth.AnthropicClientID},
		"response_type":         {"code"},
		"redirect_uri":          {server.RedirectURL()},
		"scope":                 {anthropicScopes},
		"code_challenge":        {codes.Challenge},
		"code_challenge_method": {"S256"},
		"state":                 {state},
	}
	openAuthURL(anthropicAuthorizeURL+"?"+q.Encode(), opts.NoBrowser)

	cb, err := server.Wait(ctx)
	if err != nil {
		return nil, err
	}

	// Claude sometimes delivers code and state concatenated as code#state.
	code, cbState := cb.Code, cb.State
	if idx := strings.IndexByte(code, '#'); idx >= 0 {
		cbState = code[idx+1:]
		code = code[:idx]
	}
	verifier, ok := sessions.Take(cbState)
	if !ok {
		return nil, fmt.Errorf("oauth callback: unknown state")
	}

	body := map[string]any{
		"grant_type":    "authorization_code",
		"code":          code,
		"state":         cbState,
		"client_id":     auth.AnthropicClientID,
		"redirect_uri":  server.RedirectURL(),
		"code_verifier": verifier,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.AnthropicTokenURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := opts.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respRaw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange: status %d: %s", resp.StatusCode, respRaw)
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Account      struct {
			EmailAddress string `json:"email_address"`
		} `json:"account"`
	}
	if err := json.Unmarshal(respRaw, &tr); err != nil {
		return nil, fmt.Errorf("token exchange response: %w", err)
	}

	cred := &auth.Credential{
		Provider: registry.ProviderClaude,
		Email:    tr.Account.EmailAddress,
		Enabled:  true,
		Token: auth.Token{
			AccessToken:  tr.AccessToken,
			RefreshToken: tr.RefreshToken,
			TokenType:    "Bearer",
		},
	}
	if tr.ExpiresIn > 0 {
		at := time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute).UTC()
		cred.Token.ExpiresAt = &at
	}
	if err := store.Save(cred); err != nil {
		return nil, err
	}
	logging.Infof("saved claude credential for %s", cred.Email)
	return cred, nil
}
