package oauth

import (
	"bytes"
	"context"
	"encoding/base64"
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
	codexCallbackPort = 1455
	codexCallbackPath = "/auth/callback"

	codexAuthorizeURL = "https://auth.openai.com/oauth/authorize"
	codexScopes       = "openid profile email offline_access"
)

// LoginCodex runs the OpenAI OAuth flow and persists the credential.
func LoginCodex(ctx context.Context, store *auth.Store, sessions *Sessions, opts Options) (*auth.Credential, error) {
	codes, err := GenerateCodes()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	sessions.Put(state, codes.Verifier)

	server, err := NewCallbackServer(codexCallbackPort, codexCallbackPath)
	if err != nil {
		return nil, err
	}
	defer server.Close()

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {auth.OpenAIClientID},
		"redirect_uri":          {server.RedirectURL()},
		"scope":                 {codexScopes},
		"code_challenge":        {codes.Challenge},
		"code_challenge_method": {"S256"},
		"state":                 {state},
		"id_token_add_organizations": {"true"},
	}
	openAuthURL(codexAuthorizeURL+"?"+q.Encode(), opts.NoBrowser)

	cb, err := server.Wait(ctx)
	if err != nil {
		return nil, err
	}
	verifier, ok := sessions.Take(cb.State)
	if !ok {
		return nil, fmt.Errorf("oauth callback: unknown state")
	}

	body := map[string]any{
		"grant_type":    "authorization_code",
		"code":          cb.Code,
		"redirect_uri":  server.RedirectURL(),
		"client_id":     auth.OpenAIClientID,
		"code_verifier": verifier,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.OpenAITokenURL, bytes.NewReader(raw))
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
		IDToken      string `json:"id_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respRaw, &tr); err != nil {
		return nil, fmt.Errorf("token exchange response: %w", err)
	}

	cred := &auth.Credential{
		Provider: registry.ProviderCodex,
		Email:    emailFromIDToken(tr.IDToken),
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
	logging.Infof("saved codex credential for %s", cred.Email)
	return cred, nil
}

// emailFromIDToken pulls the email claim out of the id_token, best effort.
func emailFromIDToken(idToken string) string {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Email
}
