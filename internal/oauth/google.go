package oauth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
)

const (
	googleCallbackPort = 8085
	googleCallbackPath = "/oauth2callback"

	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var geminiScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// LoginGemini runs the Google OAuth flow and persists a gemini credential.
func LoginGemini(ctx context.Context, store *auth.Store, sessions *Sessions, opts Options) (*auth.Credential, error) {
	clientID, clientSecret := auth.GeminiClientID, auth.GeminiClientSecret
	if opts.GoogleClientID != "" {
		clientID, clientSecret = opts.GoogleClientID, opts.GoogleClientSecret
	}

	cred, err := runGoogleFlow(ctx, googleFlowParams{
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       geminiScopes,
		port:         googleCallbackPort,
		path:         googleCallbackPath,
		sessions:     sessions,
		opts:         opts,
	})
	if err != nil {
		return nil, err
	}
	cred.Provider = registry.ProviderGemini

	if err := store.Save(cred); err != nil {
		return nil, err
	}
	logging.Infof("saved gemini credential for %s", cred.Email)
	return cred, nil
}

type googleFlowParams struct {
	clientID     string
	clientSecret string
	scopes       []string
	port         int
	path         string
	sessions     *Sessions
	opts         Options
}

// runGoogleFlow is the shared Google authorization-code exchange used by
// the gemini and antigravity flows.
func runGoogleFlow(ctx context.Context, p googleFlowParams) (*auth.Credential, error) {
	codes, err := GenerateCodes()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	p.sessions.Put(state, codes.Verifier)

	server, err := NewCallbackServer(p.port, p.path)
	if err != nil {
		return nil, err
	}
	defer server.Close()

	cfg := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     googleauth.Endpoint,
		RedirectURL:  server.RedirectURL(),
		Scopes:       p.scopes,
	}
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", codes.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	openAuthURL(authURL, p.opts.NoBrowser)

	cb, err := server.Wait(ctx)
	if err != nil {
		return nil, err
	}
	verifier, ok := p.sessions.Take(cb.State)
	if !ok {
		return nil, fmt.Errorf("oauth callback: unknown state")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.opts.httpClient())
	token, err := cfg.Exchange(ctx, cb.Code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	cred := &auth.Credential{
		Enabled: true,
		Token: auth.Token{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenType:    token.TokenType,
		},
	}
	if !token.Expiry.IsZero() {
		at := token.Expiry.Add(-time.Minute).UTC()
		cred.Token.ExpiresAt = &at
	}

	var userinfo struct {
		Email string `json:"email"`
	}
	if err := fetchJSON(ctx, p.opts.httpClient(), googleUserinfoURL, token.AccessToken, &userinfo); err != nil {
		logging.Warnf("could not fetch account email: %v", err)
	}
	cred.Email = userinfo.Email
	return cred, nil
}
