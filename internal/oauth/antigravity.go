package oauth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
)

const (
	antigravityCallbackPath = "/antigravity/callback"

	cloudCodeBaseURL  = "https://cloudcode-pa.googleapis.com"
	loadCodeAssistURL = cloudCodeBaseURL + "/v1internal:loadCodeAssist"
	onboardUserURL    = cloudCodeBaseURL + "/v1internal:onboardUser"

	onboardPollAttempts = 5
	onboardPollInterval = 2 * time.Second
)

var antigravityScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/cclog",
	"https://www.googleapis.com/auth/experimentsandconfigs",
}

// LoginAntigravity runs the Google OAuth flow against the Antigravity
// client, resolves the Cloud Code project, and persists the credential.
func LoginAntigravity(ctx context.Context, store *auth.Store, sessions *Sessions, opts Options) (*auth.Credential, error) {
	port := opts.GatewayPort
	if port <= 0 {
		port = 8317
	}

	cred, err := runGoogleFlow(ctx, googleFlowParams{
		clientID:     auth.AntigravityClientID,
		clientSecret: auth.AntigravityClientSecret,
		scopes:       antigravityScopes,
		port:         port,
		path:         antigravityCallbackPath,
		sessions:     sessions,
		opts:         opts,
	})
	if err != nil {
		return nil, err
	}
	cred.Provider = registry.ProviderAntigravity
	cred.ClientID = auth.AntigravityClientID
	cred.ClientSecret = auth.AntigravityClientSecret

	project, err := ResolveProject(ctx, opts.httpClient(), cred.Token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("antigravity project bootstrap: %w", err)
	}
	cred.ProjectID = project

	if err := store.Save(cred); err != nil {
		return nil, err
	}
	logging.Infof("saved antigravity credential for %s (project %s)", cred.Email, project)
	return cred, nil
}

// ResolveProject returns the cloudaicompanion project for the account,
// onboarding the account onto the default tier when it has none yet.
func ResolveProject(ctx context.Context, client *http.Client, accessToken string) (string, error) {
	metadata := map[string]any{
		"ideType":     "IDE_UNSPECIFIED",
		"platform":    "PLATFORM_UNSPECIFIED",
		"pluginType":  "GEMINI",
		"duetProject": "",
	}

	var load struct {
		CloudAICompanionProject string `json:"cloudaicompanionProject"`
		AllowedTiers            []struct {
			ID        string `json:"id"`
			IsDefault bool   `json:"isDefault"`
		} `json:"allowedTiers"`
	}
	if err := postCloudCode(ctx, client, loadCodeAssistURL, accessToken, map[string]any{"metadata": metadata}, &load); err != nil {
		return "", err
	}
	if load.CloudAICompanionProject != "" {
		return load.CloudAICompanionProject, nil
	}

	tierID := "free-tier"
	for _, t := range load.AllowedTiers {
		if t.IsDefault {
			tierID = t.ID
			break
		}
	}

	onboardReq := map[string]any{"tierId": tierID, "metadata": metadata}
	for attempt := 0; attempt < onboardPollAttempts; attempt++ {
		var onboard struct {
			Done     bool `json:"done"`
			Response struct {
				CloudAICompanionProject struct {
					ID string `json:"id"`
				} `json:"cloudaicompanionProject"`
			} `json:"response"`
		}
		if err := postCloudCode(ctx, client, onboardUserURL, accessToken, onboardReq, &onboard); err != nil {
			return "", err
		}
		if onboard.Done {
			if id := onboard.Response.CloudAICompanionProject.ID; id != "" {
				return id, nil
			}
			return "", fmt.Errorf("onboarding finished without a project id")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(onboardPollInterval):
		}
	}
	return "", fmt.Errorf("onboarding did not finish after %d attempts", onboardPollAttempts)
}

func postCloudCode(ctx context.Context, client *http.Client, url, accessToken string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respRaw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, respRaw)
	}
	return json.Unmarshal(respRaw, out)
}
