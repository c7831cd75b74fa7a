package oauth

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
)

// kiroTokenFile is the cache file the Kiro IDE writes after its own login.
const kiroTokenFile = "kiro-auth-token.json"

// kiroCacheDir locates ~/.aws/sso/cache.
func kiroCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".aws", "sso", "cache"), nil
}

// kiroAuthToken mirrors the IDE's cache file.
type kiroAuthToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
	Region       string `json:"region"`
	ProfileArn   string `json:"profileArn"`
	AuthMethod   string `json:"authMethod"`
	Provider     string `json:"provider"`
	ClientIDHash string `json:"clientIdHash"`
}

// ImportKiro reads the Kiro IDE token cache and writes a kiro credential.
// IdC logins carry a clientIdHash pointing at a companion registration file
// holding the client pair needed for refresh.
func ImportKiro(store *auth.Store) (*auth.Credential, error) {
	dir, err := kiroCacheDir()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, kiroTokenFile))
	if err != nil {
		return nil, fmt.Errorf("no Kiro token cache; sign in with the Kiro IDE first: %w", err)
	}
	var tok kiroAuthToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("%s: %w", kiroTokenFile, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%s holds no tokens", kiroTokenFile)
	}

	method := tok.AuthMethod
	if method == "" {
		if tok.ClientIDHash != "" {
			method = auth.KiroAuthIdC
		} else {
			method = auth.KiroAuthSocial
		}
	}

	cred := &auth.Credential{
		Provider:   registry.ProviderKiro,
		Enabled:    true,
		Region:     tok.Region,
		ProfileArn: tok.ProfileArn,
		AuthMethod: method,
		Token: auth.Token{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    "Bearer",
		},
	}
	if tok.ExpiresAt != "" {
		if at, err := time.Parse(time.RFC3339, tok.ExpiresAt); err == nil {
			utc := at.UTC()
			cred.Token.ExpiresAt = &utc
		}
	}

	if tok.ClientIDHash != "" {
		var reg struct {
			ClientID     string `json:"clientId"`
			ClientSecret string `json:"clientSecret"`
		}
		regRaw, err := os.ReadFile(filepath.Join(dir, tok.ClientIDHash+".json"))
		if err != nil {
			logging.Warnf("kiro client registration %s.json missing; IdC refresh will fail", tok.ClientIDHash)
		} else if err := json.Unmarshal(regRaw, &reg); err == nil {
			cred.ClientID = reg.ClientID
			cred.ClientSecret = reg.ClientSecret
		}
	}

	if err := store.Save(cred); err != nil {
		return nil, err
	}
	logging.Infof("imported kiro credential (%s, region %s)", method, tok.Region)
	return cred, nil
}
