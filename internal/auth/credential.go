// Package auth owns the on-disk credential records: one JSON file per
// account under auth_dir, written atomically, refreshed in place.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/registry"
)

// Kiro auth methods.
const (
	KiroAuthSocial = "Social"
	KiroAuthIdC    = "IdC"
)

// Token is the OAuth token block of a credential file.
type Token struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TokenType    string     `json:"token_type"`
}

// Expired reports whether the access token needs a refresh before use.
func (t *Token) Expired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Before(*t.ExpiresAt)
}

// Credential is one stored account.
type Credential struct {
	Provider registry.Provider `json:"provider"`
	Email    string            `json:"email,omitempty"`
	Enabled  bool              `json:"enabled"`
	Token    Token             `json:"token"`

	// Gemini and Antigravity
	ProjectID    string `json:"project_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// Kiro
	Region     string `json:"region,omitempty"`
	ProfileArn string `json:"profile_arn,omitempty"`
	AuthMethod string `json:"auth_method,omitempty"`

	// Path is the file the record was loaded from or saved to.
	Path string `json:"-"`
}

// Usable reports whether the credential can serve requests at all.
func (c *Credential) Usable() bool {
	return c.Enabled && (c.Token.AccessToken != "" || c.Token.RefreshToken != "")
}

// FileName derives the canonical file name for the credential.
// Gemini keeps the legacy gemini-<email>-all.json shape; everything else is
// <provider>_<identifier>.json.
func (c *Credential) FileName() string {
	id := c.Email
	if id == "" {
		id = uuid.NewString()
	}
	id = sanitizeIdentifier(id)
	if c.Provider == registry.ProviderGemini {
		return fmt.Sprintf("gemini-%s-all.json", id)
	}
	return fmt.Sprintf("%s_%s.json", c.Provider, id)
}

func sanitizeIdentifier(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '@', r == '-', r == '_':
			return r
		}
		return '-'
	}, id)
}

// Save writes the credential under dir, atomically replacing any previous
// file. The stored Path is updated.
func Save(dir string, c *Credential) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("auth dir: %w", err)
	}
	name := filepath.Base(c.Path)
	if name == "" || name == "." {
		name = c.FileName()
	}
	path := filepath.Join(dir, name)

	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cred-*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	c.Path = path
	return nil
}

// LoadFile reads one credential file.
func LoadFile(path string) (*Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if c.Provider == "" {
		// Legacy gemini files predate the provider field.
		if strings.HasPrefix(filepath.Base(path), "gemini-") {
			c.Provider = registry.ProviderGemini
		} else {
			return nil, fmt.Errorf("%s: missing provider", filepath.Base(path))
		}
	}
	c.Path = path
	return &c, nil
}
