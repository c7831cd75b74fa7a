// Package oauth implements the browser login flows: PKCE generation, the
// pending-session map, the one-shot loopback callback servers, and the
// provider-specific authorization and token exchanges.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const base62 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	verifierLength = 64
	stateLength    = 32
)

// Codes holds one PKCE pair.
type Codes struct {
	Verifier  string
	Challenge string
}

// GenerateCodes produces a fresh S256 PKCE pair.
func GenerateCodes() (*Codes, error) {
	verifier, err := randomBase62(verifierLength)
	if err != nil {
		return nil, fmt.Errorf("pkce verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return &Codes{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// GenerateState produces the CSRF state parameter.
func GenerateState() (string, error) {
	s, err := randomBase62(stateLength)
	if err != nil {
		return "", fmt.Errorf("oauth state: %w", err)
	}
	return s, nil
}

func randomBase62(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = base62[int(b)%len(base62)]
	}
	return string(out), nil
}
