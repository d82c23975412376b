// Package oauthclient implements the authorization-code grant with PKCE
// used by the OAuth-credentialed backends (§4.4), plus the refresh grant
// used on the GetTokenForAccount critical path.
package oauthclient

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// PKCE holds one authorization attempt's verifier/challenge/state triple.
type PKCE struct {
	Verifier  string
	Challenge string
	State     string
}

func NewPKCE() (PKCE, error) {
	verifier, err := randomURLSafe(32)
	if err != nil {
		return PKCE{}, err
	}
	state, err := randomURLSafe(16)
	if err != nil {
		return PKCE{}, err
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return PKCE{Verifier: verifier, Challenge: challenge, State: state}, nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
