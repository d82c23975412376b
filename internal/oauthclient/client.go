package oauthclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config is the fixed, per-backend OAuth wiring — everything the host
// supplies once, up front. It never varies per request.
type Config struct {
	ClientID        string
	Scope           string
	AuthURL         string
	TokenURL        string
	CallbackPort    int
	ExtraAuthParams map[string]string
}

func (c Config) redirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/auth/callback", c.CallbackPort)
}

func (c Config) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL, AuthStyle: oauth2.AuthStyleInParams}
}

func (c Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		Scopes:      strings.Fields(c.Scope),
		RedirectURL: c.redirectURI(),
		Endpoint:    c.endpoint(),
	}
}

// Client runs the PKCE authorization-code flow and the refresh grant for
// one OAuth-credentialed backend.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{cfg: cfg, logger: logger.With(zap.String("component", "oauthclient"))}
}

// Result is the outcome of a completed authorization-code exchange.
type Result struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Email        string
	Subject      string
}

// AuthorizeURL builds the authorize-endpoint URL for one PKCE attempt,
// including any backend-specific extra parameters.
func (c *Client) AuthorizeURL(p PKCE) string {
	oc := c.cfg.oauth2Config()
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", p.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	for k, v := range c.cfg.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return oc.AuthCodeURL(p.State, opts...)
}

// Authorize runs the local callback listener, waits for the redirect, and
// exchanges the returned code. It enforces the 5-minute absolute timeout
// named in §4.4 regardless of the caller's context.
func (c *Client) Authorize(ctx context.Context, p PKCE) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	type callbackResult struct {
		code  string
		state string
		err   error
	}
	resultCh := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errParam := q.Get("error"); errParam != "" {
			resultCh <- callbackResult{err: fmt.Errorf("authorize error: %s", errParam)}
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "Authorization failed, you may close this window.")
			return
		}
		resultCh <- callbackResult{code: q.Get("code"), state: q.Get("state")}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "You may close this window.")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", c.cfg.CallbackPort), Handler: mux}
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.ListenAndServe() }()
	defer srv.Close()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return Result{}, res.err
		}
		if res.state != p.State {
			return Result{}, fmt.Errorf("oauthclient: state mismatch")
		}
		return c.exchange(ctx, p, res.code)
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			return Result{}, fmt.Errorf("oauthclient: callback listener failed: %w", err)
		}
		return Result{}, fmt.Errorf("oauthclient: callback listener stopped unexpectedly")
	case <-ctx.Done():
		return Result{}, fmt.Errorf("oauthclient: timed out waiting for authorization: %w", ctx.Err())
	}
}

func (c *Client) exchange(ctx context.Context, p PKCE, code string) (Result, error) {
	oc := c.cfg.oauth2Config()
	tok, err := oc.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", p.Verifier))
	if err != nil {
		return Result{}, fmt.Errorf("oauthclient: code exchange failed: %w", err)
	}
	return c.toResult(tok), nil
}

// Refresh implements pool.Refresher: a non-2xx response is surfaced as a
// plain error, leaving the caller to decide whether to latch invalid.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, newRefreshToken string, err error) {
	oc := c.cfg.oauth2Config()
	src := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("oauthclient: refresh failed: %w", err)
	}
	result := c.toResult(tok)
	newRefresh := tok.RefreshToken
	if newRefresh == refreshToken {
		// Endpoint omitted a new refresh token — reuse the existing one,
		// per §4.4's refresh-grant note.
		newRefresh = ""
	}
	return result.AccessToken, result.ExpiresAt, newRefresh, nil
}

func (c *Client) toResult(tok *oauth2.Token) Result {
	r := Result{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		if claims, err := parseIDTokenClaims(raw); err == nil {
			r.Email = claims.Email
			r.Subject = claims.Subject
		}
	}
	return r
}

type idTokenClaims struct {
	Email   string `json:"email"`
	Subject string `json:"sub"`
}

// parseIDTokenClaims extracts claims from a JWT without verifying its
// signature — the result only seeds Account.id/email, it is never used for
// authorization decisions.
func parseIDTokenClaims(raw string) (idTokenClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return idTokenClaims{}, fmt.Errorf("oauthclient: malformed id_token")
	}
	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return idTokenClaims{}, err
	}
	var claims idTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return idTokenClaims{}, err
	}
	return claims, nil
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// DeriveAccountID picks email over subject over a synthetic fallback,
// per §3's "id — stable identifier (email if known, else synthetic)".
func DeriveAccountID(r Result, synthesize func() string) string {
	if r.Email != "" {
		return r.Email
	}
	if r.Subject != "" {
		return r.Subject
	}
	return synthesize()
}

// AuthorizeURLValues is a convenience for callers (the CLI) that want the
// raw query parameters rather than a pre-assembled URL string.
func AuthorizeURLValues(authorizeURL string) (url.Values, error) {
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return nil, err
	}
	return u.Query(), nil
}
