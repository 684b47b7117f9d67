package vald

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/apexlab/apex-backend/internal/platform/ctxutil"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// AuthError marks a failed client-credentials exchange. The client retries
// re-authentication once per request before surfacing it.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e == nil || e.Err == nil {
		return "vald: authentication failed"
	}
	return fmt.Sprintf("vald: authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// expirySkew forces a refresh slightly before the reported expiry so a
// token never goes stale mid-request.
const expirySkew = 30 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// tokenSource caches a bearer token for the VALD APIs and refreshes it on
// expiry. The refresh is mutex-serialized: concurrent callers in an
// expired-token window share one exchange.
type tokenSource struct {
	log          *logger.Logger
	httpClient   *http.Client
	authURL      string
	clientID     string
	clientSecret string
	scope        string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenSource(log *logger.Logger, httpClient *http.Client, authURL, clientID, clientSecret, scope string) *tokenSource {
	return &tokenSource{
		log:          log.With("component", "ValdTokenSource"),
		httpClient:   httpClient,
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
	}
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expiry) {
		return t.token, nil
	}

	token, expiresIn, err := t.exchange(ctx)
	if err != nil {
		return "", &AuthError{Err: err}
	}

	t.token = token
	t.expiry = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySkew)
	t.log.Debug("VALD token refreshed", "expires_in", expiresIn)
	return t.token, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
// Used when the API answers 401 despite an unexpired cache entry.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiry = time.Time{}
	t.mu.Unlock()
}

func (t *tokenSource) exchange(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("scope", t.scope)

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, t.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", 0, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(raw))
		if len(body) > 1000 {
			body = body[:1000] + "..."
		}
		return "", 0, fmt.Errorf("token exchange http %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", 0, fmt.Errorf("token exchange decode: %w", err)
	}
	if strings.TrimSpace(tr.AccessToken) == "" {
		return "", 0, fmt.Errorf("token exchange returned empty access_token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}
