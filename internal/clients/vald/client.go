package vald

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/apexlab/apex-backend/internal/platform/ctxutil"
	"github.com/apexlab/apex-backend/internal/platform/envutil"
	"github.com/apexlab/apex-backend/internal/platform/httpx"
	"github.com/apexlab/apex-backend/internal/platform/logger"
)

// Client wraps the VALD external-profiles API. Profile creation is
// asynchronous on VALD's side: CreateProfile never returns the assigned
// profile id, callers poll GetProfileBySyncID for it.
type Client interface {
	CreateProfile(ctx context.Context, req CreateProfileRequest) error
	GetProfileBySyncID(ctx context.Context, syncID string) (*Profile, error)
	GetProfileByID(ctx context.Context, profileID string) (*Profile, error)
	UpdateProfileEmail(ctx context.Context, profileID string, email string) error
	SearchByEmail(ctx context.Context, email string) (*Profile, error)
	SearchByName(ctx context.Context, givenName string, familyName string) ([]Profile, error)
}

// Profile is VALD's projection of an athlete identity. Email is frequently
// absent on older tenant profiles.
type Profile struct {
	ProfileID   string    `json:"profileId"`
	SyncID      string    `json:"syncId"`
	GivenName   string    `json:"givenName"`
	FamilyName  string    `json:"familyName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	ExternalID  string    `json:"externalId"`
	Email       string    `json:"email,omitempty"`
}

type CreateProfileRequest struct {
	GivenName   string
	FamilyName  string
	Email       string
	DateOfBirth time.Time
	Sex         string
	SyncID      string
	ExternalID  string
}

type Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	TenantID     string
	Scope        string
	Timeout      time.Duration
	MaxRetries   int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:      strings.TrimSpace(os.Getenv("VALD_PROFILE_API_URL")),
		AuthURL:      strings.TrimSpace(os.Getenv("VALD_AUTH_URL")),
		ClientID:     strings.TrimSpace(os.Getenv("VALD_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("VALD_CLIENT_SECRET")),
		TenantID:     strings.TrimSpace(os.Getenv("VALD_TENANT_ID")),
		Timeout:      envutil.DurationSeconds("VALD_TIMEOUT_SECONDS", 15*time.Second),
		MaxRetries:   envutil.Int("VALD_MAX_RETRIES", 3),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("missing VALD_CLIENT_ID / VALD_CLIENT_SECRET")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("missing VALD_TENANT_ID")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://prd-use-api-extprofiles.valdperformance.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://security.valdperformance.com/connect/token"
	}
	if cfg.Scope == "" {
		cfg.Scope = "api.dynamo api.external"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	clientLog := log.With("client", "ValdClient")
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &client{
		log:        clientLog,
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     newTokenSource(clientLog, httpClient, cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, cfg.Scope),
		maxRetries: cfg.MaxRetries,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	tokens     *tokenSource
	maxRetries int
}

// HTTPError is a non-2xx answer from the VALD API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "vald: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("vald http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type profilesResponse struct {
	Profiles []Profile `json:"profiles"`
}

func (c *client) CreateProfile(ctx context.Context, req CreateProfileRequest) error {
	if strings.TrimSpace(req.SyncID) == "" || strings.TrimSpace(req.ExternalID) == "" {
		return fmt.Errorf("vald: syncId and externalId required")
	}

	// VALD encodes sex as 0 = male, 1 = female.
	sexValue := 1
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(req.Sex)), "M") {
		sexValue = 0
	}

	body := map[string]any{
		"dateOfBirth":                   req.DateOfBirth.UTC().Format(time.RFC3339),
		"email":                         req.Email,
		"givenName":                     req.GivenName,
		"familyName":                    req.FamilyName,
		"tenantId":                      c.cfg.TenantID,
		"syncId":                        req.SyncID,
		"sex":                           sexValue,
		"externalId":                    req.ExternalID,
		"isCreatedByUserOver18YearsOld": true,
		"isGuardianConsentGiven":        true,
		"isPhotoConsentGiven":           true,
	}

	_, err := doJSON[json.RawMessage](c, ctx, http.MethodPost, c.cfg.BaseURL+"/profiles/import", body)
	return err
}

func (c *client) GetProfileBySyncID(ctx context.Context, syncID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/profiles?TenantId=%s&SyncId=%s",
		c.cfg.BaseURL, url.QueryEscape(c.cfg.TenantID), url.QueryEscape(syncID))

	out, err := doJSON[profilesResponse](c, ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	// The id is assigned asynchronously; an empty listing means "not yet".
	if out == nil || len(out.Profiles) == 0 {
		return nil, nil
	}
	p := out.Profiles[0]
	return &p, nil
}

func (c *client) GetProfileByID(ctx context.Context, profileID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/profiles/%s?TenantId=%s",
		c.cfg.BaseURL, url.PathEscape(profileID), url.QueryEscape(c.cfg.TenantID))

	out, err := doJSON[Profile](c, ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if out == nil || out.ProfileID == "" {
		return nil, nil
	}
	return out, nil
}

func (c *client) UpdateProfileEmail(ctx context.Context, profileID string, email string) error {
	current, err := c.GetProfileByID(ctx, profileID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("vald: profile %s not found", profileID)
	}

	// The profile PUT is whole-record; carry the current fields over.
	body := map[string]any{
		"tenantId":    c.cfg.TenantID,
		"profileId":   profileID,
		"email":       email,
		"givenName":   current.GivenName,
		"familyName":  current.FamilyName,
		"dateOfBirth": current.DateOfBirth.UTC().Format(time.RFC3339),
		"syncId":      current.SyncID,
		"externalId":  current.ExternalID,
	}

	endpoint := fmt.Sprintf("%s/profiles/%s", c.cfg.BaseURL, url.PathEscape(profileID))
	_, err = doJSON[json.RawMessage](c, ctx, http.MethodPut, endpoint, body)
	return err
}

func (c *client) SearchByEmail(ctx context.Context, email string) (*Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/profiles?TenantId=%s&Email=%s",
		c.cfg.BaseURL, url.QueryEscape(c.cfg.TenantID), url.QueryEscape(email))

	out, err := doJSON[profilesResponse](c, ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Profiles) == 0 {
		return nil, nil
	}

	// The API sometimes answers an email query with profiles that carry no
	// email at all; only a profile whose email actually matches counts.
	want := strings.ToLower(email)
	var matches []Profile
	for _, p := range out.Profiles {
		if strings.ToLower(strings.TrimSpace(p.Email)) == want {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		c.log.Warn("VALD email search returned no profile carrying the searched email",
			"email", email,
			"profiles_returned", len(out.Profiles),
		)
		return nil, nil
	}
	if len(matches) > 1 {
		c.log.Warn("Multiple VALD profiles share an email, using the first",
			"email", email,
			"matches", len(matches),
		)
	}
	p := matches[0]
	return &p, nil
}

// SearchByName lists the whole tenant and filters client-side: VALD has no
// name-search endpoint. O(tenant profiles) per call, diagnostics only.
func (c *client) SearchByName(ctx context.Context, givenName string, familyName string) ([]Profile, error) {
	endpoint := fmt.Sprintf("%s/profiles?TenantId=%s", c.cfg.BaseURL, url.QueryEscape(c.cfg.TenantID))

	out, err := doJSON[profilesResponse](c, ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}

	given := strings.ToLower(strings.TrimSpace(givenName))
	family := strings.ToLower(strings.TrimSpace(familyName))

	var matches []Profile
	for _, p := range out.Profiles {
		pGiven := strings.ToLower(strings.TrimSpace(p.GivenName))
		pFamily := strings.ToLower(strings.TrimSpace(p.FamilyName))

		// Accept reversed order too: operators regularly enter "Last First".
		normal := strings.Contains(pGiven, given) && strings.Contains(pFamily, family)
		reversed := strings.Contains(pGiven, family) && strings.Contains(pFamily, given)
		if normal || reversed {
			matches = append(matches, p)
		}
	}

	// The tenant listing omits email; fetch full records for the matches.
	for i := range matches {
		full, err := c.GetProfileByID(ctx, matches[i].ProfileID)
		if err != nil {
			c.log.Warn("Failed to fetch full profile for name match",
				"profile_id", matches[i].ProfileID,
				"error", err,
			)
			continue
		}
		if full != nil {
			matches[i] = *full
		}
	}
	return matches, nil
}

// ---------- HTTP / retry helpers ----------

func doJSON[T any](c *client, ctx context.Context, method, urlStr string, body any) (*T, error) {
	backoff := 1 * time.Second
	reauthed := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := doJSONOnce[T](c, ctx, method, urlStr, body)
		if err == nil {
			return out, nil
		}

		// One transparent re-auth per request: a 401 on a cached token means
		// it was revoked before its reported expiry.
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized && !reauthed {
			reauthed = true
			c.tokens.Invalidate()
			attempt--
			continue
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("VALD request retrying",
			"url", urlStr,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func doJSONOnce[T any](c *client, ctx context.Context, method, urlStr string, body any) (*T, *http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, urlStr, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode == http.StatusNoContent {
		// "No content" is a result, not a failure.
		var zero T
		return &zero, resp, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out T
	if len(raw) == 0 {
		return &out, resp, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp, fmt.Errorf("vald decode error: %w", err)
	}
	return &out, resp, nil
}
