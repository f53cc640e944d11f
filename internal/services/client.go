package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/metrics"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/repositories"
	"github.com/desertthunder/musiclink/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of a failed response is kept in a [shared.ProviderError].
const maxErrorBody = 512

// client holds everything the provider adapters share: token lifecycle, retries, pacing and instrumentation.
type client struct {
	provider models.Provider
	oauth    *oauth2.Config
	baseURL  string
	store    repositories.CredentialStore
	http     *http.Client
	retry    RetryPolicy
	limiter  *rate.Limiter
	margin   time.Duration
	logger   *log.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	// refreshMu serializes refreshes so concurrent calls for one user do not spend the refresh token twice.
	refreshMu sync.Mutex
}

func newClient(provider models.Provider, opts Options) (*client, error) {
	cfg := opts.Config
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: %s client_id", shared.ErrMissingCredentials, provider)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: %s client_secret", shared.ErrMissingCredentials, provider)
	}
	if cfg.APIBaseURL == "" || cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("%w: %s endpoints are required", shared.ErrInvalidConfig, provider)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: credential store is required", shared.ErrInvalidConfig)
	}

	c := &client{
		provider: provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		store:   opts.Store,
		http:    opts.HTTPClient,
		retry:   opts.Retry.withDefaults(),
		margin:  opts.ExpiryMargin,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}

	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	c.logger = shared.WithLogger(c.logger, "provider", string(provider))
	if c.metrics == nil {
		c.metrics = metrics.Noop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}

	return c, nil
}

func (c *client) Provider() models.Provider {
	return c.provider
}

// AuthCodeURL returns the OAuth2 authorization URL for user login.
func (c *client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// oauthContext routes token endpoint calls through the configured HTTP client.
func (c *client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// Exchange trades an authorization code for a [Grant]. A non-2xx token response is an [shared.ExchangeError].
func (c *client) Exchange(ctx context.Context, code string) (*Grant, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		exErr := &shared.ExchangeError{Provider: string(c.provider)}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			exErr.Reason = re.ErrorCode
			if re.Response != nil {
				exErr.Status = re.Response.StatusCode
			}
		} else {
			exErr.Reason = err.Error()
		}
		return nil, exErr
	}
	return c.grantFromToken(tok), nil
}

func (c *client) grantFromToken(tok *oauth2.Token) *Grant {
	g := &Grant{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}

	switch {
	case tok.ExpiresIn > 0:
		g.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		// the oauth2 package stamps Expiry with the wall clock
		g.ExpiresIn = time.Until(tok.Expiry)
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		g.Scope = scope
	}
	return g
}

// EnsureAccessToken returns the stored token while it is still valid and refreshes it otherwise.
//
// A missing record is [shared.ErrNotAuthenticated]. A missing refresh token or a refresh the provider rejects is
// [shared.ErrReauthRequired]; no HTTP call is made in the former case.
func (c *client) EnsureAccessToken(ctx context.Context, userID string) (models.AccessToken, error) {
	rec, err := c.store.GetTokens(ctx, userID, c.provider)
	if err != nil {
		return models.AccessToken{}, err
	}
	if rec == nil {
		return models.AccessToken{}, fmt.Errorf("%w: %s is not linked for user %s", shared.ErrNotAuthenticated, c.provider, userID)
	}
	if !rec.Expired(c.now()) {
		return models.AccessToken{Value: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
	}
	if !rec.CanRefresh() {
		return models.AccessToken{}, fmt.Errorf("%w: %s token expired and no refresh token is on file", shared.ErrReauthRequired, c.provider)
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	rec, err = c.store.GetTokens(ctx, userID, c.provider)
	if err != nil {
		return models.AccessToken{}, err
	}
	if rec == nil {
		return models.AccessToken{}, fmt.Errorf("%w: %s is not linked for user %s", shared.ErrNotAuthenticated, c.provider, userID)
	}
	if !rec.Expired(c.now()) {
		return models.AccessToken{Value: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
	}
	if !rec.CanRefresh() {
		return models.AccessToken{}, fmt.Errorf("%w: %s token expired and no refresh token is on file", shared.ErrReauthRequired, c.provider)
	}

	return c.refresh(ctx, userID, *rec)
}

func (c *client) refresh(ctx context.Context, userID string, rec models.TokenRecord) (models.AccessToken, error) {
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			c.metrics.IncTokenRefresh(string(c.provider), "rejected")
			c.logger.Warn("refresh rejected", "user", userID, "status", re.Response.StatusCode, "error_code", re.ErrorCode)
			return models.AccessToken{}, fmt.Errorf("%w: %s rejected the refresh token", shared.ErrReauthRequired, c.provider)
		}

		c.metrics.IncTokenRefresh(string(c.provider), "error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.AccessToken{}, fmt.Errorf("refresh %s token: %w", c.provider, ctxErr)
		}
		pe := &shared.ProviderError{Provider: string(c.provider), Method: http.MethodPost, Path: "token", Attempts: 1, Transient: true, Err: err}
		if re != nil && re.Response != nil {
			pe.Status = re.Response.StatusCode
		}
		return models.AccessToken{}, pe
	}

	now := c.now()
	updated := NewTokenRecord(c.grantFromToken(tok), now, c.margin)
	if updated.RefreshToken == "" {
		updated.RefreshToken = rec.RefreshToken
	}
	if updated.Scope == "" {
		updated.Scope = rec.Scope
	}

	if err := c.store.PutTokens(ctx, userID, c.provider, updated); err != nil {
		return models.AccessToken{}, fmt.Errorf("failed to store refreshed token: %w", err)
	}

	c.metrics.IncTokenRefresh(string(c.provider), "ok")
	c.logger.Info("refreshed access token", "user", userID, "expires_at", updated.ExpiresAt)

	return models.AccessToken{Value: updated.AccessToken, ExpiresAt: updated.ExpiresAt}, nil
}

// resolve joins path onto the API base URL. Absolute URLs (pagination cursors) must stay under the base URL so
// the bearer token is never sent elsewhere.
func (c *client) resolve(path string, query url.Values) (string, error) {
	var full string
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		if !strings.HasPrefix(path, c.baseURL+"/") && !strings.HasPrefix(path, c.baseURL+"?") {
			return "", fmt.Errorf("%w: %s url %q is outside %s", shared.ErrInvalidInput, c.provider, path, c.baseURL)
		}
		full = path
	default:
		full = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}

	if len(query) > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + query.Encode()
	}
	return full, nil
}

// do issues an authenticated request for userID under the retry policy and decodes a JSON response into out.
//
// out may be nil. Exhausted retries surface as a transient [shared.ProviderError]; other non-2xx responses are
// returned immediately as rejected ones.
func (c *client) do(ctx context.Context, userID, method, path string, query url.Values, body, out any) error {
	fullURL, err := c.resolve(path, query)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	parent := ctx
	if c.retry.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()
	}

	pe := &shared.ProviderError{Provider: string(c.provider), Method: method, Path: path}

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		pe.Attempts = attempt + 1

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.interrupted(parent, pe, err)
			}
		}

		token, err := c.EnsureAccessToken(ctx, userID)
		if err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token.Value)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.metrics.ObserveProviderRequest(string(c.provider), method, 0, time.Since(start))
			if ctx.Err() != nil {
				return c.interrupted(parent, pe, ctx.Err())
			}

			pe.Status, pe.Transient, pe.Err = 0, true, err
			if !c.wait(attempt, c.retry.backoff(attempt), "transport", 0) {
				break
			}
			if err := c.retry.Sleep(ctx, c.retry.backoff(attempt)); err != nil {
				return c.interrupted(parent, pe, err)
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.metrics.ObserveProviderRequest(string(c.provider), method, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return fmt.Errorf("failed to read response: %w", readErr)
			}
			if out != nil && len(bytes.TrimSpace(data)) > 0 {
				if err := json.Unmarshal(data, out); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
			}
			return nil
		}

		pe.Status, pe.Err, pe.Body = resp.StatusCode, nil, truncate(string(data), maxErrorBody)
		if !retryable(resp.StatusCode) {
			pe.Transient = false
			return pe
		}
		pe.Transient = true

		delay, reason := c.retry.backoff(attempt), "server_error"
		if resp.StatusCode == http.StatusTooManyRequests {
			reason = "rate_limited"
			if d, ok := parseRetryAfter(resp.Header, c.now()); ok {
				delay = d
			} else {
				delay = c.retry.DefaultRetryAfter
			}
		}

		if !c.wait(attempt, delay, reason, resp.StatusCode) {
			break
		}
		if err := c.retry.Sleep(ctx, delay); err != nil {
			return c.interrupted(parent, pe, err)
		}
	}

	return pe
}

// wait logs and counts a retry. It returns false when no attempts remain.
func (c *client) wait(attempt int, delay time.Duration, reason string, status int) bool {
	if attempt+1 >= c.retry.MaxAttempts {
		return false
	}

	c.metrics.IncProviderRetry(string(c.provider), reason)
	c.logger.Warn("retrying provider request",
		"reason", reason, "status", status, "attempt", attempt+1, "max_attempts", c.retry.MaxAttempts, "wait", delay)
	return true
}

// interrupted reports a stop caused by a context. The caller's own cancellation is returned as-is; the policy
// timeout firing is a transient provider failure.
func (c *client) interrupted(parent context.Context, pe *shared.ProviderError, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s %s %s: %w", c.provider, pe.Method, pe.Path, parent.Err())
	}
	pe.Transient = true
	pe.Err = err
	return pe
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
