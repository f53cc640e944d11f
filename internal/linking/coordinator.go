package linking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/metrics"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/repositories"
	"github.com/desertthunder/musiclink/internal/services"
	"github.com/desertthunder/musiclink/internal/shared"
)

const defaultStateTTL = 10 * time.Minute

// Phase is a step of a linking attempt.
type Phase string

const (
	PhaseInitiated        Phase = "initiated"
	PhaseCallbackReceived Phase = "callback_received"
	PhaseTokenExchanged   Phase = "token_exchanged"
	PhaseExpired          Phase = "expired"
	PhaseExchangeFailed   Phase = "exchange_failed"
)

// LinkRequest is what a caller needs to send the user to the provider's consent page.
type LinkRequest struct {
	Provider         models.Provider `json:"provider"`
	AuthorizationURL string          `json:"authorization_url"`
	State            string          `json:"state"`
}

// Callback carries the query parameters of a provider redirect.
type Callback struct {
	Provider         models.Provider
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Options configures a [Coordinator].
type Options struct {
	Store        repositories.CredentialStore
	Gateways     map[models.Provider]services.Gateway
	StateTTL     time.Duration
	ExpiryMargin time.Duration
	Logger       *log.Logger
	Metrics      metrics.Recorder
	Now          func() time.Time

	// NewState generates correlation tokens. Defaults to [shared.GenerateToken].
	NewState func() (string, error)
}

// Coordinator runs the authorization-code flow for every configured provider.
type Coordinator struct {
	store    repositories.CredentialStore
	gateways map[models.Provider]services.Gateway
	ttl      time.Duration
	margin   time.Duration
	logger   *log.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	newState func() (string, error)
}

// New creates a [Coordinator].
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: credential store is required", shared.ErrInvalidConfig)
	}

	c := &Coordinator{
		store:    opts.Store,
		gateways: opts.Gateways,
		ttl:      opts.StateTTL,
		margin:   opts.ExpiryMargin,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		newState: opts.NewState,
	}

	if c.ttl <= 0 {
		c.ttl = defaultStateTTL
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	c.logger = shared.WithLogger(c.logger, "component", "linking")
	if c.metrics == nil {
		c.metrics = metrics.Noop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newState == nil {
		c.newState = shared.GenerateToken
	}

	return c, nil
}

// StateTTL is how long a correlation state stays redeemable.
func (c *Coordinator) StateTTL() time.Duration {
	return c.ttl
}

func (c *Coordinator) gateway(provider models.Provider) (services.Gateway, error) {
	gw, ok := c.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", shared.ErrUnknownProvider, provider)
	}
	return gw, nil
}

func (c *Coordinator) enter(provider models.Provider, phase Phase, kv ...any) {
	c.metrics.IncLinkTransition(string(provider), string(phase))

	kv = append([]any{"provider", provider, "phase", phase}, kv...)
	switch phase {
	case PhaseExpired, PhaseExchangeFailed:
		c.logger.Warn("link attempt failed", kv...)
	default:
		c.logger.Info("link attempt", kv...)
	}
}

// BeginLink records a fresh correlation state for userID and returns the provider consent URL embedding it.
func (c *Coordinator) BeginLink(ctx context.Context, userID string, provider models.Provider) (*LinkRequest, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	}

	gw, err := c.gateway(provider)
	if err != nil {
		return nil, err
	}

	token, err := c.newState()
	if err != nil {
		return nil, err
	}

	state := models.CorrelationState{Token: token, UserID: userID, Provider: provider, CreatedAt: c.now()}
	if err := c.store.PutState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save correlation state: %w", err)
	}

	c.enter(provider, PhaseInitiated, "user", userID)

	return &LinkRequest{Provider: provider, AuthorizationURL: gw.AuthCodeURL(token), State: token}, nil
}

// CompleteLink redeems the callback's state, exchanges its code and stores the tokens, returning the user the
// state was issued to.
//
// Unknown, consumed, expired and cross-provider states all fail with [shared.ErrInvalidOrExpiredState]. The state
// is consumed even when the provider reports an error or the exchange fails, so a callback can never be replayed.
func (c *Coordinator) CompleteLink(ctx context.Context, cb Callback) (string, error) {
	gw, err := c.gateway(cb.Provider)
	if err != nil {
		return "", err
	}

	if cb.State == "" {
		return "", fmt.Errorf("%w: missing state", shared.ErrInvalidOrExpiredState)
	}

	state, err := c.store.TakeState(ctx, cb.State)
	if err != nil {
		return "", fmt.Errorf("failed to read correlation state: %w", err)
	}
	if state == nil || state.Provider != cb.Provider {
		c.logger.Warn("callback with unknown state", "provider", cb.Provider)
		return "", shared.ErrInvalidOrExpiredState
	}
	if state.ExpiredAt(c.now(), c.ttl) {
		c.enter(cb.Provider, PhaseExpired, "user", state.UserID, "age", c.now().Sub(state.CreatedAt))
		return "", shared.ErrInvalidOrExpiredState
	}

	c.enter(cb.Provider, PhaseCallbackReceived, "user", state.UserID)

	if cb.Error != "" || cb.Code == "" {
		reason := cb.Error
		if reason == "" {
			reason = "missing_code"
		}
		c.enter(cb.Provider, PhaseExchangeFailed, "user", state.UserID, "reason", reason, "description", cb.ErrorDescription)
		return "", &shared.ExchangeError{Provider: string(cb.Provider), Reason: reason}
	}

	grant, err := gw.Exchange(ctx, cb.Code)
	if err != nil {
		c.enter(cb.Provider, PhaseExchangeFailed, "user", state.UserID, "status", shared.StatusOf(err))
		if !errors.Is(err, shared.ErrExchangeFailed) {
			err = &shared.ExchangeError{Provider: string(cb.Provider), Reason: err.Error()}
		}
		return "", err
	}

	record := services.NewTokenRecord(grant, c.now(), c.margin)
	if record.RefreshToken == "" {
		// a provider may omit the refresh token when the user has consented before
		existing, err := c.store.GetTokens(ctx, state.UserID, cb.Provider)
		if err != nil {
			return "", fmt.Errorf("failed to read existing tokens: %w", err)
		}
		if existing != nil {
			record.RefreshToken = existing.RefreshToken
		}
	}

	if err := c.store.PutTokens(ctx, state.UserID, cb.Provider, record); err != nil {
		return "", fmt.Errorf("failed to save tokens: %w", err)
	}

	c.enter(cb.Provider, PhaseTokenExchanged, "user", state.UserID, "expires_at", record.ExpiresAt)
	return state.UserID, nil
}

// Status reports, for every supported provider, whether userID has credentials on file.
func (c *Coordinator) Status(ctx context.Context, userID string) ([]models.LinkStatus, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	}

	statuses := make([]models.LinkStatus, 0, len(models.Providers()))
	for _, p := range models.Providers() {
		rec, err := c.store.GetTokens(ctx, userID, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s tokens: %w", p, err)
		}

		status := models.LinkStatus{Provider: p}
		if rec != nil {
			status.Linked = true
			status.ExpiresAt = rec.ExpiresAt
			status.Refreshable = rec.CanRefresh()
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// PurgeExpiredStates deletes correlation states that can no longer be redeemed.
func (c *Coordinator) PurgeExpiredStates(ctx context.Context) (int, error) {
	n, err := c.store.PurgeExpiredStates(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to purge correlation states: %w", err)
	}
	if n > 0 {
		c.logger.Debug("purged expired correlation states", "count", n)
	}
	return n, nil
}
