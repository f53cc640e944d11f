package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated      = fmt.Errorf("not authenticated")
	ErrReauthRequired        = fmt.Errorf("reauthorization required")
	ErrInvalidOrExpiredState = fmt.Errorf("invalid or expired state")
	ErrExchangeFailed        = fmt.Errorf("authorization code exchange failed")

	// Provider errors
	ErrProviderTransient = fmt.Errorf("provider temporarily unavailable")
	ErrProviderRejected  = fmt.Errorf("provider rejected request")
	ErrUnknownProvider   = fmt.Errorf("unknown provider")
	ErrPlaylistNotFound  = fmt.Errorf("playlist not found")
	ErrTrackNotFound     = fmt.Errorf("track not found in playlist")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ExchangeError reports a token endpoint that refused an authorization code.
//
// Status is the provider's HTTP status, or 0 when no response was received.
type ExchangeError struct {
	Provider string
	Status   int
	Reason   string
}

func (e *ExchangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, ErrExchangeFailed, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, ErrExchangeFailed, e.Status)
}

func (e *ExchangeError) Is(target error) bool {
	return target == ErrExchangeFailed
}

// ProviderError is a non-2xx response from a provider API.
//
// Transient errors (429, 5xx, transport failures) are only surfaced once the retry budget is spent.
type ProviderError struct {
	Provider  string
	Method    string
	Path      string
	Status    int
	Attempts  int
	Transient bool
	Body      string
	Err       error
}

func (e *ProviderError) Error() string {
	kind := ErrProviderRejected
	if e.Transient {
		kind = ErrProviderTransient
	}

	msg := fmt.Sprintf("%s %s %s: %s", e.Provider, e.Method, e.Path, kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ProviderError) Is(target error) bool {
	if e.Transient {
		return target == ErrProviderTransient
	}
	return target == ErrProviderRejected
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusOf extracts the provider HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Status
	}
	return 0
}

// IsAuthError reports whether the caller must (re-)run the authorization flow.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrReauthRequired)
}
