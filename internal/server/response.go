package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// writeJSON writes a JSON response with the given status code and no-cache headers.
func writeJSON(w http.ResponseWriter, code int, v any) {
	noCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// noCache prevents intermediaries from storing responses that may carry account data.
func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ErrorStatus maps an error from the core packages to an HTTP status and a stable error code.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, shared.ErrReauthRequired):
		return http.StatusUnauthorized, "reauth_required"
	case errors.Is(err, shared.ErrInvalidOrExpiredState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, shared.ErrExchangeFailed):
		return http.StatusBadGateway, "exchange_failed"
	case errors.Is(err, shared.ErrPlaylistNotFound):
		return http.StatusNotFound, "playlist_not_found"
	case errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound, "track_not_found"
	case errors.Is(err, shared.ErrNotImplemented):
		return http.StatusNotImplemented, "not_implemented"
	case errors.Is(err, shared.ErrProviderRejected):
		return http.StatusBadGateway, "provider_rejected"
	case errors.Is(err, shared.ErrProviderTransient):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrUnknownProvider):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// writeError maps err through [ErrorStatus]. Internal errors are logged and their message withheld.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error) {
	code, body := errorBody(r, logger, err)
	writeJSON(w, code, body)
}

// errorBody logs err at a level matching its status and builds the response body.
func errorBody(r *http.Request, logger *log.Logger, err error) (int, ErrorBody) {
	code, name := ErrorStatus(err)
	desc := err.Error()

	switch {
	case code == http.StatusInternalServerError:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		desc = "internal server error"
	case code > http.StatusInternalServerError:
		logger.Warn("upstream failure", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	default:
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}

	return code, ErrorBody{Error: name, ErrorDescription: desc}
}

// decodeJSON reads a single JSON object from the request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// userID reads the caller's identity from the X-User-ID header, falling back to the user_id query parameter.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user_id")
}

// pathProvider resolves the {provider} path segment.
func pathProvider(r *http.Request) (models.Provider, error) {
	name := r.PathValue("provider")
	p, err := models.ParseProvider(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownProvider, name)
	}
	return p, nil
}
