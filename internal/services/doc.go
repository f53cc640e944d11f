// Package services defines the [Gateway] interface for music providers and implements it for Spotify and YouTube.
//
// # Gateway Interface
//
// One gateway exists per provider, selected at construction by [New]. All gateways share an unexported client that
// turns a user id into an authenticated request:
//
//  1. [Gateway.EnsureAccessToken] loads the user's [models.TokenRecord] from the credential store
//  2. if the record has expired it is refreshed with the stored refresh token and written back
//  3. the request is sent with a bearer token under the [RetryPolicy]
//
// # Token Lifecycle
//
// Authorization codes and refresh tokens are exchanged with [golang.org/x/oauth2], using HTTP Basic client
// authentication against the provider's token endpoint. [NewTokenRecord] stores the expiry minus a safety margin,
// so a token that is valid by the local clock is valid for the provider too.
//
// # Retries
//
// HTTP 429 waits for Retry-After, 5xx and transport failures back off exponentially, and everything else fails
// immediately. An optional [rate.Limiter] paces requests before each attempt.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : no token on file for the user
//   - [shared.ErrReauthRequired] : refresh impossible or rejected
//   - [shared.ExchangeError] : the token endpoint refused an authorization code
//   - [shared.ProviderError] : a non-2xx API response, transient or rejected
//
// # API Mappings
//
// Both services convert provider-specific JSON responses to [models.Playlist] and [models.Track]:
//   - Spotify: first artist as the artist, track id as the external id
//   - YouTube: video owner channel as the artist, video id as the external id
package services
