// Package models defines the domain types for the musiclink account-linking and playlist migration service.
//
// The package contains three groups of types:
//
// 1. Provider data, normalized across platforms
//   - [Track] : title, artist (or channel) and the provider's external id
//   - [Playlist] : playlist metadata
//   - [Profile] : the linked account as the provider reports it
//
// 2. Credentials, owned exclusively by the credential store
//   - [TokenRecord] : access/refresh token pair for one (user, provider)
//   - [CorrelationState] : short-lived OAuth state mapping back to a user
//
// 3. Migration output, owned by one migration run and never persisted
//   - [MatchResult] : one source track, its best match, score and whether it was added
//   - [MigrationReport] : per-track results plus totals and playlist identifiers
package models
