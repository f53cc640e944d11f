// Package repositories implements the credential store: correlation states for in-flight OAuth links and the
// token record for each (user, provider).
//
// Key Implementations:
//   - [CredentialStore] : the contract every backend satisfies
//   - [MemoryCredentialStore] : mutex-guarded maps, process lifetime only
//   - [SQLiteCredentialStore] : durable backend over the oauth_correlation_state and provider_tokens tables
//
// [CredentialStore.TakeState] is the one operation with a real race. Both backends make it an atomic read-and-delete,
// the SQLite backend by running DELETE ... RETURNING inside a write transaction.
// Expiry of correlation states is judged by the caller from CreatedAt; [CredentialStore.PurgeExpiredStates] only
// reclaims storage.
package repositories
