// package linking connects a user's account to a provider through the OAuth 2.0 authorization-code grant.
//
// Each linking attempt moves through these phases:
//
//	initiated -> callback_received -> token_exchanged
//	initiated -> expired
//	callback_received -> exchange_failed
//
// [Coordinator.BeginLink] persists a random correlation state and returns the consent URL that carries it.
// [Coordinator.CompleteLink] consumes that state exactly once when the provider redirects back, exchanges the
// authorization code and stores the resulting tokens for the user who started the attempt.
package linking
