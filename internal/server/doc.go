// Package server provides HTTP routing, middleware and handlers for the account linking and migration service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering, so route paths can use
// wildcards such as {provider} and handlers read them with [http.Request.PathValue].
//
// # Routes
//
//	GET    /auth/{provider}/login                    start linking; returns the consent URL (or redirects with redirect=true)
//	GET    /auth/{provider}/callback                 provider redirect target; redeems state and code
//	POST   /migrate                                  run a migration and return its report
//	GET    /search?q=                                search every configured provider
//	GET    /{provider}/playlists                     list the caller's playlists
//	POST   /{provider}/playlists                     create a playlist
//	GET    /{provider}/playlists/{id}/tracks         list a playlist's tracks
//	POST   /{provider}/playlists/{id}/tracks         add a track
//	DELETE /{provider}/playlists/{id}/tracks/{track} remove every occurrence of a track
//	GET    /{provider}/saved                         saved tracks (Spotify only; 501 elsewhere)
//	GET    /status                                   linked providers for the caller
//	GET    /health                                   liveness
//	GET    /metrics                                  Prometheus exposition
//
// The caller is identified by the X-User-ID header or the user_id query parameter. Session management sits in
// front of this service.
//
// # Errors
//
// Every JSON error has the shape {"error": code, "error_description": message}. [ErrorStatus] maps the shared error
// taxonomy to statuses: auth problems are 401, bad state or input 400, provider refusals 502, provider outages 503
// and deadlines 504. A migration that stops partway also carries its partial report.
//
// # OAuth Callback Handler
//
// [CallbackHandler] hands the redirect's query parameters to the link coordinator and renders a small HTML page for
// the browser. The CLI mounts the same handler on a temporary local server and waits on
// [CallbackHandler.Results] for the outcome.
package server
