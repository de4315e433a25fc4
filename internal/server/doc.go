// Package server exposes the melophiliacs HTTP API.
//
// # Routes
//
// Routes under the configured base path (default /api/v1):
//
//	GET  /auth/login?final_redirect_uri=   redirect to Spotify, sets oauth_state
//	GET  /auth/callback?code=&state=       finish login, sets app_session
//	GET  /auth/me                          session status (protected)
//	POST /auth/logout                      delete session and cached data
//	GET  /tracks/liked                     saved tracks (protected)
//	GET  /artists/top                      ranked artists as [name, count] pairs (protected)
//	GET  /albums/top                       ranked albums (protected)
//
// GET /, GET /health, and GET /metrics are served outside the base path.
//
// # Middleware
//
// [Middleware] wraps handlers in the order added. Every request passes request id, real ip,
// request logging with metrics, panic recovery, and CORS. Protected routes additionally run
// the session guard, which may refresh the Spotify access token before the handler runs.
//
// # Errors
//
// Errors are mapped onto statuses with [errors.Is] and written as {"error": "..."} with a generic
// message. Details only reach the log, next to the masked session token and request id.
package server
