// Package services implements the Spotify Web API client used by the login flow and the library aggregator.
//
// # Authorization
//
// [SpotifyService] wraps an [oauth2.Config] for the authorization-code grant:
// [SpotifyService.AuthCodeURL] builds the consent redirect, [SpotifyService.Exchange] trades a code for
// tokens, and [SpotifyService.Refresh] obtains a new access token from a refresh token.
// Tokens are never held by the service; callers pass the access token on every request,
// so one instance serves every session.
//
// # Library Access
//
// [SpotifyService.SavedTracks] fetches one page of the user's saved tracks.
// All calls share a [rate.Limiter] and the injected [http.Client].
//
// # Error Handling
//
// Failures map onto sentinel errors from the shared package:
//   - [shared.ErrUpstreamUnreachable] : the request never got a response
//   - [UpstreamError] (wraps [shared.ErrUpstream]) : Spotify answered with a non-2xx status
//   - [shared.ErrIncompleteTokenResponse] : a token response lacked required fields
//   - [shared.ErrRefreshDenied] : Spotify rejected the refresh token
package services
