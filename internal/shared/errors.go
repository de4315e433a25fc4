package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Login flow errors
	ErrProviderDenied     = fmt.Errorf("authorization denied by provider")
	ErrMissingParameters  = fmt.Errorf("missing callback parameters")
	ErrCSRFStateMissing   = fmt.Errorf("oauth state cookie missing")
	ErrCSRFStateMalformed = fmt.Errorf("oauth state cookie malformed")
	ErrCSRFMismatch       = fmt.Errorf("oauth state mismatch")

	// Session errors
	ErrUnauthenticated = fmt.Errorf("not authenticated")
	ErrInvalidSession  = fmt.Errorf("invalid or expired session")
	ErrRefreshDenied   = fmt.Errorf("token refresh denied")

	// Upstream errors
	ErrUpstream                = fmt.Errorf("upstream request failed")
	ErrUpstreamUnreachable     = fmt.Errorf("upstream unreachable")
	ErrIncompleteTokenResponse = fmt.Errorf("incomplete token response")

	// Persistence errors
	ErrSessionPersist   = fmt.Errorf("failed to persist session")
	ErrCachePersist     = fmt.Errorf("failed to persist cache entry")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
