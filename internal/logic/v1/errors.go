// Package v1 provides the session, identity bridging and view authorization
// logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors for the authentication flow. They
// are wrapped with context using fmt.Errorf("%w") when returned from
// business logic methods.
//
// Example Usage:
//
//	if !acct.EmailVerified {
//	    return nil, fmt.Errorf("sign in %q: %w", email, ErrEmailUnverified)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrInvalidCredentials):
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
//	case errors.Is(err, logicv1.ErrProviderUnavailable):
//	    c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sign-in is temporarily unavailable"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates the identity provider rejected the credentials.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailUnverified indicates the account exists but its e-mail is not verified.
	// HTTP Status: 403 Forbidden
	ErrEmailUnverified = errors.New("email unverified")

	// ErrEmailAlreadyInUse indicates an account already exists for the e-mail.
	// HTTP Status: 409 Conflict
	ErrEmailAlreadyInUse = errors.New("email already in use")

	// ErrWeakPassword indicates the identity provider refused the password.
	// HTTP Status: 400 Bad Request
	ErrWeakPassword = errors.New("weak password")

	// ErrRoleNotAllowed indicates the requested role cannot be self-assigned.
	// HTTP Status: 400 Bad Request
	ErrRoleNotAllowed = errors.New("role not allowed")

	// ErrProviderUnavailable indicates a transport or infrastructure failure
	// talking to a provider.
	// HTTP Status: 503 Service Unavailable
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProfileSyncFailed indicates the profile row could not be read or
	// written. It is logged and never blocks sign-in.
	ErrProfileSyncFailed = errors.New("profile sync failed")

	// ErrSessionExpired indicates there is no unexpired session.
	// HTTP Status: 401 Unauthorized
	ErrSessionExpired = errors.New("session expired")
)
