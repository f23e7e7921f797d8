package domain

import (
	"context"
	"errors"
	"time"
)

// Errors signalled by provider adapters. The logic layer maps them to its
// own taxonomy.
var (
	// ErrProviderRejected means the provider refused the credentials.
	ErrProviderRejected = errors.New("provider rejected credentials")

	// ErrProviderAccountExists means the e-mail already has an account.
	ErrProviderAccountExists = errors.New("provider account exists")

	// ErrProviderWeakPassword means the provider refused the password policy.
	ErrProviderWeakPassword = errors.New("provider weak password")

	// ErrProviderTransport covers network failures, 5xx answers and open breakers.
	ErrProviderTransport = errors.New("provider transport failure")
)

// IdentityAccount is what the identity provider reports about a user.
type IdentityAccount struct {
	UserID        string
	Email         string
	DisplayName   string
	EmailVerified bool
	IDToken       string
	RefreshToken  string
	ExpiresIn     time.Duration
}

// IdentityPort is the identity provider capability used by the bridge.
type IdentityPort interface {
	// SignIn authenticates e-mail and password.
	SignIn(ctx context.Context, email, password string) (*IdentityAccount, error)

	// SignUp creates a new account and returns it signed in.
	SignUp(ctx context.Context, email, password string) (*IdentityAccount, error)

	// Lookup returns the current account state, including verification.
	Lookup(ctx context.Context, idToken string) (*IdentityAccount, error)

	// UpdateDisplayName sets the account display name.
	UpdateDisplayName(ctx context.Context, idToken, displayName string) error

	// SendVerification sends the e-mail verification message.
	SendVerification(ctx context.Context, idToken string) error

	// SignOut ends the provider session for the token.
	SignOut(ctx context.Context, idToken string) error

	// Refresh trades a refresh token for a new ID token. The returned
	// account carries IDToken, RefreshToken, ExpiresIn and UserID only.
	Refresh(ctx context.Context, refreshToken string) (*IdentityAccount, error)
}

// DataSession is a database-provider session obtained by token exchange.
type DataSession struct {
	AccessToken string

	// UserID is the subject the provider issued the token for.
	UserID    string
	ExpiresAt time.Time
}

// DataSessionPort exchanges identity tokens for database-provider sessions.
type DataSessionPort interface {
	Exchange(ctx context.Context, idToken string) (*DataSession, error)
	Revoke(ctx context.Context, accessToken string) error
}

// SessionPersistence is a single-key blob store used by the session store.
// Load returns (nil, nil) when the key is absent.
type SessionPersistence interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
