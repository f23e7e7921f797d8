package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/duynhne/event-gate/internal/core/domain"
)

// IdentityToolkit implements domain.IdentityPort against the Identity
// Toolkit REST API (accounts:signInWithPassword, accounts:signUp, ...) and
// its secure token endpoint.
type IdentityToolkit struct {
	baseURL      string
	tokenBaseURL string
	apiKey       string
	client       *jsonClient
}

// IdentityOption configures an IdentityToolkit.
type IdentityOption func(*IdentityToolkit)

// WithTokenBaseURL sets the secure token service base URL used by Refresh.
func WithTokenBaseURL(u string) IdentityOption {
	return func(c *IdentityToolkit) {
		if u != "" {
			c.tokenBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewIdentityToolkit creates an identity provider client. A nil httpClient
// gets one with the policy timeout.
func NewIdentityToolkit(baseURL, apiKey string, httpClient *http.Client, policy Policy, opts ...IdentityOption) *IdentityToolkit {
	c := &IdentityToolkit{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenBaseURL: "https://securetoken.googleapis.com",
		apiKey:       apiKey,
		client:       newJSONClient("identity", httpClient, policy, decodeIdentityError),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type identityTokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (r identityTokenResponse) account() *domain.IdentityAccount {
	secs, _ := strconv.Atoi(r.ExpiresIn)
	return &domain.IdentityAccount{
		UserID:       r.LocalID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    time.Duration(secs) * time.Second,
	}
}

// SignIn authenticates e-mail and password.
func (c *IdentityToolkit) SignIn(ctx context.Context, email, password string) (*domain.IdentityAccount, error) {
	var out identityTokenResponse
	err := c.client.post(ctx, c.endpoint("accounts:signInWithPassword"), nil, map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("identity sign-in: %w", mapIdentityError(err))
	}
	return out.account(), nil
}

// SignUp creates a new account and returns it signed in.
func (c *IdentityToolkit) SignUp(ctx context.Context, email, password string) (*domain.IdentityAccount, error) {
	var out identityTokenResponse
	err := c.client.post(ctx, c.endpoint("accounts:signUp"), nil, map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("identity sign-up: %w", mapIdentityError(err))
	}
	return out.account(), nil
}

// Lookup returns the current account state, including verification.
func (c *IdentityToolkit) Lookup(ctx context.Context, idToken string) (*domain.IdentityAccount, error) {
	var out struct {
		Users []struct {
			LocalID       string `json:"localId"`
			Email         string `json:"email"`
			DisplayName   string `json:"displayName"`
			EmailVerified bool   `json:"emailVerified"`
		} `json:"users"`
	}
	if err := c.client.post(ctx, c.endpoint("accounts:lookup"), nil, map[string]any{"idToken": idToken}, &out); err != nil {
		return nil, fmt.Errorf("identity lookup: %w", mapIdentityError(err))
	}
	if len(out.Users) == 0 {
		return nil, fmt.Errorf("identity lookup: no account for token: %w", domain.ErrProviderRejected)
	}
	u := out.Users[0]
	return &domain.IdentityAccount{
		UserID:        u.LocalID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		IDToken:       idToken,
	}, nil
}

// UpdateDisplayName sets the account display name.
func (c *IdentityToolkit) UpdateDisplayName(ctx context.Context, idToken, displayName string) error {
	err := c.client.post(ctx, c.endpoint("accounts:update"), nil, map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}, nil)
	if err != nil {
		return fmt.Errorf("identity update: %w", mapIdentityError(err))
	}
	return nil
}

// SendVerification sends the e-mail verification message.
func (c *IdentityToolkit) SendVerification(ctx context.Context, idToken string) error {
	err := c.client.post(ctx, c.endpoint("accounts:sendOobCode"), nil, map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
	if err != nil {
		return fmt.Errorf("identity send verification: %w", mapIdentityError(err))
	}
	return nil
}

// SignOut ends the provider session. Identity Toolkit ID tokens are bearer
// tokens with no revocation endpoint for end users; dropping them is the
// sign-out, so this makes no remote call.
func (c *IdentityToolkit) SignOut(ctx context.Context, idToken string) error {
	return ctx.Err()
}

// Refresh trades a refresh token for a new ID token.
func (c *IdentityToolkit) Refresh(ctx context.Context, refreshToken string) (*domain.IdentityAccount, error) {
	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	u := c.tokenBaseURL + "/v1/token?key=" + url.QueryEscape(c.apiKey)
	err := c.client.post(ctx, u, nil, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("identity token refresh: %w", mapIdentityError(err))
	}
	if out.IDToken == "" {
		return nil, fmt.Errorf("identity token refresh: empty id token: %w", domain.ErrProviderTransport)
	}
	secs, _ := strconv.Atoi(out.ExpiresIn)
	return &domain.IdentityAccount{
		UserID:       out.UserID,
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresIn:    time.Duration(secs) * time.Second,
	}, nil
}

func (c *IdentityToolkit) endpoint(method string) string {
	return c.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(c.apiKey)
}

// decodeIdentityError reads {"error":{"code":400,"message":"EMAIL_EXISTS"}}.
// Messages may carry a detail suffix: "WEAK_PASSWORD : Password should be...".
func decodeIdentityError(status int, body []byte) *APIError {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &env); err != nil {
		apiErr.Code = "UNKNOWN"
		return apiErr
	}
	msg := env.Error.Message
	code, detail, _ := strings.Cut(msg, " : ")
	apiErr.Code = strings.TrimSpace(code)
	apiErr.Message = strings.TrimSpace(detail)
	return apiErr
}

func mapIdentityError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED",
		"INVALID_EMAIL", "INVALID_ID_TOKEN", "USER_NOT_FOUND", "MISSING_PASSWORD",
		"TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "MISSING_REFRESH_TOKEN":
		return fmt.Errorf("%w: %s", domain.ErrProviderRejected, apiErr.Code)
	case "EMAIL_EXISTS":
		return fmt.Errorf("%w: %s", domain.ErrProviderAccountExists, apiErr.Code)
	case "WEAK_PASSWORD":
		return fmt.Errorf("%w: %s", domain.ErrProviderWeakPassword, apiErr.Message)
	case "TOO_MANY_ATTEMPTS_TRY_LATER", "OPERATION_NOT_ALLOWED":
		return fmt.Errorf("%w: %s", domain.ErrProviderTransport, apiErr.Code)
	}
	return err
}
