package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/duynhne/event-gate/internal/core/domain"
)

// DataAuth implements domain.DataSessionPort against the database
// provider's auth endpoint (/auth/v1/token?grant_type=id_token).
type DataAuth struct {
	baseURL   string
	anonKey   string
	provider  string
	jwtSecret []byte
	client    *jsonClient
	now       func() time.Time
}

// DataAuthOption configures a DataAuth.
type DataAuthOption func(*DataAuth)

// WithJWTSecret enables HS256 verification of issued access tokens.
func WithJWTSecret(secret string) DataAuthOption {
	return func(d *DataAuth) {
		if secret != "" {
			d.jwtSecret = []byte(secret)
		}
	}
}

// WithIDTokenProvider sets the provider name sent with exchanged ID tokens.
func WithIDTokenProvider(name string) DataAuthOption {
	return func(d *DataAuth) { d.provider = name }
}

// NewDataAuth creates a database provider auth client.
func NewDataAuth(baseURL, anonKey string, httpClient *http.Client, policy Policy, opts ...DataAuthOption) *DataAuth {
	d := &DataAuth{
		baseURL:  strings.TrimRight(baseURL, "/"),
		anonKey:  anonKey,
		provider: "firebase",
		client:   newJSONClient("data", httpClient, policy, decodeDataError),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Exchange trades an identity provider ID token for a data session.
func (d *DataAuth) Exchange(ctx context.Context, idToken string) (*domain.DataSession, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	err := d.client.post(ctx, d.baseURL+"/auth/v1/token?grant_type=id_token", d.header(""), map[string]string{
		"provider": d.provider,
		"id_token": idToken,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("data token exchange: %w", mapDataError(err))
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("data token exchange: empty access token: %w", domain.ErrProviderTransport)
	}

	sess := &domain.DataSession{
		AccessToken: out.AccessToken,
		UserID:      out.User.ID,
		ExpiresAt:   d.now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	if d.jwtSecret != nil {
		claims, err := d.verify(out.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("data token exchange: %w", err)
		}
		if sub, _ := claims.GetSubject(); sub != "" {
			sess.UserID = sub
		}
		if exp, _ := claims.GetExpirationTime(); exp != nil {
			sess.ExpiresAt = exp.Time
		}
	}
	return sess, nil
}

// Revoke ends the data session.
func (d *DataAuth) Revoke(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if err := d.client.post(ctx, d.baseURL+"/auth/v1/logout", d.header(accessToken), nil, nil); err != nil {
		return fmt.Errorf("data logout: %w", mapDataError(err))
	}
	return nil
}

func (d *DataAuth) verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected token signing method")
		}
		return d.jwtSecret, nil
	}, jwt.WithTimeFunc(d.now))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid access token: %v", domain.ErrProviderRejected, err)
	}
	return claims, nil
}

func (d *DataAuth) header(bearer string) http.Header {
	h := http.Header{}
	h.Set("apikey", d.anonKey)
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}
	return h
}

// decodeDataError reads either {"error":"invalid_grant","error_description":...}
// or {"code":400,"error_code":"...","msg":...}.
func decodeDataError(status int, body []byte) *APIError {
	var env struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		ErrorCode   string `json:"error_code"`
		Msg         string `json:"msg"`
	}
	apiErr := &APIError{Status: status, Code: "UNKNOWN"}
	if err := json.Unmarshal(body, &env); err != nil {
		return apiErr
	}
	switch {
	case env.ErrorCode != "":
		apiErr.Code, apiErr.Message = env.ErrorCode, env.Msg
	case env.Error != "":
		apiErr.Code, apiErr.Message = env.Error, env.Description
	}
	return apiErr
}

func mapDataError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", domain.ErrProviderTransport, apiErr.Code)
	}
	return fmt.Errorf("%w: %s", domain.ErrProviderRejected, apiErr.Code)
}
