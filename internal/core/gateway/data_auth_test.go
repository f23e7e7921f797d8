package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/event-gate/internal/core/domain"
)

func signedToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestDataAuth_ExchangeVerifiesToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, "shh", "data-user-1", exp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "id_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "firebase", body["provider"])
		assert.Equal(t, "id-tok", body["id_token"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": access,
			"expires_in":   3600,
			"user":         map[string]string{"id": "other"},
		})
	}))
	defer srv.Close()

	d := NewDataAuth(srv.URL, "anon", srv.Client(), fastPolicy(), WithJWTSecret("shh"))
	sess, err := d.Exchange(context.Background(), "id-tok")
	require.NoError(t, err)
	assert.Equal(t, access, sess.AccessToken)
	assert.Equal(t, "data-user-1", sess.UserID)
	assert.True(t, sess.ExpiresAt.Equal(exp))
}

func TestDataAuth_ExchangeRejectsBadSignature(t *testing.T) {
	access := signedToken(t, "other-secret", "u", time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": access, "expires_in": 3600})
	}))
	defer srv.Close()

	d := NewDataAuth(srv.URL, "anon", srv.Client(), fastPolicy(), WithJWTSecret("shh"))
	_, err := d.Exchange(context.Background(), "id-tok")
	assert.ErrorIs(t, err, domain.ErrProviderRejected)
}

func TestDataAuth_ExchangeWithoutSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "opaque",
			"expires_in":   60,
			"user":         map[string]string{"id": "data-user"},
		})
	}))
	defer srv.Close()

	d := NewDataAuth(srv.URL, "anon", srv.Client(), fastPolicy(), WithIDTokenProvider("custom"))
	sess, err := d.Exchange(context.Background(), "id-tok")
	require.NoError(t, err)
	assert.Equal(t, "data-user", sess.UserID)
}

func TestDataAuth_ExchangeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"bad token"}`, domain.ErrProviderRejected},
		{"error code", http.StatusUnauthorized, `{"code":401,"error_code":"bad_jwt","msg":"invalid"}`, domain.ErrProviderRejected},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ErrProviderTransport},
		{"server error", http.StatusInternalServerError, ``, domain.ErrProviderTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := NewDataAuth(srv.URL, "anon", srv.Client(), fastPolicy())
			_, err := d.Exchange(context.Background(), "id-tok")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDataAuth_Revoke(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		auth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDataAuth(srv.URL, "anon", srv.Client(), fastPolicy())
	require.NoError(t, d.Revoke(context.Background(), "access"))
	assert.Equal(t, "Bearer access", <-auth)

	require.NoError(t, d.Revoke(context.Background(), ""), "empty token is a no-op")
}
