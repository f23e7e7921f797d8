package domain

import "time"

// Profile holds the denormalised profile fields carried in a session.
type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Plan        string `json:"plan,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Session is the identity of the currently signed-in client.
type Session struct {
	UserID        string  `json:"user_id"`
	Email         string  `json:"email"`
	Role          Role    `json:"role"`
	Profile       Profile `json:"profile"`
	EmailVerified bool    `json:"email_verified"`

	// ProfileSynced is false when profile fields were derived from the
	// identity token because the profile row could not be read.
	ProfileSynced bool `json:"profile_synced"`

	IdentityToken string `json:"identity_token,omitempty"`
	DatabaseToken string `json:"database_token,omitempty"`

	// RefreshToken renews IdentityToken once IdentityTokenExpiresAt passes.
	RefreshToken           string    `json:"refresh_token,omitempty"`
	IdentityTokenExpiresAt time.Time `json:"identity_token_expires_at,omitempty"`

	// DatabaseTokenExpiresAt is when DatabaseToken stops being accepted.
	DatabaseTokenExpiresAt time.Time `json:"database_token_expires_at,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session is no longer usable at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// PublicView is the session as returned to the browser client: no tokens.
type PublicView struct {
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	Profile       Profile   `json:"profile"`
	EmailVerified bool      `json:"email_verified"`
	ProfileSynced bool      `json:"profile_synced"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Public strips provider tokens.
func (s *Session) Public() PublicView {
	return PublicView{
		UserID:        s.UserID,
		Email:         s.Email,
		Role:          s.Role,
		Profile:       s.Profile,
		EmailVerified: s.EmailVerified,
		ProfileSynced: s.ProfileSynced,
		IssuedAt:      s.IssuedAt,
		ExpiresAt:     s.ExpiresAt,
	}
}
