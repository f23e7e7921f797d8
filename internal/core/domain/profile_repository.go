package domain

import (
	"context"
	"time"
)

// ProfileRow is a row of the profiles table, keyed by the identity
// provider user id.
type ProfileRow struct {
	ID        string
	Role      string
	FullName  string
	Company   string
	AvatarURL string
	Plan      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	FullName  *string `json:"full_name"`
	Company   *string `json:"company"`
	AvatarURL *string `json:"avatar_url"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.Company == nil && u.AvatarURL == nil
}

// ProfileRepository defines the data-access contract for profile rows.
// Every call runs under the database-provider session token so row level
// security applies. Implementations live in internal/core/repository.
type ProfileRepository interface {
	// Get returns the profile row for userID.
	// Returns (nil, nil) when no row exists.
	Get(ctx context.Context, dbToken, userID string) (*ProfileRow, error)

	// CreateIfAbsent inserts row unless a row with the same ID exists and
	// returns the stored row either way.
	CreateIfAbsent(ctx context.Context, dbToken string, row ProfileRow) (*ProfileRow, error)

	// Update applies the editable fields and returns the stored row.
	// Returns (nil, nil) when no row exists.
	Update(ctx context.Context, dbToken, userID string, update ProfileUpdate) (*ProfileRow, error)
}
