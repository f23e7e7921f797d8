package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/event-gate/internal/core/domain"
)

// ErrNoDataSession is returned when a profile call is made without a
// database-provider session token.
var ErrNoDataSession = errors.New("no data session")

// ErrTokenSubject is returned when the data session token was issued for a
// different user than the row being accessed.
var ErrTokenSubject = errors.New("data session token subject mismatch")

const profileColumns = `id, role, full_name, company, avatar_url, plan, created_at, updated_at`

// PgxProfileRepository implements domain.ProfileRepository using pgxpool.
// Each call runs in a transaction scoped to the user's JWT claims so the
// provider's row level security policies see the caller.
type PgxProfileRepository struct {
	pool    *pgxpool.Pool
	rlsRole string
}

// NewProfileRepository creates a new PgxProfileRepository. rlsRole is the
// Postgres role assumed inside each transaction; empty keeps the pool role.
func NewProfileRepository(pool *pgxpool.Pool, rlsRole string) *PgxProfileRepository {
	return &PgxProfileRepository{pool: pool, rlsRole: rlsRole}
}

// Get returns the profile row for userID.
// Returns (nil, nil) when no row exists.
func (r *PgxProfileRepository) Get(ctx context.Context, dbToken, userID string) (*domain.ProfileRow, error) {
	var row *domain.ProfileRow
	err := r.asUser(ctx, dbToken, userID, func(tx pgx.Tx) error {
		var err error
		row, err = scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("profileRepo.Get: %w", err)
	}
	return row, nil
}

// CreateIfAbsent inserts row unless a row with the same ID exists and
// returns the stored row either way.
func (r *PgxProfileRepository) CreateIfAbsent(ctx context.Context, dbToken string, in domain.ProfileRow) (*domain.ProfileRow, error) {
	var row *domain.ProfileRow
	err := r.asUser(ctx, dbToken, in.ID, func(tx pgx.Tx) error {
		query := `
			INSERT INTO profiles (id, role, full_name, company, avatar_url, plan)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, query, in.ID, in.Role, in.FullName, in.Company, in.AvatarURL, in.Plan); err != nil {
			return err
		}
		var err error
		row, err = scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, in.ID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("profileRepo.CreateIfAbsent: %w", err)
	}
	return row, nil
}

// Update applies the editable fields and returns the stored row.
// Returns (nil, nil) when no row exists.
func (r *PgxProfileRepository) Update(ctx context.Context, dbToken, userID string, update domain.ProfileUpdate) (*domain.ProfileRow, error) {
	var row *domain.ProfileRow
	err := r.asUser(ctx, dbToken, userID, func(tx pgx.Tx) error {
		query := `
			UPDATE profiles SET
				full_name  = COALESCE($2, full_name),
				company    = COALESCE($3, company),
				avatar_url = COALESCE($4, avatar_url),
				updated_at = NOW()
			WHERE id = $1
			RETURNING ` + profileColumns
		var err error
		row, err = scanProfile(tx.QueryRow(ctx, query, userID, update.FullName, update.Company, update.AvatarURL))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("profileRepo.Update: %w", err)
	}
	return row, nil
}

func (r *PgxProfileRepository) asUser(ctx context.Context, dbToken, userID string, fn func(pgx.Tx) error) error {
	claims, err := requestClaims(dbToken, userID)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if r.rlsRole != "" {
			if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{r.rlsRole}.Sanitize()); err != nil {
				return fmt.Errorf("set role: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claims)); err != nil {
			return fmt.Errorf("set claims: %w", err)
		}
		return fn(tx)
	})
}

// requestClaims returns the JWT claims the row level security policies see.
// A JWT dbToken contributes its own claims and must carry userID as sub.
// The signature was checked when the token was exchanged. Opaque tokens
// get a minimal authenticated claim set for userID.
func requestClaims(dbToken, userID string) ([]byte, error) {
	if dbToken == "" {
		return nil, ErrNoDataSession
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(dbToken, claims); err != nil {
		return json.Marshal(map[string]string{"sub": userID, "role": "authenticated"})
	}
	sub, _ := claims.GetSubject()
	if sub != userID {
		return nil, fmt.Errorf("%w: token for %q, row %q", ErrTokenSubject, sub, userID)
	}
	if _, ok := claims["role"]; !ok {
		claims["role"] = "authenticated"
	}
	return json.Marshal(claims)
}

// scanProfile scans a single profile row. Returns (nil, nil) on no rows.
func scanProfile(row pgx.Row) (*domain.ProfileRow, error) {
	var p domain.ProfileRow
	var fullName, company, avatarURL, plan *string
	err := row.Scan(&p.ID, &p.Role, &fullName, &company, &avatarURL, &plan, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.FullName = deref(fullName)
	p.Company = deref(company)
	p.AvatarURL = deref(avatarURL)
	p.Plan = deref(plan)
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
