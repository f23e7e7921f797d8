package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/event-gate/internal/core/domain"
	"github.com/duynhne/event-gate/middleware"
	pkgzerolog "github.com/duynhne/event-gate/pkg/logger/zerolog"
)

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"`
	Company  string `json:"company"`
}

// IdentityBridge authenticates against the identity provider, establishes
// the matching database-provider session and keeps the profile row in sync.
// It depends on ports only (injected via constructor).
type IdentityBridge struct {
	identity    domain.IdentityPort
	data        domain.DataSessionPort
	profiles    domain.ProfileRepository
	nav         Navigator
	routes      *RouteTable
	signupRoles map[domain.Role]bool
	pending     domain.SessionPersistence
	now         func() time.Time
}

const (
	// identityTokenSkew renews ID tokens this long before they expire.
	identityTokenSkew = 30 * time.Second

	pendingSignupPrefix = "signup:"
	pendingSignupTTL    = 7 * 24 * time.Hour
)

// pendingSignup is the profile seed kept when registration could not
// create the row, so the first sign-in still applies the chosen role.
type pendingSignup struct {
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Company  string `json:"company,omitempty"`
}

// BridgeOption configures an IdentityBridge.
type BridgeOption func(*IdentityBridge)

// WithSignupRoles sets the roles a user may pick at registration.
func WithSignupRoles(roles ...domain.Role) BridgeOption {
	return func(b *IdentityBridge) {
		b.signupRoles = make(map[domain.Role]bool, len(roles))
		for _, r := range roles {
			if r.Known() {
				b.signupRoles[r] = true
			}
		}
	}
}

// WithRouteTable sets the table used to pick post-auth destinations.
func WithRouteTable(t *RouteTable) BridgeOption {
	return func(b *IdentityBridge) {
		if t != nil {
			b.routes = t
		}
	}
}

// WithBridgeClock overrides the time source used for token expiry checks.
func WithBridgeClock(now func() time.Time) BridgeOption {
	return func(b *IdentityBridge) {
		if now != nil {
			b.now = now
		}
	}
}

// WithPendingSignups keeps profile seeds of registrations whose row creation
// failed in persist until the user's first successful sign-in sync.
func WithPendingSignups(persist domain.SessionPersistence) BridgeOption {
	return func(b *IdentityBridge) {
		b.pending = persist
	}
}

// NewIdentityBridge creates an IdentityBridge.
func NewIdentityBridge(identity domain.IdentityPort, data domain.DataSessionPort, profiles domain.ProfileRepository, nav Navigator, opts ...BridgeOption) *IdentityBridge {
	b := &IdentityBridge{
		identity: identity,
		data:     data,
		profiles: profiles,
		nav:      nav,
		routes:   DefaultRouteTable(),
		now:      time.Now,
	}
	WithSignupRoles(domain.RoleAttendee, domain.RoleOrganizer, domain.RoleSponsor)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SignIn authenticates email/password, syncs the profile and stores the
// session. Nothing is stored when the e-mail is unverified or ctx ends
// before the flow completes.
func (b *IdentityBridge) SignIn(ctx context.Context, store *SessionStore, email, password string) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.sign_in", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("email", email),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	acct, err := b.identity.SignIn(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("auth.success", false))
		authAttempts.WithLabelValues("sign_in", "rejected").Inc()
		return nil, fmt.Errorf("sign in %q: %w", email, classifyProviderError(err))
	}

	state, err := b.identity.Lookup(ctx, acct.IDToken)
	if err != nil {
		span.RecordError(err)
		authAttempts.WithLabelValues("sign_in", "lookup_failed").Inc()
		return nil, fmt.Errorf("lookup account %q: %w", email, classifyProviderError(err))
	}
	if !state.EmailVerified {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.unverified")
		authAttempts.WithLabelValues("sign_in", "unverified").Inc()
		return nil, fmt.Errorf("sign in %q: %w", email, ErrEmailUnverified)
	}

	displayName := firstNonEmpty(acct.DisplayName, state.DisplayName, tokenDisplayName(acct.IDToken))
	session := domain.Session{
		UserID:        acct.UserID,
		Email:         firstNonEmpty(acct.Email, state.Email, email),
		Role:          domain.RoleAttendee,
		Profile:       domain.Profile{DisplayName: displayName},
		EmailVerified: true,
	}
	b.applyIdentityTokens(&session, acct)

	seed := domain.ProfileRow{
		ID:       acct.UserID,
		Role:     string(domain.RoleAttendee),
		FullName: displayName,
	}
	pending := b.loadPendingSignup(ctx, acct.UserID)
	if pending != nil {
		seed.Role = pending.Role
		seed.FullName = firstNonEmpty(pending.FullName, displayName)
		seed.Company = pending.Company
	}

	if err := b.sync(ctx, &session, seed); err != nil {
		// Degraded: identity-derived fields until the next successful sync.
		span.RecordError(err)
		profileSyncFailures.WithLabelValues("sign_in").Inc()
		logger.Warn().Err(err).Str("user_id", acct.UserID).Msg("Profile sync failed, continuing with identity defaults")
	} else if pending != nil {
		if err := b.pending.Delete(ctx, pendingSignupPrefix+acct.UserID); err != nil {
			logger.Warn().Err(err).Str("user_id", acct.UserID).Msg("Pending signup cleanup failed")
		}
	}

	if err := ctx.Err(); err != nil {
		span.AddEvent("authentication.abandoned")
		return nil, fmt.Errorf("sign in %q: %w", email, err)
	}

	stored, err := store.Set(ctx, session)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store session: %w", err)
	}

	span.SetAttributes(
		attribute.String("user.id", stored.UserID),
		attribute.String("user.role", string(stored.Role)),
		attribute.Bool("auth.success", true),
		attribute.Bool("profile.synced", stored.ProfileSynced),
	)
	span.AddEvent("user.authenticated")
	authAttempts.WithLabelValues("sign_in", "ok").Inc()

	b.nav.Navigate(ctx, NavigationEvent{
		ClientID: store.Key(),
		View:     b.routes.HomeFor(stored.Role),
		Reason:   "signed_in",
	})
	return stored, nil
}

// Register creates the identity account, names it, sends the verification
// e-mail and creates the profile row with the requested role. The returned
// session is not stored: authorization waits for verification.
func (b *IdentityBridge) Register(ctx context.Context, store *SessionStore, req RegisterRequest) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("email", req.Email),
		attribute.String("role", req.Role),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	role := domain.RoleAttendee
	if strings.TrimSpace(req.Role) != "" {
		role = domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	}
	if !b.signupRoles[role] {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register %q as %q: %w", req.Email, req.Role, ErrRoleNotAllowed)
	}

	acct, err := b.identity.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("registration.success", false))
		authAttempts.WithLabelValues("register", "rejected").Inc()
		return nil, fmt.Errorf("register %q: %w", req.Email, classifyProviderError(err))
	}

	// The account exists from here on; later failures are logged so the
	// user is not told to resubmit a form that would now hit EmailAlreadyInUse.
	if err := b.identity.UpdateDisplayName(ctx, acct.IDToken, req.Name); err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("user_id", acct.UserID).Msg("Display name update failed")
	}
	if err := b.identity.SendVerification(ctx, acct.IDToken); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Str("user_id", acct.UserID).Msg("Verification e-mail send failed")
	}

	session := domain.Session{
		UserID:        acct.UserID,
		Email:         firstNonEmpty(acct.Email, req.Email),
		Role:          role,
		Profile:       domain.Profile{DisplayName: req.Name, Company: req.Company},
	}
	b.applyIdentityTokens(&session, acct)
	if err := b.sync(ctx, &session, domain.ProfileRow{
		ID:       acct.UserID,
		Role:     string(role),
		FullName: req.Name,
		Company:  req.Company,
	}); err != nil {
		span.RecordError(err)
		profileSyncFailures.WithLabelValues("register").Inc()
		logger.Error().Err(err).Str("user_id", acct.UserID).Str("role", string(role)).Msg("Profile creation failed at registration")
		b.savePendingSignup(ctx, acct.UserID, pendingSignup{Role: string(role), FullName: req.Name, Company: req.Company})
	}
	span.SetAttributes(attribute.Bool("profile.synced", session.ProfileSynced))

	span.SetAttributes(
		attribute.String("user.id", session.UserID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")
	authAttempts.WithLabelValues("register", "ok").Inc()

	b.nav.Navigate(ctx, NavigationEvent{
		ClientID: store.Key(),
		View:     ViewVerifyEmail,
		Reason:   "registered",
	})
	return &session, nil
}

// SignOut ends both remote sessions and clears the store. Remote failures
// are logged; the local store is always cleared.
func (b *IdentityBridge) SignOut(ctx context.Context, store *SessionStore) {
	ctx, span := middleware.StartSpan(ctx, "auth.sign_out", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	session, err := store.Get(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Read session before sign-out failed")
	}
	if session != nil {
		if err := b.data.Revoke(ctx, session.DatabaseToken); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Str("user_id", session.UserID).Msg("Data session revoke failed")
		}
		if err := b.identity.SignOut(ctx, session.IdentityToken); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Str("user_id", session.UserID).Msg("Identity sign-out failed")
		}
	}

	// Detached so a client that hangs up mid-logout is still signed out.
	if err := store.Clear(context.WithoutCancel(ctx)); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Clear session failed")
	}

	b.nav.Navigate(ctx, NavigationEvent{
		ClientID: store.Key(),
		View:     b.routes.FallbackView,
		Reason:   "signed_out",
	})
}

// RefreshProfile re-reads the profile row of userID and re-persists the
// stored session with it, which also renews its window.
func (b *IdentityBridge) RefreshProfile(ctx context.Context, store *SessionStore, userID string) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "profile.refresh", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	session, err := store.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, fmt.Errorf("refresh profile %q: %w", userID, ErrSessionExpired)
	}

	if err := b.sync(ctx, session, domain.ProfileRow{
		ID:       userID,
		Role:     string(domain.RoleAttendee),
		FullName: session.Profile.DisplayName,
	}); err != nil {
		span.RecordError(err)
		profileSyncFailures.WithLabelValues("refresh").Inc()
		return nil, fmt.Errorf("refresh profile %q: %w", userID, err)
	}

	stored, err := store.Set(ctx, *session)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store session: %w", err)
	}
	return stored, nil
}

// UpdateProfile writes the editable profile fields of the signed-in user,
// then refreshes the session from the stored row.
func (b *IdentityBridge) UpdateProfile(ctx context.Context, store *SessionStore, update domain.ProfileUpdate) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "profile.update", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	session, err := store.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("update profile: %w", ErrSessionExpired)
	}
	span.SetAttributes(attribute.String("user.id", session.UserID))

	if !update.Empty() {
		if err := b.ensureDataSession(ctx, session); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("update profile %q: %w", session.UserID, err)
		}
		row, err := b.profiles.Update(ctx, session.DatabaseToken, session.UserID, update)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("update profile %q: %w: %w", session.UserID, ErrProfileSyncFailed, err)
		}
		if row == nil {
			return nil, fmt.Errorf("update profile %q: no profile row: %w", session.UserID, ErrProfileSyncFailed)
		}
		if update.FullName != nil {
			if err := b.identity.UpdateDisplayName(ctx, session.IdentityToken, *update.FullName); err != nil {
				logger.Warn().Err(err).Str("user_id", session.UserID).Msg("Identity display name update failed")
			}
		}
		// Keep the exchanged token for the refresh below.
		if _, err := store.Set(ctx, *session); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("store session: %w", err)
		}
	}

	return b.RefreshProfile(ctx, store, session.UserID)
}

// sync ensures a data session and loads (or lazily creates) the profile
// row, applying it to session. Failures wrap ErrProfileSyncFailed and
// leave session's profile fields untouched.
func (b *IdentityBridge) sync(ctx context.Context, session *domain.Session, seed domain.ProfileRow) error {
	if err := b.ensureDataSession(ctx, session); err != nil {
		return err
	}

	row, err := b.profiles.Get(ctx, session.DatabaseToken, session.UserID)
	if err != nil {
		return fmt.Errorf("%w: read: %w", ErrProfileSyncFailed, err)
	}
	if row == nil {
		row, err = b.profiles.CreateIfAbsent(ctx, session.DatabaseToken, seed)
		if err != nil {
			return fmt.Errorf("%w: create: %w", ErrProfileSyncFailed, err)
		}
		if row == nil {
			return fmt.Errorf("%w: create returned no row", ErrProfileSyncFailed)
		}
	}

	session.Role = domain.ParseRole(row.Role)
	session.Profile = domain.Profile{
		DisplayName: firstNonEmpty(row.FullName, session.Profile.DisplayName),
		Company:     row.Company,
		Plan:        row.Plan,
		AvatarURL:   row.AvatarURL,
	}
	session.ProfileSynced = true
	return nil
}

// ensureDataSession exchanges the identity token when session has no
// usable database token, renewing the identity token first if it expired.
func (b *IdentityBridge) ensureDataSession(ctx context.Context, session *domain.Session) error {
	if session.DatabaseToken != "" &&
		(session.DatabaseTokenExpiresAt.IsZero() || session.DatabaseTokenExpiresAt.After(b.now())) {
		return nil
	}
	if err := b.ensureIdentityToken(ctx, session); err != nil {
		return err
	}
	if session.IdentityToken == "" {
		return fmt.Errorf("%w: no identity token to exchange", ErrProfileSyncFailed)
	}
	ds, err := b.data.Exchange(ctx, session.IdentityToken)
	if err != nil {
		return fmt.Errorf("%w: token exchange: %w", ErrProfileSyncFailed, err)
	}
	if ds.UserID != "" && ds.UserID != session.UserID {
		return fmt.Errorf("%w: token exchange issued for %q, session user is %q", ErrProfileSyncFailed, ds.UserID, session.UserID)
	}
	session.DatabaseToken = ds.AccessToken
	session.DatabaseTokenExpiresAt = ds.ExpiresAt
	return nil
}

// ensureIdentityToken renews session's identity token with its refresh
// token once the token is within identityTokenSkew of expiring. Sessions
// without a known expiry are left alone.
func (b *IdentityBridge) ensureIdentityToken(ctx context.Context, session *domain.Session) error {
	exp := session.IdentityTokenExpiresAt
	if exp.IsZero() || exp.After(b.now().Add(identityTokenSkew)) {
		return nil
	}
	if session.RefreshToken == "" {
		return fmt.Errorf("%w: identity token expired and no refresh token", ErrProfileSyncFailed)
	}
	acct, err := b.identity.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: identity token refresh: %w", ErrProfileSyncFailed, err)
	}
	if acct.UserID != "" && acct.UserID != session.UserID {
		return fmt.Errorf("%w: refreshed token belongs to %q", ErrProfileSyncFailed, acct.UserID)
	}
	b.applyIdentityTokens(session, acct)
	return nil
}

func (b *IdentityBridge) applyIdentityTokens(session *domain.Session, acct *domain.IdentityAccount) {
	session.IdentityToken = acct.IDToken
	if acct.RefreshToken != "" {
		session.RefreshToken = acct.RefreshToken
	}
	session.IdentityTokenExpiresAt = time.Time{}
	if acct.ExpiresIn > 0 {
		session.IdentityTokenExpiresAt = b.now().Add(acct.ExpiresIn)
	}
}

func (b *IdentityBridge) savePendingSignup(ctx context.Context, userID string, p pendingSignup) {
	if b.pending == nil {
		return
	}
	logger := pkgzerolog.FromContext(ctx)
	raw, err := json.Marshal(p)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Encode pending signup failed")
		return
	}
	if err := b.pending.Save(ctx, pendingSignupPrefix+userID, raw, pendingSignupTTL); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Save pending signup failed")
	}
}

// loadPendingSignup returns nil when nothing usable is kept for userID.
func (b *IdentityBridge) loadPendingSignup(ctx context.Context, userID string) *pendingSignup {
	if b.pending == nil {
		return nil
	}
	logger := pkgzerolog.FromContext(ctx)
	raw, err := b.pending.Load(ctx, pendingSignupPrefix+userID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Load pending signup failed")
		return nil
	}
	if raw == nil {
		return nil
	}
	var p pendingSignup
	if err := json.Unmarshal(raw, &p); err != nil || !b.signupRoles[domain.Role(p.Role)] {
		return nil
	}
	return &p
}

// classifyProviderError maps provider adapter errors to the bridge taxonomy.
func classifyProviderError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrProviderRejected):
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	case errors.Is(err, domain.ErrProviderAccountExists):
		return fmt.Errorf("%w: %w", ErrEmailAlreadyInUse, err)
	case errors.Is(err, domain.ErrProviderWeakPassword):
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
}

// tokenDisplayName reads the "name" claim of an identity token without
// verifying it; it only feeds display defaults.
func tokenDisplayName(idToken string) string {
	if idToken == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	name, _ := claims["name"].(string)
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
