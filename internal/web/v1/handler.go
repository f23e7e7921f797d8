package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/event-gate/internal/core/domain"
	logicv1 "github.com/duynhne/event-gate/internal/logic/v1"
	"github.com/duynhne/event-gate/middleware"
	pkgzerolog "github.com/duynhne/event-gate/pkg/logger/zerolog"
)

// LoginRequest is the sign-in form.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is returned by endpoints that establish or renew a session.
type SessionResponse struct {
	Session    domain.PublicView `json:"session"`
	RedirectTo string            `json:"redirect_to,omitempty"`
}

// Handler groups HTTP handlers for the API v1.
// Dependencies are injected via the constructor.
type Handler struct {
	bridge   *logicv1.IdentityBridge
	resolver *logicv1.ViewResolver
	sessions *logicv1.SessionManager
}

// NewHandler creates a new Handler.
func NewHandler(bridge *logicv1.IdentityBridge, resolver *logicv1.ViewResolver, sessions *logicv1.SessionManager) *Handler {
	return &Handler{bridge: bridge, resolver: resolver, sessions: sessions}
}

// RegisterRoutes registers all API v1 routes on the given router group.
// The group must run middleware.ClientMiddleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/register", h.Register)
	rg.POST("/auth/logout", h.Logout)
	rg.POST("/auth/refresh", h.Refresh)
	rg.GET("/auth/me", h.GetMe)
	rg.GET("/profile", h.GetProfile)
	rg.PATCH("/profile", h.UpdateProfile)
	rg.GET("/views/:name", h.ResolveView)
}

func (h *Handler) store(c *gin.Context) *logicv1.SessionStore {
	return h.sessions.For(middleware.ClientID(c))
}

func startRequestSpan(c *gin.Context) (*gin.Context, trace.Span) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	c.Request = c.Request.WithContext(ctx)
	return c, span
}

// Login handles HTTP request for user sign-in.
func (h *Handler) Login(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	ctx, nav := logicv1.CaptureNavigation(c.Request.Context())
	logger := pkgzerolog.FromContext(ctx)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	session, err := h.bridge.SignIn(ctx, h.store(c), req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Sign-in failed")
		writeError(c, err)
		return
	}

	logger.Info().Str("user_id", session.UserID).Str("role", string(session.Role)).Msg("Sign-in successful")
	c.JSON(http.StatusOK, SessionResponse{Session: session.Public(), RedirectTo: nav.Destination()})
}

// Register handles HTTP request for account registration.
func (h *Handler) Register(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	ctx, nav := logicv1.CaptureNavigation(c.Request.Context())
	logger := pkgzerolog.FromContext(ctx)

	var req logicv1.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	session, err := h.bridge.Register(ctx, h.store(c), req)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("email", req.Email).Msg("Registration failed")
		writeError(c, err)
		return
	}

	logger.Info().Str("user_id", session.UserID).Str("role", string(session.Role)).Msg("Registration successful")
	c.JSON(http.StatusCreated, SessionResponse{Session: session.Public(), RedirectTo: nav.Destination()})
}

// Logout handles HTTP request for sign-out. It always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	h.bridge.SignOut(c.Request.Context(), h.store(c))
	c.Status(http.StatusNoContent)
}

// Refresh extends the current session window.
func (h *Handler) Refresh(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	session, err := h.store(c).Refresh(c.Request.Context())
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: session.Public()})
}

// GetMe returns the current session.
func (h *Handler) GetMe(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	session, err := h.store(c).Get(c.Request.Context())
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	if session == nil {
		span.SetAttributes(attribute.Bool("auth.present", false))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not signed in"})
		return
	}
	span.SetAttributes(attribute.Bool("auth.present", true))
	c.JSON(http.StatusOK, SessionResponse{Session: session.Public()})
}

// GetProfile re-reads the profile row of the signed-in user.
func (h *Handler) GetProfile(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	ctx := c.Request.Context()
	store := h.store(c)

	current, err := store.Get(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	if current == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not signed in"})
		return
	}

	session, err := h.bridge.RefreshProfile(ctx, store, current.UserID)
	if err != nil {
		span.RecordError(err)
		pkgzerolog.FromContext(ctx).Warn().Err(err).Str("user_id", current.UserID).Msg("Profile refresh failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: session.Public()})
}

// UpdateProfile writes the editable profile fields.
func (h *Handler) UpdateProfile(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	ctx := c.Request.Context()

	var req domain.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.bridge.UpdateProfile(ctx, h.store(c), req)
	if err != nil {
		span.RecordError(err)
		pkgzerolog.FromContext(ctx).Warn().Err(err).Msg("Profile update failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: session.Public()})
}

// ResolveView decides what the client may render for a view name. Query
// parameters are passed through as view parameters.
func (h *Handler) ResolveView(c *gin.Context) {
	c, span := startRequestSpan(c)
	defer span.End()

	var params map[string]string
	if q := c.Request.URL.Query(); len(q) > 0 {
		params = make(map[string]string, len(q))
		for k := range q {
			params[k] = q.Get(k)
		}
	}

	d, err := h.resolver.ResolveFor(c.Request.Context(), c.Param("name"), h.store(c), params)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// writeError maps business errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logicv1.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, logicv1.ErrEmailUnverified):
		c.JSON(http.StatusForbidden, gin.H{"error": "Email not verified"})
	case errors.Is(err, logicv1.ErrEmailAlreadyInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
	case errors.Is(err, logicv1.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password too weak"})
	case errors.Is(err, logicv1.ErrRoleNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role not allowed"})
	case errors.Is(err, logicv1.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	case errors.Is(err, logicv1.ErrProfileSyncFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Profile temporarily unavailable"})
	case errors.Is(err, logicv1.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
