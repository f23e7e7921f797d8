package v1

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/event-gate/internal/core/domain"
	"github.com/duynhne/event-gate/middleware"
)

// ViewState is the outcome class of a view request.
type ViewState string

const (
	ViewPublic       ViewState = "public"
	ViewUnauthorized ViewState = "unauthorized"
	ViewForbidden    ViewState = "forbidden"
	ViewAuthorized   ViewState = "authorized"
)

// Decision tells the client what to render.
type Decision struct {
	State     ViewState         `json:"state"`
	Requested string            `json:"requested"`
	View      string            `json:"view"`
	Redirect  string            `json:"redirect,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// ViewResolver maps a view request and the current session to a Decision.
type ViewResolver struct {
	table *RouteTable
}

// NewViewResolver creates a resolver over table; nil selects the default table.
func NewViewResolver(table *RouteTable) *ViewResolver {
	if table == nil {
		table = DefaultRouteTable()
	}
	return &ViewResolver{table: table}
}

// Resolve decides for viewName given session (nil when signed out).
// It is pure: the same name, role and presence always give the same result.
func (r *ViewResolver) Resolve(viewName string, session *domain.Session, params map[string]string) Decision {
	route, ok := r.table.Routes[viewName]
	if !ok {
		return Decision{State: ViewPublic, Requested: viewName, View: r.table.FallbackView}
	}
	if route.Public {
		return Decision{State: ViewPublic, Requested: viewName, View: viewName, Params: params}
	}
	if session == nil {
		return Decision{State: ViewUnauthorized, Requested: viewName, View: r.table.UnauthorizedView}
	}

	role := domain.ParseRole(string(session.Role))
	if !route.Allows(role) {
		return Decision{
			State:     ViewForbidden,
			Requested: viewName,
			View:      r.table.ForbiddenView,
			Redirect:  r.table.HomeFor(role),
		}
	}
	return Decision{State: ViewAuthorized, Requested: viewName, View: viewName, Params: params}
}

// ResolveFor reads the session from store (clearing it when expired) and
// resolves viewName.
func (r *ViewResolver) ResolveFor(ctx context.Context, viewName string, store *SessionStore, params map[string]string) (Decision, error) {
	ctx, span := middleware.StartSpan(ctx, "view.resolve", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("view.requested", viewName),
	))
	defer span.End()

	session, err := store.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	d := r.Resolve(viewName, session, params)
	span.SetAttributes(
		attribute.String("view.state", string(d.State)),
		attribute.String("view.rendered", d.View),
	)
	viewDecisions.WithLabelValues(string(d.State)).Inc()
	return d, nil
}
