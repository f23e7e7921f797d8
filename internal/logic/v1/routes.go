package v1

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/duynhne/event-gate/internal/core/domain"
)

// View names used by the default table.
const (
	ViewHome               = "home"
	ViewLogin              = "login"
	ViewRegister           = "register"
	ViewVerifyEmail        = "verify-email"
	ViewAccessDenied       = "access-denied"
	ViewEvents             = "events"
	ViewEventDetails       = "event-details"
	ViewAttendeeDashboard  = "attendee-dashboard"
	ViewOrganizerDashboard = "organizer-dashboard"
	ViewSponsorDashboard   = "sponsor-dashboard"
	ViewAdminDashboard     = "admin-dashboard"
)

// Route describes who may see a view.
type Route struct {
	Public bool          `yaml:"public"`
	Roles  []domain.Role `yaml:"roles"`
}

// Allows reports whether role may see the route.
func (r Route) Allows(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// RouteTable is the declarative view authorization table. It is the only
// place role rules for views live.
type RouteTable struct {
	Routes           map[string]Route       `yaml:"routes"`
	FallbackView     string                 `yaml:"fallback_view"`
	UnauthorizedView string                 `yaml:"unauthorized_view"`
	ForbiddenView    string                 `yaml:"forbidden_view"`
	RoleHome         map[domain.Role]string `yaml:"role_home"`
}

// DefaultRouteTable returns the built-in table.
func DefaultRouteTable() *RouteTable {
	all := []domain.Role{domain.RoleAttendee, domain.RoleOrganizer, domain.RoleSponsor, domain.RoleAdmin}
	return &RouteTable{
		Routes: map[string]Route{
			ViewHome:               {Public: true},
			ViewLogin:              {Public: true},
			ViewRegister:           {Public: true},
			ViewVerifyEmail:        {Public: true},
			ViewAccessDenied:       {Public: true},
			ViewEvents:             {Public: true},
			ViewEventDetails:       {Public: true},
			ViewAttendeeDashboard:  {Roles: []domain.Role{domain.RoleAttendee}},
			"my-tickets":           {Roles: []domain.Role{domain.RoleAttendee}},
			ViewOrganizerDashboard: {Roles: []domain.Role{domain.RoleOrganizer}},
			"create-event":         {Roles: []domain.Role{domain.RoleOrganizer, domain.RoleAdmin}},
			"manage-events":        {Roles: []domain.Role{domain.RoleOrganizer, domain.RoleAdmin}},
			ViewSponsorDashboard:   {Roles: []domain.Role{domain.RoleSponsor}},
			"sponsorships":         {Roles: []domain.Role{domain.RoleSponsor, domain.RoleAdmin}},
			ViewAdminDashboard:     {Roles: []domain.Role{domain.RoleAdmin}},
			"user-management":      {Roles: []domain.Role{domain.RoleAdmin}},
			"profile":              {Roles: all},
			"settings":             {Roles: all},
		},
		FallbackView:     ViewHome,
		UnauthorizedView: ViewHome,
		ForbiddenView:    ViewAccessDenied,
		RoleHome: map[domain.Role]string{
			domain.RoleAttendee:  ViewAttendeeDashboard,
			domain.RoleOrganizer: ViewOrganizerDashboard,
			domain.RoleSponsor:   ViewSponsorDashboard,
			domain.RoleAdmin:     ViewAdminDashboard,
		},
	}
}

// LoadRouteTable reads a YAML table from path and merges it over the
// default table. Routes in the file replace routes of the same name.
func LoadRouteTable(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return ParseRouteTable(data)
}

// ParseRouteTable parses YAML and merges it over the default table.
func ParseRouteTable(data []byte) (*RouteTable, error) {
	var overlay RouteTable
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}

	table := DefaultRouteTable()
	for name, r := range overlay.Routes {
		table.Routes[name] = r
	}
	if overlay.FallbackView != "" {
		table.FallbackView = overlay.FallbackView
	}
	if overlay.UnauthorizedView != "" {
		table.UnauthorizedView = overlay.UnauthorizedView
	}
	if overlay.ForbiddenView != "" {
		table.ForbiddenView = overlay.ForbiddenView
	}
	for role, view := range overlay.RoleHome {
		table.RoleHome[role] = view
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks that roles are known and that fallback views are public
// routes of the table.
func (t *RouteTable) Validate() error {
	names := make([]string, 0, len(t.Routes))
	for name := range t.Routes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := t.Routes[name]
		for _, role := range r.Roles {
			if !role.Known() {
				return fmt.Errorf("route %q: unknown role %q", name, role)
			}
		}
		if !r.Public && len(r.Roles) == 0 {
			return fmt.Errorf("route %q: neither public nor any role", name)
		}
	}
	for label, view := range map[string]string{
		"fallback_view":     t.FallbackView,
		"unauthorized_view": t.UnauthorizedView,
		"forbidden_view":    t.ForbiddenView,
	} {
		if r, ok := t.Routes[view]; !ok || !r.Public {
			return fmt.Errorf("%s %q must be a public route", label, view)
		}
	}
	for role, view := range t.RoleHome {
		if !role.Known() {
			return fmt.Errorf("role_home: unknown role %q", role)
		}
		if r, ok := t.Routes[view]; !ok || !(r.Public || r.Allows(role)) {
			return fmt.Errorf("role_home %q: view %q is not visible to the role", role, view)
		}
	}
	return nil
}

// HomeFor returns the default view of role; unknown roles get the
// least-privileged role's home.
func (t *RouteTable) HomeFor(role domain.Role) string {
	if v, ok := t.RoleHome[domain.ParseRole(string(role))]; ok {
		return v
	}
	return t.FallbackView
}
