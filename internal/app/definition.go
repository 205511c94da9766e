// Package app holds the author-facing model of a webhook app: the static
// Definition (pages, scopes, routes, lifecycle callbacks), the runtime
// Instance created per installation, and the durable Context record.
package app

import (
	"context"
	"net/http"
	"strconv"

	"github.com/campfirehq/hestia/internal/domain/lifecycle"
)

// Callbacks are the app-author lifecycle hooks. All are optional; the
// dispatcher runs them as detached tasks after the webhook response is
// decided, so a slow or failing callback never delays the platform.
type Callbacks struct {
	OnInstall       func(ctx context.Context, inst *Instance, data *lifecycle.InstallData) error
	OnUpdate        func(ctx context.Context, inst *Instance, data *lifecycle.UpdateData) error
	OnEvent         func(ctx context.Context, inst *Instance, data *lifecycle.EventData) error
	OnUninstall     func(ctx context.Context, inst *Instance, data *lifecycle.UninstallData) error
	OnOAuthCallback func(ctx context.Context, inst *Instance, data *lifecycle.OAuthCallbackData) error
}

// RouteHandler serves one app-defined HTTP route for one installation.
type RouteHandler func(inst *Instance, w http.ResponseWriter, r *http.Request)

// Route is one author-declared HTTP route, registered per installation at
// /{installation_id}{path}.
type Route struct {
	Method  string
	Path    string
	Handler RouteHandler
	Auth    bool
}

// RequireAuth gates the route on the installation's authorization secret.
func (r *Route) RequireAuth() *Route {
	r.Auth = true
	return r
}

// Definition is the immutable, process-wide template for an app. Built
// once at startup by the embedding program and shared read-only by every
// installation's instance.
type Definition struct {
	Name        string
	ID          string
	Description string

	Callbacks Callbacks

	permissions []string
	pages       map[string]*Page
	pageOrder   []string
	routes      []*Route
}

// New creates a Definition. The description defaults to the name.
func New(name, id string) *Definition {
	return &Definition{
		Name:        name,
		ID:          id,
		Description: name,
		pages:       make(map[string]*Page),
	}
}

// Grant adds OAuth scopes to the app's installation requirements.
func (d *Definition) Grant(scopes ...string) *Definition {
	d.permissions = append(d.permissions, scopes...)
	return d
}

// Permissions returns the declared OAuth scopes.
func (d *Definition) Permissions() []string {
	return d.permissions
}

// Page appends a configuration page. Page ids are assigned in declaration
// order starting at "0"; the previous page, if any, is chained to this one
// via nextPageId and loses its terminal flag.
func (d *Definition) Page(name string) *Page {
	id := strconv.Itoa(len(d.pageOrder))
	p := &Page{
		data: lifecycle.PageData{
			PageID:   id,
			Name:     name,
			Complete: true,
		},
	}
	if n := len(d.pageOrder); n > 0 {
		prev := d.pages[d.pageOrder[n-1]]
		prev.data.Complete = false
		prev.data.NextPageID = id
		p.data.PreviousPageID = prev.data.PageID
	}
	d.pages[id] = p
	d.pageOrder = append(d.pageOrder, id)
	return p
}

// PageByID looks up a configuration page.
func (d *Definition) PageByID(id string) (*Page, bool) {
	p, ok := d.pages[id]
	return p, ok
}

// FirstPageID returns the id of the first configuration page, "0" when no
// pages are declared (the platform requires the field regardless).
func (d *Definition) FirstPageID() string {
	if len(d.pageOrder) == 0 {
		return "0"
	}
	return d.pageOrder[0]
}

// Route declares an HTTP route served for every installation of this app.
func (d *Definition) Route(method, path string, h RouteHandler) *Route {
	r := &Route{Method: method, Path: path, Handler: h}
	d.routes = append(d.routes, r)
	return r
}

// Routes returns the declared route table.
func (d *Definition) Routes() []*Route {
	return d.routes
}

// Initialize returns the INITIALIZE sub-phase metadata for this app.
func (d *Definition) Initialize() *lifecycle.InitializeData {
	perms := d.permissions
	if perms == nil {
		perms = []string{}
	}
	return &lifecycle.InitializeData{
		Name:        d.Name,
		Description: d.Description,
		ID:          d.ID,
		Permissions: perms,
		FirstPageID: d.FirstPageID(),
	}
}
