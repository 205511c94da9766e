package app

import (
	"sync"

	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/domain/lifecycle"
)

// Instance is the runtime object for one installation. Instances are
// created and destroyed only by the registry; app callbacks receive them
// to read configuration and issue authenticated platform calls.
type Instance struct {
	def *Definition
	id  string

	mu      sync.Mutex
	draft   map[string][]string // configuration-flow scratch, reset on INITIALIZE
	config  map[string][]string // latest applied configuration
	context *Context
	session *platform.Client
}

// NewInstance creates an instance bound to the definition. Only the
// registry calls this.
func NewInstance(def *Definition, installationID string) *Instance {
	return &Instance{
		def:    def,
		id:     installationID,
		draft:  make(map[string][]string),
		config: make(map[string][]string),
	}
}

// Definition returns the shared app template.
func (i *Instance) Definition() *Definition { return i.def }

// ID returns the installation id.
func (i *Instance) ID() string { return i.id }

// LocationID returns the installation's location, empty before install.
func (i *Instance) LocationID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.context == nil {
		return ""
	}
	return i.context.LocationID
}

// Context returns the current credential record, nil before first bind.
func (i *Instance) Context() *Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.context
}

// Secret returns the installation's route authorization secret.
func (i *Instance) Secret() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.context == nil {
		return ""
	}
	return i.context.Secret
}

// RefreshToken returns the installation's current OAuth refresh token.
func (i *Instance) RefreshToken() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.context == nil {
		return ""
	}
	return i.context.RefreshToken
}

// Session returns the token-bound platform client. Nil until a context
// with a token has been bound.
func (i *Instance) Session() *platform.Client {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session
}

// API returns the installed-app platform API for this installation.
func (i *Instance) API() *platform.InstalledApp {
	return platform.NewInstalledApp(i.Session(), i.id)
}

// SetContext swaps in a credential record and its token-bound session.
// Only the registry calls this.
func (i *Instance) SetContext(c *Context, session *platform.Client) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.context = c
	i.session = session
}

// ResetDraft clears the configuration-flow scratch.
func (i *Instance) ResetDraft() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.draft = make(map[string][]string)
}

// MergeDraft folds posted configuration values into the draft.
func (i *Instance) MergeDraft(cfg lifecycle.ConfigMap) {
	vals := cfg.Values()
	if len(vals) == 0 {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, v := range vals {
		i.draft[k] = v
	}
}

// ApplyConfig replaces the latest applied configuration from an install or
// update snapshot.
func (i *Instance) ApplyConfig(cfg lifecycle.ConfigMap) {
	vals := cfg.Values()
	i.mu.Lock()
	defer i.mu.Unlock()
	i.config = make(map[string][]string, len(vals))
	for k, v := range vals {
		i.config[k] = v
	}
}

// Config returns a copy of the latest applied configuration.
func (i *Instance) Config() map[string][]string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string][]string, len(i.config))
	for k, v := range i.config {
		vals := make([]string, len(v))
		copy(vals, v)
		out[k] = vals
	}
	return out
}

// ConfigValue returns the first value of a setting, empty when unset.
func (i *Instance) ConfigValue(id string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if vals := i.config[id]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
