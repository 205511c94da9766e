package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/app"
	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/port/store"
)

// SessionFactory builds a token-bound platform client. The registry calls
// it every time an installation's access token changes.
type SessionFactory func(token string) *platform.Client

// RouteBinder mounts and unmounts an installation's app-defined routes.
// Implemented by the http adapter; nil disables route registration.
type RouteBinder interface {
	Mount(inst *app.Instance)
	Unmount(installationID string)
}

// Registry is the single source of truth for installations: it maps
// installation ids to live instances, persists their credential records
// under the definition's namespace, and is the only authority that
// creates or destroys instances.
type Registry struct {
	def       *app.Definition
	store     store.Store
	authority *Authority
	sessions  SessionFactory
	binder    RouteBinder
	log       *slog.Logger

	mu        sync.Mutex
	instances map[string]*app.Instance

	// first-contact resolutions for the same id share one creation,
	// closing the generate-two-secrets race
	flight singleflight.Group
}

// NewRegistry creates a registry for one application definition. The
// store namespace is the definition's name.
func NewRegistry(def *app.Definition, st store.Store, authority *Authority, sessions SessionFactory, log *slog.Logger) *Registry {
	return &Registry{
		def:       def,
		store:     st,
		authority: authority,
		sessions:  sessions,
		binder:    nil,
		log:       log,
		instances: make(map[string]*app.Instance),
	}
}

// SetRouteBinder attaches the app-route mux. Set before the first
// Resolve; instances resolved earlier are not retroactively mounted.
func (r *Registry) SetRouteBinder(b RouteBinder) {
	r.binder = b
}

// Definition returns the registry's application definition.
func (r *Registry) Definition() *app.Definition { return r.def }

func (r *Registry) namespace() string { return r.def.Name }

// Resolve returns the live instance for an installation id, creating it
// on first contact. Creation loads the stored credential record or mints
// a fresh one with a new secret, persisted before Resolve returns.
func (r *Registry) Resolve(ctx context.Context, installationID string) (*app.Instance, error) {
	if installationID == "" {
		return nil, fault.ErrConfiguration
	}

	r.mu.Lock()
	if inst, ok := r.instances[installationID]; ok {
		r.mu.Unlock()
		return inst, nil
	}
	r.mu.Unlock()

	v, err, _ := r.flight.Do(installationID, func() (any, error) {
		r.mu.Lock()
		if inst, ok := r.instances[installationID]; ok {
			r.mu.Unlock()
			return inst, nil
		}
		r.mu.Unlock()

		c, err := r.loadOrCreate(ctx, installationID)
		if err != nil {
			return nil, err
		}

		inst := app.NewInstance(r.def, installationID)
		inst.SetContext(c, r.session(c.Token))

		r.mu.Lock()
		r.instances[installationID] = inst
		r.mu.Unlock()

		if r.binder != nil {
			r.binder.Mount(inst)
		}
		r.log.Info("installation resolved", "installation_id", installationID)
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*app.Instance), nil
}

// loadOrCreate returns the stored credential record for an id, creating
// and persisting a fresh one on first contact. The returned record always
// carries a non-empty secret, written before return.
func (r *Registry) loadOrCreate(ctx context.Context, installationID string) (*app.Context, error) {
	data, ok, err := r.store.Get(ctx, r.namespace(), installationID)
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", installationID, err)
	}

	var c *app.Context
	if ok {
		c, err = app.UnmarshalContext(data)
		if err != nil {
			return nil, &fault.SchemaError{Err: fmt.Errorf("stored context %s: %w", installationID, err)}
		}
	} else {
		r.log.Info("first contact, creating context", "installation_id", installationID)
		c = &app.Context{AppID: installationID}
	}

	if c.Secret == "" {
		c.Secret = r.authority.NewSecret()
		if err := r.persist(ctx, installationID, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ErrNotRegistered is returned when a context write targets an
// installation the registry no longer holds.
var ErrNotRegistered = errors.New("installation not registered")

// BindContext replaces an instance's credential record: persist durably,
// swap the in-memory record, and rebuild the token-bound session. Fields
// left empty in the new record (secret, tokens) are carried over from the
// current one so a lifecycle update never drops the route secret. Writes
// for an installation that has been torn down are refused with
// ErrNotRegistered.
func (r *Registry) BindContext(ctx context.Context, inst *app.Instance, c *app.Context) error {
	if inst == nil || inst.ID() == "" {
		return fault.ErrConfiguration
	}
	if c == nil {
		return fault.ErrConfiguration
	}

	if cur := inst.Context(); cur != nil {
		if c.Secret == "" {
			c.Secret = cur.Secret
		}
		if c.Token == "" {
			c.Token = cur.Token
		}
		if c.RefreshToken == "" {
			c.RefreshToken = cur.RefreshToken
		}
	}
	if c.Secret == "" {
		c.Secret = r.authority.NewSecret()
	}
	if c.AppID == "" {
		c.AppID = inst.ID()
	}

	// The registered check and the write happen under the same lock as
	// Teardown's delete, so a record removed there stays removed.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instances[inst.ID()] != inst {
		return fmt.Errorf("%w: %s", ErrNotRegistered, inst.ID())
	}
	if err := r.persist(ctx, inst.ID(), c); err != nil {
		return err
	}
	inst.SetContext(c, r.session(c.Token))
	r.log.Info("context updated", "installation_id", inst.ID())
	return nil
}

// UpdateToken applies a refreshed token pair to an instance: persist and
// rebuild the outbound session.
func (r *Registry) UpdateToken(ctx context.Context, inst *app.Instance, tok *platform.Token) error {
	cur := inst.Context()
	if cur == nil {
		return fault.ErrConfiguration
	}
	next := *cur
	next.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	return r.BindContext(ctx, inst, &next)
}

// Teardown removes an installation from memory and durable storage.
// Idempotent: tearing down an absent id only logs.
func (r *Registry) Teardown(ctx context.Context, installationID string) error {
	r.mu.Lock()
	_, existed := r.instances[installationID]
	delete(r.instances, installationID)
	delErr := r.store.Delete(ctx, r.namespace(), installationID)
	r.mu.Unlock()

	if !existed {
		r.log.Info("teardown of unknown installation", "installation_id", installationID)
	}
	if r.binder != nil {
		r.binder.Unmount(installationID)
	}
	if delErr != nil {
		return fmt.Errorf("delete context %s: %w", installationID, delErr)
	}
	r.log.Info("installation removed", "installation_id", installationID)
	return nil
}

// RestoreAll re-establishes an instance for every installation id found
// in durable storage. One id failing to restore does not abort the rest.
func (r *Registry) RestoreAll(ctx context.Context) error {
	ids, err := r.store.IDs(ctx, r.namespace())
	if err != nil {
		return fmt.Errorf("enumerate contexts: %w", err)
	}

	var failed int
	for _, id := range ids {
		if _, err := r.Resolve(ctx, id); err != nil {
			failed++
			r.log.Error("restore failed", "installation_id", id, "error", err)
		}
	}
	r.log.Info("installations restored", "count", len(ids)-failed, "failed", failed)
	return nil
}

// Instance returns the live instance for an id without creating one.
func (r *Registry) Instance(installationID string) (*app.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[installationID]
	return inst, ok
}

func (r *Registry) persist(ctx context.Context, installationID string, c *app.Context) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encode context %s: %w", installationID, err)
	}
	if err := r.store.Set(ctx, r.namespace(), installationID, data); err != nil {
		return fmt.Errorf("persist context %s: %w", installationID, err)
	}
	return nil
}

func (r *Registry) session(token string) *platform.Client {
	if token == "" || r.sessions == nil {
		return nil
	}
	return r.sessions(token)
}
