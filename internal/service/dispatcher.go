package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campfirehq/hestia/internal/adapter/otelx"
	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/app"
	"github.com/campfirehq/hestia/internal/domain/lifecycle"
	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/logger"
)

// ErrUnknownPhase is returned for an envelope whose lifecycle tag the
// dispatcher does not recognize.
var ErrUnknownPhase = errors.New("unknown lifecycle phase")

// Dispatcher drives the lifecycle state machine: it takes a decoded
// envelope, runs the matching phase transition against the registry, and
// shapes a response carrying the same phase variant. Callback-bearing
// phases acknowledge immediately and run the app callback as a detached
// task through the runner.
type Dispatcher struct {
	registry *Registry
	runner   *Runner
	owner    *platform.Client
	metrics  *otelx.Metrics
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher. owner is the client holding the
// app's static owner token, used only for registration confirmation; nil
// disables confirmation follow-up.
func NewDispatcher(registry *Registry, runner *Runner, owner *platform.Client, metrics *otelx.Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		runner:   runner,
		owner:    owner,
		metrics:  metrics,
		log:      log,
	}
}

// Dispatch handles one webhook delivery. The returned response always
// carries exactly the same phase field as the request; an error means the
// transport layer should fail the delivery instead of acknowledging it.
func (d *Dispatcher) Dispatch(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	if env.ExecutionID != "" {
		ctx = logger.WithExecutionID(ctx, env.ExecutionID)
	}
	d.metrics.CountLifecycle(ctx, string(env.Lifecycle))
	d.log.Info("lifecycle received",
		"phase", string(env.Lifecycle), "execution_id", env.ExecutionID)

	switch env.Lifecycle {
	case lifecycle.PhasePing:
		return d.handlePing(env)
	case lifecycle.PhaseConfirmation:
		return d.handleConfirmation(ctx, env)
	case lifecycle.PhaseConfiguration:
		return d.handleConfiguration(ctx, env)
	case lifecycle.PhaseInstall:
		return d.handleInstall(ctx, env)
	case lifecycle.PhaseUpdate:
		return d.handleUpdate(ctx, env)
	case lifecycle.PhaseEvent:
		return d.handleEvent(ctx, env)
	case lifecycle.PhaseOAuthCallback:
		return d.handleOAuthCallback(ctx, env)
	case lifecycle.PhaseUninstall:
		return d.handleUninstall(ctx, env)
	default:
		d.log.Error("unknown lifecycle phase", "phase", string(env.Lifecycle))
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, env.Lifecycle)
	}
}

func (d *Dispatcher) handlePing(env *lifecycle.Envelope) (*lifecycle.Response, error) {
	if env.PingData == nil {
		return nil, &fault.SchemaError{Err: errors.New("PING without pingData")}
	}
	return &lifecycle.Response{
		PingData: &lifecycle.PingData{Challenge: env.PingData.Challenge},
	}, nil
}

// handleConfirmation follows the platform's confirmation URL with the
// owner token. Confirmation is best-effort: a response the framework
// cannot parse, or a failing fetch, is logged and acknowledged rather
// than surfaced, since registration confirmation is at-most-once.
func (d *Dispatcher) handleConfirmation(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	if env.ConfirmationData == nil {
		return nil, &fault.SchemaError{Err: errors.New("CONFIRMATION without confirmationData")}
	}

	resp := &lifecycle.Response{ConfirmationData: &lifecycle.Ack{}}
	if d.owner == nil {
		d.log.Warn("confirmation received but no owner token configured",
			"app_id", env.ConfirmationData.AppID)
		return resp, nil
	}

	var confirmed lifecycle.Response
	err := d.owner.Get(ctx, env.ConfirmationData.ConfirmationURL, &confirmed)
	if err != nil {
		d.log.Error("confirmation follow-up failed",
			"url", env.ConfirmationData.ConfirmationURL, "error", err)
		return resp, nil
	}
	resp.TargetURL = confirmed.TargetURL
	d.log.Info("registration confirmed", "app_id", env.ConfirmationData.AppID)
	return resp, nil
}

func (d *Dispatcher) handleConfiguration(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	req := env.ConfigurationData
	if req == nil {
		return nil, &fault.SchemaError{Err: errors.New("CONFIGURATION without configurationData")}
	}

	inst, err := d.registry.Resolve(ctx, req.InstalledAppID)
	if err != nil {
		return nil, err
	}
	def := inst.Definition()

	switch req.Phase {
	case lifecycle.ConfigPhaseInitialize:
		inst.ResetDraft()
		return &lifecycle.Response{
			ConfigurationData: &lifecycle.ConfigurationResponse{
				Initialize: def.Initialize(),
			},
		}, nil

	case lifecycle.ConfigPhasePage:
		pageID := req.PageID
		if pageID == "" {
			pageID = def.FirstPageID()
		}
		// Revisiting the first page restarts the flow.
		if pageID == def.FirstPageID() {
			inst.ResetDraft()
		}
		inst.MergeDraft(req.Config)

		page, ok := def.PageByID(pageID)
		if !ok {
			return nil, &fault.SchemaError{Err: fmt.Errorf("unknown configuration page %q", pageID)}
		}
		data, err := page.Data(ctx)
		if err != nil {
			return nil, fmt.Errorf("render page %q: %w", pageID, err)
		}
		return &lifecycle.Response{
			ConfigurationData: &lifecycle.ConfigurationResponse{Page: data},
		}, nil

	default:
		return nil, &fault.SchemaError{Err: fmt.Errorf("unknown configuration phase %q", req.Phase)}
	}
}

func (d *Dispatcher) handleInstall(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	data := env.InstallData
	if data == nil || data.InstalledApp == nil {
		return nil, &fault.SchemaError{Err: errors.New("INSTALL without installedApp")}
	}

	inst, err := d.bindFromSnapshot(ctx, data.InstalledApp, data.AuthToken, data.RefreshToken)
	if err != nil {
		return nil, err
	}

	if cb := inst.Definition().Callbacks.OnInstall; cb != nil {
		d.runner.Spawn(ctx, "install", inst, func(taskCtx context.Context) error {
			return cb(taskCtx, inst, data)
		})
	}
	return &lifecycle.Response{InstallData: &lifecycle.Ack{}}, nil
}

func (d *Dispatcher) handleUpdate(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	data := env.UpdateData
	if data == nil || data.InstalledApp == nil {
		return nil, &fault.SchemaError{Err: errors.New("UPDATE without installedApp")}
	}

	inst, err := d.bindFromSnapshot(ctx, data.InstalledApp, data.AuthToken, data.RefreshToken)
	if err != nil {
		return nil, err
	}

	if cb := inst.Definition().Callbacks.OnUpdate; cb != nil {
		d.runner.Spawn(ctx, "update", inst, func(taskCtx context.Context) error {
			return cb(taskCtx, inst, data)
		})
	}
	return &lifecycle.Response{UpdateData: &lifecycle.Ack{}}, nil
}

// bindFromSnapshot is the shared install/update transition: resolve the
// instance, bind a context built from the envelope's tokens and location,
// and apply the configuration snapshot.
func (d *Dispatcher) bindFromSnapshot(ctx context.Context, snap *lifecycle.InstalledApp, authToken, refreshToken string) (*app.Instance, error) {
	inst, err := d.registry.Resolve(ctx, snap.InstalledAppID)
	if err != nil {
		return nil, err
	}

	c := &app.Context{
		AppID:        snap.InstalledAppID,
		LocationID:   snap.LocationID,
		Token:        authToken,
		RefreshToken: refreshToken,
	}
	if err := d.registry.BindContext(ctx, inst, c); err != nil {
		return nil, err
	}
	inst.ApplyConfig(snap.Config)
	return inst, nil
}

func (d *Dispatcher) handleEvent(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	data := env.EventData
	if data == nil || data.InstalledApp == nil {
		return nil, &fault.SchemaError{Err: errors.New("EVENT without installedApp")}
	}

	inst, err := d.registry.Resolve(ctx, data.InstalledApp.InstalledAppID)
	if err != nil {
		return nil, err
	}

	if cb := inst.Definition().Callbacks.OnEvent; cb != nil {
		d.runner.Spawn(ctx, "event", inst, func(taskCtx context.Context) error {
			return cb(taskCtx, inst, data)
		})
	}
	return &lifecycle.Response{EventData: &lifecycle.Ack{}}, nil
}

func (d *Dispatcher) handleOAuthCallback(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	data := env.OAuthCallbackData
	if data == nil {
		return nil, &fault.SchemaError{Err: errors.New("OAUTH_CALLBACK without oAuthCallbackData")}
	}

	inst, err := d.registry.Resolve(ctx, data.InstalledAppID)
	if err != nil {
		return nil, err
	}

	if cb := inst.Definition().Callbacks.OnOAuthCallback; cb != nil {
		d.runner.Spawn(ctx, "oauth_callback", inst, func(taskCtx context.Context) error {
			return cb(taskCtx, inst, data)
		})
	}
	return &lifecycle.Response{OAuthCallbackData: &lifecycle.Ack{}}, nil
}

// handleUninstall runs the app's uninstall callback detached, then
// removes the installation unconditionally. Removal does not wait for
// the callback and happens even when the callback fails; the failure is
// still logged by the runner.
func (d *Dispatcher) handleUninstall(ctx context.Context, env *lifecycle.Envelope) (*lifecycle.Response, error) {
	data := env.UninstallData
	if data == nil || data.InstalledApp == nil {
		return nil, &fault.SchemaError{Err: errors.New("UNINSTALL without installedApp")}
	}

	inst, err := d.registry.Resolve(ctx, data.InstalledApp.InstalledAppID)
	if err != nil {
		return nil, err
	}

	if cb := inst.Definition().Callbacks.OnUninstall; cb != nil {
		d.runner.Spawn(ctx, "uninstall", inst, func(taskCtx context.Context) error {
			return cb(taskCtx, inst, data)
		})
	}

	if err := d.registry.Teardown(ctx, inst.ID()); err != nil {
		return nil, err
	}
	return &lifecycle.Response{UninstallData: &lifecycle.Ack{}}, nil
}
