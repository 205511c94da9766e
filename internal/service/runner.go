package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/campfirehq/hestia/internal/adapter/otelx"
	"github.com/campfirehq/hestia/internal/app"
	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/logger"
)

const defaultTaskTimeout = 10 * time.Second

// Runner executes app callbacks as detached tasks: off the webhook
// response path, under a deadline, with centralized failure handling.
// Nothing a task does propagates to its spawner.
type Runner struct {
	timeout   time.Duration
	registry  *Registry
	authority *Authority
	metrics   *otelx.Metrics
	log       *slog.Logger
	wg        sync.WaitGroup
}

// NewRunner creates a runner. A zero timeout selects the default.
func NewRunner(registry *Registry, authority *Authority, timeout time.Duration, metrics *otelx.Metrics, log *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Runner{
		timeout:   timeout,
		registry:  registry,
		authority: authority,
		metrics:   metrics,
		log:       log,
	}
}

// Handle tracks one detached task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the task early.
func (h *Handle) Cancel() { h.cancel() }

// Done closes when the task and its finalizer have finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Spawn runs fn as a detached task and returns immediately. The task
// inherits the caller's context values but not its cancellation, so a
// webhook response going out does not kill the callback it triggered.
// On failure the finalizer classifies the error: an auth rejection gets
// one token refresh for the instance, nothing more; everything else is
// logged and dropped.
func (r *Runner) Spawn(ctx context.Context, name string, inst *app.Instance, fn func(context.Context) error) *Handle {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer close(h.done)

		err := r.run(taskCtx, fn)
		if err == nil {
			return
		}
		// The task's own error wins. A bare cancellation is reinterpreted
		// as a timeout only when the deadline is what fired.
		if errors.Is(err, context.Canceled) && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			err = context.DeadlineExceeded
		}
		r.finalize(taskCtx, name, inst, err)
	}()
	return h
}

// Wait blocks until every spawned task has finished. Called on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run invokes fn, converting a panic into an error so an app-author bug
// inside a callback cannot take the process down.
func (r *Runner) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// finalize is the single failure path for detached work.
func (r *Runner) finalize(ctx context.Context, name string, inst *app.Instance, err error) {
	kind := fault.Classify(err)
	r.metrics.CountTaskFailure(ctx, kind.String())

	log := r.log.With("task", name, "kind", kind.String())
	if inst != nil {
		log = log.With("installation_id", inst.ID())
	}
	if execID := logger.ExecutionID(ctx); execID != "" {
		log = log.With("execution_id", execID)
	}

	switch kind {
	case fault.KindAuthInvalid:
		log.Warn("task rejected for auth, refreshing token", "error", err)
		r.renewToken(ctx, inst)
	case fault.KindUpstream, fault.KindTimeout, fault.KindSchema:
		log.Error("task failed", "error", err)
	default:
		var p *panicError
		if errors.As(err, &p) {
			log.Error("task panicked", "panic", p.value, "stack", string(p.stack))
			return
		}
		log.Error("task failed with unclassified error",
			"error", err, "error_type", fmt.Sprintf("%T", err), "stack", string(debug.Stack()))
	}
}

// panicError carries a recovered panic and the stack where it happened.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// renewToken is the one-shot auth remediation: refresh the installation's
// access token so the next call succeeds. The failed task is not re-run.
// The refresh runs under its own deadline; the task's context may already
// be expired when the auth rejection surfaces.
func (r *Runner) renewToken(ctx context.Context, inst *app.Instance) {
	if inst == nil || r.authority == nil || r.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	tok, err := r.authority.Refresh(ctx, inst.RefreshToken())
	if err != nil {
		r.log.Error("token remediation failed", "installation_id", inst.ID(), "error", err)
		return
	}
	if err := r.registry.UpdateToken(ctx, inst, tok); err != nil {
		r.log.Error("refreshed token not applied", "installation_id", inst.ID(), "error", err)
	}
}
