package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/adapter/redisstore"
	"github.com/campfirehq/hestia/internal/app"
	"github.com/campfirehq/hestia/internal/port/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewFromClient(client)
}

// countingStore counts durable writes.
type countingStore struct {
	store.Store
	writes atomic.Int64
}

func (c *countingStore) Set(ctx context.Context, namespace, id string, value []byte) error {
	c.writes.Add(1)
	return c.Store.Set(ctx, namespace, id, value)
}

func newTestRegistry(t *testing.T, st store.Store) *Registry {
	t.Helper()
	def := app.New("hearth", "hearth-app")
	auth := NewAuthority(nil, nil, discardLogger())
	sessions := func(token string) *platform.Client {
		return platform.NewClient("http://platform.invalid", token)
	}
	return NewRegistry(def, st, auth, sessions, discardLogger())
}

func TestResolveMintsSecretWithSingleWrite(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: newTestStore(t)}
	reg := newTestRegistry(t, st)

	first, err := reg.Resolve(ctx, "inst-1")
	if err != nil {
		t.Fatal(err)
	}
	secret := first.Secret()
	if secret == "" {
		t.Fatal("resolved instance has no secret")
	}

	second, err := reg.Resolve(ctx, "inst-1")
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Error("second resolve returned a different instance")
	}
	if second.Secret() != secret {
		t.Errorf("secret changed across resolves: %q vs %q", second.Secret(), secret)
	}
	if got := st.writes.Load(); got != 1 {
		t.Errorf("durable writes = %d, want 1", got)
	}
}

func TestResolveConcurrentFirstContactSharesSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	reg := newTestRegistry(t, st)

	const n = 16
	secrets := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := reg.Resolve(ctx, "inst-race")
			if err != nil {
				t.Error(err)
				return
			}
			secrets[i] = inst.Secret()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if secrets[i] != secrets[0] {
			t.Fatalf("resolution %d got secret %q, resolution 0 got %q", i, secrets[i], secrets[0])
		}
	}
}

func TestResolveEmptyID(t *testing.T) {
	reg := newTestRegistry(t, newTestStore(t))
	if _, err := reg.Resolve(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty installation id")
	}
}

func TestContextRoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	reg := newTestRegistry(t, st)

	inst, err := reg.Resolve(ctx, "inst-rt")
	if err != nil {
		t.Fatal(err)
	}
	want := &app.Context{
		AppID:        "inst-rt",
		LocationID:   "loc-9",
		Token:        "tok-1",
		RefreshToken: "ref-1",
	}
	if err := reg.BindContext(ctx, inst, want); err != nil {
		t.Fatal(err)
	}
	secret := inst.Secret()
	if secret == "" {
		t.Fatal("bound context lost its secret")
	}

	// Same store, fresh registry: the in-memory maps are gone.
	restarted := newTestRegistry(t, st)
	inst2, err := restarted.Resolve(ctx, "inst-rt")
	if err != nil {
		t.Fatal(err)
	}
	got := inst2.Context()
	if got.Token != "tok-1" || got.RefreshToken != "ref-1" {
		t.Errorf("restored tokens = %q/%q, want tok-1/ref-1", got.Token, got.RefreshToken)
	}
	if got.Secret != secret {
		t.Errorf("restored secret = %q, want %q", got.Secret, secret)
	}
	if got.LocationID != "loc-9" {
		t.Errorf("restored location = %q, want loc-9", got.LocationID)
	}
	if inst2.Session() == nil {
		t.Error("restored instance has no session despite a stored token")
	}
}

func TestBindContextPreservesSecret(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, newTestStore(t))

	inst, err := reg.Resolve(ctx, "inst-b")
	if err != nil {
		t.Fatal(err)
	}
	secret := inst.Secret()

	// A lifecycle update carries tokens but never a secret.
	err = reg.BindContext(ctx, inst, &app.Context{Token: "t2", RefreshToken: "r2"})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Secret() != secret {
		t.Errorf("secret changed on token update: %q vs %q", inst.Secret(), secret)
	}
	if inst.Context().Token != "t2" {
		t.Errorf("token = %q, want t2", inst.Context().Token)
	}
}

func TestUpdateTokenRebuildsSession(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, newTestStore(t))

	inst, err := reg.Resolve(ctx, "inst-tok")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.BindContext(ctx, inst, &app.Context{Token: "old"}); err != nil {
		t.Fatal(err)
	}
	before := inst.Session()

	err = reg.UpdateToken(ctx, inst, &platform.Token{AccessToken: "new", RefreshToken: "newref"})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Context().Token != "new" || inst.Context().RefreshToken != "newref" {
		t.Errorf("token pair = %q/%q, want new/newref", inst.Context().Token, inst.Context().RefreshToken)
	}
	if inst.Session() == before {
		t.Error("session was not rebuilt after token change")
	}
	if inst.Session().Token() != "new" {
		t.Errorf("session token = %q, want new", inst.Session().Token())
	}
}

func TestTeardownIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	reg := newTestRegistry(t, st)

	if _, err := reg.Resolve(ctx, "inst-td"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := reg.Teardown(ctx, "inst-td"); err != nil {
			t.Fatalf("teardown %d: %v", i+1, err)
		}
	}

	if _, ok := reg.Instance("inst-td"); ok {
		t.Error("instance still registered after teardown")
	}
	if _, ok, _ := st.Get(ctx, "hearth", "inst-td"); ok {
		t.Error("context still in durable storage after teardown")
	}
}

func TestBindContextRefusedAfterTeardown(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	reg := newTestRegistry(t, st)

	inst, err := reg.Resolve(ctx, "inst-dead")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Teardown(ctx, "inst-dead"); err != nil {
		t.Fatal(err)
	}

	err = reg.BindContext(ctx, inst, &app.Context{Token: "t9"})
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("BindContext after teardown = %v, want ErrNotRegistered", err)
	}
	if _, ok, _ := st.Get(ctx, "hearth", "inst-dead"); ok {
		t.Error("context written back to durable storage after teardown")
	}
}

func TestRestoreAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	reg := newTestRegistry(t, st)

	good := &app.Context{AppID: "inst-ok", Token: "t", Secret: "s"}
	data, _ := good.Marshal()
	if err := st.Set(ctx, "hearth", "inst-ok", data); err != nil {
		t.Fatal(err)
	}
	// A record that does not decode must not sink the others.
	if err := st.Set(ctx, "hearth", "inst-bad", []byte("{corrupt")); err != nil {
		t.Fatal(err)
	}

	if err := reg.RestoreAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Instance("inst-ok"); !ok {
		t.Error("healthy installation was not restored")
	}
	if _, ok := reg.Instance("inst-bad"); ok {
		t.Error("corrupt installation should not have been restored")
	}
}

type recordingBinder struct {
	mu        sync.Mutex
	mounted   []string
	unmounted []string
}

func (b *recordingBinder) Mount(inst *app.Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mounted = append(b.mounted, inst.ID())
}

func (b *recordingBinder) Unmount(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unmounted = append(b.unmounted, id)
}

func TestRoutesFollowInstallationLifetime(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, newTestStore(t))
	binder := &recordingBinder{}
	reg.SetRouteBinder(binder)

	if _, err := reg.Resolve(ctx, "inst-r"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Teardown(ctx, "inst-r"); err != nil {
		t.Fatal(err)
	}

	if len(binder.mounted) != 1 || binder.mounted[0] != "inst-r" {
		t.Errorf("mounted = %v, want [inst-r]", binder.mounted)
	}
	if len(binder.unmounted) != 1 || binder.unmounted[0] != "inst-r" {
		t.Errorf("unmounted = %v, want [inst-r]", binder.unmounted)
	}
}
