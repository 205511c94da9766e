package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campfirehq/hestia/internal/fault"
	"github.com/campfirehq/hestia/internal/resilience"
)

func TestDoSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123")
	var out struct {
		Items []Subscription `json:"items"`
	}
	if err := c.Do(context.Background(), http.MethodGet, "/installedapps/abc/subscriptions", nil, &out); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
}

func TestDo401MapsToAuthInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired")
	err := c.Do(context.Background(), http.MethodGet, "/devices", nil, nil)
	if !errors.Is(err, fault.ErrAuthInvalid) {
		t.Errorf("err = %v, want ErrAuthInvalid", err)
	}
	if fault.Classify(err) != fault.KindAuthInvalid {
		t.Errorf("Classify = %v, want KindAuthInvalid", fault.Classify(err))
	}
}

func TestDoNon2xxMapsToUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("gateway down"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	err := c.Do(context.Background(), http.MethodGet, "/devices", nil, nil)

	var upstream *fault.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want *fault.UpstreamError", err)
	}
	if upstream.Status != http.StatusBadGateway || upstream.Body != "gateway down" {
		t.Errorf("upstream = %+v", upstream)
	}
}

func TestDoBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	c.SetBreaker(resilience.NewBreaker(2, time.Minute))

	ctx := context.Background()
	_ = c.Do(ctx, http.MethodGet, "/a", nil, nil)
	_ = c.Do(ctx, http.MethodGet, "/a", nil, nil)

	err := c.Do(ctx, http.MethodGet, "/a", nil, nil)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestInstalledAppSubscribe(t *testing.T) {
	var gotPath string
	var gotBody SubscriptionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(Subscription{ID: "sub-1"})
	}))
	defer srv.Close()

	api := NewInstalledApp(NewClient(srv.URL, "tok"), "abc")
	sub, err := api.Subscribe(context.Background(), SubscriptionRequest{
		SourceType: SourceDevice,
		Device: &DeviceSubscription{
			DeviceID:         "dev-1",
			Capability:       "contactSensor",
			SubscriptionName: "s_1",
			StateChangeOnly:  true,
			Modes:            []string{},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.ID != "sub-1" {
		t.Errorf("sub.ID = %q, want sub-1", sub.ID)
	}
	if gotPath != "/installedapps/abc/subscriptions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.SourceType != SourceDevice || gotBody.Device == nil || gotBody.Device.DeviceID != "dev-1" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestOAuthRefreshSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "r1" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		_, _ = w.Write([]byte(`{"access_token":"t2","refresh_token":"r2"}`))
	}))
	defer srv.Close()

	c := newTestOAuthClient(srv.URL)
	tok, err := c.Refresh(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "t2" || tok.RefreshToken != "r2" {
		t.Errorf("token = %+v, want t2/r2", tok)
	}
}

func TestOAuthRefreshRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	c := newTestOAuthClient(srv.URL)
	_, err := c.Refresh(context.Background(), "r1")
	if !errors.Is(err, fault.ErrAuthInvalid) {
		t.Errorf("err = %v, want ErrAuthInvalid", err)
	}
}

func TestOAuthRefreshUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"temporarily_unavailable","error_description":"try later"}`))
	}))
	defer srv.Close()

	c := newTestOAuthClient(srv.URL)
	_, err := c.Refresh(context.Background(), "r1")

	var upstream *fault.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want *fault.UpstreamError", err)
	}
	if upstream.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", upstream.Status)
	}
}

func TestOAuthRefreshMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestOAuthClient(srv.URL)
	_, err := c.Refresh(context.Background(), "r1")
	if fault.Classify(err) != fault.KindSchema {
		t.Errorf("Classify = %v, want KindSchema", fault.Classify(err))
	}
}

func newTestOAuthClient(tokenURL string) *OAuthClient {
	return &OAuthClient{
		tokenURL:     tokenURL,
		clientID:     "client-id",
		clientSecret: "client-secret",
		httpClient:   &http.Client{},
	}
}
