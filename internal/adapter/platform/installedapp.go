package platform

import (
	"context"
	"fmt"
	"net/http"
)

// SubscriptionSource enumerates what a subscription listens to.
type SubscriptionSource string

const (
	SourceDevice         SubscriptionSource = "DEVICE"
	SourceCapability     SubscriptionSource = "CAPABILITY"
	SourceMode           SubscriptionSource = "MODE"
	SourceDeviceLifecycle SubscriptionSource = "DEVICE_LIFECYCLE"
	SourceSceneLifecycle SubscriptionSource = "SCENE_LIFECYCLE"
)

// DeviceSubscription selects device events by device and capability.
type DeviceSubscription struct {
	DeviceID         string   `json:"deviceId,omitempty"`
	ComponentID      string   `json:"componentId,omitempty"`
	Capability       string   `json:"capability,omitempty"`
	Attribute        string   `json:"attribute,omitempty"`
	Value            string   `json:"value,omitempty"`
	Modes            []string `json:"modes"`
	LocationID       string   `json:"locationId,omitempty"`
	SubscriptionName string   `json:"subscriptionName,omitempty"`
	StateChangeOnly  bool     `json:"stateChangeOnly"`
}

// CapabilitySubscription selects events by capability across a location.
type CapabilitySubscription struct {
	Capability       string   `json:"capability"`
	Attribute        string   `json:"attribute,omitempty"`
	Modes            []string `json:"modes"`
	LocationID       string   `json:"locationId,omitempty"`
	SubscriptionName string   `json:"subscriptionName,omitempty"`
	StateChangeOnly  bool     `json:"stateChangeOnly"`
}

// SubscriptionRequest is the create-subscription payload.
type SubscriptionRequest struct {
	SourceType SubscriptionSource      `json:"sourceType"`
	Device     *DeviceSubscription     `json:"device,omitempty"`
	Capability *CapabilitySubscription `json:"capability,omitempty"`
}

// Subscription is the platform's record of a created subscription.
type Subscription struct {
	ID         string             `json:"id"`
	AppID      string             `json:"installedAppId,omitempty"`
	SourceType SubscriptionSource `json:"sourceType,omitempty"`
}

// AppEvent is an app-emitted event visible to automations.
type AppEvent struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// InstalledApp exposes the per-installation platform API surface through a
// token-bound client.
type InstalledApp struct {
	client *Client
	appID  string
}

// NewInstalledApp binds the installed-app API to an installation id.
func NewInstalledApp(client *Client, appID string) *InstalledApp {
	return &InstalledApp{client: client, appID: appID}
}

// Subscribe creates a subscription for this installation.
func (a *InstalledApp) Subscribe(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	var sub Subscription
	path := fmt.Sprintf("/installedapps/%s/subscriptions", a.appID)
	if err := a.client.Do(ctx, http.MethodPost, path, req, &sub); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &sub, nil
}

// Subscriptions lists this installation's subscriptions.
func (a *InstalledApp) Subscriptions(ctx context.Context) ([]Subscription, error) {
	var out struct {
		Items []Subscription `json:"items"`
	}
	path := fmt.Sprintf("/installedapps/%s/subscriptions", a.appID)
	if err := a.client.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out.Items, nil
}

// Unsubscribe deletes one subscription by id.
func (a *InstalledApp) Unsubscribe(ctx context.Context, id string) error {
	path := fmt.Sprintf("/installedapps/%s/subscriptions/%s", a.appID, id)
	if err := a.client.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", id, err)
	}
	return nil
}

// UnsubscribeAll deletes every subscription of this installation.
func (a *InstalledApp) UnsubscribeAll(ctx context.Context) error {
	path := fmt.Sprintf("/installedapps/%s/subscriptions", a.appID)
	if err := a.client.Do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("unsubscribe all: %w", err)
	}
	return nil
}

// SendEvent emits a SmartApp event from this installation.
func (a *InstalledApp) SendEvent(ctx context.Context, evt AppEvent) error {
	body := struct {
		SmartAppEvents []AppEvent `json:"smartAppEvents"`
	}{SmartAppEvents: []AppEvent{evt}}
	path := fmt.Sprintf("/installedapps/%s/events", a.appID)
	if err := a.client.Do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	return nil
}
