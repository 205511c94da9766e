package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/app"
	"github.com/campfirehq/hestia/internal/domain/lifecycle"
)

// buildApp assembles the reference app: one device picker page, a label
// page, a motion-event subscription established on install, and an
// auth-gated status route.
func buildApp(log *slog.Logger) *app.Definition {
	def := app.New("hestia-demo", "hestia-demo").
		Grant("r:devices:*", "w:devices:*", "r:locations:*")

	def.Page("Device").
		Section("Device Choice").
		Setting("someDevice", "Some Device", lifecycle.SettingDevice).
		Capabilities("motionSensor").
		Required()

	def.Page("Label").
		Section("New Label").
		Setting("deviceLabel", "Device Label", lifecycle.SettingText)

	def.Callbacks.OnInstall = func(ctx context.Context, inst *app.Instance, data *lifecycle.InstallData) error {
		_, err := inst.API().Subscribe(ctx, platform.SubscriptionRequest{
			SourceType: platform.SourceDevice,
			Device: &platform.DeviceSubscription{
				DeviceID:        inst.ConfigValue("someDevice"),
				Capability:      "motionSensor",
				Attribute:       "motion",
				StateChangeOnly: true,
			},
		})
		return err
	}

	def.Callbacks.OnUpdate = func(ctx context.Context, inst *app.Instance, data *lifecycle.UpdateData) error {
		if err := inst.API().UnsubscribeAll(ctx); err != nil {
			return err
		}
		_, err := inst.API().Subscribe(ctx, platform.SubscriptionRequest{
			SourceType: platform.SourceDevice,
			Device: &platform.DeviceSubscription{
				DeviceID:        inst.ConfigValue("someDevice"),
				Capability:      "motionSensor",
				Attribute:       "motion",
				StateChangeOnly: true,
			},
		})
		return err
	}

	def.Callbacks.OnEvent = func(ctx context.Context, inst *app.Instance, data *lifecycle.EventData) error {
		for _, evt := range data.Events {
			if evt.DeviceEvent == nil {
				continue
			}
			log.Info("device event",
				"installation_id", inst.ID(),
				"device_id", evt.DeviceEvent.DeviceID,
				"attribute", evt.DeviceEvent.Attribute,
				"value", evt.DeviceEvent.Value,
			)
		}
		return nil
	}

	def.Route(http.MethodGet, "/status", func(inst *app.Instance, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"installation": inst.ID(),
			"location":     inst.LocationID(),
			"config":       inst.Config(),
		})
	}).RequireAuth()

	return def
}
