// Package lifecycle defines the webhook wire model: the tagged lifecycle
// envelope the platform POSTs to an app, and the response envelope the app
// returns. Request and response carry exactly one phase-named field each.
package lifecycle

// Phase is the lifecycle tag carried by every webhook call.
type Phase string

const (
	PhaseConfiguration Phase = "CONFIGURATION"
	PhaseConfirmation  Phase = "CONFIRMATION"
	PhaseInstall       Phase = "INSTALL"
	PhaseUpdate        Phase = "UPDATE"
	PhaseEvent         Phase = "EVENT"
	PhaseOAuthCallback Phase = "OAUTH_CALLBACK"
	PhaseUninstall     Phase = "UNINSTALL"
	PhasePing          Phase = "PING"
)

// ConfigPhase distinguishes the two configuration sub-phases.
type ConfigPhase string

const (
	ConfigPhaseInitialize ConfigPhase = "INITIALIZE"
	ConfigPhasePage       ConfigPhase = "PAGE"
)

// Envelope is the inbound webhook body. Exactly one of the *Data fields is
// set, matching the Lifecycle tag.
type Envelope struct {
	Lifecycle   Phase             `json:"lifecycle"`
	ExecutionID string            `json:"executionId,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	Version     string            `json:"version,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`

	ConfigurationData *ConfigurationRequest `json:"configurationData,omitempty"`
	ConfirmationData  *ConfirmationData     `json:"confirmationData,omitempty"`
	InstallData       *InstallData          `json:"installData,omitempty"`
	UpdateData        *UpdateData           `json:"updateData,omitempty"`
	EventData         *EventData            `json:"eventData,omitempty"`
	OAuthCallbackData *OAuthCallbackData    `json:"oAuthCallbackData,omitempty"`
	UninstallData     *UninstallData        `json:"uninstallData,omitempty"`
	PingData          *PingData             `json:"pingData,omitempty"`
}

// Ack is an empty acknowledgement object for the detached-task phases.
type Ack struct{}

// Response is the outbound webhook body. The populated field mirrors the
// request phase; every other field stays absent.
type Response struct {
	TargetURL string `json:"targetUrl,omitempty"`

	ConfigurationData *ConfigurationResponse `json:"configurationData,omitempty"`
	ConfirmationData  *Ack                   `json:"confirmationData,omitempty"`
	InstallData       *Ack                   `json:"installData,omitempty"`
	UpdateData        *Ack                   `json:"updateData,omitempty"`
	EventData         *Ack                   `json:"eventData,omitempty"`
	OAuthCallbackData *Ack                   `json:"oAuthCallbackData,omitempty"`
	UninstallData     *Ack                   `json:"uninstallData,omitempty"`
	PingData          *PingData              `json:"pingData,omitempty"`
}

// ConfigEntry is one value of a configuration setting. ValueType selects
// which of the typed members is present.
type ConfigEntry struct {
	ValueType    string        `json:"valueType,omitempty"`
	StringConfig *StringConfig `json:"stringConfig,omitempty"`
	DeviceConfig *DeviceConfig `json:"deviceConfig,omitempty"`
}

// StringConfig carries a free-text setting value.
type StringConfig struct {
	Value string `json:"value"`
}

// DeviceConfig carries a device-picker setting value.
type DeviceConfig struct {
	DeviceID    string `json:"deviceId"`
	ComponentID string `json:"componentId,omitempty"`
}

// ConfigMap maps setting ids to their selected values.
type ConfigMap map[string][]ConfigEntry

// InstalledApp is the platform's snapshot of one installation.
type InstalledApp struct {
	InstalledAppID string            `json:"installedAppId,omitempty"`
	LocationID     string            `json:"locationId,omitempty"`
	Config         ConfigMap         `json:"config,omitempty"`
	Permissions    []string          `json:"permissions,omitempty"`
	Settings       map[string]string `json:"settings,omitempty"`
}

// ConfigurationRequest is the configurationData variant of an inbound call.
type ConfigurationRequest struct {
	InstalledAppID string      `json:"installedAppId,omitempty"`
	LocationID     string      `json:"locationId,omitempty"`
	Phase          ConfigPhase `json:"phase"`
	PageID         string      `json:"pageId,omitempty"`
	PreviousPageID string      `json:"previousPageId,omitempty"`
	Config         ConfigMap   `json:"config,omitempty"`
}

// ConfigurationResponse is the configurationData variant of a response.
// Exactly one of Initialize or Page is set, matching the request sub-phase.
type ConfigurationResponse struct {
	Initialize *InitializeData `json:"initialize,omitempty"`
	Page       *PageData       `json:"page,omitempty"`
}

// InitializeData is the app metadata returned for the INITIALIZE sub-phase.
type InitializeData struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ID          string   `json:"id"`
	Permissions []string `json:"permissions"`
	FirstPageID string   `json:"firstPageId"`
}

// PageData is one rendered configuration page.
type PageData struct {
	PageID         string        `json:"pageId"`
	Name           string        `json:"name"`
	NextPageID     string        `json:"nextPageId,omitempty"`
	PreviousPageID string        `json:"previousPageId,omitempty"`
	Complete       bool          `json:"complete"`
	Sections       []PageSection `json:"sections,omitempty"`
}

// PageSection groups settings on a configuration page.
type PageSection struct {
	Name     string        `json:"name"`
	Settings []PageSetting `json:"settings,omitempty"`
}

// SettingType enumerates the configuration widget kinds used by pages.
type SettingType string

const (
	SettingText       SettingType = "TEXT"
	SettingParagraph  SettingType = "PARAGRAPH"
	SettingDevice     SettingType = "DEVICE"
	SettingPermission SettingType = "PERMISSION"
	SettingMode       SettingType = "MODE"
	SettingScene      SettingType = "SCENE"
	SettingEnum       SettingType = "ENUM"
	SettingNumber     SettingType = "NUMBER"
)

// SettingOption is one selectable value of an ENUM setting.
type SettingOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PageSetting is one input field on a configuration page.
type PageSetting struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Type         SettingType     `json:"type"`
	Required     bool            `json:"required"`
	Multiple     bool            `json:"multiple"`
	Options      []SettingOption `json:"options,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Permissions  []string        `json:"permissions,omitempty"`
	DefaultValue string          `json:"defaultValue,omitempty"`
}

// ConfirmationData carries the registration confirmation callback URL.
type ConfirmationData struct {
	AppID           string `json:"appId"`
	ConfirmationURL string `json:"confirmationUrl"`
}

// InstallData carries the installation snapshot and its initial tokens.
type InstallData struct {
	AuthToken    string        `json:"authToken,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	InstalledApp *InstalledApp `json:"installedApp,omitempty"`
}

// UpdateData is the INSTALL shape plus the pre-update state.
type UpdateData struct {
	AuthToken           string        `json:"authToken,omitempty"`
	RefreshToken        string        `json:"refreshToken,omitempty"`
	InstalledApp        *InstalledApp `json:"installedApp,omitempty"`
	PreviousConfig      ConfigMap     `json:"previousConfig,omitempty"`
	PreviousPermissions []string      `json:"previousPermissions,omitempty"`
}

// DeviceEvent is a device state change delivered in an EVENT call.
type DeviceEvent struct {
	SubscriptionName string `json:"subscriptionName,omitempty"`
	EventID          string `json:"eventId,omitempty"`
	LocationID       string `json:"locationId,omitempty"`
	DeviceID         string `json:"deviceId,omitempty"`
	ComponentID      string `json:"componentId,omitempty"`
	Capability       string `json:"capability,omitempty"`
	Attribute        string `json:"attribute,omitempty"`
	Value            any    `json:"value,omitempty"`
	StateChange      bool   `json:"stateChange,omitempty"`
}

// TimerEvent is a scheduled timer firing delivered in an EVENT call.
type TimerEvent struct {
	EventID string `json:"eventId,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Event is one entry in an EVENT call's event list.
type Event struct {
	EventType   string       `json:"eventType"`
	DeviceEvent *DeviceEvent `json:"deviceEvent,omitempty"`
	TimerEvent  *TimerEvent  `json:"timerEvent,omitempty"`
}

// EventData is the eventData variant of an inbound call.
type EventData struct {
	AuthToken    string        `json:"authToken,omitempty"`
	InstalledApp *InstalledApp `json:"installedApp,omitempty"`
	Events       []Event       `json:"events,omitempty"`
}

// OAuthCallbackData carries the redirect of a user-initiated OAuth flow.
type OAuthCallbackData struct {
	InstalledAppID string `json:"installedAppId"`
	URLPath        string `json:"urlPath"`
}

// UninstallData carries the final snapshot of a removed installation.
type UninstallData struct {
	InstalledApp *InstalledApp `json:"installedApp,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
}

// PingData is the connectivity challenge; the response echoes it.
type PingData struct {
	Challenge string `json:"challenge"`
}

// InstallationID returns the installation id referenced by the envelope's
// active variant, or an empty string when the phase carries none.
func (e *Envelope) InstallationID() string {
	switch {
	case e.ConfigurationData != nil:
		return e.ConfigurationData.InstalledAppID
	case e.InstallData != nil && e.InstallData.InstalledApp != nil:
		return e.InstallData.InstalledApp.InstalledAppID
	case e.UpdateData != nil && e.UpdateData.InstalledApp != nil:
		return e.UpdateData.InstalledApp.InstalledAppID
	case e.EventData != nil && e.EventData.InstalledApp != nil:
		return e.EventData.InstalledApp.InstalledAppID
	case e.OAuthCallbackData != nil:
		return e.OAuthCallbackData.InstalledAppID
	case e.UninstallData != nil && e.UninstallData.InstalledApp != nil:
		return e.UninstallData.InstalledApp.InstalledAppID
	}
	return ""
}

// Values flattens a ConfigMap to setting id -> scalar values, the shape
// instances keep as their latest configuration.
func (m ConfigMap) Values() map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for id, entries := range m {
		vals := make([]string, 0, len(entries))
		for _, e := range entries {
			switch {
			case e.StringConfig != nil:
				vals = append(vals, e.StringConfig.Value)
			case e.DeviceConfig != nil:
				vals = append(vals, e.DeviceConfig.DeviceID)
			}
		}
		out[id] = vals
	}
	return out
}
