package app

import "encoding/json"

// Context is the per-installation credential record. The serialized form
// is what the registry persists to the context store; the JSON field names
// are the store's record layout and must not change.
type Context struct {
	AppID        string `json:"app_id"`
	LocationID   string `json:"location_id,omitempty"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Secret       string `json:"secret,omitempty"`
}

// Marshal serializes the context for storage.
func (c *Context) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalContext deserializes a stored context record.
func UnmarshalContext(data []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
