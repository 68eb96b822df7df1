package ws

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

// Inbound message types sent by a view.
const (
	MessageHello   = "hello"
	MessageFix     = "fix"
	MessageFailure = "failure"
)

// Message is a frame received from a view. Hello frames announce which
// capabilities the page has; fix and failure frames relay the device sensor.
type Message struct {
	Type        string  `json:"type"`
	MapSDK      bool    `json:"map_sdk,omitempty"`
	Geolocation bool    `json:"geolocation,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
	Cause       Cause   `json:"cause,omitempty"`
	Detail      string  `json:"message,omitempty"`
}

// Cause is a failure cause as sent by a view: a name such as
// "PERMISSION_DENIED" or a GeolocationPositionError code, quoted or not.
type Cause string

// UnmarshalJSON accepts a JSON string or number.
func (c *Cause) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cause(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cause must be a string or a number: %w", err)
	}
	*c = Cause(n.String())
	return nil
}

// Position returns the fix carried by a fix message.
func (m Message) Position() tracking.GeoPosition {
	return tracking.NewGeoPosition(m.Lat, m.Lng)
}

// Failure returns the failure carried by a failure message.
func (m Message) Failure() tracking.Failure {
	return tracking.Failure{
		Cause:  tracking.ParseFailureCause(string(m.Cause)),
		Detail: m.Detail,
	}
}

// Notice variants.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notice is a toast notification rendered by the dashboard shell.
type Notice struct {
	Type    string `json:"type"` // always "toast"
	Variant string `json:"variant"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// NewNotice builds a toast notice.
func NewNotice(variant, title, message string) Notice {
	return Notice{Type: "toast", Variant: variant, Title: title, Message: message}
}

// StateMessage reports a tracker state transition to a view.
type StateMessage struct {
	Type    string         `json:"type"` // always "state"
	MountID string         `json:"mount_id"`
	State   tracking.State `json:"state"`
}

// NewStateMessage builds a state frame.
func NewStateMessage(mountID string, s tracking.State) StateMessage {
	return StateMessage{Type: "state", MountID: mountID, State: s}
}
