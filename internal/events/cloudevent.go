package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Event types published by the dashboard.
const (
	ViewMounted         = "fleet.view.mounted"
	ViewUnmounted       = "fleet.view.unmounted"
	TrackerStateChanged = "fleet.tracker.state_changed"
)

// NoticePublished is consumed from the notice topic.
const NoticePublished = "fleet.notice.published"

const (
	// DefaultTopic is the Kafka topic lifecycle events are written to.
	DefaultTopic = "fleet.tracker.events"

	// DefaultNoticeTopic is the Kafka topic operator notices are read from.
	DefaultNoticeTopic = "fleet.dashboard.notices"
)

var validate = validator.New()

// CloudEvent is a CloudEvents 1.0 envelope in structured JSON mode.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// NewCloudEvent wraps data in a CloudEvent envelope.
func NewCloudEvent(source, eventType, subject string, data interface{}) (*CloudEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return &CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          source,
		Type:            eventType,
		Subject:         subject,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            raw,
	}, nil
}

// ParseCloudEvent decodes an envelope from a message value.
func ParseCloudEvent(value []byte) (*CloudEvent, error) {
	var evt CloudEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return nil, fmt.Errorf("failed to parse cloud event: %w", err)
	}
	if evt.Type == "" || evt.ID == "" {
		return nil, fmt.Errorf("cloud event is missing id or type")
	}
	return &evt, nil
}

// ParseData decodes the event payload into v.
func (e *CloudEvent) ParseData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}
	return nil
}

// ViewMountedEvent is published when a view mounts.
type ViewMountedEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	MountID     string    `json:"mount_id"`
	MapSDK      bool      `json:"map_sdk"`
	Geolocation bool      `json:"geolocation"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ViewUnmountedEvent is published when a view unmounts.
type ViewUnmountedEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	MountID    string    `json:"mount_id"`
	FinalPhase string    `json:"final_phase"`
	FixCount   int64     `json:"fix_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TrackerStateChangedEvent is published on every tracker transition.
type TrackerStateChangedEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	MountID    string    `json:"mount_id"`
	Phase      string    `json:"phase"`
	Kind       string    `json:"kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NoticePublishedEvent asks every dashboard to show a toast.
type NoticePublishedEvent struct {
	Variant string `json:"variant" validate:"required,oneof=info error"`
	Title   string `json:"title" validate:"required,max=80"`
	Message string `json:"message" validate:"required,max=280"`
}

// Validate checks the notice fields.
func (e NoticePublishedEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid notice: %w", err)
	}
	return nil
}
