package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCloudEventRoundTrip(t *testing.T) {
	id := uuid.New()
	evt, err := NewCloudEvent("fleet-dashboard", ViewMounted, "fleet-map", ViewMountedEvent{
		SessionID:   id,
		MountID:     "fleet-map",
		MapSDK:      true,
		Geolocation: false,
	})
	require.NoError(t, err)
	require.Equal(t, "1.0", evt.SpecVersion)
	require.NotEmpty(t, evt.ID)

	msg, err := toMessage(DefaultTopic, evt)
	require.NoError(t, err)
	require.Equal(t, DefaultTopic, msg.Topic)
	require.Equal(t, []byte("fleet-map"), msg.Key)
	require.Equal(t, "ce_type", msg.Headers[0].Key)
	require.Equal(t, []byte(ViewMounted), msg.Headers[0].Value)

	parsed, err := ParseCloudEvent(msg.Value)
	require.NoError(t, err)
	require.Equal(t, evt.ID, parsed.ID)
	require.Equal(t, ViewMounted, parsed.Type)

	var data ViewMountedEvent
	require.NoError(t, parsed.ParseData(&data))
	require.Equal(t, id, data.SessionID)
	require.True(t, data.MapSDK)
}

func TestParseCloudEventRejectsIncomplete(t *testing.T) {
	_, err := ParseCloudEvent([]byte(`{"specversion":"1.0"}`))
	require.Error(t, err)

	_, err = ParseCloudEvent([]byte(`not json`))
	require.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	require.NoError(t, p.PublishEvent(context.Background(), DefaultTopic, &CloudEvent{}))
	require.NoError(t, p.Close())
}
