package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	_, a := hub.Subscribe(4)
	_, b := hub.Subscribe(4)

	hub.Publish(TypeInstance, nil)

	evtA := <-a
	evtB := <-b
	assert.Equal(t, TypeInstance, evtA.Type)
	assert.Equal(t, TypeInstance, evtB.Type)
	assert.NotEmpty(t, evtA.ID)
	assert.False(t, evtA.Timestamp.IsZero())
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	_, ch := hub.Subscribe(1)

	hub.Publish(TypeLog, LogLine{Level: "info", Message: "one"})
	hub.Publish(TypeLog, LogLine{Level: "info", Message: "two"}) // dropped

	evt := <-ch
	line, ok := evt.Payload.(LogLine)
	require.True(t, ok)
	assert.Equal(t, "one", line.Message)

	select {
	case <-ch:
		t.Error("second event should have been dropped")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	id, ch := hub.Subscribe(1)
	require.Equal(t, 1, hub.Subscribers())

	hub.Unsubscribe(id)
	assert.Equal(t, 0, hub.Subscribers())

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is harmless
	hub.Publish(TypeGuard, nil)
}

func TestPublishLogCarriesProfile(t *testing.T) {
	hub := NewHub()
	_, ch := hub.Subscribe(1)

	id := 7
	hub.PublishLog("warn", "something happened", &id)

	evt := <-ch
	require.Equal(t, TypeLog, evt.Type)
	line := evt.Payload.(LogLine)
	require.NotNil(t, line.ProfileID)
	assert.Equal(t, 7, *line.ProfileID)
}
