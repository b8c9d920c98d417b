package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID string) *client {
	return &client{userID: userID, send: make(chan []byte, 16)}
}

func TestNotifyReachesAllUserConnections(t *testing.T) {
	hub := NewHub()
	c1 := newTestClient("user-1")
	c2 := newTestClient("user-1")
	other := newTestClient("user-2")
	hub.addClient(c1)
	hub.addClient(c2)
	hub.addClient(other)

	hub.Notify("user-1", "generation_completed", map[string]interface{}{"feature": "generate"})

	for _, c := range []*client{c1, c2} {
		select {
		case raw := <-c.send:
			var event Event
			require.NoError(t, json.Unmarshal(raw, &event))
			assert.Equal(t, "generation_completed", event.Type)
		default:
			t.Fatal("expected event on connection")
		}
	}

	select {
	case <-other.send:
		t.Fatal("event leaked to another user")
	default:
	}
}

func TestNotifyUnknownUserIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Notify("nobody", "generation_started", nil)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestNotifySkipsSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{userID: "user-1", send: make(chan []byte)} // unbuffered, no reader
	hub.addClient(c)

	// Must not block.
	hub.Notify("user-1", "model_completed", nil)
}

func TestRemoveClientClosesSend(t *testing.T) {
	hub := NewHub()
	c := newTestClient("user-1")
	hub.addClient(c)
	require.Equal(t, 1, hub.ConnectionCount())

	hub.removeClient(c)
	assert.Equal(t, 0, hub.ConnectionCount())

	_, open := <-c.send
	assert.False(t, open)

	// Double remove is safe.
	hub.removeClient(c)
}
