package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads one queued message from the client's send buffer, or nil when
// nothing is queued.
func drain(c *Client) []byte {
	select {
	case data := <-c.Send:
		return data
	default:
		return nil
	}
}

func TestHub_RegisterAndUserGroup(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(7, nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, uint(7), client.UserID)
	assert.True(t, hub.IsOnline(7))
	assert.False(t, hub.IsOnline(8))

	// Registration subscribes the private user group.
	assert.Equal(t, 1, hub.GroupSize(UserGroup(7)))

	hub.ToUser(7, Event{Type: "ping"})
	data := drain(client)
	require.NotNil(t, data)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "ping", event.Type)
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(1, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(1, nil)
	require.Error(t, err)

	// Other users are unaffected.
	_, err = hub.Register(2, nil)
	assert.NoError(t, err)
}

func TestHub_GroupPublish(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(2, nil)
	require.NoError(t, err)
	c, err := hub.Register(3, nil)
	require.NoError(t, err)

	group := ChannelGroup(42)
	hub.JoinGroup(a, group)
	hub.JoinGroup(b, group)
	assert.Equal(t, 2, hub.GroupSize(group))

	hub.ToChannel(42, Event{Type: "receive_message"})
	assert.NotNil(t, drain(a))
	assert.NotNil(t, drain(b))
	assert.Nil(t, drain(c))

	hub.LeaveGroup(b, group)
	assert.Equal(t, 1, hub.GroupSize(group))
	hub.ToChannel(42, Event{Type: "receive_message"})
	assert.NotNil(t, drain(a))
	assert.Nil(t, drain(b))
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(1, nil)
	require.NoError(t, err)

	group := ChannelGroup(5)
	hub.JoinGroup(a, group)

	hub.UnregisterClient(a)
	assert.Equal(t, 0, hub.GroupSize(group))
	// The user is still online through the second connection.
	assert.True(t, hub.IsOnline(1))

	hub.UnregisterClient(b)
	assert.False(t, hub.IsOnline(1))

	// Unregistering twice is harmless.
	hub.UnregisterClient(b)
	assert.False(t, hub.IsOnline(1))
}

func TestHub_BackpressureDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(1, nil)
	require.NoError(t, err)

	// Fill the send buffer without a reader attached.
	payload := Event{Type: "receive_message"}.Marshal()
	for i := 0; i < cap(client.Send); i++ {
		client.TrySend(payload)
	}

	// This publish must return instead of blocking on the full buffer.
	hub.ToUser(1, Event{Type: "receive_message"})
	assert.Len(t, client.Send, cap(client.Send))

	// Once the queue has room again the next send also flushes a gap
	// notice carrying the number of messages lost.
	<-client.Send
	<-client.Send
	hub.ToUser(1, Event{Type: "receive_message"})
	assert.Len(t, client.Send, cap(client.Send))

	var notice Event
	require.NoError(t, json.Unmarshal(<-lastOf(client.Send), &notice))
	assert.Equal(t, "messages_dropped", notice.Type)
	payloadMap := notice.Payload.(map[string]interface{})
	assert.Equal(t, "buffer_full", payloadMap["reason"])
	assert.Equal(t, float64(1), payloadMap["dropped"])
}

// lastOf drains the channel down to its final buffered element.
func lastOf(ch chan []byte) chan []byte {
	for len(ch) > 1 {
		<-ch
	}
	return ch
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub()

	_, err := hub.Register(1, nil)
	require.NoError(t, err)
	_, err = hub.Register(2, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.False(t, hub.IsOnline(1))
	assert.False(t, hub.IsOnline(2))

	// The hub is reusable after shutdown.
	_, err = hub.Register(1, nil)
	assert.NoError(t, err)
}
