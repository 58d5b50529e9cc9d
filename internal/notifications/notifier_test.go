package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) *Notifier {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewNotifier(rdb)
}

func TestNotifier_NilClientIsNoOp(t *testing.T) {
	n := NewNotifier(nil)
	require.NoError(t, n.Publish(context.Background(), ChannelGroup(1), Event{Type: "x"}))
	require.NoError(t, n.StartSubscriber(context.Background(), func(string, []byte) {
		t.Fatal("no subscriber should run without redis")
	}))
	n.ToChannel(1, Event{Type: "x"})
	n.ToUser(1, Event{Type: "x"})
}

func TestNotifier_PublishSubscribe(t *testing.T) {
	n := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type received struct {
		group   string
		payload []byte
	}
	got := make(chan received, 4)
	require.NoError(t, n.StartSubscriber(ctx, func(group string, payload []byte) {
		got <- received{group: group, payload: payload}
	}))

	// PSubscribe needs a moment to be in place before the first publish.
	time.Sleep(50 * time.Millisecond)

	n.ToChannel(42, Event{Type: "receive_message", Payload: map[string]interface{}{"msg": "hi"}})

	select {
	case r := <-got:
		assert.Equal(t, ChannelGroup(42), r.group)
		var event Event
		require.NoError(t, json.Unmarshal(r.payload, &event))
		assert.Equal(t, "receive_message", event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}

	n.ToUser(7, Event{Type: "message_notification"})
	select {
	case r := <-got:
		assert.Equal(t, UserGroup(7), r.group)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for user event")
	}
}

func TestNotifier_BridgesIntoHub(t *testing.T) {
	n := newTestNotifier(t)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, hub.StartWiring(ctx, n))
	time.Sleep(50 * time.Millisecond)

	client, err := hub.Register(9, nil)
	require.NoError(t, err)

	n.ToUser(9, Event{Type: "force_redirect"})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-client.Send:
			var event Event
			require.NoError(t, json.Unmarshal(data, &event))
			assert.Equal(t, "force_redirect", event.Type)
			return
		case <-deadline:
			t.Fatal("event never reached the local hub client")
		}
	}
}
