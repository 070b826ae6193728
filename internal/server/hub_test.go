package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/internal/domain"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func receiveFrame(t *testing.T, c *Client) chat.Frame {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var f chat.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return chat.Frame{}
	}
}

func TestHub_PublishToSubscribers(t *testing.T) {
	hub, _ := runHub(t)
	cfg := chat.DefaultWebsocketConfig()

	a := NewClient("a", hub, nil, cfg, "")
	b := NewClient("b", hub, nil, cfg, "")
	require.True(t, hub.Register(a))
	require.True(t, hub.Register(b))

	hub.Subscribe(a, "/topic/public")
	hub.Subscribe(b, "/topic/public")
	hub.Subscribe(b, "/user/bob/queue/private")
	assert.Equal(t, 2, hub.SubscriberCount("/topic/public"))
	assert.Equal(t, 2, hub.ClientCount())

	msg := domain.NewChat("alice", "hello")
	require.NoError(t, hub.Publish("/user/bob/queue/private", chat.Frame{Command: chat.CmdMessage, Body: &msg}))

	f := receiveFrame(t, b)
	assert.Equal(t, chat.CmdMessage, f.Command)
	assert.Equal(t, "/user/bob/queue/private", f.Destination)
	assert.Equal(t, "hello", f.Body.Content)

	require.NoError(t, hub.Publish("/topic/public", chat.Frame{Command: chat.CmdMessage, Body: &msg}))
	assert.Equal(t, "/topic/public", receiveFrame(t, a).Destination)
	assert.Equal(t, "/topic/public", receiveFrame(t, b).Destination)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub, _ := runHub(t)

	c := NewClient("c", hub, nil, chat.DefaultWebsocketConfig(), "")
	require.True(t, hub.Register(c))
	hub.Subscribe(c, "/topic/public")

	hub.Unregister(c)

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Equal(t, 0, hub.SubscriberCount("/topic/public"))
	assert.NoError(t, c.SendFrame(chat.Frame{Command: chat.CmdError}), "sending after close is a no-op")
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub, cancel := runHub(t)

	c := NewClient("c", hub, nil, chat.DefaultWebsocketConfig(), "")
	require.True(t, hub.Register(c))
	cancel()

	assert.Eventually(t, func() bool {
		return !hub.Register(NewClient("late", hub, nil, chat.DefaultWebsocketConfig(), ""))
	}, time.Second, 10*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok)
}
