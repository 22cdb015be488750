package sse

import (
	"context"
	"testing"
	"time"

	"facegate/internal/core/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, client Client) Message {
	t.Helper()
	select {
	case msg, ok := <-client:
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHubBroadcastsFrameEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	client := make(Client, 4)
	require.True(t, hub.Register(ctx, client))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(session.FrameEvent{SessionID: "abc", Seq: 7}, nil)
	msg := receive(t, client)
	assert.Equal(t, EventFrame, msg.Event)
	require.NotNil(t, msg.Frame)
	assert.Equal(t, uint64(7), msg.Frame.Seq)

	hub.Clear()
	msg = receive(t, client)
	assert.Equal(t, EventCleared, msg.Event)
	assert.Nil(t, msg.Frame)

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	slow := make(Client)
	require.True(t, hub.Register(ctx, slow))

	hub.Clear()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-slow
	assert.False(t, ok)
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := make(Client, 1)
	require.True(t, hub.Register(ctx, client))
	cancel()
	<-done

	_, ok := <-client
	assert.False(t, ok)
	assert.False(t, hub.Register(context.Background(), make(Client)))
	hub.Unregister(client)
}
