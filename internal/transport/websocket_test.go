// SPDX-License-Identifier: MIT
package transport

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchtrack/internal/event"
	"pitchtrack/internal/metrics"
)

func dialEvents(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", 0, metrics.New())
	require.NoError(t, err)
	defer wst.Close()
	assert.Equal(t, "websocket", wst.Name())

	a := dialEvents(t, wst)
	b := dialEvents(t, wst)
	require.Eventually(t, func() bool { return wst.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	want := sampleEvent(7)
	require.NoError(t, wst.Publish(want))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got event.PitchDetected
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, want.Sequence, got.Sequence)
		assert.Equal(t, "A", got.NoteName)
		assert.Equal(t, 4, got.Octave)
		assert.InDelta(t, 440.0, got.FrequencyHz, 1e-9)
		assert.True(t, want.Timestamp.Equal(got.Timestamp))
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", 0, nil)
	require.NoError(t, err)
	defer wst.Close()

	conn := dialEvents(t, wst)
	require.Eventually(t, func() bool { return wst.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return wst.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", 0, nil)
	require.NoError(t, err)

	conn := dialEvents(t, wst)
	require.Eventually(t, func() bool { return wst.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, wst.Close())
	assert.NoError(t, wst.Close(), "second close is a no-op")
	assert.NoError(t, wst.Publish(sampleEvent(0)), "publish after close is a no-op")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketListenError(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", 0, nil)
	require.NoError(t, err)
	defer wst.Close()

	_, err = NewWebSocketTransport(wst.Addr(), 0, nil)
	assert.Error(t, err)
}

func TestWebSocketQueueSize(t *testing.T) {
	for _, tt := range []struct{ size, want int }{{0, DefaultQueueSize}, {-1, DefaultQueueSize}, {8, 8}} {
		wst, err := NewWebSocketTransport("127.0.0.1:0", tt.size, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cap(wst.broadcast), "queue size %d", tt.size)
		require.NoError(t, wst.Close())
	}
}
