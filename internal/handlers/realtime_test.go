package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/marketsync/internal/realtime"
)

func newRealtimeServer(t *testing.T, hub *realtime.Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewRealtimeHandler(hub, realtime.StreamSyncStatus, realtime.StreamCacheEvents)
	router := gin.New()
	router.GET("/ws", handler.Stream)
	router.GET("/ws/:stream", handler.Stream)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRealtimeHandlerDefaultsToSyncStatus(t *testing.T) {
	hub := realtime.NewHub(realtime.KnownStreams())
	base := newRealtimeServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return hub.Subscribers(realtime.StreamSyncStatus) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastStream(realtime.StreamSyncStatus, realtime.Message{Event: "connectivity.changed"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "connectivity.changed", msg.Event)
}

func TestRealtimeHandlerStreamsQuery(t *testing.T) {
	hub := realtime.NewHub(realtime.KnownStreams())
	base := newRealtimeServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws?streams=sync.status,cache.events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return hub.Subscribers(realtime.StreamCacheEvents) == 1 && hub.Subscribers(realtime.StreamSyncStatus) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeHandlerRejectsUnknownStream(t *testing.T) {
	hub := realtime.NewHub(realtime.KnownStreams())
	base := newRealtimeServer(t, hub)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/notifications", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
