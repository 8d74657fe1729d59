package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/pkg/logger"
	wire "birthday-wall/backend/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(logger.Discard(), []string{"*"})
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.ServeWs(func(context.Context) int { return 7 }))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSubscriberReceivesEvents(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, wire.EventHello, hello.Type)
	var h wire.Hello
	require.NoError(t, json.Unmarshal(hello.Content, &h))
	assert.Equal(t, 7, h.Count)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.MessageCreated(models.Message{Name: "Ann", Body: "hi"})
	created := readFrame(t, conn)
	assert.Equal(t, wire.EventMessageCreated, created.Type)
	var mc wire.MessageCreated
	require.NoError(t, json.Unmarshal(created.Content, &mc))
	assert.Equal(t, "Ann", mc.Message.Name)

	hub.MessagesReplaced(3, "restore")
	replaced := readFrame(t, conn)
	assert.Equal(t, wire.EventMessagesReplaced, replaced.Type)
}

func TestPingGetsPong(t *testing.T) {
	_, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(wire.Inbound{Type: "ping"}))
	assert.Equal(t, wire.EventPong, readFrame(t, conn).Type)
}

func TestClosedSubscriberIsUnregistered(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://wall.example.com"})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://wall.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}

// readUntilClosed drains frames until the server closes the socket
func readUntilClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for i := 0; i < 10; i++ {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
	return nil
}

func TestPingAfterSubscriberDropped(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Same as the hub does when a subscriber's buffer is full
	hub.mu.Lock()
	for c := range hub.clients {
		c.stop()
		delete(hub.clients, c)
	}
	hub.mu.Unlock()

	_ = conn.WriteJSON(wire.Inbound{Type: "ping"})
	_ = conn.WriteJSON(wire.Inbound{Type: "ping"})

	require.Error(t, readUntilClosed(t, conn))
	assert.Equal(t, 0, hub.Count())
}

func TestSubscribeAfterHubStopped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Discard(), []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	r := gin.New()
	r.GET("/ws", hub.ServeWs(nil))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Error(t, readUntilClosed(t, conn))
	assert.Equal(t, 0, hub.Count())
}

func TestHubShutdownClosesSubscribers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Discard(), []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.ServeWs(nil))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	_ = conn.WriteJSON(wire.Inbound{Type: "ping"})
	assert.Error(t, readUntilClosed(t, conn))
}
