package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/config"
	"vessel-racer/internal/protocol"
)

func startHub(t *testing.T, cfg Config) (*Hub, string) {
	t.Helper()
	hub := NewHub(cfg)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, protocolID uint64) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := DefaultClientConfig()
	cfg.ProtocolID = protocolID
	c, err := Dial(ctx, url, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitInbox drains the hub until n entries have arrived.
func waitInbox(t *testing.T, hub *Hub, n int) []Inbound {
	t.Helper()
	var got []Inbound
	require.Eventually(t, func() bool {
		got = append(got, hub.Drain()...)
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestHandshakeAssignsIDs(t *testing.T) {
	hub, url := startHub(t, DefaultConfig())
	a := dial(t, url, 0)
	b := dial(t, url, 0)

	assert.NotZero(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	events := waitInbox(t, hub, 2)
	assert.Equal(t, EventConnect, events[0].Kind)
	assert.Equal(t, EventConnect, events[1].Kind)
	assert.Equal(t, 2, hub.ClientCount())
}

func TestMessagesArriveInOrderBetweenConnectAndDisconnect(t *testing.T) {
	hub, url := startHub(t, DefaultConfig())
	c := dial(t, url, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(&protocol.Control{Axis: mgl32.Vec2{float32(i) / 10, 0}}))
	}
	require.NoError(t, c.Close())

	events := waitInbox(t, hub, 7)
	require.Len(t, events, 7)
	assert.Equal(t, EventConnect, events[0].Kind)
	for i := 1; i <= 5; i++ {
		require.Equal(t, EventMessage, events[i].Kind)
		ctrl := events[i].Msg.(*protocol.Control)
		assert.InDelta(t, float32(i-1)/10, ctrl.Axis[0], 1e-6)
		assert.Equal(t, c.ID(), events[i].Client)
	}
	assert.Equal(t, EventDisconnect, events[6].Kind)
}

func TestServerSendReachesClient(t *testing.T) {
	hub, url := startHub(t, DefaultConfig())
	c := dial(t, url, 0)
	waitInbox(t, hub, 1)

	data, err := hub.Encode(&protocol.ReplicationFrame{Tick: 7, Despawns: nil, Updates: []protocol.EntityUpdate{{ServerEntity: 3}}})
	require.NoError(t, err)
	require.NoError(t, hub.Send(c.ID(), data, true))

	var got []protocol.Message
	require.Eventually(t, func() bool {
		got = append(got, c.Drain()...)
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(7), got[0].(*protocol.ReplicationFrame).Tick)

	err = hub.Send(999, data, false)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestProtocolMismatchIsRejected(t *testing.T) {
	hub, url := startHub(t, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := DefaultClientConfig()
	cfg.ProtocolID = 42
	_, err := Dial(ctx, url, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshake))
	assert.Zero(t, hub.ClientCount())
	assert.Empty(t, hub.Drain())
}

func TestNonHelloOpeningIsRejected(t *testing.T) {
	_, url := startHub(t, DefaultConfig())
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	data, err := protocol.NewCodec(0).Encode(&protocol.Control{})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, data))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestMaxClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 1
	hub, url := startHub(t, cfg)
	dial(t, url, 0)
	waitInbox(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestKickDisconnects(t *testing.T) {
	hub, url := startHub(t, DefaultConfig())
	c := dial(t, url, 0)
	waitInbox(t, hub, 1)

	hub.Kick(c.ID())
	events := waitInbox(t, hub, 1)
	assert.Equal(t, EventDisconnect, events[0].Kind)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the kick")
	}
}

func TestMessageFloodClosesConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MessagesPerSecond = 0.001
	cfg.MessageBurst = 2
	hub, url := startHub(t, cfg)
	c := dial(t, url, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Send(&protocol.Control{Axis: mgl32.Vec2{1, 0}}))
	}

	events := waitInbox(t, hub, 4)
	require.Len(t, events, 4)
	assert.Equal(t, EventConnect, events[0].Kind)
	assert.Equal(t, EventMessage, events[1].Kind)
	assert.Equal(t, EventMessage, events[2].Kind)
	assert.Equal(t, EventDisconnect, events[3].Kind)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client was not disconnected")
	}
}

func TestConnLimiter(t *testing.T) {
	l := NewConnLimiter(2)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))
	l.Release("1.2.3.4")
	assert.Equal(t, 1, l.Count("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.Equal(t, uint64(1), l.Rejected())
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))
	r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	assert.Equal(t, "9.9.9.9", ClientIP(r))
}

func TestConfigFrom(t *testing.T) {
	app := config.Default()
	app.Server.MaxClients = 3
	app.Network.ProtocolID = 9
	app.Network.ControlRate = 30

	cfg := ConfigFrom(app.Server, app.Network)
	assert.Equal(t, 3, cfg.MaxClients)
	assert.Equal(t, uint64(9), cfg.ProtocolID)
	assert.Equal(t, 30.0, cfg.MessagesPerSecond)
	assert.Equal(t, DefaultConfig().InboxSize, cfg.InboxSize)

	cc := ClientConfigFrom(app.Network)
	assert.Equal(t, uint64(9), cc.ProtocolID)
	assert.Equal(t, app.Network.HandshakeTimeout, cc.HandshakeTimeout)
}
