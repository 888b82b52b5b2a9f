package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"vessel-racer/internal/input"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/transport"
	"vessel-racer/internal/vessel"
)

// fakeHub records what a server engine sends and feeds it inbound events.
// Payloads go through the real codec.
type fakeHub struct {
	t       testing.TB
	codec   *protocol.Codec
	discard bool // benchmarks: throw sends away
	inbox   []transport.Inbound
	sent    map[protocol.ClientID][]protocol.Message
	drop    map[protocol.ClientID][]bool
}

func newFakeHub(t testing.TB) *fakeHub {
	return &fakeHub{
		t:     t,
		codec: protocol.NewCodec(protocol.DefaultCompressThreshold),
		sent:  make(map[protocol.ClientID][]protocol.Message),
		drop:  make(map[protocol.ClientID][]bool),
	}
}

func (h *fakeHub) connect(c protocol.ClientID) {
	h.inbox = append(h.inbox, transport.Inbound{Kind: transport.EventConnect, Client: c})
}

func (h *fakeHub) message(c protocol.ClientID, msg protocol.Message) {
	h.inbox = append(h.inbox, transport.Inbound{Kind: transport.EventMessage, Client: c, Msg: msg})
}

func (h *fakeHub) disconnect(c protocol.ClientID) {
	h.inbox = append(h.inbox, transport.Inbound{Kind: transport.EventDisconnect, Client: c})
}

func (h *fakeHub) Drain() []transport.Inbound {
	out := h.inbox
	h.inbox = nil
	return out
}

func (h *fakeHub) Encode(msg protocol.Message) ([]byte, error) {
	return h.codec.Encode(msg)
}

func (h *fakeHub) Send(client protocol.ClientID, data []byte, droppable bool) error {
	if h.discard {
		return nil
	}
	msg, err := h.codec.Decode(data)
	require.NoError(h.t, err)
	h.sent[client] = append(h.sent[client], msg)
	h.drop[client] = append(h.drop[client], droppable)
	return nil
}

// take returns and clears what client received.
func (h *fakeHub) take(client protocol.ClientID) []protocol.Message {
	out := h.sent[client]
	delete(h.sent, client)
	delete(h.drop, client)
	return out
}

// fakeConn is a client connection that never touches the network.
type fakeConn struct {
	mu      sync.Mutex
	id      protocol.ClientID
	inbox   []protocol.Message
	sent    []protocol.Message
	done    chan struct{}
	closeMu sync.Once
}

func newFakeConn(id protocol.ClientID) *fakeConn {
	return &fakeConn{id: id, done: make(chan struct{})}
}

func (c *fakeConn) Welcome() *protocol.Welcome { return &protocol.Welcome{ClientID: c.id} }

func (c *fakeConn) push(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append(c.inbox, msg)
}

func (c *fakeConn) Drain() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.inbox
	c.inbox = nil
	return out
}

func (c *fakeConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) take() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error { return nil }

func (c *fakeConn) close() { c.closeMu.Do(func() { close(c.done) }) }

// holdKeys presses the same keys every tick.
type holdKeys input.KeyState

func (k holdKeys) Next() input.KeyState { return input.KeyState(k) }

type savedVessel struct {
	client protocol.ClientID
	id     vessel.ID
	parts  int
}

type fakeArchive struct {
	saved []savedVessel
}

func (a *fakeArchive) Save(client protocol.ClientID, _ uint64, id vessel.ID, def vessel.Definition) {
	a.saved = append(a.saved, savedVessel{client: client, id: id, parts: len(def.Parts)})
}

func ofType[T protocol.Message](msgs []protocol.Message) []T {
	var out []T
	for _, m := range msgs {
		if t, ok := m.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func steps(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.Step())
	}
}
