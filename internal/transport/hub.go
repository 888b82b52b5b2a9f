// Package transport moves framed protocol messages over websockets. The
// server Hub funnels every client's events into one ordered inbox that the
// engine drains once per tick; sends are queued per client and written by a
// goroutine per connection.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"vessel-racer/internal/config"
	"vessel-racer/internal/metrics"
	"vessel-racer/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var (
	ErrHubClosed      = errors.New("transport: hub closed")
	ErrNotConnected   = errors.New("transport: client not connected")
	ErrHandshake      = errors.New("transport: handshake failed")
	ErrQueueFull      = errors.New("transport: outbound queue full")
	ErrUnexpectedType = errors.New("transport: unexpected message type")
)

// Config tunes the server hub.
type Config struct {
	ProtocolID        uint64
	MaxClients        int
	MaxPerIP          int
	OutboundQueue     int
	InboxSize         int
	MessagesPerSecond float64
	MessageBurst      int
	HandshakeTimeout  time.Duration
	CompressThreshold int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolID:        0,
		MaxClients:        10,
		MaxPerIP:          4,
		OutboundQueue:     256,
		InboxSize:         1024,
		MessagesPerSecond: 120,
		MessageBurst:      240,
		HandshakeTimeout:  5 * time.Second,
		CompressThreshold: protocol.DefaultCompressThreshold,
	}
}

// ConfigFrom maps the application config onto hub settings.
func ConfigFrom(srv config.ServerConfig, nw config.NetworkConfig) Config {
	cfg := DefaultConfig()
	cfg.ProtocolID = nw.ProtocolID
	cfg.MaxClients = srv.MaxClients
	cfg.MaxPerIP = nw.MaxPerIP
	cfg.OutboundQueue = nw.OutboundQueue
	cfg.MessagesPerSecond = nw.ControlRate
	cfg.MessageBurst = nw.ControlBurst
	cfg.HandshakeTimeout = nw.HandshakeTimeout
	cfg.CompressThreshold = nw.CompressThreshold
	return cfg
}

// EventKind tells inbox entries apart.
type EventKind int

const (
	EventConnect EventKind = iota
	EventMessage
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventMessage:
		return "message"
	default:
		return "disconnect"
	}
}

// Inbound is one entry of the hub's inbox. For a given client the inbox
// always holds Connect, then its messages in arrival order, then Disconnect.
type Inbound struct {
	Kind   EventKind
	Client protocol.ClientID
	Msg    protocol.Message
}

type outbound struct {
	data      []byte
	droppable bool
}

type hubConn struct {
	id      protocol.ClientID
	ws      *websocket.Conn
	ip      string
	send    chan outbound
	limiter *rate.Limiter
	done    chan struct{}
	once    sync.Once
}

func (c *hubConn) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub manages every client connection of a server.
type Hub struct {
	cfg      Config
	codec    *protocol.Codec
	upgrader websocket.Upgrader
	limiter  *ConnLimiter

	mu    sync.RWMutex
	conns map[protocol.ClientID]*hubConn

	nextID  atomic.Uint64
	pending atomic.Int32
	inbox   chan Inbound
	closing chan struct{}
	closed  sync.Once
	wg      sync.WaitGroup
}

// NewHub creates a hub.
func NewHub(cfg Config) *Hub {
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = 256
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	return &Hub{
		cfg:   cfg,
		codec: protocol.NewCodec(cfg.CompressThreshold),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// game clients are not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: NewConnLimiter(cfg.MaxPerIP),
		conns:   make(map[protocol.ClientID]*hubConn),
		inbox:   make(chan Inbound, cfg.InboxSize),
		closing: make(chan struct{}),
	}
}

// Codec returns the hub's codec.
func (h *Hub) Codec() *protocol.Codec { return h.codec }

// ClientCount returns the number of handshaken connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP upgrades a request, runs the handshake and serves the
// connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.wg.Add(1)
	defer h.wg.Done()

	select {
	case <-h.closing:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	ip := ClientIP(r)

	// slots are reserved before the upgrade so concurrent handshakes cannot overshoot
	reserved := false
	release := func() {
		if reserved {
			reserved = false
			h.pending.Add(-1)
		}
	}
	defer release()
	if h.cfg.MaxClients > 0 {
		reserved = true
		if int(h.pending.Add(1))+h.ClientCount() > h.cfg.MaxClients {
			release()
			log.Warn().Str("ip", ip).Int("max", h.cfg.MaxClients).Msg("⚠️ connection rejected: server full")
			metrics.RecordConnectionRejected("max_clients")
			http.Error(w, "Server full", http.StatusServiceUnavailable)
			return
		}
	}

	if !h.limiter.Allow(ip) {
		log.Warn().Str("ip", ip).Msg("⚠️ connection rejected: per-IP limit reached")
		metrics.RecordConnectionRejected("ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	defer h.limiter.Release(ip)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	c, err := h.handshake(ws, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("⚠️ handshake failed")
		return
	}
	h.serve(c, release)
}

func (h *Hub) handshake(ws *websocket.Conn, ip string) (*hubConn, error) {
	reject := func(reason, text string, err error) (*hubConn, error) {
		metrics.RecordConnectionRejected(reason)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, text), time.Now().Add(time.Second))
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		metrics.RecordConnectionRejected("handshake")
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	msg, err := h.codec.Decode(raw)
	if err != nil {
		return reject("protocol", "bad frame", err)
	}
	hello, ok := msg.(*protocol.Hello)
	if !ok {
		return reject("handshake", "expected hello", fmt.Errorf("%w: %s", ErrUnexpectedType, msg.Type()))
	}
	if err := protocol.CheckHello(hello, h.cfg.ProtocolID); err != nil {
		return reject("protocol", "protocol mismatch", err)
	}

	c := &hubConn{
		id:      protocol.ClientID(h.nextID.Add(1)),
		ws:      ws,
		ip:      ip,
		send:    make(chan outbound, h.cfg.OutboundQueue),
		limiter: newMessageLimiter(h.cfg.MessagesPerSecond, h.cfg.MessageBurst),
		done:    make(chan struct{}),
	}
	welcome, err := h.codec.Encode(&protocol.Welcome{ClientID: c.id})
	if err != nil {
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.BinaryMessage, welcome); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return c, nil
}

// serve registers c, runs its writer and reads until the connection ends.
// release frees the handshake slot once c counts as a client.
func (h *Hub) serve(c *hubConn, release func()) {
	h.mu.Lock()
	h.conns[c.id] = c
	count := len(h.conns)
	h.mu.Unlock()
	release()
	log.Info().Uint64("client", uint64(c.id)).Str("ip", c.ip).Int("total", count).Msg("📱 client connected")
	metrics.UpdateClients(count)

	h.push(Inbound{Kind: EventConnect, Client: c.id})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(c)
	}()

	h.readPump(c)

	c.close()
	<-writerDone

	h.mu.Lock()
	delete(h.conns, c.id)
	count = len(h.conns)
	h.mu.Unlock()
	log.Info().Uint64("client", uint64(c.id)).Int("remaining", count).Msg("📱 client disconnected")
	metrics.UpdateClients(count)

	h.push(Inbound{Kind: EventDisconnect, Client: c.id})
}

func (h *Hub) readPump(c *hubConn) {
	c.ws.SetReadLimit(protocol.HeaderSize + protocol.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Uint64("client", uint64(c.id)).Msg("read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		// Controls go out on change and announces once, so a dropped one is
		// never resent. A client over the limit is cut off instead.
		if !c.limiter.Allow() {
			metrics.RecordConnectionRejected("rate_limit")
			log.Warn().Uint64("client", uint64(c.id)).Msg("⚠️ message rate exceeded, closing")
			return
		}
		msg, err := h.codec.Decode(raw)
		if err != nil {
			// a client that speaks garbage is cut off
			log.Warn().Err(err).Uint64("client", uint64(c.id)).Msg("⚠️ undecodable message, closing")
			return
		}
		switch msg.Type() {
		case protocol.TypeControl, protocol.TypeAnnounce:
		default:
			log.Warn().Stringer("type", msg.Type()).Uint64("client", uint64(c.id)).Msg("⚠️ unexpected message from client")
			continue
		}
		metrics.RecordMessageIn(msg.Type().String())
		if !h.push(Inbound{Kind: EventMessage, Client: c.id, Msg: msg}) {
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (h *Hub) writePump(c *hubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = c.ws.Close()
			return
		case out := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, out.data); err != nil {
				c.close()
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				_ = c.ws.Close()
				return
			}
		}
	}
}

// push appends to the inbox, blocking while it is full so a connection's
// events are never reordered or lost. Returns false once the hub closes.
func (h *Hub) push(in Inbound) bool {
	select {
	case h.inbox <- in:
		return true
	case <-h.closing:
		return false
	}
}

// Drain returns every inbox entry queued so far without blocking.
func (h *Hub) Drain() []Inbound {
	var out []Inbound
	for {
		select {
		case in := <-h.inbox:
			out = append(out, in)
		default:
			return out
		}
	}
}

// Encode frames msg with the hub's codec.
func (h *Hub) Encode(msg protocol.Message) ([]byte, error) {
	return h.codec.Encode(msg)
}

// Send queues an encoded message for client. Droppable data is skipped when
// the client's queue is full; anything else that does not fit disconnects
// the client, since the protocol cannot recover from a lost definition.
func (h *Hub) Send(client protocol.ClientID, data []byte, droppable bool) error {
	h.mu.RLock()
	c, ok := h.conns[client]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotConnected, client)
	}
	select {
	case <-h.closing:
		return ErrHubClosed
	case <-c.done:
		return fmt.Errorf("%w: %d", ErrNotConnected, client)
	default:
	}
	select {
	case c.send <- outbound{data: data, droppable: droppable}:
		return nil
	default:
	}
	if droppable {
		metrics.RecordOutboundDropped()
		return nil
	}
	log.Warn().Uint64("client", uint64(client)).Msg("⚠️ client too slow, disconnecting")
	c.close()
	return fmt.Errorf("%w: %d", ErrQueueFull, client)
}

// Kick closes a client's connection.
func (h *Hub) Kick(client protocol.ClientID) {
	h.mu.RLock()
	c, ok := h.conns[client]
	h.mu.RUnlock()
	if ok {
		c.close()
	}
}

// Close disconnects every client and stops accepting new ones.
func (h *Hub) Close() {
	h.closed.Do(func() {
		close(h.closing)
		h.mu.RLock()
		for _, c := range h.conns {
			c.close()
		}
		h.mu.RUnlock()
	})
	h.wg.Wait()
}
