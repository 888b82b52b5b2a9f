package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/config"
	"vessel-racer/internal/metrics"
	"vessel-racer/internal/protocol"
)

// ClientConfig tunes a client connection.
type ClientConfig struct {
	ProtocolID        uint64
	OutboundQueue     int
	InboxSize         int
	HandshakeTimeout  time.Duration
	CompressThreshold int
}

// DefaultClientConfig returns client defaults matching DefaultConfig.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		OutboundQueue:     64,
		InboxSize:         1024,
		HandshakeTimeout:  5 * time.Second,
		CompressThreshold: protocol.DefaultCompressThreshold,
	}
}

// ClientConfigFrom maps the application config onto client settings.
func ClientConfigFrom(nw config.NetworkConfig) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.ProtocolID = nw.ProtocolID
	cfg.HandshakeTimeout = nw.HandshakeTimeout
	cfg.CompressThreshold = nw.CompressThreshold
	return cfg
}

// Conn is a client's connection to a server.
type Conn struct {
	ws      *websocket.Conn
	codec   *protocol.Codec
	welcome *protocol.Welcome
	send    chan []byte
	inbox   chan protocol.Message
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Dial connects to url, performs the Hello/Welcome handshake and starts the
// reader and writer goroutines.
func Dial(ctx context.Context, url string, cfg ClientConfig) (*Conn, error) {
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = 64
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	codec := protocol.NewCodec(cfg.CompressThreshold)

	hello, err := codec.Encode(&protocol.Hello{Version: protocol.Version, ProtocolID: cfg.ProtocolID})
	if err != nil {
		ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.BinaryMessage, hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	msg, err := codec.Decode(raw)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	welcome, ok := msg.(*protocol.Welcome)
	if !ok {
		ws.Close()
		return nil, fmt.Errorf("%w: %w: %s", ErrHandshake, ErrUnexpectedType, msg.Type())
	}

	c := &Conn{
		ws:      ws,
		codec:   codec,
		welcome: welcome,
		send:    make(chan []byte, cfg.OutboundQueue),
		inbox:   make(chan protocol.Message, cfg.InboxSize),
		done:    make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Welcome returns the server's handshake answer.
func (c *Conn) Welcome() *protocol.Welcome { return c.welcome }

// ID returns the id the server assigned.
func (c *Conn) ID() protocol.ClientID { return c.welcome.ClientID }

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, if it has.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

// Send encodes and queues msg. A full queue fails the connection.
func (c *Conn) Send(msg protocol.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		metrics.RecordMessageOut(msg.Type().String(), len(data))
		return nil
	default:
		c.fail(ErrQueueFull)
		return ErrQueueFull
	}
}

// Drain returns every received message without blocking.
func (c *Conn) Drain() []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case m := <-c.inbox:
			out = append(out, m)
		default:
			return out
		}
	}
}

// Close ends the connection and waits for its goroutines.
func (c *Conn) Close() error {
	c.fail(ErrNotConnected)
	c.wg.Wait()
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	c.ws.SetReadLimit(protocol.HeaderSize + protocol.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(data string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := c.codec.Decode(raw)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ undecodable message from server")
			c.fail(err)
			return
		}
		metrics.RecordMessageIn(msg.Type().String())
		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

// flush writes whatever is still queued, so a Close right after Send does
// not lose messages.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = c.ws.Close()
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.fail(err)
				_ = c.ws.Close()
				return
			}
		}
	}
}
