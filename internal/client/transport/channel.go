package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/noazlee/code-off/pkg/protocol"
)

// Synthetic lifecycle events, dispatched through the same handler
// registry as server-pushed events. The session machine consumes these
// to drive its connection status.
const (
	EvtConnect      = "connect"
	EvtDisconnect   = "disconnect"
	EvtConnectError = "connect_error"
)

var ErrNotConnected = errors.New("channel not connected")

const (
	writeTimeout  = 3 * time.Second
	sendQueueSize = 64
)

type Handler func(data json.RawMessage)

// Channel is the duplex, named-event connection the session machine owns.
type Channel interface {
	// On registers a handler. Handlers registered before Connect are
	// guaranteed to see every event delivered after the dial succeeds.
	On(event string, h Handler)
	Connect(ctx context.Context) error
	Emit(event string, payload any) error
	Close() error
}

// WebsocketChannel implements Channel over a single websocket.
// Inbound frames are decoded and dispatched in arrival order from one
// reader goroutine; outbound frames go through a bounded send queue.
type WebsocketChannel struct {
	url string
	log zerolog.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	conn     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebsocketChannel(url string, log zerolog.Logger) *WebsocketChannel {
	return &WebsocketChannel{
		url:      url,
		log:      log.With().Str("component", "channel").Logger(),
		handlers: make(map[string][]Handler),
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

func (c *WebsocketChannel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Connect dials the endpoint and starts the reader and writer. Dial
// failure is reported through connect_error handlers as well as the
// returned error; nothing here panics into caller code.
func (c *WebsocketChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.log.Error().Err(err).Str("url", c.url).Msg("dial failed")
		c.dispatch(EvtConnectError, nil)
		return err
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)

	c.dispatch(EvtConnect, nil)
	return nil
}

func (c *WebsocketChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		// Queue full: the server is not draining us. Drop rather than
		// block the session loop.
		c.log.Warn().Str("event", event).Msg("send queue full, dropping frame")
		return nil
	}
}

// Close is idempotent and safe to call from any goroutine.
func (c *WebsocketChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}
	})
	return nil
}

func (c *WebsocketChannel) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		}
	}
}

func (c *WebsocketChannel) readLoop(conn *websocket.Conn) {
	defer c.dispatch(EvtDisconnect, nil)

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				select {
				case <-c.done:
					// local Close, not a transport fault
				default:
					c.log.Warn().Err(err).Msg("read failed")
				}
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

func (c *WebsocketChannel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	hs := make([]Handler, len(c.handlers[event]))
	copy(hs, c.handlers[event])
	c.mu.Unlock()

	if len(hs) == 0 && data != nil {
		c.log.Debug().Str("event", event).Msg("no handler for event")
	}
	for _, h := range hs {
		h(data)
	}
}
