// Package ws adapts a gorilla websocket connection to the registry's
// Handle contract: a buffered non-blocking sender plus read/write pumps.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("ws: send buffer full")

const writeWait = 5 * time.Second

// Conn owns the underlying websocket exclusively. Close is idempotent;
// the registry relies on that.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	readLimit   int64
	idleTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

type Options struct {
	// SendBuffer is the outbound queue depth before TrySend starts
	// refusing frames.
	SendBuffer int
	// ReadLimit caps inbound frame size.
	ReadLimit int64
	// IdleTimeout is the close timeout negotiated at handshake: a read
	// deadline refreshed on every inbound frame.
	IdleTimeout time.Duration
}

func NewConn(id string, wsc *websocket.Conn, opts Options) *Conn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Conn{
		id:          id,
		ws:          wsc,
		send:        make(chan []byte, opts.SendBuffer),
		readLimit:   opts.ReadLimit,
		idleTimeout: opts.IdleTimeout,
	}
}

func (c *Conn) ID() string { return c.id }

// TrySend queues frame without blocking. A full buffer is the peer's
// problem, not the sender's: the frame is refused and the liveness
// sweep will deal with a peer that stays deaf.
func (c *Conn) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("ws: connection closed")
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close stops accepting sends and closes the queue. The write pump
// drains whatever is already queued (a terminal disconnect envelope,
// typically) and closes the socket once the queue is empty; closing the
// socket here would race that flush.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

// WritePump drains the send queue onto the wire. Runs in its own
// goroutine per connection; returns when the queue closes or a write
// fails.
func (c *Conn) WritePump() {
	defer func() { _ = c.ws.Close() }()
	for frame := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Str("module", "ws").Str("id", c.id).Err(err).Msg("set write deadline")
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Debug().Str("module", "ws").Str("id", c.id).Err(err).Msg("write failed")
			return
		}
	}
}

// ReadPump feeds inbound frames to onFrame until the connection dies,
// then calls onClose exactly once. Every inbound frame pushes the idle
// deadline out again.
func (c *Conn) ReadPump(onFrame func(raw []byte), onClose func()) {
	defer func() {
		log.Info().Str("module", "ws").Str("id", c.id).Msg("read pump closing")
		c.Close()
		onClose()
	}()

	if c.readLimit > 0 {
		c.ws.SetReadLimit(c.readLimit)
	}
	for {
		if c.idleTimeout > 0 {
			if err := c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
				return
			}
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Str("module", "ws").Str("id", c.id).Err(err).Msg("read error")
			}
			return
		}
		onFrame(data)
	}
}
