package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/auth"
)

// Options tunes connection keepalive and buffering.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	SendBuffer     int
	MaxFailedSends int32
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		SendBuffer:     64,
		MaxFailedSends: 10,
		MaxMessageSize: 4096,
	}
}

// Conn is one live websocket. Writes happen only on its write pump; other
// goroutines hand it messages through a buffered queue.
type Conn struct {
	identity auth.Identity
	ws       *websocket.Conn
	opts     Options
	logger   zerolog.Logger

	send        chan []byte
	quit        chan struct{}
	stopOnce    sync.Once
	failedSends atomic.Int32
}

func newConn(ws *websocket.Conn, id auth.Identity, opts Options, logger zerolog.Logger) *Conn {
	remote := ws.RemoteAddr().String()
	return &Conn{
		identity: id,
		ws:       ws,
		opts:     opts,
		logger:   logger.With().Str("remote", remote).Str("user_id", id.UserID).Logger(),
		send:     make(chan []byte, opts.SendBuffer),
		quit:     make(chan struct{}),
	}
}

// enqueue queues msg without blocking. Too many consecutive failures mean
// the client is not keeping up, and the connection is closed.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- msg:
		c.failedSends.Store(0)
		return true
	default:
		if c.failedSends.Add(1) > c.opts.MaxFailedSends {
			c.logger.Warn().Msg("send queue full too long, closing connection")
			c.Stop()
		}
		return false
	}
}

// Stop is safe to call more than once and from any goroutine.
func (c *Conn) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

func (c *Conn) Done() <-chan struct{} { return c.quit }

// readPump reads client frames until the socket fails or the connection is
// stopped, passing each frame to handle.
func (c *Conn) readPump(handle func([]byte)) {
	defer c.Stop()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		handle(msg)
	}
}

// writePump drains the send queue onto the socket and keeps the peer alive
// with pings. It owns closing the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				c.Stop()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Stop()
				return
			}
		case <-c.quit:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}
