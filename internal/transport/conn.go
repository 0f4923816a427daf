package transport

import (
	"crypto/cipher"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/metrics"
)

var (
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the peer does not drain its outbound queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// connection is one accepted peer.
type connection struct {
	ws       *websocket.Conn
	aead     cipher.AEAD
	endpoint *Endpoint
	send     chan []byte
	done     chan struct{}
	remote   string
	id       uint64
	latency  atomic.Int64
	once     sync.Once
}

func (c *connection) ID() uint64 { return c.id }
func (c *connection) RemoteAddr() string { return c.remote }

// Latency returns the last measured ping round trip.
func (c *connection) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

// Send seals payload as a reliable-ordered frame and queues it for the write pump.
func (c *connection) Send(payload []byte) error {
	frame := seal(c.aead, ReliableOrdered, payload)

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case <-c.done:
		return ErrClosed
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *connection) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})

	return nil
}

// handle runs the connection until the peer goes away or the endpoint context ends.
func (c *connection) handle() {
	pongWait := c.endpoint.opts.PongWait

	c.ws.SetReadLimit(c.endpoint.opts.MaxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(data string) error {
		if sent, err := strconv.ParseInt(data, 10, 64); err == nil {
			c.latency.Store(int64(time.Since(time.Unix(0, sent))))
		}
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	h := c.endpoint.handler
	h.OnConnect(c)
	defer h.OnDisconnect(c)

	go c.writePump()
	c.readPump()
}

func (c *connection) readPump() {
	defer func() { _ = c.Close() }()

	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Uint64("conn", c.id).Msg("WebSocket read error")
			}
			return
		}

		if kind != websocket.BinaryMessage {
			metrics.Dropped.WithLabelValues("frame").Inc()
			log.Debug().Uint64("conn", c.id).Int("type", kind).Msg("Dropped non-binary frame")
			continue
		}

		msg, err := open(c.aead, frame)
		if err != nil {
			metrics.Dropped.WithLabelValues("decrypt").Inc()
			log.Warn().Err(err).Uint64("conn", c.id).Msg("Dropped frame")
			continue
		}

		c.endpoint.handler.OnMessage(c, msg)
	}
}

func (c *connection) writePump() {
	writeWait := c.endpoint.opts.WriteWait
	ticker := time.NewTicker(c.endpoint.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Debug().Err(err).Uint64("conn", c.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			ping := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
			if err := c.ws.WriteControl(websocket.PingMessage, ping, time.Now().Add(writeWait)); err != nil {
				return
			}

		case <-c.done:
			return

		case <-c.endpoint.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(writeWait))
			return
		}
	}
}
