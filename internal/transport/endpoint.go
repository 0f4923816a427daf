package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultMaxFrameSize = 64 * 1024
	sendBuffer          = 256
)

// Conn is a live peer connection as seen by handlers.
type Conn interface {
	ID() uint64
	RemoteAddr() string
	Send(payload []byte) error
	Latency() time.Duration
	Close() error
}

// Handler receives connection lifecycle events. OnMessage is called from the
// connection's read pump, so messages of one connection are handled in order.
type Handler interface {
	OnConnect(c Conn)
	OnMessage(c Conn, m Message)
	OnDisconnect(c Conn)
}

// Options tunes the endpoint.
type Options struct {
	ConnectionKey string
	MaxFrameSize  int64
	WriteWait     time.Duration
	PongWait      time.Duration
}

// Endpoint upgrades HTTP requests into peer connections.
type Endpoint struct {
	ctx      context.Context
	handler  Handler
	upgrader websocket.Upgrader
	opts     Options
	wg       sync.WaitGroup
	nextID   atomic.Uint64
}

// NewEndpoint creates an endpoint. Connections are closed when ctx is canceled.
func NewEndpoint(ctx context.Context, handler Handler, opts Options) *Endpoint {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = defaultMaxFrameSize
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}

	return &Endpoint{
		ctx:     ctx,
		handler: handler,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// game servers and launchers do not send browser origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP checks the connection key, upgrades the request and runs the connection until it closes.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !keyMatches(r, e.opts.ConnectionKey) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("Connection rejected: bad connection key")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c, err := e.accept(ws, r.RemoteAddr)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Handshake failed")
		_ = ws.Close()
		return
	}

	e.wg.Add(1)
	defer e.wg.Done()

	c.handle()
}

// Wait blocks until every connection served by the endpoint has finished.
func (e *Endpoint) Wait() {
	e.wg.Wait()
}

func (e *Endpoint) accept(ws *websocket.Conn, remote string) (*connection, error) {
	key := newSessionKey()
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	_ = ws.SetWriteDeadline(time.Now().Add(e.opts.WriteWait))
	if err := ws.WriteMessage(websocket.BinaryMessage, keyFrame(key)); err != nil {
		return nil, err
	}

	return &connection{
		id:       e.nextID.Add(1),
		remote:   remote,
		ws:       ws,
		aead:     aead,
		endpoint: e,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}, nil
}
