package transport

import (
	"context"
	"crypto/cipher"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is a peer-side connection to the service, used by tooling and tests.
type Client struct {
	ws   *websocket.Conn
	aead cipher.AEAD
	mu   sync.Mutex
}

// Dial connects to a ws:// or wss:// endpoint and completes the key handshake.
func Dial(ctx context.Context, url, connectionKey string) (*Client, error) {
	header := http.Header{}
	header.Set(ConnectionKeyHeader, connectionKey)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	_, frame, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}

	key, err := parseKeyFrame(frame)
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("parse handshake: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	return &Client{ws: ws, aead: aead}, nil
}

// Send seals payload as a reliable-ordered frame.
func (c *Client) Send(payload []byte) error {
	return c.SendWith(ReliableOrdered, payload)
}

// SendWith seals payload with an explicit delivery method.
func (c *Client) SendWith(d Delivery, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteMessage(websocket.BinaryMessage, seal(c.aead, d, payload))
}

// SendRaw writes an unsealed frame.
func (c *Client) SendRaw(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// Receive blocks for the next frame and opens it.
func (c *Client) Receive() (Message, error) {
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, err
	}

	return open(c.aead, frame)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.ws.Close()
}
