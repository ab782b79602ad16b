// Package ws adapts a WebSocket connection to the transport.Conn contract.
// Peer authentication is carried by the DID handshake layer; here the DID
// rides a query parameter as an opaque identifier.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Conn wraps a websocket connection as an ordered duplex message channel.
type Conn struct {
	peerDID string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to a peer's WebSocket endpoint, announcing the local DID.
func Dial(ctx context.Context, rawURL, localDID, peerDID string) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse peer url: %w", err)
	}
	q := u.Query()
	q.Set("did", localDID)
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &Conn{peerDID: peerDID, ws: ws}, nil
}

// Upgrader accepts inbound WebSocket connections on the provider side.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader builds an Upgrader with defaults.
func NewUpgrader() *Upgrader {
	return &Upgrader{upgrader: websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// peer authentication happens at the DID layer, not the HTTP origin
		CheckOrigin: func(*http.Request) bool { return true },
	}}
}

// Accept upgrades an HTTP request into a Conn. The peer DID is read from the
// "did" query parameter.
func (u *Upgrader) Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	peerDID := r.URL.Query().Get("did")
	if peerDID == "" {
		http.Error(w, "missing did", http.StatusBadRequest)
		return nil, fmt.Errorf("missing did query parameter")
	}

	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return &Conn{peerDID: peerDID, ws: ws}, nil
}

// PeerDID identifies the remote party.
func (c *Conn) PeerDID() string {
	return c.peerDID
}

// Send transmits one binary frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// ReadLoop delivers inbound frames to the handler until the connection or
// context ends.
func (c *Conn) ReadLoop(ctx context.Context, h func(data []byte)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		h(data)
	}
}

// Close tears the websocket down.
func (c *Conn) Close() error {
	return c.ws.Close()
}
