package link

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is how long a single command write may take
	writeWait = 2 * time.Second

	// handshakeTimeout bounds the websocket upgrade
	handshakeTimeout = 5 * time.Second

	// maxMessageSize is the maximum inbound frame size
	maxMessageSize = 4 * 1024 * 1024 // camera frames are base64 JPEGs
)

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens one socket to url. It must honour ctx cancellation.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer returns a Dialer backed by gorilla/websocket.
func WebsocketDialer(header http.Header) Dialer {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		conn.SetReadLimit(maxMessageSize)
		return conn, nil
	}
}
