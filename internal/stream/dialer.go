package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"vmonitor-agent/internal/config"
)

// DefaultPath is used when an endpoint URI carries no path.
const DefaultPath = "/wss/probe"

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type Dialer interface {
	Dial(ctx context.Context, ep config.Endpoint) (Conn, error)
}

type WebSocketDialer struct {
	tlsConfig *tls.Config
	readLimit int64
}

func NewWebSocketDialer(tlsCfg *tls.Config, readLimit int64) *WebSocketDialer {
	if readLimit <= 0 {
		readLimit = 1 << 20
	}
	return &WebSocketDialer{tlsConfig: tlsCfg, readLimit: readLimit}
}

// Dial opens an authenticated connection. The secret travels as the secret query parameter
// and as a bearer token.
func (d *WebSocketDialer) Dial(ctx context.Context, ep config.Endpoint) (Conn, error) {
	u, err := ep.URL()
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	q := u.Query()
	q.Set("secret", ep.Secret.Reveal())
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+ep.Secret.Reveal())
	opt := &websocket.DialOptions{HTTPHeader: h}
	if d.tlsConfig != nil && u.Scheme == "wss" {
		opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: d.tlsConfig}}
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), opt)
	if err != nil {
		te := &TransportError{Op: "dial", Err: redact(fmt.Errorf("websocket dial: %w", err), ep.Secret)}
		if resp != nil {
			te.Status = resp.StatusCode
		}
		return nil, te
	}
	conn.SetReadLimit(d.readLimit)
	return conn, nil
}
