package conn

import (
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/monetiq/realtime/src/types"
)

// WebSocketTransport dials the event server over WebSocket.
type WebSocketTransport struct {
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates the production transport.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// Open dials url, presenting the credentials as a bearer token.
func (t *WebSocketTransport) Open(url string, creds types.Credentials) (types.Conn, error) {
	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}
	c, resp, err := t.dialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &wsConn{conn: c}, nil
}

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }
func (w *wsConn) ReadJSON(v any) error  { return w.conn.ReadJSON(v) }
func (w *wsConn) Close() error          { return w.conn.Close() }
