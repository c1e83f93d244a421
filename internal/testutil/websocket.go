package testutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Notice is an outbound server frame with its payload left encoded.
type Notice struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSClient is a websocket test client speaking the room protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// WebsocketURL turns an httptest server URL into the ws:// URL of the room
// endpoint for code and token.
func WebsocketURL(serverURL, code, token string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("token", token)
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws?" + q.Encode()
}

// DialWS opens a websocket to rawURL.
//
// Precondition: rawURL must be a ws:// or wss:// URL with a listening server.
// Postcondition: Returns the connected client and the handshake response, or
// fails the test.
func DialWS(t *testing.T, rawURL string) (*WSClient, *http.Response) {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", rawURL, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})
	t.Logf("websocket client connected [%s]", time.Since(start))
	return &WSClient{conn: conn, t: t}, resp
}

// ReadUntil reads notices until one of type typ arrives and returns it. Notices
// of other types are skipped.
//
// Precondition: typ must be non-empty.
// Postcondition: Returns the matching notice, or fails on timeout or close.
func (c *WSClient) ReadUntil(typ string, timeout time.Duration) Notice {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until %q: %v", typ, err)
		}
		var n Notice
		if err := json.Unmarshal(data, &n); err != nil {
			c.t.Fatalf("decoding notice %q: %v", data, err)
		}
		if n.Type == typ {
			return n
		}
	}
}

// ReadClose reads until the server closes the connection and returns the close
// error, or nil if the connection failed some other way.
func (c *WSClient) ReadClose(timeout time.Duration) *websocket.CloseError {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce
			}
			return nil
		}
	}
}

// Send writes a {"type": ..., "payload": ...} command. payload may be nil.
//
// Postcondition: The command is written to the connection, or the test fails.
func (c *WSClient) Send(typ string, payload any) {
	c.t.Helper()
	frame := map[string]any{"type": typ}
	if payload != nil {
		frame["payload"] = payload
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("sending %q: %v", typ, err)
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
