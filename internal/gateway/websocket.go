package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/config"
)

// CloseInvalidSession is the application close code sent when a connection's
// room code and token do not name a seat.
const CloseInvalidSession = 4001

// AllowOrigins returns an upgrade origin check accepting the listed origins. Requests
// without an Origin header are accepted. An empty list or "*" accepts everything.
func AllowOrigins(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// WebsocketHandler upgrades GET /ws?code=&token= requests and pumps frames
// between the connection and its Session.
type WebsocketHandler struct {
	gw       *Gateway
	cfg      config.WebsocketConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebsocketHandler creates a handler. checkOrigin may be nil to accept any
// origin.
//
// Precondition: gw and logger must be non-nil; cfg.PingInterval < cfg.ReadTimeout.
func NewWebsocketHandler(gw *Gateway, cfg config.WebsocketConfig, checkOrigin func(*http.Request) bool, logger *zap.Logger) *WebsocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebsocketHandler{
		gw:  gw,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	q := req.URL.Query()
	sess, err := h.gw.Connect(q.Get("code"), q.Get("token"))
	if err != nil {
		h.logger.Info("rejecting websocket session", zap.String("room", q.Get("code")), zap.Error(err))
		msg := websocket.FormatCloseMessage(CloseInvalidSession, "invalid session")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}

	go h.writePump(conn, sess)
	h.readPump(conn, sess)
	h.gw.Disconnect(sess)
}

// readPump feeds inbound text frames to the gateway until the peer goes away or
// misses the read deadline.
func (h *WebsocketHandler) readPump(conn *websocket.Conn, sess *Session) {
	defer conn.Close()

	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		if kind != websocket.TextMessage {
			continue
		}
		h.gw.Handle(sess, data)
	}
}

// writePump drains the session's notices onto the connection and keeps it alive
// with pings. It closes the connection when the session is closed.
func (h *WebsocketHandler) writePump(conn *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-sess.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("websocket write failed", zap.String("session", sess.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
