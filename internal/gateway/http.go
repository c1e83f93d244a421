package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/room"
)

// maxRequestBody bounds create/join request bodies.
const maxRequestBody = 16 << 10

type createRequest struct {
	HostName string          `json:"hostName"`
	Settings SettingsPayload `json:"settings"`
}

type joinRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// NewHTTPHandler mounts the websocket endpoint, the create/join endpoints and the
// liveness probe behind CORS for allowedOrigins.
//
// Precondition: gw, ws and logger must be non-nil.
func NewHTTPHandler(gw *Gateway, ws http.Handler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	a := &api{gw: gw, logger: logger}
	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws)
	mux.HandleFunc("POST /api/rooms", a.createRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", a.joinRoom)
	mux.HandleFunc("GET /healthz", a.healthz)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

type api struct {
	gw     *Gateway
	logger *zap.Logger
}

func (a *api) createRoom(w http.ResponseWriter, req *http.Request) {
	var body createRequest
	if !a.decode(w, req, &body) {
		return
	}
	ticket, err := a.gw.CreateRoom(body.HostName, body.Settings)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, ticket)
}

func (a *api) joinRoom(w http.ResponseWriter, req *http.Request) {
	var body joinRequest
	if !a.decode(w, req, &body) {
		return
	}
	ticket, err := a.gw.JoinRoom(req.PathValue("code"), body.Name, body.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ticket)
}

func (a *api) healthz(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]int{
		"rooms":    a.gw.store.Len(),
		"sessions": a.gw.Sessions(),
	})
}

func (a *api) decode(w http.ResponseWriter, req *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeError(w, room.Errorf(room.CodeInvalidCommand, "malformed request body"))
		return false
	}
	return true
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	code := room.CodeOf(err)
	if code == room.CodeInternal {
		a.logger.Error("request failed", zap.Error(err))
	}
	a.writeJSON(w, statusOf(code), errorNotice(err).Data)
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("writing response", zap.Error(err))
	}
}

// statusOf maps a domain code onto an HTTP status.
func statusOf(code room.Code) int {
	switch code {
	case room.CodeRoomNotFound:
		return http.StatusNotFound
	case room.CodeWrongPassword:
		return http.StatusForbidden
	case room.CodeRoomFull, room.CodeGameAlreadyStarted:
		return http.StatusConflict
	case room.CodeInvalidCommand, room.CodeInvalidSettings:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
