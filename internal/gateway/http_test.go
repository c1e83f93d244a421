package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/hetman/internal/config"
	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/gateway"
	"github.com/cory-johannsen/hetman/internal/testutil"
)

const testOrigin = "http://cards.example.test"

func newServer(t *testing.T) (*httptest.Server, *harness) {
	t.Helper()
	h := newHarness(t)
	wsCfg := config.WebsocketConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		PingInterval:   time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
	}
	ws := gateway.NewWebsocketHandler(h.gw, wsCfg, nil, zaptest.NewLogger(t))
	srv := httptest.NewServer(gateway.NewHTTPHandler(h.gw, ws, []string{testOrigin}, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return srv, h
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHTTP_CreateAndJoin(t *testing.T) {
	srv, _ := newServer(t)

	resp := postJSON(t, srv.URL+"/api/rooms", map[string]any{
		"hostName": "Host",
		"settings": map[string]any{"maxRounds": 5, "password": "pw"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	host := decodeBody[gateway.Ticket](t, resp)
	assert.Len(t, host.Code, 6)
	assert.NotEmpty(t, host.PlayerID)
	assert.NotEmpty(t, host.Token)

	resp = postJSON(t, srv.URL+"/api/rooms/"+host.Code+"/join", map[string]any{"name": "Guest", "password": "nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "WRONG_PASSWORD", decodeBody[event.ErrorData](t, resp).Code)

	resp = postJSON(t, srv.URL+"/api/rooms/"+host.Code+"/join", map[string]any{"name": "Guest", "password": "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	guest := decodeBody[gateway.Ticket](t, resp)
	assert.Equal(t, host.Code, guest.Code)
	assert.NotEqual(t, host.Token, guest.Token)

	resp = postJSON(t, srv.URL+"/api/rooms/ZZZZZZ/join", map[string]any{"name": "Guest"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_CreateRejectsBadInput(t *testing.T) {
	srv, _ := newServer(t)

	resp := postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_COMMAND", decodeBody[event.ErrorData](t, resp).Code)

	resp = postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": "Host", "settings": map[string]any{"maxRounds": 500}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_SETTINGS", decodeBody[event.ErrorData](t, resp).Code)

	resp = postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": "Host", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Healthz(t *testing.T) {
	srv, _ := newServer(t)
	postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": "Host"})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeBody[map[string]int](t, resp)["rooms"])
}

func TestHTTP_CORSPreflight(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://elsewhere.test")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebsocket_InvalidSessionClosesWith4001(t *testing.T) {
	srv, _ := newServer(t)
	resp := postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": "Host"})
	host := decodeBody[gateway.Ticket](t, resp)

	client, _ := testutil.DialWS(t, testutil.WebsocketURL(srv.URL, host.Code, "forged"))
	ce := client.ReadClose(2 * time.Second)
	require.NotNil(t, ce)
	assert.Equal(t, gateway.CloseInvalidSession, ce.Code)
	assert.Equal(t, "invalid session", ce.Text)
}

func TestWebsocket_SessionRoundTrip(t *testing.T) {
	srv, h := newServer(t)
	resp := postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": "Host"})
	host := decodeBody[gateway.Ticket](t, resp)

	client, _ := testutil.DialWS(t, testutil.WebsocketURL(srv.URL, host.Code, host.Token))
	var snap event.SnapshotData
	require.NoError(t, json.Unmarshal(client.ReadUntil(string(event.Snapshot), 2*time.Second).Data, &snap))
	assert.Equal(t, host.PlayerID, snap.Me.ID)

	client.Send(string(gateway.KindPing), nil)
	client.ReadUntil(string(event.Pong), 2*time.Second)

	client.Send(string(gateway.KindSubmitCard), map[string]any{"card": "x"})
	var e event.ErrorData
	require.NoError(t, json.Unmarshal(client.ReadUntil(string(event.Error), 2*time.Second).Data, &e))
	assert.Equal(t, "WRONG_PHASE", e.Code)

	client.Send(string(gateway.KindPing), nil)
	client.ReadUntil(string(event.Pong), 2*time.Second)
	assert.Equal(t, 1, h.gw.Sessions())

	client.Close()
	assert.Eventually(t, func() bool { return h.gw.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocket_SecondConnectionReplacesFirst(t *testing.T) {
	srv, h := newServer(t)
	resp := postJSON(t, srv.URL+"/api/rooms", map[string]any{"hostName": "Host"})
	host := decodeBody[gateway.Ticket](t, resp)
	url := testutil.WebsocketURL(srv.URL, host.Code, host.Token)

	first, _ := testutil.DialWS(t, url)
	first.ReadUntil(string(event.Snapshot), 2*time.Second)
	second, _ := testutil.DialWS(t, url)
	second.ReadUntil(string(event.Snapshot), 2*time.Second)

	ce := first.ReadClose(2 * time.Second)
	require.NotNil(t, ce)
	assert.Equal(t, 1000, ce.Code)

	second.Send(string(gateway.KindPing), nil)
	second.ReadUntil(string(event.Pong), 2*time.Second)
	assert.Equal(t, 1, h.gw.Sessions())
}

func TestAllowOrigins(t *testing.T) {
	assert.Nil(t, gateway.AllowOrigins(nil))
	assert.Nil(t, gateway.AllowOrigins([]string{"*"}))

	check := gateway.AllowOrigins([]string{testOrigin + "/"})
	require.NotNil(t, check)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", testOrigin)
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://elsewhere.test")
	assert.False(t, check(req))
}
