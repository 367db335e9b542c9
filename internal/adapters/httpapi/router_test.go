package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomly/signaling/internal/config"
	"github.com/roomly/signaling/internal/directory"
	"github.com/roomly/signaling/internal/protocol"
	"github.com/roomly/signaling/internal/registry"
	"github.com/roomly/signaling/internal/relay"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	cfg := &config.Config{
		Mode:             "release",
		Secret:           "test-secret",
		ReadLimit:        32768,
		SendBuffer:       8,
		HeartbeatTimeout: 20 * time.Second,
		CloseTimeout:     40 * time.Second,
	}
	store := directory.NewInMemory()
	reg := registry.New()
	router := relay.NewRouter(reg, store.Wrap())

	srv := &Server{Config: cfg, Registry: reg, Relay: router, Profiles: store}
	ts := httptest.NewServer(SetupRouter(cfg, srv))
	t.Cleanup(ts.Close)
	return ts, reg
}

type handshakeResponse struct {
	SessionID        string   `json:"sessionId"`
	HeartbeatTimeout int      `json:"heartbeatTimeout"`
	CloseTimeout     int      `json:"closeTimeout"`
	Transports       []string `json:"transports"`
}

func doHandshake(t *testing.T, ts *httptest.Server, jar http.CookieJar) handshakeResponse {
	t.Helper()
	client := &http.Client{Jar: jar}
	resp, err := client.Get(ts.URL + "/signal/handshake")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hs handshakeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hs))
	return hs
}

func dialChannel(t *testing.T, ts *httptest.Server, jar http.CookieJar, sid string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal/ws/" + sid
	dialer := websocket.Dialer{Jar: jar}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestHandshakeNegotiation(t *testing.T) {
	ts, _ := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	hs := doHandshake(t, ts, jar)

	assert.NotEmpty(t, hs.SessionID)
	assert.Equal(t, 20, hs.HeartbeatTimeout)
	assert.Equal(t, 40, hs.CloseTimeout)
	assert.Equal(t, []string{"websocket"}, hs.Transports)
}

func TestChannelOpenWithIssuedSID(t *testing.T) {
	ts, reg := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	hs := doHandshake(t, ts, jar)
	conn := dialChannel(t, ts, jar, hs.SessionID)

	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.KindConnect, env.Kind)

	require.Eventually(t, func() bool {
		_, ok := reg.Get(hs.SessionID)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestChannelRejectedOnForeignSID(t *testing.T) {
	ts, reg := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	hs := doHandshake(t, ts, jar)
	conn := dialChannel(t, ts, jar, hs.SessionID+"-tampered")

	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.KindDisconnect, env.Kind)

	// server closes right after the disconnect envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	_, ok := reg.Get(hs.SessionID + "-tampered")
	assert.False(t, ok)
}

func TestChannelRejectedWithoutHandshake(t *testing.T) {
	ts, _ := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	// no handshake: the session has no bound sid
	conn := dialChannel(t, ts, jar, "made-up")

	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.KindDisconnect, env.Kind)
}

func TestSessionCookieUsableOverPlainHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{Jar: jar}
	resp, err := client.Get(ts.URL + "/signal/handshake")
	require.NoError(t, err)
	resp.Body.Close()

	cookies := resp.Cookies()
	require.NotEmpty(t, cookies, "handshake must set the session cookie")
	for _, ck := range cookies {
		assert.False(t, ck.Secure, "cookie %s must come back over plain http", ck.Name)
	}

	u, err := resp.Request.URL.Parse("/")
	require.NoError(t, err)
	assert.NotEmpty(t, jar.Cookies(u), "a plain-http jar must retain the session")
}

func TestReconnectWithSameSIDKeepsNewChannel(t *testing.T) {
	ts, reg := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	hs := doHandshake(t, ts, jar)

	first := dialChannel(t, ts, jar, hs.SessionID)
	env := readEnvelope(t, first)
	require.Equal(t, protocol.KindConnect, env.Kind)

	// second channel with the same sid evicts the first
	second := dialChannel(t, ts, jar, hs.SessionID)
	env = readEnvelope(t, second)
	require.Equal(t, protocol.KindConnect, env.Kind)

	// the first connection's dying pump must not remove the new entry
	assert.Never(t, func() bool {
		_, ok := reg.Get(hs.SessionID)
		return !ok
	}, 500*time.Millisecond, 25*time.Millisecond)
}

func TestRejectedJoinGetsDisconnectBeforeClose(t *testing.T) {
	ts, _ := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	hs := doHandshake(t, ts, jar)
	conn := dialChannel(t, ts, jar, hs.SessionID)
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.KindConnect, env.Kind)

	// identity claim cannot match the session-bound guest identity
	join, err := protocol.Event(protocol.EventJoin, map[string]string{"room": "demo", "identity": "mallory"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, protocol.MustEncode(join)))

	// the terminal envelope must arrive before the socket closes
	env = readEnvelope(t, conn)
	assert.Equal(t, protocol.KindDisconnect, env.Kind)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestStatsEndpoint(t *testing.T) {
	ts, reg := newTestServer(t)
	reg.Register("c1", nil, "alice", "en")

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 0, stats["rooms"])
	assert.Equal(t, 1, stats["connections"])
}
