package wsrelay

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koding/wsrelay/pkg/common"
)

const waitTimeout = 5 * time.Second

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// echoBackend echoes every message back to the sender.
func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := common.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, p, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err = conn.WriteMessage(messageType, p); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// startProxy serves a proxy built from options under /proxy.
func startProxy(t *testing.T, options ProxyOptions) (*WebsocketProxy, string) {
	t.Helper()
	proxy := NewProxy(options)
	mux := http.NewServeMux()
	mux.Handle("/proxy", proxy)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return proxy, wsURL(srv.URL) + "/proxy"
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func dial(t *testing.T, u string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readCloseError(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "expected a close frame, got %v", err)
		return closeErr
	}
}

func TestProxy(t *testing.T) {
	backend := echoBackend(t)
	_, proxyURL := startProxy(t, ProxyOptions{Url: mustParse(t, wsURL(backend.URL))})

	// dial our proxy, which relays our messages to the backend echo server
	conn := dial(t, proxyURL, nil)

	msg := "hello kite"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	messageType, p, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType, "incoming message type is not Text")
	assert.Equal(t, msg, string(p))

	payload := []byte{0x00, 0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))

	messageType, p, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, payload, p)
}

func TestProxyChunkedRelay(t *testing.T) {
	backend := echoBackend(t)
	chunked := common.DirectionOptions{
		Text:   common.MessageOptions{BufferSize: 3},
		Binary: common.MessageOptions{BufferSize: 3},
	}
	_, proxyURL := startProxy(t, ProxyOptions{
		Url:   mustParse(t, wsURL(backend.URL)),
		Relay: common.RelayOptions{ClientToTarget: chunked, TargetToClient: chunked},
	})
	conn := dial(t, proxyURL, nil)

	// relayed in chunks of three bytes, received as one message
	msg := strings.Repeat("Hello", 100)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	messageType, p, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.Equal(t, msg, string(p))
}

func TestProxyWholeMessageTooBig(t *testing.T) {
	backend := echoBackend(t)
	_, proxyURL := startProxy(t, ProxyOptions{
		Url: mustParse(t, wsURL(backend.URL)),
		Relay: common.RelayOptions{
			ClientToTarget: common.DirectionOptions{Text: common.MessageOptions{Whole: true, BufferSize: 8}},
		},
	})
	conn := dial(t, proxyURL, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("small")))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "small", string(p))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("much too large")))
	assert.Equal(t, websocket.CloseMessageTooBig, readCloseError(t, conn).Code)
}

func TestProxyTargetClose(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := common.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4000, "bye"), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	defer backend.Close()

	_, proxyURL := startProxy(t, ProxyOptions{Url: mustParse(t, wsURL(backend.URL))})
	conn := dial(t, proxyURL, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("close please")))

	closeErr := readCloseError(t, conn)
	assert.Equal(t, 4000, closeErr.Code)
	assert.Equal(t, "bye", closeErr.Text)
}

func TestProxyClientClose(t *testing.T) {
	closed := make(chan int, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := common.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					closed <- closeErr.Code
				} else {
					closed <- 0
				}
				return
			}
		}
	}))
	defer backend.Close()

	_, proxyURL := startProxy(t, ProxyOptions{Url: mustParse(t, wsURL(backend.URL))})
	conn := dial(t, proxyURL, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")))

	select {
	case code := <-closed:
		assert.Equal(t, websocket.CloseGoingAway, code)
	case <-time.After(waitTimeout):
		t.Fatal("target was not closed")
	}
}

func TestProxyTargetUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, proxyURL := startProxy(t, ProxyOptions{Url: mustParse(t, "ws://"+addr+"/ws")})

	// the client is accepted first and closed once the target can't be reached
	conn := dial(t, proxyURL, nil)

	closeErr := readCloseError(t, conn)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
}

type headerDirector struct{}

func (headerDirector) AdjustHeaders(incoming *http.Request, out http.Header) {
	out.Set("X-Director", incoming.URL.Path)
}

func TestProxyHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := common.DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer backend.Close()

	header := http.Header{
		"Cookie":          {"session=abc"},
		"X-Custom":        {"custom"},
		"X-Forwarded-For": {"10.0.0.1"},
	}

	t.Run("default", func(t *testing.T) {
		_, proxyURL := startProxy(t, ProxyOptions{
			Url:      mustParse(t, wsURL(backend.URL)),
			Director: headerDirector{},
		})
		dial(t, proxyURL, header)

		got := <-headers
		assert.Equal(t, "session=abc", got.Get("Cookie"))
		assert.Empty(t, got.Get("X-Custom"))
		assert.Equal(t, "10.0.0.1, 127.0.0.1", got.Get("X-Forwarded-For"))
		assert.Equal(t, "http", got.Get("X-Forwarded-Proto"))
		assert.Equal(t, "/proxy", got.Get("X-Director"))
	})

	t.Run("natural tunnel", func(t *testing.T) {
		_, proxyURL := startProxy(t, ProxyOptions{
			Url:           mustParse(t, wsURL(backend.URL)),
			NaturalTunnel: true,
		})
		dial(t, proxyURL, header)

		got := <-headers
		assert.Equal(t, "custom", got.Get("X-Custom"))
		assert.Equal(t, "session=abc", got.Get("Cookie"))
		assert.Len(t, got.Values("Sec-Websocket-Key"), 1, "handshake headers are not duplicated")
	})
}

type recordingManager struct {
	mu      sync.Mutex
	removed []string
}

func (m *recordingManager) RemoveConnection(uniqueId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, uniqueId)
}

func (m *recordingManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.removed)
}

func TestCloseProxy(t *testing.T) {
	backend := echoBackend(t)
	manager := &recordingManager{}
	proxy, proxyURL := startProxy(t, ProxyOptions{
		Url:     mustParse(t, wsURL(backend.URL)),
		Manager: manager,
	})

	first := dial(t, proxyURL, nil)
	second := dial(t, proxyURL, nil)
	assert.Eventually(t, func() bool { return proxy.ActiveConnections() == 2 }, waitTimeout, 10*time.Millisecond)

	proxy.CloseProxy()

	assert.Equal(t, websocket.CloseNormalClosure, readCloseError(t, first).Code)
	assert.Equal(t, websocket.CloseNormalClosure, readCloseError(t, second).Code)
	assert.Eventually(t, func() bool { return proxy.ActiveConnections() == 0 }, waitTimeout, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return manager.count() == 2 }, waitTimeout, 10*time.Millisecond)
}

func TestProxyWithoutBackend(t *testing.T) {
	proxy := NewProxy(ProxyOptions{})

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/proxy", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "code: 1")
}

func TestBackendFunc(t *testing.T) {
	target := mustParse(t, "ws://backend:9000/base")
	req := httptest.NewRequest(http.MethodGet, "http://proxy/chat/room?id=7", nil)

	u := backendFunc(ProxyOptions{Url: target})(req)
	assert.Equal(t, "ws://backend:9000/base", u.String())

	u = backendFunc(ProxyOptions{Url: target, ForwardRequestPath: true})(req)
	assert.Equal(t, "ws://backend:9000/chat/room?id=7", u.String())

	// the configured URL is never modified
	assert.Equal(t, "ws://backend:9000/base", target.String())
	assert.Nil(t, backendFunc(ProxyOptions{}))
}
