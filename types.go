// Package wsrelay is a reverse proxy relaying WebSocket messages between an
// inbound client connection and a connection to a target server.
package wsrelay

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/koding/wsrelay/pkg/common"
	fullduplexproxy "github.com/koding/wsrelay/pkg/full-duplex"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// ProxyHandler returns a new http.Handler interface that reverse proxies the
// request to the given target.
func ProxyHandler(options ProxyOptions) http.Handler { return NewProxy(options) }

// ProxyOptions these are the available options for a Proxy
type ProxyOptions struct {
	Url           *url.URL
	NaturalTunnel bool
	Upgrader      *websocket.Upgrader
	Dialer        *websocket.Dialer

	// ForwardRequestPath applies the path and query of the incoming request
	// to Url. Otherwise every client is relayed to Url as is.
	ForwardRequestPath bool

	// Relay configures whole or partial delivery per direction and type.
	Relay common.RelayOptions

	Director interfaces.DirectorCallback
	Manager  interfaces.ManageCallback

	// Connector, if non-nil, replaces the gorilla connector built from Dialer.
	Connector interfaces.Connector
}

// WebsocketProxy is an HTTP Handler that takes an incoming WebSocket
// connection and relays its messages to another server.
type WebsocketProxy struct {
	// Director, if non-nil, is a function that may copy additional request
	// headers from the incoming WebSocket connection into the output headers
	// which will be forwarded to another server.
	Director interfaces.DirectorCallback

	// Manager, if non-nil, is told when a relayed connection is removed.
	Manager interfaces.ManageCallback

	// Upgrader specifies the parameters for upgrading a incoming HTTP
	// connection to a WebSocket connection. If nil, DefaultUpgrader is used.
	Upgrader *websocket.Upgrader

	// Connector opens the connection to the backend WebSocket server.
	Connector interfaces.Connector

	// ProxyOptions describe how to initialize the Proxy
	options ProxyOptions

	// Backend returns the backend URL which the proxy uses to reverse proxy
	// the incoming WebSocket connection. Request is the initial incoming and
	// unmodified request.
	backend func(*http.Request) *url.URL

	// active pairs by id, so they can be closed on demand
	mu    sync.Mutex
	pairs map[string]*fullduplexproxy.ProxyPair
}
