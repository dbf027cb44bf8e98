package wsrelay

import (
	"net/http"

	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/common"
	fullduplexproxy "github.com/koding/wsrelay/pkg/full-duplex"
	gorillaruntime "github.com/koding/wsrelay/pkg/gorilla-runtime"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// NewProxy returns a new Websocket reverse proxy relaying every incoming
// connection to the target in options.
func NewProxy(options ProxyOptions) *WebsocketProxy {
	connector := options.Connector
	if connector == nil {
		connector = gorillaruntime.NewConnector(options.Dialer)
	}
	return &WebsocketProxy{
		Director:  options.Director,
		Manager:   options.Manager,
		Upgrader:  options.Upgrader,
		Connector: connector,
		backend:   backendFunc(options),
		options:   options,
		pairs:     make(map[string]*fullduplexproxy.ProxyPair),
	}
}

// ServeHTTP implements the http.Handler that proxies WebSocket connections.
// The client is upgraded first; the target is dialed when the client session
// opens and the client is closed again if the target can't be reached.
func (w *WebsocketProxy) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if w.backend == nil {
		klog.Errorf("wsrelay: backend function is not defined\n")
		http.Error(rw, "internal server error (code: 1)", http.StatusInternalServerError)
		return
	}

	backendURL := w.backend(req)
	if backendURL == nil {
		klog.Errorf("wsrelay: backend URL is nil\n")
		http.Error(rw, "internal server error (code: 2)", http.StatusInternalServerError)
		return
	}

	// Headers forwarded to the target are taken from the request before it
	// is hijacked by the upgrade.
	config := &interfaces.EndpointConfig{Header: w.requestHeader(req)}

	// using a custom upgrader?
	upgrader := w.Upgrader
	if upgrader == nil {
		upgrader = common.DefaultUpgrader
	}

	conn, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		klog.Errorf("wsrelay: couldn't upgrade %s\n", err)
		return
	}

	session := gorillaruntime.NewSession(conn)
	pair, err := fullduplexproxy.NewProxyPair(session, fullduplexproxy.Options{
		Target:         backendURL,
		EndpointConfig: config,
		Connector:      w.Connector,
		Relay:          w.options.Relay,
	})
	if err != nil {
		klog.Errorf("wsrelay: couldn't create proxy pair: %v\n", err)
		_ = session.CloseWithReason(common.ErrorCloseReason)
		return
	}

	w.add(pair)
	defer w.remove(pair)

	klog.V(2).Infof("wsrelay: [pair %s] relaying %s to %s", pair.ID(), req.RemoteAddr, backendURL.Redacted())
	gorillaruntime.Serve(req.Context(), session, pair.ClientEndpoint(), nil)

	// no half-open pair outlives the client
	pair.Close()
}

// ActiveConnections returns the number of pairs currently relaying.
func (w *WebsocketProxy) ActiveConnections() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pairs)
}

// Stop websocket proxy on demand
func (w *WebsocketProxy) CloseProxy() {
	w.mu.Lock()
	pairs := make([]*fullduplexproxy.ProxyPair, 0, len(w.pairs))
	for _, p := range w.pairs {
		pairs = append(pairs, p)
	}
	w.mu.Unlock()

	for _, p := range pairs {
		p.Close()
	}
}

func (w *WebsocketProxy) add(pair *fullduplexproxy.ProxyPair) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pairs[pair.ID()] = pair
}

func (w *WebsocketProxy) remove(pair *fullduplexproxy.ProxyPair) {
	w.mu.Lock()
	delete(w.pairs, pair.ID())
	w.mu.Unlock()

	klog.V(2).Infof("wsrelay: [pair %s] removed", pair.ID())
	if w.Manager != nil {
		w.Manager.RemoveConnection(pair.ID())
	}
}
