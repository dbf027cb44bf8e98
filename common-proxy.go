package wsrelay

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// websocketHeaders are added back by the dialer and must not be duplicated.
var websocketHeaders = []string{
	"Connection",
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Protocol",
	"Upgrade",
}

var hopByHopHeaders = []string{
	"Keep-Alive",
	"Transfer-Encoding",
	"TE",
	"Trailer",
	"Proxy-Authorization",
	"Proxy-Authenticate",
}

// backendFunc returns the function resolving the target URL of a request.
// The configured URL is never modified.
func backendFunc(options ProxyOptions) func(*http.Request) *url.URL {
	if options.Url == nil {
		return nil
	}
	target := *options.Url
	return func(r *http.Request) *url.URL {
		u := target
		if options.ForwardRequestPath {
			u.Fragment = r.URL.Fragment
			u.Path = r.URL.Path
			u.RawPath = r.URL.RawPath
			u.RawQuery = r.URL.RawQuery
		}
		return &u
	}
}

// requestHeader builds the headers sent to the target for req.
func (w *WebsocketProxy) requestHeader(req *http.Request) http.Header {
	var requestHeader http.Header

	// enable more of a passthrough proxy
	if w.options.NaturalTunnel {
		requestHeader = http.Header{}
		copyHeader(requestHeader, req.Header)

		/*
			Please see: https://github.com/koding/websocketproxy/pull/44/
		*/
		// gorilla/websocket adds the handshake headers back when Dial() is
		// called, and subprotocols are not negotiated through the relay.
		for _, h := range websocketHeaders {
			requestHeader.Del(h)
		}

		// Remove all hop-by-hop headers
		for _, h := range hopByHopHeaders {
			requestHeader.Del(h)
		}
	} else { // default library behavior
		requestHeader = http.Header{}

		if origin := req.Header.Get("User-Agent"); origin != "" {
			requestHeader.Add("User-Agent", origin)
		}
		if origin := req.Header.Get("Origin"); origin != "" {
			requestHeader.Add("Origin", origin)
		}
		for _, cookie := range req.Header[http.CanonicalHeaderKey("Cookie")] {
			requestHeader.Add("Cookie", cookie)
		}
		if req.Host != "" {
			requestHeader.Set("Host", req.Host)
		}
	}

	// Pass X-Forwarded-For headers too, code below is a part of
	// httputil.ReverseProxy. See http://en.wikipedia.org/wiki/X-Forwarded-For
	// for more information use RFC7239 http://tools.ietf.org/html/rfc7239
	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		// If we aren't the first proxy retain prior
		// X-Forwarded-For information as a comma+space
		// separated list and fold multiple headers into one.
		if prior, ok := req.Header["X-Forwarded-For"]; ok {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		requestHeader.Set("X-Forwarded-For", clientIP)
	}

	// Set the originating protocol of the incoming HTTP request. The SSL might
	// be terminated on our site and because we doing proxy adding this would
	// be helpful for applications on the backend.
	requestHeader.Set("X-Forwarded-Proto", "http")
	if req.TLS != nil {
		requestHeader.Set("X-Forwarded-Proto", "https")
	}

	// Enable the director to copy any additional headers it desires for
	// forwarding to the remote server.
	if w.Director != nil {
		w.Director.AdjustHeaders(req, requestHeader)
	}

	return requestHeader
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
