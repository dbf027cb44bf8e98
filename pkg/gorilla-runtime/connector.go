package gorillaruntime

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// Connector dials target WebSocket servers with a gorilla Dialer.
type Connector struct {
	//  Dialer contains options for connecting to the backend WebSocket server.
	//  If nil, DefaultDialer is used.
	Dialer *websocket.Dialer
}

// NewConnector returns a Connector using dialer.
func NewConnector(dialer *websocket.Dialer) *Connector {
	return &Connector{Dialer: dialer}
}

// Connect dials target. On success the endpoint's open event is delivered
// before Connect returns and the session is read from a new goroutine.
func (c *Connector) Connect(ctx context.Context, endpoint interfaces.Endpoint, config *interfaces.EndpointConfig, target *url.URL) (interfaces.Session, error) {
	if target == nil {
		return nil, common.NewProxyError(common.ErrorKindConnect, "", errors.New("target URL is nil"))
	}

	// using a custom dialer?
	dialer := c.Dialer
	if dialer == nil {
		dialer = common.DefaultDialer
	}

	requestHeader := http.Header{}
	if config != nil {
		if config.Header != nil {
			requestHeader = config.Header.Clone()
		}
		if config.Configurator != nil {
			config.Configurator.BeforeRequest(requestHeader)
		}
		if config.TLSClientConfig != nil {
			d := *dialer
			d.TLSClientConfig = config.TLSClientConfig
			dialer = &d
		}
	}

	conn, resp, err := dialer.DialContext(ctx, target.String(), requestHeader)
	if err != nil {
		if resp != nil {
			// If the WebSocket handshake fails, ErrBadHandshake is returned
			// along with a non-nil *http.Response.
			err = errors.Wrapf(err, "target responded %s", resp.Status)
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		klog.V(3).Infof("wsrelay: couldn't dial to remote backend url %s: %v", target.Redacted(), err)
		return nil, common.NewProxyError(common.ErrorKindConnect, "", errors.Wrapf(err, "dial %s", target.Redacted()))
	}

	session := NewSession(conn)
	klog.V(4).Infof("wsrelay: [session %s] dialed %s", session.ID(), target.Redacted())

	endpoint.OnOpen(ctx, session, config)
	go session.readLoop(endpoint)

	return session, nil
}
