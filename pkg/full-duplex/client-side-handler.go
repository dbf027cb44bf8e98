package fullduplexproxy

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// ClientSideHandler handles the events of the client session. Opening it
// connects the target; closing it or failing closes the target.
type ClientSideHandler struct {
	state     *pairState
	target    *TargetSideHandler
	connector interfaces.Connector
	config    *interfaces.EndpointConfig

	opened atomic.Bool
}

// OnOpen connects to the target. On failure the client session is closed and
// the pair never gets a target. Once the target is open the client's message
// handlers are registered, so no client message arrives before there is a
// target to relay it to.
func (h *ClientSideHandler) OnOpen(ctx context.Context, session interfaces.Session, config *interfaces.EndpointConfig) {
	if session != h.state.client {
		klog.Errorf("wsrelay: [client %s] open event for a session not owned by pair %s\n", session.ID(), h.state.id)
		return
	}
	if !h.opened.CompareAndSwap(false, true) {
		klog.Errorf("wsrelay: [client %s] session already opened, ignoring\n", session.ID())
		return
	}
	klog.V(2).Infof("wsrelay: [client %s] connection has been opened", session.ID())

	if config == nil {
		config = h.config
	}
	if _, err := h.connector.Connect(ctx, h.target, config, h.state.targetURL); err != nil {
		if !errors.Is(err, common.ErrConnect) {
			err = common.NewProxyError(common.ErrorKindConnect, session.ID(), err)
		}
		klog.Errorf("wsrelay: [client %s] error while creating proxy session with target: %s\n",
			session.ID(), common.DescribeError(err, h.state.targetURL))
		h.state.closeClient(common.UnavailableCloseReason)
		return
	}

	// the target may have failed between its open event and now
	if _, state := h.state.targetSession(); state != targetPresent {
		klog.V(2).Infof("wsrelay: [client %s] target is %s after connect, closing client", session.ID(), state)
		h.state.closeClient(common.UnavailableCloseReason)
		return
	}

	if err := registerMessageHandlers(session, h.state.relay.ClientToTarget, h.relay); err != nil {
		klog.Errorf("wsrelay: [client %s] couldn't register message handlers: %v\n", session.ID(), err)
		h.state.closeTarget(common.ErrorCloseReason)
		h.state.closeClient(common.ErrorCloseReason)
	}
}

// OnClose closes the target when the client goes away.
func (h *ClientSideHandler) OnClose(session interfaces.Session, reason interfaces.CloseReason) {
	klog.V(2).Infof("wsrelay: [client %s] session has been closed", session.ID())
	klog.V(5).Infof("wsrelay: [client %s] session close reason: %d %s", session.ID(), reason.Code, reason.Text)

	h.state.closeTarget(common.ForwardableCloseReason(reason))
}

// OnError closes the target and then the client, in case the runtime does
// not close the client on errors itself.
func (h *ClientSideHandler) OnError(session interfaces.Session, err error) {
	klog.V(3).Infof("wsrelay: [client %s] error has been detected: %s", session.ID(), common.DescribeError(err, h.state.targetURL))

	h.state.closeTarget(common.ErrorCloseReason)
	h.state.closeClient(common.ErrorCloseReason)
}

func (h *ClientSideHandler) relay(msg common.Message) {
	h.state.relayClientToTarget(msg)
}

func defaultEndpointConfig() *interfaces.EndpointConfig {
	return &interfaces.EndpointConfig{Header: http.Header{}}
}
