package fullduplexproxy

import (
	"context"

	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// TargetSideHandler handles the events of the target session. It is opened
// by the connector once the client side has dialed the target.
type TargetSideHandler struct {
	state *pairState
}

// OnOpen pairs session with the client and registers its message handlers.
func (h *TargetSideHandler) OnOpen(ctx context.Context, session interfaces.Session, config *interfaces.EndpointConfig) {
	if !h.state.setTarget(session) {
		klog.Errorf("wsrelay: [target %s] pair %s already has a target, closing\n", session.ID(), h.state.id)
		closeSession("target", session, common.NormalCloseReason)
		return
	}
	klog.V(2).Infof("wsrelay: [target %s] connected to endpoint", session.ID())
	klog.V(5).Infof("wsrelay: [target %s] endpoint: %s", session.ID(), h.state.targetURL.Redacted())

	if !h.state.client.IsOpen() {
		klog.V(2).Infof("wsrelay: [target %s] client %s is gone, closing target", session.ID(), h.state.client.ID())
		h.state.closeTarget(common.NormalCloseReason)
		return
	}

	if err := registerMessageHandlers(session, h.state.relay.TargetToClient, h.relay); err != nil {
		klog.Errorf("wsrelay: [target %s] couldn't register message handlers: %v\n", session.ID(), err)
		h.state.closeClient(common.ErrorCloseReason)
		h.state.closeTarget(common.ErrorCloseReason)
		return
	}
	klog.V(2).Infof("wsrelay: [target %s] is ready to proxy requests for [client %s]", session.ID(), h.state.client.ID())
}

// OnClose closes the client when the target goes away, passing on the
// target's close code where it can be sent.
func (h *TargetSideHandler) OnClose(session interfaces.Session, reason interfaces.CloseReason) {
	if !h.owns(session) {
		return
	}
	klog.V(2).Infof("wsrelay: [target %s] session has been closed", session.ID())
	klog.V(5).Infof("wsrelay: [target %s] session close reason: %d %s", session.ID(), reason.Code, reason.Text)

	h.state.markTargetClosed()
	h.state.closeClient(common.ForwardableCloseReason(reason))
}

// OnError closes the client and then the target.
func (h *TargetSideHandler) OnError(session interfaces.Session, err error) {
	if !h.owns(session) {
		return
	}
	klog.V(3).Infof("wsrelay: [target %s] error has been detected: %v", session.ID(), err)

	h.state.closeClient(common.ErrorCloseReason)
	h.state.closeTarget(common.ErrorCloseReason)
}

// owns reports whether session is the target paired by this handler. Events
// of a rejected second target must not affect the pair.
func (h *TargetSideHandler) owns(session interfaces.Session) bool {
	target, _ := h.state.targetSession()
	return target == session
}

func (h *TargetSideHandler) relay(msg common.Message) {
	h.state.relayTargetToClient(msg)
}
