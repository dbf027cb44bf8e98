package fullduplexproxy

import (
	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// send writes msg to session with the same type, content and isLast flag.
func send(session interfaces.Session, msg common.Message) error {
	var err error
	switch msg.Type {
	case interfaces.MessageTypeText:
		err = session.SendText(msg.Text, msg.IsLast)
	case interfaces.MessageTypeBinary:
		err = session.SendBinary(msg.Data, msg.IsLast)
	default:
		return nil
	}
	if err != nil {
		return common.NewProxyError(common.ErrorKindSend, session.ID(), err)
	}
	return nil
}

// relayClientToTarget forwards a client message to the target. A failed
// write closes the client and then the target.
func (p *pairState) relayClientToTarget(msg common.Message) {
	target, state := p.targetSession()
	if state != targetPresent {
		klog.Errorf("wsrelay: [client %s] dropping %s message, target is %s: %v\n",
			p.client.ID(), msg.Type, state, common.ErrConnectionNotEstablished)
		return
	}

	klog.V(6).Infof("wsrelay: sending %s message (%d bytes, last: %t) from [client %s] -> [target %s]",
		msg.Type, msg.Len(), msg.IsLast, p.client.ID(), target.ID())
	if err := send(target, msg); err != nil {
		klog.Errorf("wsrelay: [target %s] error while sending %s message to target: %v\n", target.ID(), msg.Type, err)
		p.closeClient(common.ErrorCloseReason)
		p.closeTarget(common.ErrorCloseReason)
		return
	}
	klog.V(4).Infof("wsrelay: sent %s message from [client %s] -> [target %s]", msg.Type, p.client.ID(), target.ID())
}

// relayTargetToClient forwards a target message to the client. A failed
// write closes the target and then the client.
func (p *pairState) relayTargetToClient(msg common.Message) {
	target, state := p.targetSession()
	if state != targetPresent {
		klog.Errorf("wsrelay: [client %s] dropping %s message from target, target is %s: %v\n",
			p.client.ID(), msg.Type, state, common.ErrConnectionNotEstablished)
		return
	}
	targetID := target.ID()

	klog.V(6).Infof("wsrelay: sending %s message (%d bytes, last: %t) from [target %s] -> [client %s]",
		msg.Type, msg.Len(), msg.IsLast, targetID, p.client.ID())
	if err := send(p.client, msg); err != nil {
		klog.Errorf("wsrelay: [client %s] error while sending %s message to client: %v\n", p.client.ID(), msg.Type, err)
		p.closeTarget(common.ErrorCloseReason)
		p.closeClient(common.ErrorCloseReason)
		return
	}
	klog.V(4).Infof("wsrelay: sent %s message from [target %s] -> [client %s]", msg.Type, targetID, p.client.ID())
}

// registerMessageHandlers adds one handler per message type to session,
// whole or partial according to options, each feeding relay.
func registerMessageHandlers(session interfaces.Session, options common.DirectionOptions, relay func(common.Message)) error {
	for _, t := range []interfaces.MessageType{interfaces.MessageTypeText, interfaces.MessageTypeBinary} {
		opts := options.For(t)
		size := opts.ResolvedBufferSize()
		whole := opts.Whole

		handler := interfaces.MessageHandler{Type: t, Whole: whole}
		switch t {
		case interfaces.MessageTypeText:
			session.SetMaxTextMessageBufferSize(size)
			handler.OnText = func(content string, isLast bool) {
				relay(common.TextMessage(content, isLast || whole))
			}
		case interfaces.MessageTypeBinary:
			session.SetMaxBinaryMessageBufferSize(size)
			handler.OnBinary = func(content []byte, isLast bool) {
				relay(common.BinaryMessage(content, isLast || whole))
			}
		}

		if err := session.AddMessageHandler(handler); err != nil {
			return err
		}
		klog.V(4).Infof("wsrelay: [session %s] registered %s handler (whole: %t, buffer: %d)", session.ID(), t, whole, size)
	}
	return nil
}
