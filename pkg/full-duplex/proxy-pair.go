package fullduplexproxy

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// NewProxyPair returns a pair for an inbound session that has just been
// accepted. The target is not dialed until OnClientOpen.
func NewProxyPair(client interfaces.Session, options Options) (*ProxyPair, error) {
	if client == nil {
		return nil, errors.New("client session must not be nil")
	}
	if !client.IsOpen() {
		return nil, errors.Errorf("client session %s must be open", client.ID())
	}
	if options.Target == nil {
		return nil, errors.New("target URL must not be nil")
	}
	if options.Connector == nil {
		return nil, errors.New("connector must not be nil")
	}

	id := options.ID
	if id == "" {
		id = uuid.New().String()
	}
	target := *options.Target
	config := options.EndpointConfig
	if config == nil {
		config = defaultEndpointConfig()
	}

	state := &pairState{
		id:        id,
		targetURL: &target,
		relay:     options.Relay.Resolved(),
		client:    client,
	}
	targetSide := &TargetSideHandler{state: state}
	clientSide := &ClientSideHandler{
		state:     state,
		target:    targetSide,
		connector: options.Connector,
		config:    config,
	}

	return &ProxyPair{
		state:      state,
		clientSide: clientSide,
		targetSide: targetSide,
	}, nil
}

// ID identifies the pair in logs.
func (p *ProxyPair) ID() string { return p.state.id }

// TargetURL returns a copy of the target URL.
func (p *ProxyPair) TargetURL() *url.URL {
	u := *p.state.targetURL
	return &u
}

// RelayOptions returns the resolved relay options of the pair.
func (p *ProxyPair) RelayOptions() common.RelayOptions { return p.state.relay }

// ClientSession returns the inbound session.
func (p *ProxyPair) ClientSession() interfaces.Session { return p.state.client }

// TargetSession returns the outbound session, or nil if the target was never
// connected.
func (p *ProxyPair) TargetSession() interfaces.Session {
	target, _ := p.state.targetSession()
	return target
}

// ClientEndpoint returns the handler to register for the client session's
// lifecycle events.
func (p *ProxyPair) ClientEndpoint() interfaces.Endpoint { return p.clientSide }

// TargetEndpoint returns the handler given to the connector for the target
// session's lifecycle events.
func (p *ProxyPair) TargetEndpoint() interfaces.Endpoint { return p.targetSide }

// OnClientOpen connects the target using config, or the pair's default
// endpoint configuration when config is nil.
func (p *ProxyPair) OnClientOpen(ctx context.Context, config *interfaces.EndpointConfig) {
	p.clientSide.OnOpen(ctx, p.state.client, config)
}

// OnClientClose closes the target, if any.
func (p *ProxyPair) OnClientClose(reason interfaces.CloseReason) {
	p.clientSide.OnClose(p.state.client, reason)
}

// OnClientError closes the target and the client.
func (p *ProxyPair) OnClientError(err error) {
	p.clientSide.OnError(p.state.client, err)
}

// OnTargetOpen pairs session as the target.
func (p *ProxyPair) OnTargetOpen(session interfaces.Session, config *interfaces.EndpointConfig) {
	p.targetSide.OnOpen(context.Background(), session, config)
}

// OnTargetClose closes the client.
func (p *ProxyPair) OnTargetClose(reason interfaces.CloseReason) {
	if target := p.TargetSession(); target != nil {
		p.targetSide.OnClose(target, reason)
	}
}

// OnTargetError closes the client and the target.
func (p *ProxyPair) OnTargetError(err error) {
	if target := p.TargetSession(); target != nil {
		p.targetSide.OnError(target, err)
	}
}

// RelayClientToTarget forwards a message received from the client.
func (p *ProxyPair) RelayClientToTarget(msg common.Message) {
	p.state.relayClientToTarget(msg)
}

// RelayTargetToClient forwards a message received from the target.
func (p *ProxyPair) RelayTargetToClient(msg common.Message) {
	p.state.relayTargetToClient(msg)
}

// Close closes both sessions. It is safe to call at any time and more than
// once.
func (p *ProxyPair) Close() {
	p.state.closeTarget(common.NormalCloseReason)
	p.state.closeClient(common.NormalCloseReason)
}

// IsClosed reports whether neither session is open.
func (p *ProxyPair) IsClosed() bool {
	if p.state.client.IsOpen() {
		return false
	}
	target, _ := p.state.targetSession()
	return target == nil || !target.IsOpen()
}
