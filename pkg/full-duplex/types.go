package fullduplexproxy

import (
	"net/url"
	"sync"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// Options configure a ProxyPair.
type Options struct {
	// ID identifies the pair in logs. A random UUID is used when empty.
	ID string

	// Target is the URL of the target WebSocket server.
	Target *url.URL

	// EndpointConfig is the default configuration of the outbound handshake,
	// used when OnClientOpen is not given one.
	EndpointConfig *interfaces.EndpointConfig

	// Connector dials the target.
	Connector interfaces.Connector

	// Relay configures whole/partial delivery per direction and type.
	Relay common.RelayOptions
}

type targetState int

const (
	targetAbsent targetState = iota
	targetPresent
	targetClosed
)

func (s targetState) String() string {
	switch s {
	case targetAbsent:
		return "absent"
	case targetPresent:
		return "present"
	default:
		return "closed"
	}
}

// pairState is shared by both sides of a pair. client is set at construction
// and never reassigned; target is only assigned by the target side.
type pairState struct {
	id        string
	targetURL *url.URL
	relay     common.RelayOptions
	client    interfaces.Session

	mu          sync.RWMutex
	target      interfaces.Session
	targetState targetState
}

// ProxyPair binds one client session to one target session and relays
// messages between them.
type ProxyPair struct {
	state *pairState

	clientSide *ClientSideHandler
	targetSide *TargetSideHandler
}
