// Copyright 2022 The dvonthenen WebSocketProxy Authors. All Rights Reserved.
// Use of this source code is governed by an Apache-2.0
// license that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package interfaces defines the contracts between the relay core and the
// WebSocket runtime hosting it.
package interfaces

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
)

// MessageType identifies the kind of a data message.
type MessageType int

const (
	MessageTypeText MessageType = iota + 1
	MessageTypeBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// CloseReason carries the close code and text reported for a session.
type CloseReason struct {
	Code int
	Text string
}

// MessageHandler receives the messages of one type arriving on a session.
// When Whole is set the runtime reassembles each message and invokes the
// callback once with isLast true; otherwise the callback is invoked for each
// chunk as it is read.
type MessageHandler struct {
	Type  MessageType
	Whole bool

	// OnText is used for MessageTypeText handlers.
	OnText func(content string, isLast bool)

	// OnBinary is used for MessageTypeBinary handlers.
	OnBinary func(content []byte, isLast bool)
}

// Session is one side of a relay: an open WebSocket connection that can be
// written to and closed.
type Session interface {
	// ID is stable for the lifetime of the session and used for logging.
	ID() string

	IsOpen() bool

	// Close closes the session with a normal closure. Calling it more than
	// once is a no-op.
	Close() error

	// CloseWithReason closes the session sending the given code and text.
	CloseWithReason(reason CloseReason) error

	SendText(content string, isLast bool) error
	SendBinary(content []byte, isLast bool) error

	SetMaxTextMessageBufferSize(size int)
	SetMaxBinaryMessageBufferSize(size int)

	// AddMessageHandler registers the handler for handler.Type. Only one
	// handler per type may be registered.
	AddMessageHandler(handler MessageHandler) error
}

// Configurator may adjust the outbound handshake request headers right before
// the target connection is dialed.
type Configurator interface {
	BeforeRequest(header http.Header)
}

// EndpointConfig configures the handshake of a session.
type EndpointConfig struct {
	// Header holds the request headers sent to the target.
	Header http.Header

	// Configurator, if non-nil, is invoked with a copy of Header before dialing.
	Configurator Configurator

	// TLSClientConfig overrides the dialer's TLS configuration, e.g. to present
	// a client certificate to the target.
	TLSClientConfig *tls.Config
}

// Endpoint receives the lifecycle events of a session.
type Endpoint interface {
	OnOpen(ctx context.Context, session Session, config *EndpointConfig)
	OnClose(session Session, reason CloseReason)
	OnError(session Session, err error)
}

// Connector establishes outbound sessions. On success the endpoint's OnOpen
// has been delivered before Connect returns.
type Connector interface {
	Connect(ctx context.Context, endpoint Endpoint, config *EndpointConfig, target *url.URL) (Session, error)
}

// ManageCallback is a callback to manage connections
type ManageCallback interface {
	RemoveConnection(uniqueId string)
}

// DirectorCallback is a callback to modify the header before they passthrough the proxy
type DirectorCallback interface {
	AdjustHeaders(incoming *http.Request, out http.Header)
}
