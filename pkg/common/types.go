package common

import (
	"github.com/gorilla/websocket"

	"github.com/koding/wsrelay/pkg/interfaces"
)

// Message is one relayed unit: a whole message, or one chunk of a message
// when IsLast is false.
type Message struct {
	Type   interfaces.MessageType
	Text   string
	Data   []byte
	IsLast bool
}

// TextMessage returns a text Message.
func TextMessage(content string, isLast bool) Message {
	return Message{Type: interfaces.MessageTypeText, Text: content, IsLast: isLast}
}

// BinaryMessage returns a binary Message.
func BinaryMessage(content []byte, isLast bool) Message {
	return Message{Type: interfaces.MessageTypeBinary, Data: content, IsLast: isLast}
}

// Len is the payload size in bytes.
func (m Message) Len() int {
	if m.Type == interfaces.MessageTypeText {
		return len(m.Text)
	}
	return len(m.Data)
}

// MessageOptions describe how messages of one type are delivered.
type MessageOptions struct {
	// Whole asks the runtime to reassemble messages before delivery.
	Whole bool

	// BufferSize is the reassembly limit in whole mode and the chunk size in
	// partial mode. Non-positive values select DefaultBufferSize.
	BufferSize int
}

// ResolvedBufferSize returns the buffer size to apply to a session.
func (o MessageOptions) ResolvedBufferSize() int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}
	return DefaultBufferSize
}

// DirectionOptions configure text and binary delivery for one direction.
type DirectionOptions struct {
	Text   MessageOptions
	Binary MessageOptions
}

// For returns the options for the given message type.
func (o DirectionOptions) For(t interfaces.MessageType) MessageOptions {
	if t == interfaces.MessageTypeBinary {
		return o.Binary
	}
	return o.Text
}

// RelayOptions configure both relay directions.
type RelayOptions struct {
	ClientToTarget DirectionOptions
	TargetToClient DirectionOptions
}

// Resolved returns a copy with every buffer size resolved, so a pair carries
// its own concrete values.
func (o RelayOptions) Resolved() RelayOptions {
	resolve := func(d DirectionOptions) DirectionOptions {
		d.Text.BufferSize = d.Text.ResolvedBufferSize()
		d.Binary.BufferSize = d.Binary.ResolvedBufferSize()
		return d
	}
	return RelayOptions{
		ClientToTarget: resolve(o.ClientToTarget),
		TargetToClient: resolve(o.TargetToClient),
	}
}

var (
	// NormalCloseReason closes a session with a normal closure.
	NormalCloseReason = interfaces.CloseReason{Code: websocket.CloseNormalClosure}

	// ErrorCloseReason closes a session after a failure on either side.
	ErrorCloseReason = interfaces.CloseReason{Code: websocket.CloseInternalServerErr, Text: "proxy error"}

	// UnavailableCloseReason closes a client whose target could not be reached.
	UnavailableCloseReason = interfaces.CloseReason{Code: websocket.CloseTryAgainLater, Text: "target unavailable"}
)

// ForwardableCloseReason returns reason if its code may be sent in a close
// frame, and NormalCloseReason otherwise. Reserved and unassigned codes
// (0, 1004-1006, 1015-2999, >=5000) are never put on the wire.
func ForwardableCloseReason(reason interfaces.CloseReason) interfaces.CloseReason {
	switch code := reason.Code; {
	case code >= websocket.CloseNormalClosure && code <= websocket.CloseUnsupportedData,
		code >= websocket.CloseInvalidFramePayloadData && code <= websocket.CloseTryAgainLater,
		code == 1014, // bad gateway
		code >= 3000 && code < 5000:
		return reason
	}
	return NormalCloseReason
}
