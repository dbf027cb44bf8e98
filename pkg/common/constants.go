package common

import (
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	// DefaultBufferSize is the reassembly limit for whole messages and the
	// chunk size for partial messages when none is configured.
	DefaultBufferSize int = 8192
)

var (
	// DefaultUpgrader specifies the parameters for upgrading an HTTP
	// connection to a WebSocket connection.
	DefaultUpgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// DefaultDialer is a dialer with all fields set to the default zero values.
	DefaultDialer = websocket.DefaultDialer

	// ErrConnectionNotEstablished connection not established
	ErrConnectionNotEstablished = errors.New("connection not established")

	// ErrConnect matches any error raised while connecting to the target.
	ErrConnect = errors.New("connect failed")

	// ErrSend matches any error raised while writing a message to a session.
	ErrSend = errors.New("send failed")

	// ErrClose matches any error raised while closing a session.
	ErrClose = errors.New("close failed")

	// ErrSessionClosed is returned when writing to a session that is closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrHandlerRegistered is returned when a second handler is added for a
	// message type.
	ErrHandlerRegistered = errors.New("message handler already registered")

	// ErrMessageInterleaved is returned when a message of another type is sent
	// while a partial message is still open.
	ErrMessageInterleaved = errors.New("partial message still in progress")

	// ErrMessageTooBig is reported when a whole message exceeds its buffer size.
	ErrMessageTooBig = errors.New("message exceeds buffer size")
)
