package gorillaruntime

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

const (
	// closeWait bounds the time spent writing a close frame.
	closeWait = time.Second

	// maxCloseTextLen is the longest close text that fits a control frame.
	maxCloseTextLen = 123
)

// Session is an interfaces.Session backed by a gorilla websocket connection.
type Session struct {
	id   string
	conn *websocket.Conn

	open          atomic.Bool
	closedLocally atomic.Bool
	closeOnce     sync.Once
	localReason   interfaces.CloseReason

	// writeMu serializes writes; writer is the open writer of a partial
	// message, if any.
	writeMu    sync.Mutex
	writer     io.WriteCloser
	writerType interfaces.MessageType

	mu            sync.RWMutex
	maxTextSize   int
	maxBinarySize int
	handlers      map[interfaces.MessageType]interfaces.MessageHandler
}

// NewSession wraps an open connection.
func NewSession(conn *websocket.Conn) *Session {
	s := &Session{
		id:            uuid.New().String(),
		conn:          conn,
		maxTextSize:   common.DefaultBufferSize,
		maxBinarySize: common.DefaultBufferSize,
		handlers:      make(map[interfaces.MessageType]interfaces.MessageHandler),
	}
	s.open.Store(true)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) IsOpen() bool { return s.open.Load() }

// Conn returns the underlying connection.
func (s *Session) Conn() *websocket.Conn { return s.conn }

// RemoteAddr returns the address of the peer.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Close closes the session with a normal closure.
func (s *Session) Close() error {
	return s.CloseWithReason(common.NormalCloseReason)
}

// CloseWithReason sends a close frame carrying reason and closes the
// connection. Only the first call has any effect.
func (s *Session) CloseWithReason(reason interfaces.CloseReason) error {
	var err error
	s.closeOnce.Do(func() {
		s.localReason = reason
		s.closedLocally.Store(true)
		s.open.Store(false)

		text := reason.Text
		if len(text) > maxCloseTextLen {
			text = text[:maxCloseTextLen]
		}
		msg := websocket.FormatCloseMessage(reason.Code, text)
		werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		if werr == websocket.ErrCloseSent || isClosedConnError(werr) {
			werr = nil
		}
		cerr := s.conn.Close()
		if isClosedConnError(cerr) {
			cerr = nil
		}
		if werr != nil {
			err = common.NewProxyError(common.ErrorKindClose, s.id, werr)
		} else if cerr != nil {
			err = common.NewProxyError(common.ErrorKindClose, s.id, cerr)
		}
	})
	return err
}

// release closes the connection without a close frame, after the peer
// closed it or the read side failed.
func (s *Session) release() {
	s.closeOnce.Do(func() {
		s.open.Store(false)
		_ = s.conn.Close()
	})
}

func (s *Session) SendText(content string, isLast bool) error {
	return s.send(interfaces.MessageTypeText, []byte(content), isLast)
}

func (s *Session) SendBinary(content []byte, isLast bool) error {
	return s.send(interfaces.MessageTypeBinary, content, isLast)
}

// send writes one chunk of a message. The writer of a message stays open
// until its last chunk, so a partial message reaches the peer as one
// WebSocket message.
func (s *Session) send(t interfaces.MessageType, data []byte, isLast bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.IsOpen() {
		return common.ErrSessionClosed
	}
	if s.writer != nil && s.writerType != t {
		return errors.Wrapf(common.ErrMessageInterleaved, "can't send %s while %s message is open", t, s.writerType)
	}

	if s.writer == nil {
		w, err := s.conn.NextWriter(frameType(t))
		if err != nil {
			return err
		}
		s.writer, s.writerType = w, t
	}

	if len(data) > 0 {
		if _, err := s.writer.Write(data); err != nil {
			s.writer = nil
			return err
		}
	}
	if !isLast {
		return nil
	}

	w := s.writer
	s.writer = nil
	return w.Close()
}

func (s *Session) SetMaxTextMessageBufferSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxTextSize = size
}

func (s *Session) SetMaxBinaryMessageBufferSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxBinarySize = size
}

// MaxTextMessageBufferSize returns the text buffer size.
func (s *Session) MaxTextMessageBufferSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxTextSize
}

// MaxBinaryMessageBufferSize returns the binary buffer size.
func (s *Session) MaxBinaryMessageBufferSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxBinarySize
}

func (s *Session) AddMessageHandler(handler interfaces.MessageHandler) error {
	switch handler.Type {
	case interfaces.MessageTypeText:
		if handler.OnText == nil {
			return errors.New("text handler without OnText callback")
		}
	case interfaces.MessageTypeBinary:
		if handler.OnBinary == nil {
			return errors.New("binary handler without OnBinary callback")
		}
	default:
		return errors.Errorf("unsupported message type %d", handler.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[handler.Type]; ok {
		return errors.Wrapf(common.ErrHandlerRegistered, "%s handler on session %s", handler.Type, s.id)
	}
	s.handlers[handler.Type] = handler
	return nil
}

// handler returns the registered handler for t and the buffer size to read
// its messages with.
func (s *Session) handler(t interfaces.MessageType) (interfaces.MessageHandler, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[t]
	size := s.maxTextSize
	if t == interfaces.MessageTypeBinary {
		size = s.maxBinarySize
	}
	if size <= 0 {
		size = common.DefaultBufferSize
	}
	return h, size, ok
}

func frameType(t interfaces.MessageType) int {
	if t == interfaces.MessageTypeBinary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func messageType(frameType int) interfaces.MessageType {
	if frameType == websocket.BinaryMessage {
		return interfaces.MessageTypeBinary
	}
	return interfaces.MessageTypeText
}

func isClosedConnError(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}
