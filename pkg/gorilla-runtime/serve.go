package gorillaruntime

import (
	"context"
	"io"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// Serve delivers the open event of session to endpoint, then reads messages
// until the session is closed. The close event is delivered exactly once,
// before Serve returns.
func Serve(ctx context.Context, session *Session, endpoint interfaces.Endpoint, config *interfaces.EndpointConfig) {
	endpoint.OnOpen(ctx, session, config)
	session.readLoop(endpoint)
}

func (s *Session) readLoop(endpoint interfaces.Endpoint) {
	reason := s.read(endpoint)
	s.release()
	klog.V(5).Infof("wsrelay: [session %s] read loop finished (code: %d)", s.id, reason.Code)
	endpoint.OnClose(s, reason)
}

// read dispatches messages until the connection fails and returns the reason
// to report in the close event.
func (s *Session) read(endpoint interfaces.Endpoint) interfaces.CloseReason {
	for {
		ft, r, err := s.conn.NextReader()
		if err != nil {
			return s.closeReason(endpoint, err)
		}

		err = s.dispatch(messageType(ft), r)
		if errors.Is(err, common.ErrMessageTooBig) {
			_ = s.CloseWithReason(interfaces.CloseReason{Code: websocket.CloseMessageTooBig, Text: "message too big"})
			endpoint.OnError(s, err)
		}
		// other read errors surface from the next NextReader call
	}
}

func (s *Session) closeReason(endpoint interfaces.Endpoint, err error) interfaces.CloseReason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return interfaces.CloseReason{Code: closeErr.Code, Text: closeErr.Text}
	}
	if s.closedLocally.Load() {
		return s.localReason
	}

	klog.V(3).Infof("wsrelay: [session %s] read failed: %v", s.id, err)
	endpoint.OnError(s, err)
	return interfaces.CloseReason{Code: websocket.CloseAbnormalClosure, Text: err.Error()}
}

func (s *Session) dispatch(t interfaces.MessageType, r io.Reader) error {
	handler, size, ok := s.handler(t)
	if !ok {
		klog.V(4).Infof("wsrelay: [session %s] no %s handler, discarding message", s.id, t)
		_, err := io.Copy(io.Discard, r)
		return err
	}

	if handler.Whole {
		data, err := readWhole(r, size)
		if err != nil {
			return err
		}
		deliver(handler, data, true)
		return nil
	}

	return readPartial(r, size, func(chunk []byte, isLast bool) {
		deliver(handler, chunk, isLast)
	})
}

func deliver(handler interfaces.MessageHandler, data []byte, isLast bool) {
	if handler.Type == interfaces.MessageTypeText {
		handler.OnText(string(data), isLast)
		return
	}
	handler.OnBinary(data, isLast)
}

// readWhole reads a complete message of at most limit bytes.
func readWhole(r io.Reader, limit int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, errors.Wrapf(common.ErrMessageTooBig, "limit is %d bytes", limit)
	}
	return data, nil
}

// readPartial delivers a message chunk by chunk as its frames arrive. Each
// read returns at most one frame's payload, capped at size, so fragment
// boundaries are kept. One chunk is held back until the next read shows
// whether it was the last one, so the final chunk is always delivered with
// isLast set. An empty message is delivered as a single empty last chunk.
func readPartial(r io.Reader, size int, emit func(chunk []byte, isLast bool)) error {
	var pending []byte
	for {
		chunk := make([]byte, size)
		n, err := r.Read(chunk)
		if n > 0 {
			if pending != nil {
				emit(pending, false)
			}
			pending = chunk[:n]
		}
		switch err {
		case nil:
		case io.EOF:
			if pending == nil {
				pending = []byte{}
			}
			emit(pending, true)
			return nil
		default:
			return err
		}
	}
}
