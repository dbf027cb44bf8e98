package fullduplexproxy

import (
	"context"
	"net/url"
	"sync"

	"github.com/koding/wsrelay/pkg/common"
	"github.com/koding/wsrelay/pkg/interfaces"
)

// eventLog records close calls across sessions so tests can check ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeSession is an in-memory interfaces.Session. Tests drive incoming
// messages through deliverText and deliverBinary.
type fakeSession struct {
	id  string
	log *eventLog

	mu          sync.Mutex
	open        bool
	closes      int
	closeReason interfaces.CloseReason
	closeErr    error
	sendErr     error
	sent        []common.Message
	handlers    map[interfaces.MessageType]interfaces.MessageHandler
	maxText     int
	maxBinary   int
}

func newFakeSession(id string, log *eventLog) *fakeSession {
	return &fakeSession{
		id:       id,
		log:      log,
		open:     true,
		handlers: make(map[interfaces.MessageType]interfaces.MessageHandler),
	}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSession) Close() error { return s.CloseWithReason(common.NormalCloseReason) }

func (s *fakeSession) CloseWithReason(reason interfaces.CloseReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	s.closes++
	s.closeReason = reason
	if s.log != nil {
		s.log.add("close " + s.id)
	}
	return s.closeErr
}

func (s *fakeSession) SendText(content string, isLast bool) error {
	return s.record(common.TextMessage(content, isLast))
}

func (s *fakeSession) SendBinary(content []byte, isLast bool) error {
	return s.record(common.BinaryMessage(append([]byte(nil), content...), isLast))
}

func (s *fakeSession) record(msg common.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	if !s.open {
		return common.ErrSessionClosed
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSession) SetMaxTextMessageBufferSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxText = size
}

func (s *fakeSession) SetMaxBinaryMessageBufferSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxBinary = size
}

func (s *fakeSession) AddMessageHandler(handler interfaces.MessageHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[handler.Type]; ok {
		return common.ErrHandlerRegistered
	}
	s.handlers[handler.Type] = handler
	return nil
}

func (s *fakeSession) handler(t interfaces.MessageType) (interfaces.MessageHandler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[t]
	return h, ok
}

// deliverText simulates the runtime delivering a text chunk to the session's
// handler. It returns false if no handler is registered.
func (s *fakeSession) deliverText(content string, isLast bool) bool {
	h, ok := s.handler(interfaces.MessageTypeText)
	if !ok {
		return false
	}
	h.OnText(content, isLast)
	return true
}

func (s *fakeSession) deliverBinary(content []byte, isLast bool) bool {
	h, ok := s.handler(interfaces.MessageTypeBinary)
	if !ok {
		return false
	}
	h.OnBinary(content, isLast)
	return true
}

func (s *fakeSession) sentMessages() []common.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]common.Message(nil), s.sent...)
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSession) lastCloseReason() interfaces.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// fakeConnector opens target on Connect, or fails with err.
type fakeConnector struct {
	err    error
	target *fakeSession

	mu        sync.Mutex
	calls     int
	gotURL    *url.URL
	gotConfig *interfaces.EndpointConfig
}

func (c *fakeConnector) Connect(ctx context.Context, endpoint interfaces.Endpoint, config *interfaces.EndpointConfig, target *url.URL) (interfaces.Session, error) {
	c.mu.Lock()
	c.calls++
	c.gotURL = target
	c.gotConfig = config
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	endpoint.OnOpen(ctx, c.target, config)
	return c.target, nil
}

func (c *fakeConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	log       *eventLog
	client    *fakeSession
	target    *fakeSession
	connector *fakeConnector
	pair      *ProxyPair
}

func newFixture(relay common.RelayOptions) *fixture {
	log := &eventLog{}
	f := &fixture{
		log:    log,
		client: newFakeSession("client-1", log),
		target: newFakeSession("target-1", log),
	}
	f.connector = &fakeConnector{target: f.target}

	u, _ := url.Parse("ws://localhost:9000/ws")
	pair, err := NewProxyPair(f.client, Options{
		ID:        "pair-1",
		Target:    u,
		Connector: f.connector,
		Relay:     relay,
	})
	if err != nil {
		panic(err)
	}
	f.pair = pair
	return f
}

// open runs the client open event, connecting the fake target.
func (f *fixture) open() *fixture {
	f.pair.OnClientOpen(context.Background(), nil)
	return f
}
