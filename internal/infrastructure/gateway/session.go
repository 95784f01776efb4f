package gateway

import (
	"sync"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"

	"github.com/gorilla/websocket"
)

// Session wraps one websocket connection behind the ClientTransport port.
// All writes serialize through writeMu; gorilla connections do not support
// concurrent writers.
type Session struct {
	meta  domain.ConnectionMeta
	actor *domain.Actor

	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func NewSession(meta domain.ConnectionMeta, actor *domain.Actor, conn *websocket.Conn, writeTimeout time.Duration) *Session {
	return &Session{
		meta:         meta,
		actor:        actor,
		conn:         conn,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (s *Session) Meta() domain.ConnectionMeta { return s.meta }
func (s *Session) Actor() *domain.Actor        { return s.actor }

// Done is closed when the session has been terminated, either by the peer or
// by an eviction.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) Send(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Session) SendNotice(scope, message string) error {
	return s.Send(ports.ServerEvent{
		Event:     ports.EventNotice,
		Namespace: s.meta.Namespace,
		Payload: map[string]string{
			"scope":   scope,
			"message": message,
		},
	})
}

// SendError delivers an error envelope to this connection only.
func (s *Session) SendError(scope, message string) error {
	return s.Send(ports.ServerEvent{
		Event:     ports.EventError,
		Namespace: s.meta.Namespace,
		Payload:   ports.ErrorEnvelope{Scope: scope, Message: message},
	})
}

// Ping sends a websocket-level ping frame.
func (s *Session) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close sends a close frame with the reason and tears the connection down.
// Safe to call more than once.
func (s *Session) Close(reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		s.writeMu.Unlock()

		err = s.conn.Close()
		close(s.closed)
	})
	return err
}
