package walletconnect

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
	"go.uber.org/ratelimit"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/transport"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

// socket speaks the bridge pub/sub protocol over one transport connection.
type socket struct {
	conn    transport.Conn
	limiter ratelimit.Limiter

	mu     sync.Mutex
	topics *hashset.Set
}

func newSocket(conn transport.Conn, publishRate int) *socket {
	limiter := ratelimit.NewUnlimited()
	if publishRate > 0 {
		limiter = ratelimit.New(publishRate)
	}
	return &socket{
		conn:    conn,
		limiter: limiter,
		topics:  hashset.New(),
	}
}

func (s *socket) send(ctx context.Context, msg *protocol.SocketMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return errors.WrapAndReport(err, "encode wallet connect message")
	}
	s.limiter.Take()
	if err := s.conn.WriteMessage(ctx, data); err != nil {
		return errors.Wrapf(ErrDisconnected, "%v", err)
	}
	return nil
}

func (s *socket) subscribe(ctx context.Context, topic protocol.Topic) error {
	msg := &protocol.SocketMessage{
		Topic:  topic,
		Kind:   protocol.KindSub,
		Silent: true,
	}
	log.Debugf("wallet connect - subscribe topic:%v", topic)
	if err := s.send(ctx, msg); err != nil {
		return err
	}
	s.mu.Lock()
	s.topics.Add(topic)
	s.mu.Unlock()
	return nil
}

func (s *socket) publish(ctx context.Context, topic protocol.Topic, payload *protocol.EncryptionPayload) error {
	msg := &protocol.SocketMessage{
		Topic:   topic,
		Kind:    protocol.KindPub,
		Payload: payload,
		Silent:  true,
	}
	return s.send(ctx, msg)
}

func (s *socket) subscribed(topic protocol.Topic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics.Contains(topic)
}

// run feeds every frame to handle until the connection fails.
func (s *socket) run(handle func([]byte)) error {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(data)
	}
}

func (s *socket) close() error {
	s.mu.Lock()
	s.topics.Clear()
	s.mu.Unlock()
	return s.conn.Close()
}
