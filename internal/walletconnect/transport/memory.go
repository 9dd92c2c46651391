package transport

import (
	"context"
	"sync"

	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

const memoryInboxSize = 1024

// MemoryBridge is an in-process bridge server. Published frames go to every
// connection subscribed to the topic and are queued while nobody is subscribed.
// It serves tests and local demos in place of a remote bridge.
type MemoryBridge struct {
	mu          sync.Mutex
	subscribers map[protocol.Topic][]*memoryConn
	queued      map[protocol.Topic][][]byte
	published   map[protocol.Topic][][]byte
	conns       []*memoryConn
	dials       int
}

func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{
		subscribers: make(map[protocol.Topic][]*memoryConn),
		queued:      make(map[protocol.Topic][][]byte),
		published:   make(map[protocol.Topic][][]byte),
	}
}

func (b *MemoryBridge) Dial(ctx context.Context, _ string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "dial memory bridge")
	}
	c := &memoryConn{
		bridge: b,
		inbox:  make(chan []byte, memoryInboxSize),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.dials++
	b.mu.Unlock()
	return c, nil
}

// Deliver hands a raw frame to the subscribers of topic, bypassing decoding.
func (b *MemoryBridge) Deliver(topic protocol.Topic, frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverLocked(topic, frame)
}

// Published returns the pub frames seen for topic, in order.
func (b *MemoryBridge) Published(topic protocol.Topic) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[topic]...)
}

// Subscribed reports whether a live connection listens on topic.
func (b *MemoryBridge) Subscribed(topic protocol.Topic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic]) > 0
}

func (b *MemoryBridge) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// DropAll closes every connection as if the server went away.
func (b *MemoryBridge) DropAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (b *MemoryBridge) handle(from *memoryConn, frame []byte) {
	msg, err := protocol.DecodeSocketMessage(frame)
	if err != nil {
		log.Debugf("memory bridge - drop frame: %v", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch msg.Kind {
	case protocol.KindSub:
		b.subscribers[msg.Topic] = append(b.subscribers[msg.Topic], from)
		for _, queued := range b.queued[msg.Topic] {
			from.push(queued)
		}
		delete(b.queued, msg.Topic)
	case protocol.KindPub:
		b.published[msg.Topic] = append(b.published[msg.Topic], frame)
		b.deliverLocked(msg.Topic, frame)
	}
}

func (b *MemoryBridge) deliverLocked(topic protocol.Topic, frame []byte) {
	subs := b.subscribers[topic][:0]
	for _, c := range b.subscribers[topic] {
		if !c.isClosed() {
			subs = append(subs, c)
		}
	}
	b.subscribers[topic] = subs
	if len(subs) == 0 {
		b.queued[topic] = append(b.queued[topic], frame)
		return
	}
	for _, c := range subs {
		c.push(frame)
	}
}

type memoryConn struct {
	bridge    *MemoryBridge
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *memoryConn) push(frame []byte) {
	select {
	case c.inbox <- append([]byte(nil), frame...):
	default:
		log.Warnf("memory bridge - inbox full, drop frame")
	}
}

func (c *memoryConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *memoryConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.inbox:
		return frame, nil
	case <-c.closed:
		return nil, errors.WithStack(ErrClosed)
	}
}

func (c *memoryConn) WriteMessage(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return errors.WithStack(ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "write memory bridge")
	}
	c.bridge.handle(c, data)
	return nil
}

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
