package walletconnect

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/internal/walletconnect/transport"
	"moff.io/walletconnect/internal/walletconnect/uri"
	"moff.io/walletconnect/pkg/concurrent"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

// State is the lifecycle stage of a Client.
type State int32

const (
	Disconnected State = iota
	HandshakeSent
	AwaitingApproval
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case HandshakeSent:
		return "handshake_sent"
	case AwaitingApproval:
		return "awaiting_approval"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

type outcome struct {
	resp *protocol.Response
	err  error
}

// handshake tracks one in-flight wc_sessionRequest. done is closed once err is final.
type handshake struct {
	id   uint64
	done chan struct{}
	err  error
}

// Client is a WalletConnect v1 dapp client. It is safe for concurrent use.
// The session, the pending requests and the handshake are guarded by mu; the
// read loop is the only goroutine reading the transport.
type Client struct {
	cfg     clientConfig
	socket  *socket
	limiter concurrent.Limiter
	nextID  *atomic.Uint64
	closed  atomic.Bool

	mu        sync.Mutex
	session   *session.Session
	state     State
	pending   map[uint64]chan outcome
	handshake *handshake
	fatal     error

	done chan struct{}
}

// New originates a pairing on the public bridge and publishes the session request.
func New(ctx context.Context, meta protocol.Metadata, opts ...Option) (*Client, error) {
	return NewWithOptions(ctx, session.New(meta), opts...)
}

// NewWithOptions creates the session described by options, connects to its bridge,
// subscribes to the client and handshake topics and publishes the session request.
func NewWithOptions(ctx context.Context, options session.Options, opts ...Option) (*Client, error) {
	sess, err := options.CreateSession()
	if err != nil {
		return nil, err
	}
	c, err := dial(ctx, sess, opts...)
	if err != nil {
		sess.Destroy()
		return nil, err
	}
	if c.cfg.onURI != nil {
		if err := c.cfg.onURI(c.URI()); err != nil {
			_ = c.Close()
			return nil, errors.Wrap(err, "display wallet connect uri")
		}
	}
	c.mu.Lock()
	h, payload, err := c.startHandshakeLocked()
	c.mu.Unlock()
	if err == nil {
		err = c.publishHandshake(ctx, h, payload)
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func dial(ctx context.Context, sess *session.Session, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dialer == nil {
		cfg.dialer = transport.NewWebsocketDialer(cfg.userAgent)
	}
	wsURL, err := uri.WebsocketURL(sess.Bridge)
	if err != nil {
		return nil, err
	}
	conn, err := cfg.dialer.Dial(ctx, wsURL)
	if err != nil {
		return nil, errors.WrapAndReport(err, "connect wallet connect bridge")
	}
	c := &Client{
		cfg:     cfg,
		socket:  newSocket(conn, cfg.publishRate),
		limiter: concurrent.NewLimiter(cfg.maxPending),
		nextID:  atomic.NewUint64(protocol.PayloadID()),
		session: sess,
		state:   Disconnected,
		pending: make(map[uint64]chan outcome),
		done:    make(chan struct{}),
	}
	if sess.Connected {
		c.state = Connected
	}
	// The wallet listens on the handshake topic. A client that made the URI
	// must not, or the bridge hands its own session request back to it.
	topics := []protocol.Topic{sess.ClientID}
	if sess.Joining && !sess.Connected {
		topics = append(topics, sess.HandshakeTopic)
	}
	for _, topic := range topics {
		if err := c.socket.subscribe(ctx, topic); err != nil {
			_ = c.socket.close()
			return nil, err
		}
	}
	go c.readLoop()
	log.Infof("wallet connect - client %v connected to bridge %v", sess.ClientID, sess.Bridge)
	return c, nil
}

// requestID returns a fresh, non-zero JSON-RPC id.
func (c *Client) requestID() uint64 {
	return c.nextID.Inc()
}

func (c *Client) startHandshakeLocked() (*handshake, *protocol.EncryptionPayload, error) {
	id := c.requestID()
	req := protocol.NewRequest(id, protocol.MethodSessionRequest, c.session.Request())
	payload, err := c.seal(req)
	if err != nil {
		return nil, nil, err
	}
	h := &handshake{id: id, done: make(chan struct{})}
	c.handshake = h
	c.state = HandshakeSent
	return h, payload, nil
}

func (c *Client) publishHandshake(ctx context.Context, h *handshake, payload *protocol.EncryptionPayload) error {
	c.mu.Lock()
	topic := c.session.HandshakeTopic
	c.mu.Unlock()
	log.Debugf("wallet connect - publish session request %v on %v", h.id, topic)
	if err := c.socket.publish(ctx, topic, payload); err != nil {
		c.mu.Lock()
		c.finishHandshakeLocked(h, err)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) finishHandshakeLocked(h *handshake, err error) {
	if c.handshake != h {
		return
	}
	c.handshake = nil
	h.err = err
	if err != nil && c.state != Connected {
		c.state = Disconnected
	}
	close(h.done)
}

func (c *Client) seal(v interface{}) (*protocol.EncryptionPayload, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json-rpc request")
	}
	return c.session.Key.Seal(plain)
}

// usableLocked returns the error a caller gets once the client can no longer talk to the bridge.
func (c *Client) usableLocked() error {
	if c.fatal != nil {
		return c.fatal
	}
	if c.closed.Load() {
		return errors.WithStack(ErrDisconnected)
	}
	return nil
}

// EnsureSession returns the wallet's accounts and chain id, waiting for the wallet
// to approve the pending session request when the session is not yet connected.
// A session left unanswered or rejected returns to Disconnected; calling
// EnsureSession again publishes a new session request.
func (c *Client) EnsureSession(ctx context.Context) ([]common.Address, uint64, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.cfg.handshakeTimeout)
	defer cancel()

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return nil, 0, err
	}
	if c.session.Connected {
		accounts, chainID := c.accountsLocked()
		c.mu.Unlock()
		return accounts, chainID, nil
	}
	h := c.handshake
	if h == nil {
		var (
			payload *protocol.EncryptionPayload
			err     error
		)
		h, payload, err = c.startHandshakeLocked()
		c.mu.Unlock()
		if err != nil {
			return nil, 0, err
		}
		if err := c.publishHandshake(ctx, h, payload); err != nil {
			return nil, 0, err
		}
		c.mu.Lock()
	}
	if c.handshake == h && c.state == HandshakeSent {
		c.state = AwaitingApproval
	}
	c.mu.Unlock()

	select {
	case <-h.done:
	case <-ctx.Done():
		c.mu.Lock()
		c.finishHandshakeLocked(h, contextError(ctx, "wallet did not answer the session request"))
		c.mu.Unlock()
		<-h.done
	}
	if h.err != nil {
		return nil, 0, h.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	accounts, chainID := c.accountsLocked()
	return accounts, chainID, nil
}

func (c *Client) accountsLocked() ([]common.Address, uint64) {
	var chainID uint64
	if c.session.ChainID != nil {
		chainID = *c.session.ChainID
	}
	return append([]common.Address(nil), c.session.Accounts...), chainID
}

// Request sends a JSON-RPC request to the wallet and decodes its result into
// result, which may be nil. A JSON-RPC error from the wallet is returned as
// *protocol.RPCError.
func (c *Client) Request(ctx context.Context, method string, params interface{}, result interface{}) error {
	resp, err := c.call(ctx, method, params)
	if err != nil {
		return err
	}
	return resp.Decode(result)
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*protocol.Response, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.cfg.requestTimeout)
	defer cancel()

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, contextError(ctx, "too many pending wallet requests")
	}
	defer c.limiter.Release()

	id := c.requestID()
	ch := make(chan outcome, 1)
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !c.session.Connected {
		c.mu.Unlock()
		return nil, errors.WithStack(ErrNotConnected)
	}
	req := &protocol.Request{ID: id, JSONRPC: "2.0", Method: method, Params: params}
	if params == nil {
		req.Params = []interface{}{}
	}
	payload, err := c.seal(req)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	topic := c.session.PeerID
	c.pending[id] = ch
	c.mu.Unlock()

	log.Debugf("wallet connect - request %v %v to %v", id, method, topic)
	if err := c.socket.publish(ctx, topic, payload); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		c.forget(id)
		// the answer may have raced the deadline
		select {
		case out := <-ch:
			return out.resp, out.err
		default:
		}
		return nil, contextError(ctx, "wallet did not answer "+method)
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Disconnect tells the wallet the session is over and returns to Disconnected.
// The bridge connection stays open; call Close to release it.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.session.Connected {
		c.mu.Unlock()
		return nil
	}
	update := protocol.SessionUpdate{Approved: false}
	payload, err := c.seal(protocol.NewRequest(c.requestID(), protocol.MethodSessionUpdate, update))
	topic := c.session.PeerID
	clientID := c.session.ClientID
	c.endSessionLocked(errors.Wrap(ErrDisconnected, "session closed by dapp"))
	c.mu.Unlock()

	c.forgetSession(clientID)
	if err != nil {
		return err
	}
	log.Infof("wallet connect - disconnect session %v", clientID)
	return c.socket.publish(ctx, topic, payload)
}

// endSessionLocked marks the session disconnected and fails every waiter with cause.
func (c *Client) endSessionLocked(cause error) {
	_ = c.session.Update(protocol.SessionUpdate{Approved: false})
	c.state = Disconnected
	c.failPendingLocked(cause)
	if c.handshake != nil {
		c.finishHandshakeLocked(c.handshake, cause)
	}
}

func (c *Client) failPendingLocked(cause error) {
	for id, ch := range c.pending {
		select {
		case ch <- outcome{err: cause}:
		default:
		}
		delete(c.pending, id)
	}
}

// Close drops the bridge connection, fails all waiters with ErrDisconnected and
// zeroes the session key. The stored session, if any, is kept for Resume.
func (c *Client) Close() error {
	if !c.closed.CAS(false, true) {
		return nil
	}
	err := c.socket.close()
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Disconnected
	c.failPendingLocked(errors.WithStack(ErrDisconnected))
	if c.handshake != nil {
		c.finishHandshakeLocked(c.handshake, errors.WithStack(ErrDisconnected))
	}
	c.session.Destroy()
	return err
}

// URI is the pairing string for the wallet.
func (c *Client) URI() *uri.URI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.URI()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the session state without the key.
func (c *Client) Session() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// Pending returns the number of requests waiting for a wallet answer.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) readLoop() {
	defer close(c.done)
	err := c.socket.run(c.handleFrame)
	if c.closed.Load() {
		return
	}
	log.Errorf("wallet connect - bridge connection lost: %v", err)
	c.mu.Lock()
	c.fatal = errors.Wrapf(ErrDisconnected, "%v", err)
	c.endSessionLocked(c.fatal)
	c.mu.Unlock()
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func contextError(ctx context.Context, message string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(ErrRequestTimeout, message)
	}
	return errors.Wrap(ctx.Err(), message)
}
