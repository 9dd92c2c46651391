package walletconnect

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	wccrypto "moff.io/walletconnect/internal/walletconnect/crypto"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/internal/walletconnect/transport"
	"moff.io/walletconnect/internal/walletconnect/uri"
)

var testMeta = protocol.Metadata{
	Description: "wallet connect client test",
	URL:         "https://moff.io",
	Icons:       []string{"https://moff.io/favicon.ico"},
	Name:        "moff",
}

type walletRequest struct {
	ID     uint64
	Method string
	Params []json.RawMessage
}

// testWallet joins a pairing through a MemoryBridge and answers the dapp the way
// its callbacks say. A nil callback means the wallet stays silent.
type testWallet struct {
	t       *testing.T
	conn    transport.Conn
	key     *wccrypto.Key
	peerID  protocol.Topic
	private *ecdsa.PrivateKey
	address common.Address
	chainID uint64

	onSession func(w *testWallet, req protocol.SessionRequest) (interface{}, *protocol.RPCError)
	onRequest func(w *testWallet, req walletRequest) (interface{}, *protocol.RPCError, bool)
	repeat    int

	seen chan walletRequest

	mu     sync.Mutex
	dappID protocol.Topic
}

func newTestWallet(t *testing.T) *testWallet {
	t.Helper()
	private, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &testWallet{
		t:         t,
		peerID:    protocol.NewTopic(),
		private:   private,
		address:   ethcrypto.PubkeyToAddress(private.PublicKey),
		chainID:   1,
		onSession: approve,
		onRequest: signOrEcho,
		repeat:    1,
		seen:      make(chan walletRequest, 64),
	}
}

func approve(w *testWallet, _ protocol.SessionRequest) (interface{}, *protocol.RPCError) {
	return w.approvedParams(), nil
}

func (w *testWallet) approvedParams() protocol.SessionParams {
	return protocol.SessionParams{
		Approved: true,
		Accounts: []common.Address{w.address},
		ChainID:  w.chainID,
		PeerID:   w.peerID,
		PeerMeta: protocol.PeerMetadata{Strict: &protocol.Metadata{Name: "Test Wallet", URL: "https://wallet.example"}},
	}
}

// signOrEcho signs personal_sign and eth_sign requests and echoes the params of anything else.
func signOrEcho(w *testWallet, req walletRequest) (interface{}, *protocol.RPCError, bool) {
	switch req.Method {
	case protocol.MethodPersonalSign:
		var data string
		_ = json.Unmarshal(req.Params[0], &data)
		return w.sign(data), nil, true
	case protocol.MethodEthSign:
		var data string
		_ = json.Unmarshal(req.Params[1], &data)
		return w.sign(data), nil, true
	default:
		return req.Params, nil, true
	}
}

func (w *testWallet) sign(hexMessage string) string {
	msg, err := hexutil.Decode(hexMessage)
	if err != nil {
		w.t.Errorf("wallet got a message that is not hex: %v", err)
		return ""
	}
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), w.private)
	if err != nil {
		w.t.Errorf("wallet sign: %v", err)
		return ""
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// join connects the wallet to the pairing described by pairing.
func (w *testWallet) join(ctx context.Context, bridge *transport.MemoryBridge, pairing *uri.URI) {
	parsed, err := uri.Parse(pairing.Encode())
	require.NoError(w.t, err)
	w.key = parsed.Key()
	w.conn, err = bridge.Dial(ctx, "")
	require.NoError(w.t, err)
	for _, topic := range []protocol.Topic{parsed.HandshakeTopic(), w.peerID} {
		w.write(&protocol.SocketMessage{Topic: topic, Kind: protocol.KindSub, Silent: true})
	}
	go w.run()
	w.t.Cleanup(func() { _ = w.conn.Close() })
}

func (w *testWallet) write(msg *protocol.SocketMessage) {
	data, err := msg.Encode()
	if err != nil {
		w.t.Errorf("wallet encode: %v", err)
		return
	}
	_ = w.conn.WriteMessage(context.Background(), data)
}

func (w *testWallet) publish(body interface{}) {
	plain, err := json.Marshal(body)
	if err != nil {
		w.t.Errorf("wallet marshal: %v", err)
		return
	}
	payload, err := w.key.Seal(plain)
	if err != nil {
		w.t.Errorf("wallet seal: %v", err)
		return
	}
	w.mu.Lock()
	dapp := w.dappID
	w.mu.Unlock()
	w.write(&protocol.SocketMessage{Topic: dapp, Kind: protocol.KindPub, Payload: payload, Silent: true})
}

func (w *testWallet) reply(id uint64, result interface{}, rpcErr *protocol.RPCError) {
	body := map[string]interface{}{"id": id, "jsonrpc": "2.0"}
	if rpcErr != nil {
		body["error"] = rpcErr
	} else {
		body["result"] = result
	}
	for i := 0; i < w.repeat; i++ {
		w.publish(body)
	}
}

// request sends a JSON-RPC request from the wallet to the dapp.
func (w *testWallet) request(method string, params ...interface{}) {
	w.publish(protocol.NewRequest(protocol.PayloadID(), method, params...))
}

func (w *testWallet) run() {
	for {
		frame, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeSocketMessage(frame)
		if err != nil || msg.Payload == nil {
			continue
		}
		plain, err := w.key.Open(msg.Payload)
		if err != nil {
			continue
		}
		var req walletRequest
		if err := json.Unmarshal(plain, &req); err != nil || req.Method == "" {
			continue
		}
		select {
		case w.seen <- req:
		default:
		}
		if req.Method == protocol.MethodSessionRequest {
			var sr protocol.SessionRequest
			if err := json.Unmarshal(req.Params[0], &sr); err != nil {
				continue
			}
			w.mu.Lock()
			w.dappID = sr.PeerID
			w.mu.Unlock()
			if w.onSession == nil {
				continue
			}
			result, rpcErr := w.onSession(w, sr)
			w.reply(req.ID, result, rpcErr)
			continue
		}
		if w.onRequest == nil {
			continue
		}
		if result, rpcErr, ok := w.onRequest(w, req); ok {
			w.reply(req.ID, result, rpcErr)
		}
	}
}

// next returns the next request the wallet saw with the given method.
func (w *testWallet) next(method string) walletRequest {
	w.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case req := <-w.seen:
			if req.Method == method {
				return req
			}
		case <-timeout:
			w.t.Fatalf("wallet did not see %v", method)
			return walletRequest{}
		}
	}
}

type pairing struct {
	bridge *transport.MemoryBridge
	client *Client
	wallet *testWallet
}

func newPairing(t *testing.T, options session.Options, configure func(*testWallet), opts ...Option) *pairing {
	t.Helper()
	ctx := context.Background()
	bridge := transport.NewMemoryBridge()
	opts = append([]Option{WithDialer(bridge), WithPublishRate(0), WithRequestTimeout(3 * time.Second)}, opts...)
	client, err := NewWithOptions(ctx, options, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	wallet := newTestWallet(t)
	if configure != nil {
		configure(wallet)
	}
	wallet.join(ctx, bridge, client.URI())
	return &pairing{bridge: bridge, client: client, wallet: wallet}
}

func connectedPairing(t *testing.T, configure func(*testWallet), opts ...Option) *pairing {
	t.Helper()
	p := newPairing(t, session.New(testMeta), configure, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := p.client.EnsureSession(ctx)
	require.NoError(t, err)
	return p
}

// memoryStore keeps sessions as JSON, like the redis store.
type memoryStore struct {
	mu      sync.Mutex
	data    map[protocol.Topic][]byte
	deletes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[protocol.Topic][]byte)}
}

func (m *memoryStore) Save(_ context.Context, s *session.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.ClientID] = raw
	return nil
}

func (m *memoryStore) Load(_ context.Context, clientID protocol.Topic) (*session.Session, error) {
	m.mu.Lock()
	raw, ok := m.data[clientID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var s session.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memoryStore) Delete(_ context.Context, clientID protocol.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, clientID)
	m.deletes++
	return nil
}

func (m *memoryStore) has(clientID protocol.Topic) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[clientID]
	return ok
}
