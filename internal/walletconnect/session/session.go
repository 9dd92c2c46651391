package session

import (
	"encoding/json"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"moff.io/walletconnect/internal/walletconnect/crypto"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	uripkg "moff.io/walletconnect/internal/walletconnect/uri"
	"moff.io/walletconnect/pkg/errors"
)

var (
	ErrRejected        = errors.New("session rejected by wallet")
	ErrUnexpectedPeer  = errors.New("unexpected peer")
	ErrChainIDMismatch = errors.New("chain id mismatch")
	ErrNoAccounts      = errors.New("wallet approved the session without accounts")
)

// Session is the state of one pairing between this client and a wallet.
// Connected implies a non-zero PeerID and at least one account.
// It is not safe for concurrent use; the client guards it with its own lock.
type Session struct {
	Connected      bool
	Accounts       []common.Address
	ChainID        *uint64
	Bridge         *url.URL
	Key            *crypto.Key
	ClientID       protocol.Topic
	ClientMeta     protocol.Metadata
	PeerID         protocol.Topic
	PeerMeta       *protocol.PeerMetadata
	HandshakeTopic protocol.Topic
	// Joining is set when the session was built from a pairing URI made elsewhere.
	// It is not persisted.
	Joining bool
}

// URI is the pairing string to show the wallet.
func (s *Session) URI() *uripkg.URI {
	return uripkg.New(s.Bridge, s.Key, s.HandshakeTopic)
}

// Request is the wc_sessionRequest parameter announcing this client.
func (s *Session) Request() protocol.SessionRequest {
	return protocol.SessionRequest{
		ChainID:  s.ChainID,
		PeerID:   s.ClientID,
		PeerMeta: s.ClientMeta,
	}
}

// Apply records the wallet's answer to the session request. The session is left
// untouched when the answer is a rejection or would break the connected invariant.
func (s *Session) Apply(params protocol.SessionParams) error {
	if !params.Approved {
		return errors.WithStack(ErrRejected)
	}
	if params.PeerID.IsZero() {
		return errors.Wrap(ErrUnexpectedPeer, "wallet sent no peer id")
	}
	if len(params.Accounts) == 0 {
		return errors.WithStack(ErrNoAccounts)
	}
	if s.ChainID != nil && *s.ChainID != params.ChainID {
		return errors.Wrapf(ErrChainIDMismatch, "requested %d, wallet is on %d", *s.ChainID, params.ChainID)
	}
	chainID := params.ChainID
	meta := params.PeerMeta
	s.Connected = true
	s.Accounts = append([]common.Address(nil), params.Accounts...)
	s.ChainID = &chainID
	s.PeerID = params.PeerID
	s.PeerMeta = &meta
	return nil
}

// Update applies a wc_sessionUpdate. An update with approved=false disconnects
// the session; an approved update must carry accounts.
func (s *Session) Update(update protocol.SessionUpdate) error {
	if !update.Approved {
		s.Connected = false
		s.Accounts = []common.Address{}
		return nil
	}
	if len(update.Accounts) == 0 {
		return errors.WithStack(ErrNoAccounts)
	}
	s.Accounts = append([]common.Address(nil), update.Accounts...)
	if update.ChainID != nil {
		chainID := *update.ChainID
		s.ChainID = &chainID
	}
	return nil
}

// Clone copies the session state. The key is shared, not copied.
func (s *Session) Clone() *Session {
	c := *s
	c.Accounts = append([]common.Address{}, s.Accounts...)
	if s.ChainID != nil {
		chainID := *s.ChainID
		c.ChainID = &chainID
	}
	if s.Bridge != nil {
		bridge := *s.Bridge
		c.Bridge = &bridge
	}
	return &c
}

// Snapshot is a read-only copy of the session without the key.
type Snapshot struct {
	Connected      bool                   `json:"connected"`
	Accounts       []common.Address       `json:"accounts"`
	ChainID        *uint64                `json:"chainId"`
	Bridge         string                 `json:"bridge"`
	ClientID       protocol.Topic         `json:"clientId"`
	ClientMeta     protocol.Metadata      `json:"clientMeta"`
	PeerID         *protocol.Topic        `json:"peerId"`
	PeerMeta       *protocol.PeerMetadata `json:"peerMeta"`
	HandshakeTopic protocol.Topic         `json:"handshakeTopic"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Connected:      s.Connected,
		Accounts:       append([]common.Address{}, s.Accounts...),
		Bridge:         s.Bridge.String(),
		ClientID:       s.ClientID,
		ClientMeta:     s.ClientMeta,
		HandshakeTopic: s.HandshakeTopic,
	}
	if s.ChainID != nil {
		chainID := *s.ChainID
		snap.ChainID = &chainID
	}
	if !s.PeerID.IsZero() {
		peerID := s.PeerID
		snap.PeerID = &peerID
	}
	if s.PeerMeta != nil {
		meta := *s.PeerMeta
		snap.PeerMeta = &meta
	}
	return snap
}

type sessionJSON struct {
	Snapshot
	Key *crypto.Key `json:"key"`
}

// MarshalJSON includes the key so a stored session can be resumed. Keep the
// output out of logs.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{Snapshot: s.Snapshot(), Key: s.Key})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "decode session")
	}
	if in.Key == nil {
		return errors.Wrap(crypto.ErrWrongLength, "stored session has no key")
	}
	bridge, err := url.Parse(in.Bridge)
	if err != nil || bridge.Scheme == "" || bridge.Host == "" {
		return errors.Wrapf(uripkg.ErrInvalidBridge, "stored session bridge %q", in.Bridge)
	}
	restored := Session{
		Connected:      in.Connected,
		Accounts:       in.Accounts,
		ChainID:        in.ChainID,
		Bridge:         bridge,
		Key:            in.Key,
		ClientID:       in.ClientID,
		ClientMeta:     in.ClientMeta,
		PeerMeta:       in.PeerMeta,
		HandshakeTopic: in.HandshakeTopic,
	}
	if in.PeerID != nil {
		restored.PeerID = *in.PeerID
	}
	if restored.Accounts == nil {
		restored.Accounts = []common.Address{}
	}
	if restored.Connected && (restored.PeerID.IsZero() || len(restored.Accounts) == 0) {
		return errors.Wrap(ErrUnexpectedPeer, "stored session is connected without a peer")
	}
	*s = restored
	return nil
}

// Destroy zeroes the session key.
func (s *Session) Destroy() {
	if s.Key != nil {
		s.Key.Destroy()
	}
}
