package session

import (
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"moff.io/walletconnect/internal/walletconnect/crypto"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	uripkg "moff.io/walletconnect/internal/walletconnect/uri"
)

// Connection is what the caller knows about the pairing: either only the bridge
// (key and handshake topic are generated) or a full pairing URI to join.
type Connection struct {
	bridge *url.URL
	uri    *uripkg.URI
}

// BridgeConnection originates a new pairing on bridge.
func BridgeConnection(bridge *url.URL) Connection {
	return Connection{bridge: bridge}
}

// URIConnection joins the pairing described by u.
func URIConnection(u *uripkg.URI) Connection {
	return Connection{uri: u}
}

// DefaultConnection originates a pairing on the public bridge.
func DefaultConnection() Connection {
	bridge, _ := url.Parse(uripkg.DefaultBridgeURL)
	return BridgeConnection(bridge)
}

// Joining reports whether the connection was built from an existing URI.
func (c Connection) Joining() bool {
	return c.uri != nil
}

func (c Connection) parts() (protocol.Topic, *url.URL, *crypto.Key, error) {
	if c.uri != nil {
		return c.uri.HandshakeTopic(), c.uri.Bridge(), c.uri.Key().Clone(), nil
	}
	bridge := c.bridge
	if bridge == nil {
		bridge = DefaultConnection().bridge
	}
	key, err := crypto.RandomKey()
	if err != nil {
		return "", nil, nil, err
	}
	return protocol.NewTopic(), bridge, key, nil
}

// Options configures one pairing. ChainID, when set, is requested from the wallet
// and the wallet's answer must match it.
type Options struct {
	Meta       protocol.Metadata
	Connection Connection
	ChainID    *uint64
}

// New returns options that originate a pairing on the public bridge.
func New(meta protocol.Metadata) Options {
	return Options{
		Meta:       meta,
		Connection: DefaultConnection(),
	}
}

// WithURI returns options that join the pairing described by u.
func WithURI(meta protocol.Metadata, u *uripkg.URI) Options {
	return Options{
		Meta:       meta,
		Connection: URIConnection(u),
	}
}

// CreateSession builds the initial, disconnected session state. It performs no I/O;
// only the client id (and, for a bridge connection, the key and handshake topic)
// are freshly generated.
func (o Options) CreateSession() (*Session, error) {
	handshakeTopic, bridge, key, err := o.Connection.parts()
	if err != nil {
		return nil, err
	}
	var chainID *uint64
	if o.ChainID != nil {
		id := *o.ChainID
		chainID = &id
	}
	return &Session{
		Accounts:       []common.Address{},
		ChainID:        chainID,
		Bridge:         bridge,
		Key:            key,
		ClientID:       protocol.NewTopic(),
		ClientMeta:     o.Meta,
		HandshakeTopic: handshakeTopic,
		Joining:        o.Connection.Joining(),
	}, nil
}
