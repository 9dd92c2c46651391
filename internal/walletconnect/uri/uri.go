package uri

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"moff.io/walletconnect/internal/walletconnect/crypto"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/pkg/errors"
)

// Version is the WalletConnect protocol version carried in the URI.
const Version = 1

const scheme = "wc"

var (
	ErrInvalidScheme      = errors.New("session uri scheme must be wc")
	ErrMissingTopic       = errors.New("session uri has no handshake topic")
	ErrInvalidTopic       = protocol.ErrInvalidTopic
	ErrMissingVersion     = errors.New("session uri has no version")
	ErrUnsupportedVersion = errors.New("session uri version is not supported")
	ErrMissingBridge      = errors.New("session uri has no bridge")
	ErrInvalidBridge      = errors.New("session uri bridge is not a valid url")
	ErrMissingKey         = errors.New("session uri has no key")
	ErrInvalidKey         = errors.New("session uri key is invalid")
)

// URI is the pairing string a wallet scans: wc:<topic>@1?bridge=<url>&key=<hex>.
// https://eips.ethereum.org/EIPS/eip-1328
type URI struct {
	handshakeTopic protocol.Topic
	version        uint64
	bridge         *url.URL
	key            *crypto.Key
}

// New assembles a URI from its parts.
func New(bridge *url.URL, key *crypto.Key, handshakeTopic protocol.Topic) *URI {
	return &URI{
		handshakeTopic: handshakeTopic,
		version:        Version,
		bridge:         bridge,
		key:            key,
	}
}

// Format renders the pairing string for the given parts.
func Format(bridge *url.URL, key *crypto.Key, handshakeTopic protocol.Topic) string {
	return fmt.Sprintf("wc:%s@%d?bridge=%s&key=%s",
		handshakeTopic, Version, url.QueryEscape(bridge.String()), key.Display().Expose())
}

// Parse reads a pairing string. Each missing or malformed field has its own error.
func Parse(s string) (*URI, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidScheme, "%v", err)
	}
	if u.Scheme != scheme {
		return nil, errors.Wrapf(ErrInvalidScheme, "got %q", u.Scheme)
	}
	path := u.Opaque
	if path == "" {
		path = strings.TrimPrefix(u.Path, "/")
	}
	parts := strings.SplitN(path, "@", 2)
	if parts[0] == "" {
		return nil, errors.WithStack(ErrMissingTopic)
	}
	topic, err := protocol.ParseTopic(parts[0])
	if err != nil {
		return nil, err
	}
	if len(parts) < 2 || parts[1] == "" {
		return nil, errors.WithStack(ErrMissingVersion)
	}
	version, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || version != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "got %q", parts[1])
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, errors.Wrapf(ErrMissingBridge, "query: %v", err)
	}
	rawBridge := query.Get("bridge")
	if rawBridge == "" {
		return nil, errors.WithStack(ErrMissingBridge)
	}
	bridge, err := url.Parse(rawBridge)
	if err != nil || bridge.Scheme == "" || bridge.Host == "" {
		return nil, errors.Wrapf(ErrInvalidBridge, "%q", rawBridge)
	}
	rawKey := query.Get("key")
	if rawKey == "" {
		return nil, errors.WithStack(ErrMissingKey)
	}
	key, err := crypto.ParseKey(rawKey)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidKey, "%v", err)
	}
	return &URI{
		handshakeTopic: topic,
		version:        version,
		bridge:         bridge,
		key:            key,
	}, nil
}

// HandshakeTopic is the topic of the initial session request.
func (u *URI) HandshakeTopic() protocol.Topic {
	return u.handshakeTopic
}

func (u *URI) Version() uint64 {
	return u.version
}

// Bridge is the relay server URL.
func (u *URI) Bridge() *url.URL {
	return u.bridge
}

// Key is the symmetric key shared with the wallet.
func (u *URI) Key() *crypto.Key {
	return u.key
}

// Encode returns the full pairing string, key included. Show it only to the wallet user.
func (u *URI) Encode() string {
	return Format(u.bridge, u.key, u.handshakeTopic)
}

// String is the pairing string with the key masked, safe for logs.
func (u *URI) String() string {
	return fmt.Sprintf("wc:%s@%d?bridge=%s&key=********",
		u.handshakeTopic, u.version, url.QueryEscape(u.bridge.String()))
}
