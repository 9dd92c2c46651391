package uri

import (
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"moff.io/walletconnect/pkg/errors"
)

const (
	// DefaultBridgeURL is the public bridge used when no bridge is configured.
	DefaultBridgeURL = "https://l.bridge.walletconnect.org"

	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

var ErrBadScheme = errors.New("bridge url scheme must be http(s) or ws(s)")

var (
	bridgeRandMu sync.Mutex
	bridgeRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RandomBridgeURL picks one of the public bridges, which are sharded by a leading character.
func RandomBridgeURL() string {
	bridgeRandMu.Lock()
	c := alphanumerical[bridgeRand.Intn(len(alphanumerical))]
	bridgeRandMu.Unlock()
	return fmt.Sprintf(bridgeURLFormat, string(c))
}

// WebsocketURL maps a bridge URL to the websocket endpoint: http becomes ws, https
// becomes wss, and the protocol/version query the bridge expects is appended.
func WebsocketURL(bridge *url.URL) (string, error) {
	u := *bridge
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Wrapf(ErrBadScheme, "got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("protocol", "wc")
	q.Set("version", fmt.Sprint(Version))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
