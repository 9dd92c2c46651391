package walletconnect

import (
	"time"

	"moff.io/walletconnect/internal/walletconnect/transport"
	"moff.io/walletconnect/internal/walletconnect/uri"
)

const (
	defaultRequestTimeout   = 5 * time.Minute
	defaultHandshakeTimeout = 5 * time.Minute
	defaultMaxPending       = 64
	defaultPublishRate      = 10
)

type clientConfig struct {
	dialer           transport.Dialer
	userAgent        string
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	maxPending       int
	publishRate      int
	store            SessionStore
	onURI            func(*uri.URI) error
}

func defaultConfig() clientConfig {
	return clientConfig{
		requestTimeout:   defaultRequestTimeout,
		handshakeTimeout: defaultHandshakeTimeout,
		maxPending:       defaultMaxPending,
		publishRate:      defaultPublishRate,
	}
}

// Option customizes a Client.
type Option func(*clientConfig)

// WithDialer replaces the websocket dialer, e.g. with a transport.MemoryBridge.
func WithDialer(d transport.Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithUserAgent sets the User-Agent header sent to the bridge.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithRequestTimeout bounds requests whose context has no deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.requestTimeout = d
	}
}

// WithHandshakeTimeout bounds EnsureSession when its context has no deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.handshakeTimeout = d
	}
}

// WithMaxPending caps the requests awaiting a wallet answer. Zero means no cap.
func WithMaxPending(n int) Option {
	return func(c *clientConfig) {
		c.maxPending = n
	}
}

// WithPublishRate caps frames written to the bridge per second. Zero means no cap.
func WithPublishRate(perSecond int) Option {
	return func(c *clientConfig) {
		c.publishRate = perSecond
	}
}

// WithStore persists connected sessions so that Resume can restore them.
func WithStore(s SessionStore) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithURIHandler is called with the pairing URI before the session request is
// published, typically to display it as a QR code.
func WithURIHandler(fn func(*uri.URI) error) Option {
	return func(c *clientConfig) {
		c.onURI = fn
	}
}
