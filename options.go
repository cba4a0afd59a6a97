package excli

import (
	"time"

	"github.com/exchg/excli/signing"
)

// Option configures a Client, mirroring the teacher's functional-options
// constructor shape (NewClobClient(WithSigner(...), WithCreds(...))).
// Of the values these options record, a Client reads only the endpoint's
// Name, the tag its instrument cache fetches with. The others are kept on
// the Client's configuration and are not passed to the Backend, which
// configures its own transports.
type Option func(*config)

type config struct {
	endpoint             Endpoint
	signer               signing.Signer
	keepAliveTimeout     time.Duration
	defaultStreamTimeout time.Duration
	wsRateLimit          int
	wsRateLimitWindow    time.Duration
	listenKeyRefresh     time.Duration
	bufferCapacity       int
	testing              bool
}

// Endpoint selects which exchange environment a Client talks to.
type Endpoint struct {
	Name    string // exchange name, e.g. "demo"
	Variant string // "spot", "futures", "options"
	HTTPURL string
	WSURL   string
}

func defaultConfig() config {
	return config{
		keepAliveTimeout:     30 * time.Second,
		defaultStreamTimeout: 60 * time.Second,
		wsRateLimit:          10,
		wsRateLimitWindow:    time.Second,
		listenKeyRefresh:     30 * time.Minute,
		bufferCapacity:       64,
	}
}

// WithEndpoint selects the exchange environment to connect to.
func WithEndpoint(e Endpoint) Option {
	return func(c *config) { c.endpoint = e }
}

// WithCredentials records a Signer for private-channel requests; see Option.
func WithCredentials(s signing.Signer) Option {
	return func(c *config) { c.signer = s }
}

// WithKeepAliveTimeout records a WS message-idle/ping-outstanding
// deadline; see Option.
func WithKeepAliveTimeout(d time.Duration) Option {
	return func(c *config) { c.keepAliveTimeout = d }
}

// WithDefaultStreamTimeout records a per-sub-stream LocalClosing
// deadline; see Option.
func WithDefaultStreamTimeout(d time.Duration) Option {
	return func(c *config) { c.defaultStreamTimeout = d }
}

// WithWSRateLimit records an admits-per-window limit for outgoing WS
// requests; see Option.
func WithWSRateLimit(n int, window time.Duration) Option {
	return func(c *config) { c.wsRateLimit = n; c.wsRateLimitWindow = window }
}

// WithListenKeyRefresh records a private-channel listen-key refresh
// interval; see Option.
func WithListenKeyRefresh(d time.Duration) Option {
	return func(c *config) { c.listenKeyRefresh = d }
}

// WithBufferCapacity records a queue depth for the outer dispatcher
// buffer; see Option.
func WithBufferCapacity(n int) Option {
	return func(c *config) { c.bufferCapacity = n }
}

// WithTesting records that the client runs against a sandbox/testnet
// environment; see Option.
func WithTesting() Option {
	return func(c *config) { c.testing = true }
}
