package mtproto

import (
	"time"

	"go.uber.org/zap"

	"github.com/archtg/mtsender/clock"
	"github.com/archtg/mtsender/crypto"
	"github.com/archtg/mtsender/dcs"
	"github.com/archtg/mtsender/exchange"
)

// ConnectionFactory builds a fresh, unconnected Connection. Sender
// calls it once per connect/reconnect attempt so a dead socket is
// never reused.
type ConnectionFactory func() Connection

// Options configures a Sender. Booleans that spec.md §6 defaults to
// true (autoReconnect, securityChecks) are expressed here as their
// negation so Go's zero value keeps the spec's default.
type Options struct {
	DC            dcs.Options
	NewConnection ConnectionFactory

	// AuthKey, if set, is installed before the first Connect, skipping
	// the handshake. Leave nil to require Authenticator.
	AuthKey       *crypto.AuthKey
	Authenticator exchange.Authenticator

	Logger *zap.Logger
	Clock  clock.Clock

	// Retries is the number of reconnect attempts after the first
	// failure; -1 (the zero value maps to it in setDefaults) means
	// unlimited, matching spec.md §6's retries=Infinity default.
	Retries int
	// RetryDelay is the initial backoff between reconnect attempts.
	RetryDelay time.Duration
	// ConnectTimeout bounds a single Connect call's handshake phase.
	ConnectTimeout time.Duration
	// PingInterval is how often StartKeepalive pings the connection.
	PingInterval time.Duration

	// DisableAutoReconnect turns off the automatic reconnect sequence
	// after a loop exits with an error.
	DisableAutoReconnect bool
	// DisableSecurityChecks turns off the session id match check on
	// every decrypted message. Only appropriate against a trusted
	// test server.
	DisableSecurityChecks bool
	// IsMainSender marks the sender carrying the primary session; a
	// 404 (auth key unknown to the server) on a non-main sender is
	// recoverable by discarding the sender, while on the main sender
	// it is fatal (spec.md §7).
	IsMainSender bool

	AuthKeyCallback func(*crypto.AuthKey)
	UpdateCallback  func(UpdateConnectionState)
	// AutoReconnectCallback, if set, is fired once a reconnect attempt
	// succeeds (spec.md §4.10 step 7) — a notification, not a veto.
	AutoReconnectCallback func()
	OnConnectionBreak     func(dcID int)
	// UpdateHandler receives every server-pushed update processMessage's
	// jump table does not otherwise correlate to a pending request
	// (spec.md §1, §4.8 default case).
	UpdateHandler func(RawUpdate)
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = clock.System
	}
	if o.Retries == 0 {
		o.Retries = -1
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 60 * time.Second
	}
	if o.AuthKeyCallback == nil {
		o.AuthKeyCallback = func(*crypto.AuthKey) {}
	}
	if o.UpdateCallback == nil {
		o.UpdateCallback = func(UpdateConnectionState) {}
	}
	if o.OnConnectionBreak == nil {
		o.OnConnectionBreak = func(int) {}
	}
	if o.UpdateHandler == nil {
		o.UpdateHandler = func(RawUpdate) {}
	}
}
