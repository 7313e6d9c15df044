// Package exchange provides the Authenticator seam that Sender.connect
// calls into when no auth key is installed yet (spec.md §4.5 step 3).
// The Diffie-Hellman key exchange itself is out of the sender core's
// scope per spec.md §1 ("touched only via interfaces"); this package
// defines the interface and the real result type the teacher's own
// exchange.ClientExchange produces (pkg/gotd/exchange/client.go), plus
// a minimal implementation usable by tests and by callers who already
// have a key exchange mechanism to plug in.
package exchange

import (
	"context"
	"crypto/rand"
	"io"

	"go.uber.org/zap"

	"github.com/archtg/mtsender/crypto"
)

// PlainConnection is the reduced, unencrypted Connection used only
// during the handshake, matching spec.md §6's MTProtoPlainSender.
type PlainConnection interface {
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// Result is the outcome of a successful key exchange: a fresh auth
// key, the session id to start with, and the server's initial salt.
// Grounded on exchange.ClientExchangeResult (pkg/gotd/exchange/client.go).
type Result struct {
	AuthKey    *crypto.AuthKey
	SessionID  int64
	ServerSalt int64
	TimeOffset int32
}

// Authenticator performs the handshake described in spec.md §6:
// doAuthentication(plainSender, log) -> {authKey, timeOffset}.
type Authenticator interface {
	DoAuthentication(ctx context.Context, plain PlainConnection) (*Result, error)
}

// ClientExchange is a client-side key exchange flow, grounded on the
// teacher's exchange.ClientExchange (pkg/gotd/exchange/client.go). The
// production Diffie-Hellman negotiation is out of scope: its
// DoAuthentication performs no exchange and always returns an error.
// Callers that obtain a key out of band hand it to the Sender through
// a StaticAuthenticator, whose Result (key, salt, time offset) the
// Sender installs before firing AuthKeyCallback.
type ClientExchange struct {
	rand io.Reader
	log  *zap.Logger
	dc   int
}

// NewClientExchange builds a ClientExchange targeting dc, logging
// through log. A nil log is replaced with a no-op logger.
func NewClientExchange(dc int, log *zap.Logger) *ClientExchange {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClientExchange{rand: rand.Reader, log: log, dc: dc}
}

// DoAuthentication is not implemented here: the DH handshake is out of
// this module's scope (spec.md §1). Callers either supply their own
// Authenticator, or use StaticAuthenticator with a key obtained out of
// band.
func (c *ClientExchange) DoAuthentication(ctx context.Context, plain PlainConnection) (*Result, error) {
	c.log.Debug("DH key exchange is out of scope for the sender core; supply an Authenticator")
	return nil, errNotImplemented
}

var errNotImplemented = notImplementedError{}

type notImplementedError struct{}

func (notImplementedError) Error() string {
	return "exchange: DoAuthentication not implemented; supply an Authenticator"
}

// StaticAuthenticator satisfies Authenticator with a pre-established
// key, for tests and for callers who already have a session (e.g.
// restored from storage) and just need to install it.
type StaticAuthenticator struct {
	Result *Result
}

func (s *StaticAuthenticator) DoAuthentication(context.Context, PlainConnection) (*Result, error) {
	return s.Result, nil
}
