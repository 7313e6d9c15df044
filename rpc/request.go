package rpc

import (
	"github.com/archtg/mtsender/bin"
)

// ClassType distinguishes requests that expect a correlated reply from
// fire-and-forget notifications/acks, per spec.md §3's lifecycle note
// ("if the request expects a reply (classType == request)").
type ClassType string

const (
	ClassRequest      ClassType = "request"
	ClassNotification ClassType = "notification"
)

// NoReplyRequest is implemented by a ClassRequest whose server-side
// handling never produces an rpc_result — spec.md §4.8's example is
// auth.LogOut, confirmed only by the MsgsAck that names its msg-id.
// The dispatcher resolves such a pending state with true as soon as
// that ack arrives, instead of waiting on a reply that never comes.
type NoReplyRequest interface {
	Request
	NoReply()
}

// Request is a typed, schema-aware object the caller hands to Sender.
// ClassType reports whether the sender should track it in pending
// -state; ReadResult parses the raw rpc_result body once a reply
// arrives.
type Request interface {
	bin.Encoder
	ClassType() ClassType
	ReadResult(b *bin.Buffer) (any, error)
}

// RequestState pairs a submitted Request with its resolvable
// completion handle, and the header fields assigned when it enters a
// batch. Exactly spec.md §3/§4.1: construction serializes Data
// eagerly; the sender exclusively mutates MsgID/SeqNo/ContainerID
// after hand-off.
type RequestState struct {
	Request     Request
	Data        []byte
	MsgID       int64
	SeqNo       int32
	ContainerID int64

	completion *Completion
}

// NewRequestState serializes req and wraps it for submission.
func NewRequestState(req Request) (*RequestState, error) {
	var buf bin.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, err
	}
	return &RequestState{
		Request:    req,
		Data:       buf.Buf,
		completion: newCompletion(),
	}, nil
}

// Promise returns the caller-visible completion handle.
func (s *RequestState) Promise() *Completion {
	return s.completion
}

// Resolve fulfils the request's completion with v. Idempotent.
func (s *RequestState) Resolve(v any) {
	s.completion.resolve(v)
}

// Reject fulfils the request's completion with err. Idempotent.
func (s *RequestState) Reject(err error) {
	s.completion.reject(err)
}
