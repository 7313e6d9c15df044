package main

import (
	"github.com/archtg/mtsender/bin"
	"github.com/archtg/mtsender/rpc"
)

// pingConstructorID is MTProto's ping#7abe77ec.
const pingConstructorID = 0x7abe77ec

// pingRequest is a manual, ad-hoc ping submitted by this CLI in
// addition to the one mtproto.Sender.StartKeepalive already sends on
// its own fixed-interval schedule; the server answers with a bare
// mt.Pong carrying the same ping id.
type pingRequest struct {
	pingID int64
}

func (p *pingRequest) Encode(b *bin.Buffer) error {
	b.PutID(pingConstructorID)
	b.PutLong(p.pingID)
	return nil
}

func (p *pingRequest) ClassType() rpc.ClassType { return rpc.ClassRequest }

func (p *pingRequest) ReadResult(*bin.Buffer) (any, error) { return nil, nil }
