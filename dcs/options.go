// Package dcs holds the datacenter/connection configuration carried in
// mtproto.Options. The Sender reads only DCID from it (reported to
// OnConnectionBreak); replacement connections on reconnect come from
// mtproto.Options.NewConnection, not from these fields. Grounded on
// pkg/gotd/telegram/dcs/protocol.go.
package dcs

import "strconv"

// SocketKind distinguishes the concrete transport a Connection speaks.
type SocketKind int

const (
	SocketTCP SocketKind = iota
	SocketWebSocket
)

// Proxy carries optional proxy dial configuration; nil means direct.
type Proxy struct {
	Network string
	Address string
}

// Options describes where and how to reach a datacenter. No Connection
// is built from it by this module; Addr gives the dial target for a
// caller's own connection factory.
type Options struct {
	IP          string
	Port        int
	DCID        int
	Proxy       *Proxy
	TestServers bool
	SocketKind  SocketKind
}

// Addr returns the "ip:port" dial target.
func (o Options) Addr() string {
	if o.Port == 0 {
		return o.IP
	}
	return o.IP + ":" + strconv.Itoa(o.Port)
}
