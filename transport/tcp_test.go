package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipePair() (*TCP, net.Conn) {
	client, server := net.Pipe()
	return &TCP{conn: client}, server
}

func TestTCPSendRecvRoundTripShortFrame(t *testing.T) {
	tr, server := pipePair()
	defer server.Close()

	payload := []byte("ping1234")
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- tr.Send(ctx, payload)
	}()

	var header [1]byte
	_, err := server.Read(header[:])
	require.NoError(t, err)
	require.Equal(t, byte(len(payload)/4), header[0])

	body := make([]byte, len(payload))
	_, err = server.Read(body)
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.NoError(t, <-done)
}

func TestTCPSendUsesExtendedHeaderPastShortLimit(t *testing.T) {
	tr, server := pipePair()
	defer server.Close()

	payload := make([]byte, 0x7f*4)
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- tr.Send(ctx, payload)
	}()

	var header [4]byte
	_, err := server.Read(header[:])
	require.NoError(t, err)
	require.Equal(t, byte(0x7f), header[0])
	require.Equal(t, byte(0x7f), header[1])
	require.Equal(t, byte(0), header[2])
	require.Equal(t, byte(0), header[3])

	body := make([]byte, len(payload))
	_, err = server.Read(body)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestTCPRecvMasksQuickAckBit(t *testing.T) {
	tr, server := pipePair()
	defer server.Close()

	payload := []byte("pong5678")
	go func() {
		server.Write([]byte{byte(len(payload)/4) | quickAckBit})
		server.Write(payload)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := tr.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestTCPCloseIsIdempotent(t *testing.T) {
	tr, server := pipePair()
	defer server.Close()

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Recv(context.Background())
	require.Error(t, err)
}
