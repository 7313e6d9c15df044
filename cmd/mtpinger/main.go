package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/zerozap"
	"go.uber.org/zap"

	"github.com/archtg/mtsender/crypto"
	"github.com/archtg/mtsender/dcs"
	"github.com/archtg/mtsender/mtproto"
	"github.com/archtg/mtsender/tgerr"
	"github.com/archtg/mtsender/transport"
)

// loadAuthKey reads a base64-encoded auth key from path, or returns an
// empty key if the file doesn't exist yet.
func loadAuthKey(path string) (*crypto.AuthKey, error) {
	key := &crypto.AuthKey{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return key, nil
		}
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, err
	}
	key.SetKey(decoded)
	return key, nil
}

func storeAuthKey(path string, key *crypto.AuthKey) error {
	encoded := base64.StdEncoding.EncodeToString(key.GetKey())
	return os.WriteFile(path, []byte(encoded), 0600)
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: mtpinger <host:port> <dc_id> [auth_key_file]")
		os.Exit(1)
	}
	addr := os.Args[1]
	dcID, err := strconv.Atoi(os.Args[2])
	if err != nil {
		panic(err)
	}
	keyFile := "mtpinger.key"
	if len(os.Args) > 3 {
		keyFile = os.Args[3]
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zaplog := zap.New(zerozap.New(log.Logger))

	authKey, err := loadAuthKey(keyFile)
	if err != nil {
		panic(err)
	}

	sender := mtproto.New(mtproto.Options{
		DC: dcs.Options{IP: addr, DCID: dcID},
		NewConnection: func() mtproto.Connection {
			return transport.NewTCP(addr)
		},
		AuthKey: authKey,
		Logger:  zaplog,
		AuthKeyCallback: func(k *crypto.AuthKey) {
			zaplog.Debug("authenticated", zap.Int64("auth_key_id", k.ID()))
			if err := storeAuthKey(keyFile, k); err != nil {
				zaplog.Warn("failed to persist auth key", zap.Error(err))
			}
		},
		UpdateCallback: func(state mtproto.UpdateConnectionState) {
			zaplog.Info("connection state changed", zap.String("state", state.String()))
		},
		OnConnectionBreak: func(dcID int) {
			zaplog.Warn("connection broken", zap.Int("dc_id", dcID))
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = sender.Connect(connectCtx)
	cancel()
	if err != nil {
		panic(err)
	}
	defer sender.Disconnect()

	sender.StartKeepalive(ctx)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			zaplog.Info("shutting down")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			start := time.Now()
			_, err := sender.Send(pingCtx, &pingRequest{pingID: start.UnixNano()})
			cancel()
			if err != nil {
				if rpcErr, ok := tgerr.As(err); ok && rpcErr.IsOneOf("AUTH_KEY_UNREGISTERED", "FLOOD_WAIT") {
					zaplog.Warn("ping failed with rpc error", zap.String("type", rpcErr.Type), zap.Int("code", rpcErr.Code))
				} else {
					zaplog.Warn("ping failed", zap.Error(err))
				}
				continue
			}
			zaplog.Info("ping round trip", zap.Duration("latency", time.Since(start)))
		}
	}
}
