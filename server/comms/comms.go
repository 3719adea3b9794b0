// SPDX-License-Identifier: MPL-2.0

package comms

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const CONNECT_TIMEOUT = 10 * time.Second

type Config struct {
	Logger     *slog.Logger
	Host       string
	Port       int
	Token      string
	JSDir      string
	JSKey      string
	MaxStore   int64 // in bytes
	DontListen bool
	Debug      bool
	Trace      bool
}

type Comms struct {
	Conn   *nats.Conn
	Server *server.Server
}

// New starts an embedded NATS server with JetStream and connects to it in
// process. Without JSDir JetStream data lives in a temp directory.
func New(config Config) (Comms, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	storeDir := config.JSDir
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "vizboard-jetstream-")
		if err != nil {
			return Comms{}, fmt.Errorf("failed to create JetStream dir: %w", err)
		}
		storeDir = dir
	}
	opts := &server.Options{
		ServerName:             "vizboard",
		Host:                   config.Host,
		Port:                   config.Port,
		Authorization:          config.Token,
		JetStream:              true,
		DisableJetStreamBanner: true,
		StoreDir:               storeDir,
		JetStreamKey:           config.JSKey,
		JetStreamMaxStore:      config.MaxStore,
		DontListen:             config.DontListen,
		NoSigs:                 true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return Comms{}, fmt.Errorf("failed to create NATS server: %w", err)
	}
	ns.SetLoggerV2(newNATSLogger(config.Logger, config.Trace), config.Debug, config.Trace, false)
	go ns.Start()
	if !ns.ReadyForConnections(CONNECT_TIMEOUT) {
		ns.Shutdown()
		return Comms{}, fmt.Errorf("NATS server not ready after %s", CONNECT_TIMEOUT)
	}
	clientOpts := []nats.Option{
		nats.InProcessServer(ns),
		nats.Name("vizboard"),
	}
	if config.Token != "" {
		clientOpts = append(clientOpts, nats.Token(config.Token))
	}
	nc, err := nats.Connect(ns.ClientURL(), clientOpts...)
	if err != nil {
		ns.Shutdown()
		return Comms{}, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if config.DontListen {
		config.Logger.Info("NATS running in process only")
	} else {
		config.Logger.Info("NATS listening", slog.String("url", ns.ClientURL()))
	}
	return Comms{Conn: nc, Server: ns}, nil
}

func (c Comms) Close() {
	if c.Conn != nil {
		c.Conn.Drain()
	}
	c.Server.Shutdown()
	c.Server.WaitForShutdown()
}
