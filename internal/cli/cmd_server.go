package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/tunnelgate/tunnelgate/internal/access"
	"github.com/tunnelgate/tunnelgate/internal/config"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/gateway"
	ilog "github.com/tunnelgate/tunnelgate/internal/log"
	"github.com/tunnelgate/tunnelgate/internal/portmon"
	"github.com/tunnelgate/tunnelgate/internal/ports"
	"github.com/tunnelgate/tunnelgate/internal/sshexec"
	"github.com/tunnelgate/tunnelgate/internal/store/sqlite"
)

func runServer(ctx context.Context, args []string) int {
	cfg, err := config.ParseServerFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "server config error:", err)
		return 2
	}
	logger := ilog.New(cfg.LogLevel)

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db error:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	bus := eventbus.New(cfg.EventBufferSize)
	registry := ports.NewRegistry()
	engine := access.New(store)

	// The probe dials lazily so a relay outage at startup does not
	// prevent the gateway from serving; reconciliation recovers once
	// the relay is reachable.
	probeRunner := sshexec.NewRedialRunner(sshexec.Config{
		Host:    cfg.RelayHost,
		Port:    cfg.RelaySSHPort,
		User:    cfg.RelaySSHUser,
		KeyFile: cfg.RelayKeyFile,
	})
	defer func() { _ = probeRunner.Close() }()

	monitor := portmon.New(store, bus, registry,
		&portmon.SocketProber{Runner: probeRunner}, logger, cfg.ReconcileInterval)
	go monitor.Run(ctx)

	s := gateway.New(cfg, store, engine, bus, registry, logger)
	if err := s.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		return 1
	}
	return 0
}
