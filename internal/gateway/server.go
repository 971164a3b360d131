// Package gateway turns authenticated, authorized client connections
// into live remote-shell and file-manager sessions, and serves the
// sharing API and status watch feeds.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/tunnelgate/tunnelgate/internal/access"
	"github.com/tunnelgate/tunnelgate/internal/config"
	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/ports"
	"github.com/tunnelgate/tunnelgate/internal/sshexec"
)

// Directory is the store surface the gateway consumes: credential
// validation, endpoint lookups, and transfer tickets.
type Directory interface {
	ValidatePrincipalToken(ctx context.Context, tokenHash string) (domain.Principal, error)
	GetPrincipal(ctx context.Context, id string) (domain.Principal, error)
	GetPrincipalByUsername(ctx context.Context, username string) (domain.Principal, error)
	GetEndpoint(ctx context.Context, id string) (domain.Endpoint, error)
	GetEndpointUsername(ctx context.Context, endpointID, username string) (domain.EndpointUsername, error)
	ListShares(ctx context.Context, endpointID string) ([]domain.ShareGrant, error)
	CreateTransferTicket(ctx context.Context, endpointID, principalID, username, path, op string, ttl time.Duration) (domain.TransferTicket, error)
	PurgeStaleTransferTickets(ctx context.Context, now, usedOlderThan time.Time, limit int) (int64, error)
}

// Server hosts the websocket session endpoints and the sharing API.
type Server struct {
	cfg      config.ServerConfig
	store    Directory
	engine   *access.Engine
	bus      *eventbus.Bus
	registry *ports.Registry
	log      *slog.Logger

	// Bounded pool for blocking directory/credential lookups so they
	// never stall the goroutines forwarding terminal bytes.
	lookups *semaphore.Weighted

	// Overridable in tests.
	shellCommand    func(username string, relayPort int) *exec.Cmd
	dialFileChannel func(ctx context.Context, username string, relayPort int) (sshexec.Runner, error)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a Server wired to its collaborators.
func New(cfg config.ServerConfig, store Directory, engine *access.Engine, bus *eventbus.Bus, registry *ports.Registry, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		bus:      bus,
		registry: registry,
		log:      logger,
		lookups:  semaphore.NewWeighted(cfg.LookupPoolSize),
	}
	s.shellCommand = s.defaultShellCommand
	s.dialFileChannel = s.defaultDialFileChannel
	return s
}

// Handler returns the HTTP routing surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/terminal", s.handleTerminal)
	mux.HandleFunc("GET /ws/filemanager", s.handleFileManager)
	mux.HandleFunc("GET /ws/tunnel/{endpoint_id}", s.handleWatch)
	mux.HandleFunc("GET /ws/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/endpoints/{endpoint_id}/shares", s.handleListShares)
	mux.HandleFunc("POST /api/endpoints/{endpoint_id}/shares", s.handleCreateShare)
	mux.HandleFunc("PUT /api/endpoints/{endpoint_id}/shares/{grantee_id}", s.handleUpdateShare)
	mux.HandleFunc("DELETE /api/endpoints/{endpoint_id}/shares/{grantee_id}", s.handleDeleteShare)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves the gateway until ctx is done, running the transfer-ticket
// janitor alongside.
func (s *Server) Run(ctx context.Context) error {
	go s.runJanitor(ctx)

	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting gateway", "addr", s.cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			purged, err := s.store.PurgeStaleTransferTickets(ctx, now, now.Add(-time.Hour), 1000)
			if err != nil {
				s.log.Error("transfer ticket cleanup failed", "err", err)
				continue
			}
			if purged > 0 {
				s.log.Info("stale transfer tickets purged", "count", purged)
			}
		}
	}
}

// defaultShellCommand builds the ssh child process that reaches an
// endpoint host through the relay, in the same shape the browser
// terminal ultimately drives.
func (s *Server) defaultShellCommand(username string, relayPort int) *exec.Cmd {
	proxy := fmt.Sprintf("ssh -W %%h:%%p -p %d %s@%s", s.cfg.RelaySSHPort, s.cfg.RelaySSHUser, s.cfg.RelayHost)
	args := []string{
		"-o", "ProxyCommand=" + proxy,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
	}
	if s.cfg.RelayKeyFile != "" {
		args = append(args, "-i", s.cfg.RelayKeyFile)
	}
	args = append(args, fmt.Sprintf("%s@localhost", username), "-p", fmt.Sprintf("%d", relayPort))
	return exec.Command("ssh", args...)
}

func (s *Server) defaultDialFileChannel(ctx context.Context, username string, relayPort int) (sshexec.Runner, error) {
	relay, err := sshexec.Dial(sshexec.Config{
		Host:    s.cfg.RelayHost,
		Port:    s.cfg.RelaySSHPort,
		User:    s.cfg.RelaySSHUser,
		KeyFile: s.cfg.RelayKeyFile,
	})
	if err != nil {
		return nil, err
	}
	through, err := relay.DialThrough(username, relayPort)
	if err != nil {
		_ = relay.Close()
		return nil, err
	}
	return &chainedRunner{inner: through, relay: relay}, nil
}

// chainedRunner closes the relay hop together with the endpoint hop.
type chainedRunner struct {
	inner *sshexec.Client
	relay *sshexec.Client
}

func (c *chainedRunner) Run(ctx context.Context, command string) ([]byte, error) {
	return c.inner.Run(ctx, command)
}

func (c *chainedRunner) Close() error {
	err := c.inner.Close()
	if relayErr := c.relay.Close(); err == nil {
		err = relayErr
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
