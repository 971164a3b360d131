package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tunnelgate/tunnelgate/internal/access"
	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/sshexec"
	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

// Shell dialects a file-manager command channel can speak.
const (
	shellPosix      = "posix"
	shellPowershell = "powershell"
)

// fileSession serves directory listings and transfer-ticket minting
// over a command channel to the endpoint host. Listings require VIEW;
// uploads require EDIT, re-resolved per request so a revoked grant
// takes effect mid-session.
type fileSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	auth    sessionAuth
	runner  sshexec.Runner
	sub     *eventbus.Subscription
	engine  *access.Engine
	store   Directory
	ttl     time.Duration
	dialect string
	log     *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Server) handleFileManager(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}

	a := s.handshake(r.Context(), conn, r.URL.Query(), domain.PermissionView, true)
	if a == nil {
		return
	}

	runner, err := s.dialFileChannel(r.Context(), a.username, a.endpoint.RelayPort)
	if err != nil {
		s.log.Error("file channel dial failed",
			"endpoint", a.endpoint.ID, "principal", a.principal.ID, "err", err)
		rejectWS(conn, domain.Rejection("dial", domain.ReasonSpawnError, err))
		return
	}

	fs := &fileSession{
		conn:   conn,
		auth:   *a,
		runner: runner,
		sub:    s.bus.Subscribe(eventbus.EndpointGroup(a.endpoint.ID)),
		engine: s.engine,
		store:  s.store,
		ttl:    s.cfg.TransferTicketTTL,
		log: s.log.With("session", "filemanager",
			"endpoint", a.endpoint.ID, "principal", a.principal.ID),
		done: make(chan struct{}),
	}
	fs.log.Info("file manager session opened", "username", a.username)

	go fs.pumpEvents()
	fs.readLoop(r.Context())
	fs.teardown()
}

func (fs *fileSession) pumpEvents() {
	for {
		select {
		case <-fs.done:
			return
		case env, ok := <-fs.sub.C():
			if !ok {
				return
			}
			fs.writeServerMessage(wsproto.ServerMessage{Action: env.Action, Data: env.Data})
		}
	}
}

func (fs *fileSession) readLoop(ctx context.Context) {
	for {
		_, raw, err := fs.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsproto.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			fs.writeServerMessage(wsproto.ErrorMessage("bad_request", "malformed message"))
			continue
		}
		switch msg.Action {
		case wsproto.ActionShellDetect:
			fs.handleShellDetect(ctx)
		case wsproto.ActionListFiles:
			fs.handleListFiles(ctx, msg.Payload)
		case wsproto.ActionDownloadFile:
			fs.handleDownload(ctx, msg.Payload)
		case wsproto.ActionUploadFile:
			if !fs.requireLevel(ctx, domain.PermissionEdit) {
				return
			}
			fs.handleUpload(ctx, msg.Payload)
		default:
			fs.writeServerMessage(wsproto.ErrorMessage("unknown_action", "unknown action: "+msg.Action))
		}
	}
}

// requireLevel re-resolves the caller's effective level; a failure is
// fatal to the session, closing it with the forbidden reason code.
func (fs *fileSession) requireLevel(ctx context.Context, required domain.PermissionLevel) bool {
	level, found, err := fs.engine.Resolve(ctx, fs.auth.principal.ID, fs.auth.endpoint.ID)
	if err == nil && found && level.AtLeast(required) {
		return true
	}
	if err != nil {
		fs.log.Error("permission resolve failed", "err", err)
	}
	rejectWS(fs.conn, domain.Rejection("filemanager", domain.ReasonForbidden, domain.ErrNotPermitted))
	return false
}

func (fs *fileSession) handleShellDetect(ctx context.Context) {
	dialect := fs.detectDialect(ctx)
	fs.dialect = dialect
	fs.writeServerMessage(wsproto.ServerMessage{
		Action: wsproto.ActionShellDetect,
		Data:   wsproto.ShellDetectResult{Shell: dialect},
	})
}

// detectDialect probes the endpoint host: a working uname means a
// POSIX shell, otherwise a PowerShell probe is tried. Defaults to
// POSIX when neither answers.
func (fs *fileSession) detectDialect(ctx context.Context) string {
	if out, err := fs.runner.Run(ctx, "uname -s"); err == nil && len(strings.TrimSpace(string(out))) > 0 {
		return shellPosix
	}
	if _, err := fs.runner.Run(ctx, "powershell -NoProfile -Command $PSVersionTable.PSEdition"); err == nil {
		return shellPowershell
	}
	return shellPosix
}

func (fs *fileSession) handleListFiles(ctx context.Context, payload json.RawMessage) {
	var p wsproto.ListFilesPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Path == "" {
		fs.writeServerMessage(wsproto.ErrorMessage("bad_request", "missing or malformed path"))
		return
	}
	dir := path.Clean(p.Path)

	var (
		entries []wsproto.FileEntry
		err     error
	)
	switch fs.currentDialect() {
	case shellPowershell:
		entries, err = fs.listPowershell(ctx, dir)
	default:
		entries, err = fs.listPosix(ctx, dir)
	}
	if err != nil {
		fs.log.Warn("list files failed", "path", dir, "err", err)
		fs.writeServerMessage(wsproto.ErrorMessage("list_failed", err.Error()))
		return
	}
	fs.writeServerMessage(wsproto.ServerMessage{
		Action: wsproto.ActionListFiles,
		Data:   wsproto.ListFilesResult{Path: dir, Total: len(entries), Files: entries},
	})
}

func (fs *fileSession) listPosix(ctx context.Context, dir string) ([]wsproto.FileEntry, error) {
	out, err := fs.runner.Run(ctx, "LC_TIME=C ls -la "+shellQuote(dir))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return parsePosixListing(string(out)), nil
}

func (fs *fileSession) listPowershell(ctx context.Context, dir string) ([]wsproto.FileEntry, error) {
	cmd := fmt.Sprintf(
		`powershell -NoProfile -Command "Get-ChildItem -Force -LiteralPath '%s' | Select-Object Name,Length,PSIsContainer | ConvertTo-Csv -NoTypeInformation"`,
		strings.ReplaceAll(dir, "'", "''"))
	out, err := fs.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return parsePowershellListing(string(out))
}

func (fs *fileSession) currentDialect() string {
	if fs.dialect == "" {
		return shellPosix
	}
	return fs.dialect
}

func (fs *fileSession) handleDownload(ctx context.Context, payload json.RawMessage) {
	var p wsproto.DownloadPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Path == "" {
		fs.writeServerMessage(wsproto.ErrorMessage("bad_request", "missing or malformed path"))
		return
	}
	fs.mintTicket(ctx, domain.TransferOpDownload, path.Clean(p.Path))
}

func (fs *fileSession) handleUpload(ctx context.Context, payload json.RawMessage) {
	var p wsproto.UploadPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.DestinationPath == "" {
		fs.writeServerMessage(wsproto.ErrorMessage("bad_request", "missing or malformed destination_path"))
		return
	}
	fs.mintTicket(ctx, domain.TransferOpUpload, path.Clean(p.DestinationPath))
}

// mintTicket creates a single-use transfer ticket and returns it with
// the HTTP endpoint where the client redeems it.
func (fs *fileSession) mintTicket(ctx context.Context, op, remotePath string) {
	ticket, err := fs.store.CreateTransferTicket(ctx,
		fs.auth.endpoint.ID, fs.auth.principal.ID, fs.auth.username, remotePath, op, fs.ttl)
	if err != nil {
		fs.log.Error("transfer ticket create failed", "op", op, "err", err)
		fs.writeServerMessage(wsproto.ErrorMessage("ticket_failed", "could not prepare transfer"))
		return
	}
	action := wsproto.ActionDownloadFile
	if op == domain.TransferOpUpload {
		action = wsproto.ActionUploadFile
	}
	fs.writeServerMessage(wsproto.ServerMessage{
		Action: action,
		Data: wsproto.TransferResult{
			Ticket: ticket.Ticket,
			URL: fmt.Sprintf("/sftp/%s/%s/%s?ticket=%s",
				url.PathEscape(fs.auth.endpoint.ID), url.PathEscape(fs.auth.username), op, ticket.Ticket),
			ExpiresAt: ticket.ExpiresAt,
		},
	})
}

func (fs *fileSession) teardown() {
	fs.closeOnce.Do(func() {
		close(fs.done)
		fs.sub.Close()
		if err := fs.runner.Close(); err != nil && !errors.Is(err, context.Canceled) {
			fs.log.Warn("command channel close failed", "err", err)
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
		_ = fs.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
		_ = fs.conn.Close()
		fs.log.Info("file manager session closed")
	})
}

func (fs *fileSession) writeServerMessage(msg wsproto.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		fs.log.Error("encode server message failed", "err", err)
		return
	}
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	_ = fs.conn.WriteMessage(websocket.TextMessage, data)
}
