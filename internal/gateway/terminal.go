package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"

	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

// terminalSession bridges one websocket to one pty-backed child
// process. Raw terminal output travels as binary frames; everything
// else (status envelopes, protocol errors) as JSON text frames.
type terminalSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	cmd   *exec.Cmd
	ptmx  *os.File
	sub   *eventbus.Subscription
	grace time.Duration
	log   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}

	a := s.handshake(r.Context(), conn, r.URL.Query(), domain.PermissionView, true)
	if a == nil {
		return
	}

	// The child is spawned only after authorization succeeded.
	cmd := s.shellCommand(a.username, a.endpoint.RelayPort)
	cmd.Env = append(os.Environ(), "TERM=xterm")
	ptmx, err := pty.Start(cmd)
	if err != nil {
		s.log.Error("terminal spawn failed",
			"endpoint", a.endpoint.ID, "principal", a.principal.ID, "err", err)
		rejectWS(conn, domain.Rejection("spawn", domain.ReasonSpawnError, err))
		return
	}

	ts := &terminalSession{
		conn:  conn,
		cmd:   cmd,
		ptmx:  ptmx,
		sub:   s.bus.Subscribe(eventbus.EndpointGroup(a.endpoint.ID)),
		grace: s.cfg.TermGraceWindow,
		log: s.log.With("session", "terminal",
			"endpoint", a.endpoint.ID, "principal", a.principal.ID),
		done: make(chan struct{}),
	}
	ts.log.Info("terminal session opened", "username", a.username, "relay_port", a.endpoint.RelayPort)

	go ts.pumpOutput()
	go ts.pumpEvents()
	ts.readLoop()
	ts.teardown()
}

// pumpOutput copies child output to the client until the pty reaches
// EOF, which is how a child exit first becomes visible.
func (ts *terminalSession) pumpOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := ts.ptmx.Read(buf)
		if n > 0 {
			if werr := ts.writeFrame(websocket.BinaryMessage, buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	ts.teardown()
}

// pumpEvents forwards endpoint status envelopes for the lifetime of
// the session.
func (ts *terminalSession) pumpEvents() {
	for {
		select {
		case <-ts.done:
			return
		case env, ok := <-ts.sub.C():
			if !ok {
				return
			}
			ts.writeServerMessage(wsproto.ServerMessage{Action: env.Action, Data: env.Data})
		}
	}
}

func (ts *terminalSession) readLoop() {
	for {
		_, raw, err := ts.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsproto.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			ts.writeServerMessage(wsproto.ErrorMessage("bad_request", "malformed message"))
			continue
		}
		switch msg.Action {
		case wsproto.ActionPtyInput:
			var p wsproto.InputPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				ts.writeServerMessage(wsproto.ErrorMessage("bad_request", "malformed input payload"))
				continue
			}
			if _, err := ts.ptmx.Write([]byte(p.Input)); err != nil {
				return
			}
		case wsproto.ActionPtyResize:
			var p wsproto.ResizePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				ts.writeServerMessage(wsproto.ErrorMessage("bad_request", "malformed resize payload"))
				continue
			}
			if err := pty.Setsize(ts.ptmx, &pty.Winsize{
				Rows: p.Rows, Cols: p.Cols, X: p.WidthPx, Y: p.HeightPx,
			}); err != nil {
				ts.log.Warn("pty resize failed", "err", err)
			}
		default:
			ts.writeServerMessage(wsproto.ErrorMessage("unknown_action", "unknown action: "+msg.Action))
		}
	}
}

// teardown stops the session exactly once: leave the event group,
// terminate the child (SIGTERM, a short grace window, then SIGKILL),
// reap it, and only then discard the pty descriptor.
func (ts *terminalSession) teardown() {
	ts.closeOnce.Do(func() {
		close(ts.done)
		ts.sub.Close()

		if ts.cmd.Process != nil {
			_ = ts.cmd.Process.Signal(syscall.SIGTERM)
			waited := make(chan error, 1)
			go func() { waited <- ts.cmd.Wait() }()
			select {
			case <-waited:
			case <-time.After(ts.grace):
				_ = ts.cmd.Process.Kill()
				<-waited
			}
		}
		_ = ts.ptmx.Close()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
		_ = ts.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
		_ = ts.conn.Close()
		ts.log.Info("terminal session closed")
	})
}

func (ts *terminalSession) writeFrame(messageType int, data []byte) error {
	ts.writeMu.Lock()
	defer ts.writeMu.Unlock()
	return ts.conn.WriteMessage(messageType, data)
}

func (ts *terminalSession) writeServerMessage(msg wsproto.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		ts.log.Error("encode server message failed", "err", err)
		return
	}
	_ = ts.writeFrame(websocket.TextMessage, data)
}
