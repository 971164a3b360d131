package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

// feedSession forwards event envelopes from one or more bus groups to
// a passive websocket client.
type feedSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    []*eventbus.Subscription
	log     *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// handleWatch observes one endpoint's connect/disconnect transitions.
// Any access level suffices; no username is required because nothing
// is executed on the endpoint host.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}

	endpointID := r.PathValue("endpoint_id")
	principal, err := s.authenticate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		rejectWS(conn, err)
		return
	}
	a, err := s.authorize(r.Context(), principal, endpointID, "", domain.PermissionView, false)
	if err != nil {
		rejectWS(conn, err)
		return
	}

	fs := s.newFeed(conn, "watch", s.bus.Subscribe(eventbus.EndpointGroup(a.endpoint.ID)))
	fs.log = fs.log.With("endpoint", a.endpoint.ID, "principal", a.principal.ID)

	// Current state first, so the client need not wait for the next
	// transition to learn where the tunnel stands.
	fs.writeServerMessage(wsproto.ServerMessage{
		Action: wsproto.ActionConnectionStatus,
		Data: wsproto.ConnectionStatus{
			Type:        wsproto.ActionConnectionStatus,
			EndpointID:  a.endpoint.ID,
			RelayPort:   a.endpoint.RelayPort,
			IsConnected: s.registry.IsListening(a.endpoint.RelayPort),
			Name:        a.endpoint.Name,
		},
	})

	fs.run()
}

// handleNotifications streams the broadcast feed plus events addressed
// to the authenticated principal (sharing changes, personalized status).
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	conn := s.upgrade(w, r)
	if conn == nil {
		return
	}

	principal, err := s.authenticate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		rejectWS(conn, err)
		return
	}

	fs := s.newFeed(conn, "notifications",
		s.bus.Subscribe(eventbus.GlobalGroup),
		s.bus.Subscribe(eventbus.PrincipalGroup(principal.ID)))
	fs.log = fs.log.With("principal", principal.ID)
	fs.run()
}

func (s *Server) newFeed(conn *websocket.Conn, kind string, subs ...*eventbus.Subscription) *feedSession {
	return &feedSession{
		conn: conn,
		subs: subs,
		log:  s.log.With("session", kind),
		done: make(chan struct{}),
	}
}

// run forwards envelopes until the client goes away or every
// subscription is drained.
func (fs *feedSession) run() {
	fs.log.Info("feed session opened")
	var wg sync.WaitGroup
	for _, sub := range fs.subs {
		wg.Add(1)
		go func(sub *eventbus.Subscription) {
			defer wg.Done()
			for {
				select {
				case <-fs.done:
					return
				case env, ok := <-sub.C():
					if !ok {
						return
					}
					fs.writeServerMessage(wsproto.ServerMessage{Action: env.Action, Data: env.Data})
				}
			}
		}(sub)
	}

	// The read loop exists to notice the client closing; inbound
	// payloads on a feed are ignored.
	for {
		if _, _, err := fs.conn.ReadMessage(); err != nil {
			break
		}
	}
	fs.teardown()
	wg.Wait()
}

func (fs *feedSession) teardown() {
	fs.closeOnce.Do(func() {
		close(fs.done)
		for _, sub := range fs.subs {
			sub.Close()
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "feed closed")
		_ = fs.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
		_ = fs.conn.Close()
		fs.log.Info("feed session closed")
	})
}

func (fs *feedSession) writeServerMessage(msg wsproto.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		fs.log.Error("encode server message failed", "err", err)
		return
	}
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	_ = fs.conn.WriteMessage(websocket.TextMessage, data)
}
