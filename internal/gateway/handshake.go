package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tunnelgate/tunnelgate/internal/auth"
	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// sessionAuth is the result of a completed handshake: who the caller
// is and what they may do on which endpoint.
type sessionAuth struct {
	principal domain.Principal
	endpoint  domain.Endpoint
	username  string
	level     domain.PermissionLevel
}

// authenticate resolves a bearer token to a principal through the
// bounded lookup pool.
func (s *Server) authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, domain.Rejection("authenticate", domain.ReasonUnauthenticated, domain.ErrUnauthenticated)
	}
	if err := s.lookups.Acquire(ctx, 1); err != nil {
		return domain.Principal{}, err
	}
	defer s.lookups.Release(1)

	principal, err := s.store.ValidatePrincipalToken(ctx, auth.HashToken(token, s.cfg.TokenPepper))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return domain.Principal{}, domain.Rejection("authenticate", domain.ReasonUnauthenticated, err)
		}
		return domain.Principal{}, err
	}
	return principal, nil
}

// authorize checks that the endpoint exists, the principal holds at
// least the required level on it, and (when a username is demanded)
// that the username is registered for the endpoint. Each failure maps
// to its own close reason so a client can tell them apart.
func (s *Server) authorize(ctx context.Context, principal domain.Principal, endpointID, username string, required domain.PermissionLevel, needUsername bool) (sessionAuth, error) {
	if err := s.lookups.Acquire(ctx, 1); err != nil {
		return sessionAuth{}, err
	}
	defer s.lookups.Release(1)

	endpoint, err := s.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		if errors.Is(err, domain.ErrEndpointNotFound) {
			return sessionAuth{}, domain.Rejection("authorize", domain.ReasonNotFound, err)
		}
		return sessionAuth{}, err
	}

	level, found, err := s.engine.Resolve(ctx, principal.ID, endpoint.ID)
	if err != nil {
		return sessionAuth{}, err
	}
	if !found || !level.AtLeast(required) {
		return sessionAuth{}, domain.Rejection("authorize", domain.ReasonForbidden, domain.ErrNotPermitted)
	}

	if needUsername {
		if username == "" {
			return sessionAuth{}, domain.Rejection("authorize", domain.ReasonBadRequest, domain.ErrUsernameNotFound)
		}
		if _, err := s.store.GetEndpointUsername(ctx, endpoint.ID, username); err != nil {
			if errors.Is(err, domain.ErrUsernameNotFound) {
				return sessionAuth{}, domain.Rejection("authorize", domain.ReasonNotFound, err)
			}
			return sessionAuth{}, err
		}
	}

	return sessionAuth{principal: principal, endpoint: endpoint, username: username, level: level}, nil
}

// handshake runs the full connect pipeline for a websocket session and
// returns the authorization result, or nil after closing the
// connection with the failure's reason code.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, query url.Values, required domain.PermissionLevel, needUsername bool) *sessionAuth {
	endpointID := query.Get("endpoint_id")
	if endpointID == "" {
		rejectWS(conn, domain.Rejection("handshake", domain.ReasonBadRequest, errors.New("missing endpoint_id")))
		return nil
	}

	principal, err := s.authenticate(ctx, query.Get("token"))
	if err != nil {
		rejectWS(conn, err)
		return nil
	}

	a, err := s.authorize(ctx, principal, endpointID, query.Get("username"), required, needUsername)
	if err != nil {
		rejectWS(conn, err)
		return nil
	}
	return &a
}

// rejectWS closes a freshly upgraded connection with the reason code
// carried by err, without ever having entered the active state.
func rejectWS(conn *websocket.Conn, err error) {
	code := domain.CloseReason(err)
	msg := websocket.FormatCloseMessage(code, err.Error())
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

// upgrade promotes the HTTP request to a websocket, logging on failure.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) *websocket.Conn {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "path", r.URL.Path, "err", err)
		return nil
	}
	return conn
}
