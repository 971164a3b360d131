package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tunnelgate/tunnelgate/internal/domain"
	"github.com/tunnelgate/tunnelgate/internal/eventbus"
	"github.com/tunnelgate/tunnelgate/internal/wsproto"
)

// shareRequest is the body for creating or changing a grant. The
// grantee may be named by id or by username.
type shareRequest struct {
	GranteeID       string `json:"grantee_id,omitempty"`
	GranteeUsername string `json:"grantee_username,omitempty"`
	Level           string `json:"level"`
}

type shareResponse struct {
	EndpointID string `json:"endpoint_id"`
	GranteeID  string `json:"grantee_id"`
	Level      string `json:"level"`
}

type permissionEvent struct {
	EndpointID   string `json:"endpoint_id"`
	EndpointName string `json:"endpoint_name"`
	Level        string `json:"level,omitempty"`
}

// httpPrincipal authenticates the Authorization bearer token of an API
// request, writing the error response itself on failure.
func (s *Server) httpPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		writeJSON(w, http.StatusUnauthorized, wsproto.ErrorData{Code: "unauthenticated", Message: "missing bearer token"})
		return domain.Principal{}, false
	}
	principal, err := s.authenticate(r.Context(), token)
	if err != nil {
		s.writeAPIError(w, err)
		return domain.Principal{}, false
	}
	return principal, true
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.httpPrincipal(w, r)
	if !ok {
		return
	}
	endpointID := r.PathValue("endpoint_id")

	allowed, err := s.engine.CanAccess(r.Context(), principal.ID, endpointID, domain.PermissionView)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	if !allowed {
		s.writeAPIError(w, domain.ErrNotPermitted)
		return
	}

	grants, err := s.store.ListShares(r.Context(), endpointID)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	out := make([]shareResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, shareResponse{EndpointID: g.EndpointID, GranteeID: g.GranteeID, Level: string(g.Level)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.httpPrincipal(w, r)
	if !ok {
		return
	}
	endpointID := r.PathValue("endpoint_id")

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, wsproto.ErrorData{Code: "bad_request", Message: "malformed body"})
		return
	}
	granteeID, err := s.resolveGrantee(r, req)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}

	grant, err := s.engine.Share(r.Context(), principal.ID, endpointID, granteeID, domain.PermissionLevel(req.Level))
	if err != nil {
		s.writeAPIError(w, err)
		return
	}

	s.publishPermission(r, wsproto.ActionPermissionGranted, endpointID, granteeID, string(grant.Level))
	writeJSON(w, http.StatusCreated, shareResponse{EndpointID: grant.EndpointID, GranteeID: grant.GranteeID, Level: string(grant.Level)})
}

func (s *Server) handleUpdateShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.httpPrincipal(w, r)
	if !ok {
		return
	}
	endpointID := r.PathValue("endpoint_id")
	granteeID := r.PathValue("grantee_id")

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, wsproto.ErrorData{Code: "bad_request", Message: "malformed body"})
		return
	}

	if err := s.engine.UpdateShare(r.Context(), principal.ID, endpointID, granteeID, domain.PermissionLevel(req.Level)); err != nil {
		s.writeAPIError(w, err)
		return
	}

	s.publishPermission(r, wsproto.ActionPermissionUpdated, endpointID, granteeID, req.Level)
	writeJSON(w, http.StatusOK, shareResponse{EndpointID: endpointID, GranteeID: granteeID, Level: req.Level})
}

func (s *Server) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.httpPrincipal(w, r)
	if !ok {
		return
	}
	endpointID := r.PathValue("endpoint_id")
	granteeID := r.PathValue("grantee_id")

	if err := s.engine.Unshare(r.Context(), principal.ID, endpointID, granteeID); err != nil {
		s.writeAPIError(w, err)
		return
	}

	s.publishPermission(r, wsproto.ActionPermissionRevoked, endpointID, granteeID, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolveGrantee(r *http.Request, req shareRequest) (string, error) {
	if req.GranteeID != "" {
		return req.GranteeID, nil
	}
	if req.GranteeUsername == "" {
		return "", domain.ErrPrincipalNotFound
	}
	p, err := s.store.GetPrincipalByUsername(r.Context(), req.GranteeUsername)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// publishPermission tells the grantee their access changed, on their
// personal notification group.
func (s *Server) publishPermission(r *http.Request, action, endpointID, granteeID, level string) {
	name := endpointID
	if ep, err := s.store.GetEndpoint(r.Context(), endpointID); err == nil {
		name = ep.Name
	}
	s.bus.Publish(eventbus.PrincipalGroup(granteeID), eventbus.Envelope{
		Action: action,
		Data:   permissionEvent{EndpointID: endpointID, EndpointName: name, Level: level},
	})
}

func (s *Server) writeAPIError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, wsproto.ErrorData{Code: "unauthenticated", Message: "invalid or expired token"})
	case errors.Is(err, domain.ErrNotPermitted):
		writeJSON(w, http.StatusForbidden, wsproto.ErrorData{Code: "forbidden", Message: "insufficient permission"})
	case errors.Is(err, domain.ErrEndpointNotFound),
		errors.Is(err, domain.ErrPrincipalNotFound),
		errors.Is(err, domain.ErrShareNotFound):
		writeJSON(w, http.StatusNotFound, wsproto.ErrorData{Code: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrAlreadyShared):
		writeJSON(w, http.StatusConflict, wsproto.ErrorData{Code: "conflict", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidLevel):
		writeJSON(w, http.StatusBadRequest, wsproto.ErrorData{Code: "bad_request", Message: err.Error()})
	default:
		s.log.Error("api request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, wsproto.ErrorData{Code: "internal", Message: "internal error"})
	}
}
