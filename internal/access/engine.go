// Package access implements permission resolution and share management
// for endpoints: who may view, edit, administer, share, or delete an
// exposed endpoint.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// Directory is the subset of the endpoint store the engine consults.
// Lookups happen per call; the engine never caches grant rows, so a
// revoked grant stops resolving immediately.
type Directory interface {
	GetEndpoint(ctx context.Context, id string) (domain.Endpoint, error)
	GetPrincipal(ctx context.Context, id string) (domain.Principal, error)
	GetShare(ctx context.Context, endpointID, granteeID string) (domain.ShareGrant, error)
	CreateShare(ctx context.Context, endpointID, grantedBy, granteeID string, level domain.PermissionLevel) (domain.ShareGrant, error)
	UpdateShareLevel(ctx context.Context, endpointID, granteeID string, level domain.PermissionLevel) error
	DeleteShare(ctx context.Context, endpointID, granteeID string) error
}

// Engine resolves permission levels and enforces sharing rules.
type Engine struct {
	dir Directory
}

// New creates an Engine over the given directory.
func New(dir Directory) *Engine {
	return &Engine{dir: dir}
}

// Resolve returns the permission level principalID holds on endpointID.
// The owner resolves to admin; otherwise the unique share grant decides;
// otherwise found is false. A missing grant is never a level.
func (e *Engine) Resolve(ctx context.Context, principalID, endpointID string) (level domain.PermissionLevel, found bool, err error) {
	ep, err := e.dir.GetEndpoint(ctx, endpointID)
	if err != nil {
		return "", false, err
	}
	if ep.PrincipalID == principalID {
		return domain.PermissionAdmin, true, nil
	}
	grant, err := e.dir.GetShare(ctx, endpointID, principalID)
	if errors.Is(err, domain.ErrShareNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return grant.Level, true, nil
}

// CanAccess reports whether the principal holds at least the required
// level on the endpoint.
func (e *Engine) CanAccess(ctx context.Context, principalID, endpointID string, required domain.PermissionLevel) (bool, error) {
	level, found, err := e.Resolve(ctx, principalID, endpointID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return level.AtLeast(required), nil
}

// CanShare reports whether the principal may grant, revoke, or change
// shares on the endpoint: owner or admin-level grantee only.
func (e *Engine) CanShare(ctx context.Context, principalID, endpointID string) (bool, error) {
	level, found, err := e.Resolve(ctx, principalID, endpointID)
	if err != nil {
		return false, err
	}
	return found && level == domain.PermissionAdmin, nil
}

// CanDelete reports whether the principal may delete the endpoint.
// Same rule as sharing: edit is insufficient.
func (e *Engine) CanDelete(ctx context.Context, principalID, endpointID string) (bool, error) {
	return e.CanShare(ctx, principalID, endpointID)
}

// Share creates a grant of level on endpointID for granteeID, acting as
// actorID. The actor must hold share access; the grantee must exist and
// be neither the owner nor the actor; duplicates are rejected.
func (e *Engine) Share(ctx context.Context, actorID, endpointID, granteeID string, level domain.PermissionLevel) (domain.ShareGrant, error) {
	if !level.Valid() {
		return domain.ShareGrant{}, domain.ErrInvalidLevel
	}
	ep, err := e.dir.GetEndpoint(ctx, endpointID)
	if err != nil {
		return domain.ShareGrant{}, err
	}
	ok, err := e.CanShare(ctx, actorID, endpointID)
	if err != nil {
		return domain.ShareGrant{}, err
	}
	if !ok {
		return domain.ShareGrant{}, domain.ErrNotPermitted
	}
	if granteeID == ep.PrincipalID {
		return domain.ShareGrant{}, fmt.Errorf("%w: cannot share with the endpoint owner", domain.ErrNotPermitted)
	}
	if granteeID == actorID {
		return domain.ShareGrant{}, fmt.Errorf("%w: cannot share with yourself", domain.ErrNotPermitted)
	}
	if _, err := e.dir.GetPrincipal(ctx, granteeID); err != nil {
		return domain.ShareGrant{}, err
	}
	return e.dir.CreateShare(ctx, endpointID, actorID, granteeID, level)
}

// Unshare removes the grant for (endpointID, granteeID), acting as
// actorID.
func (e *Engine) Unshare(ctx context.Context, actorID, endpointID, granteeID string) error {
	if _, err := e.dir.GetEndpoint(ctx, endpointID); err != nil {
		return err
	}
	ok, err := e.CanShare(ctx, actorID, endpointID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotPermitted
	}
	return e.dir.DeleteShare(ctx, endpointID, granteeID)
}

// UpdateShare changes the level of an existing grant, acting as actorID.
func (e *Engine) UpdateShare(ctx context.Context, actorID, endpointID, granteeID string, level domain.PermissionLevel) error {
	if !level.Valid() {
		return domain.ErrInvalidLevel
	}
	if _, err := e.dir.GetEndpoint(ctx, endpointID); err != nil {
		return err
	}
	ok, err := e.CanShare(ctx, actorID, endpointID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotPermitted
	}
	return e.dir.UpdateShareLevel(ctx, endpointID, granteeID, level)
}
