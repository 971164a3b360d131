package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// GetShare returns the unique grant for (endpoint, grantee), or
// [domain.ErrShareNotFound].
func (s *Store) GetShare(ctx context.Context, endpointID, granteeID string) (domain.ShareGrant, error) {
	var g domain.ShareGrant
	err := s.db.QueryRowContext(ctx, `
SELECT id, endpoint_id, granted_by, grantee_id, level, created_at, updated_at
FROM share_grants
WHERE endpoint_id = ? AND grantee_id = ?`, endpointID, granteeID).
		Scan(&g.ID, &g.EndpointID, &g.GrantedBy, &g.GranteeID, &g.Level, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShareGrant{}, domain.ErrShareNotFound
	}
	return g, err
}

func (s *Store) ListShares(ctx context.Context, endpointID string) ([]domain.ShareGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, endpoint_id, granted_by, grantee_id, level, created_at, updated_at
FROM share_grants
WHERE endpoint_id = ?
ORDER BY created_at ASC`, endpointID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ShareGrant
	for rows.Next() {
		var g domain.ShareGrant
		if err := rows.Scan(&g.ID, &g.EndpointID, &g.GrantedBy, &g.GranteeID, &g.Level, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) CreateShare(ctx context.Context, endpointID, grantedBy, granteeID string, level domain.PermissionLevel) (domain.ShareGrant, error) {
	id, err := newID("g")
	if err != nil {
		return domain.ShareGrant{}, err
	}
	now := time.Now().UTC()
	g := domain.ShareGrant{
		ID:         id,
		EndpointID: endpointID,
		GrantedBy:  grantedBy,
		GranteeID:  granteeID,
		Level:      level,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO share_grants(id, endpoint_id, granted_by, grantee_id, level, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.EndpointID, g.GrantedBy, g.GranteeID, string(g.Level), g.CreatedAt, g.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ShareGrant{}, domain.ErrAlreadyShared
	}
	return g, err
}

func (s *Store) UpdateShareLevel(ctx context.Context, endpointID, granteeID string, level domain.PermissionLevel) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE share_grants SET level = ?, updated_at = ?
WHERE endpoint_id = ? AND grantee_id = ?`,
		string(level), time.Now().UTC(), endpointID, granteeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrShareNotFound
	}
	return nil
}

func (s *Store) DeleteShare(ctx context.Context, endpointID, granteeID string) error {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM share_grants WHERE endpoint_id = ? AND grantee_id = ?`, endpointID, granteeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrShareNotFound
	}
	return nil
}

// EndpointAccessors returns the principal IDs entitled to see an
// endpoint's status: the owner plus every grant holder.
func (s *Store) EndpointAccessors(ctx context.Context, endpointID string) ([]string, error) {
	e, err := s.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	grants, err := s.ListShares(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	out := []string{e.PrincipalID}
	for _, g := range grants {
		out = append(out, g.GranteeID)
	}
	return out, nil
}
