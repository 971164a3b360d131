package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

func (s *Store) CreatePrincipal(ctx context.Context, username string) (domain.Principal, error) {
	id, err := newID("p")
	if err != nil {
		return domain.Principal{}, err
	}
	p := domain.Principal{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO principals(id, username, created_at)
VALUES(?, ?, ?)`, p.ID, p.Username, p.CreatedAt)
	return p, err
}

func (s *Store) GetPrincipal(ctx context.Context, id string) (domain.Principal, error) {
	var p domain.Principal
	err := s.db.QueryRowContext(ctx, `
SELECT id, username, created_at FROM principals WHERE id = ?`, id).
		Scan(&p.ID, &p.Username, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Principal{}, domain.ErrPrincipalNotFound
	}
	return p, err
}

func (s *Store) GetPrincipalByUsername(ctx context.Context, username string) (domain.Principal, error) {
	var p domain.Principal
	err := s.db.QueryRowContext(ctx, `
SELECT id, username, created_at FROM principals WHERE username = ?`, username).
		Scan(&p.ID, &p.Username, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Principal{}, domain.ErrPrincipalNotFound
	}
	return p, err
}

func (s *Store) CreateSessionToken(ctx context.Context, principalID, tokenHash string, ttl time.Duration) (domain.SessionToken, error) {
	now := time.Now().UTC()
	t := domain.SessionToken{
		TokenHash:   tokenHash,
		PrincipalID: principalID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_tokens(token_hash, principal_id, created_at, expires_at, revoked_at)
VALUES(?, ?, ?, ?, NULL)`, t.TokenHash, t.PrincipalID, t.CreatedAt, t.ExpiresAt)
	return t, err
}

// ValidatePrincipalToken resolves a hashed bearer token to its principal.
// Expired or revoked tokens return [domain.ErrUnauthenticated].
func (s *Store) ValidatePrincipalToken(ctx context.Context, tokenHash string) (domain.Principal, error) {
	var p domain.Principal
	var expires time.Time
	var revoked sql.NullTime
	err := s.db.QueryRowContext(ctx, `
SELECT p.id, p.username, p.created_at, t.expires_at, t.revoked_at
FROM session_tokens t
JOIN principals p ON p.id = t.principal_id
WHERE t.token_hash = ?`, tokenHash).
		Scan(&p.ID, &p.Username, &p.CreatedAt, &expires, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if revoked.Valid || time.Now().UTC().After(expires) {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	return p, nil
}

func (s *Store) RevokeSessionToken(ctx context.Context, tokenHash string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE session_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListSessionTokens(ctx context.Context, principalID string) ([]domain.SessionToken, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT token_hash, principal_id, created_at, expires_at, revoked_at
FROM session_tokens
WHERE principal_id = ?
ORDER BY created_at DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SessionToken
	for rows.Next() {
		var t domain.SessionToken
		var revoked sql.NullTime
		if err := rows.Scan(&t.TokenHash, &t.PrincipalID, &t.CreatedAt, &t.ExpiresAt, &revoked); err != nil {
			return nil, err
		}
		if revoked.Valid {
			at := revoked.Time
			t.RevokedAt = &at
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
