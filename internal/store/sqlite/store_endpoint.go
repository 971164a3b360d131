package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// ErrNameInUse is returned when the requested endpoint name is already
// allocated.
var ErrNameInUse = errors.New("endpoint name already in use")

// CreateEndpoint registers a new endpoint, allocating a relay port from
// [low, high) that is neither assigned to another endpoint nor present
// in observedPorts (ports seen listening on the relay host).
func (s *Store) CreateEndpoint(ctx context.Context, ownerID, name, publicKey, description string, low, high int, observedPorts map[int]bool) (domain.Endpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Endpoint{}, errors.New("endpoint name required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Endpoint{}, err
	}
	defer func() { _ = tx.Rollback() }()

	assigned := map[int]bool{}
	rows, err := tx.QueryContext(ctx, `SELECT relay_port FROM endpoints`)
	if err != nil {
		return domain.Endpoint{}, err
	}
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			_ = rows.Close()
			return domain.Endpoint{}, err
		}
		assigned[port] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return domain.Endpoint{}, err
	}
	_ = rows.Close()

	port := 0
	for candidate := low; candidate < high; candidate++ {
		if assigned[candidate] || observedPorts[candidate] {
			continue
		}
		port = candidate
		break
	}
	if port == 0 {
		return domain.Endpoint{}, domain.ErrPortsExhausted
	}

	id, err := newID("e")
	if err != nil {
		return domain.Endpoint{}, err
	}
	now := time.Now().UTC()
	e := domain.Endpoint{
		ID:          id,
		PrincipalID: ownerID,
		Name:        name,
		PublicKey:   publicKey,
		RelayPort:   port,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO endpoints(id, principal_id, name, public_key, relay_port, description, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PrincipalID, e.Name, e.PublicKey, e.RelayPort, e.Description, e.CreatedAt, e.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Endpoint{}, ErrNameInUse
		}
		return domain.Endpoint{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Endpoint{}, err
	}
	return e, nil
}

func (s *Store) GetEndpoint(ctx context.Context, id string) (domain.Endpoint, error) {
	var e domain.Endpoint
	err := s.db.QueryRowContext(ctx, `
SELECT id, principal_id, name, public_key, relay_port, description, created_at, updated_at
FROM endpoints WHERE id = ?`, id).
		Scan(&e.ID, &e.PrincipalID, &e.Name, &e.PublicKey, &e.RelayPort, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Endpoint{}, domain.ErrEndpointNotFound
	}
	return e, err
}

func (s *Store) ListEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, principal_id, name, public_key, relay_port, description, created_at, updated_at
FROM endpoints
ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Endpoint
	for rows.Next() {
		var e domain.Endpoint
		if err := rows.Scan(&e.ID, &e.PrincipalID, &e.Name, &e.PublicKey, &e.RelayPort, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RelayPorts returns relay port -> endpoint ID for every registered
// endpoint. The reconciliation monitor intersects the probe result with
// this set.
func (s *Store) RelayPorts(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT relay_port, id FROM endpoints`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[int]string{}
	for rows.Next() {
		var port int
		var id string
		if err := rows.Scan(&port, &id); err != nil {
			return nil, err
		}
		out[port] = id
	}
	return out, rows.Err()
}

func (s *Store) AddEndpointUsername(ctx context.Context, endpointID, username string) (domain.EndpointUsername, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.EndpointUsername{}, errors.New("username required")
	}
	if _, err := s.GetEndpoint(ctx, endpointID); err != nil {
		return domain.EndpointUsername{}, err
	}
	id, err := newID("u")
	if err != nil {
		return domain.EndpointUsername{}, err
	}
	u := domain.EndpointUsername{
		ID:         id,
		EndpointID: endpointID,
		Username:   username,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO endpoint_usernames(id, endpoint_id, username, created_at)
VALUES(?, ?, ?, ?)`, u.ID, u.EndpointID, u.Username, u.CreatedAt)
	if isUniqueViolation(err) {
		return domain.EndpointUsername{}, fmt.Errorf("username %q already registered for endpoint", username)
	}
	return u, err
}

// GetEndpointUsername validates that username is registered for the
// endpoint, returning [domain.ErrUsernameNotFound] otherwise.
func (s *Store) GetEndpointUsername(ctx context.Context, endpointID, username string) (domain.EndpointUsername, error) {
	var u domain.EndpointUsername
	err := s.db.QueryRowContext(ctx, `
SELECT id, endpoint_id, username, created_at
FROM endpoint_usernames
WHERE endpoint_id = ? AND username = ?`, endpointID, username).
		Scan(&u.ID, &u.EndpointID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EndpointUsername{}, domain.ErrUsernameNotFound
	}
	return u, err
}

func (s *Store) ListEndpointUsernames(ctx context.Context, endpointID string) ([]domain.EndpointUsername, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, endpoint_id, username, created_at
FROM endpoint_usernames
WHERE endpoint_id = ?
ORDER BY username ASC`, endpointID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.EndpointUsername
	for rows.Next() {
		var u domain.EndpointUsername
		if err := rows.Scan(&u.ID, &u.EndpointID, &u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
