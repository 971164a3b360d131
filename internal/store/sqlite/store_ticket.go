package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tunnelgate/tunnelgate/internal/domain"
)

// CreateTransferTicket mints a single-use capability for the one-shot
// HTTP transfer endpoint.
func (s *Store) CreateTransferTicket(ctx context.Context, endpointID, principalID, username, path, op string, ttl time.Duration) (domain.TransferTicket, error) {
	ticket, err := newID("x")
	if err != nil {
		return domain.TransferTicket{}, err
	}
	t := domain.TransferTicket{
		Ticket:      ticket,
		EndpointID:  endpointID,
		PrincipalID: principalID,
		Username:    username,
		Path:        path,
		Op:          op,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO transfer_tickets(ticket, endpoint_id, principal_id, username, path, op, expires_at, used_at)
VALUES(?, ?, ?, ?, ?, ?, ?, NULL)`,
		t.Ticket, t.EndpointID, t.PrincipalID, t.Username, t.Path, t.Op, t.ExpiresAt)
	return t, err
}

// ConsumeTransferTicket atomically marks a ticket used and returns it.
// Spent, expired, or unknown tickets return [domain.ErrTicketSpent].
func (s *Store) ConsumeTransferTicket(ctx context.Context, ticket string) (domain.TransferTicket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TransferTicket{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var t domain.TransferTicket
	var used sql.NullTime
	if err = tx.QueryRowContext(ctx, `
SELECT ticket, endpoint_id, principal_id, username, path, op, expires_at, used_at
FROM transfer_tickets
WHERE ticket = ?`, ticket).
		Scan(&t.Ticket, &t.EndpointID, &t.PrincipalID, &t.Username, &t.Path, &t.Op, &t.ExpiresAt, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransferTicket{}, domain.ErrTicketSpent
		}
		return domain.TransferTicket{}, err
	}
	now := time.Now().UTC()
	if used.Valid || now.After(t.ExpiresAt) {
		return domain.TransferTicket{}, domain.ErrTicketSpent
	}

	res, err := tx.ExecContext(ctx, `
UPDATE transfer_tickets
SET used_at = ?
WHERE ticket = ? AND used_at IS NULL AND expires_at >= ?`, now, ticket, now)
	if err != nil {
		return domain.TransferTicket{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.TransferTicket{}, err
	}
	if affected == 0 {
		return domain.TransferTicket{}, domain.ErrTicketSpent
	}
	if err = tx.Commit(); err != nil {
		return domain.TransferTicket{}, err
	}
	return t, nil
}

// PurgeStaleTransferTickets removes expired tickets and used tickets
// older than the provided cutoff, limiting each run to avoid long write
// transactions.
func (s *Store) PurgeStaleTransferTickets(ctx context.Context, now, usedOlderThan time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM transfer_tickets
WHERE ticket IN (
	SELECT ticket
	FROM transfer_tickets
	WHERE expires_at < ? OR (used_at IS NOT NULL AND used_at < ?)
	ORDER BY COALESCE(used_at, expires_at) ASC
	LIMIT ?
)`, now.UTC(), usedOlderThan.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
