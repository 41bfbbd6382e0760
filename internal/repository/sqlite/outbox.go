package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
)

var _ repository.OutboxRepository = (*DB)(nil)

// EnqueueOutbox is meant to run inside the same transaction as the change
// the message announces.
func (db *DB) EnqueueOutbox(ctx context.Context, m *model.OutboxMessage) error {
	now := time.Now().UTC()
	m.Status = model.OutboxPending
	m.CreatedAt = now
	m.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO notification_outbox (channel, recipient, subject, body, entity_type, entity_id, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		string(m.Channel), m.Recipient, m.Subject, m.Body, string(m.EntityType), m.EntityID,
		string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: enqueueing %s notification: %w", m.Channel, err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading outbox id: %w", err)
	}
	return nil
}

// ListPendingOutbox returns the oldest pending messages first.
func (db *DB) ListPendingOutbox(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, channel, recipient, subject, body, entity_type, entity_id, status, attempts, last_error, created_at, updated_at
		 FROM notification_outbox WHERE status = 'pending' ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pending outbox: %w", err)
	}
	defer rows.Close()

	var msgs []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		var channel, entityType, status string
		if err := rows.Scan(&m.ID, &channel, &m.Recipient, &m.Subject, &m.Body, &entityType, &m.EntityID,
			&status, &m.Attempts, &m.LastError, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning outbox row: %w", err)
		}
		m.Channel = model.NotificationChannel(channel)
		m.EntityType = model.EntityType(entityType)
		m.Status = model.OutboxStatus(status)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (db *DB) MarkOutboxSent(ctx context.Context, id int64) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE notification_outbox SET status = 'sent', last_error = '', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking outbox %d sent: %w", id, err)
	}
	return requireAffected(res, "outbox message", id)
}

func (db *DB) MarkOutboxAttempt(ctx context.Context, id int64, lastErr string, maxAttempts int) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE notification_outbox
		 SET attempts = attempts + 1,
		     last_error = ?,
		     status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE status END,
		     updated_at = ?
		 WHERE id = ?`,
		lastErr, maxAttempts, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording outbox attempt %d: %w", id, err)
	}
	return requireAffected(res, "outbox message", id)
}
