package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gigflow/internal/models"
)

func (db *DB) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	now := msg.CreatedAt.UTC()
	if msg.CreatedAt.IsZero() {
		now = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO chat_messages (application_id, sender_id, sender_name, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ApplicationID, msg.SenderID, msg.SenderName, msg.Message, now)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return nil
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]models.ChatMessage, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ApplicationID, &m.SenderID, &m.SenderName, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListMessages returns one application thread, oldest first.
func (db *DB) ListMessages(ctx context.Context, applicationID int64) ([]models.ChatMessage, error) {
	return db.queryMessages(ctx,
		`SELECT id, application_id, sender_id, sender_name, message, created_at
         FROM chat_messages WHERE application_id = ? ORDER BY created_at ASC, id ASC`, applicationID)
}

// ListMessagesByGig returns the messages of every thread of a gig.
func (db *DB) ListMessagesByGig(ctx context.Context, gigID int64) ([]models.ChatMessage, error) {
	return db.queryMessages(ctx,
		`SELECT m.id, m.application_id, m.sender_id, m.sender_name, m.message, m.created_at
         FROM chat_messages m JOIN applications a ON a.id = m.application_id
         WHERE a.gig_id = ? ORDER BY m.created_at ASC, m.id ASC`, gigID)
}

// MarkRead records that readerID has seen the thread up to at. It never moves backwards.
func (db *DB) MarkRead(ctx context.Context, applicationID, readerID int64, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO chat_reads (application_id, reader_id, last_read_at) VALUES (?, ?, ?)
         ON CONFLICT(application_id, reader_id) DO UPDATE SET
             last_read_at = MAX(last_read_at, excluded.last_read_at)`,
		applicationID, readerID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark thread read: %w", err)
	}
	return nil
}

// LastRead returns when readerID last opened the thread; zero if never.
func (db *DB) LastRead(ctx context.Context, applicationID, readerID int64) (time.Time, error) {
	var at time.Time
	err := db.QueryRowContext(ctx,
		`SELECT last_read_at FROM chat_reads WHERE application_id = ? AND reader_id = ?`,
		applicationID, readerID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last read: %w", err)
	}
	return at, nil
}

// LastReads returns the read marks of readerID keyed by application id.
func (db *DB) LastReads(ctx context.Context, readerID int64) (map[int64]time.Time, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT application_id, last_read_at FROM chat_reads WHERE reader_id = ?`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list read marks: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]time.Time)
	for rows.Next() {
		var id int64
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan read mark: %w", err)
		}
		out[id] = at
	}
	return out, rows.Err()
}
