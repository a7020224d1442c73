package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gigflow/internal/models"
)

const gigColumns = `g.id, g.title, g.description, g.city, g.location, g.event_date, g.start_time, g.end_time,
	g.budget_cents, g.genres, g.contact_phone, g.contact_email, g.status, g.created_by,
	g.created_at, g.updated_at, g.version,
	(SELECT COUNT(*) FROM applications a WHERE a.gig_id = g.id)`

func scanGig(row scanner) (*models.Gig, error) {
	var g models.Gig
	var genres string
	err := row.Scan(
		&g.ID, &g.Title, &g.Description, &g.City, &g.Location, &g.EventDate, &g.StartTime, &g.EndTime,
		&g.Budget, &genres, &g.ContactPhone, &g.ContactEmail, &g.Status, &g.CreatedBy,
		&g.CreatedAt, &g.UpdatedAt, &g.Version, &g.ApplicationsCount,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(genres), &g.Genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres of gig %d: %w", g.ID, err)
	}
	if g.Genres == nil {
		g.Genres = []string{}
	}
	return &g, nil
}

func encodeGenres(genres []string) (string, error) {
	if genres == nil {
		genres = []string{}
	}
	raw, err := json.Marshal(genres)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CreateGig inserts g and fills its id, timestamps and version.
func (db *DB) CreateGig(ctx context.Context, g *models.Gig) error {
	genres, err := encodeGenres(g.Genres)
	if err != nil {
		return fmt.Errorf("failed to encode genres: %w", err)
	}
	if g.Status == "" {
		g.Status = models.GigStatusOpen
	}
	now := g.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	query := `INSERT INTO gigs (
				title, description, city, location, event_date, start_time, end_time,
				budget_cents, genres, contact_phone, contact_email, status, created_by,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	result, err := db.ExecContext(ctx, query,
		g.Title, g.Description, g.City, g.Location, g.EventDate, g.StartTime, g.EndTime,
		g.Budget, genres, g.ContactPhone, g.ContactEmail, string(g.Status), g.CreatedBy,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create gig: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	g.ID = id
	g.CreatedAt = now
	g.UpdatedAt = now
	g.Version = 1
	return nil
}

func (db *DB) GetGig(ctx context.Context, id int64) (*models.Gig, error) {
	row := db.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs g WHERE g.id = ?`, id)
	g, err := scanGig(row)
	if err != nil {
		return nil, notFound(err, "gig", id)
	}
	return g, nil
}

// GigQuery narrows ListGigs. Zero fields do not filter.
type GigQuery struct {
	OwnerID  int64
	Statuses []models.GigStatus
	Limit    int
}

// ListGigs returns gigs newest first.
func (db *DB) ListGigs(ctx context.Context, q GigQuery) ([]models.Gig, error) {
	var where []string
	var args []any
	if q.OwnerID != 0 {
		where = append(where, "g.created_by = ?")
		args = append(args, q.OwnerID)
	}
	if len(q.Statuses) > 0 {
		where = append(where, "g.status IN ("+placeholders(len(q.Statuses))+")")
		for _, s := range q.Statuses {
			args = append(args, string(s))
		}
	}

	query := `SELECT ` + gigColumns + ` FROM gigs g`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY g.created_at DESC, g.id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gigs: %w", err)
	}
	defer rows.Close()

	gigs := []models.Gig{}
	for rows.Next() {
		g, err := scanGig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gig: %w", err)
		}
		gigs = append(gigs, *g)
	}
	return gigs, rows.Err()
}

// UpdateGigDetails writes the editable fields of g if its stored version is
// still fromVersion.
func (db *DB) UpdateGigDetails(ctx context.Context, g *models.Gig, fromVersion int64) error {
	genres, err := encodeGenres(g.Genres)
	if err != nil {
		return fmt.Errorf("failed to encode genres: %w", err)
	}
	now := time.Now().UTC()
	query := `UPDATE gigs SET title = ?, description = ?, city = ?, location = ?, event_date = ?,
	                 start_time = ?, end_time = ?, budget_cents = ?, genres = ?, contact_phone = ?,
	                 contact_email = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		g.Title, g.Description, g.City, g.Location, g.EventDate,
		g.StartTime, g.EndTime, g.Budget, genres, g.ContactPhone,
		g.ContactEmail, now, g.ID, fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update gig: %w", err)
	}
	if err := db.checkVersioned(ctx, result, g.ID); err != nil {
		return err
	}
	g.UpdatedAt = now
	g.Version = fromVersion + 1
	return nil
}

// checkVersioned turns a zero-row versioned update into ErrNotFound or
// ErrConcurrentModification.
func (db *DB) checkVersioned(ctx context.Context, result sql.Result, gigID int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM gigs WHERE id = ?`, gigID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("gig %d: %w", gigID, ErrNotFound)
	}
	return ErrConcurrentModification
}

// SaveTransition persists a marketplace transition: the gig status plus every
// changed application, in one transaction guarded by the gig version.
func (db *DB) SaveTransition(ctx context.Context, g *models.Gig, fromVersion int64, changed []*models.Application) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	updatedAt := g.UpdatedAt.UTC()
	if g.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE gigs SET status = ?, updated_at = ?, version = version + 1 WHERE id = ? AND version = ?`,
		string(g.Status), updatedAt, g.ID, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update gig status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM gigs WHERE id = ?`, g.ID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("gig %d: %w", g.ID, ErrNotFound)
		}
		return ErrConcurrentModification
	}

	for _, a := range changed {
		appUpdated := a.UpdatedAt.UTC()
		if a.UpdatedAt.IsZero() {
			appUpdated = updatedAt
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND gig_id = ?`,
			string(a.Status), appUpdated, a.ID, g.ID)
		if err != nil {
			return fmt.Errorf("failed to update application %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	g.Version = fromVersion + 1
	return nil
}
