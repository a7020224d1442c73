package database

import (
	"context"
	"fmt"
	"time"

	"gigflow/internal/models"
)

const applicationColumns = `a.id, a.gig_id, a.musician_id, a.musician_name, a.cover_letter, a.expected_fee_cents,
	a.status, a.created_at, a.updated_at,
	(SELECT COUNT(*) FROM chat_messages m WHERE m.application_id = a.id)`

func scanApplication(row scanner) (*models.Application, error) {
	var a models.Application
	err := row.Scan(
		&a.ID, &a.GigID, &a.MusicianID, &a.MusicianName, &a.CoverLetter, &a.ExpectedFee,
		&a.Status, &a.CreatedAt, &a.UpdatedAt, &a.ChatMessageCount,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateApplication stores app and the gig status change it caused, guarded
// by the gig version.
func (db *DB) CreateApplication(ctx context.Context, g *models.Gig, fromVersion int64, app *models.Application) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := app.CreatedAt.UTC()
	if app.CreatedAt.IsZero() {
		now = time.Now().UTC()
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE gigs SET status = ?, updated_at = ?, version = version + 1 WHERE id = ? AND version = ?`,
		string(g.Status), g.UpdatedAt.UTC(), g.ID, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update gig status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}

	insert := `INSERT INTO applications (
				gig_id, musician_id, musician_name, cover_letter, expected_fee_cents, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err = tx.ExecContext(ctx, insert,
		g.ID, app.MusicianID, app.MusicianName, app.CoverLetter, app.ExpectedFee,
		string(app.Status), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit application: %w", err)
	}
	app.ID = id
	app.GigID = g.ID
	app.CreatedAt = now
	app.UpdatedAt = now
	g.Version = fromVersion + 1
	return nil
}

func (db *DB) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	row := db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications a WHERE a.id = ?`, id)
	a, err := scanApplication(row)
	if err != nil {
		return nil, notFound(err, "application", id)
	}
	return a, nil
}

// FindApplication returns the application of musicianID for gigID, or ErrNotFound.
func (db *DB) FindApplication(ctx context.Context, gigID, musicianID int64) (*models.Application, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications a WHERE a.gig_id = ? AND a.musician_id = ?`,
		gigID, musicianID)
	a, err := scanApplication(row)
	if err != nil {
		return nil, notFound(err, "application for gig", gigID)
	}
	return a, nil
}

func (db *DB) queryApplications(ctx context.Context, where string, args ...any) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a WHERE ` + where + ` ORDER BY a.created_at ASC, a.id ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

// ListApplicationsByGig returns all applications of a gig in submission order.
func (db *DB) ListApplicationsByGig(ctx context.Context, gigID int64) ([]models.Application, error) {
	return db.queryApplications(ctx, "a.gig_id = ?", gigID)
}

func (db *DB) ListApplicationsByMusician(ctx context.Context, musicianID int64) ([]models.Application, error) {
	return db.queryApplications(ctx, "a.musician_id = ?", musicianID)
}

// ListApplicationsForGigs fetches the viewer's applications for several gigs at once.
func (db *DB) ListApplicationsForGigs(ctx context.Context, musicianID int64, gigIDs []int64) (map[int64]models.Application, error) {
	out := make(map[int64]models.Application)
	if len(gigIDs) == 0 {
		return out, nil
	}
	args := append([]any{musicianID}, int64Args(gigIDs)...)
	apps, err := db.queryApplications(ctx, "a.musician_id = ? AND a.gig_id IN ("+placeholders(len(gigIDs))+")", args...)
	if err != nil {
		return nil, err
	}
	for _, a := range apps {
		out[a.GigID] = a
	}
	return out, nil
}
