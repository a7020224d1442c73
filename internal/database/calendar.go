package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gigflow/internal/models"
)

const blockColumns = `id, musician_id, gig_id, date, start_time, end_time, source, external_id, created_at`

func scanBlock(row scanner) (*models.CalendarBlock, error) {
	var b models.CalendarBlock
	err := row.Scan(&b.ID, &b.MusicianID, &b.GigID, &b.Date, &b.StartTime, &b.EndTime, &b.Source, &b.ExternalID, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateCalendarBlock stores b. A second block for the same musician and gig
// is ignored and reported with created == false.
func (db *DB) CreateCalendarBlock(ctx context.Context, b *models.CalendarBlock) (bool, error) {
	if b.Source == "" {
		b.Source = models.CalendarSourceGig
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO calendar_blocks (musician_id, gig_id, date, start_time, end_time, source, external_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.MusicianID, b.GigID, b.Date, b.StartTime, b.EndTime, b.Source, b.ExternalID, now)
	if err != nil {
		return false, fmt.Errorf("failed to create calendar block: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	return true, nil
}

func (db *DB) SetCalendarBlockExternalID(ctx context.Context, id int64, externalID string) error {
	_, err := db.ExecContext(ctx, `UPDATE calendar_blocks SET external_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("failed to set external id: %w", err)
	}
	return nil
}

// MoveCalendarBlock rewrites the slot of a block and clears its external id so
// the sink event gets created again.
func (db *DB) MoveCalendarBlock(ctx context.Context, id int64, date, startTime, endTime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE calendar_blocks SET date = ?, start_time = ?, end_time = ?, external_id = '' WHERE id = ?`,
		date, startTime, endTime, id)
	if err != nil {
		return fmt.Errorf("failed to move calendar block: %w", err)
	}
	return nil
}

func (db *DB) queryBlocks(ctx context.Context, where string, args ...any) ([]models.CalendarBlock, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM calendar_blocks WHERE `+where+` ORDER BY date ASC, start_time ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar blocks: %w", err)
	}
	defer rows.Close()

	blocks := []models.CalendarBlock{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar block: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

// ListCalendarBlocks returns a musician's blocks between two "YYYY-MM-DD"
// dates, both inclusive. Empty bounds are open.
func (db *DB) ListCalendarBlocks(ctx context.Context, musicianID int64, from, to string) ([]models.CalendarBlock, error) {
	where := []string{"musician_id = ?"}
	args := []any{musicianID}
	if from != "" {
		where = append(where, "date >= ?")
		args = append(args, from)
	}
	if to != "" {
		where = append(where, "date <= ?")
		args = append(args, to)
	}
	return db.queryBlocks(ctx, strings.Join(where, " AND "), args...)
}

// ListBlocksAround returns the blocks of the given musicians on date and the
// day before, which is enough to catch slots running past midnight.
func (db *DB) ListBlocksAround(ctx context.Context, musicianIDs []int64, date string) ([]models.CalendarBlock, error) {
	if len(musicianIDs) == 0 {
		return []models.CalendarBlock{}, nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	prev := day.AddDate(0, 0, -1).Format("2006-01-02")
	args := append(int64Args(musicianIDs), prev, date)
	return db.queryBlocks(ctx, "musician_id IN ("+placeholders(len(musicianIDs))+") AND date BETWEEN ? AND ?", args...)
}

func (db *DB) ListBlocksByGig(ctx context.Context, gigID int64) ([]models.CalendarBlock, error) {
	return db.queryBlocks(ctx, "gig_id = ?", gigID)
}

// DeleteCalendarBlock removes one block.
func (db *DB) DeleteCalendarBlock(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM calendar_blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete calendar block: %w", err)
	}
	return nil
}
