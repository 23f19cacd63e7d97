package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/model"
	"github.com/jsedeno/anitrack/internal/repository"
	"github.com/rs/xid"
)

// compile-time check that *DB implements repository.LibraryRepository
var _ repository.LibraryRepository = (*DB)(nil)

const entryColumns = `id, user_id, anime_id, title, image_url, status,
	current_episode, total_episodes, score, notes, added_at, completed_at, updated_at`

// Insert adds a new entry and recomputes the owner's stats over the
// post-insert set, both inside one transaction. A duplicate (user, anime)
// pair is rejected with apperror.Conflict and leaves everything untouched.
func (db *DB) Insert(ctx context.Context, entry *model.LibraryEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM library_entries WHERE user_id = ? AND anime_id = ?`,
		entry.UserID, entry.AnimeID,
	).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: checking for existing entry: %w", err)
	}
	if existing != "" {
		return apperror.Conflict("library entry", strconv.Itoa(entry.AnimeID))
	}

	now := time.Now()
	entry.ID = xid.New().String()
	entry.AddedAt = now
	entry.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO library_entries
		 (id, user_id, anime_id, title, image_url, status, current_episode,
		  total_episodes, score, notes, added_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.AnimeID,
		entry.Title,
		entry.ImageURL,
		string(entry.Status),
		entry.CurrentEpisode,
		nullableInt(entry.TotalEpisodes),
		nullableInt(entry.Score),
		entry.Notes,
		entry.AddedAt,
		nullableTime(entry.CompletedAt),
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting entry for anime %d: %w", entry.AnimeID, err)
	}

	if err := recomputeStats(ctx, tx, entry.UserID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing entry insert: %w", err)
	}
	return nil
}

// Update rewrites an existing entry and recomputes stats in the same
// transaction. The service layer has already applied partial-update and
// auto-complete rules; by the time we get here the entry is the full desired
// row.
func (db *DB) Update(ctx context.Context, entry *model.LibraryEntry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE library_entries
		 SET status = ?, current_episode = ?, total_episodes = ?, score = ?,
		     notes = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		string(entry.Status),
		entry.CurrentEpisode,
		nullableInt(entry.TotalEpisodes),
		nullableInt(entry.Score),
		entry.Notes,
		nullableTime(entry.CompletedAt),
		entry.UpdatedAt,
		entry.ID,
		entry.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating entry %s: %w", entry.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking entry update %s: %w", entry.ID, err)
	}
	if rows == 0 {
		return apperror.NotFound("library entry", entry.ID)
	}

	if err := recomputeStats(ctx, tx, entry.UserID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing entry update: %w", err)
	}
	return nil
}

// Delete removes an entry and recomputes stats over the remaining set in the
// same transaction, so the stats row always matches either the pre- or the
// post-removal library — never something in between.
func (db *DB) Delete(ctx context.Context, userID, entryID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM library_entries WHERE id = ? AND user_id = ?`,
		entryID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting entry %s: %w", entryID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking entry delete %s: %w", entryID, err)
	}
	if rows == 0 {
		return apperror.NotFound("library entry", entryID)
	}

	if err := recomputeStats(ctx, tx, userID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing entry delete: %w", err)
	}
	return nil
}

// GetByID retrieves one entry, scoped to the owning user.
func (db *DB) GetByID(ctx context.Context, userID, entryID string) (*model.LibraryEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM library_entries WHERE id = ? AND user_id = ?`,
		entryID, userID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("library entry", entryID)
		}
		return nil, fmt.Errorf("sqlite: getting entry %s: %w", entryID, err)
	}
	return entry, nil
}

// GetByAnimeID retrieves the entry for an external catalog ID, if tracked.
func (db *DB) GetByAnimeID(ctx context.Context, userID string, animeID int) (*model.LibraryEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM library_entries WHERE user_id = ? AND anime_id = ?`,
		userID, animeID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("library entry", strconv.Itoa(animeID))
		}
		return nil, fmt.Errorf("sqlite: getting entry for anime %d: %w", animeID, err)
	}
	return entry, nil
}

// List returns the user's full library, most recently updated first. The
// result is a materialized slice — no cursor held open against the pool.
func (db *DB) List(ctx context.Context, userID string) ([]model.LibraryEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM library_entries
		 WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	entries := []model.LibraryEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating entries: %w", err)
	}

	return entries, nil
}

// Stats returns the user's aggregate row.
func (db *DB) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	var s model.Stats

	err := db.conn.QueryRowContext(ctx,
		`SELECT total_anime, watching, completed, plan_to_watch, on_hold,
		        dropped, total_episodes, days_watched
		 FROM stats WHERE user_id = ?`,
		userID,
	).Scan(
		&s.TotalAnime,
		&s.Watching,
		&s.Completed,
		&s.PlanToWatch,
		&s.OnHold,
		&s.Dropped,
		&s.TotalEpisodes,
		&s.DaysWatched,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("stats", userID)
		}
		return nil, fmt.Errorf("sqlite: getting stats for user %s: %w", userID, err)
	}

	return &s, nil
}

// recomputeStats rebuilds the stats row from the full entry set, inside the
// caller's transaction. Only status and current_episode matter for the
// aggregate, so that's all we select.
func recomputeStats(ctx context.Context, tx *sql.Tx, userID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT status, current_episode FROM library_entries WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reading entries for stats recompute: %w", err)
	}
	defer rows.Close()

	var entries []model.LibraryEntry
	for rows.Next() {
		var e model.LibraryEntry
		var status string
		if err := rows.Scan(&status, &e.CurrentEpisode); err != nil {
			return fmt.Errorf("sqlite: scanning entry for stats recompute: %w", err)
		}
		e.Status = model.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating entries for stats recompute: %w", err)
	}

	var stats model.Stats
	stats.Recalculate(entries)

	_, err = tx.ExecContext(ctx,
		`UPDATE stats
		 SET total_anime = ?, watching = ?, completed = ?, plan_to_watch = ?,
		     on_hold = ?, dropped = ?, total_episodes = ?, days_watched = ?
		 WHERE user_id = ?`,
		stats.TotalAnime,
		stats.Watching,
		stats.Completed,
		stats.PlanToWatch,
		stats.OnHold,
		stats.Dropped,
		stats.TotalEpisodes,
		stats.DaysWatched,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing recomputed stats: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*model.LibraryEntry, error) {
	var (
		e             model.LibraryEntry
		status        string
		totalEpisodes sql.NullInt64
		score         sql.NullInt64
		completedAt   sql.NullTime
	)

	err := s.Scan(
		&e.ID,
		&e.UserID,
		&e.AnimeID,
		&e.Title,
		&e.ImageURL,
		&status,
		&e.CurrentEpisode,
		&totalEpisodes,
		&score,
		&e.Notes,
		&e.AddedAt,
		&completedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = model.Status(status)
	if totalEpisodes.Valid {
		v := int(totalEpisodes.Int64)
		e.TotalEpisodes = &v
	}
	if score.Valid {
		v := int(score.Int64)
		e.Score = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		e.CompletedAt = &v
	}

	return &e, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
