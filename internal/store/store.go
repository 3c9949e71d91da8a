// Package store persists reconciled track resolutions in SQLite and keeps a
// fast in-memory index of user-confirmed recordings.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"tracklink/internal/core"
)

//go:embed schema.sql
var schema string

// Store wraps the SQLite handle. All mutations to the tracks table go
// through UpsertResolved so the confirmed cache stays coherent.
type Store struct {
	db        *sql.DB
	logger    *zap.Logger
	confirmed *ConfirmedCache
}

// UpsertOptions controls the confirmed-record protection rule.
type UpsertOptions struct {
	// Overwrite allows replacing a track the user already confirmed.
	Overwrite bool
	// UserID, when set, records a best-effort ownership claim.
	UserID string
}

// Record is a persisted track as read back from the store.
type Record struct {
	ID        string
	Confirmed bool
	core.Resolution
}

// Open opens (creating if needed) the SQLite database at path, applies the
// schema and warms the confirmed-ISRC cache.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A shared in-memory database needs a single connection or each new
	// connection sees a fresh empty database.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// WAL keeps reads from blocking behind resolution writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:        db,
		logger:    logger,
		confirmed: NewConfirmedCache(defaultConfirmedCapacity, defaultFalsePositiveRate),
	}
	if err := s.warmConfirmed(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) warmConfirmed(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT isrc FROM tracks WHERE user_confirmed = 1 AND isrc IS NOT NULL")
	if err != nil {
		return fmt.Errorf("warm confirmed cache: %w", err)
	}
	defer rows.Close()

	var isrcs []string
	for rows.Next() {
		var isrc string
		if err := rows.Scan(&isrc); err != nil {
			return fmt.Errorf("warm confirmed cache: %w", err)
		}
		isrcs = append(isrcs, isrc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("warm confirmed cache: %w", err)
	}

	s.confirmed.Load(isrcs)
	s.logger.Debug("confirmed cache warmed", zap.Int("isrcs", len(isrcs)))
	return nil
}

// isConfirmed answers whether the track behind isrc is user-confirmed,
// consulting the cache first and falling back to the database only when the
// cache cannot give a definite answer.
func (s *Store) isConfirmed(ctx context.Context, isrc string) (bool, error) {
	switch s.confirmed.Check(isrc) {
	case ConfirmedYes:
		return true, nil
	case ConfirmedNo:
		return false, nil
	}

	var confirmed bool
	err := s.db.QueryRowContext(ctx,
		"SELECT user_confirmed FROM tracks WHERE isrc = ?", isrc).Scan(&confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup confirmed flag: %w", err)
	}
	if confirmed {
		s.confirmed.Add(isrc)
	}
	return confirmed, nil
}

// UpsertResolved writes the reconciled track and its link set in one
// transaction. When the track is already user-confirmed and opts.Overwrite is
// false, nothing is written and skipped is true; the existing identifier is
// still returned so the caller can reference the protected record.
func (s *Store) UpsertResolved(ctx context.Context, res core.Resolution, opts UpsertOptions) (trackID string, skipped bool, err error) {
	meta := res.Core

	if meta.ISRC != "" && !opts.Overwrite {
		confirmed, err := s.isConfirmed(ctx, meta.ISRC)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
		if confirmed {
			var id string
			if err := s.db.QueryRowContext(ctx,
				"SELECT id FROM tracks WHERE isrc = ?", meta.ISRC).Scan(&id); err != nil {
				return "", false, fmt.Errorf("%w: %v", core.ErrPersistence, err)
			}
			s.logger.Info("track already confirmed, skipping write",
				zap.String("isrc", meta.ISRC),
				zap.String("track_id", id))
			return id, true, nil
		}
	}

	trackID, err = s.upsertTx(ctx, res)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	if opts.UserID != "" {
		// Ownership claiming is best-effort; a failure here never fails
		// the resolution that produced the track.
		if err := s.ClaimOwnership(ctx, trackID, opts.UserID); err != nil {
			s.logger.Warn("ownership claim failed",
				zap.String("track_id", trackID),
				zap.String("user_id", opts.UserID),
				zap.Error(err))
		}
	}

	return trackID, false, nil
}

func (s *Store) upsertTx(ctx context.Context, res core.Resolution) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	meta := res.Core
	trackID := uuid.NewString()
	if meta.ISRC != "" {
		var existing string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM tracks WHERE isrc = ?", meta.ISRC).Scan(&existing)
		switch {
		case err == nil:
			trackID = existing
		case errors.Is(err, sql.ErrNoRows):
		default:
			return "", err
		}
	}

	isrc := sql.NullString{String: meta.ISRC, Valid: meta.ISRC != ""}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tracks (id, isrc, title, artist, album, duration_ms, release_date, artwork_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			isrc = COALESCE(excluded.isrc, tracks.isrc),
			title = excluded.title,
			artist = excluded.artist,
			album = COALESCE(NULLIF(excluded.album, ''), tracks.album),
			duration_ms = excluded.duration_ms,
			release_date = COALESCE(NULLIF(excluded.release_date, ''), tracks.release_date),
			artwork_url = COALESCE(NULLIF(excluded.artwork_url, ''), tracks.artwork_url),
			updated_at = CURRENT_TIMESTAMP`,
		trackID, isrc, meta.Title, meta.Artist, meta.Album,
		meta.DurationMS, meta.ReleaseDate, meta.ArtworkURL); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM track_links WHERE track_id = ?", trackID); err != nil {
		return "", err
	}
	for _, hit := range res.Links {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO track_links (track_id, platform, platform_id, url_web, url_app, storefront, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			trackID, string(hit.Platform), hit.PlatformID,
			hit.URLWeb, hit.URLApp, hit.Storefront, hit.Confidence); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return trackID, nil
}

// Confirm marks the track behind isrc as user-verified, shielding it from
// future non-overwrite upserts.
func (s *Store) Confirm(ctx context.Context, isrc string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tracks SET user_confirmed = 1, updated_at = CURRENT_TIMESTAMP WHERE isrc = ?", isrc)
	if err != nil {
		return fmt.Errorf("confirm track: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm track: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	s.confirmed.Add(isrc)
	return nil
}

// ClaimOwnership records that userID claims trackID. Repeating an existing
// claim is a no-op.
func (s *Store) ClaimOwnership(ctx context.Context, trackID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO track_claims (track_id, user_id) VALUES (?, ?)
		ON CONFLICT(track_id, user_id) DO NOTHING`, trackID, userID)
	if err != nil {
		return fmt.Errorf("claim ownership: %w", err)
	}
	return nil
}

// LookupUser resolves a bearer token to the user it belongs to. A missing
// token returns ok = false without an error.
func (s *Store) LookupUser(ctx context.Context, token string) (userID string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT user_id FROM api_tokens WHERE token = ?", token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup token: %w", err)
	}
	return userID, true, nil
}

// GetByISRC reads back a persisted track with its link set.
func (s *Store) GetByISRC(ctx context.Context, isrc string) (*Record, error) {
	rec := &Record{}
	var dbISRC sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, isrc, title, artist, album, duration_ms, release_date, artwork_url, user_confirmed
		FROM tracks WHERE isrc = ?`, isrc).Scan(
		&rec.ID, &dbISRC, &rec.Core.Title, &rec.Core.Artist, &rec.Core.Album,
		&rec.Core.DurationMS, &rec.Core.ReleaseDate, &rec.Core.ArtworkURL, &rec.Confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	rec.Core.ISRC = dbISRC.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, platform_id, url_web, url_app, storefront, confidence
		FROM track_links WHERE track_id = ? ORDER BY platform`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("get track links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hit core.Hit
		var platform string
		if err := rows.Scan(&platform, &hit.PlatformID, &hit.URLWeb,
			&hit.URLApp, &hit.Storefront, &hit.Confidence); err != nil {
			return nil, fmt.Errorf("get track links: %w", err)
		}
		hit.Platform = core.Platform(platform)
		rec.Links = append(rec.Links, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get track links: %w", err)
	}
	return rec, nil
}
