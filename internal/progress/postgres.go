package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS playback_progress (
  profile               TEXT        NOT NULL,
  media_id              INTEGER     NOT NULL,
  media_type            TEXT        NOT NULL,
  season                INTEGER     NOT NULL DEFAULT 0,
  episode               INTEGER     NOT NULL DEFAULT 0,
  watched_seconds       INTEGER     NOT NULL,
  full_duration_seconds INTEGER     NOT NULL,
  source_index          INTEGER     NOT NULL DEFAULT 0,
  seq                   BIGSERIAL,
  updated_at            TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (profile, media_id, media_type, season, episode)
);
CREATE INDEX IF NOT EXISTS playback_progress_seq ON playback_progress (profile, seq);`

const entryColumns = `media_id, media_type, season, episode, watched_seconds, full_duration_seconds, source_index, updated_at`

// PostgresStore is the server-side Store. seq preserves append order so an
// update keeps its slot and eviction drops the lowest seq, matching
// ListStore.
type PostgresStore struct {
	db       *pgxpool.Pool
	profile  string
	capacity int
	now      func() time.Time
}

func NewPostgresStore(db *pgxpool.Pool, profile string) *PostgresStore {
	if profile == "" {
		profile = "default"
	}
	return &PostgresStore{db: db, profile: profile, capacity: Capacity, now: time.Now}
}

// EnsureSchema creates the progress table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("progress schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, e Entry) (Entry, error) {
	e, err := e.normalize(s.now())
	if err != nil {
		return Entry{}, err
	}

	upsertQ := `
INSERT INTO playback_progress (profile, ` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (profile, media_id, media_type, season, episode)
DO UPDATE SET
  watched_seconds       = EXCLUDED.watched_seconds,
  full_duration_seconds = EXCLUDED.full_duration_seconds,
  source_index          = EXCLUDED.source_index,
  updated_at            = EXCLUDED.updated_at`

	evictQ := `
DELETE FROM playback_progress
WHERE profile = $1 AND seq NOT IN (
  SELECT seq FROM playback_progress WHERE profile = $1 ORDER BY seq DESC LIMIT $2
)`

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertQ, s.profile,
			e.MediaID, string(e.MediaType), e.Season, e.Episode,
			e.WatchedSeconds, e.FullDurationSeconds, e.SourceIndex, e.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, evictQ, s.profile, s.capacity); err != nil {
			return fmt.Errorf("evict: %w", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("save progress: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (*Entry, error) {
	key = key.Normalize()
	q := `SELECT ` + entryColumns + ` FROM playback_progress
	      WHERE profile=$1 AND media_id=$2 AND media_type=$3 AND season=$4 AND episode=$5`
	row := s.db.QueryRow(ctx, q, s.profile, key.MediaID, string(key.MediaType), key.Season, key.Episode)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListForMedia(ctx context.Context, mediaID int, mediaType MediaType) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM playback_progress
	      WHERE profile=$1 AND media_id=$2 AND media_type=$3 ORDER BY seq`
	return s.query(ctx, q, s.profile, mediaID, string(mediaType))
}

func (s *PostgresStore) ContinueWatching(ctx context.Context) ([]ContinueWatchingEntry, error) {
	// The table never holds more than capacity rows per profile, so the
	// filter and ordering are shared with ListStore.
	q := `SELECT ` + entryColumns + ` FROM playback_progress WHERE profile=$1 ORDER BY seq`
	list, err := s.query(ctx, q, s.profile)
	if err != nil {
		return nil, err
	}
	return continueWatching(list), nil
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var mediaType string
	err := row.Scan(&e.MediaID, &mediaType, &e.Season, &e.Episode,
		&e.WatchedSeconds, &e.FullDurationSeconds, &e.SourceIndex, &e.UpdatedAt)
	e.MediaType = MediaType(mediaType)
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, err
}
