package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"danmu/internal/database"
	"danmu/internal/services"
)

// Store provides catalog persistence.
type Store struct {
	db *database.DB
	q  database.Querier
	tx bool
}

// New binds a Store to an open database.
func New(db *database.DB) *Store {
	return &Store{db: db, q: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *database.DB {
	return s.db
}

// InTx runs fn with a Store bound to a single transaction. Calls on a Store
// that is already transactional run fn directly.
func (s *Store) InTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		return fn(&Store{db: s.db, q: tx, tx: true})
	})
}

func notFound(operation, what string, id int64) error {
	return services.Wrap(services.ErrNotFound, "catalog", operation, fmt.Sprintf("%s %d not found", what, id), nil)
}

const workColumns = "id, title, season, type, image_url, local_image_path, episode_count, year, tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, episode_group_id, created_at"

func scanWork(scanner interface{ Scan(dest ...any) error }) (*Work, error) {
	var (
		w            Work
		episodeCount sql.NullInt64
		year         sql.NullInt64
		createdRaw   string
	)
	if err := scanner.Scan(
		&w.ID, &w.Title, &w.Season, &w.Type, &w.ImageURL, &w.LocalImagePath,
		&episodeCount, &year,
		&w.TMDBID, &w.IMDBID, &w.TVDBID, &w.DoubanID, &w.BangumiID, &w.EpisodeGroupID,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if episodeCount.Valid {
		v := int(episodeCount.Int64)
		w.EpisodeCount = &v
	}
	if year.Valid {
		v := int(year.Int64)
		w.Year = &v
	}
	if created, err := database.ParseTimestamp(createdRaw); err == nil {
		w.CreatedAt = created
	}
	return &w, nil
}

// GetWork loads a work by id.
func (s *Store) GetWork(ctx context.Context, id int64) (*Work, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+workColumns+" FROM works WHERE id = ?", id)
	work, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get work", "work", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get work %d: %w", id, err)
	}
	return work, nil
}

// FindWork returns the work with the given title and season, or nil.
func (s *Store) FindWork(ctx context.Context, title string, season int) (*Work, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+workColumns+" FROM works WHERE title = ? AND season = ?", strings.TrimSpace(title), season)
	work, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find work %q: %w", title, err)
	}
	return work, nil
}

// ListWorks returns every work ordered by title.
func (s *Store) ListWorks(ctx context.Context) ([]Work, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+workColumns+" FROM works ORDER BY title, season")
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()
	var works []Work
	for rows.Next() {
		work, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, *work)
	}
	return works, rows.Err()
}

// GetOrCreateWork returns the id of the work matching (title, season),
// creating it when absent.
func (s *Store) GetOrCreateWork(ctx context.Context, title string, season int, mediaType string, meta WorkMetadata) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, services.Wrap(services.ErrValidation, "catalog", "create work", "title is required", nil)
	}
	if season <= 0 {
		season = 1
	}
	existing, err := s.FindWork(ctx, title, season)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	var id int64
	err = s.q.QueryRowContext(ctx,
		`INSERT INTO works (
            title, season, type, image_url, local_image_path, episode_count, year,
            tmdb_id, imdb_id, tvdb_id, douban_id, bangumi_id, episode_group_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		title, season, NormalizeType(mediaType), meta.ImageURL, meta.LocalImagePath,
		nullableInt(meta.EpisodeCount), nullableInt(meta.Year),
		meta.TMDBID, meta.IMDBID, meta.TVDBID, meta.DoubanID, meta.BangumiID, meta.EpisodeGroupID,
		database.Timestamp(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert work %q: %w", title, err)
	}
	return id, nil
}

// UpdateWorkMetadataIfEmpty fills external ids and artwork that are still
// unset on the work. Populated fields are never overwritten.
func (s *Store) UpdateWorkMetadataIfEmpty(ctx context.Context, workID int64, meta WorkMetadata) error {
	var (
		sets []string
		args []any
	)
	fillText := func(column, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		sets = append(sets, fmt.Sprintf("%[1]s = CASE WHEN %[1]s = '' THEN ? ELSE %[1]s END", column))
		args = append(args, value)
	}
	fillInt := func(column string, value *int) {
		if value == nil {
			return
		}
		sets = append(sets, fmt.Sprintf("%[1]s = COALESCE(%[1]s, ?)", column))
		args = append(args, *value)
	}
	fillText("image_url", meta.ImageURL)
	fillText("local_image_path", meta.LocalImagePath)
	fillText("tmdb_id", meta.TMDBID)
	fillText("imdb_id", meta.IMDBID)
	fillText("tvdb_id", meta.TVDBID)
	fillText("douban_id", meta.DoubanID)
	fillText("bangumi_id", meta.BangumiID)
	fillText("episode_group_id", meta.EpisodeGroupID)
	fillInt("episode_count", meta.EpisodeCount)
	fillInt("year", meta.Year)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, workID)
	if _, err := s.q.ExecContext(ctx, "UPDATE works SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return fmt.Errorf("update work %d metadata: %w", workID, err)
	}
	return nil
}

// DeleteWork removes a work and, by cascade, its sources and episodes. It
// reports whether a row was deleted.
func (s *Store) DeleteWork(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, "works", id)
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete from %s %d: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Stats counts catalog rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.q.QueryRowContext(ctx, `SELECT
        (SELECT COUNT(1) FROM works),
        (SELECT COUNT(1) FROM sources),
        (SELECT COUNT(1) FROM episodes)`)
	if err := row.Scan(&stats.Works, &stats.Sources, &stats.Episodes); err != nil {
		return Stats{}, fmt.Errorf("catalog stats: %w", err)
	}
	return stats, nil
}

// Optimize runs database housekeeping over the catalog tables.
func (s *Store) Optimize(ctx context.Context) error {
	return s.db.Optimize(ctx, "works", "sources", "episodes", "provider_settings", "jobs")
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
