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

const sourceColumns = "id, work_id, provider, media_id, is_favorited, incremental_refresh, created_at"

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		src        Source
		createdRaw string
	)
	if err := scanner.Scan(&src.ID, &src.WorkID, &src.Provider, &src.MediaID, &src.IsFavorited, &src.IncrementalRefresh, &createdRaw); err != nil {
		return nil, err
	}
	if created, err := database.ParseTimestamp(createdRaw); err == nil {
		src.CreatedAt = created
	}
	return &src, nil
}

// GetSource loads a source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE id = ?", id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get source", "source", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	return src, nil
}

// SourcesForWork lists a work's sources by ascending id.
func (s *Store) SourcesForWork(ctx context.Context, workID int64) ([]Source, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE work_id = ? ORDER BY id", workID)
	if err != nil {
		return nil, fmt.Errorf("list sources for work %d: %w", workID, err)
	}
	defer rows.Close()
	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// LinkSource returns the source binding provider/mediaID to the work,
// creating it when absent.
func (s *Store) LinkSource(ctx context.Context, workID int64, provider, mediaID string) (int64, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	mediaID = strings.TrimSpace(mediaID)
	if provider == "" || mediaID == "" {
		return 0, services.Wrap(services.ErrValidation, "catalog", "link source", "provider and media id are required", nil)
	}
	var id int64
	err := s.q.QueryRowContext(ctx,
		"SELECT id FROM sources WHERE work_id = ? AND provider = ? AND media_id = ?",
		workID, provider, mediaID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup source: %w", err)
	}
	err = s.q.QueryRowContext(ctx,
		"INSERT INTO sources (work_id, provider, media_id, is_favorited, incremental_refresh, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id",
		workID, provider, mediaID, false, false, database.Timestamp(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert source %s/%s: %w", provider, mediaID, err)
	}
	return id, nil
}

// SourceOrder returns the 1-based rank of the source id among its work's
// sources.
func (s *Store) SourceOrder(ctx context.Context, src *Source) (int, error) {
	var order int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sources WHERE work_id = ? AND id <= ?",
		src.WorkID, src.ID,
	).Scan(&order)
	if err != nil {
		return 0, fmt.Errorf("source order for %d: %w", src.ID, err)
	}
	if order == 0 {
		return 0, notFound("source order", "source", src.ID)
	}
	return order, nil
}

// UpdateSourceMediaID rebinds a source to a new provider media id.
func (s *Store) UpdateSourceMediaID(ctx context.Context, sourceID int64, mediaID string) error {
	res, err := s.q.ExecContext(ctx, "UPDATE sources SET media_id = ? WHERE id = ?", strings.TrimSpace(mediaID), sourceID)
	if err != nil {
		return fmt.Errorf("update source %d media id: %w", sourceID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("update source", "source", sourceID)
	}
	return nil
}

// SetFavorite marks the source as its work's favourite and clears the flag on
// the work's other sources.
func (s *Store) SetFavorite(ctx context.Context, sourceID int64) error {
	return s.InTx(ctx, func(tx *Store) error {
		src, err := tx.GetSource(ctx, sourceID)
		if err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, "UPDATE sources SET is_favorited = ? WHERE work_id = ?", false, src.WorkID); err != nil {
			return fmt.Errorf("clear favourites: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, "UPDATE sources SET is_favorited = ? WHERE id = ?", true, sourceID); err != nil {
			return fmt.Errorf("set favourite: %w", err)
		}
		return nil
	})
}

// SetIncrementalRefresh toggles scheduled next-episode refresh for a source.
func (s *Store) SetIncrementalRefresh(ctx context.Context, sourceID int64, enabled bool) error {
	res, err := s.q.ExecContext(ctx, "UPDATE sources SET incremental_refresh = ? WHERE id = ?", enabled, sourceID)
	if err != nil {
		return fmt.Errorf("update source %d: %w", sourceID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("update source", "source", sourceID)
	}
	return nil
}

// FindFavoritedSource returns the work's favourite source, or nil.
func (s *Store) FindFavoritedSource(ctx context.Context, workID int64) (*Source, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE work_id = ? AND is_favorited = ? ORDER BY id LIMIT 1",
		workID, true,
	)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find favourite source for work %d: %w", workID, err)
	}
	return src, nil
}

// DeleteSource removes a source and its episodes.
func (s *Store) DeleteSource(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, "sources", id)
}
