package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"danmu/internal/database"
	"danmu/internal/episodeid"
)

const episodeColumns = "id, source_id, episode_index, title, source_url, provider_episode_id, track_path, comment_count, fetched_at"

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		ep         Episode
		fetchedRaw sql.NullString
	)
	if err := scanner.Scan(&ep.ID, &ep.SourceID, &ep.Index, &ep.Title, &ep.SourceURL, &ep.ProviderEpisodeID, &ep.TrackPath, &ep.CommentCount, &fetchedRaw); err != nil {
		return nil, err
	}
	if fetchedRaw.Valid {
		if fetched, err := database.ParseTimestamp(fetchedRaw.String); err == nil {
			ep.FetchedAt = &fetched
		}
	}
	return &ep, nil
}

// GetEpisode loads an episode by id.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get episode", "episode", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %d: %w", id, err)
	}
	return ep, nil
}

// FindEpisode returns the source's episode at index, or nil.
func (s *Store) FindEpisode(ctx context.Context, sourceID int64, index int) (*Episode, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE source_id = ? AND episode_index = ?", sourceID, index)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find episode %d of source %d: %w", index, sourceID, err)
	}
	return ep, nil
}

// ListEpisodes returns a source's episodes ordered by (episode_index, id).
func (s *Store) ListEpisodes(ctx context.Context, sourceID int64) ([]Episode, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE source_id = ? ORDER BY episode_index, id", sourceID)
	if err != nil {
		return nil, fmt.Errorf("list episodes for source %d: %w", sourceID, err)
	}
	defer rows.Close()
	var episodes []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, *ep)
	}
	return episodes, rows.Err()
}

// MaxEpisodeIndex returns the highest stored index for a source, or 0.
func (s *Store) MaxEpisodeIndex(ctx context.Context, sourceID int64) (int, error) {
	var highest sql.NullInt64
	if err := s.q.QueryRowContext(ctx, "SELECT MAX(episode_index) FROM episodes WHERE source_id = ?", sourceID).Scan(&highest); err != nil {
		return 0, fmt.Errorf("max episode index for source %d: %w", sourceID, err)
	}
	return int(highest.Int64), nil
}

// CreateEpisodeIfAbsent returns the id of the source's episode at the given
// index. A new row is keyed by the episode identity; an existing row keeps its
// id and has its descriptive fields refreshed.
func (s *Store) CreateEpisodeIfAbsent(ctx context.Context, ep NewEpisode) (int64, error) {
	existing, err := s.FindEpisode(ctx, ep.SourceID, ep.Index)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		_, err := s.q.ExecContext(ctx,
			"UPDATE episodes SET title = ?, source_url = ?, provider_episode_id = ? WHERE id = ?",
			ep.Title, ep.SourceURL, ep.ProviderEpisodeID, existing.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update episode %d: %w", existing.ID, err)
		}
		return existing.ID, nil
	}

	src, err := s.GetSource(ctx, ep.SourceID)
	if err != nil {
		return 0, err
	}
	order, err := s.SourceOrder(ctx, src)
	if err != nil {
		return 0, err
	}
	id, err := episodeid.Encode(src.WorkID, order, ep.Index)
	if err != nil {
		return 0, fmt.Errorf("episode identity: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO episodes (id, source_id, episode_index, title, source_url, provider_episode_id, track_path, comment_count)
        VALUES (?, ?, ?, ?, ?, ?, '', 0)`,
		id, ep.SourceID, ep.Index, ep.Title, ep.SourceURL, ep.ProviderEpisodeID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert episode %d: %w", id, err)
	}
	return id, nil
}

// UpdateEpisodeFetch records a completed fetch.
func (s *Store) UpdateEpisodeFetch(ctx context.Context, episodeID int64, count int, trackPath string, fetchedAt time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE episodes SET comment_count = ?, track_path = ?, fetched_at = ? WHERE id = ?",
		count, trackPath, database.Timestamp(fetchedAt), episodeID,
	)
	if err != nil {
		return fmt.Errorf("update episode %d fetch: %w", episodeID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("update episode", "episode", episodeID)
	}
	return nil
}

// TouchEpisode updates only fetched_at.
func (s *Store) TouchEpisode(ctx context.Context, episodeID int64, fetchedAt time.Time) error {
	res, err := s.q.ExecContext(ctx, "UPDATE episodes SET fetched_at = ? WHERE id = ?", database.Timestamp(fetchedAt), episodeID)
	if err != nil {
		return fmt.Errorf("touch episode %d: %w", episodeID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("touch episode", "episode", episodeID)
	}
	return nil
}

// DeleteEpisode removes one episode row.
func (s *Store) DeleteEpisode(ctx context.Context, id int64) (bool, error) {
	return s.deleteByID(ctx, "episodes", id)
}
