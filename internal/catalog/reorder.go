package catalog

import (
	"context"
	"fmt"

	"danmu/internal/database"
	"danmu/internal/episodeid"
)

// Relocator moves a track file between web paths. It returns the path the
// file ends up at, which is the old path when there was nothing to move.
type Relocator interface {
	Relocate(oldWebPath, newWebPath string) (string, error)
}

// ReorderResult summarises a renumbering pass.
type ReorderResult struct {
	Migrated int `json:"migrated"`
	Total    int `json:"total"`
}

// stagingSuffix marks a track parked between its old and new identity.
const stagingSuffix = ".reorder"

type relocState int

const (
	relocNone relocState = iota
	relocStaged
	relocFinal
)

type staged struct {
	old         Episode
	next        Episode
	oldPath     string
	stagingPath string
	state       relocState
}

// ReorderSource renumbers a source's episodes to 1..N in (index, id) order
// and rekeys each row to its episode identity. Track files are relocated
// first, in two phases (old path to a staging name, then staging name to the
// new path) so a target still held by an unmoved episode is never
// overwritten. The row swap then runs as a single transaction with
// foreign-key checks relaxed. When any step fails, relocated files are moved
// back.
func (s *Store) ReorderSource(ctx context.Context, sourceID int64, tracks Relocator) (ReorderResult, error) {
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return ReorderResult{}, err
	}
	order, err := s.SourceOrder(ctx, src)
	if err != nil {
		return ReorderResult{}, err
	}
	episodes, err := s.ListEpisodes(ctx, sourceID)
	if err != nil {
		return ReorderResult{}, err
	}
	result := ReorderResult{Total: len(episodes)}
	if len(episodes) == 0 {
		return result, nil
	}

	var changes []*staged
	for i, ep := range episodes {
		position := i + 1
		targetID, err := episodeid.Encode(src.WorkID, order, position)
		if err != nil {
			return result, fmt.Errorf("episode identity: %w", err)
		}
		if ep.ID == targetID && ep.Index == position {
			continue
		}
		next := ep
		next.ID = targetID
		next.Index = position
		changes = append(changes, &staged{old: ep, next: next, oldPath: ep.TrackPath})
	}
	if len(changes) == 0 {
		return result, nil
	}

	if err := relocateTracks(src.WorkID, tracks, changes); err != nil {
		return result, err
	}

	err = s.db.WithRelaxedIntegrity(ctx, func(tx *database.Tx) error {
		for _, change := range changes {
			if _, err := tx.ExecContext(ctx, "DELETE FROM episodes WHERE id = ?", change.old.ID); err != nil {
				return fmt.Errorf("delete episode %d: %w", change.old.ID, err)
			}
		}
		for _, change := range changes {
			ep := change.next
			_, err := tx.ExecContext(ctx,
				`INSERT INTO episodes (id, source_id, episode_index, title, source_url, provider_episode_id, track_path, comment_count, fetched_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ep.ID, ep.SourceID, ep.Index, ep.Title, ep.SourceURL, ep.ProviderEpisodeID, ep.TrackPath, ep.CommentCount,
				database.NullableTimestamp(ep.FetchedAt),
			)
			if err != nil {
				return fmt.Errorf("insert episode %d: %w", ep.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		restoreTracks(tracks, changes)
		return result, err
	}
	result.Migrated = len(changes)
	return result, nil
}

func relocateTracks(workID int64, tracks Relocator, changes []*staged) error {
	for _, change := range changes {
		if change.oldPath == "" {
			continue
		}
		// Rows always point at their own identity, even when the file is gone.
		change.next.TrackPath = episodeid.TrackPath(workID, change.next.ID)
		if tracks == nil {
			continue
		}
		change.stagingPath = change.next.TrackPath + stagingSuffix
		got, err := tracks.Relocate(change.oldPath, change.stagingPath)
		if err != nil {
			restoreTracks(tracks, changes)
			return fmt.Errorf("stage track for episode %d: %w", change.old.ID, err)
		}
		if got == change.stagingPath {
			change.state = relocStaged
		}
	}
	for _, change := range changes {
		if change.state != relocStaged {
			continue
		}
		if _, err := tracks.Relocate(change.stagingPath, change.next.TrackPath); err != nil {
			restoreTracks(tracks, changes)
			return fmt.Errorf("relocate track for episode %d: %w", change.old.ID, err)
		}
		change.state = relocFinal
	}
	return nil
}

// restoreTracks undoes relocateTracks in the same two phases, in reverse.
func restoreTracks(tracks Relocator, changes []*staged) {
	if tracks == nil {
		return
	}
	for i := len(changes) - 1; i >= 0; i-- {
		change := changes[i]
		if change.state != relocFinal {
			continue
		}
		if _, err := tracks.Relocate(change.next.TrackPath, change.stagingPath); err == nil {
			change.state = relocStaged
		}
	}
	for i := len(changes) - 1; i >= 0; i-- {
		change := changes[i]
		if change.state != relocStaged {
			continue
		}
		if _, err := tracks.Relocate(change.stagingPath, change.oldPath); err == nil {
			change.state = relocNone
		}
	}
}
