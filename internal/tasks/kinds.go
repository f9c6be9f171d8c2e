package tasks

import (
	"fmt"
	"strings"

	"danmu/internal/importer"
	"danmu/internal/provider"
)

// Kind names a job type.
type Kind string

const (
	KindGenericImport       Kind = "generic_import"
	KindEditedImport        Kind = "edited_import"
	KindFullRefresh         Kind = "full_refresh"
	KindIncrementalRefresh  Kind = "incremental_refresh"
	KindRefreshEpisode      Kind = "refresh_episode"
	KindManualImport        Kind = "manual_import"
	KindBatchManualImport   Kind = "batch_manual_import"
	KindDeleteAnime         Kind = "delete_anime"
	KindDeleteSource        Kind = "delete_source"
	KindDeleteEpisode       Kind = "delete_episode"
	KindDeleteBulkEpisodes  Kind = "delete_bulk_episodes"
	KindDeleteBulkSources   Kind = "delete_bulk_sources"
	KindReorderEpisodes     Kind = "reorder_episodes"
	KindAutoSearchAndImport Kind = "auto_search_and_import"
	KindDatabaseMaintenance Kind = "database_maintenance"
)

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindGenericImport,
		KindEditedImport,
		KindFullRefresh,
		KindIncrementalRefresh,
		KindRefreshEpisode,
		KindManualImport,
		KindBatchManualImport,
		KindDeleteAnime,
		KindDeleteSource,
		KindDeleteEpisode,
		KindDeleteBulkEpisodes,
		KindDeleteBulkSources,
		KindReorderEpisodes,
		KindAutoSearchAndImport,
		KindDatabaseMaintenance,
	}
}

// ParseKind matches value against the known kinds.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range Kinds() {
		if k == normalized {
			return k, true
		}
	}
	return "", false
}

// Unique keys. Jobs touching the same row share a key so the queue admits
// only one of them at a time.

func ImportKey(providerName, mediaID string) string {
	return fmt.Sprintf("import-%s-%s", providerName, mediaID)
}

func RefreshSourceKey(sourceID int64) string {
	return fmt.Sprintf("refresh-source-%d", sourceID)
}

func RefreshEpisodeKey(episodeID int64) string {
	return fmt.Sprintf("refresh-episode-%d", episodeID)
}

func ReorderKey(sourceID int64) string {
	return fmt.Sprintf("reorder-source-%d", sourceID)
}

func DeleteAnimeKey(workID int64) string {
	return fmt.Sprintf("delete-anime-%d", workID)
}

func DeleteSourceKey(sourceID int64) string {
	return fmt.Sprintf("delete-source-%d", sourceID)
}

func DeleteEpisodeKey(episodeID int64) string {
	return fmt.Sprintf("delete-episode-%d", episodeID)
}

func ManualImportKey(sourceID int64, index int) string {
	return fmt.Sprintf("manual-import-%d-%d", sourceID, index)
}

func BatchManualImportKey(sourceID int64) string {
	return fmt.Sprintf("batch-manual-import-%d", sourceID)
}

func AutoImportKey(providerName, id string) string {
	return fmt.Sprintf("auto-import-%s-%s", providerName, id)
}

// MaintenanceKey is shared by every maintenance run.
const MaintenanceKey = "maintenance"

// Parameter payloads accepted by Service.Build, keyed by kind.

// EditedImportParams is an import request with a caller supplied episode list.
type EditedImportParams struct {
	importer.Request
	Episodes []provider.Episode `json:"episodes"`
}

// SourceParams addresses one source.
type SourceParams struct {
	SourceID int64 `json:"source_id"`
}

// IncrementalRefreshParams asks for the episode after the last stored one.
type IncrementalRefreshParams struct {
	SourceID  int64 `json:"source_id"`
	NextIndex int   `json:"next_index"`
}

// EpisodeParams addresses one episode.
type EpisodeParams struct {
	EpisodeID int64 `json:"episode_id"`
}

// WorkParams addresses one work.
type WorkParams struct {
	WorkID int64 `json:"work_id"`
}

// ManualImportParams imports one episode from a URL or uploaded content.
type ManualImportParams struct {
	SourceID int64 `json:"source_id"`
	importer.ManualItem
}

// BatchManualImportParams imports several manual items into one source.
type BatchManualImportParams struct {
	SourceID int64                 `json:"source_id"`
	Items    []importer.ManualItem `json:"items"`
}

// BulkParams lists the rows of a bulk deletion.
type BulkParams struct {
	IDs []int64 `json:"ids"`
}

// KeywordSearch is the AutoImportParams provider that treats ID as a free
// text search term instead of a metadata item id.
const KeywordSearch = "keyword"

// AutoImportParams drives auto_search_and_import.
type AutoImportParams struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	Season   *int   `json:"season,omitempty"`
	Episode  *int   `json:"episode,omitempty"`
}
