package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"danmu/internal/catalog"
	"danmu/internal/config"
	"danmu/internal/importer"
	"danmu/internal/logging"
	"danmu/internal/metadata"
	"danmu/internal/provider"
	"danmu/internal/queue"
	"danmu/internal/ratelimit"
	"danmu/internal/services"
	"danmu/internal/trackstore"
	"danmu/internal/workflow"
)

// Catalog is the slice of the catalog store used by non-import jobs.
type Catalog interface {
	GetWork(ctx context.Context, id int64) (*catalog.Work, error)
	GetSource(ctx context.Context, id int64) (*catalog.Source, error)
	GetEpisode(ctx context.Context, id int64) (*catalog.Episode, error)
	ListEpisodes(ctx context.Context, sourceID int64) ([]catalog.Episode, error)
	FindWork(ctx context.Context, title string, season int) (*catalog.Work, error)
	SourcesForWork(ctx context.Context, workID int64) ([]catalog.Source, error)
	FindFavoritedSource(ctx context.Context, workID int64) (*catalog.Source, error)
	ProviderSettings(ctx context.Context) ([]catalog.ProviderSetting, error)
	DeleteWork(ctx context.Context, id int64) (bool, error)
	DeleteSource(ctx context.Context, id int64) (bool, error)
	DeleteEpisode(ctx context.Context, id int64) (bool, error)
	ReorderSource(ctx context.Context, sourceID int64, tracks catalog.Relocator) (catalog.ReorderResult, error)
	Optimize(ctx context.Context) error
}

// Submitter queues a job. *workflow.Manager satisfies it.
type Submitter interface {
	Submit(ctx context.Context, spec workflow.Spec) (*queue.Job, error)
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Config   *config.Config
	Manager  Submitter
	Importer *importer.Importer
	Catalog  Catalog
	Jobs     *queue.Store
	Tracks   *trackstore.Store
	Registry *provider.Registry
	Metadata metadata.Resolver
	Logger   *slog.Logger
}

// Service builds and submits jobs of every kind.
type Service struct {
	cfg      *config.Config
	manager  Submitter
	importer *importer.Importer
	catalog  Catalog
	jobs     *queue.Store
	tracks   *trackstore.Store
	registry *provider.Registry
	metadata metadata.Resolver
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleeper overrides how lock-contention backoffs wait.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewService wires a Service.
func NewService(deps Deps, opts ...Option) *Service {
	cfg := deps.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	s := &Service{
		cfg:      cfg,
		manager:  deps.Manager,
		importer: deps.Importer,
		catalog:  deps.Catalog,
		jobs:     deps.Jobs,
		tracks:   deps.Tracks,
		registry: deps.Registry,
		metadata: deps.Metadata,
		logger:   logging.NewComponentLogger(deps.Logger, "tasks"),
		now:      time.Now,
		sleep:    ratelimit.SleepWithContext,
	}
	if s.metadata == nil {
		s.metadata = metadata.Noop{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit builds a job from kind and params and queues it. A duplicate
// returns the job holding the key alongside a workflow.DuplicateJobError.
func (s *Service) Submit(ctx context.Context, kind Kind, params json.RawMessage) (*queue.Job, error) {
	spec, err := s.Build(kind, params)
	if err != nil {
		return nil, err
	}
	if s.manager == nil {
		return nil, services.Wrap(services.ErrConfiguration, "tasks", "submit", "no job manager configured", nil)
	}
	return s.manager.Submit(ctx, spec)
}

// Build decodes params for kind and returns the job spec.
func (s *Service) Build(kind Kind, params json.RawMessage) (workflow.Spec, error) {
	switch kind {
	case KindGenericImport:
		var p importer.Request
		if err := decode(params, &p); err != nil {
			return workflow.Spec{}, err
		}
		if err := validateImport(p); err != nil {
			return workflow.Spec{}, err
		}
		return s.genericImportSpec(p), nil

	case KindEditedImport:
		var p EditedImportParams
		if err := decode(params, &p); err != nil {
			return workflow.Spec{}, err
		}
		if err := validateImport(p.Request); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Edited import: %s (%s)", p.Title, p.Provider),
			UniqueKey: ImportKey(p.Provider, p.MediaID),
			Run:       s.importer.EditedImport(p.Request, p.Episodes),
		}, nil

	case KindFullRefresh:
		var p SourceParams
		if err := decodeID(params, &p, func() int64 { return p.SourceID }, "source_id"); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Refresh source #%d", p.SourceID),
			UniqueKey: RefreshSourceKey(p.SourceID),
			Run:       s.importer.FullRefresh(p.SourceID),
		}, nil

	case KindIncrementalRefresh:
		var p IncrementalRefreshParams
		if err := decodeID(params, &p, func() int64 { return p.SourceID }, "source_id"); err != nil {
			return workflow.Spec{}, err
		}
		if p.NextIndex < 1 {
			return workflow.Spec{}, invalid("next_index must be at least 1")
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Incremental refresh source #%d (episode %d)", p.SourceID, p.NextIndex),
			UniqueKey: RefreshSourceKey(p.SourceID),
			Run:       s.importer.IncrementalRefresh(p.SourceID, p.NextIndex),
		}, nil

	case KindRefreshEpisode:
		var p EpisodeParams
		if err := decodeID(params, &p, func() int64 { return p.EpisodeID }, "episode_id"); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Refresh episode #%d", p.EpisodeID),
			UniqueKey: RefreshEpisodeKey(p.EpisodeID),
			Run:       s.importer.RefreshEpisode(p.EpisodeID),
		}, nil

	case KindManualImport:
		var p ManualImportParams
		if err := decodeID(params, &p, func() int64 { return p.SourceID }, "source_id"); err != nil {
			return workflow.Spec{}, err
		}
		if err := validateManual(p.ManualItem); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Manual import: source #%d episode %d", p.SourceID, p.Index),
			UniqueKey: ManualImportKey(p.SourceID, p.Index),
			Run:       s.importer.ManualImport(p.SourceID, p.ManualItem),
		}, nil

	case KindBatchManualImport:
		var p BatchManualImportParams
		if err := decodeID(params, &p, func() int64 { return p.SourceID }, "source_id"); err != nil {
			return workflow.Spec{}, err
		}
		if len(p.Items) == 0 {
			return workflow.Spec{}, invalid("items must not be empty")
		}
		for _, it := range p.Items {
			if err := validateManual(it); err != nil {
				return workflow.Spec{}, err
			}
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Batch manual import: %d items into source #%d", len(p.Items), p.SourceID),
			UniqueKey: BatchManualImportKey(p.SourceID),
			Run:       s.importer.BatchManualImport(p.SourceID, p.Items),
		}, nil

	case KindDeleteAnime:
		var p WorkParams
		if err := decodeID(params, &p, func() int64 { return p.WorkID }, "work_id"); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Delete work #%d", p.WorkID),
			UniqueKey: DeleteAnimeKey(p.WorkID),
			Run:       s.DeleteAnime(p.WorkID),
		}, nil

	case KindDeleteSource:
		var p SourceParams
		if err := decodeID(params, &p, func() int64 { return p.SourceID }, "source_id"); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Delete source #%d", p.SourceID),
			UniqueKey: DeleteSourceKey(p.SourceID),
			Run:       s.DeleteSource(p.SourceID),
		}, nil

	case KindDeleteEpisode:
		var p EpisodeParams
		if err := decodeID(params, &p, func() int64 { return p.EpisodeID }, "episode_id"); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Delete episode #%d", p.EpisodeID),
			UniqueKey: DeleteEpisodeKey(p.EpisodeID),
			Run:       s.DeleteEpisode(p.EpisodeID),
		}, nil

	case KindDeleteBulkEpisodes, KindDeleteBulkSources:
		var p BulkParams
		if err := decode(params, &p); err != nil {
			return workflow.Spec{}, err
		}
		if len(p.IDs) == 0 {
			return workflow.Spec{}, invalid("ids must not be empty")
		}
		if kind == KindDeleteBulkEpisodes {
			return workflow.Spec{
				Kind:  string(kind),
				Title: fmt.Sprintf("Delete %d episodes", len(p.IDs)),
				Run:   s.DeleteBulkEpisodes(p.IDs),
			}, nil
		}
		return workflow.Spec{
			Kind:  string(kind),
			Title: fmt.Sprintf("Delete %d sources", len(p.IDs)),
			Run:   s.DeleteBulkSources(p.IDs),
		}, nil

	case KindReorderEpisodes:
		var p SourceParams
		if err := decodeID(params, &p, func() int64 { return p.SourceID }, "source_id"); err != nil {
			return workflow.Spec{}, err
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Reorder episodes of source #%d", p.SourceID),
			UniqueKey: ReorderKey(p.SourceID),
			Run:       s.ReorderEpisodes(p.SourceID),
		}, nil

	case KindAutoSearchAndImport:
		var p AutoImportParams
		if err := decode(params, &p); err != nil {
			return workflow.Spec{}, err
		}
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		p.ID = strings.TrimSpace(p.ID)
		if p.Provider == "" || p.ID == "" {
			return workflow.Spec{}, invalid("provider and id are required")
		}
		return workflow.Spec{
			Kind:      string(kind),
			Title:     fmt.Sprintf("Auto import: %s %s", p.Provider, p.ID),
			UniqueKey: AutoImportKey(p.Provider, p.ID),
			Run:       s.AutoSearchAndImport(p),
		}, nil

	case KindDatabaseMaintenance:
		return workflow.Spec{
			Kind:      string(kind),
			Title:     "Database maintenance",
			UniqueKey: MaintenanceKey,
			Run:       s.Maintenance(),
		}, nil
	}
	return workflow.Spec{}, invalid(fmt.Sprintf("unknown job kind %q", kind))
}

func (s *Service) genericImportSpec(req importer.Request) workflow.Spec {
	return workflow.Spec{
		Kind:      string(KindGenericImport),
		Title:     fmt.Sprintf("Import: %s (%s)", req.Title, req.Provider),
		UniqueKey: ImportKey(req.Provider, req.MediaID),
		Run:       s.importer.GenericImport(req),
	}
}

func (s *Service) report(ctx context.Context, r workflow.Reporter, percent float64, message string) {
	if err := r.Report(ctx, workflow.Update{Percent: percent, Message: message}); err != nil {
		s.logger.Debug("progress update failed", logging.Error(err))
	}
}

func decode(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "tasks", "decode params", "invalid job parameters", err)
	}
	return nil
}

func decodeID(raw json.RawMessage, dst any, id func() int64, field string) error {
	if err := decode(raw, dst); err != nil {
		return err
	}
	if id() <= 0 {
		return invalid(field + " must be a positive id")
	}
	return nil
}

func validateImport(req importer.Request) error {
	switch {
	case strings.TrimSpace(req.Provider) == "":
		return invalid("provider is required")
	case strings.TrimSpace(req.MediaID) == "":
		return invalid("media_id is required")
	case strings.TrimSpace(req.Title) == "":
		return invalid("title is required")
	}
	return nil
}

func validateManual(it importer.ManualItem) error {
	if it.Index < 1 {
		return invalid("index must be at least 1")
	}
	if strings.TrimSpace(it.URL) == "" && strings.TrimSpace(it.Content) == "" {
		return invalid("url or content is required")
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "tasks", "build job", message, nil)
}
