package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"danmu/internal/config"
	"danmu/internal/logging"
	"danmu/internal/notifications"
	"danmu/internal/queue"
)

// Manager schedules jobs and records their lifecycle.
type Manager struct {
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	heartbeat *HeartbeatMonitor
	slots     chan struct{}

	submitMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	active   map[int64]*activeJob
}

type activeJob struct {
	kind      string
	cancel    context.CancelFunc
	started   bool
	cancelled bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	notifier          notifications.Service
	workers           int
	heartbeatInterval time.Duration
}

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(o *managerOptions) {
		o.notifier = notifier
	}
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ManagerOption {
	return func(o *managerOptions) {
		o.workers = n
	}
}

// WithHeartbeatInterval overrides how often running jobs are stamped.
func WithHeartbeatInterval(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		o.heartbeatInterval = d
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	options := &managerOptions{
		workers:           2,
		heartbeatInterval: 15 * time.Second,
	}
	if cfg != nil {
		options.workers = cfg.Tasks.MaxConcurrent
		options.heartbeatInterval = time.Duration(cfg.Tasks.HeartbeatInterval) * time.Second
		options.notifier = notifications.NewService(cfg)
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.workers <= 0 {
		options.workers = 1
	}
	if options.notifier == nil {
		options.notifier = notifications.NewService(nil)
	}
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	return &Manager{
		store:     store,
		logger:    logger,
		notifier:  options.notifier,
		heartbeat: NewHeartbeatMonitor(store, logger, options.heartbeatInterval),
		slots:     make(chan struct{}, options.workers),
		active:    make(map[int64]*activeJob),
	}
}

// Store exposes the job store for read-only callers such as the API.
func (m *Manager) Store() *queue.Store {
	return m.store
}
