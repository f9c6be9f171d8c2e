package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"danmu/internal/catalog"
	"danmu/internal/config"
	"danmu/internal/daemon"
	"danmu/internal/database"
	"danmu/internal/gateway"
	"danmu/internal/imagecache"
	"danmu/internal/importer"
	"danmu/internal/logging"
	"danmu/internal/notifications"
	"danmu/internal/preflight"
	"danmu/internal/provider"
	"danmu/internal/queue"
	"danmu/internal/ratelimit"
	"danmu/internal/tasks"
	"danmu/internal/trackstore"
	"danmu/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the danmu daemon and blocks until SIGINT, SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("danmud-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("session_id", uuid.NewString()))
	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update danmud.log link: %v\n", err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon bootstrap failed", "daemon_bootstrap_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database and gateway configuration"),
		)
		return err
	}
	defer rt.Close()

	if err := rt.Daemon.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("danmu daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Runtime holds the wired daemon and the resources it owns.
type Runtime struct {
	DB      *database.DB
	Manager *workflow.Manager
	Tasks   *tasks.Service
	Daemon  *daemon.Daemon
}

// Close stops the daemon and closes the database.
func (r *Runtime) Close() error {
	if r.Daemon != nil {
		_ = r.Daemon.Close()
	}
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// Build opens storage and wires every collaborator into a daemon that has
// not been started yet.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := catalog.New(db)
	jobs := queue.New(db)
	tracks := trackstore.New(cfg.Paths.DanmakuDir)

	client, err := gateway.NewClient(cfg.Gateway, gateway.WithLogger(logger))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	names := cfg.EnabledProviders()
	registry := provider.NewRegistry(gateway.Providers(client, names)...)
	if err := store.SyncProviderSettings(ctx, providerSettings(cfg)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sync provider settings: %w", err)
	}

	meta := gateway.NewMetadata(client)
	imp := importer.New(importer.Deps{
		Catalog:  store,
		Tracks:   tracks,
		Registry: registry,
		Metadata: meta,
		Images:   imagecache.New(cfg.Paths.ImageDir, cfg.GatewayTimeout(), logger),
		Limiter:  ratelimit.NewFromConfig(cfg),
		Logger:   logger,
	})

	notifier := notifications.NewService(cfg)
	mgr := workflow.NewManager(cfg, jobs, logger, workflow.WithNotifier(notifier))
	svc := tasks.NewService(tasks.Deps{
		Config:   cfg,
		Manager:  mgr,
		Importer: imp,
		Catalog:  store,
		Jobs:     jobs,
		Tracks:   tracks,
		Registry: registry,
		Metadata: meta,
		Logger:   logger,
	})

	d, err := daemon.New(daemon.Deps{
		Config:    cfg,
		Manager:   mgr,
		Tasks:     svc,
		Jobs:      jobs,
		Notifier:  notifier,
		Database:  string(db.Dialect()),
		Providers: names,
		Probes:    preflight.Targets{Database: db, Gateway: client},
		Logger:    logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("daemon wired",
		logging.String(logging.FieldEventType, "daemon_wired"),
		logging.String("database", string(db.Dialect())),
		logging.String("gateway", client.BaseURL()),
		logging.Int("providers", len(names)),
		logging.Int("workers", cfg.Tasks.MaxConcurrent),
	)
	return &Runtime{DB: db, Manager: mgr, Tasks: svc, Daemon: d}, nil
}

func providerSettings(cfg *config.Config) []catalog.ProviderSetting {
	settings := make([]catalog.ProviderSetting, 0, len(cfg.Providers))
	for name, p := range cfg.Providers {
		settings = append(settings, catalog.ProviderSetting{
			Provider:     name,
			DisplayOrder: p.DisplayOrder,
			Enabled:      p.Enabled,
		})
	}
	return settings
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
