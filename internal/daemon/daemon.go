package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"danmu/internal/api"
	"danmu/internal/config"
	"danmu/internal/logging"
	"danmu/internal/notifications"
	"danmu/internal/preflight"
	"danmu/internal/queue"
	"danmu/internal/services"
	"danmu/internal/tasks"
	"danmu/internal/workflow"
)

// Deps are the collaborators a Daemon coordinates.
type Deps struct {
	Config    *config.Config
	Manager   *workflow.Manager
	Tasks     *tasks.Service
	Jobs      *queue.Store
	Notifier  notifications.Service
	Database  string
	Providers []string
	Probes    preflight.Targets
	Logger    *slog.Logger
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	workflow  *workflow.Manager
	tasks     *tasks.Service
	jobs      *queue.Store
	notifier  notifications.Service
	database  string
	providers []string
	probes    preflight.Targets

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.Manager == nil || deps.Tasks == nil || deps.Jobs == nil {
		return nil, errors.New("daemon requires config, workflow manager, task service and job store")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(deps.Config)
	}
	lockPath := deps.Config.LockPath()
	return &Daemon{
		cfg:       deps.Config,
		logger:    logging.NewComponentLogger(deps.Logger, "daemon"),
		workflow:  deps.Manager,
		tasks:     deps.Tasks,
		jobs:      deps.Jobs,
		notifier:  notifier,
		database:  deps.Database,
		providers: append([]string(nil), deps.Providers...),
		probes:    deps.Probes,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the workflow manager, the API
// server and the maintenance scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, "daemon", "acquire lock",
			"another danmu daemon instance is already running", nil)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}
	if err := server.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}
	d.server = server

	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		d.runMaintenance(d.ctx, maintenanceInterval(d.cfg))
	}()

	d.running.Store(true)
	d.logger.Info("danmu daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	d.reportPreflight(d.ctx)
	return nil
}

func (d *Daemon) reportPreflight(ctx context.Context) {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, d.cfg, d.probes)) {
		d.logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.Alert(r.Name),
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run danmu status for the full readiness report"),
			logging.String(logging.FieldImpact, "jobs touching this dependency will fail"),
		)
	}
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if d.done != nil {
		<-d.done
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "the next daemon start may report a running instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("danmu daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// APIAddress returns the address the API server listens on, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.server.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	summary, err := d.workflow.Status(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	providers := d.providers
	if providers == nil {
		providers = []string{}
	}
	results := preflight.RunAll(ctx, d.cfg, d.probes)
	checks := make([]api.Check, 0, len(results))
	for _, r := range results {
		checks = append(checks, api.Check{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Database:     d.database,
		Providers:    providers,
		Workflow:     api.FromStatusSummary(summary),
		Checks:       checks,
	}, nil
}

// SubmitJob validates and queues a job of the named kind.
func (d *Daemon) SubmitJob(ctx context.Context, kind string, params json.RawMessage) (*queue.Job, error) {
	parsed, ok := tasks.ParseKind(kind)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "daemon", "submit job",
			fmt.Sprintf("unknown job kind %q", kind), nil)
	}
	job, err := d.tasks.Submit(ctx, parsed, params)
	if err != nil {
		return job, err
	}
	logging.WithContext(ctx, d.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobKind, job.Kind),
	)
	return job, nil
}

// CancelJob requests cancellation of an active job.
func (d *Daemon) CancelJob(id int64) error {
	return d.workflow.Cancel(id)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
