package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"danmu/internal/api"
	"danmu/internal/config"
	"danmu/internal/queue"
	"danmu/internal/services"
	"danmu/internal/workflow"
)

type submission struct {
	kind   string
	params string
}

type stubDaemon struct {
	mu          sync.Mutex
	submissions []submission
	jobs        []queue.Job
	duplicateOf int64
}

func (s *stubDaemon) Status(context.Context) (api.DaemonStatus, error) {
	return api.DaemonStatus{
		Running:   true,
		PID:       99,
		Database:  "sqlite",
		Providers: []string{"bilibili", "tencent"},
		Workflow: api.WorkflowStatus{
			Running:    true,
			Workers:    2,
			ActiveJobs: []int64{4},
			QueueStats: map[string]int{"pending": 1, "running": 1, "paused": 0, "success": 3, "failed": 0},
		},
		Checks: []api.Check{
			{Name: "Database", Passed: true, Detail: "reachable"},
			{Name: "Gateway", Detail: "check timed out (unresponsive)"},
		},
	}, nil
}

func (s *stubDaemon) SubmitJob(_ context.Context, kind string, params json.RawMessage) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicateOf > 0 {
		for i := range s.jobs {
			if s.jobs[i].ID == s.duplicateOf {
				return &s.jobs[i], &workflow.DuplicateJobError{UniqueKey: "k", ExistingID: s.duplicateOf}
			}
		}
	}
	s.submissions = append(s.submissions, submission{kind: kind, params: string(params)})
	job := queue.Job{
		ID:       int64(len(s.jobs) + 1),
		Kind:     kind,
		Title:    "job " + kind,
		Status:   queue.StatusSuccess,
		Progress: 100,
		Result:   "finished " + kind,
	}
	s.jobs = append(s.jobs, job)
	return &job, nil
}

func (s *stubDaemon) CancelJob(id int64) error {
	if id == 1 {
		return nil
	}
	return workflow.ErrJobNotActive
}

func (s *stubDaemon) TestNotification(context.Context) (bool, string, error) {
	return false, "ntfy topic not configured", nil
}

func (s *stubDaemon) List(context.Context, queue.Filter) ([]queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queue.Job(nil), s.jobs...), nil
}

func (s *stubDaemon) Get(_ context.Context, id int64) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			job := s.jobs[i]
			return &job, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "queue", "get job", "job not found", nil)
}

func (s *stubDaemon) last() submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.submissions) == 0 {
		return submission{}
	}
	return s.submissions[len(s.submissions)-1]
}

type cliEnv struct {
	stub       *stubDaemon
	configPath string
	apiURL     string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := filepath.Join(base, "danmu.toml")
	if err := config.CreateSample(configPath); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	stub := &stubDaemon{}
	srv := httptest.NewServer(api.NewRouter(api.RouterOptions{
		Controller: stub,
		Jobs:       api.NewJobService(stub),
	}))
	t.Cleanup(srv.Close)
	return &cliEnv{stub: stub, configPath: configPath, apiURL: srv.URL}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--api", e.apiURL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDeleteCommandsPickSingleOrBulkKinds(t *testing.T) {
	env := newCLIEnv(t)

	if _, err := env.run(t, "delete", "episode", "3"); err != nil {
		t.Fatalf("delete episode: %v", err)
	}
	if got := env.stub.last(); got.kind != "delete_episode" || got.params != `{"episode_id":3}` {
		t.Fatalf("unexpected submission %+v", got)
	}

	out, err := env.run(t, "delete", "episode", "3", "4")
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if got := env.stub.last(); got.kind != "delete_bulk_episodes" || got.params != `{"ids":[3,4]}` {
		t.Fatalf("unexpected submission %+v", got)
	}
	if !strings.Contains(out, "Queued job #2") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := env.run(t, "delete", "source", "7", "8"); err != nil {
		t.Fatalf("bulk sources: %v", err)
	}
	if got := env.stub.last(); got.kind != "delete_bulk_sources" {
		t.Fatalf("unexpected submission %+v", got)
	}
	if _, err := env.run(t, "delete", "episode", "x"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestImportMediaSendsRequest(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "import", "media", "-p", "bilibili", "-m", "ss100", "-t", "Frieren", "-e", "2"); err != nil {
		t.Fatalf("import: %v", err)
	}
	got := env.stub.last()
	if got.kind != "generic_import" {
		t.Fatalf("unexpected kind %q", got.kind)
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(got.params), &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params["provider"] != "bilibili" || params["media_id"] != "ss100" || params["episode_index"] != float64(2) || params["season"] != float64(1) {
		t.Fatalf("unexpected params %v", params)
	}
}

func TestDuplicateSubmissionReportsExistingJob(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "reorder", "5"); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	env.stub.duplicateOf = 1
	out, err := env.run(t, "reorder", "5")
	if err != nil {
		t.Fatalf("duplicate should not fail: %v", err)
	}
	if !strings.Contains(out, "Already queued as job #1") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMaintenanceWaitFollowsJob(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "maintenance", "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if !strings.Contains(out, "[100%] success finished database_maintenance") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestJobsListShowAndCancel(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "refresh", "source", "9"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := env.stub.last(); got.kind != "full_refresh" || got.params != `{"source_id":9}` {
		t.Fatalf("unexpected submission %+v", got)
	}

	out, err := env.run(t, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	if !strings.Contains(out, "job full_refresh") || !strings.Contains(out, "100%") {
		t.Fatalf("unexpected list output %q", out)
	}

	out, err = env.run(t, "jobs", "show", "1")
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	if !strings.Contains(out, "Result:") || !strings.Contains(out, "finished full_refresh") {
		t.Fatalf("unexpected show output %q", out)
	}

	out, err = env.run(t, "jobs", "cancel", "1", "2")
	if err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	if !strings.Contains(out, "Job 1 cancellation requested") || !strings.Contains(out, "Job 2 is not active") {
		t.Fatalf("unexpected cancel output %q", out)
	}
}

func TestSubmitRawKind(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "submit", "incremental_refresh", "--params", `{"source_id":2,"next_index":5}`); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := env.stub.last(); got.kind != "incremental_refresh" || got.params != `{"source_id":2,"next_index":5}` {
		t.Fatalf("unexpected submission %+v", got)
	}
	if _, err := env.run(t, "submit", "bake_cake"); err == nil || !strings.Contains(err.Error(), "unknown job kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
	if _, err := env.run(t, "submit", "full_refresh", "--params", "{oops"); err == nil {
		t.Fatal("expected invalid JSON error")
	}
}

func TestStatusAndNotify(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"bilibili, tencent", "#4", "pending", "Gateway", "check timed out"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q: %q", want, out)
		}
	}
	if strings.Index(out, "pending") > strings.Index(out, "success") {
		t.Fatalf("expected lifecycle order in %q", out)
	}

	out, err = env.run(t, "test-notify")
	if err != nil || !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected notify result %q %v", out, err)
	}
}

func TestUnavailableDaemonHint(t *testing.T) {
	env := newCLIEnv(t)
	env.apiURL = "127.0.0.1:1"
	_, err := env.run(t, "jobs", "list")
	if err == nil || !strings.Contains(err.Error(), "danmu daemon") {
		t.Fatalf("expected start hint, got %v", err)
	}
	if code := exitCode(err); code != exitUnreachable {
		t.Fatalf("expected exit status %d, got %d", exitUnreachable, code)
	}
}

func TestRunReportsExitStatus(t *testing.T) {
	env := newCLIEnv(t)
	var stderr bytes.Buffer
	if code := run([]string{"--config", env.configPath, "--api", "127.0.0.1:1", "jobs", "list"}, &stderr); code != exitUnreachable {
		t.Fatalf("expected exit status %d, got %d (%s)", exitUnreachable, code, stderr.String())
	}
	if !strings.HasPrefix(stderr.String(), "danmu: connect to daemon") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
	if code := exitCode(context.Canceled); code != exitInterrupted {
		t.Fatalf("expected interrupted status, got %d", code)
	}
	if code := exitCode(errors.New("boom")); code != exitFailure {
		t.Fatalf("expected failure status, got %d", code)
	}
}

func TestWriteJSONKeepsMarkup(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := writeJSON(cmd, map[string]string{"text": "<b>&</b>"}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if !strings.Contains(out.String(), `"text": "<b>&</b>"`) {
		t.Fatalf("expected unescaped markup, got %q", out.String())
	}
}

func TestConfigValidate(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, env.configPath) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStopReportsNotRunning(t *testing.T) {
	env := newCLIEnv(t)
	env.apiURL = "127.0.0.1:1"
	out, err := env.run(t, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "Daemon is not running") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStartReportsRunningDaemon(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "start")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(out, "Daemon already running (pid 99)") {
		t.Fatalf("unexpected output %q", out)
	}
}
