package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"danmu/internal/queue"
	"danmu/internal/services"
	"danmu/internal/workflow"
)

type fakeController struct {
	submitted  []string
	params     []json.RawMessage
	submitErr  error
	existing   *queue.Job
	cancelErr  error
	cancelled  []int64
	requestIDs []string
}

func (f *fakeController) Status(context.Context) (DaemonStatus, error) {
	return DaemonStatus{Running: true, PID: 42, Database: "sqlite"}, nil
}

func (f *fakeController) SubmitJob(ctx context.Context, kind string, params json.RawMessage) (*queue.Job, error) {
	if id, ok := services.RequestIDFromContext(ctx); ok {
		f.requestIDs = append(f.requestIDs, id)
	}
	f.submitted = append(f.submitted, kind)
	f.params = append(f.params, params)
	if f.submitErr != nil {
		return f.existing, f.submitErr
	}
	return &queue.Job{ID: 7, Kind: kind, Status: queue.StatusPending, CreatedAt: time.Now()}, nil
}

func (f *fakeController) CancelJob(id int64) error {
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *fakeController) TestNotification(context.Context) (bool, string, error) {
	return false, "ntfy topic not configured", nil
}

type fakeJobReader struct {
	jobs   []queue.Job
	filter queue.Filter
}

func (f *fakeJobReader) List(_ context.Context, filter queue.Filter) ([]queue.Job, error) {
	f.filter = filter
	return f.jobs, nil
}

func (f *fakeJobReader) Get(_ context.Context, id int64) (*queue.Job, error) {
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			return &f.jobs[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "queue", "get job", "missing", nil)
}

func newTestRouter(ctl *fakeController, reader *fakeJobReader, token string) http.Handler {
	return NewRouter(RouterOptions{Controller: ctl, Jobs: NewJobService(reader), Token: token})
}

func serve(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJobAccepted(t *testing.T) {
	ctl := &fakeController{}
	h := newTestRouter(ctl, &fakeJobReader{}, "")

	rec := serve(t, h, http.MethodPost, "/api/jobs", SubmitRequest{Kind: "full_refresh", Params: json.RawMessage(`{"source_id":3}`)})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	var resp JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Job.ID != 7 || resp.Job.Status != "pending" {
		t.Fatalf("unexpected job %+v", resp.Job)
	}
	if string(ctl.params[0]) != `{"source_id":3}` {
		t.Fatalf("params not forwarded: %s", ctl.params[0])
	}
	if rec.Header().Get(RequestIDHeader) == "" || len(ctl.requestIDs) != 1 || ctl.requestIDs[0] != rec.Header().Get(RequestIDHeader) {
		t.Fatalf("request id not propagated: header %q ctx %v", rec.Header().Get(RequestIDHeader), ctl.requestIDs)
	}
}

func TestSubmitJobDuplicateConflict(t *testing.T) {
	ctl := &fakeController{
		submitErr: &workflow.DuplicateJobError{UniqueKey: "refresh-source-3", ExistingID: 5},
		existing:  &queue.Job{ID: 5, Status: queue.StatusRunning},
	}
	h := newTestRouter(ctl, &fakeJobReader{}, "")

	rec := serve(t, h, http.MethodPost, "/api/jobs", SubmitRequest{Kind: "full_refresh", Params: json.RawMessage(`{"source_id":3}`)})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Job == nil || resp.Job.ID != 5 {
		t.Fatalf("expected holder job in response, got %+v", resp)
	}
}

func TestSubmitJobBadRequests(t *testing.T) {
	ctl := &fakeController{submitErr: services.Wrap(services.ErrValidation, "tasks", "build job", "bad", nil)}
	h := newTestRouter(ctl, &fakeJobReader{}, "")

	if rec := serve(t, h, http.MethodPost, "/api/jobs", map[string]any{"kind": "x", "extra": 1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodPost, "/api/jobs", SubmitRequest{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing kind: expected 400, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodPost, "/api/jobs", SubmitRequest{Kind: "nonsense"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("validation: expected 400, got %d", rec.Code)
	}
}

func TestListAndGetJobs(t *testing.T) {
	reader := &fakeJobReader{jobs: []queue.Job{
		{ID: 2, Kind: "generic_import", Status: queue.StatusRunning, Progress: 40, Message: "fetching"},
		{ID: 1, Kind: "delete_anime", Status: queue.StatusSuccess, Progress: 100, Result: "deleted"},
	}}
	h := newTestRouter(&fakeController{}, reader, "")

	rec := serve(t, h, http.MethodGet, "/api/jobs?status=running,success&kind=generic_import&limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list JobListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Jobs) != 2 || list.Jobs[1].Progress.Message != "deleted" {
		t.Fatalf("unexpected list %+v", list.Jobs)
	}
	if len(reader.filter.Statuses) != 2 || reader.filter.Kind != "generic_import" || reader.filter.Limit != 5 {
		t.Fatalf("unexpected filter %+v", reader.filter)
	}

	if rec := serve(t, h, http.MethodGet, "/api/jobs?status=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/api/jobs/2", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/api/jobs/99", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/api/jobs/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	ctl := &fakeController{}
	reader := &fakeJobReader{jobs: []queue.Job{{ID: 3, Status: queue.StatusRunning}}}
	h := newTestRouter(ctl, reader, "")

	if rec := serve(t, h, http.MethodDelete, "/api/jobs/3", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(ctl.cancelled) != 1 || ctl.cancelled[0] != 3 {
		t.Fatalf("cancel not forwarded: %v", ctl.cancelled)
	}

	ctl.cancelErr = workflow.ErrJobNotActive
	if rec := serve(t, h, http.MethodDelete, "/api/jobs/3", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestRouter(&fakeController{}, &fakeJobReader{}, "secret")

	if rec := serve(t, h, http.MethodGet, "/api/status", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected caller request id echoed, got %q", rec.Header().Get(RequestIDHeader))
	}
	if !strings.Contains(rec.Body.String(), `"database":"sqlite"`) {
		t.Fatalf("unexpected status body %s", rec.Body)
	}
}
