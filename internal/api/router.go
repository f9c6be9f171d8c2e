package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"danmu/internal/logging"
	"danmu/internal/queue"
	"danmu/internal/services"
	"danmu/internal/workflow"
)

const maxBodyBytes = 8 << 20

// Controller performs the mutating and status operations behind the API.
type Controller interface {
	Status(ctx context.Context) (DaemonStatus, error)
	SubmitJob(ctx context.Context, kind string, params json.RawMessage) (*queue.Job, error)
	CancelJob(id int64) error
	TestNotification(ctx context.Context) (bool, string, error)
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Controller Controller
	Jobs       *JobService
	Token      string
	Logger     *slog.Logger
}

type handlers struct {
	ctl    Controller
	jobs   *JobService
	logger *slog.Logger
}

// NewRouter builds the job-control HTTP handler.
func NewRouter(opts RouterOptions) http.Handler {
	h := &handlers{
		ctl:    opts.Controller,
		jobs:   opts.Jobs,
		logger: logging.NewComponentLogger(opts.Logger, "api"),
	}

	r := chi.NewRouter()
	r.Use(requestID, middleware.Recoverer, accessLog(h.logger))
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(opts.Token))
		r.Get("/status", h.status)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.listJobs)
			r.Post("/", h.submitJob)
			r.Get("/{id}", h.getJob)
			r.Delete("/{id}", h.cancelJob)
		})
		r.Post("/notifications/test", h.testNotification)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})
	return r
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.ctl.Status(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter queue.Filter
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, ok := queue.ParseStatus(value)
			if !ok {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown status " + strconv.Quote(value)})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.Kind = strings.TrimSpace(query.Get("kind"))
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.jobs.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Describe(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if job == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: *job})
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.ctl.CancelJob(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	job, err := h.jobs.Describe(r.Context(), id)
	if err != nil || job == nil {
		writeJSON(w, http.StatusAccepted, JobResponse{Job: Job{ID: id}})
		return
	}
	writeJSON(w, http.StatusAccepted, JobResponse{Job: *job})
}

func (h *handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Kind) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "kind is required"})
		return
	}

	job, err := h.ctl.SubmitJob(r.Context(), req.Kind, req.Params)
	if err != nil {
		var dup *workflow.DuplicateJobError
		if errors.As(err, &dup) {
			resp := ErrorResponse{Error: err.Error(), Hint: "wait for the existing job to finish"}
			if job != nil {
				dto := FromJob(job)
				resp.Job = &dto
			}
			writeJSON(w, http.StatusConflict, resp)
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, JobResponse{Job: FromJob(job)})
}

func (h *handlers) testNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := h.ctl.TestNotification(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotificationResponse{Sent: sent, Message: message})
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid job id"})
		return 0, false
	}
	return id, true
}

// statusFor maps error markers onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrDuplicateJob), errors.Is(err, workflow.ErrJobNotActive):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), h.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error(), Hint: services.Hint(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
