// Package apiclient talks to the danmu daemon's job-control API.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"danmu/internal/api"
	"danmu/internal/services"
)

var (
	// ErrAPIUnavailable reports that no daemon answered at the bind address.
	ErrAPIUnavailable = errors.New("daemon API unavailable")
	// ErrConflict reports a 409: a duplicate job or a job that is no longer active.
	ErrConflict = errors.New("conflict")
)

// Error carries the daemon's error body.
type Error struct {
	Status int
	Body   api.ErrorResponse
	marker error
}

func (e *Error) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Body.Hint != "" {
		return fmt.Sprintf("%s (hint: %s)", msg, e.Body.Hint)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.marker }

// Client is a thin typed wrapper over the daemon API.
type Client struct {
	http *resty.Client
}

// New builds a client for bind ("host:port" or a full URL).
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, services.Wrap(services.ErrConfiguration, "apiclient", "new", "paths.api_bind is empty", nil)
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "apiclient", "new", "invalid api bind", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	httpClient := resty.New().
		SetBaseURL(base.String()).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		httpClient.SetAuthToken(token)
	}
	return &Client{http: httpClient}, nil
}

// BaseURL returns the daemon root the client talks to.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// ListQuery filters job listings.
type ListQuery struct {
	Statuses []string
	Kind     string
	Limit    int
}

// ListJobs returns jobs newest first.
func (c *Client) ListJobs(ctx context.Context, q ListQuery) ([]api.Job, error) {
	query := map[string]string{}
	if len(q.Statuses) > 0 {
		query["status"] = strings.Join(q.Statuses, ",")
	}
	if kind := strings.TrimSpace(q.Kind); kind != "" {
		query["kind"] = kind
	}
	if q.Limit > 0 {
		query["limit"] = strconv.Itoa(q.Limit)
	}
	var out api.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id int64) (api.Job, error) {
	var out api.JobResponse
	err := c.do(ctx, http.MethodGet, jobPath(id), nil, nil, &out)
	return out.Job, err
}

// CancelJob requests cancellation of an active job.
func (c *Client) CancelJob(ctx context.Context, id int64) (api.Job, error) {
	var out api.JobResponse
	err := c.do(ctx, http.MethodDelete, jobPath(id), nil, nil, &out)
	return out.Job, err
}

// Submit queues a job. params is marshalled as the job's params object. On a
// duplicate the returned job is the one holding the key and the error
// matches ErrConflict.
func (c *Client) Submit(ctx context.Context, kind string, params any) (api.Job, error) {
	body := map[string]any{"kind": kind}
	if params != nil {
		body["params"] = params
	}
	var out api.JobResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, body, &out)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Body.Job != nil {
			return *apiErr.Body.Job, err
		}
		return api.Job{}, err
	}
	return out.Job, nil
}

// TestNotification asks the daemon to publish a test notification.
func (c *Client) TestNotification(ctx context.Context) (api.NotificationResponse, error) {
	var out api.NotificationResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, &out)
	return out, err
}

// Await polls a job until it reaches a terminal status. onUpdate, when set,
// sees every poll result.
func (c *Client) Await(ctx context.Context, id int64, interval time.Duration, onUpdate func(api.Job)) (api.Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return job, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status == "success" || job.Status == "failed" {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx).SetError(&api.ErrorResponse{})
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsAPIUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
		}
		return err
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &Error{Status: resp.StatusCode(), marker: markerFor(resp.StatusCode())}
	if body, ok := resp.Error().(*api.ErrorResponse); ok && body != nil {
		apiErr.Body = *body
	}
	return apiErr
}

func markerFor(status int) error {
	switch status {
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusUnauthorized:
		return services.ErrConfiguration
	default:
		return services.ErrTransient
	}
}

func jobPath(id int64) string {
	return "/api/jobs/" + strconv.FormatInt(id, 10)
}

// IsAPIUnavailable reports whether err means no daemon is listening.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
