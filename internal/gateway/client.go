package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"danmu/internal/config"
	"danmu/internal/logging"
	"danmu/internal/provider"
	"danmu/internal/services"
)

// Client talks to the gateway.
type Client struct {
	http   *resty.Client
	pace   *rate.Limiter
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient overrides the underlying transport client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg config.Gateway, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "new client", "gateway.base_url is required", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := resty.New()
	if o.httpClient != nil {
		httpClient = resty.NewWithClient(o.httpClient)
	}
	httpClient.
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		httpClient.SetHeader("User-Agent", ua)
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		httpClient.SetHeader("X-API-Key", key)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := logging.NewNop()
	if o.logger != nil {
		logger = logging.NewComponentLogger(o.logger, "gateway")
	}
	return &Client{
		http:   httpClient,
		pace:   rate.NewLimiter(limit, 1),
		logger: logger,
	}, nil
}

// BaseURL returns the configured gateway root.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Ping checks that the gateway answers its health endpoint. It bypasses
// request pacing so status checks never queue behind import traffic.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return services.Wrap(services.ErrTransient, "gateway", "ping", "gateway unreachable",
			errors.Join(provider.ErrTransport, err))
	}
	if code := resp.StatusCode(); code >= 400 {
		return services.Wrap(services.ErrTransient, "gateway", "ping",
			fmt.Sprintf("status %d: %s", code, errorBody(resp)), provider.ErrTransport)
	}
	return nil
}

type call struct {
	method string
	path   string
	query  map[string]string
	body   any
	out    any
}

// do paces, sends and classifies one request. A 404 maps to
// services.ErrNotFound; other non-2xx codes and transport failures are
// transient.
func (c *Client) do(ctx context.Context, op string, req call) error {
	if err := c.pace.Wait(ctx); err != nil {
		return err
	}
	r := c.http.R().SetContext(ctx)
	if len(req.query) > 0 {
		r.SetQueryParams(req.query)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}
	if req.out != nil {
		r.SetResult(req.out)
	}

	start := time.Now()
	resp, err := r.Execute(req.method, req.path)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, "gateway", op,
			fmt.Sprintf("request failed (latency=%v)", latency),
			errors.Join(provider.ErrTransport, err))
	}
	c.logger.Debug("gateway request",
		logging.String("method", req.method),
		logging.String("path", req.path),
		logging.Int("status", resp.StatusCode()),
		logging.Duration("latency", latency),
	)
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "gateway", op, req.path, nil)
	case code == http.StatusNotImplemented:
		return services.Wrap(services.ErrUnsupported, "gateway", op, req.path, nil)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, "gateway", op, errorBody(resp), nil)
	case code >= 400:
		return services.Wrap(services.ErrTransient, "gateway", op,
			fmt.Sprintf("status %d: %s", code, errorBody(resp)),
			provider.ErrTransport)
	}
	return nil
}

func errorBody(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return resp.Status()
	}
	return body
}
