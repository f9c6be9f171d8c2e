package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"danmu/internal/config"
)

const userAgent = "danmu/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventJobSucceeded Event = "job_succeeded"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: "title", "kind", "jobID",
// "message" and "error".
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.OnSuccess,
		onFailure: cfg.Notifications.OnFailure,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
	onFailure bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	switch event {
	case EventJobSucceeded:
		if !n.onSuccess {
			return nil
		}
		return n.send(ctx, payload{
			title:   "danmu - Job Complete",
			message: fmt.Sprintf("✅ %s: %s", jobLabel(data), data.string("message")),
			tags:    []string{"danmu", data.string("kind"), "completed"},
		})
	case EventJobFailed:
		if !n.onFailure {
			return nil
		}
		reason := data.string("error")
		if reason == "" {
			reason = "unknown"
		}
		return n.send(ctx, payload{
			title:    "danmu - Job Failed",
			message:  fmt.Sprintf("❌ %s: %s", jobLabel(data), reason),
			tags:     []string{"danmu", data.string("kind"), "failed"},
			priority: "high",
		})
	case EventTest:
		return n.send(ctx, payload{
			title:    "danmu - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"danmu", "test"},
			priority: "low",
		})
	default:
		return nil
	}
}

func jobLabel(data Payload) string {
	title := data.string("title")
	if title == "" {
		title = data.string("kind")
	}
	if id := data.string("jobID"); id != "" {
		return fmt.Sprintf("%s (job #%s)", title, id)
	}
	return title
}

func (p Payload) string(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	tags := make([]string, 0, len(data.tags))
	for _, tag := range data.tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
