package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
)

const userAgent = "Quill-Go/0.1.0"

// Service defines the notification surface used by the CLI and pipeline.
type Service interface {
	NotifySampleProcessed(ctx context.Context, number int, question string) error
	NotifySampleFailed(ctx context.Context, number int, stage string, err error) error
	NotifyBuildCompleted(ctx context.Context, samples, completed int, percentage float64, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifySampleProcessed(ctx context.Context, number int, question string) error {
	message := fmt.Sprintf("✅ Sample %d ready for manual cleanup", number)
	if question = strings.TrimSpace(question); question != "" {
		message = fmt.Sprintf("%s\n%s", message, question)
	}
	return n.send(ctx, payload{
		title:   "Quill - Sample Processed",
		message: message,
		tags:    []string{"quill", "sample", "processed"},
	})
}

func (n *ntfyService) NotifySampleFailed(ctx context.Context, number int, stage string, err error) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "❌ Sample %d failed", number)
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "Quill - Error",
		message:  builder.String(),
		tags:     []string{"quill", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyBuildCompleted(ctx context.Context, samples, completed int, percentage float64, duration time.Duration) error {
	duration = max(duration.Round(time.Millisecond), 0)
	return n.send(ctx, payload{
		title:   "Quill - Dataset Built",
		message: fmt.Sprintf("📚 Dataset built: %d/%d samples complete (%.2f%%) in %s", completed, samples, percentage, duration),
		tags:    []string{"quill", "build", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Quill - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"quill", "test"},
		priority: "low",
	})
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
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
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

func (noopService) NotifySampleProcessed(context.Context, int, string) error { return nil }
func (noopService) NotifySampleFailed(context.Context, int, string, error) error {
	return nil
}
func (noopService) NotifyBuildCompleted(context.Context, int, int, float64, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
