// Package webhook posts cable lifecycle and discovery events to an HTTP
// endpoint, for chat or paging integrations.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/event"
)

// Config holds the webhook notifier configuration.
type Config struct {
	URL     string        `mapstructure:"url"`     // Endpoint; empty disables notifications
	Timeout time.Duration `mapstructure:"timeout"` // Per-request timeout (default: 10s)
}

// Topics are the bus topics forwarded to the webhook.
var Topics = []string{
	event.TopicCableState,
	event.TopicCableReplaced,
	event.TopicRunCompleted,
}

// Notifier forwards bus events to the configured URL.
type Notifier struct {
	cfg     Config
	cluster string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Notifier. cluster is sent with every payload.
func New(cfg Config, cluster string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:     cfg,
		cluster: cluster,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Subscribe registers the notifier on bus. It returns a function removing
// every subscription. Nothing is subscribed when no URL is configured.
func (n *Notifier) Subscribe(bus *event.Bus) (unsubscribe func()) {
	if n.cfg.URL == "" {
		return func() {}
	}
	unsubs := make([]func(), 0, len(Topics))
	for _, topic := range Topics {
		unsubs = append(unsubs, bus.Subscribe(topic, n.handleEvent))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Payload is the JSON body sent to the webhook URL.
type Payload struct {
	Event     string `json:"event"`
	Cluster   string `json:"cluster"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func (n *Notifier) handleEvent(ctx context.Context, e event.Event) {
	body, err := json.Marshal(Payload{
		Event:     e.Topic,
		Cluster:   n.cluster,
		Source:    e.Source,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Data:      e.Payload,
	})
	if err != nil {
		n.logger.Error("failed to marshal webhook payload", zap.String("topic", e.Topic), zap.Error(err))
		return
	}
	n.send(ctx, body, e.Topic)
}

// send delivers one payload. Failures are logged only; a notification
// never fails the operation that raised it.
func (n *Notifier) send(ctx context.Context, body []byte, topic string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to create webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "cabletrack-webhook/1")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook endpoint returned error",
			zap.String("topic", topic),
			zap.Int("status_code", resp.StatusCode),
		)
		return
	}
	n.logger.Debug("webhook delivered", zap.String("topic", topic), zap.Int("status_code", resp.StatusCode))
}
