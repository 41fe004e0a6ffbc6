package ticket

import (
	"context"

	"go.uber.org/zap"
)

// Nop is the client used when tickets are disabled. Every call succeeds and
// Create never opens a ticket.
type Nop struct {
	Logger *zap.Logger
}

var _ Client = Nop{}

func (n Nop) log(msg string, fields ...zap.Field) {
	if n.Logger != nil {
		n.Logger.Debug(msg, fields...)
	}
}

func (n Nop) Create(_ context.Context, req CreateRequest) (int64, error) {
	n.log("tickets disabled, not creating", zap.String("title", req.Title))
	return 0, nil
}

func (n Nop) AssignGroup(_ context.Context, id int64, group string, _ Fields) error {
	n.log("tickets disabled, not assigning", zap.Int64("ticket", id), zap.String("group", group))
	return nil
}

func (n Nop) AddComment(_ context.Context, id int64, _ string) error {
	n.log("tickets disabled, not commenting", zap.Int64("ticket", id))
	return nil
}

func (n Nop) Close(_ context.Context, id int64, _ string) error {
	n.log("tickets disabled, not closing", zap.Int64("ticket", id))
	return nil
}

// New returns the REST client for cfg, or Nop when disabled or unconfigured.
func New(cfg Config, disabled bool, logger *zap.Logger) Client {
	if disabled || cfg.URL == "" {
		return Nop{Logger: logger}
	}
	return NewRESTClient(cfg.URL, cfg.Token, cfg.Timeout)
}
