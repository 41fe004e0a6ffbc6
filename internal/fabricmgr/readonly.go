package fabricmgr

import (
	"context"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// ReadOnly is the Commander used when port state changes are disabled.
// Enable and disable are logged no-ops; queries go to Inner when set.
type ReadOnly struct {
	Inner  Commander
	Logger *zap.Logger
}

var _ Commander = ReadOnly{}

func (r ReadOnly) skip(action string, guid models.GUID, port int) {
	if r.Logger != nil {
		r.Logger.Info("port state changes disabled, skipping",
			zap.String("action", action),
			zap.Stringer("guid", guid),
			zap.Int("port", port),
		)
	}
}

func (r ReadOnly) EnablePort(_ context.Context, guid models.GUID, port int) (bool, error) {
	r.skip("enable", guid, port)
	return false, nil
}

func (r ReadOnly) DisablePort(_ context.Context, guid models.GUID, port int) (bool, error) {
	r.skip("disable", guid, port)
	return false, nil
}

func (r ReadOnly) QueryPort(ctx context.Context, guid models.GUID, port int) (map[string]string, error) {
	if r.Inner == nil {
		return map[string]string{}, nil
	}
	return r.Inner.QueryPort(ctx, guid, port)
}

// New returns the Commander for cfg. When readOnly is set or no host is
// configured, port state changes are skipped.
func New(cfg Config, readOnly bool, logger *zap.Logger) (Commander, error) {
	if cfg.Host == "" {
		return ReadOnly{Logger: logger}, nil
	}
	exec, err := NewSSHExecutor(cfg, logger)
	if err != nil {
		return nil, err
	}
	m := NewManager(exec, cfg, logger)
	if readOnly {
		return ReadOnly{Inner: m, Logger: logger}, nil
	}
	return m, nil
}
