// Package fabricmgr changes and queries InfiniBand port state through
// ibportstate on the fabric-management host.
package fabricmgr

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// PhysLinkState values reported by ibportstate.
const (
	AttrPhysLinkState = "PhysLinkState"
	StateDisabled     = "Disabled"
)

// Commander is the fabric command collaborator. EnablePort and DisablePort
// report whether a command was actually sent; a port already in the wanted
// state is left alone and reported as unchanged.
type Commander interface {
	EnablePort(ctx context.Context, guid models.GUID, port int) (bool, error)
	DisablePort(ctx context.Context, guid models.GUID, port int) (bool, error)
	QueryPort(ctx context.Context, guid models.GUID, port int) (map[string]string, error)
}

// Manager drives ibportstate through an Executor.
type Manager struct {
	exec          Executor
	retries       int
	limiter       *rate.Limiter
	debugInterval time.Duration
	logger        *zap.Logger
}

var (
	_ Commander = (*Manager)(nil)
	_ Debugger  = (*Manager)(nil)
)

// NewManager creates a Manager. Enable is attempted up to cfg.EnableRetries
// extra times, no faster than one attempt per cfg.SettleInterval.
func NewManager(exec Executor, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.SettleInterval > 0 {
		limit = rate.Every(cfg.SettleInterval)
	}
	return &Manager{
		exec:          exec,
		retries:       max(cfg.EnableRetries, 0),
		limiter:       rate.NewLimiter(limit, 1),
		debugInterval: cfg.DebugInterval,
		logger:        logger,
	}
}

// QueryPort returns the attributes ibportstate reports for one port.
func (m *Manager) QueryPort(ctx context.Context, guid models.GUID, port int) (map[string]string, error) {
	out, err := m.exec.Run(ctx, portCommand(guid, port, ""))
	if err != nil {
		return nil, fmt.Errorf("query %s/P%d: %w", guid, port, err)
	}
	return ParsePortState(out), nil
}

func (m *Manager) portDisabled(ctx context.Context, guid models.GUID, port int) (bool, error) {
	attrs, err := m.QueryPort(ctx, guid, port)
	if err != nil {
		return false, err
	}
	state, ok := attrs[AttrPhysLinkState]
	if !ok {
		return false, fmt.Errorf("query %s/P%d: no %s in output", guid, port, AttrPhysLinkState)
	}
	return state == StateDisabled, nil
}

// DisablePort physically disables a port unless it is already disabled.
// Callers must never pass an HCA port.
func (m *Manager) DisablePort(ctx context.Context, guid models.GUID, port int) (bool, error) {
	disabled, err := m.portDisabled(ctx, guid, port)
	if err != nil {
		return false, err
	}
	if disabled {
		m.logger.Info("port already disabled", zap.Stringer("guid", guid), zap.Int("port", port))
		return false, nil
	}

	m.logger.Info("disabling port", zap.Stringer("guid", guid), zap.Int("port", port))
	if _, err := m.exec.Run(ctx, portCommand(guid, port, "disable")); err != nil {
		return false, fmt.Errorf("disable %s/P%d: %w", guid, port, err)
	}
	return true, nil
}

// EnablePort enables a disabled port, retrying while the fabric settles.
func (m *Manager) EnablePort(ctx context.Context, guid models.GUID, port int) (bool, error) {
	disabled, err := m.portDisabled(ctx, guid, port)
	if err != nil {
		return false, err
	}
	if !disabled {
		m.logger.Info("port already enabled", zap.Stringer("guid", guid), zap.Int("port", port))
		return false, nil
	}

	m.logger.Info("enabling port", zap.Stringer("guid", guid), zap.Int("port", port))
	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("enable %s/P%d: %w", guid, port, err)
		}
		if _, lastErr = m.exec.Run(ctx, portCommand(guid, port, "enable")); lastErr == nil {
			return true, nil
		}
		m.logger.Warn("port enable failed",
			zap.Stringer("guid", guid),
			zap.Int("port", port),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return false, fmt.Errorf("enable %s/P%d after %d attempts: %w", guid, port, m.retries+1, lastErr)
}

// ibportstate takes the GUID in decimal.
func portCommand(guid models.GUID, port int, action string) string {
	cmd := fmt.Sprintf("ibportstate -G %s %d", guid.DecimalString(), port)
	if action != "" {
		cmd += " " + action
	}
	return cmd
}

// Mkey:............................<not displayed>
var portStateRE = regexp.MustCompile(`^(\w+):\.+(.+)$`)

// ParsePortState parses ibportstate output into its Key:....Value pairs.
func ParsePortState(out string) map[string]string {
	attrs := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		m := portStateRE.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		attrs[m[1]] = m[2]
	}
	return attrs
}
