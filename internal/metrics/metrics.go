// Package metrics counts lifecycle and discovery events from the bus and
// writes them as a node_exporter textfile.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/pkg/models"
)

const namespace = "cabletrack"

// Collector holds the cabletrack metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	stateChanges  *prometheus.CounterVec
	issues        *prometheus.CounterVec
	ticketActions *prometheus.CounterVec
	portCommands  *prometheus.CounterVec
	replaced      prometheus.Counter

	cables       *prometheus.GaugeVec
	cablesOnline prometheus.Gauge
	lastRun      *prometheus.GaugeVec
	lastRunTime  prometheus.Gauge
}

// New creates a Collector with every metric registered.
func New(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cable_state_changes_total",
			Help:      "Cable lifecycle state transitions.",
		}, []string{"from", "to"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_recorded_total",
			Help:      "Issues recorded, by type and outcome.",
		}, []string{"type", "outcome"}),
		ticketActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_actions_total",
			Help:      "Ticket operations attempted, by action and result.",
		}, []string{"action", "result"}),
		portCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "port_commands_total",
			Help:      "Fabric port state commands, by action and result.",
		}, []string{"action", "result"}),
		replaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cables_replaced_total",
			Help:      "Cables removed because another cable took their place.",
		}),
		cables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cables",
			Help:      "Tracked cables by lifecycle state.",
		}, []string{"state"}),
		cablesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cables_online",
			Help:      "Cables seen in the latest discovery run.",
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovery_last_run",
			Help:      "Counts from the latest discovery run.",
		}, []string{"field"}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovery_last_run_timestamp_seconds",
			Help:      "Completion time of the latest discovery run.",
		}),
	}
	c.registry.MustRegister(
		c.stateChanges, c.issues, c.ticketActions, c.portCommands, c.replaced,
		c.cables, c.cablesOnline, c.lastRun, c.lastRunTime,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Subscribe counts every event published on bus until the returned function
// is called.
func (c *Collector) Subscribe(bus *event.Bus) (unsubscribe func()) {
	return bus.SubscribeAll(c.handle)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) handle(_ context.Context, e event.Event) {
	switch p := e.Payload.(type) {
	case event.CableStateChanged:
		c.stateChanges.WithLabelValues(string(p.From), string(p.To)).Inc()
	case event.IssueRecorded:
		c.issues.WithLabelValues(string(p.Type), string(p.Outcome)).Inc()
	case event.TicketAction:
		c.ticketActions.WithLabelValues(p.Action, result(p.Err)).Inc()
	case event.PortCommand:
		c.portCommands.WithLabelValues(p.Action, result(p.Err)).Inc()
	case event.CableReplaced:
		c.replaced.Inc()
	case event.RunCompleted:
		c.lastRun.WithLabelValues("ports").Set(float64(p.Ports))
		c.lastRun.WithLabelValues("cables_new").Set(float64(p.CablesNew))
		c.lastRun.WithLabelValues("cables_replaced").Set(float64(p.Replaced))
		c.lastRun.WithLabelValues("issues").Set(float64(p.Issues))
		c.lastRun.WithLabelValues("unattributed").Set(float64(p.Unattributed))
		c.lastRunTime.Set(float64(e.Timestamp.Unix()))
	default:
		c.logger.Debug("unhandled event", zap.String("topic", e.Topic))
	}
}

// ObserveInventory sets the per-state cable gauges from a full cable listing.
func (c *Collector) ObserveInventory(all []*models.Cable) {
	counts := map[models.CableState]int{
		models.CableStateWatch:    0,
		models.CableStateSuspect:  0,
		models.CableStateDisabled: 0,
		models.CableStateRemoved:  0,
	}
	online := 0
	for _, cb := range all {
		counts[cb.State]++
		if cb.Online {
			online++
		}
	}
	for state, n := range counts {
		c.cables.WithLabelValues(string(state)).Set(float64(n))
	}
	c.cablesOnline.Set(float64(online))
}

// WriteTextfile atomically writes the registry to path in the text
// exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
