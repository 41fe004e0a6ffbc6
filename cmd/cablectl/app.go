package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/cables"
	"github.com/HerbHall/cabletrack/internal/config"
	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/internal/fabricmgr"
	"github.com/HerbHall/cabletrack/internal/metrics"
	"github.com/HerbHall/cabletrack/internal/runlock"
	"github.com/HerbHall/cabletrack/internal/store"
	"github.com/HerbHall/cabletrack/internal/ticket"
	"github.com/HerbHall/cabletrack/internal/webhook"
)

// app is everything one invocation works with. It holds the run lock for
// the database from open until Close.
type app struct {
	settings *config.Settings
	logger   *zap.Logger
	db       *store.SQLiteStore
	lock     *runlock.Lock
	bus      *event.Bus
	metrics  *metrics.Collector
	tickets  ticket.Client
	lc       *cables.Lifecycle
	st       *cables.Store
}

func openApp(ctx context.Context) (*app, error) {
	v, err := config.LoadConfig(rootFlags.config)
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		v.Set("logging.level", rootFlags.logLevel)
	}
	if rootFlags.noTickets {
		v.Set("features.disable_tickets", true)
	}
	if rootFlags.noPortChanges {
		v.Set("features.disable_port_state_change", true)
	}

	s, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, err
	}
	if f := v.ConfigFileUsed(); f != "" {
		logger.Debug("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	}

	a := &app{settings: s, logger: logger}

	lockCtx, cancel := context.WithTimeout(ctx, rootFlags.lockWait)
	defer cancel()
	a.lock, err = runlock.Acquire(lockCtx, s.Database.Path, time.Second)
	if err != nil {
		return nil, err
	}

	a.db, err = store.New(s.Database.Path)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.db.CheckVersion(ctx, version); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.db.Migrate(ctx, cables.Component, cables.Migrations()); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.bus = event.NewBus(logger.Named("event"))
	a.metrics = metrics.New(logger.Named("metrics"))
	a.metrics.Subscribe(a.bus)
	webhook.New(s.Webhook, s.Cluster.Name, logger.Named("webhook")).Subscribe(a.bus)

	a.tickets = ticket.New(s.Ticket, s.Features.DisableTickets, logger.Named("ticket"))
	fab, err := fabricmgr.New(s.Fabric.Config, s.Features.DisablePortStateChange, logger.Named("fabric"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.lc = cables.NewLifecycle(cables.NewStore(a.db.DB()), a.tickets, fab, a.bus, logger.Named("lifecycle"), cables.Options{
		Cluster:             s.Cluster.Name,
		Queue:               s.Ticket.Queue,
		Group:               s.Ticket.Group,
		RepairGroup:         s.Ticket.RepairGroup,
		DisableBisectDetect: s.Features.DisableBisectDetect,
	})
	a.st = a.lc.Store()
	return a, nil
}

// Close writes the metrics textfile when one is configured, then releases
// the database and the run lock.
func (a *app) Close() error {
	var errs []error
	if a.st != nil && a.settings.Metrics.Textfile != "" {
		all, err := a.st.ListCables(context.Background(), cables.Filter{})
		if err == nil {
			a.metrics.ObserveInventory(all)
			err = a.metrics.WriteTextfile(a.settings.Metrics.Textfile)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := a.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release run lock: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// withApp adapts a command body that needs an open app to cobra's RunE.
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(ctx, a, cmd, args)
	}
}

// resolveCables turns cable tokens into ids. Unresolved tokens are reported
// and skipped; nothing resolving at all is an error.
func (a *app) resolveCables(ctx context.Context, cmd *cobra.Command, args []string) ([]int64, error) {
	ids, unresolved, err := a.st.ResolveCables(ctx, args)
	if err != nil {
		return nil, err
	}
	for _, tok := range unresolved {
		fmt.Fprintf(cmd.ErrOrStderr(), "unable to resolve %q\n", tok)
	}
	if len(ids) == 0 {
		return nil, errors.New("no cables resolved")
	}
	return ids, nil
}

// forEach runs op for every cable, reporting each failure and continuing.
// The returned error says how many cables failed.
func forEach(cmd *cobra.Command, ids []int64, op func(id int64) error) error {
	failed := 0
	for _, id := range ids {
		if err := op(id); err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "c%d: %v\n", id, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cables failed", failed, len(ids))
	}
	return nil
}
