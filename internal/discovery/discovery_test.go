package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/cabletrack/internal/cables"
	"github.com/HerbHall/cabletrack/internal/correlator"
	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/internal/testutil"
	"github.com/HerbHall/cabletrack/internal/ticket"
	"github.com/HerbHall/cabletrack/pkg/models"
)

type env struct {
	p       *Pipeline
	store   *cables.Store
	tickets *ticket.Recorder

	mu   sync.Mutex
	runs []event.RunCompleted
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t, cables.Component, cables.Migrations())
	logger := zaptest.NewLogger(t)
	rec := ticket.NewRecorder(900)
	bus := event.NewBus(logger)
	now := func() time.Time { return testutil.Epoch }

	lc := cables.NewLifecycle(cables.NewStore(db.DB()), rec, nil, bus, logger, cables.Options{
		Cluster: "hpc1",
		Queue:   "hpc",
		Group:   "hpc-fabric",
		Now:     now,
	})
	corr := correlator.New(lc, rec, logger, correlator.Options{Cluster: "hpc1", Queue: "hpc", Group: "hpc-fabric"})

	e := &env{
		p:       New(lc, corr, bus, logger, Options{Speed: "FDR", Width: "4x", Now: now}),
		store:   lc.Store(),
		tickets: rec,
	}
	bus.Subscribe(event.TopicRunCompleted, func(_ context.Context, ev event.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.runs = append(e.runs, ev.Payload.(event.RunCompleted))
	})
	return e
}

func TestRun_new_cable_then_degraded_link(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sum, err := e.p.Run(ctx, filepath.Join("testdata", "healthy"))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Ports)
	assert.Equal(t, 1, sum.CablesNew)
	assert.Zero(t, sum.Issues)
	assert.Zero(t, sum.Unattributed)
	assert.Equal(t, time.Unix(1709380800, 0).UTC(), sum.LogicalTime)

	all, err := e.store.ListCables(ctx, cables.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	c := all[0]
	assert.Equal(t, models.CableStateWatch, c.State)
	assert.Equal(t, "MT1234567890", c.SerialNumber)
	assert.Equal(t, "MC2207130-002", c.PartNumber)
	assert.True(t, c.Online)
	require.Len(t, c.Ports, 2)

	issues, err := e.store.ListIssues(ctx, cables.IssueFilter{IncludeIgnored: true})
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Empty(t, e.tickets.Calls())

	sum, err = e.p.Run(ctx, filepath.Join("testdata", "degraded"))
	require.NoError(t, err)
	assert.Zero(t, sum.CablesNew)
	assert.Zero(t, sum.CablesReplaced)
	assert.Equal(t, 2, sum.Issues, "one speed finding from each end")

	issues, err = e.store.ListIssues(ctx, cables.IssueFilter{CableID: &c.ID})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.IssueSpeed, issues[0].Type)
	assert.Equal(t, "Port Speed: SDR", issues[0].Description)

	got, err := e.store.GetCable(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CableStateSuspect, got.State)
	assert.Equal(t, 1, got.SuspectedCount)
	require.NotNil(t, got.TicketID)
	assert.Equal(t, int64(900), *got.TicketID)
	assert.Len(t, e.tickets.Ops("create"), 1)

	runs, err := e.store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, sum.ID, runs[0].ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	require.Len(t, e.runs, 2)
	assert.Equal(t, 1, e.runs[0].CablesNew)
	assert.Equal(t, 2, e.runs[1].Issues)
}

func TestRun_missing_required_file(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join("testdata", "healthy", FileTopology))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileTopology), data, 0o600))

	_, err = e.p.Run(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), FileCSV)

	runs, err := e.store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLogicalTime(t *testing.T) {
	fallback := time.Date(2024, 3, 2, 12, 0, 0, 500, time.UTC)
	tests := []struct {
		name string
		data string
		want time.Time
	}{
		{"empty", "", fallback.Truncate(time.Second)},
		{"single", "1709380800\n", time.Unix(1709380800, 0).UTC()},
		{"last wins", "1709380800\n1709467200\n", time.Unix(1709467200, 0).UTC()},
		{"garbage ignored", "started\n1709380800\ndone\n", time.Unix(1709380800, 0).UTC()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logicalTime([]byte(tt.data), fallback))
		})
	}
}
