package fabricmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/cabletrack/pkg/models"
)

const portStateEnabled = `CA PortInfo:
# Port info: Lid 12 port 3
LinkState:.......................Active
PhysLinkState:...................LinkUp
Mkey:............................<not displayed>
LinkWidthActive:.................4X
`

const portStateDisabled = `# Port info: Lid 12 port 3
LinkState:.......................Down
PhysLinkState:...................Disabled
`

// fakeExecutor answers commands from a script of outputs per command. Each
// entry is consumed once; the last entry for a command repeats.
type fakeExecutor struct {
	script map[string][]fakeResult
	ran    []string
}

type fakeResult struct {
	out string
	err error
}

func (f *fakeExecutor) Run(_ context.Context, cmd string) (string, error) {
	f.ran = append(f.ran, cmd)
	results, ok := f.script[cmd]
	if !ok || len(results) == 0 {
		return "", fmt.Errorf("unexpected command %q", cmd)
	}
	r := results[0]
	if len(results) > 1 {
		f.script[cmd] = results[1:]
	}
	return r.out, r.err
}

const testGUID models.GUID = 0x0002c903006e1430

func queryCmd() string { return "ibportstate -G " + testGUID.DecimalString() + " 3" }

func newTestManager(t *testing.T, exec Executor, retries int) *Manager {
	t.Helper()
	return NewManager(exec, Config{EnableRetries: retries}, zaptest.NewLogger(t))
}

func TestParsePortState(t *testing.T) {
	got := ParsePortState(portStateEnabled)
	assert.Equal(t, "LinkUp", got["PhysLinkState"])
	assert.Equal(t, "<not displayed>", got["Mkey"])
	assert.Equal(t, "4X", got["LinkWidthActive"])
	assert.NotContains(t, got, "CA PortInfo")
	assert.Len(t, got, 4)
}

func TestPortCommand(t *testing.T) {
	assert.Equal(t, "ibportstate -G 769470000000001 7 disable", portCommand(models.GUID(769470000000001), 7, "disable"))
	assert.Equal(t, "ibportstate -G 1 2", portCommand(1, 2, ""))
}

func TestManager_DisablePort(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd():              {{out: portStateEnabled}},
		queryCmd() + " disable": {{out: ""}},
	}}
	m := newTestManager(t, exec, 0)

	changed, err := m.DisablePort(context.Background(), testGUID, 3)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{queryCmd(), queryCmd() + " disable"}, exec.ran)
}

func TestManager_DisablePort_already_disabled(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd(): {{out: portStateDisabled}},
	}}
	m := newTestManager(t, exec, 0)

	changed, err := m.DisablePort(context.Background(), testGUID, 3)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, exec.ran, 1)
}

func TestManager_DisablePort_query_fails(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd(): {{err: errors.New("connection refused")}},
	}}
	m := newTestManager(t, exec, 0)

	_, err := m.DisablePort(context.Background(), testGUID, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestManager_QueryPort_missing_state(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd(): {{out: "ibwarn: port not found"}},
	}}
	m := newTestManager(t, exec, 0)

	_, err := m.EnablePort(context.Background(), testGUID, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PhysLinkState")
}

func TestManager_EnablePort_retries(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd(): {{out: portStateDisabled}},
		queryCmd() + " enable": {
			{err: errors.New("exit status 1")},
			{err: errors.New("exit status 1")},
			{out: ""},
		},
	}}
	m := newTestManager(t, exec, 10)

	changed, err := m.EnablePort(context.Background(), testGUID, 3)
	require.NoError(t, err)
	assert.True(t, changed)

	enables := 0
	for _, c := range exec.ran {
		if strings.HasSuffix(c, " enable") {
			enables++
		}
	}
	assert.Equal(t, 3, enables)
}

func TestManager_EnablePort_gives_up(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd():             {{out: portStateDisabled}},
		queryCmd() + " enable": {{err: errors.New("exit status 1")}},
	}}
	m := newTestManager(t, exec, 2)

	changed, err := m.EnablePort(context.Background(), testGUID, 3)
	require.Error(t, err)
	assert.False(t, changed)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Len(t, exec.ran, 4)
}

func TestManager_EnablePort_already_enabled(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd(): {{out: portStateEnabled}},
	}}
	m := newTestManager(t, exec, 10)

	changed, err := m.EnablePort(context.Background(), testGUID, 3)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReadOnly(t *testing.T) {
	exec := &fakeExecutor{script: map[string][]fakeResult{
		queryCmd(): {{out: portStateDisabled}},
	}}
	r := ReadOnly{Inner: newTestManager(t, exec, 0)}
	ctx := context.Background()

	changed, err := r.DisablePort(ctx, testGUID, 3)
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = r.EnablePort(ctx, testGUID, 3)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, exec.ran, "read-only mode must not touch the fabric for state changes")

	attrs, err := r.QueryPort(ctx, testGUID, 3)
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, attrs[AttrPhysLinkState])

	attrs, err = ReadOnly{}.QueryPort(ctx, testGUID, 3)
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestNew_without_host(t *testing.T) {
	c, err := New(Config{}, false, nil)
	require.NoError(t, err)
	if _, ok := c.(ReadOnly); !ok {
		t.Errorf("New() = %T, want ReadOnly", c)
	}
}
