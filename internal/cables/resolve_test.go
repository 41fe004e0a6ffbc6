package cables

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cabletrack/internal/testutil"
	"github.com/HerbHall/cabletrack/pkg/models"
)

func TestResolve(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	removed := insertCable(t, s, testutil.NewCable([]models.CablePort{
		testutil.SwitchPort(guidA, 1, "r1i0s0 SW0"),
		testutil.SwitchPort(guidB, 1, "r1i1s0 SW0"),
	}, testutil.WithState(models.CableStateRemoved)))
	live := insertCable(t, s, testutil.NewCable([]models.CablePort{
		testutil.SwitchPort(guidA, 1, "r1i0s0 SW0"),
		testutil.SwitchPort(guidB, 1, "r1i1s0 SW0"),
	}, testutil.WithTicket(88)))
	host := insertCable(t, s, testutil.NewCable([]models.CablePort{
		testutil.SwitchPort(guidA, 2, "r1i0s0 SW0"),
		testutil.HCAPort(guidHost, 1, "r1i0n3"),
	}))
	require.NoError(t, s.SetPhysicalLabel(ctx, host.ID, "CBL-0042"))

	livePort := live.Ports[1].ID
	hostPort := host.Ports[1].ID

	tests := []struct {
		token    string
		wantID   int64
		wantPort *int64
	}{
		{"c1", removed.ID, nil},
		{"C2", live.ID, nil},
		{"t88", live.ID, nil},
		{"p" + itoa(livePort), live.ID, &livePort},
		{"CBL-0042", host.ID, nil},
		{live.FirmwareLabel, live.ID, nil},
		{"r1i0n3/U1/P1", host.ID, &hostPort},
		{"S" + guidB.String() + "/P1", live.ID, &livePort},
		{guidHost.String()[2:] + "/P1", host.ID, &hostPort},
		{"r1i1s0 SW0/P1", live.ID, &livePort},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			m, ok, err := s.Resolve(ctx, tt.token)
			require.NoError(t, err)
			require.True(t, ok, "token %q did not resolve", tt.token)
			assert.Equal(t, tt.wantID, m.CableID)
			assert.Equal(t, tt.wantPort, m.PortID)
		})
	}

	for _, tok := range []string{"", "c999", "t1", "nosuch/P4", "garbage"} {
		_, ok, err := s.Resolve(ctx, tok)
		require.NoError(t, err)
		assert.False(t, ok, "token %q", tok)
	}
}

func itoa(v int64) string {
	return fmt.Sprint(v)
}

func TestResolveCables(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := insertCable(t, s, switchCable(guidA, 1, guidB, 1))
	b := insertCable(t, s, switchCable(guidA, 2, guidB, 2, testutil.WithState(models.CableStateSuspect)))
	c := insertCable(t, s, switchCable(guidA, 3, guidB, 3, testutil.WithState(models.CableStateSuspect), testutil.WithOffline()))

	ids, unresolved, err := s.ResolveCables(ctx, []string{"c1,c2", " @suspect", "c1", "bogus"})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, ids)
	assert.Equal(t, []string{"bogus"}, unresolved)

	ids, _, err = s.ResolveCables(ctx, []string{"@bad:offline"})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, ids)

	_, _, err = s.ResolveCables(ctx, []string{"@broken"})
	assert.ErrorContains(t, err, "unknown selector @broken")
}

func TestResolveCables_space_separated(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := insertCable(t, s, switchCable(guidA, 1, guidB, 1))
	b := insertCable(t, s, testutil.NewCable([]models.CablePort{
		testutil.SwitchPort(guidA, 7, "r1i0s0 SW0"),
		testutil.SwitchPort(guidC, 7, "r1i1s0 SW0"),
	}))

	ids, unresolved, err := s.ResolveCables(ctx, []string{"c1 c2", "c1, bogus c2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids)
	assert.Equal(t, []string{"bogus"}, unresolved)

	// A label containing a space still resolves as one token.
	ids, unresolved, err = s.ResolveCables(ctx, []string{"r1i1s0 SW0/P7"})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids)
	assert.Empty(t, unresolved)
}

func TestResolvePorts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := insertCable(t, s, switchCable(guidA, 1, guidB, 1))

	ids, unresolved, err := s.ResolvePorts(ctx, []string{c.Ports[0].FirmwareLabel, "c1", c.Ports[0].FirmwareLabel})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.Ports[0].ID}, ids)
	assert.Equal(t, []string{"c1"}, unresolved)
}

func TestResolveIssues(t *testing.T) {
	ids, unresolved := ResolveIssues([]string{"i3,I4", "c5", "i6 i7"})
	assert.Equal(t, []int64{3, 4, 6, 7}, ids)
	assert.Equal(t, []string{"c5"}, unresolved)
}
