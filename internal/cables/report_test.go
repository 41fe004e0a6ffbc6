package cables

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cabletrack/internal/testutil"
	"github.com/HerbHall/cabletrack/pkg/models"
)

func TestWriteInventory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertCable(t, s, switchCable(guidA, 1, guidB, 1, testutil.WithSerial("MT2048X01", "MCP1600-E002", "2m")))
	insertCable(t, s, switchCable(guidA, 2, guidB, 2))
	insertCable(t, s, switchCable(guidA, 3, guidB, 3,
		testutil.WithSerial("MT2048X02", "MCP1600-E002", "2m"), testutil.WithState(models.CableStateRemoved)))
	insertCable(t, s, testutil.NewCable([]models.CablePort{testutil.SwitchPort(guidC, 4, "swC")},
		testutil.WithSerial("MT2048X03", "", "")))
	insertCable(t, s, switchCable(guidA, 5, guidC, 5,
		testutil.WithSerial("MT2048X04", "", ""), testutil.WithState(models.CableStateDisabled)))

	var buf bytes.Buffer
	require.NoError(t, s.WriteInventory(ctx, &buf))

	want := "serial_number,product_number,length,firmware_label_port_1,firmware_label_port_2\n" +
		"MT2048X01,MCP1600-E002,2m,sw1430/P1,sw1500/P1\n" +
		"MT2048X04,,,sw1430/P5,sw1600/P5\n"
	assert.Equal(t, want, buf.String())
}

func TestActionableReport(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	modified := testutil.Epoch.Add(time.Hour)
	bad := insertCable(t, s, switchCable(guidA, 1, guidB, 1,
		testutil.WithState(models.CableStateSuspect), testutil.WithCreated(modified)))
	insertCable(t, s, switchCable(guidA, 2, guidB, 2))

	for i, d := range []string{"before the state change", "after the state change", "ignored"} {
		is, _, err := s.RecordIssue(ctx, models.Issue{
			CableID: &bad.ID, Type: models.IssueLink, Description: d, Source: "test",
			LastSeen: testutil.Epoch.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		if d == "ignored" {
			require.NoError(t, s.SetIssueIgnored(ctx, is.ID, true))
		}
	}

	report, err := s.ActionableReport(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, bad.ID, report[0].Cable.ID)
	require.Len(t, report[0].Issues, 1)
	assert.Equal(t, "after the state change", report[0].Issues[0].Description)

	all, err := s.IssueReport(ctx, []int64{bad.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cables, err := s.CableReport(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, cables, 2)
}
