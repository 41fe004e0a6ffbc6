package cables

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/internal/testutil"
	"github.com/HerbHall/cabletrack/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestRecordIssue_dedup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := insertCable(t, s, switchCable(guidA, 1, guidB, 1))

	in := models.Issue{
		CableID:     &c.ID,
		Type:        models.IssueCounters,
		Description: "SymbolErrorCounter 12 > 10",
		Raw:         strPtr("0x2c903006e1430 1 SymbolErrorCounter 12"),
		Source:      "/dumps/run1",
		LastSeen:    testutil.Epoch,
	}
	first, outcome, err := s.RecordIssue(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, event.IssueCreated, outcome)

	// Same key from another source only refreshes the timestamp.
	again := in
	again.Source = "/dumps/run2"
	again.LastSeen = testutil.Epoch.Add(time.Hour)
	second, outcome, err := s.RecordIssue(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, event.IssueRefreshed, outcome)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetIssue(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "/dumps/run1", got.Source)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), got.LastSeen)

	// Absent raw is a different key from any present raw.
	noRaw := in
	noRaw.Raw = nil
	third, outcome, err := s.RecordIssue(ctx, noRaw)
	require.NoError(t, err)
	assert.Equal(t, event.IssueCreated, outcome)
	assert.NotEqual(t, first.ID, third.ID)

	_, outcome, err = s.RecordIssue(ctx, noRaw)
	require.NoError(t, err)
	assert.Equal(t, event.IssueRefreshed, outcome, "NULL raw must still dedup")
}

func TestRecordIssue_ignored_suppresses(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := models.Issue{Type: models.IssueUnknown, Description: "unknown port", Raw: strPtr("line"), Source: "ibdiagnet2"}
	first, _, err := s.RecordIssue(ctx, in)
	require.NoError(t, err)
	require.NoError(t, s.SetIssueIgnored(ctx, first.ID, true))

	got, outcome, err := s.RecordIssue(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, event.IssueIgnored, outcome)
	assert.True(t, got.Ignored)

	visible, err := s.ListIssues(ctx, IssueFilter{Unattributed: true})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := s.ListIssues(ctx, IssueFilter{Unattributed: true, IncludeIgnored: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].CableID)

	assert.ErrorIs(t, s.SetIssueIgnored(ctx, 404, true), ErrIssueNotFound)
}

func TestListIssues_since(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := insertCable(t, s, switchCable(guidA, 1, guidB, 1))

	for i, d := range []string{"old", "fresh"} {
		_, _, err := s.RecordIssue(ctx, models.Issue{
			CableID: &c.ID, Type: models.IssueLink, Description: d, Source: "test",
			LastSeen: testutil.Epoch.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	got, err := s.ListIssues(ctx, IssueFilter{CableID: &c.ID, Since: testutil.Epoch.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Description)
}

func TestRecordIssue_insert_failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, ignored FROM issues").WillReturnRows(sqlmock.NewRows([]string{"id", "ignored"}))
	mock.ExpectExec("INSERT INTO issues").WillReturnError(errors.New("disk I/O error"))

	s := NewStore(db)
	_, _, err = s.RecordIssue(context.Background(), models.Issue{Type: models.IssueLink, Description: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert issue")
	assert.NoError(t, mock.ExpectationsWereMet())
}
