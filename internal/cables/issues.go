package cables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// IssueFilter selects issues for ListIssues.
type IssueFilter struct {
	CableID        *int64
	Unattributed   bool      // only issues with no cable
	Since          time.Time // only issues seen at or after Since
	IncludeIgnored bool
}

const issueColumns = `i.id, i.cable_id, i.type, i.description, i.raw, i.source, i.last_seen, i.ignored`

func scanIssue(r rowScanner) (models.Issue, error) {
	var (
		is       models.Issue
		cableID  sql.NullInt64
		typ      string
		raw      sql.NullString
		lastSeen int64
	)
	if err := r.Scan(&is.ID, &cableID, &typ, &is.Description, &raw, &is.Source, &lastSeen, &is.Ignored); err != nil {
		return is, err
	}
	is.Type = models.IssueType(typ)
	if cableID.Valid {
		id := cableID.Int64
		is.CableID = &id
	}
	if raw.Valid {
		r := raw.String
		is.Raw = &r
	}
	is.LastSeen = fromUnix(lastSeen)
	return is, nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// RecordIssue applies the dedup rule for one detected issue. The key is
// (type, description, raw, cable); source is not part of it. An ignored
// issue under the key suppresses the new one, an existing one only has its
// last seen time refreshed, otherwise a new row is created. The returned
// issue carries the stored id.
func (s *Store) RecordIssue(ctx context.Context, in models.Issue) (models.Issue, event.IssueOutcome, error) {
	if in.LastSeen.IsZero() {
		in.LastSeen = s.stamp()
	}

	var (
		id      int64
		ignored bool
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, ignored FROM issues
		WHERE type = ? AND description = ? AND raw IS ? AND cable_id IS ?
		ORDER BY ignored DESC, id
		LIMIT 1`,
		string(in.Type), in.Description, nullString(in.Raw), nullInt64(in.CableID),
	).Scan(&id, &ignored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO issues (cable_id, type, description, raw, source, last_seen, ignored)
			VALUES (?, ?, ?, ?, ?, ?, 0)`,
			nullInt64(in.CableID), string(in.Type), in.Description, nullString(in.Raw), in.Source, in.LastSeen.Unix(),
		)
		if err != nil {
			return in, "", fmt.Errorf("insert issue: %w", err)
		}
		if in.ID, err = res.LastInsertId(); err != nil {
			return in, "", fmt.Errorf("insert issue id: %w", err)
		}
		return in, event.IssueCreated, nil
	case err != nil:
		return in, "", fmt.Errorf("find issue: %w", err)
	}

	in.ID = id
	if ignored {
		in.Ignored = true
		return in, event.IssueIgnored, nil
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE issues SET last_seen = ? WHERE id = ?`, in.LastSeen.Unix(), id); err != nil {
		return in, "", fmt.Errorf("refresh issue i%d: %w", id, err)
	}
	return in, event.IssueRefreshed, nil
}

// GetIssue returns one issue by id.
func (s *Store) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues i WHERE i.id = ?`, id)
	is, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("i%d: %w", id, ErrIssueNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue i%d: %w", id, err)
	}
	return &is, nil
}

// ListIssues returns the issues matching f ordered by last seen time.
func (s *Store) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, error) {
	var (
		where []string
		args  []any
	)
	switch {
	case f.Unattributed:
		where = append(where, "i.cable_id IS NULL")
	case f.CableID != nil:
		where = append(where, "i.cable_id = ?")
		args = append(args, *f.CableID)
	}
	if !f.Since.IsZero() {
		where = append(where, "i.last_seen >= ?")
		args = append(args, f.Since.Unix())
	}
	if !f.IncludeIgnored {
		where = append(where, "i.ignored = 0")
	}

	query := `SELECT ` + issueColumns + ` FROM issues i`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.last_seen, i.id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

// SetIssueIgnored flips the ignored flag of an issue.
func (s *Store) SetIssueIgnored(ctx context.Context, id int64, ignored bool) error {
	res, err := s.q.ExecContext(ctx, `UPDATE issues SET ignored = ? WHERE id = ?`, ignored, id)
	if err != nil {
		return fmt.Errorf("set issue i%d ignored: %w", id, err)
	}
	return expectRow(res, fmt.Errorf("i%d: %w", id, ErrIssueNotFound))
}
