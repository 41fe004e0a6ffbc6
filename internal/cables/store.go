// Package cables is the lifecycle store of the cable inventory: persisted
// cables, their ports and issues, the state machine that moves cables
// between watch, suspect, disabled and removed, and the queries operators
// use to find cables.
package cables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/cabletrack/internal/bisect"
	"github.com/HerbHall/cabletrack/internal/store"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PortKey is a fabric port location.
type PortKey struct {
	GUID models.GUID
	Port int
}

func (k PortKey) String() string {
	return fmt.Sprintf("%s/P%d", k.GUID, k.Port)
}

// Filter selects cables for ListCables. Zero fields match everything.
type Filter struct {
	States   []models.CableState
	Online   *bool
	TicketID *int64
}

// Store provides database operations for cables, ports, issues and
// discovery runs.
type Store struct {
	db  *sql.DB
	q   querier
	now func() time.Time
}

// NewStore creates a new Store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db, now: time.Now}
}

// WithClock returns a copy of s that stamps modifications with now.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// InTx runs fn with a Store bound to a single write transaction. Nested
// calls reuse the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	return store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Store{db: s.db, q: tx, now: s.now})
	})
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const cableColumns = `c.id, c.state, c.suspected_count, c.online, c.online_time, c.ticket_id,
	c.serial_number, c.part_number, c.length, c.comment, c.firmware_label, c.physical_label,
	c.created_at, c.last_modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCable(r rowScanner) (*models.Cable, error) {
	var (
		c                  models.Cable
		state              string
		onlineTime, ticket sql.NullInt64
		created, modified  int64
	)
	err := r.Scan(&c.ID, &state, &c.SuspectedCount, &c.Online, &onlineTime, &ticket,
		&c.SerialNumber, &c.PartNumber, &c.Length, &c.Comment, &c.FirmwareLabel, &c.PhysicalLabel,
		&created, &modified)
	if err != nil {
		return nil, err
	}
	c.State = models.CableState(state)
	if onlineTime.Valid {
		t := fromUnix(onlineTime.Int64)
		c.OnlineTime = &t
	}
	if ticket.Valid {
		tid := ticket.Int64
		c.TicketID = &tid
	}
	c.CreatedAt = fromUnix(created)
	c.LastModified = fromUnix(modified)
	return &c, nil
}

// GetCable returns one cable with its ports.
func (s *Store) GetCable(ctx context.Context, id int64) (*models.Cable, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+cableColumns+` FROM cables c WHERE c.id = ?`, id)
	c, err := scanCable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("c%d: %w", id, ErrCableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cable c%d: %w", id, err)
	}
	if err := s.loadPorts(ctx, []*models.Cable{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCables returns the cables matching f ordered by id.
func (s *Store) ListCables(ctx context.Context, f Filter) ([]*models.Cable, error) {
	query := `SELECT ` + cableColumns + ` FROM cables c` + filterClause(&f) + ` ORDER BY c.id`
	return s.queryCables(ctx, query, filterArgs(&f)...)
}

func filterClause(f *Filter) string {
	var where []string
	if len(f.States) > 0 {
		where = append(where, "c.state IN ("+placeholders(len(f.States))+")")
	}
	if f.Online != nil {
		where = append(where, "c.online = ?")
	}
	if f.TicketID != nil {
		where = append(where, "c.ticket_id = ?")
	}
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func filterArgs(f *Filter) []any {
	var args []any
	for _, st := range f.States {
		args = append(args, string(st))
	}
	if f.Online != nil {
		args = append(args, *f.Online)
	}
	if f.TicketID != nil {
		args = append(args, *f.TicketID)
	}
	return args
}

// FindCandidates returns the non-removed cables that own any of the given
// port locations, newest first. Ties on creation time go to the highest id.
func (s *Store) FindCandidates(ctx context.Context, keys ...PortKey) ([]*models.Cable, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		conds = append(conds, "(p.guid = ? AND p.port = ?)")
		args = append(args, k.GUID.DecimalString(), k.Port)
	}
	query := `SELECT ` + cableColumns + ` FROM cables c
		WHERE c.state != 'removed' AND c.id IN (
			SELECT p.cable_id FROM cable_ports p WHERE ` + strings.Join(conds, " OR ") + `
		)
		ORDER BY c.created_at DESC, c.id DESC`
	return s.queryCables(ctx, query, args...)
}

func (s *Store) queryCables(ctx context.Context, query string, args ...any) ([]*models.Cable, error) {
	cables, err := s.scanCables(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := s.loadPorts(ctx, cables); err != nil {
		return nil, err
	}
	return cables, nil
}

func (s *Store) scanCables(ctx context.Context, query string, args ...any) ([]*models.Cable, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cables: %w", err)
	}
	defer rows.Close()

	var cables []*models.Cable
	for rows.Next() {
		c, err := scanCable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cable: %w", err)
		}
		cables = append(cables, c)
	}
	return cables, rows.Err()
}

const portColumns = `p.id, p.cable_id, p.guid, p.port, p.name, p.is_hca, p.firmware_label, p.physical_label`

func scanPort(r rowScanner) (models.CablePort, error) {
	var (
		p    models.CablePort
		guid string
	)
	if err := r.Scan(&p.ID, &p.CableID, &guid, &p.Port, &p.Name, &p.IsHCA, &p.FirmwareLabel, &p.PhysicalLabel); err != nil {
		return p, err
	}
	g, err := models.ParseGUIDDecimal(guid)
	if err != nil {
		return p, err
	}
	p.GUID = g
	return p, nil
}

// portBatch bounds the number of host parameters in one IN clause.
const portBatch = 500

func (s *Store) loadPorts(ctx context.Context, cables []*models.Cable) error {
	byID := make(map[int64]*models.Cable, len(cables))
	ids := make([]any, 0, len(cables))
	for _, c := range cables {
		c.Ports = nil
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	for start := 0; start < len(ids); start += portBatch {
		batch := ids[start:min(start+portBatch, len(ids))]
		err := s.scanPorts(ctx, func(p models.CablePort) {
			if c := byID[p.CableID]; c != nil {
				c.Ports = append(c.Ports, p)
			}
		}, `SELECT `+portColumns+` FROM cable_ports p WHERE p.cable_id IN (`+placeholders(len(batch))+`) ORDER BY p.id`, batch...)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) scanPorts(ctx context.Context, fn func(models.CablePort), query string, args ...any) error {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query cable ports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPort(rows)
		if err != nil {
			return fmt.Errorf("scan cable port: %w", err)
		}
		fn(p)
	}
	return rows.Err()
}

// GetPort returns one cable port by id.
func (s *Store) GetPort(ctx context.Context, id int64) (*models.CablePort, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+portColumns+` FROM cable_ports p WHERE p.id = ?`, id)
	p, err := scanPort(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("p%d: %w", id, ErrPortNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cable port p%d: %w", id, err)
	}
	return &p, nil
}

// InsertCable stores a new cable and its ports, filling in the generated ids.
// A cable without an explicit state starts in watch.
func (s *Store) InsertCable(ctx context.Context, c *models.Cable) error {
	if len(c.Ports) > 2 {
		return ErrTooManyPorts
	}
	now := s.stamp()
	if c.State == "" {
		c.State = models.CableStateWatch
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastModified.IsZero() {
		c.LastModified = c.CreatedAt
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO cables (
			state, suspected_count, online, online_time, ticket_id,
			serial_number, part_number, length, comment, firmware_label, physical_label,
			created_at, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.State), c.SuspectedCount, c.Online, nullUnix(c.OnlineTime), nullInt64(c.TicketID),
		c.SerialNumber, c.PartNumber, c.Length, c.Comment, c.FirmwareLabel, c.PhysicalLabel,
		c.CreatedAt.Unix(), c.LastModified.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert cable: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert cable id: %w", err)
	}

	for i := range c.Ports {
		c.Ports[i].CableID = c.ID
		if err := s.insertPort(ctx, &c.Ports[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertPort(ctx context.Context, p *models.CablePort) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO cable_ports (cable_id, guid, port, name, is_hca, firmware_label, physical_label)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.CableID, p.GUID.DecimalString(), p.Port, p.Name, p.IsHCA, p.FirmwareLabel, p.PhysicalLabel,
	)
	if err != nil {
		return fmt.Errorf("insert cable port %s/P%d: %w", p.GUID, p.Port, err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert cable port id: %w", err)
	}
	return nil
}

// SaveCable writes every mutable cable column. Ports are not touched.
func (s *Store) SaveCable(ctx context.Context, c *models.Cable) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE cables SET
			state = ?, suspected_count = ?, online = ?, online_time = ?, ticket_id = ?,
			serial_number = ?, part_number = ?, length = ?, comment = ?,
			firmware_label = ?, physical_label = ?, last_modified = ?
		WHERE id = ?`,
		string(c.State), c.SuspectedCount, c.Online, nullUnix(c.OnlineTime), nullInt64(c.TicketID),
		c.SerialNumber, c.PartNumber, c.Length, c.Comment,
		c.FirmwareLabel, c.PhysicalLabel, c.LastModified.Unix(),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("save cable c%d: %w", c.ID, err)
	}
	return expectRow(res, fmt.Errorf("c%d: %w", c.ID, ErrCableNotFound))
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// SetTicketIfUnset records tid on a cable that has no ticket yet. It
// reports false when another ticket got there first.
func (s *Store) SetTicketIfUnset(ctx context.Context, id, tid int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE cables SET ticket_id = ? WHERE id = ? AND ticket_id IS NULL`, tid, id)
	if err != nil {
		return false, fmt.Errorf("set ticket on c%d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkOnline flags a cable as seen in the fabric at t.
func (s *Store) MarkOnline(ctx context.Context, id int64, t time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE cables SET online = 1, online_time = ? WHERE id = ?`, t.Unix(), id)
	if err != nil {
		return fmt.Errorf("mark c%d online: %w", id, err)
	}
	return expectRow(res, fmt.Errorf("c%d: %w", id, ErrCableNotFound))
}

// MarkOffline clears the online flag. The last online time is kept.
func (s *Store) MarkOffline(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE cables SET online = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark c%d offline: %w", id, err)
	}
	return expectRow(res, fmt.Errorf("c%d: %w", id, ErrCableNotFound))
}

// SetPhysicalLabel sets the operator-assigned label of a cable.
func (s *Store) SetPhysicalLabel(ctx context.Context, id int64, label string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE cables SET physical_label = ? WHERE id = ?`, label, id)
	if err != nil {
		return fmt.Errorf("label c%d: %w", id, err)
	}
	return expectRow(res, fmt.Errorf("c%d: %w", id, ErrCableNotFound))
}

// SetPortPhysicalLabel sets the operator-assigned label of one cable port.
func (s *Store) SetPortPhysicalLabel(ctx context.Context, portID int64, label string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE cable_ports SET physical_label = ? WHERE id = ?`, label, portID)
	if err != nil {
		return fmt.Errorf("label p%d: %w", portID, err)
	}
	return expectRow(res, fmt.Errorf("p%d: %w", portID, ErrPortNotFound))
}

// SwitchEdges returns one bisection edge per online, in-service cable whose
// two ports are both on switches. The cable identified by exclude is left out.
func (s *Store) SwitchEdges(ctx context.Context, exclude int64) ([]bisect.Edge, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, p.guid, p.is_hca
		FROM cables c JOIN cable_ports p ON p.cable_id = c.id
		WHERE c.online = 1 AND c.state IN ('watch', 'suspect') AND c.id != ?
		ORDER BY c.id, p.id`, exclude)
	if err != nil {
		return nil, fmt.Errorf("query switch edges: %w", err)
	}
	defer rows.Close()

	type end struct {
		guid models.GUID
		hca  bool
	}
	var (
		edges []bisect.Edge
		cur   int64 = -1
		ends  []end
	)
	flush := func() {
		if len(ends) == 2 && !ends[0].hca && !ends[1].hca {
			edges = append(edges, bisect.Edge{A: ends[0].guid, B: ends[1].guid})
		}
		ends = ends[:0]
	}
	for rows.Next() {
		var (
			id   int64
			guid string
			hca  bool
		)
		if err := rows.Scan(&id, &guid, &hca); err != nil {
			return nil, fmt.Errorf("scan switch edge: %w", err)
		}
		g, err := models.ParseGUIDDecimal(guid)
		if err != nil {
			return nil, err
		}
		if id != cur {
			flush()
			cur = id
		}
		ends = append(ends, end{guid: g, hca: hca})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	flush()
	return edges, nil
}
