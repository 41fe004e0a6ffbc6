package cables

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/bisect"
	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/internal/fabricmgr"
	"github.com/HerbHall/cabletrack/internal/ticket"
	"github.com/HerbHall/cabletrack/pkg/models"
)

const (
	sourceAdmin     = "admin"
	disableAutoRaw  = "Disable cable requested. Auto adding cable to bad cables."
	unknownValue    = "Unknown"
	eventSourceName = "cables"
)

// Options configures a Lifecycle.
type Options struct {
	Cluster             string // Cluster name used in ticket titles
	Queue               string // Queue for new tickets
	Group               string // Group that owns cable tickets
	RepairGroup         string // Group that receives repair hand-offs
	DisableBisectDetect bool   // Skip the bisection check on disable
	Now                 func() time.Time
}

// Lifecycle applies state transitions to stored cables and sequences the
// ticket and fabric side effects that go with them. Every transition is
// committed before any side effect runs. Side-effect failures are logged and
// returned, but never roll back the committed state.
type Lifecycle struct {
	store   *Store
	tickets ticket.Client
	fabric  fabricmgr.Commander
	bus     *event.Bus
	logger  *zap.Logger
	opts    Options
}

// NewLifecycle creates a Lifecycle. A nil ticket client disables tickets and
// a nil commander disables port state changes.
func NewLifecycle(st *Store, tickets ticket.Client, fabric fabricmgr.Commander, bus *event.Bus, logger *zap.Logger, opts Options) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tickets == nil {
		tickets = ticket.Nop{Logger: logger}
	}
	if fabric == nil {
		fabric = fabricmgr.ReadOnly{Logger: logger}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cluster == "" {
		opts.Cluster = "cluster"
	}
	return &Lifecycle{
		store:   st.WithClock(opts.Now),
		tickets: tickets,
		fabric:  fabric,
		bus:     bus,
		logger:  logger,
		opts:    opts,
	}
}

// Store returns the store the lifecycle writes to.
func (l *Lifecycle) Store() *Store {
	return l.store
}

func (l *Lifecycle) now() time.Time {
	return l.opts.Now().UTC().Truncate(time.Second)
}

func (l *Lifecycle) publish(ctx context.Context, topic string, payload any) {
	l.bus.Publish(ctx, event.Event{Topic: topic, Source: eventSourceName, Payload: payload})
}

func (l *Lifecycle) publishChange(ctx context.Context, c *models.Cable, ch Change, reason string) {
	if !ch.Changed() {
		return
	}
	l.logger.Info("cable state changed",
		zap.Int64("cable", c.ID),
		zap.String("from", string(ch.From)),
		zap.String("to", string(ch.To)),
		zap.String("reason", reason),
	)
	l.publish(ctx, event.TopicCableState, event.CableStateChanged{CableID: c.ID, From: ch.From, To: ch.To, Reason: reason})
}

// Label returns the name a cable is known by in tickets and logs.
func Label(c *models.Cable) string {
	if c.FirmwareLabel != "" {
		return c.FirmwareLabel
	}
	switch len(c.Ports) {
	case 1:
		return c.Ports[0].FirmwareLabel
	case 2:
		return c.Ports[0].FirmwareLabel + " <--> " + c.Ports[1].FirmwareLabel
	}
	return fmt.Sprintf("c%d", c.ID)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}

// IssueResult is the outcome of AddIssue.
type IssueResult struct {
	Issue   models.Issue
	Outcome event.IssueOutcome
	Change  Change
	Cable   *models.Cable // nil for unattributed issues
}

// AddIssue records an issue and, for a watched cable, moves it to suspect
// and opens a ticket (or reopens the cable's existing one). A suspect or
// disabled cable left without a ticket gets one. Every sighting that is not
// ignored is added to the cable's ticket as a comment.
func (l *Lifecycle) AddIssue(ctx context.Context, is models.Issue) (*IssueResult, error) {
	if is.LastSeen.IsZero() {
		is.LastSeen = l.now()
	}

	res := &IssueResult{}
	err := l.store.InTx(ctx, func(tx *Store) error {
		rec, outcome, err := tx.RecordIssue(ctx, is)
		if err != nil {
			return err
		}
		res.Issue, res.Outcome = rec, outcome
		if is.CableID == nil || outcome == event.IssueIgnored {
			return nil
		}

		c, err := tx.GetCable(ctx, *is.CableID)
		if err != nil {
			return err
		}
		res.Cable = c
		res.Change = Suspect(c, is.LastSeen)
		if !res.Change.Changed() {
			return nil
		}
		return tx.SaveCable(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("add issue: %w", err)
	}

	l.publish(ctx, event.TopicIssue, event.IssueRecorded{
		IssueID: res.Issue.ID,
		CableID: res.Issue.CableID,
		Type:    res.Issue.Type,
		Outcome: res.Outcome,
	})
	l.logger.Debug("issue recorded",
		zap.Int64("issue", res.Issue.ID),
		zap.String("type", string(res.Issue.Type)),
		zap.String("outcome", string(res.Outcome)),
	)

	c := res.Cable
	if c == nil || c.State == models.CableStateRemoved {
		return res, nil
	}

	var errs []error
	switch {
	case res.Change.Changed():
		l.publishChange(ctx, c, res.Change, "issue "+string(is.Type))
		if err := l.openTicket(ctx, c); err != nil {
			errs = append(errs, err)
		}
	case c.TicketID == nil && (c.State == models.CableStateSuspect || c.State == models.CableStateDisabled):
		// The ticket could not be opened when the cable was suspected.
		l.logger.Info("opening missing ticket for out of service cable", zap.Int64("cable", c.ID))
		if err := l.openTicket(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	if c.TicketID != nil {
		text := fmt.Sprintf("Bad Cable Issue:\nType: %s\nIssue: %s\nSource: %s\n%s",
			is.Type, is.Description, is.Source, rawText(is.Raw))
		if err := l.comment(ctx, c, text); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func rawText(raw *string) string {
	if raw == nil {
		return ""
	}
	return *raw
}

// openTicket gives a newly suspected cable a ticket, or reassigns the one it
// still holds from an earlier offense.
func (l *Lifecycle) openTicket(ctx context.Context, c *models.Cable) error {
	name := Label(c)
	if c.TicketID != nil {
		err := l.tickets.AssignGroup(ctx, *c.TicketID, l.opts.Group, ticket.Fields{
			"comments": fmt.Sprintf("Ticket has been reopened for repeat offender bad cable.\n\nOffense: %d", c.SuspectedCount),
		})
		l.ticketEvent(ctx, c, *c.TicketID, "assign", err)
		return err
	}

	tid, err := l.tickets.Create(ctx, ticket.CreateRequest{
		Queue:    l.opts.Queue,
		Assignee: l.opts.Group,
		Title:    fmt.Sprintf("%s: Bad Cable %s", l.opts.Cluster, name),
		Body:     fmt.Sprintf("%s has been added to the %s bad cable list.", name, l.opts.Cluster),
		Fields: ticket.Fields{
			"hostname": l.opts.Cluster,
			"cable":    name,
		},
	})
	l.ticketEvent(ctx, c, tid, "create", err)
	if err != nil || tid == 0 {
		return err
	}

	set, err := l.store.SetTicketIfUnset(ctx, c.ID, tid)
	if err != nil {
		return err
	}
	if !set {
		// Another writer attached a ticket between commit and create.
		l.logger.Warn("cable already has a ticket, closing duplicate",
			zap.Int64("cable", c.ID), zap.Int64("ticket", tid))
		current, err := l.store.GetCable(ctx, c.ID)
		if err != nil {
			return err
		}
		c.TicketID = current.TicketID
		return l.tickets.Close(ctx, tid, fmt.Sprintf("Duplicate ticket for cable c%d", c.ID))
	}
	c.TicketID = &tid
	l.logger.Info("opened ticket for bad cable", zap.Int64("cable", c.ID), zap.Int64("ticket", tid))
	return nil
}

func (l *Lifecycle) ticketEvent(ctx context.Context, c *models.Cable, tid int64, action string, err error) {
	if err != nil {
		l.logger.Error("ticket action failed",
			zap.Int64("cable", c.ID),
			zap.Int64("ticket", tid),
			zap.String("action", action),
			zap.Error(err),
		)
	}
	l.publish(ctx, event.TopicTicket, event.TicketAction{TicketID: tid, CableID: c.ID, Action: action, Err: err})
}

func (l *Lifecycle) comment(ctx context.Context, c *models.Cable, text string) error {
	if c.TicketID == nil {
		return nil
	}
	err := l.tickets.AddComment(ctx, *c.TicketID, text)
	l.ticketEvent(ctx, c, *c.TicketID, "comment", err)
	if err != nil {
		return fmt.Errorf("comment on ticket for c%d: %w", c.ID, err)
	}
	return nil
}

// IsBisection reports whether taking the cable out of service would cut the
// fabric in two. Cables with an HCA end or a missing end never bisect.
func (l *Lifecycle) IsBisection(ctx context.Context, c *models.Cable) (bool, error) {
	if c.HasHCA() || len(c.Ports) != 2 {
		return false, nil
	}
	edges, err := l.store.SwitchEdges(ctx, c.ID)
	if err != nil {
		return false, err
	}
	return bisect.IsBisection(edges, c.Ports[0].GUID, c.Ports[1].GUID), nil
}

// Disable takes a cable out of service. A watched cable is first suspected
// with a manual issue. The bisection check is skipped when force is set or
// the lifecycle was configured without it. The cable is only recorded as
// disabled when at least one of its ports was disabled in the fabric.
func (l *Lifecycle) Disable(ctx context.Context, id int64, comment string, force bool) error {
	c, err := l.store.GetCable(ctx, id)
	if err != nil {
		return err
	}
	switch c.State {
	case models.CableStateDisabled:
		l.logger.Warn("cable already disabled, ignoring", zap.Int64("cable", id))
		return fmt.Errorf("disable c%d: %w", id, ErrAlreadyDisabled)
	case models.CableStateRemoved:
		return fmt.Errorf("disable c%d: %w", id, ErrCableRemoved)
	}

	if !force && !l.opts.DisableBisectDetect {
		bisects, err := l.IsBisection(ctx, c)
		if err != nil {
			return err
		}
		if bisects {
			l.logger.Warn("refusing to disable cable that bisects the fabric", zap.Int64("cable", id))
			return fmt.Errorf("disable c%d: %w", id, ErrBisection)
		}
	}

	var errs []error
	if c.State == models.CableStateWatch {
		raw := disableAutoRaw
		_, err := l.AddIssue(ctx, models.Issue{
			CableID:     &c.ID,
			Type:        models.IssueManual,
			Description: comment,
			Raw:         &raw,
			Source:      sourceAdmin,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	ok, err := l.disablePorts(ctx, c)
	if err != nil {
		errs = append(errs, err)
	}
	if !ok {
		errs = append(errs, fmt.Errorf("disable c%d: %w", id, ErrNoPortDisabled))
		return errors.Join(errs...)
	}

	var ch Change
	err = l.store.InTx(ctx, func(tx *Store) error {
		cur, err := tx.GetCable(ctx, id)
		if err != nil {
			return err
		}
		from := cur.State
		// An ignored manual issue leaves the cable watched.
		Suspect(cur, l.now())
		if ch, err = Disable(cur, comment, l.now()); err != nil {
			return err
		}
		ch.From = from
		c = cur
		return tx.SaveCable(ctx, cur)
	})
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	l.publishChange(ctx, c, ch, comment)
	if err := l.comment(ctx, c, fmt.Sprintf("Cable %s disabled:\n%s", Label(c), comment)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// disablePorts disables every switch port of the cable. HCA ports are never
// disabled. It reports whether at least one port is now disabled.
func (l *Lifecycle) disablePorts(ctx context.Context, c *models.Cable) (bool, error) {
	var (
		ok   bool
		errs []error
	)
	for _, p := range c.Ports {
		if p.IsHCA {
			l.logger.Warn("ignoring request to disable HCA port", zap.Int64("cable", c.ID), zap.Int64("port_id", p.ID))
			continue
		}
		_, err := l.fabric.DisablePort(ctx, p.GUID, p.Port)
		l.publish(ctx, event.TopicFabric, event.PortCommand{CableID: c.ID, GUID: p.GUID, Port: p.Port, Action: "disable", Err: err})
		if err != nil {
			l.logger.Error("port disable failed",
				zap.Int64("cable", c.ID), zap.Stringer("guid", p.GUID), zap.Int("port", p.Port), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		ok = true
	}
	return ok, errors.Join(errs...)
}

// enablePorts enables every switch port of the cable.
func (l *Lifecycle) enablePorts(ctx context.Context, c *models.Cable) error {
	var errs []error
	for _, p := range c.Ports {
		if p.IsHCA {
			continue
		}
		_, err := l.fabric.EnablePort(ctx, p.GUID, p.Port)
		l.publish(ctx, event.TopicFabric, event.PortCommand{CableID: c.ID, GUID: p.GUID, Port: p.Port, Action: "enable", Err: err})
		if err != nil {
			l.logger.Error("port enable failed",
				zap.Int64("cable", c.ID), zap.Stringer("guid", p.GUID), zap.Int("port", p.Port), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable puts a cable's ports back in service. A disabled cable returns to
// suspect. If any port fails to enable the state is left unchanged.
func (l *Lifecycle) Enable(ctx context.Context, id int64, comment string) error {
	c, err := l.store.GetCable(ctx, id)
	if err != nil {
		return err
	}
	if c.State == models.CableStateRemoved {
		return fmt.Errorf("enable c%d: %w", id, ErrCableRemoved)
	}
	if err := l.enablePorts(ctx, c); err != nil {
		return fmt.Errorf("enable c%d: %w", id, err)
	}

	var ch Change
	err = l.store.InTx(ctx, func(tx *Store) error {
		cur, err := tx.GetCable(ctx, id)
		if err != nil {
			return err
		}
		if ch, err = Enable(cur, comment, l.now()); err != nil {
			return err
		}
		c = cur
		return tx.SaveCable(ctx, cur)
	})
	if err != nil {
		return err
	}

	l.publishChange(ctx, c, ch, comment)
	return l.comment(ctx, c, fmt.Sprintf("Cable %s enabled:\n%s", Label(c), comment))
}

// Release returns a cable to watch and closes its ticket. A full release
// (rejuvenate) also clears the offense count and forgets the ticket.
// Releasing a watched cable only enables it.
func (l *Lifecycle) Release(ctx context.Context, id int64, comment string, full bool) error {
	c, err := l.store.GetCable(ctx, id)
	if err != nil {
		return err
	}
	switch c.State {
	case models.CableStateRemoved:
		return fmt.Errorf("release c%d: %w", id, ErrCableRemoved)
	case models.CableStateWatch:
		l.logger.Debug("releasing watched cable, enabling only", zap.Int64("cable", id))
		return l.Enable(ctx, id, comment)
	}
	if err := l.enablePorts(ctx, c); err != nil {
		return fmt.Errorf("release c%d: %w", id, err)
	}

	var (
		ch  Change
		tid *int64
	)
	err = l.store.InTx(ctx, func(tx *Store) error {
		cur, err := tx.GetCable(ctx, id)
		if err != nil {
			return err
		}
		tid = cur.TicketID
		if ch, err = Release(cur, comment, full, l.now()); err != nil {
			return err
		}
		c = cur
		return tx.SaveCable(ctx, cur)
	})
	if err != nil {
		return err
	}

	l.publishChange(ctx, c, ch, comment)
	if tid == nil {
		return nil
	}
	err = l.tickets.Close(ctx, *tid, "Released Bad Cable\nBad Cable Comment:\n"+comment)
	l.ticketEvent(ctx, c, *tid, "close", err)
	return err
}

// Remove retires a cable. Unless release is false the cable is released
// first; a failed release is logged and the removal goes ahead.
func (l *Lifecycle) Remove(ctx context.Context, id int64, comment string, release bool) error {
	if release {
		err := l.Release(ctx, id, comment, false)
		switch {
		case errors.Is(err, ErrCableRemoved), errors.Is(err, ErrCableNotFound):
			return err
		case err != nil:
			l.logger.Warn("release before remove failed", zap.Int64("cable", id), zap.Error(err))
		}
	}

	var (
		c  *models.Cable
		ch Change
	)
	err := l.store.InTx(ctx, func(tx *Store) error {
		cur, err := tx.GetCable(ctx, id)
		if err != nil {
			return err
		}
		if ch, err = Remove(cur, comment, l.now()); err != nil {
			return err
		}
		c = cur
		return tx.SaveCable(ctx, cur)
	})
	if err != nil {
		return err
	}
	l.publishChange(ctx, c, ch, comment)
	return nil
}

// Replacement is a committed replacement whose ticket side effects are still
// to run.
type Replacement struct {
	Old       *models.Cable
	New       *models.Cable
	OldTicket *int64 // ticket the old cable held before the replacement
	Moved     bool   // ticket moved to the new cable
	Comment   string
	change    Change
}

// ReplaceTx applies a replacement inside the caller's transaction. Callers
// must run FinishReplace after committing.
func (l *Lifecycle) ReplaceTx(ctx context.Context, tx *Store, oldID, newID int64, comment string) (*Replacement, error) {
	if oldID == newID {
		return nil, fmt.Errorf("replace c%d: %w", oldID, ErrSelfReplace)
	}
	old, err := tx.GetCable(ctx, oldID)
	if err != nil {
		return nil, err
	}
	repl, err := tx.GetCable(ctx, newID)
	if err != nil {
		return nil, err
	}

	r := &Replacement{Old: old, New: repl, OldTicket: old.TicketID, Comment: comment}
	from := old.State
	if r.Moved, err = Replace(old, repl, comment, l.now()); err != nil {
		return nil, err
	}
	r.change = Change{From: from, To: old.State}
	if err := tx.SaveCable(ctx, old); err != nil {
		return nil, err
	}
	if r.Moved {
		if err := tx.SaveCable(ctx, repl); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FinishReplace runs the side effects of a committed replacement: the old
// ticket is told about the swap.
func (l *Lifecycle) FinishReplace(ctx context.Context, r *Replacement) error {
	l.logger.Info("cable replaced",
		zap.Int64("old", r.Old.ID), zap.Int64("new", r.New.ID), zap.Bool("ticket_moved", r.Moved))
	l.publishChange(ctx, r.Old, r.change, r.Comment)
	l.publish(ctx, event.TopicCableReplaced, event.CableReplaced{OldCableID: r.Old.ID, NewCableID: r.New.ID})
	if r.OldTicket == nil {
		return nil
	}

	text := fmt.Sprintf("This cable has been replaced by a new cable:\n\n%s\n\n"+
		"New Cable:\n%s\nLength: %s\nSerial: %s\nProduct Number: %s\n\n"+
		"Replaced Cable:\n%s\nLength: %s\nSerial: %s\nProduct Number: %s",
		r.Comment,
		Label(r.New), orUnknown(r.New.Length), orUnknown(r.New.SerialNumber), orUnknown(r.New.PartNumber),
		Label(r.Old), orUnknown(r.Old.Length), orUnknown(r.Old.SerialNumber), orUnknown(r.Old.PartNumber),
	)
	err := l.tickets.AddComment(ctx, *r.OldTicket, text)
	l.ticketEvent(ctx, r.Old, *r.OldTicket, "comment", err)
	return err
}

// Replace marks old as replaced by repl.
func (l *Lifecycle) Replace(ctx context.Context, oldID, newID int64, comment string) error {
	var r *Replacement
	err := l.store.InTx(ctx, func(tx *Store) error {
		var err error
		r, err = l.ReplaceTx(ctx, tx, oldID, newID, comment)
		return err
	})
	if err != nil {
		return err
	}
	return l.FinishReplace(ctx, r)
}

// Comment stores an operator comment and copies it to the cable's ticket.
func (l *Lifecycle) Comment(ctx context.Context, id int64, text string) error {
	var c *models.Cable
	err := l.store.InTx(ctx, func(tx *Store) error {
		cur, err := tx.GetCable(ctx, id)
		if err != nil {
			return err
		}
		cur.Comment = text
		c = cur
		return tx.SaveCable(ctx, cur)
	})
	if err != nil {
		return err
	}
	return l.comment(ctx, c, "Bad Cable Comment:\n"+text)
}

// Suspect adds a manual issue against a cable.
func (l *Lifecycle) Suspect(ctx context.Context, id int64, comment string) error {
	_, err := l.AddIssue(ctx, models.Issue{
		CableID:     &id,
		Type:        models.IssueManual,
		Description: comment,
		Source:      sourceAdmin,
	})
	return err
}

// SendToRepair hands the cable's ticket to the repair group.
func (l *Lifecycle) SendToRepair(ctx context.Context, id int64, comment string) error {
	c, err := l.store.GetCable(ctx, id)
	if err != nil {
		return err
	}
	if c.TicketID == nil {
		l.logger.Warn("cable has no ticket, refusing repair hand-off", zap.Int64("cable", id))
		return fmt.Errorf("repair c%d: %w", id, ErrNoTicket)
	}

	label := "Cable Label: " + Label(c)
	if c.PhysicalLabel != "" {
		label = fmt.Sprintf("Physical Cable Label: %s\nSoftware Cable Label: %s", c.PhysicalLabel, Label(c))
	}
	text := fmt.Sprintf("The following cable has been marked for repair.\n\n"+
		"This cable has had %d events that required repair to date.\n\n"+
		"%s\nLength: %s\nSerial: %s\nProduct Number: %s\n\n"+
		"Request:\n\n%s\n\n"+
		"Please verify that the cable ports are dark before physically repairing cable.",
		c.SuspectedCount, label, orUnknown(c.Length), orUnknown(c.SerialNumber), orUnknown(c.PartNumber), comment)

	err = l.tickets.AssignGroup(ctx, *c.TicketID, l.opts.RepairGroup, ticket.Fields{
		"comments": text,
		"offense":  strconv.Itoa(c.SuspectedCount),
	})
	l.ticketEvent(ctx, c, *c.TicketID, "assign", err)
	return err
}

// PortStatus is the fabric view of one cable port.
type PortStatus struct {
	Port  models.CablePort
	Attrs map[string]string
	Err   error
}

// QueryPorts asks the fabric for the state of every port of the cable.
// Per-port failures are reported in the result.
func (l *Lifecycle) QueryPorts(ctx context.Context, id int64) ([]PortStatus, error) {
	c, err := l.store.GetCable(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]PortStatus, 0, len(c.Ports))
	for _, p := range c.Ports {
		attrs, err := l.fabric.QueryPort(ctx, p.GUID, p.Port)
		out = append(out, PortStatus{Port: p, Attrs: attrs, Err: err})
	}
	return out, nil
}

// IgnoreIssue suppresses an issue from being raised again.
func (l *Lifecycle) IgnoreIssue(ctx context.Context, id int64) error {
	return l.store.SetIssueIgnored(ctx, id, true)
}

// HonorIssue undoes IgnoreIssue.
func (l *Lifecycle) HonorIssue(ctx context.Context, id int64) error {
	return l.store.SetIssueIgnored(ctx, id, false)
}

// SetCablePhysicalLabel records the label printed on the cable.
func (l *Lifecycle) SetCablePhysicalLabel(ctx context.Context, id int64, label string) error {
	return l.store.SetPhysicalLabel(ctx, id, label)
}

// SetPortPhysicalLabel records the label printed at one cable end.
func (l *Lifecycle) SetPortPhysicalLabel(ctx context.Context, portID int64, label string) error {
	return l.store.SetPortPhysicalLabel(ctx, portID, label)
}
