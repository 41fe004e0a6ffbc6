package cables

import (
	"fmt"
	"time"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// The functions in this file are the cable state machine. They only mutate
// the cable record passed in; persistence and side effects (tickets, fabric
// commands) are sequenced by Lifecycle once the new state is committed.
//
//	watch -> suspect -> disabled -> removed
//	disabled -> suspect, suspect/disabled -> watch
//
// removed is terminal.

// Change describes what a transition did to a cable.
type Change struct {
	From models.CableState
	To   models.CableState
}

// Changed reports whether the state moved.
func (c Change) Changed() bool {
	return c.From != c.To
}

func transition(c *models.Cable, to models.CableState, now time.Time) Change {
	ch := Change{From: c.State, To: to}
	if ch.Changed() {
		c.State = to
		c.LastModified = now
	}
	return ch
}

// Suspect moves a watched cable to suspect and counts the offense. Cables in
// any other state are unchanged.
func Suspect(c *models.Cable, now time.Time) Change {
	if c.State != models.CableStateWatch {
		return Change{From: c.State, To: c.State}
	}
	c.SuspectedCount++
	return transition(c, models.CableStateSuspect, now)
}

// Disable takes a suspect cable out of service. A watched cable must be
// suspected first.
func Disable(c *models.Cable, comment string, now time.Time) (Change, error) {
	switch c.State {
	case models.CableStateRemoved:
		return Change{}, fmt.Errorf("disable c%d: %w", c.ID, ErrCableRemoved)
	case models.CableStateDisabled:
		return Change{}, fmt.Errorf("disable c%d: %w", c.ID, ErrAlreadyDisabled)
	case models.CableStateWatch:
		return Change{}, fmt.Errorf("disable c%d from %s: %w", c.ID, c.State, ErrInvalidTransition)
	}
	c.Online = false
	c.Comment = comment
	return transition(c, models.CableStateDisabled, now), nil
}

// Enable returns a disabled cable to suspect. Other states keep their state
// and only take the comment.
func Enable(c *models.Cable, comment string, now time.Time) (Change, error) {
	if c.State == models.CableStateRemoved {
		return Change{}, fmt.Errorf("enable c%d: %w", c.ID, ErrCableRemoved)
	}
	c.Comment = comment
	if c.State != models.CableStateDisabled {
		return Change{From: c.State, To: c.State}, nil
	}
	return transition(c, models.CableStateSuspect, now), nil
}

// Release returns a suspect or disabled cable to watch. A full release also
// forgets the offense count and the ticket. Releasing a watched cable changes
// nothing; callers treat it as an enable.
func Release(c *models.Cable, comment string, full bool, now time.Time) (Change, error) {
	if c.State == models.CableStateRemoved {
		return Change{}, fmt.Errorf("release c%d: %w", c.ID, ErrCableRemoved)
	}
	if c.State == models.CableStateWatch {
		return Change{From: c.State, To: c.State}, nil
	}
	c.Comment = comment
	if full {
		c.SuspectedCount = 0
		c.TicketID = nil
	}
	return transition(c, models.CableStateWatch, now), nil
}

// Remove retires a cable for good.
func Remove(c *models.Cable, comment string, now time.Time) (Change, error) {
	if c.State == models.CableStateRemoved {
		return Change{}, fmt.Errorf("remove c%d: %w", c.ID, ErrCableRemoved)
	}
	c.Online = false
	c.Comment = comment
	return transition(c, models.CableStateRemoved, now), nil
}

// Replace retires old in favor of repl. The old cable's ticket moves to the
// replacement only when the replacement has none; it reports whether it
// moved. The old cable is removed without a release.
func Replace(old, repl *models.Cable, comment string, now time.Time) (bool, error) {
	if old.ID == repl.ID {
		return false, fmt.Errorf("replace c%d: %w", old.ID, ErrSelfReplace)
	}
	if old.State == models.CableStateRemoved {
		return false, fmt.Errorf("replace c%d: %w", old.ID, ErrCableRemoved)
	}
	if repl.State == models.CableStateRemoved {
		return false, fmt.Errorf("replace c%d with c%d: %w", old.ID, repl.ID, ErrCableRemoved)
	}

	moved := false
	if old.TicketID != nil && repl.TicketID == nil {
		tid := *old.TicketID
		repl.TicketID = &tid
		old.TicketID = nil
		moved = true
	}
	if _, err := Remove(old, comment, now); err != nil {
		return false, err
	}
	return moved, nil
}
