package cables

import (
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/cabletrack/pkg/models"
)

var (
	then = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now  = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func cableIn(state models.CableState) *models.Cable {
	tid := int64(9)
	return &models.Cable{ID: 1, State: state, SuspectedCount: 2, Online: true, TicketID: &tid, LastModified: then}
}

func TestTransition_suspect(t *testing.T) {
	tests := []struct {
		from      models.CableState
		wantState models.CableState
		wantCount int
	}{
		{models.CableStateWatch, models.CableStateSuspect, 3},
		{models.CableStateSuspect, models.CableStateSuspect, 2},
		{models.CableStateDisabled, models.CableStateDisabled, 2},
		{models.CableStateRemoved, models.CableStateRemoved, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			c := cableIn(tt.from)
			ch := Suspect(c, now)
			if c.State != tt.wantState || ch.To != tt.wantState {
				t.Errorf("state = %s (change %+v), want %s", c.State, ch, tt.wantState)
			}
			if c.SuspectedCount != tt.wantCount {
				t.Errorf("SuspectedCount = %d, want %d", c.SuspectedCount, tt.wantCount)
			}
			wantMod := then
			if ch.Changed() {
				wantMod = now
			}
			if !c.LastModified.Equal(wantMod) {
				t.Errorf("LastModified = %v, want %v", c.LastModified, wantMod)
			}
		})
	}
}

func TestTransition_disable(t *testing.T) {
	tests := []struct {
		from    models.CableState
		wantErr error
	}{
		{models.CableStateSuspect, nil},
		{models.CableStateWatch, ErrInvalidTransition},
		{models.CableStateDisabled, ErrAlreadyDisabled},
		{models.CableStateRemoved, ErrCableRemoved},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			c := cableIn(tt.from)
			ch, err := Disable(c, "flapping", now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Disable() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if c.State != tt.from || c.SuspectedCount != 2 {
					t.Errorf("refused transition mutated cable: %+v", c)
				}
				return
			}
			if ch.To != models.CableStateDisabled || c.Online || c.Comment != "flapping" {
				t.Errorf("after Disable: change %+v, cable %+v", ch, c)
			}
		})
	}
}

func TestTransition_enable(t *testing.T) {
	c := cableIn(models.CableStateDisabled)
	ch, err := Enable(c, "reseated", now)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if ch != (Change{From: models.CableStateDisabled, To: models.CableStateSuspect}) {
		t.Errorf("change = %+v", ch)
	}

	w := cableIn(models.CableStateWatch)
	ch, err = Enable(w, "noop", now)
	if err != nil || ch.Changed() || w.Comment != "noop" {
		t.Errorf("Enable(watch) = %+v, %v; comment %q", ch, err, w.Comment)
	}
	if !w.LastModified.Equal(then) {
		t.Error("comment-only update must not touch LastModified")
	}

	if _, err := Enable(cableIn(models.CableStateRemoved), "", now); !errors.Is(err, ErrCableRemoved) {
		t.Errorf("Enable(removed) error = %v", err)
	}
}

func TestTransition_release(t *testing.T) {
	c := cableIn(models.CableStateDisabled)
	ch, err := Release(c, "fixed", false, now)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ch.To != models.CableStateWatch || c.SuspectedCount != 2 || c.TicketID == nil {
		t.Errorf("plain release: change %+v, cable %+v", ch, c)
	}

	full := cableIn(models.CableStateSuspect)
	if _, err := Release(full, "new cable", true, now); err != nil {
		t.Fatalf("Release(full): %v", err)
	}
	if full.SuspectedCount != 0 || full.TicketID != nil || full.State != models.CableStateWatch {
		t.Errorf("full release left %+v", full)
	}

	w := cableIn(models.CableStateWatch)
	if ch, err := Release(w, "x", true, now); err != nil || ch.Changed() || w.SuspectedCount != 2 {
		t.Errorf("Release(watch) = %+v, %v, cable %+v", ch, err, w)
	}

	if _, err := Release(cableIn(models.CableStateRemoved), "", false, now); !errors.Is(err, ErrCableRemoved) {
		t.Errorf("Release(removed) error = %v", err)
	}
}

func TestTransition_remove(t *testing.T) {
	for _, from := range []models.CableState{models.CableStateWatch, models.CableStateSuspect, models.CableStateDisabled} {
		c := cableIn(from)
		ch, err := Remove(c, "pulled", now)
		if err != nil {
			t.Fatalf("Remove(%s): %v", from, err)
		}
		if ch.To != models.CableStateRemoved || c.Online {
			t.Errorf("Remove(%s) = %+v, online %v", from, ch, c.Online)
		}
	}
	if _, err := Remove(cableIn(models.CableStateRemoved), "", now); !errors.Is(err, ErrCableRemoved) {
		t.Errorf("Remove(removed) error = %v", err)
	}
}

func TestTransition_replace(t *testing.T) {
	t.Run("moves ticket", func(t *testing.T) {
		old := cableIn(models.CableStateDisabled)
		repl := &models.Cable{ID: 2, State: models.CableStateWatch}
		moved, err := Replace(old, repl, "swap", now)
		if err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if !moved || repl.TicketID == nil || *repl.TicketID != 9 || old.TicketID != nil {
			t.Errorf("ticket not moved: moved=%v old=%v new=%v", moved, old.TicketID, repl.TicketID)
		}
		if old.State != models.CableStateRemoved {
			t.Errorf("old state = %s", old.State)
		}
	})

	t.Run("replacement keeps its ticket", func(t *testing.T) {
		old := cableIn(models.CableStateSuspect)
		own := int64(12)
		repl := &models.Cable{ID: 2, State: models.CableStateSuspect, TicketID: &own}
		moved, err := Replace(old, repl, "swap", now)
		if err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if moved || *repl.TicketID != 12 || old.TicketID == nil {
			t.Errorf("moved=%v old=%v new=%v", moved, old.TicketID, repl.TicketID)
		}
	})

	t.Run("refusals", func(t *testing.T) {
		c := cableIn(models.CableStateWatch)
		if _, err := Replace(c, c, "", now); !errors.Is(err, ErrSelfReplace) {
			t.Errorf("self replace error = %v", err)
		}
		removed := &models.Cable{ID: 3, State: models.CableStateRemoved}
		if _, err := Replace(cableIn(models.CableStateWatch), removed, "", now); !errors.Is(err, ErrCableRemoved) {
			t.Errorf("replace with removed error = %v", err)
		}
		if _, err := Replace(removed, cableIn(models.CableStateWatch), "", now); !errors.Is(err, ErrCableRemoved) {
			t.Errorf("replace of removed error = %v", err)
		}
	})
}
