// Package matcher maps the ports discovered in one run onto persisted
// cables. It creates cables for new port pairs, detects cables swapped at
// the same physical location and keeps the online flags current.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/cables"
	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/internal/ibdiag"
	"github.com/HerbHall/cabletrack/pkg/models"
)

const missingDescription = "Cable went missing"

// Result is what one matching pass did, and the cable state snapshot the
// issue correlator needs.
type Result struct {
	Touched  map[int64]bool // cables seen this run
	HCA      map[int64]bool // cables seen with an HCA end
	Disabled map[int64]bool
	Removed  map[int64]bool

	New      []int64
	Replaced []int64
	Missing  []int64
}

func newResult() *Result {
	return &Result{
		Touched:  make(map[int64]bool),
		HCA:      make(map[int64]bool),
		Disabled: make(map[int64]bool),
		Removed:  make(map[int64]bool),
	}
}

// Matcher attributes discovered ports to cables.
type Matcher struct {
	lc     *cables.Lifecycle
	logger *zap.Logger
}

// New returns a Matcher that writes through lc.
func New(lc *cables.Lifecycle, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{lc: lc, logger: logger}
}

// Match attributes every port to a cable, setting Port.CableID, and stamps
// the cables seen at the run time at. Cables not seen go offline; those
// that should still be connected raise a missing issue. Matching is
// committed as one transaction; replacement tickets and missing issues are
// handled after the commit and their failures are returned joined without
// undoing the match.
func (m *Matcher) Match(ctx context.Context, ports []*fabric.Port, at time.Time) (*Result, error) {
	at = at.UTC().Truncate(time.Second)
	res := newResult()
	var replacements []*cables.Replacement

	err := m.lc.Store().InTx(ctx, func(tx *cables.Store) error {
		replacedRun := make(map[int64]bool)

		for _, p := range ports {
			if p.CableID != 0 {
				continue
			}
			if p.GUID == nil || p.Num == nil {
				m.logger.Debug("port without guid or number, not matched", zap.String("port", p.Label()))
				continue
			}
			p1, p2 := p, p.Connection
			if p2 != nil && (p2.GUID == nil || p2.Num == nil) {
				p2 = nil
			}

			cid, hca, reps, err := m.matchPair(ctx, tx, p1, p2, at, replacedRun, res)
			if err != nil {
				return err
			}
			replacements = append(replacements, reps...)

			p1.CableID = cid
			if p2 != nil {
				p2.CableID = cid
			}
			res.Touched[cid] = true
			if hca {
				res.HCA[cid] = true
			}
		}
		return m.refreshOnline(ctx, tx, at, res)
	})
	if err != nil {
		return nil, fmt.Errorf("match ports: %w", err)
	}

	var errs []error
	for _, r := range replacements {
		if err := m.lc.FinishReplace(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cid := range res.Missing {
		id := cid
		_, err := m.lc.AddIssue(ctx, models.Issue{
			CableID:     &id,
			Type:        models.IssueMissing,
			Description: missingDescription,
			Source:      ibdiag.SourceTopology,
			LastSeen:    at,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Info("ports matched to cables",
		zap.Int("ports", len(ports)),
		zap.Int("cables", len(res.Touched)),
		zap.Int("new", len(res.New)),
		zap.Int("replaced", len(res.Replaced)),
		zap.Int("missing", len(res.Missing)),
	)
	return res, errors.Join(errs...)
}

// matchPair resolves one discovered port pair to a cable id, inserting a new
// cable or replacing old ones as needed.
func (m *Matcher) matchPair(ctx context.Context, tx *cables.Store, p1, p2 *fabric.Port, at time.Time,
	replacedRun map[int64]bool, res *Result) (int64, bool, []*cables.Replacement, error) {
	keys := []cables.PortKey{keyOf(p1)}
	if p2 != nil {
		keys = append(keys, keyOf(p2))
		// Stable lookup order regardless of which end was discovered first.
		if keys[1].GUID < keys[0].GUID {
			keys[0], keys[1] = keys[1], keys[0]
		}
	}
	cands, err := tx.FindCandidates(ctx, keys...)
	if err != nil {
		return 0, false, nil, err
	}

	chosen, replaced := choose(p1, cands, replacedRun)

	var (
		cid int64
		hca bool
	)
	if chosen != nil {
		cid, hca = chosen.ID, chosen.HasHCA()
		m.logger.Debug("matched cable", zap.Int64("cable", cid), zap.Stringer("at", keys[0]))
	} else {
		c := newCable(p1, p2, at)
		if err := tx.InsertCable(ctx, &c); err != nil {
			return 0, false, nil, err
		}
		cid, hca = c.ID, c.HasHCA()
		res.New = append(res.New, cid)
		m.logger.Info("new cable discovered", zap.Int64("cable", cid), zap.String("label", c.FirmwareLabel))
	}

	var reps []*cables.Replacement
	for _, old := range replaced {
		replacedRun[old.ID] = true
		r, err := m.lc.ReplaceTx(ctx, tx, old.ID, cid,
			fmt.Sprintf("Detected new cable c%d in same physical location", cid))
		if err != nil {
			return 0, false, nil, err
		}
		reps = append(reps, r)
		res.Replaced = append(res.Replaced, old.ID)
	}
	return cid, hca, reps, nil
}

// choose picks the stored cable a discovered port pair belongs to. cands
// are ordered newest first. When the live read carries a serial and part
// number, the newest candidate with the same numbers wins and every other
// candidate was replaced. Without them the newest candidate that has
// numbers is preferred over one that has none, and nothing is replaced.
// Candidates already replaced in this run are never chosen.
func choose(p1 *fabric.Port, cands []*models.Cable, replacedRun map[int64]bool) (*models.Cable, []*models.Cable) {
	live := make([]*models.Cable, 0, len(cands))
	for _, c := range cands {
		if !replacedRun[c.ID] {
			live = append(live, c)
		}
	}

	if p1.HasSerial() {
		var chosen *models.Cable
		for _, c := range live {
			if c.SerialNumber == p1.Serial && c.PartNumber == p1.PartNumber {
				chosen = c
				break
			}
		}
		var replaced []*models.Cable
		for _, c := range live {
			if c != chosen {
				replaced = append(replaced, c)
			}
		}
		return chosen, replaced
	}

	var noSerial *models.Cable
	for _, c := range live {
		if c.SerialNumber != "" && c.PartNumber != "" {
			return c, nil
		}
		if noSerial == nil {
			noSerial = c
		}
	}
	return noSerial, nil
}

func keyOf(p *fabric.Port) cables.PortKey {
	return cables.PortKey{GUID: *p.GUID, Port: *p.Num}
}

func newCable(p1, p2 *fabric.Port, at time.Time) models.Cable {
	c := models.Cable{
		State:         models.CableStateWatch,
		SerialNumber:  p1.Serial,
		PartNumber:    p1.PartNumber,
		Length:        p1.Length,
		FirmwareLabel: p1.Label(),
		CreatedAt:     at,
		LastModified:  at,
	}
	if p2 != nil {
		c.FirmwareLabel = fabric.CableLabel(p1, p2)
	}
	for _, p := range []*fabric.Port{p1, p2} {
		if p == nil {
			continue
		}
		c.Ports = append(c.Ports, models.CablePort{
			GUID:          *p.GUID,
			Port:          *p.Num,
			Name:          fabric.PrettyName(p.Name),
			IsHCA:         p.IsHCA(),
			FirmwareLabel: p.Label(),
		})
	}
	return c
}

// refreshOnline marks the cables seen this run online and every other
// in-service cable offline. Cables that went dark while still expected to be
// connected are queued as missing.
func (m *Matcher) refreshOnline(ctx context.Context, tx *cables.Store, at time.Time, res *Result) error {
	all, err := tx.ListCables(ctx, cables.Filter{})
	if err != nil {
		return err
	}
	for _, c := range all {
		switch c.State {
		case models.CableStateDisabled:
			res.Disabled[c.ID] = true
		case models.CableStateRemoved:
			res.Removed[c.ID] = true
		}

		if res.Touched[c.ID] && c.State != models.CableStateRemoved {
			if err := tx.MarkOnline(ctx, c.ID, at); err != nil {
				return err
			}
			continue
		}
		if c.Online {
			if err := tx.MarkOffline(ctx, c.ID); err != nil {
				return err
			}
		}
		if c.State == models.CableStateDisabled || c.State == models.CableStateRemoved {
			continue
		}
		if len(c.Ports) == 2 {
			res.Missing = append(res.Missing, c.ID)
		} else {
			m.logger.Debug("ignoring missing single port cable", zap.Int64("cable", c.ID))
		}
	}
	return nil
}
