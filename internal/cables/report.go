package cables

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// Actionable is a cable that needs operator attention together with the
// issues raised since it last changed state.
type Actionable struct {
	Cable  *models.Cable  `json:"cable" yaml:"cable"`
	Issues []models.Issue `json:"issues" yaml:"issues"`
}

// ActionableReport lists suspect and disabled cables with their fresh,
// non-ignored issues. When ids is non-empty only those cables are reported,
// whatever their state.
func (s *Store) ActionableReport(ctx context.Context, ids []int64) ([]Actionable, error) {
	var (
		cables []*models.Cable
		err    error
	)
	if len(ids) == 0 {
		cables, err = s.ListCables(ctx, Filter{States: []models.CableState{
			models.CableStateSuspect, models.CableStateDisabled,
		}})
		if err != nil {
			return nil, err
		}
	} else {
		for _, id := range ids {
			c, err := s.GetCable(ctx, id)
			if err != nil {
				return nil, err
			}
			cables = append(cables, c)
		}
	}

	out := make([]Actionable, 0, len(cables))
	for _, c := range cables {
		id := c.ID
		issues, err := s.ListIssues(ctx, IssueFilter{CableID: &id, Since: c.LastModified})
		if err != nil {
			return nil, err
		}
		out = append(out, Actionable{Cable: c, Issues: issues})
	}
	return out, nil
}

// CableReport returns the given cables, or every cable when ids is empty.
func (s *Store) CableReport(ctx context.Context, ids []int64) ([]*models.Cable, error) {
	if len(ids) == 0 {
		return s.ListCables(ctx, Filter{})
	}
	out := make([]*models.Cable, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCable(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// IssueReport returns every issue, ignored ones included, of the given
// cables, or of all cables and unattributed issues when ids is empty.
func (s *Store) IssueReport(ctx context.Context, ids []int64) ([]models.Issue, error) {
	if len(ids) == 0 {
		return s.ListIssues(ctx, IssueFilter{IncludeIgnored: true})
	}
	var out []models.Issue
	for _, id := range ids {
		cid := id
		issues, err := s.ListIssues(ctx, IssueFilter{CableID: &cid, IncludeIgnored: true})
		if err != nil {
			return nil, err
		}
		out = append(out, issues...)
	}
	return out, nil
}

// InventoryHeader is the header row of the inventory export.
var InventoryHeader = []string{
	"serial_number", "product_number", "length", "firmware_label_port_1", "firmware_label_port_2",
}

// WriteInventory writes one CSV row per in-service, fully connected cable
// with a known serial number.
func (s *Store) WriteInventory(ctx context.Context, w io.Writer) error {
	cables, err := s.ListCables(ctx, Filter{States: []models.CableState{
		models.CableStateWatch, models.CableStateSuspect, models.CableStateDisabled,
	}})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(InventoryHeader); err != nil {
		return fmt.Errorf("write inventory header: %w", err)
	}
	for _, c := range cables {
		if len(c.Ports) != 2 || c.SerialNumber == "" {
			continue
		}
		row := []string{c.SerialNumber, c.PartNumber, c.Length, c.Ports[0].FirmwareLabel, c.Ports[1].FirmwareLabel}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write inventory row c%d: %w", c.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
