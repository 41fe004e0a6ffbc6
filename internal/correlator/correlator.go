// Package correlator turns the findings of a discovery run into stored
// issues. Findings are attributed to the cables the matcher resolved; the
// ones no cable can be found for are collected into a single fabric ticket.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/cables"
	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/internal/matcher"
	"github.com/HerbHall/cabletrack/internal/ticket"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// ChunkLines is the number of unattributed findings sent per ticket comment.
const ChunkLines = 200

const (
	enabledDescription = "Atleast one port in cable detected as enabled"
	enabledRaw         = "csv state of cable"
)

// Options configures a Correlator.
type Options struct {
	Cluster string
	Queue   string
	Group   string
	// FabricTicket, when set, receives unattributed findings instead of a
	// new ticket per run.
	FabricTicket int64
}

// Report summarizes one correlation pass.
type Report struct {
	Attributed   int     // findings recorded against a cable
	Suppressed   int     // findings dropped for the cable's state
	Ignored      int     // findings matching an ignored issue
	Enabled      []int64 // disabled cables found with an enabled port
	Unattributed []string
	TicketID     int64 // ticket that received the unattributed findings
}

// Correlator records findings through the cable lifecycle.
type Correlator struct {
	lc      *cables.Lifecycle
	tickets ticket.Client
	logger  *zap.Logger
	opts    Options
}

// New returns a Correlator. A nil ticket client disables the fabric ticket.
func New(lc *cables.Lifecycle, tickets ticket.Client, logger *zap.Logger, opts Options) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tickets == nil {
		tickets = ticket.Nop{Logger: logger}
	}
	if opts.Cluster == "" {
		opts.Cluster = "cluster"
	}
	return &Correlator{lc: lc, tickets: tickets, logger: logger, opts: opts}
}

// cableOf returns the cable of the last finding port the matcher resolved.
func cableOf(f fabric.Finding) int64 {
	var cid int64
	for _, p := range f.Ports {
		if p != nil && p.CableID != 0 {
			cid = p.CableID
		}
	}
	return cid
}

// Correlate records findings seen in the run read from source at time at.
// match is the matcher's result for the same run. Failures of individual
// issues are collected and returned joined; the pass always completes.
func (c *Correlator) Correlate(ctx context.Context, findings []fabric.Finding, match *matcher.Result, source string, at time.Time) (*Report, error) {
	rep := &Report{}
	fabricDisabled := make(map[int64]bool)
	var errs []error

	record := func(is models.Issue) event.IssueOutcome {
		res, err := c.lc.AddIssue(ctx, is)
		if err != nil {
			c.logger.Error("recording issue failed", zap.String("type", string(is.Type)), zap.Error(err))
			errs = append(errs, err)
		}
		if res == nil {
			return ""
		}
		if res.Outcome == event.IssueIgnored {
			rep.Ignored++
		}
		return res.Outcome
	}

	for _, f := range findings {
		cid := cableOf(f)
		if cid != 0 && f.Type == models.IssueDisabled {
			fabricDisabled[cid] = true
		}

		if cid != 0 {
			switch {
			case f.Type == models.IssueMissing && match.HCA[cid]:
				c.logger.Debug("ignoring missing cable with an hca", zap.Int64("cable", cid))
				rep.Suppressed++
				continue
			case match.Removed[cid], match.Disabled[cid]:
				c.logger.Debug("ignoring issue on out of service cable",
					zap.Int64("cable", cid), zap.String("type", string(f.Type)))
				rep.Suppressed++
				continue
			}

			id := cid
			record(models.Issue{
				CableID:     &id,
				Type:        f.Type,
				Description: f.Description,
				Raw:         f.Raw,
				Source:      source,
				LastSeen:    at,
			})
			rep.Attributed++
			continue
		}

		outcome := record(models.Issue{
			Type:        f.Type,
			Description: f.Description,
			Raw:         f.Raw,
			Source:      source,
			LastSeen:    at,
		})
		if outcome == event.IssueIgnored {
			continue
		}
		line := f.RawText()
		if line == "" {
			line = f.Description
		}
		rep.Unattributed = append(rep.Unattributed, line)
	}

	for cid := range match.Disabled {
		if fabricDisabled[cid] {
			continue
		}
		c.logger.Warn("cable that should be disabled found to be enabled", zap.Int64("cable", cid))
		rep.Enabled = append(rep.Enabled, cid)
		id, raw := cid, enabledRaw
		record(models.Issue{
			CableID:     &id,
			Type:        models.IssueEnabled,
			Description: enabledDescription,
			Raw:         &raw,
			Source:      source,
			LastSeen:    at,
		})
	}
	slices.Sort(rep.Enabled)

	if err := c.flush(ctx, rep, source); err != nil {
		errs = append(errs, err)
	}
	return rep, errors.Join(errs...)
}

// flush sends the unattributed findings to the fabric ticket in chunks of
// ChunkLines lines.
func (c *Correlator) flush(ctx context.Context, rep *Report, source string) error {
	if len(rep.Unattributed) == 0 {
		return nil
	}

	tid := c.opts.FabricTicket
	if tid == 0 {
		var err error
		tid, err = c.tickets.Create(ctx, ticket.CreateRequest{
			Queue:    c.opts.Queue,
			Assignee: c.opts.Group,
			Title:    fmt.Sprintf("%s: Infiniband Issues", c.opts.Cluster),
			Body: fmt.Sprintf("%d issues have been detected against the Infiniband fabric for %s.\n\nRaw Data: %s",
				len(rep.Unattributed), c.opts.Cluster, source),
			Fields: ticket.Fields{"hostname": c.opts.Cluster, "hostname_other": "Infiniband Fabric"},
		})
		if err != nil {
			return fmt.Errorf("create fabric ticket: %w", err)
		}
		if tid == 0 {
			return nil
		}
		c.logger.Info("created ticket for fabric issues", zap.Int64("ticket", tid), zap.Int("issues", len(rep.Unattributed)))
	}
	rep.TicketID = tid

	for start := 0; start < len(rep.Unattributed); start += ChunkLines {
		chunk := rep.Unattributed[start:min(start+ChunkLines, len(rep.Unattributed))]
		if err := c.tickets.AddComment(ctx, tid, strings.Join(chunk, "\n")+"\n"); err != nil {
			return fmt.Errorf("comment on fabric ticket %d: %w", tid, err)
		}
	}
	return nil
}
