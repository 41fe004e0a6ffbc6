// Package discovery runs the parse pipeline over one diagnostic dump
// directory: the parsers build the run's port set and findings, the matcher
// attributes ports to cables and the correlator records the findings.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/cabletrack/internal/cables"
	"github.com/HerbHall/cabletrack/internal/correlator"
	"github.com/HerbHall/cabletrack/internal/event"
	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/internal/ibdiag"
	"github.com/HerbHall/cabletrack/internal/matcher"
)

// Dump directory file names.
const (
	FileTimestamp    = "timestamp.txt"
	FileTopology     = "ibnetdiscover.log"
	FileCSV          = "ibdiagnet2.db_csv"
	FileDiagLog      = "ibdiagnet2.log"
	FileCablesDump   = "ibdiagnet2.cables"
	FileVerification = "sgi-ibcv2.log"
)

type dumpFile struct {
	name     string
	required bool
}

var dumpFiles = []dumpFile{
	{FileTimestamp, false},
	{FileTopology, true},
	{FileCSV, true},
	{FileDiagLog, true},
	{FileCablesDump, false},
	{FileVerification, false},
}

// Options configures a Pipeline.
type Options struct {
	Speed string // expected link speed, e.g. "EDR"
	Width string // expected link width, e.g. "4x"
	Now   func() time.Time
}

// Summary is the outcome of one run.
type Summary struct {
	cables.Run
	Findings     int
	Suppressed   int
	Enabled      []int64
	Missing      []int64
	FabricTicket int64
}

// Pipeline parses dump directories into the cable store.
type Pipeline struct {
	lc      *cables.Lifecycle
	matcher *matcher.Matcher
	corr    *correlator.Correlator
	bus     *event.Bus
	logger  *zap.Logger
	opts    Options
}

// New creates a Pipeline.
func New(lc *cables.Lifecycle, corr *correlator.Correlator, bus *event.Bus, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		lc:      lc,
		matcher: matcher.New(lc, logger.Named("matcher")),
		corr:    corr,
		bus:     bus,
		logger:  logger,
		opts:    opts,
	}
}

// readDump loads every known file of dir concurrently. Optional files that
// do not exist are left out of the result.
func readDump(ctx context.Context, dir string) (map[string][]byte, error) {
	contents := make([][]byte, len(dumpFiles))
	g, _ := errgroup.WithContext(ctx)
	for i, f := range dumpFiles {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(dir, f.name))
			switch {
			case errors.Is(err, fs.ErrNotExist) && !f.required:
				return nil
			case err != nil:
				return fmt.Errorf("read %s: %w", f.name, err)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(dumpFiles))
	for i, f := range dumpFiles {
		if contents[i] != nil {
			files[f.name] = contents[i]
		}
	}
	return files, nil
}

// logicalTime returns the run time recorded in the dump, the last line of
// timestamp.txt holding unix seconds, or fallback.
func logicalTime(data []byte, fallback time.Time) time.Time {
	t := fallback
	for _, line := range strings.Split(string(data), "\n") {
		if v, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64); err == nil {
			t = time.Unix(v, 0)
		}
	}
	return t.UTC().Truncate(time.Second)
}

// Run parses the dump in dir and applies it to the cable store. A read or
// store failure aborts the run. Failures of single cables or tickets are
// returned joined alongside a complete summary.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Summary, error) {
	started := p.opts.Now().UTC().Truncate(time.Second)
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run", runID), zap.String("dump", dir))

	files, err := readDump(ctx, dir)
	if err != nil {
		return nil, err
	}
	at := logicalTime(files[FileTimestamp], started)
	logger.Debug("dump loaded", zap.Time("logical_time", at), zap.Int("files", len(files)))

	parser := ibdiag.NewParser(fabric.NewPortSet(logger.Named("resolver")), logger.Named("ibdiag"))
	steps := []struct {
		file  string
		parse func(io.Reader) error
	}{
		{FileTopology, parser.ParseTopology},
		{FileCSV, parser.ParseCSV},
		{FileDiagLog, parser.ParseDiagLog},
		{FileCablesDump, parser.ParseCablesDump},
		{FileVerification, parser.ParseVerification},
	}
	for _, s := range steps {
		data, ok := files[s.file]
		if !ok {
			continue
		}
		if err := s.parse(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.file, err)
		}
	}
	parser.CheckPorts(p.opts.Speed, p.opts.Width)

	ports := parser.Ports().Ports()
	findings := parser.Findings()
	logger.Info("dump parsed", zap.Int("ports", len(ports)), zap.Int("findings", len(findings)))

	var errs []error
	match, err := p.matcher.Match(ctx, ports, at)
	if match == nil {
		return nil, err
	}
	if err != nil {
		errs = append(errs, err)
	}

	rep, err := p.corr.Correlate(ctx, findings, match, dir, at)
	if err != nil {
		errs = append(errs, err)
	}

	sum := &Summary{
		Run: cables.Run{
			ID:             runID,
			DumpDir:        dir,
			LogicalTime:    at,
			Ports:          len(ports),
			CablesNew:      len(match.New),
			CablesReplaced: len(match.Replaced),
			Issues:         rep.Attributed,
			Unattributed:   len(rep.Unattributed),
			StartedAt:      started,
		},
		Findings:     len(findings),
		Suppressed:   rep.Suppressed,
		Enabled:      rep.Enabled,
		Missing:      match.Missing,
		FabricTicket: rep.TicketID,
	}
	if err := p.lc.Store().RecordRun(ctx, sum.Run); err != nil {
		return nil, errors.Join(append(errs, err)...)
	}

	p.bus.Publish(ctx, event.Event{
		Topic:  event.TopicRunCompleted,
		Source: "discovery",
		Payload: event.RunCompleted{
			RunID:        runID,
			Ports:        sum.Ports,
			CablesNew:    sum.CablesNew,
			Replaced:     sum.CablesReplaced,
			Issues:       sum.Issues,
			Unattributed: sum.Unattributed,
		},
	})
	logger.Info("discovery run complete",
		zap.Int("cables_new", sum.CablesNew),
		zap.Int("cables_replaced", sum.CablesReplaced),
		zap.Int("issues", sum.Issues),
		zap.Int("unattributed", sum.Unattributed),
	)
	return sum, errors.Join(errs...)
}
