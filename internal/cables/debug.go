package cables

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabricmgr"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// DebugReport lists what CollectDebug gathered for one cable.
type DebugReport struct {
	CableID  int64
	Switches []*fabricmgr.SwitchDebug
	Sources  []string // issue source directories copied
	Skipped  []string // issue sources that are not directories
}

// CollectDebug gathers the vendor debug data for a cable into dir: one
// directory per switch the cable ends on, holding the command captures and a
// switch-info.txt, and a copy of every dump directory that raised a current
// issue against the cable under dir/sources. HCA ends are skipped. Failures
// of single switches or sources are returned joined after everything else
// has been collected.
func (l *Lifecycle) CollectDebug(ctx context.Context, id int64, dir string) (*DebugReport, error) {
	dbg, ok := l.fabric.(fabricmgr.Debugger)
	if !ok {
		return nil, fabricmgr.ErrDebugUnavailable
	}
	c, err := l.store.GetCable(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("debug c%d: %w", id, err)
	}

	rep := &DebugReport{CableID: c.ID}
	var errs []error
	seen := make(map[models.GUID]bool)
	for _, p := range c.Ports {
		if p.IsHCA {
			l.logger.Debug("skipping hca end", zap.Int64("cable", c.ID), zap.String("port", p.FirmwareLabel))
			continue
		}
		if seen[p.GUID] {
			continue
		}
		seen[p.GUID] = true

		d, err := dbg.SwitchDebug(ctx, p.GUID, p.Port)
		if d != nil {
			if werr := writeSwitchDebug(filepath.Join(dir, p.GUID.String()), p, d); werr != nil {
				errs = append(errs, werr)
			}
			rep.Switches = append(rep.Switches, d)
		}
		if err != nil {
			l.logger.Error("switch debug failed", zap.Int64("cable", c.ID), zap.Stringer("guid", p.GUID), zap.Error(err))
			errs = append(errs, err)
		}
	}

	issues, err := l.store.ListIssues(ctx, IssueFilter{CableID: &c.ID, Since: c.LastModified})
	if err != nil {
		return rep, errors.Join(append(errs, err)...)
	}
	names := make(map[string]int)
	done := make(map[string]bool)
	for _, is := range issues {
		src := is.Source
		if done[src] {
			continue
		}
		done[src] = true
		if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
			rep.Skipped = append(rep.Skipped, src)
			continue
		}

		name := filepath.Base(src)
		if n := names[name]; n > 0 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		names[filepath.Base(src)]++
		if err := os.CopyFS(filepath.Join(dir, "sources", name), os.DirFS(src)); err != nil {
			errs = append(errs, fmt.Errorf("copy source %s: %w", src, err))
			continue
		}
		rep.Sources = append(rep.Sources, src)
	}

	l.logger.Info("debug data collected",
		zap.Int64("cable", c.ID),
		zap.String("dir", dir),
		zap.Int("switches", len(rep.Switches)),
		zap.Int("sources", len(rep.Sources)),
	)
	return rep, errors.Join(errs...)
}

func writeSwitchDebug(dir string, p models.CablePort, d *fabricmgr.SwitchDebug) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, c := range d.Captures {
		if err := os.WriteFile(filepath.Join(dir, c.File), []byte(c.Output), 0o644); err != nil {
			return err
		}
	}
	info := fmt.Sprintf("Switch Name: %s\nGUID: %s\nLID: %d\n", p.FirmwareLabel, d.GUID, d.LID)
	if len(d.RemoteFiles) > 0 {
		info += "Snapshots on fabric host:\n  " + strings.Join(d.RemoteFiles, "\n  ") + "\n"
	}
	return os.WriteFile(filepath.Join(dir, "switch-info.txt"), []byte(info), 0o644)
}
