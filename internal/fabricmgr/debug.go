package fabricmgr

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// ErrDebugUnavailable is returned when no fabric-management host is
// configured to collect switch debug data from.
var ErrDebugUnavailable = errors.New("switch debug collection needs a fabric host")

// Snapshots is the number of mlxdump snapshots the switch vendor asks for.
const Snapshots = 3

// Debugger collects vendor debug data from a switch.
type Debugger interface {
	SwitchDebug(ctx context.Context, guid models.GUID, port int) (*SwitchDebug, error)
}

// Capture is the output of one command run on the fabric host.
type Capture struct {
	File    string // suggested file name, e.g. "mlxdump.1.log"
	Command string
	Output  string
}

// SwitchDebug is the debug data of one switch. Snapshot files stay on the
// fabric host under RemoteFiles.
type SwitchDebug struct {
	GUID        models.GUID
	LID         int
	Captures    []Capture
	RemoteFiles []string
}

// # Node info: Lid 1627
var nodeInfoLIDRE = regexp.MustCompile(`^# Node info: Lid (\d+)`)

// ParseNodeLID returns the LID from smpquery nodeinfo output.
func ParseNodeLID(out string) (int, bool) {
	for _, line := range strings.Split(out, "\n") {
		if m := nodeInfoLIDRE.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			lid, err := strconv.Atoi(m[1])
			return lid, err == nil
		}
	}
	return 0, false
}

// SwitchDebug looks up the LID of the switch behind guid/port, takes
// Snapshots full mlxdump snapshots spaced by the configured interval, and
// queries the firmware with flint. Captures taken before a failure are
// returned with the error.
func (m *Manager) SwitchDebug(ctx context.Context, guid models.GUID, port int) (*SwitchDebug, error) {
	d := &SwitchDebug{GUID: guid}
	run := func(file, cmd string) (string, error) {
		out, err := m.exec.Run(ctx, cmd)
		if err != nil {
			return "", fmt.Errorf("debug %s: %s: %w", guid, file, err)
		}
		d.Captures = append(d.Captures, Capture{File: file, Command: cmd, Output: out})
		return out, nil
	}

	out, err := run("nodeinfo.log", fmt.Sprintf("smpquery nodeinfo -G %s %d", guid.DecimalString(), port))
	if err != nil {
		return d, err
	}
	lid, ok := ParseNodeLID(out)
	if !ok {
		return d, fmt.Errorf("debug %s: no lid in nodeinfo output", guid)
	}
	d.LID = lid

	for i := 1; i <= Snapshots; i++ {
		if i > 1 {
			if err := sleepCtx(ctx, m.debugInterval); err != nil {
				return d, err
			}
		}
		remote := fmt.Sprintf("/var/tmp/mlxdump.%s.%d.udmp", guid, i)
		cmd := fmt.Sprintf("cd /var/tmp && rm -f mlxdump.udmp; date; mlxdump -d lid-%d snapshot -m full 2>&1; mv -v mlxdump.udmp %s", lid, remote)
		if _, err := run(fmt.Sprintf("mlxdump.%d.log", i), cmd); err != nil {
			return d, err
		}
		d.RemoteFiles = append(d.RemoteFiles, remote)
		m.logger.Info("switch snapshot taken", zap.Stringer("guid", guid), zap.Int("lid", lid), zap.Int("snapshot", i))
	}

	if _, err := run("flint-query.log", fmt.Sprintf("flint -d lid-%d q 2>/dev/null", lid)); err != nil {
		return d, err
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SwitchDebug passes through to the wrapped Manager; collecting debug data
// does not change port state.
func (r ReadOnly) SwitchDebug(ctx context.Context, guid models.GUID, port int) (*SwitchDebug, error) {
	if d, ok := r.Inner.(Debugger); ok {
		return d.SwitchDebug(ctx, guid, port)
	}
	return nil, ErrDebugUnavailable
}
