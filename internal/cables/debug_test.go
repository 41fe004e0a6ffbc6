package cables

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/cabletrack/internal/fabricmgr"
	"github.com/HerbHall/cabletrack/internal/testutil"
	"github.com/HerbHall/cabletrack/pkg/models"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestCollectDebug(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()
	c := insertCable(t, env.store, switchCable(guidA, 1, guidB, 7))

	src := filepath.Join(t.TempDir(), "ibdiag-0412")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "ibdiagnet2.log"), []byte("-E- link down\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	is := counterIssue(c.ID)
	is.Source = src
	if _, err := env.lc.AddIssue(ctx, is); err != nil {
		t.Fatalf("AddIssue: %v", err)
	}
	// Manual entries carry no dump directory.
	manual := counterIssue(c.ID)
	manual.Type = models.IssueManual
	manual.Source = "cablectl"
	if _, err := env.lc.AddIssue(ctx, manual); err != nil {
		t.Fatalf("AddIssue manual: %v", err)
	}

	out := t.TempDir()
	rep, err := env.lc.CollectDebug(ctx, c.ID, out)
	if err != nil {
		t.Fatalf("CollectDebug: %v", err)
	}
	if len(rep.Switches) != 2 {
		t.Errorf("got %d switches, want 2", len(rep.Switches))
	}
	if len(rep.Sources) != 1 || rep.Sources[0] != src {
		t.Errorf("sources = %v, want [%s]", rep.Sources, src)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0] != "cablectl" {
		t.Errorf("skipped = %v, want [cablectl]", rep.Skipped)
	}

	info := readFile(t, filepath.Join(out, guidB.String(), "switch-info.txt"))
	if !strings.HasPrefix(info, "Switch Name: "+c.Ports[1].FirmwareLabel+"\n") {
		t.Errorf("switch-info.txt = %q", info)
	}
	if !strings.Contains(info, "/var/tmp/mlxdump."+guidB.String()+".1.udmp") {
		t.Errorf("switch-info.txt missing snapshot path: %q", info)
	}
	if got := readFile(t, filepath.Join(out, guidA.String(), "nodeinfo.log")); !strings.Contains(got, "Lid 101") {
		t.Errorf("nodeinfo.log = %q", got)
	}
	if got := readFile(t, filepath.Join(out, "sources", "ibdiag-0412", "ibdiagnet2.log")); got != "-E- link down\n" {
		t.Errorf("copied source = %q", got)
	}
}

func TestCollectDebug_skips_hca_and_repeated_switch(t *testing.T) {
	env := newLifecycleEnv(t)
	hca := insertCable(t, env.store, testutil.NewCable([]models.CablePort{
		testutil.SwitchPort(guidA, 3, "r1i0s0 SW0"),
		testutil.HCAPort(guidHost, 1, "r1i0n3"),
	}))
	loop := insertCable(t, env.store, switchCable(guidB, 1, guidB, 2))

	for _, id := range []int64{hca.ID, loop.ID} {
		if _, err := env.lc.CollectDebug(context.Background(), id, t.TempDir()); err != nil {
			t.Fatalf("CollectDebug c%d: %v", id, err)
		}
	}
	want := []string{"debug " + guidA.String() + "/P3", "debug " + guidB.String() + "/P1"}
	if got := env.fabric.commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("fabric commands = %v, want %v", got, want)
	}
}

func TestCollectDebug_without_fabric_host(t *testing.T) {
	st := testStore(t)
	c := insertCable(t, st, switchCable(guidA, 1, guidB, 1))
	lc := NewLifecycle(st, nil, nil, nil, zaptest.NewLogger(t), Options{})

	out := t.TempDir()
	rep, err := lc.CollectDebug(context.Background(), c.ID, out)
	if !errors.Is(err, fabricmgr.ErrDebugUnavailable) {
		t.Fatalf("got %v, want ErrDebugUnavailable", err)
	}
	if rep == nil || len(rep.Switches) != 0 {
		t.Errorf("report = %+v, want no switches", rep)
	}
}
