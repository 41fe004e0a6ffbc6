package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HerbHall/cabletrack/internal/cables"
)

var cableFlags struct {
	comment   string
	force     bool
	noRelease bool
}

// cableOp is a lifecycle operation applied to every cable named on the
// command line.
type cableOp struct {
	use         string
	short       string
	needComment bool
	run         func(ctx context.Context, a *app, id int64) error
}

var cableOps = []cableOp{
	{
		use:   "disable",
		short: "Disable the ports of cables, refusing cables that would bisect the fabric",
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Disable(ctx, id, cableFlags.comment, cableFlags.force)
		},
	},
	{
		use:   "enable",
		short: "Enable the ports of cables; disabled cables go back to suspect",
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Enable(ctx, id, cableFlags.comment)
		},
	},
	{
		use:   "release",
		short: "Return cables to watch, enabling their ports and closing their tickets",
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Release(ctx, id, cableFlags.comment, false)
		},
	},
	{
		use:   "rejuvenate",
		short: "Release cables and forget their suspect count and ticket",
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Release(ctx, id, cableFlags.comment, true)
		},
	},
	{
		use:   "remove",
		short: "Mark cables as physically removed",
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Remove(ctx, id, cableFlags.comment, !cableFlags.noRelease)
		},
	},
	{
		use:         "suspect",
		short:       "Raise a manual issue against cables",
		needComment: true,
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Suspect(ctx, id, cableFlags.comment)
		},
	},
	{
		use:         "comment",
		short:       "Add a comment to cables and their tickets",
		needComment: true,
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.Comment(ctx, id, cableFlags.comment)
		},
	},
	{
		use:   "repair",
		short: "Hand the tickets of cables to the repair group",
		run: func(ctx context.Context, a *app, id int64) error {
			return a.lc.SendToRepair(ctx, id, cableFlags.comment)
		},
	},
}

func (op cableOp) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   op.use + " CABLE...",
		Short: op.short,
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if op.needComment && strings.TrimSpace(cableFlags.comment) == "" {
				return fmt.Errorf("%s requires --comment", op.use)
			}
			ids, err := a.resolveCables(ctx, cmd, args)
			if err != nil {
				return err
			}
			return forEach(cmd, ids, func(id int64) error {
				if err := op.run(ctx, a, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "c%d: %s done\n", id, op.use)
				return nil
			})
		}),
	}
	cmd.Flags().StringVarP(&cableFlags.comment, "comment", "m", "", "comment recorded with the change")
	switch op.use {
	case "disable":
		cmd.Flags().BoolVar(&cableFlags.force, "force", false, "skip the bisection check")
	case "remove":
		cmd.Flags().BoolVar(&cableFlags.noRelease, "no-release", false, "do not release the cable first")
	}
	return cmd
}

func cableCommands() []*cobra.Command {
	out := make([]*cobra.Command, 0, len(cableOps))
	for _, op := range cableOps {
		out = append(out, op.command())
	}
	return out
}

var replaceCmd = &cobra.Command{
	Use:   "replace OLD NEW",
	Short: "Record that cable NEW took the place of cable OLD",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		var ids [2]int64
		for i, tok := range args {
			m, ok, err := a.st.Resolve(ctx, tok)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("unable to resolve %q", tok)
			}
			ids[i] = m.CableID
		}
		if err := a.lc.Replace(ctx, ids[0], ids[1], cableFlags.comment); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "c%d replaced by c%d\n", ids[0], ids[1])
		return nil
	}),
}

func init() {
	replaceCmd.Flags().StringVarP(&cableFlags.comment, "comment", "m", "", "comment recorded with the change")
}

var queryCmd = &cobra.Command{
	Use:   "query CABLE...",
	Short: "Show the fabric port state of cables",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		ids, err := a.resolveCables(ctx, cmd, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return forEach(cmd, ids, func(id int64) error {
			status, err := a.lc.QueryPorts(ctx, id)
			if err != nil {
				return err
			}
			var errs []error
			for _, ps := range status {
				fmt.Fprintf(out, "c%d %s (%s/P%d):\n", id, ps.Port.FirmwareLabel, ps.Port.GUID, ps.Port.Port)
				if ps.Err != nil {
					errs = append(errs, ps.Err)
					continue
				}
				keys := make([]string, 0, len(ps.Attrs))
				for k := range ps.Attrs {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "  %s: %s\n", k, ps.Attrs[k])
				}
			}
			return errors.Join(errs...)
		})
	}),
}

var bisectCmd = &cobra.Command{
	Use:   "bisect CABLE...",
	Short: "Check whether disabling cables would split the fabric",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		ids, err := a.resolveCables(ctx, cmd, args)
		if err != nil {
			return err
		}
		return forEach(cmd, ids, func(id int64) error {
			c, err := a.st.GetCable(ctx, id)
			if err != nil {
				return err
			}
			risk, err := a.lc.IsBisection(ctx, c)
			if err != nil {
				return err
			}
			verdict := "safe to disable"
			if risk {
				verdict = "bisection risk"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "c%d %s: %s\n", id, cables.Label(c), verdict)
			return nil
		})
	}),
}

var labelCmd = &cobra.Command{
	Use:   "label CABLE|PORT LABEL",
	Short: "Set the physical label of a cable, or of one cable end",
	Long: "label records the label printed on a cable. When the first argument names\n" +
		"a single port (p{id}, S{guid}/P{port}, name/P{port} or a port label) the\n" +
		"label is set on that cable end instead.",
	Args: cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		m, ok, err := a.st.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unable to resolve %q", args[0])
		}
		if m.PortID != nil {
			if err := a.lc.SetPortPhysicalLabel(ctx, *m.PortID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "p%d labeled %q\n", *m.PortID, args[1])
			return nil
		}
		if err := a.lc.SetCablePhysicalLabel(ctx, m.CableID, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "c%d labeled %q\n", m.CableID, args[1])
		return nil
	}),
}

var debugFlags struct {
	output string
}

var debugCmd = &cobra.Command{
	Use:   "debug CABLE...",
	Short: "Collect switch snapshots and issue dumps of cables for the vendor",
	Long: `Collect switch snapshots and issue dumps of cables for the vendor.

Each cable gets a directory c<ID> under --output holding one directory per
switch it ends on and a copy of every dump directory that raised one of its
current issues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		ids, err := a.resolveCables(ctx, cmd, args)
		if err != nil {
			return err
		}
		return forEach(cmd, ids, func(id int64) error {
			dir := filepath.Join(debugFlags.output, fmt.Sprintf("c%d", id))
			rep, err := a.lc.CollectDebug(ctx, id, dir)
			if rep != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "c%d: %d switches, %d sources in %s\n",
					id, len(rep.Switches), len(rep.Sources), dir)
			}
			return err
		})
	}),
}

func init() {
	debugCmd.Flags().StringVarP(&debugFlags.output, "output", "o", ".", "directory to write the debug data under")
}
