package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listFlags struct {
	format string
	limit  int
}

var listCmd = &cobra.Command{
	Use:   "list [actionable|cables|issues|runs] [CABLE...]",
	Short: "Report cables, issues or discovery runs",
	Long: "list actionable shows suspect and disabled cables with the issues raised\n" +
		"since their last state change. list cables and list issues show everything\n" +
		"for the given cables, or for all cables. list runs shows recent parses.",
	Args:      cobra.ArbitraryArgs,
	ValidArgs: []string{"actionable", "cables", "issues", "runs"},
	RunE:      withApp(runList),
}

func init() {
	f := listCmd.Flags()
	f.StringVarP(&listFlags.format, "format", "o", formatTable, "output format: table, yaml or json")
	f.IntVar(&listFlags.limit, "limit", 20, "number of runs shown by list runs")
}

func runList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	report := "actionable"
	if len(args) > 0 {
		report, args = args[0], args[1:]
	}

	var ids []int64
	if len(args) > 0 && report != "runs" {
		var err error
		if ids, err = a.resolveCables(ctx, cmd, args); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	table := listFlags.format == formatTable
	switch report {
	case "actionable":
		rep, err := a.st.ActionableReport(ctx, ids)
		if err != nil {
			return err
		}
		if table {
			renderActionable(out, rep)
			return nil
		}
		return encode(out, listFlags.format, rep)
	case "cables":
		rep, err := a.st.CableReport(ctx, ids)
		if err != nil {
			return err
		}
		if table {
			renderCables(out, rep)
			return nil
		}
		return encode(out, listFlags.format, rep)
	case "issues":
		rep, err := a.st.IssueReport(ctx, ids)
		if err != nil {
			return err
		}
		if table {
			renderIssues(out, rep)
			return nil
		}
		return encode(out, listFlags.format, rep)
	case "runs":
		runs, err := a.st.ListRuns(ctx, listFlags.limit)
		if err != nil {
			return err
		}
		if table {
			renderRuns(out, runs)
			return nil
		}
		return encode(out, listFlags.format, runs)
	}
	return fmt.Errorf("unknown report %q", report)
}

var inventoryFlags struct {
	output string
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Export in-service cables with serial numbers as CSV",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
		if inventoryFlags.output == "" || inventoryFlags.output == "-" {
			return a.st.WriteInventory(ctx, cmd.OutOrStdout())
		}
		f, err := os.Create(inventoryFlags.output)
		if err != nil {
			return fmt.Errorf("create inventory file: %w", err)
		}
		if err := a.st.WriteInventory(ctx, f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}),
}

func init() {
	inventoryCmd.Flags().StringVar(&inventoryFlags.output, "output", "", "write the CSV to this file instead of stdout")
}
