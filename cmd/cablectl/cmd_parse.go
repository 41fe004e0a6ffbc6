package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HerbHall/cabletrack/internal/correlator"
	"github.com/HerbHall/cabletrack/internal/discovery"
)

var parseCmd = &cobra.Command{
	Use:   "parse DUMP_DIR...",
	Short: "Load fabric diagnostic dumps into the cable inventory",
	Long: "parse reads the ibnetdiscover, ibdiagnet2 and cable verification output\n" +
		"in each dump directory, matches the discovered ports to cables and\n" +
		"records the issues found.",
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(runParse),
}

func runParse(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	s := a.settings
	corr := correlator.New(a.lc, a.tickets, a.logger.Named("correlator"), correlator.Options{
		Cluster:      s.Cluster.Name,
		Queue:        s.Ticket.Queue,
		Group:        s.Ticket.Group,
		FabricTicket: s.Cluster.FabricTicket,
	})
	p := discovery.New(a.lc, corr, a.bus, a.logger.Named("discovery"), discovery.Options{
		Speed: s.Fabric.Speed,
		Width: s.Fabric.Width,
	})

	out := cmd.OutOrStdout()
	var errs []error
	for _, dir := range args {
		sum, err := p.Run(ctx, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
		}
		if sum == nil {
			continue
		}
		fmt.Fprintf(out, "%s: %d ports, %d findings, %d new cables, %d replaced, %d issues, %d unattributed\n",
			dir, sum.Ports, sum.Findings, sum.CablesNew, sum.CablesReplaced, sum.Issues, sum.Unattributed)
		if len(sum.Missing) > 0 {
			fmt.Fprintf(out, "  missing: %s\n", cableList(sum.Missing))
		}
		if len(sum.Enabled) > 0 {
			fmt.Fprintf(out, "  disabled but enabled: %s\n", cableList(sum.Enabled))
		}
		if sum.FabricTicket != 0 {
			fmt.Fprintf(out, "  unattributed issues sent to t%d\n", sum.FabricTicket)
		}
	}
	return errors.Join(errs...)
}
