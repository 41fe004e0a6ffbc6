package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HerbHall/cabletrack/internal/cables"
)

func issueCommand(use, short string, op func(l *cables.Lifecycle) func(context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ISSUE...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			ids, unresolved := cables.ResolveIssues(args)
			for _, tok := range unresolved {
				fmt.Fprintf(cmd.ErrOrStderr(), "not an issue id: %q\n", tok)
			}
			if len(ids) == 0 {
				return errors.New("no issues given")
			}
			apply := op(a.lc)
			failed := 0
			for _, id := range ids {
				if err := apply(ctx, id); err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "i%d: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "i%d: %s done\n", id, use)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d issues failed", failed, len(ids))
			}
			return nil
		}),
	}
}

func issueCommands() []*cobra.Command {
	return []*cobra.Command{
		issueCommand("ignore", "Stop raising issues", func(l *cables.Lifecycle) func(context.Context, int64) error {
			return l.IgnoreIssue
		}),
		issueCommand("honor", "Raise ignored issues again", func(l *cables.Lifecycle) func(context.Context, int64) error {
			return l.HonorIssue
		}),
	}
}
