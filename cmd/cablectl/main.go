package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config        string
	logLevel      string
	lockWait      time.Duration
	noTickets     bool
	noPortChanges bool
}

var rootCmd = &cobra.Command{
	Use:   "cablectl",
	Short: "Track the InfiniBand cables of a cluster",
	Long: "cablectl keeps an inventory of InfiniBand cables built from fabric\n" +
		"diagnostic dumps, tracks each cable through watch, suspect, disabled and\n" +
		"removed, and drives the related tickets and port state changes.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "path to configuration file")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "override logging.level")
	pf.DurationVar(&rootFlags.lockWait, "lock-wait", 10*time.Minute, "how long to wait for another run to finish")
	pf.BoolVar(&rootFlags.noTickets, "no-tickets", false, "do not touch tickets")
	pf.BoolVar(&rootFlags.noPortChanges, "no-port-changes", false, "do not change fabric port state")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(cableCommands()...)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(bisectCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(issueCommands()...)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
