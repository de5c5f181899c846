package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Confidence-gated approval service for autonomous operational actions",
	Long: `Gatekeeper sits between autonomous operators and the systems they act on.
Each proposed action is submitted as a decision record; high-confidence,
low-risk decisions are auto-approved while everything else is escalated
to a human guardian and tracked through an auditable approval lifecycle.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "gatekeeper.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
